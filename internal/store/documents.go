package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"legalease/api/internal/util"
)

// tags are read back through to_json so they scan as plain bytes.
const documentColumns = `id, user_id, organization_id, team_id, title, original_content,
	converted_content, conversion_type, document_type, status, credits_used, key_terms,
	summary, original_file, file_type, word_count, character_count, metadata,
	to_json(tags), is_archived, archived_at, archived_by, archive_reason,
	recalled_at, recalled_by, recall_reason, created_at, updated_at`

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var keyTerms, metadata, tags []byte
	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.OrganizationID,
		&doc.TeamID,
		&doc.Title,
		&doc.OriginalContent,
		&doc.ConvertedContent,
		&doc.ConversionType,
		&doc.DocumentType,
		&doc.Status,
		&doc.CreditsUsed,
		&keyTerms,
		&doc.Summary,
		&doc.OriginalFile,
		&doc.FileType,
		&doc.WordCount,
		&doc.CharacterCount,
		&metadata,
		&tags,
		&doc.IsArchived,
		&doc.ArchivedAt,
		&doc.ArchivedBy,
		&doc.ArchiveReason,
		&doc.RecalledAt,
		&doc.RecalledBy,
		&doc.RecallReason,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	doc.KeyTerms = rawJSON(keyTerms, "")
	doc.Metadata = rawJSON(metadata, "{}")
	doc.Tags = []string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &doc.Tags); err != nil {
			return Document{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	return doc, nil
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()
	items := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, doc)
	}
	return items, rows.Err()
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) (Document, error) {
	return insertDocument(ctx, s.db, doc)
}

func insertDocument(ctx context.Context, q queryer, doc Document) (Document, error) {
	if doc.ID == "" {
		doc.ID = util.NewID()
	}
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	if doc.DocumentType == "" {
		doc.DocumentType = "other"
	}
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}

	row := q.QueryRowContext(ctx, `
		INSERT INTO documents (
			id, user_id, organization_id, team_id, title, original_content, converted_content,
			conversion_type, document_type, status, credits_used, key_terms, summary,
			original_file, file_type, word_count, character_count, metadata, tags
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING `+documentColumns,
		doc.ID,
		doc.UserID,
		ptrArg(doc.OrganizationID),
		ptrArg(doc.TeamID),
		doc.Title,
		doc.OriginalContent,
		ptrArg(doc.ConvertedContent),
		ptrArg(doc.ConversionType),
		doc.DocumentType,
		doc.Status,
		doc.CreditsUsed,
		nullableJSON(doc.KeyTerms),
		ptrArg(doc.Summary),
		ptrArg(doc.OriginalFile),
		ptrArg(doc.FileType),
		doc.WordCount,
		doc.CharacterCount,
		jsonArg(doc.Metadata, "{}"),
		tags,
	)
	inserted, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", translate(err))
	}
	return inserted, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", translate(err))
	}
	return doc, nil
}

func (s *PostgresStore) ListDocumentsByUser(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", translate(err))
	}
	items, err := scanDocuments(rows)
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	return items, nil
}

// ListAllDocuments feeds search reindexing.
func (s *PostgresStore) ListAllDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list all documents: %w", err)
	}
	items, err := scanDocuments(rows)
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", translate(err))
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RestoreDocumentContent overwrites both content columns with a previous
// version.
func (s *PostgresStore) RestoreDocumentContent(ctx context.Context, id, original string, converted *string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET original_content=$2, converted_content=$3, updated_at=NOW()
		WHERE id=$1
		RETURNING `+documentColumns,
		id, original, ptrArg(converted),
	)
	doc, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("restore document content: %w", translate(err))
	}
	return doc, nil
}

// ArchiveDocument flags the document archived. Archiving an archived document
// leaves it untouched and returns it as is.
func (s *PostgresStore) ArchiveDocument(ctx context.Context, id, archivedBy, reason string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET is_archived=TRUE, archived_at=NOW(), archived_by=$2, archive_reason=$3, updated_at=NOW()
		WHERE id=$1 AND is_archived=FALSE
		RETURNING `+documentColumns,
		id, nullIfEmpty(archivedBy), nullIfEmpty(reason),
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s.GetDocument(ctx, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("archive document: %w", translate(err))
	}
	return doc, nil
}

// RecallDocument only matches archived documents. A missing document yields
// ErrNotFound and a live one ErrNotArchived; neither is modified.
func (s *PostgresStore) RecallDocument(ctx context.Context, id, recalledBy, reason string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET is_archived=FALSE, archived_at=NULL, archived_by=NULL, archive_reason=NULL,
			recalled_at=NOW(), recalled_by=$2, recall_reason=$3, updated_at=NOW()
		WHERE id=$1 AND is_archived=TRUE
		RETURNING `+documentColumns,
		id, nullIfEmpty(recalledBy), nullIfEmpty(reason),
	)
	doc, err := scanDocument(row)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("recall document: %w", translate(err))
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id=$1)`, id).Scan(&exists); err != nil {
		return Document{}, fmt.Errorf("check document: %w", translate(err))
	}
	if !exists {
		return Document{}, ErrNotFound
	}
	return Document{}, ErrNotArchived
}

func (s *PostgresStore) ListArchivedDocuments(ctx context.Context, filter ArchiveFilter) ([]Document, error) {
	where := []string{"is_archived=TRUE"}
	args := []any{}
	if strings.TrimSpace(filter.OrganizationID) != "" {
		args = append(args, filter.OrganizationID)
		where = append(where, fmt.Sprintf("organization_id=$%d", len(args)))
	}
	if strings.TrimSpace(filter.ArchivedBy) != "" {
		args = append(args, filter.ArchivedBy)
		where = append(where, fmt.Sprintf("archived_by=$%d", len(args)))
	}
	if strings.TrimSpace(filter.UserID) != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id=$%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM documents
		WHERE %s
		ORDER BY archived_at DESC
		LIMIT $%d
	`, documentColumns, strings.Join(where, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list archived documents: %w", translate(err))
	}
	items, err := scanDocuments(rows)
	if err != nil {
		return nil, fmt.Errorf("scan archived documents: %w", err)
	}
	return items, nil
}
