package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgSearch runs document searches directly against PostgreSQL. It is the
// fallback when Meilisearch is not configured or unavailable.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgSearch) Healthy() bool {
	return true
}

// buildWhere turns f into a WHERE clause and its positional arguments.
func buildWhere(f Filter) (string, []any) {
	var where []string
	var args []any
	add := func(format string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(format, len(args)))
	}

	if f.Text != "" {
		args = append(args, f.Text, "%"+escapeLike(f.Text)+"%")
		tsArg, likeArg := len(args)-1, len(args)
		where = append(where, fmt.Sprintf(
			"(d.fts @@ plainto_tsquery('english', $%d) OR d.title ILIKE $%d OR d.original_content ILIKE $%d OR d.converted_content ILIKE $%d)",
			tsArg, likeArg, likeArg, likeArg))
	}
	if f.UserID != "" {
		add("d.user_id = $%d", f.UserID)
	}
	if f.OrganizationID != "" {
		add("d.organization_id = $%d", f.OrganizationID)
	}
	if f.DocumentType != "" {
		add("d.document_type = $%d", f.DocumentType)
	}
	if f.Status != "" {
		add("d.status = $%d", f.Status)
	}
	if f.IsArchived != nil {
		add("d.is_archived = $%d", *f.IsArchived)
	}
	if f.CreatedAfter != nil {
		add("d.created_at >= $%d", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		add("d.created_at <= $%d", *f.CreatedBefore)
	}
	if len(f.Tags) > 0 {
		add("d.tags @> $%d", f.Tags)
	}

	if len(where) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(where, " AND "), args
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

func (p *PgSearch) Search(ctx context.Context, f Filter) ([]Hit, int, error) {
	f = f.normalized()
	where, args := buildWhere(f)

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents d `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pg search count: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT d.id, d.user_id, COALESCE(d.organization_id::text, ''), d.title,
			COALESCE(d.summary, ''), COALESCE(d.converted_content, ''), d.original_content,
			d.document_type, d.status, d.is_archived, to_json(d.tags), d.created_at
		FROM documents d
		%s
		ORDER BY d.created_at DESC
		LIMIT %d OFFSET %d`, where, f.Limit, f.Offset)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search query: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0)
	for rows.Next() {
		var h Hit
		var summary, converted, original string
		var tags []byte
		if err := rows.Scan(&h.ID, &h.UserID, &h.OrganizationID, &h.Title, &summary, &converted, &original,
			&h.DocumentType, &h.Status, &h.IsArchived, &tags, &h.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("pg search scan: %w", err)
		}
		h.Tags = decodeTags(tags)
		h.Snippet = snippet(summary, converted, original)
		hits = append(hits, h)
	}
	return hits, total, rows.Err()
}

// LoadAllRecords returns every document for a full reindex.
func (p *PgSearch) LoadAllRecords(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(organization_id::text, ''), title, original_content,
			COALESCE(converted_content, ''), COALESCE(summary, ''), document_type, status,
			is_archived, to_json(tags), created_at
		FROM documents
	`)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	records := make([]DocumentRecord, 0)
	for rows.Next() {
		var r DocumentRecord
		var tags []byte
		var created sql.NullTime
		if err := rows.Scan(&r.ID, &r.UserID, &r.OrganizationID, &r.Title, &r.Content, &r.Converted, &r.Summary,
			&r.DocumentType, &r.Status, &r.IsArchived, &tags, &created); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		r.Tags = decodeTags(tags)
		r.CreatedAt = created.Time.Unix()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return records, nil
}
