package store

import (
	"context"
	"fmt"

	"legalease/api/internal/util"
)

const templateColumns = `id, user_id, name, category, description, content, branding_config, legal_clauses, is_public, created_at, updated_at`

func scanTemplate(row rowScanner) (Template, error) {
	var tpl Template
	var branding, clauses []byte
	err := row.Scan(
		&tpl.ID,
		&tpl.UserID,
		&tpl.Name,
		&tpl.Category,
		&tpl.Description,
		&tpl.Content,
		&branding,
		&clauses,
		&tpl.IsPublic,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		return Template{}, err
	}
	tpl.BrandingConfig = rawJSON(branding, "{}")
	tpl.LegalClauses = rawJSON(clauses, "[]")
	return tpl, nil
}

// ListTemplates returns the user's templates, plus every public template when
// includePublic is set.
func (s *PostgresStore) ListTemplates(ctx context.Context, userID string, includePublic bool) ([]Template, error) {
	query := `SELECT ` + templateColumns + ` FROM document_templates WHERE user_id=$1`
	if includePublic {
		query += ` OR is_public`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", translate(err))
	}
	defer rows.Close()

	items := make([]Template, 0)
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		items = append(items, tpl)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id string) (Template, error) {
	tpl, err := scanTemplate(s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM document_templates WHERE id=$1`, id))
	if err != nil {
		return Template{}, fmt.Errorf("get template: %w", translate(err))
	}
	return tpl, nil
}

func (s *PostgresStore) CreateTemplate(ctx context.Context, tpl Template) (Template, error) {
	if tpl.ID == "" {
		tpl.ID = util.NewID()
	}
	if tpl.Category == "" {
		tpl.Category = "general"
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO document_templates (id, user_id, name, category, description, content, branding_config, legal_clauses, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+templateColumns,
		tpl.ID,
		tpl.UserID,
		tpl.Name,
		tpl.Category,
		tpl.Description,
		tpl.Content,
		jsonArg(tpl.BrandingConfig, "{}"),
		jsonArg(tpl.LegalClauses, "[]"),
		tpl.IsPublic,
	)
	created, err := scanTemplate(row)
	if err != nil {
		return Template{}, fmt.Errorf("insert template: %w", translate(err))
	}
	return created, nil
}

// UpdateTemplate writes only the fields set on patch.
func (s *PostgresStore) UpdateTemplate(ctx context.Context, id string, patch TemplatePatch) (Template, error) {
	var b updateBuilder
	if patch.Name != nil {
		b.set("name", *patch.Name)
	}
	if patch.Category != nil {
		b.set("category", *patch.Category)
	}
	if patch.Description != nil {
		b.set("description", *patch.Description)
	}
	if patch.Content != nil {
		b.set("content", *patch.Content)
	}
	if patch.BrandingConfig != nil {
		b.set("branding_config", jsonArg(*patch.BrandingConfig, "{}"))
	}
	if patch.LegalClauses != nil {
		b.set("legal_clauses", jsonArg(*patch.LegalClauses, "[]"))
	}
	if patch.IsPublic != nil {
		b.set("is_public", *patch.IsPublic)
	}
	if b.empty() {
		return s.GetTemplate(ctx, id)
	}

	query, args := b.statement("document_templates", id, templateColumns)
	tpl, err := scanTemplate(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return Template{}, fmt.Errorf("update template: %w", translate(err))
	}
	return tpl, nil
}

func (s *PostgresStore) DeleteTemplate(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM document_templates WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", translate(err))
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}
