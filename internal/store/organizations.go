package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"legalease/api/internal/util"
)

const organizationColumns = `id, name, slug, plan, max_users, max_documents, max_storage_gb,
	features, settings, billing_email, subscription_status, created_at, updated_at`

func scanOrganization(row rowScanner) (Organization, error) {
	var org Organization
	var features, settings []byte
	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.Plan,
		&org.MaxUsers,
		&org.MaxDocuments,
		&org.MaxStorageGB,
		&features,
		&settings,
		&org.BillingEmail,
		&org.SubscriptionStatus,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return Organization{}, err
	}
	org.Features = rawJSON(features, "{}")
	org.Settings = rawJSON(settings, "{}")
	return org, nil
}

func (s *PostgresStore) ListOrganizations(ctx context.Context, plan string) ([]Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations`
	args := []any{}
	if strings.TrimSpace(plan) != "" {
		query += ` WHERE plan=$1`
		args = append(args, plan)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", translate(err))
	}
	defer rows.Close()

	items := make([]Organization, 0)
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		items = append(items, org)
	}
	return items, rows.Err()
}

// CreateOrganization inserts the organization and makes ownerID its owner.
func (s *PostgresStore) CreateOrganization(ctx context.Context, org Organization, ownerID string) (Organization, error) {
	if org.ID == "" {
		org.ID = util.NewID()
	}
	var created Organization
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO organizations (id, name, slug, plan, billing_email, features, settings)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+organizationColumns,
			org.ID,
			org.Name,
			org.Slug,
			org.Plan,
			org.BillingEmail,
			jsonArg(org.Features, "{}"),
			jsonArg(org.Settings, "{}"),
		)
		inserted, err := scanOrganization(row)
		if err != nil {
			return fmt.Errorf("insert organization: %w", translate(err))
		}
		if strings.TrimSpace(ownerID) != "" {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO organization_members (organization_id, user_id, role)
				VALUES ($1, $2, 'owner')
			`, inserted.ID, ownerID); err != nil {
				return fmt.Errorf("insert organization owner: %w", translate(err))
			}
		}
		created = inserted
		return nil
	})
	if err != nil {
		return Organization{}, err
	}
	return created, nil
}

func (s *PostgresStore) GetOrganization(ctx context.Context, id string) (Organization, error) {
	org, err := scanOrganization(s.db.QueryRowContext(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id=$1`, id))
	if err != nil {
		return Organization{}, fmt.Errorf("get organization: %w", translate(err))
	}
	return org, nil
}

func (s *PostgresStore) ListOrganizationMembers(ctx context.Context, organizationID string) ([]OrganizationMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT om.organization_id, om.user_id, om.role, COALESCE(p.email, ''), COALESCE(p.full_name, ''), om.joined_at
		FROM organization_members om
		LEFT JOIN profiles p ON p.id = om.user_id
		WHERE om.organization_id=$1
		ORDER BY om.joined_at ASC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list organization members: %w", translate(err))
	}
	defer rows.Close()

	items := make([]OrganizationMember, 0)
	for rows.Next() {
		var member OrganizationMember
		if err := rows.Scan(&member.OrganizationID, &member.UserID, &member.Role, &member.Email, &member.FullName, &member.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan organization member: %w", err)
		}
		items = append(items, member)
	}
	return items, rows.Err()
}

// OrganizationRole returns the member's role, or ErrNotFound for non-members.
func (s *PostgresStore) OrganizationRole(ctx context.Context, organizationID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM organization_members WHERE organization_id=$1 AND user_id=$2
	`, organizationID, userID).Scan(&role)
	if err != nil {
		return "", fmt.Errorf("read organization role: %w", translate(err))
	}
	return role, nil
}

// UpdateOrganization writes only the fields set on patch. An empty patch
// returns the current row.
func (s *PostgresStore) UpdateOrganization(ctx context.Context, id string, patch OrganizationPatch) (Organization, error) {
	var b updateBuilder
	if patch.Name != nil {
		b.set("name", *patch.Name)
	}
	if patch.Plan != nil {
		b.set("plan", *patch.Plan)
	}
	if patch.MaxUsers != nil {
		b.set("max_users", *patch.MaxUsers)
	}
	if patch.MaxDocuments != nil {
		b.set("max_documents", *patch.MaxDocuments)
	}
	if patch.MaxStorageGB != nil {
		b.set("max_storage_gb", *patch.MaxStorageGB)
	}
	if patch.Features != nil {
		b.set("features", jsonArg(*patch.Features, "{}"))
	}
	if patch.Settings != nil {
		b.set("settings", jsonArg(*patch.Settings, "{}"))
	}
	if patch.BillingEmail != nil {
		b.set("billing_email", *patch.BillingEmail)
	}
	if patch.SubscriptionStatus != nil {
		b.set("subscription_status", *patch.SubscriptionStatus)
	}
	if b.empty() {
		return s.GetOrganization(ctx, id)
	}

	query, args := b.statement("organizations", id, organizationColumns)
	org, err := scanOrganization(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return Organization{}, fmt.Errorf("update organization: %w", translate(err))
	}
	return org, nil
}

// DeleteOrganization removes the organization; teams, members, workflows and
// documents go with it through ON DELETE CASCADE.
func (s *PostgresStore) DeleteOrganization(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM organizations WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", translate(err))
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}
