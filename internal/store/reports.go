package store

import (
	"context"
	"fmt"
)

// OrganizationAnalytics aggregates document, member and approval counts for
// one organization.
func (s *PostgresStore) OrganizationAnalytics(ctx context.Context, organizationID string) (Analytics, error) {
	var out Analytics
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_archived)
		FROM documents
		WHERE organization_id=$1
	`, organizationID).Scan(&out.TotalDocuments, &out.ArchivedDocuments)
	if err != nil {
		return Analytics{}, fmt.Errorf("count documents: %w", translate(err))
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM organization_members WHERE organization_id=$1
	`, organizationID).Scan(&out.ActiveUsers)
	if err != nil {
		return Analytics{}, fmt.Errorf("count members: %w", translate(err))
	}

	out.PendingApprovals, err = s.PendingApprovalCount(ctx, organizationID)
	if err != nil {
		return Analytics{}, err
	}

	out.DocumentsByType, err = s.countDocumentsBy(ctx, "document_type", organizationID)
	if err != nil {
		return Analytics{}, err
	}
	out.DocumentsByStatus, err = s.countDocumentsBy(ctx, "status", organizationID)
	if err != nil {
		return Analytics{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name,
			(SELECT COUNT(*) FROM team_members tm WHERE tm.team_id = t.id),
			(SELECT COUNT(*) FROM documents d WHERE d.team_id = t.id)
		FROM teams t
		WHERE t.organization_id=$1
		ORDER BY t.name ASC
	`, organizationID)
	if err != nil {
		return Analytics{}, fmt.Errorf("team statistics: %w", translate(err))
	}
	defer rows.Close()
	out.TeamStatistics = make([]TeamStatistic, 0)
	for rows.Next() {
		var stat TeamStatistic
		if err := rows.Scan(&stat.TeamID, &stat.TeamName, &stat.MemberCount, &stat.DocumentCount); err != nil {
			return Analytics{}, fmt.Errorf("scan team statistic: %w", err)
		}
		out.TeamStatistics = append(out.TeamStatistics, stat)
	}
	return out, rows.Err()
}

// countDocumentsBy groups on a fixed column name supplied by this package.
func (s *PostgresStore) countDocumentsBy(ctx context.Context, column, organizationID string) ([]CountByKey, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %[1]s, COUNT(*)
		FROM documents
		WHERE organization_id=$1
		GROUP BY %[1]s
		ORDER BY COUNT(*) DESC, %[1]s ASC
	`, column), organizationID)
	if err != nil {
		return nil, fmt.Errorf("count documents by %s: %w", column, translate(err))
	}
	defer rows.Close()

	items := make([]CountByKey, 0)
	for rows.Next() {
		var item CountByKey
		if err := rows.Scan(&item.Key, &item.Count); err != nil {
			return nil, fmt.Errorf("scan %s count: %w", column, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
