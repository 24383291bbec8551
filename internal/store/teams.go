package store

import (
	"context"
	"fmt"

	"legalease/api/internal/util"
)

const teamColumns = `id, organization_id, name, description, specialty, color, settings, created_by, created_at, updated_at`

func scanTeam(row rowScanner) (Team, error) {
	var team Team
	var settings []byte
	err := row.Scan(
		&team.ID,
		&team.OrganizationID,
		&team.Name,
		&team.Description,
		&team.Specialty,
		&team.Color,
		&settings,
		&team.CreatedBy,
		&team.CreatedAt,
		&team.UpdatedAt,
	)
	if err != nil {
		return Team{}, err
	}
	team.Settings = rawJSON(settings, "{}")
	return team, nil
}

func (s *PostgresStore) ListTeams(ctx context.Context, organizationID string) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+teamColumns+`
		FROM teams
		WHERE organization_id=$1
		ORDER BY name ASC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", translate(err))
	}
	defer rows.Close()

	items := make([]Team, 0)
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		items = append(items, team)
	}
	return items, rows.Err()
}

func (s *PostgresStore) CreateTeam(ctx context.Context, team Team) (Team, error) {
	if team.ID == "" {
		team.ID = util.NewID()
	}
	if team.Color == "" {
		team.Color = "#1e40af"
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO teams (id, organization_id, name, description, specialty, color, settings, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+teamColumns,
		team.ID,
		team.OrganizationID,
		team.Name,
		team.Description,
		team.Specialty,
		team.Color,
		jsonArg(team.Settings, "{}"),
		ptrArg(team.CreatedBy),
	)
	created, err := scanTeam(row)
	if err != nil {
		return Team{}, fmt.Errorf("insert team: %w", translate(err))
	}
	return created, nil
}

func (s *PostgresStore) GetTeam(ctx context.Context, id string) (Team, error) {
	team, err := scanTeam(s.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id=$1`, id))
	if err != nil {
		return Team{}, fmt.Errorf("get team: %w", translate(err))
	}
	return team, nil
}

// UpdateTeam writes only the fields set on patch.
func (s *PostgresStore) UpdateTeam(ctx context.Context, id string, patch TeamPatch) (Team, error) {
	var b updateBuilder
	if patch.Name != nil {
		b.set("name", *patch.Name)
	}
	if patch.Description != nil {
		b.set("description", *patch.Description)
	}
	if patch.Specialty != nil {
		b.set("specialty", *patch.Specialty)
	}
	if patch.Color != nil {
		b.set("color", *patch.Color)
	}
	if patch.Settings != nil {
		b.set("settings", jsonArg(*patch.Settings, "{}"))
	}
	if b.empty() {
		return s.GetTeam(ctx, id)
	}

	query, args := b.statement("teams", id, teamColumns)
	team, err := scanTeam(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return Team{}, fmt.Errorf("update team: %w", translate(err))
	}
	return team, nil
}

func (s *PostgresStore) DeleteTeam(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM teams WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete team: %w", translate(err))
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListTeamMembers(ctx context.Context, teamID string) ([]TeamMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tm.team_id, tm.user_id, tm.role, tm.added_by, tm.added_at, COALESCE(p.email, ''), COALESCE(p.full_name, '')
		FROM team_members tm
		LEFT JOIN profiles p ON p.id = tm.user_id
		WHERE tm.team_id=$1
		ORDER BY tm.added_at DESC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", translate(err))
	}
	defer rows.Close()

	items := make([]TeamMember, 0)
	for rows.Next() {
		var member TeamMember
		if err := rows.Scan(&member.TeamID, &member.UserID, &member.Role, &member.AddedBy, &member.AddedAt, &member.Email, &member.FullName); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		items = append(items, member)
	}
	return items, rows.Err()
}

// AddTeamMember returns ErrConflict when the user is already on the team.
func (s *PostgresStore) AddTeamMember(ctx context.Context, member TeamMember) (TeamMember, error) {
	var added TeamMember
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO team_members (team_id, user_id, role, added_by)
		VALUES ($1, $2, $3, $4)
		RETURNING team_id, user_id, role, added_by, added_at
	`, member.TeamID, member.UserID, member.Role, ptrArg(member.AddedBy)).Scan(
		&added.TeamID,
		&added.UserID,
		&added.Role,
		&added.AddedBy,
		&added.AddedAt,
	)
	if err != nil {
		return TeamMember{}, fmt.Errorf("insert team member: %w", translate(err))
	}
	return added, nil
}

func (s *PostgresStore) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM team_members WHERE team_id=$1 AND user_id=$2`, teamID, userID)
	if err != nil {
		return fmt.Errorf("remove team member: %w", translate(err))
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}
