package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"legalease/api/internal/rbac"
	"legalease/api/internal/store"
)

type CreateOrganizationInput struct {
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Plan         string          `json:"plan"`
	BillingEmail string          `json:"billing_email"`
	Features     json.RawMessage `json:"features"`
	Settings     json.RawMessage `json:"settings"`
	OwnerID      string          `json:"owner_id"`
}

type OrganizationDetail struct {
	store.Organization
	Members []store.OrganizationMember `json:"members"`
	Teams   []store.Team               `json:"teams"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

func (s *Service) ListOrganizations(ctx context.Context, plan string) ([]store.Organization, error) {
	return s.store.ListOrganizations(ctx, strings.TrimSpace(plan))
}

func (s *Service) CreateOrganization(ctx context.Context, input CreateOrganizationInput) (*store.Organization, error) {
	name := strings.TrimSpace(input.Name)
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if name == "" || slug == "" {
		return nil, validationError("name and slug are required")
	}
	if !slugPattern.MatchString(slug) {
		return nil, validationError("slug may only contain lowercase letters, digits and dashes")
	}
	ownerID := strings.TrimSpace(input.OwnerID)
	if caller, ok := callerFrom(ctx); ok {
		ownerID = caller
	}
	plan := strings.TrimSpace(input.Plan)
	if plan == "" {
		plan = "starter"
	}

	org, err := s.store.CreateOrganization(ctx, store.Organization{
		Name:         name,
		Slug:         slug,
		Plan:         plan,
		BillingEmail: strings.TrimSpace(input.BillingEmail),
		Features:     input.Features,
		Settings:     input.Settings,
	}, ownerID)
	switch {
	case errors.Is(err, store.ErrConflict):
		return nil, domainError(http.StatusConflict, "SLUG_TAKEN", "An organization with this slug already exists", map[string]any{"slug": slug})
	case errors.Is(err, store.ErrInvalidReference):
		return nil, notFound("Owner not found")
	case err != nil:
		return nil, err
	}
	return &org, nil
}

func (s *Service) GetOrganization(ctx context.Context, organizationID string) (*OrganizationDetail, error) {
	org, err := s.store.GetOrganization(ctx, organizationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Organization not found")
	}
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListOrganizationMembers(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	teams, err := s.store.ListTeams(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return &OrganizationDetail{Organization: org, Members: members, Teams: teams}, nil
}

// UpdateOrganization applies a typed patch. Fields outside the patch struct
// never reach the database.
func (s *Service) UpdateOrganization(ctx context.Context, organizationID string, patch store.OrganizationPatch) (*store.Organization, error) {
	if err := s.requireOrgAdmin(ctx, organizationID); err != nil {
		return nil, err
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, validationError("name cannot be empty")
	}
	org, err := s.store.UpdateOrganization(ctx, organizationID, patch)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Organization not found")
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *Service) DeleteOrganization(ctx context.Context, organizationID string) error {
	if err := s.requireOrgAdmin(ctx, organizationID); err != nil {
		return err
	}
	err := s.store.DeleteOrganization(ctx, organizationID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Organization not found")
	}
	return err
}

func (s *Service) Analytics(ctx context.Context, organizationID string) (*store.Analytics, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, validationError("organization_id is required")
	}
	if err := s.requireOrgAction(ctx, organizationID, rbac.ActionRead); err != nil {
		return nil, err
	}
	analytics, err := s.store.OrganizationAnalytics(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return &analytics, nil
}

type CreateTeamInput struct {
	OrganizationID string          `json:"organization_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Specialty      string          `json:"specialty"`
	Color          string          `json:"color"`
	Settings       json.RawMessage `json:"settings"`
	CreatedBy      string          `json:"created_by"`
}

type TeamDetail struct {
	store.Team
	Members []store.TeamMember `json:"members"`
}

func (s *Service) ListTeams(ctx context.Context, organizationID string) ([]store.Team, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, validationError("organization_id is required")
	}
	return s.store.ListTeams(ctx, organizationID)
}

func (s *Service) CreateTeam(ctx context.Context, input CreateTeamInput) (*store.Team, error) {
	organizationID := strings.TrimSpace(input.OrganizationID)
	name := strings.TrimSpace(input.Name)
	if organizationID == "" || name == "" {
		return nil, validationError("organization_id and name are required")
	}
	if err := s.requireOrgAdmin(ctx, organizationID); err != nil {
		return nil, err
	}
	team := store.Team{
		OrganizationID: organizationID,
		Name:           name,
		Description:    strings.TrimSpace(input.Description),
		Specialty:      strings.TrimSpace(input.Specialty),
		Color:          strings.TrimSpace(input.Color),
		Settings:       input.Settings,
	}
	createdBy := strings.TrimSpace(input.CreatedBy)
	if caller, ok := callerFrom(ctx); ok {
		createdBy = caller
	}
	if createdBy != "" {
		team.CreatedBy = &createdBy
	}

	created, err := s.store.CreateTeam(ctx, team)
	if errors.Is(err, store.ErrInvalidReference) {
		return nil, notFound("Organization not found")
	}
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Service) GetTeam(ctx context.Context, teamID string) (*TeamDetail, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Team not found")
	}
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListTeamMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return &TeamDetail{Team: team, Members: members}, nil
}

// teamForAdmin loads a team and checks the caller administers its
// organization.
func (s *Service) teamForAdmin(ctx context.Context, teamID string) (store.Team, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Team{}, notFound("Team not found")
	}
	if err != nil {
		return store.Team{}, err
	}
	if err := s.requireOrgAdmin(ctx, team.OrganizationID); err != nil {
		return store.Team{}, err
	}
	return team, nil
}

func (s *Service) UpdateTeam(ctx context.Context, teamID string, patch store.TeamPatch) (*store.Team, error) {
	if _, err := s.teamForAdmin(ctx, teamID); err != nil {
		return nil, err
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, validationError("name cannot be empty")
	}
	team, err := s.store.UpdateTeam(ctx, teamID, patch)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Team not found")
	}
	if err != nil {
		return nil, err
	}
	return &team, nil
}

func (s *Service) DeleteTeam(ctx context.Context, teamID string) error {
	if _, err := s.teamForAdmin(ctx, teamID); err != nil {
		return err
	}
	err := s.store.DeleteTeam(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Team not found")
	}
	return err
}

func (s *Service) ListTeamMembers(ctx context.Context, teamID string) ([]store.TeamMember, error) {
	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("Team not found")
		}
		return nil, err
	}
	return s.store.ListTeamMembers(ctx, teamID)
}

type AddTeamMemberInput struct {
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
	AddedBy string `json:"added_by"`
}

func (s *Service) AddTeamMember(ctx context.Context, teamID string, input AddTeamMemberInput) (*store.TeamMember, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, validationError("user_id is required")
	}
	if _, err := s.teamForAdmin(ctx, teamID); err != nil {
		return nil, err
	}
	member := store.TeamMember{
		TeamID: teamID,
		UserID: userID,
		Role:   string(rbac.NormalizeTeamRole(input.Role)),
	}
	addedBy := strings.TrimSpace(input.AddedBy)
	if caller, ok := callerFrom(ctx); ok {
		addedBy = caller
	}
	if addedBy != "" {
		member.AddedBy = &addedBy
	}

	added, err := s.store.AddTeamMember(ctx, member)
	switch {
	case errors.Is(err, store.ErrConflict):
		return nil, domainError(http.StatusConflict, "ALREADY_MEMBER", "User is already a member of this team", nil)
	case errors.Is(err, store.ErrInvalidReference):
		return nil, notFound("User not found")
	case err != nil:
		return nil, err
	}
	return &added, nil
}

func (s *Service) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return validationError("user_id is required")
	}
	if _, err := s.teamForAdmin(ctx, teamID); err != nil {
		return err
	}
	err := s.store.RemoveTeamMember(ctx, teamID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Team member not found")
	}
	return err
}
