package app

import (
	"context"
	"net/http"
	"testing"

	"legalease/api/internal/store"
)

func TestPatchOrganizationOnlyWritesAllowedFields(t *testing.T) {
	var got store.OrganizationPatch
	fs := &fakeStore{updateOrgFn: func(_ context.Context, id string, patch store.OrganizationPatch) (store.Organization, error) {
		got = patch
		return store.Organization{ID: id, Name: *patch.Name}, nil
	}}
	server, _ := newTestServer(testConfig(), fs, Options{})

	rr := doJSON(t, server, http.MethodPatch, "/api/organizations/org-1", map[string]any{
		"name":       "Acme Legal",
		"max_users":  25,
		"id":         "org-evil",
		"slug":       "taken",
		"created_at": "1999-01-01T00:00:00Z",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.Name == nil || *got.Name != "Acme Legal" || got.MaxUsers == nil || *got.MaxUsers != 25 {
		t.Fatalf("allowed fields missing from patch %+v", got)
	}
	if got.Plan != nil || got.Features != nil || got.BillingEmail != nil {
		t.Fatalf("unexpected fields in patch %+v", got)
	}
}

func TestPatchOrganizationRejectsEmptyName(t *testing.T) {
	server, _ := newTestServer(testConfig(), &fakeStore{}, Options{})

	rr := doJSON(t, server, http.MethodPatch, "/api/organizations/org-1", map[string]any{"name": "  "})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateOrganizationValidatesSlug(t *testing.T) {
	var owner string
	fs := &fakeStore{createOrgFn: func(_ context.Context, org store.Organization, ownerID string) (store.Organization, error) {
		owner = ownerID
		org.ID = "org-1"
		return org, nil
	}}
	server, _ := newTestServer(testConfig(), fs, Options{})

	rr := doJSON(t, server, http.MethodPost, "/api/organizations", map[string]any{"name": "Acme", "slug": "Not A Slug!"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad slug, got %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodPost, "/api/organizations", map[string]any{"name": "Acme", "slug": "acme-legal", "owner_id": "user-1"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	org, _ := decodeResponse(t, rr)["organization"].(map[string]any)
	if org["plan"] != "starter" || owner != "user-1" {
		t.Fatalf("unexpected organization %v owner %q", org, owner)
	}

	fs.createOrgFn = func(context.Context, store.Organization, string) (store.Organization, error) {
		return store.Organization{}, store.ErrConflict
	}
	rr = doJSON(t, server, http.MethodPost, "/api/organizations", map[string]any{"name": "Acme", "slug": "acme-legal"})
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "SLUG_TAKEN" {
		t.Fatalf("expected 409 SLUG_TAKEN, got %d", rr.Code)
	}
}

func TestAddTeamMemberTwiceConflicts(t *testing.T) {
	var roles []string
	fs := &fakeStore{addTeamMemberFn: func(_ context.Context, member store.TeamMember) (store.TeamMember, error) {
		roles = append(roles, member.Role)
		if len(roles) > 1 {
			return store.TeamMember{}, store.ErrConflict
		}
		return member, nil
	}}
	server, _ := newTestServer(testConfig(), fs, Options{})

	rr := doJSON(t, server, http.MethodPost, "/api/teams/team-1/members", map[string]any{"user_id": "user-2", "role": "overlord"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodPost, "/api/teams/team-1/members", map[string]any{"user_id": "user-2", "role": "lead"})
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "ALREADY_MEMBER" {
		t.Fatalf("expected 409 ALREADY_MEMBER, got %d", rr.Code)
	}
	if roles[0] != "member" || roles[1] != "lead" {
		t.Fatalf("expected normalized roles, got %v", roles)
	}
}

func TestTeamRoutesNotFound(t *testing.T) {
	fs := &fakeStore{getTeamFn: func(context.Context, string) (store.Team, error) {
		return store.Team{}, store.ErrNotFound
	}}
	server, _ := newTestServer(testConfig(), fs, Options{})

	rr := doJSON(t, server, http.MethodGet, "/api/teams/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	rr = doJSON(t, server, http.MethodDelete, "/api/teams/missing/members?user_id=u", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for member removal, got %d", rr.Code)
	}
}

func TestAnalyticsRequiresOrganization(t *testing.T) {
	server, _ := newTestServer(testConfig(), &fakeStore{}, Options{})

	rr := doJSON(t, server, http.MethodGet, "/api/reports/analytics", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	rr = doJSON(t, server, http.MethodGet, "/api/reports/analytics?organization_id=org-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
