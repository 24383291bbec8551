package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"legalease/api/internal/auth"
	"legalease/api/internal/logger"
	"legalease/api/internal/search"
	"legalease/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(s.withAuth(http.HandlerFunc(s.handle)))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			slog.ErrorContext(ctx, "readiness check failed", "check", "database", "error", err)
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error"}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "convert":
		if len(parts) == 2 && r.Method == http.MethodPost {
			s.handleConvert(w, r)
			return
		}
	case "credits":
		s.handleCredits(w, r, parts)
		return
	case "upload":
		if len(parts) == 2 && r.Method == http.MethodPost {
			s.handleUpload(w, r)
			return
		}
	case "documents":
		s.handleDocuments(w, r, parts)
		return
	case "archive":
		s.handleArchive(w, r, parts)
		return
	case "search":
		if len(parts) == 2 && r.Method == http.MethodGet {
			s.handleSearch(w, r)
			return
		}
	case "workflows":
		s.handleWorkflows(w, r, parts)
		return
	case "approvals":
		s.handleApprovals(w, r, parts)
		return
	case "organizations":
		s.handleOrganizations(w, r, parts)
		return
	case "reports":
		if len(parts) == 3 && parts[2] == "analytics" && r.Method == http.MethodGet {
			analytics, err := s.service.Analytics(r.Context(), r.URL.Query().Get("organization_id"))
			if err != nil {
				writeFailure(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"analytics": analytics})
			return
		}
	case "teams":
		s.handleTeams(w, r, parts)
		return
	case "templates":
		s.handleTemplates(w, r, parts)
		return
	case "branding":
		s.handleBranding(w, r, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleConvert(w http.ResponseWriter, r *http.Request) {
	var input ConvertInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.Convert(r.Context(), input)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleCredits(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 && r.Method == http.MethodGet {
		view, err := s.service.Credits(r.Context(), r.URL.Query().Get("userId"))
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if len(parts) == 3 && parts[2] == "grant" && r.Method == http.MethodPost {
		if !s.service.ValidAdminKey(strings.TrimSpace(r.Header.Get("X-Admin-Key"))) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		var input GrantCreditsInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		profile, err := s.service.GrantCredits(r.Context(), input)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "profile": profile})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, parts []string) {
	query := r.URL.Query()

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			docs, err := s.service.ListDocuments(r.Context(), query.Get("userId"))
			if err != nil {
				writeFailure(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
			return
		case http.MethodPost:
			var input CreateDocumentInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			doc, err := s.service.CreateDocument(r.Context(), input)
			if err != nil {
				writeFailure(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"success": true, "document": doc})
			return
		case http.MethodDelete:
			var body struct {
				DocumentID string `json:"documentId"`
				UserID     string `json:"userId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.DeleteDocument(r.Context(), body.DocumentID, body.UserID); err != nil {
				writeFailure(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}

	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	documentID := parts[2]
	ctx := logger.WithLogFields(r.Context(), logger.LogFields{DocumentID: &documentID})
	r = r.WithContext(ctx)

	if len(parts) == 3 && r.Method == http.MethodGet {
		doc, err := s.service.GetDocument(ctx, documentID, query.Get("userId"))
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"document": doc})
		return
	}

	if len(parts) == 3 && r.Method == http.MethodDelete {
		if err := s.service.DeleteDocument(ctx, documentID, query.Get("userId")); err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	if len(parts) == 4 && parts[3] == "versions" && r.Method == http.MethodGet {
		view, err := s.service.DocumentVersions(ctx, documentID, query.Get("userId"), queryInt(query.Get("limit"), 50))
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if len(parts) == 6 && parts[3] == "versions" && parts[5] == "restore" && r.Method == http.MethodPost {
		var body struct {
			UserID string `json:"userId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.RestoreVersion(ctx, documentID, parts[4], body.UserID)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"document":      result.Document,
			"restoredFrom":  result.RestoredFrom,
			"changedFields": result.ChangedFields,
		})
		return
	}

	if len(parts) == 4 && parts[3] == "export" && r.Method == http.MethodGet {
		result, err := s.service.ExportDocument(ctx, documentID, query.Get("userId"), query.Get("templateId"), query.Get("format"))
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleArchive(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 && r.Method == http.MethodGet {
		query := r.URL.Query()
		docs, err := s.service.ListArchive(r.Context(), store.ArchiveFilter{
			OrganizationID: strings.TrimSpace(query.Get("organization_id")),
			ArchivedBy:     strings.TrimSpace(query.Get("archived_by")),
			Limit:          queryInt(query.Get("limit"), defaultArchiveLimit),
		})
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost {
		var input ArchiveInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		doc, err := s.service.Archive(r.Context(), input)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "document": doc})
		return
	}

	if len(parts) == 4 && parts[3] == "recall" && r.Method == http.MethodPost {
		var input RecallInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		doc, err := s.service.Recall(r.Context(), parts[2], input)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "document": doc, "message": "Document recalled"})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	filter, err := searchFilterFromQuery(r.URL.Query())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	resp, err := s.service.Search(r.Context(), filter)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleWorkflows(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 && r.Method == http.MethodGet {
		query := r.URL.Query()
		isActive, err := queryBool(query.Get("is_active"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "is_active must be true or false", nil)
			return
		}
		workflows, err := s.service.ListWorkflows(r.Context(), query.Get("organization_id"), isActive)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"workflows": workflows})
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost {
		var input CreateWorkflowInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		wf, err := s.service.CreateWorkflow(r.Context(), input)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "workflow": wf})
		return
	}

	if len(parts) == 3 && r.Method == http.MethodGet {
		wf, err := s.service.GetWorkflow(r.Context(), parts[2])
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"workflow": wf})
		return
	}

	if len(parts) == 3 && r.Method == http.MethodDelete {
		if err := s.service.DeleteWorkflow(r.Context(), parts[2]); err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleApprovals(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 && r.Method == http.MethodGet {
		query := r.URL.Query()
		approvals, err := s.service.ListApprovals(r.Context(), store.ApprovalFilter{
			DocumentID: strings.TrimSpace(query.Get("document_id")),
			ApproverID: strings.TrimSpace(query.Get("approver_id")),
			Status:     strings.TrimSpace(query.Get("status")),
		})
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"approvals": approvals})
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost {
		var input RequestApprovalInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.RequestApproval(r.Context(), input)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
		return
	}

	if len(parts) == 3 && r.Method == http.MethodGet {
		approval, err := s.service.GetApproval(r.Context(), parts[2])
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"approval": approval})
		return
	}

	if len(parts) == 4 && parts[3] == "approve" && r.Method == http.MethodPost {
		var input ApproveInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.Approve(r.Context(), parts[2], input)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if len(parts) == 4 && parts[3] == "reject" && r.Method == http.MethodPost {
		var input RejectInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.Reject(r.Context(), parts[2], input)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleOrganizations(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 && r.Method == http.MethodGet {
		orgs, err := s.service.ListOrganizations(r.Context(), r.URL.Query().Get("plan"))
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost {
		var input CreateOrganizationInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		org, err := s.service.CreateOrganization(r.Context(), input)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"organization": org})
		return
	}

	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	organizationID := parts[2]
	ctx := logger.WithLogFields(r.Context(), logger.LogFields{OrganizationID: &organizationID})
	r = r.WithContext(ctx)

	switch r.Method {
	case http.MethodGet:
		detail, err := s.service.GetOrganization(ctx, organizationID)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"organization": detail})
		return
	case http.MethodPatch:
		var patch store.OrganizationPatch
		if err := decodeBody(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		org, err := s.service.UpdateOrganization(ctx, organizationID, patch)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"organization": org})
		return
	case http.MethodDelete:
		if err := s.service.DeleteOrganization(ctx, organizationID); err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTeams(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 && r.Method == http.MethodGet {
		teams, err := s.service.ListTeams(r.Context(), r.URL.Query().Get("organization_id"))
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost {
		var input CreateTeamInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		team, err := s.service.CreateTeam(r.Context(), input)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"team": team})
		return
	}

	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	teamID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			team, err := s.service.GetTeam(r.Context(), teamID)
			if err != nil {
				writeFailure(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"team": team})
			return
		case http.MethodPatch:
			var patch store.TeamPatch
			if err := decodeBody(r, &patch); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			team, err := s.service.UpdateTeam(r.Context(), teamID, patch)
			if err != nil {
				writeFailure(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"team": team})
			return
		case http.MethodDelete:
			if err := s.service.DeleteTeam(r.Context(), teamID); err != nil {
				writeFailure(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}

	if len(parts) == 4 && parts[3] == "members" {
		switch r.Method {
		case http.MethodGet:
			members, err := s.service.ListTeamMembers(r.Context(), teamID)
			if err != nil {
				writeFailure(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"members": members})
			return
		case http.MethodPost:
			var input AddTeamMemberInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			member, err := s.service.AddTeamMember(r.Context(), teamID, input)
			if err != nil {
				writeFailure(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"member": member})
			return
		case http.MethodDelete:
			if err := s.service.RemoveTeamMember(r.Context(), teamID, r.URL.Query().Get("user_id")); err != nil {
				writeFailure(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTemplates(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		templates, err := s.service.ListTemplates(r.Context(), query.Get("userId"), query.Get("includePublic") == "true")
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
		return
	case http.MethodPost:
		var input CreateTemplateInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		tpl, err := s.service.CreateTemplate(r.Context(), input)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"template": tpl})
		return
	case http.MethodPut:
		var input UpdateTemplateInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		tpl, err := s.service.UpdateTemplate(r.Context(), input)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"template": tpl})
		return
	case http.MethodDelete:
		var body struct {
			TemplateID string `json:"templateId"`
			UserID     string `json:"userId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.DeleteTemplate(r.Context(), body.TemplateID, body.UserID); err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleBranding(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 3 || parts[2] != "logo" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.handleLogoUpload(w, r)
		return
	case http.MethodGet:
		logos, err := s.service.ListLogos(r.Context(), r.URL.Query().Get("userId"))
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"logos": logos})
		return
	case http.MethodDelete:
		var body struct {
			FileName string `json:"fileName"`
			UserID   string `json:"userId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.DeleteLogo(r.Context(), body.FileName, body.UserID); err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// withAuth verifies the bearer token when a JWT secret is configured. Health
// checks, preflight requests and the admin-key credit grant skip it.
func (s *HTTPServer) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.service.AuthEnabled() || !requiresToken(r) {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := s.service.Authenticate(bearerToken(r))
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrExpiredToken) {
				slog.WarnContext(r.Context(), "token verification failed", "error", err)
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		userID := claims.UserID()
		ctx := withCaller(r.Context(), userID)
		ctx = logger.WithLogFields(ctx, logger.LogFields{UserID: &userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requiresToken(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return false
	}
	switch r.URL.Path {
	case "/api/health", "/api/ready", "/api/credits/grant":
		return false
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := logger.WithLogFields(r.Context(), logger.LogFields{RequestID: requestID, Component: "http"})
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		slog.InfoContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Admin-Key")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// writeFailure maps err to a response. Unexpected errors are logged with the
// request's fields before the generic 500 goes out.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError && code == "SERVER_ERROR" {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// queryBool returns nil for an absent value.
func queryBool(raw string) (*bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, store.ErrConflict) {
		return http.StatusConflict, "CONFLICT", "Conflict", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// searchFilterFromQuery reads every supported filter. Dates accept RFC 3339
// or YYYY-MM-DD; tags may repeat or be comma separated.
func searchFilterFromQuery(query url.Values) (search.Filter, error) {
	filter := search.Filter{
		Text:           query.Get("q"),
		UserID:         strings.TrimSpace(query.Get("userId")),
		OrganizationID: strings.TrimSpace(query.Get("organization_id")),
		DocumentType:   strings.TrimSpace(query.Get("document_type")),
		Status:         strings.TrimSpace(query.Get("status")),
		Limit:          queryInt(query.Get("limit"), search.DefaultLimit),
	}
	if offset, err := strconv.Atoi(strings.TrimSpace(query.Get("offset"))); err == nil && offset > 0 {
		filter.Offset = offset
	}

	archived, err := queryBool(query.Get("is_archived"))
	if err != nil {
		return search.Filter{}, validationError("is_archived must be true or false")
	}
	filter.IsArchived = archived

	if filter.CreatedAfter, err = queryTime(query.Get("created_after"), false); err != nil {
		return search.Filter{}, validationError("created_after must be a date")
	}
	if filter.CreatedBefore, err = queryTime(query.Get("created_before"), true); err != nil {
		return search.Filter{}, validationError("created_before must be a date")
	}

	for _, raw := range query["tags"] {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}
	return filter, nil
}

// queryTime accepts RFC3339 or a bare date. With endOfDay a bare date
// covers the whole day, so it works as an inclusive upper bound.
func queryTime(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return &parsed, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q", raw)
	}
	if endOfDay {
		parsed = parsed.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &parsed, nil
}
