package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"legalease/api/internal/store"
)

func strPtr(v string) *string { return &v }

func twoStepWorkflow() store.Workflow {
	return store.Workflow{
		ID:             "wf-1",
		OrganizationID: "org-1",
		Name:           "Contract review",
		IsActive:       true,
		Steps: []store.WorkflowStep{
			{ID: "step-1", StepOrder: 1, Name: "Legal", ApproverID: strPtr("approver-1")},
			{ID: "step-2", StepOrder: 2, Name: "Finance", ApproverID: strPtr("approver-2")},
		},
	}
}

func pendingApproval() store.Approval {
	return store.Approval{
		ID:         "appr-1",
		DocumentID: "doc-1",
		WorkflowID: "wf-1",
		StepID:     "step-1",
		StepOrder:  1,
		ApproverID: strPtr("approver-1"),
		Status:     store.ApprovalPending,
	}
}

func TestCreateWorkflowAllowListsSteps(t *testing.T) {
	server, _ := newTestServer(testConfig(), &fakeStore{}, Options{})

	rr := doJSON(t, server, http.MethodPost, "/api/workflows", map[string]any{
		"organization_id": "org-1",
		"name":            "Review",
		"steps": []map[string]any{
			{"name": "Legal", "approver_id": "u-1", "workflow_id": "other", "step_order": 9},
			{"name": "Finance", "is_required": false},
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	wf, _ := decodeResponse(t, rr)["workflow"].(map[string]any)
	steps, _ := wf["steps"].([]any)
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %v", wf)
	}
	first := steps[0].(map[string]any)
	second := steps[1].(map[string]any)
	if first["step_order"] != float64(1) || first["is_required"] != true || second["is_required"] != false {
		t.Fatalf("unexpected steps %v", steps)
	}

	rr = doJSON(t, server, http.MethodPost, "/api/workflows", map[string]any{"name": "No org"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without organization, got %d", rr.Code)
	}
}

func TestRequestApprovalBindsStepApproverAndMails(t *testing.T) {
	var created store.Approval
	fs := &fakeStore{
		getDocumentFn: func(_ context.Context, id string) (store.Document, error) {
			return store.Document{ID: id, UserID: "owner-1", Title: "MSA"}, nil
		},
		getWorkflowFn: func(context.Context, string) (store.Workflow, error) { return twoStepWorkflow(), nil },
		getProfileFn: func(_ context.Context, id string) (store.Profile, error) {
			return store.Profile{ID: id, Email: id + "@example.com"}, nil
		},
		createApprovalFn: func(_ context.Context, a store.Approval) (store.Approval, error) {
			created = a
			a.ID = "appr-1"
			a.Status = store.ApprovalPending
			return a, nil
		},
	}
	mailer := &fakeMailer{}
	server, _ := newTestServer(testConfig(), fs, Options{Mailer: mailer})

	rr := doJSON(t, server, http.MethodPost, "/api/approvals", map[string]any{"document_id": "doc-1", "workflow_id": "wf-1", "requested_by": "owner-1"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if created.StepOrder != 1 || created.StepID != "step-1" || created.ApproverID == nil || *created.ApproverID != "approver-1" {
		t.Fatalf("unexpected approval %+v", created)
	}
	next, _ := decodeResponse(t, rr)["nextStep"].(map[string]any)
	if next["name"] != "Finance" {
		t.Fatalf("expected next step Finance, got %v", next)
	}
	if len(mailer.requested) != 1 || mailer.requested[0] != "approver-1@example.com" {
		t.Fatalf("expected approver mailed, got %v", mailer.requested)
	}

	rr = doJSON(t, server, http.MethodPost, "/api/approvals", map[string]any{"document_id": "doc-1", "workflow_id": "wf-1", "step_order": 7})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown step, got %d", rr.Code)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	decided := false
	fs := &fakeStore{
		getApprovalFn: func(context.Context, string) (store.Approval, error) { return pendingApproval(), nil },
		decideApprovalFn: func(context.Context, store.ApprovalDecision) (store.Approval, error) {
			decided = true
			return store.Approval{}, nil
		},
	}
	server, _ := newTestServer(testConfig(), fs, Options{})

	rr := doJSON(t, server, http.MethodPost, "/api/approvals/appr-1/reject", map[string]any{"comments": "no"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if msg := decodeResponse(t, rr)["error"]; msg != "Rejection reason is required" {
		t.Fatalf("unexpected message %v", msg)
	}
	if decided {
		t.Fatalf("approval decided without a reason")
	}
}

func TestRejectJoinsReasonAndCommentsAndNotifiesOwner(t *testing.T) {
	var decision store.ApprovalDecision
	now := time.Now()
	fs := &fakeStore{
		getApprovalFn: func(context.Context, string) (store.Approval, error) { return pendingApproval(), nil },
		decideApprovalFn: func(_ context.Context, d store.ApprovalDecision) (store.Approval, error) {
			decision = d
			approval := pendingApproval()
			approval.Status = d.Status
			approval.DecidedAt = &now
			approval.Signoffs = []store.Signoff{{ID: "s-1", ApprovalID: approval.ID, Decision: d.Status, Comments: d.Comments}}
			return approval, nil
		},
		getDocumentFn: func(_ context.Context, id string) (store.Document, error) {
			return store.Document{ID: id, UserID: "owner-1", Title: "MSA"}, nil
		},
		getProfileFn: func(_ context.Context, id string) (store.Profile, error) {
			return store.Profile{ID: id, Email: "owner@example.com", FullName: "Olive Owner"}, nil
		},
		getWorkflowFn: func(context.Context, string) (store.Workflow, error) { return twoStepWorkflow(), nil },
	}
	mailer := &fakeMailer{}
	server, _ := newTestServer(testConfig(), fs, Options{Mailer: mailer})

	rr := doJSON(t, server, http.MethodPost, "/api/approvals/appr-1/reject", map[string]any{
		"rejection_reason": "Missing indemnity cap",
		"comments":         "See clause 9",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	response := decodeResponse(t, rr)
	if response["message"] != "Document rejected" || response["signoff"] == nil {
		t.Fatalf("unexpected response %v", response)
	}
	if decision.Comments != "Missing indemnity cap\n\nSee clause 9" || decision.RejectionReason != "Missing indemnity cap" {
		t.Fatalf("unexpected decision %+v", decision)
	}
	if decision.SignerID != "approver-1" {
		t.Fatalf("expected the step approver as signer, got %q", decision.SignerID)
	}
	if len(mailer.rejected) != 1 || mailer.rejected[0].StepName != "Legal" || mailer.rejected[0].OwnerName != "Olive Owner" {
		t.Fatalf("unexpected rejection mail %+v", mailer.rejected)
	}
}

func TestDecidingTwiceConflicts(t *testing.T) {
	decided := pendingApproval()
	decided.Status = store.ApprovalApproved
	fs := &fakeStore{
		getApprovalFn: func(context.Context, string) (store.Approval, error) { return decided, nil },
	}
	server, _ := newTestServer(testConfig(), fs, Options{})

	rr := doJSON(t, server, http.MethodPost, "/api/approvals/appr-1/approve", map[string]any{"comments": "ok"})
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "ALREADY_DECIDED" {
		t.Fatalf("expected 409 ALREADY_DECIDED, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestConcurrentDecisionLosesWithConflict(t *testing.T) {
	fs := &fakeStore{
		getApprovalFn: func(context.Context, string) (store.Approval, error) { return pendingApproval(), nil },
		decideApprovalFn: func(context.Context, store.ApprovalDecision) (store.Approval, error) {
			return store.Approval{}, store.ErrAlreadyDecided
		},
	}
	server, _ := newTestServer(testConfig(), fs, Options{})

	rr := doJSON(t, server, http.MethodPost, "/api/approvals/appr-1/approve", map[string]any{})
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "ALREADY_DECIDED" {
		t.Fatalf("expected 409 ALREADY_DECIDED, got %d", rr.Code)
	}
}

func TestApproveReturnsNextStep(t *testing.T) {
	fs := &fakeStore{
		getApprovalFn: func(context.Context, string) (store.Approval, error) { return pendingApproval(), nil },
		decideApprovalFn: func(_ context.Context, d store.ApprovalDecision) (store.Approval, error) {
			approval := pendingApproval()
			approval.Status = d.Status
			approval.Signoffs = []store.Signoff{{ID: "s-1", Decision: d.Status, Comments: d.Comments}}
			return approval, nil
		},
		getWorkflowFn: func(context.Context, string) (store.Workflow, error) { return twoStepWorkflow(), nil },
	}
	server, _ := newTestServer(testConfig(), fs, Options{})

	rr := doJSON(t, server, http.MethodPost, "/api/approvals/appr-1/approve", map[string]any{"comments": "fine", "signer_id": "approver-1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	response := decodeResponse(t, rr)
	approval, _ := response["approval"].(map[string]any)
	next, _ := response["nextStep"].(map[string]any)
	if approval["status"] != store.ApprovalApproved || next["step_order"] != float64(2) {
		t.Fatalf("unexpected response %v", response)
	}
}
