package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"legalease/api/internal/email"
	"legalease/api/internal/store"
)

type WorkflowStepInput struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	ApproverID   string `json:"approver_id"`
	ApproverRole string `json:"approver_role"`
	IsRequired   *bool  `json:"is_required"`
}

type CreateWorkflowInput struct {
	OrganizationID    string              `json:"organization_id"`
	Name              string              `json:"name"`
	Description       string              `json:"description"`
	TriggerConditions json.RawMessage     `json:"trigger_conditions"`
	Steps             []WorkflowStepInput `json:"steps"`
	CreatedBy         string              `json:"created_by"`
}

func (s *Service) ListWorkflows(ctx context.Context, organizationID string, isActive *bool) ([]store.Workflow, error) {
	return s.store.ListWorkflows(ctx, strings.TrimSpace(organizationID), isActive)
}

// CreateWorkflow inserts the workflow with its steps. Only the step fields
// named on WorkflowStepInput are accepted.
func (s *Service) CreateWorkflow(ctx context.Context, input CreateWorkflowInput) (*store.Workflow, error) {
	organizationID := strings.TrimSpace(input.OrganizationID)
	name := strings.TrimSpace(input.Name)
	if organizationID == "" || name == "" {
		return nil, validationError("Organization ID and name are required")
	}
	if err := s.requireOrgAdmin(ctx, organizationID); err != nil {
		return nil, err
	}

	wf := store.Workflow{
		OrganizationID:    organizationID,
		Name:              name,
		Description:       strings.TrimSpace(input.Description),
		TriggerConditions: input.TriggerConditions,
		Steps:             make([]store.WorkflowStep, 0, len(input.Steps)),
	}
	createdBy := strings.TrimSpace(input.CreatedBy)
	if caller, ok := callerFrom(ctx); ok {
		createdBy = caller
	}
	if createdBy != "" {
		wf.CreatedBy = &createdBy
	}

	for i, in := range input.Steps {
		stepName := strings.TrimSpace(in.Name)
		if stepName == "" {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Every step needs a name", map[string]any{"step": i + 1})
		}
		step := store.WorkflowStep{
			Name:         stepName,
			Description:  strings.TrimSpace(in.Description),
			ApproverRole: strings.TrimSpace(in.ApproverRole),
			IsRequired:   in.IsRequired == nil || *in.IsRequired,
		}
		if approver := strings.TrimSpace(in.ApproverID); approver != "" {
			step.ApproverID = &approver
		}
		wf.Steps = append(wf.Steps, step)
	}

	created, err := s.store.CreateWorkflow(ctx, wf)
	if errors.Is(err, store.ErrInvalidReference) {
		return nil, validationError("organization or approver does not exist")
	}
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Service) GetWorkflow(ctx context.Context, workflowID string) (*store.Workflow, error) {
	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Workflow not found")
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

func (s *Service) DeleteWorkflow(ctx context.Context, workflowID string) error {
	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Workflow not found")
	}
	if err != nil {
		return err
	}
	if err := s.requireOrgAdmin(ctx, wf.OrganizationID); err != nil {
		return err
	}
	err = s.store.DeleteWorkflow(ctx, workflowID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Workflow not found")
	}
	return err
}

type RequestApprovalInput struct {
	DocumentID  string `json:"document_id"`
	WorkflowID  string `json:"workflow_id"`
	StepOrder   int    `json:"step_order"`
	RequestedBy string `json:"requested_by"`
}

// ApprovalView is an approval with the step that follows it, if any. Steps
// never advance on their own; callers request the next one explicitly.
type ApprovalView struct {
	Success  bool                `json:"success"`
	Approval store.Approval      `json:"approval"`
	Signoff  *store.Signoff      `json:"signoff,omitempty"`
	NextStep *store.WorkflowStep `json:"nextStep"`
	Message  string              `json:"message,omitempty"`
}

func (s *Service) RequestApproval(ctx context.Context, input RequestApprovalInput) (*ApprovalView, error) {
	documentID := strings.TrimSpace(input.DocumentID)
	workflowID := strings.TrimSpace(input.WorkflowID)
	if documentID == "" || workflowID == "" {
		return nil, validationError("document_id and workflow_id are required")
	}
	stepOrder := input.StepOrder
	if stepOrder <= 0 {
		stepOrder = 1
	}

	doc, err := s.store.GetDocument(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Document not found")
	}
	if err != nil {
		return nil, err
	}
	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Workflow not found")
	}
	if err != nil {
		return nil, err
	}
	if !wf.IsActive {
		return nil, domainError(http.StatusConflict, "WORKFLOW_INACTIVE", "Workflow is not active", nil)
	}
	step, ok := stepAt(wf, stepOrder)
	if !ok {
		return nil, notFound("Workflow step not found")
	}

	approval := store.Approval{
		DocumentID: doc.ID,
		WorkflowID: wf.ID,
		StepID:     step.ID,
		StepOrder:  step.StepOrder,
		ApproverID: step.ApproverID,
	}
	requestedBy := strings.TrimSpace(input.RequestedBy)
	if caller, ok := callerFrom(ctx); ok {
		requestedBy = caller
	}
	if requestedBy != "" {
		approval.RequestedBy = &requestedBy
	}

	created, err := s.store.CreateApproval(ctx, approval)
	if errors.Is(err, store.ErrConflict) {
		return nil, domainError(http.StatusConflict, "APPROVAL_PENDING", "An approval for this step is already pending", nil)
	}
	if err != nil {
		return nil, err
	}

	if step.ApproverID != nil {
		s.notifyApprover(ctx, *step.ApproverID, doc, wf, step)
	}
	return &ApprovalView{Success: true, Approval: created, NextStep: nextStep(wf, step.StepOrder)}, nil
}

func (s *Service) ListApprovals(ctx context.Context, filter store.ApprovalFilter) ([]store.Approval, error) {
	return s.store.ListApprovals(ctx, filter)
}

func (s *Service) GetApproval(ctx context.Context, approvalID string) (*store.Approval, error) {
	approval, err := s.store.GetApproval(ctx, approvalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Approval not found")
	}
	if err != nil {
		return nil, err
	}
	return &approval, nil
}

type ApproveInput struct {
	Comments string `json:"comments"`
	SignerID string `json:"signer_id"`
}

type RejectInput struct {
	RejectionReason string `json:"rejection_reason"`
	Comments        string `json:"comments"`
	SignerID        string `json:"signer_id"`
}

func (s *Service) Approve(ctx context.Context, approvalID string, input ApproveInput) (*ApprovalView, error) {
	current, err := s.pendingApprovalFor(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	signer := s.signerFor(ctx, input.SignerID, current)

	decided, err := s.decide(ctx, store.ApprovalDecision{
		ApprovalID: approvalID,
		Status:     store.ApprovalApproved,
		SignerID:   signer,
		Comments:   strings.TrimSpace(input.Comments),
	})
	if err != nil {
		return nil, err
	}

	view := &ApprovalView{Success: true, Approval: decided, Message: "Document approved"}
	if len(decided.Signoffs) > 0 {
		view.Signoff = &decided.Signoffs[0]
	}
	if wf, err := s.store.GetWorkflow(ctx, decided.WorkflowID); err == nil {
		view.NextStep = nextStep(wf, decided.StepOrder)
	}
	return view, nil
}

// Reject needs a reason. The signoff note is the reason followed by any
// comments, and the document owner hears about it when mail is configured.
func (s *Service) Reject(ctx context.Context, approvalID string, input RejectInput) (*ApprovalView, error) {
	reason := strings.TrimSpace(input.RejectionReason)
	if reason == "" {
		return nil, validationError("Rejection reason is required")
	}
	current, err := s.pendingApprovalFor(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	comments := strings.TrimSpace(input.Comments)
	note := reason
	if comments != "" {
		note += "\n\n" + comments
	}

	decided, err := s.decide(ctx, store.ApprovalDecision{
		ApprovalID:      approvalID,
		Status:          store.ApprovalRejected,
		SignerID:        s.signerFor(ctx, input.SignerID, current),
		Comments:        note,
		RejectionReason: reason,
	})
	if err != nil {
		return nil, err
	}

	s.notifyOwnerOfRejection(ctx, decided, reason, comments)
	view := &ApprovalView{Success: true, Approval: decided, Message: "Document rejected"}
	if len(decided.Signoffs) > 0 {
		view.Signoff = &decided.Signoffs[0]
	}
	return view, nil
}

// pendingApprovalFor loads the approval and, for verified callers, checks
// that the caller is the step's approver.
func (s *Service) pendingApprovalFor(ctx context.Context, approvalID string) (store.Approval, error) {
	approval, err := s.store.GetApproval(ctx, approvalID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Approval{}, notFound("Approval not found")
	}
	if err != nil {
		return store.Approval{}, err
	}
	if approval.Status != store.ApprovalPending {
		return store.Approval{}, alreadyDecided(approval.Status)
	}
	if caller, ok := callerFrom(ctx); ok && approval.ApproverID != nil && *approval.ApproverID != caller {
		return store.Approval{}, forbidden("Only the assigned approver can decide this step")
	}
	return approval, nil
}

func (s *Service) signerFor(ctx context.Context, supplied string, approval store.Approval) string {
	if caller, ok := callerFrom(ctx); ok {
		return caller
	}
	if supplied = strings.TrimSpace(supplied); supplied != "" {
		return supplied
	}
	return derefString(approval.ApproverID)
}

func (s *Service) decide(ctx context.Context, decision store.ApprovalDecision) (store.Approval, error) {
	decided, err := s.store.DecideApproval(ctx, decision)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return store.Approval{}, notFound("Approval not found")
	case errors.Is(err, store.ErrAlreadyDecided):
		return store.Approval{}, alreadyDecided("")
	case err != nil:
		return store.Approval{}, err
	}
	slog.InfoContext(ctx, "approval decided", "approval_id", decided.ID, "status", decided.Status)
	return decided, nil
}

func alreadyDecided(status string) error {
	var details any
	if status != "" {
		details = map[string]any{"status": status}
	}
	return domainError(http.StatusConflict, "ALREADY_DECIDED", "Approval has already been decided", details)
}

func stepAt(wf store.Workflow, order int) (store.WorkflowStep, bool) {
	for _, step := range wf.Steps {
		if step.StepOrder == order {
			return step, true
		}
	}
	return store.WorkflowStep{}, false
}

// nextStep returns the step after order, or nil at the end of the workflow.
func nextStep(wf store.Workflow, order int) *store.WorkflowStep {
	step, ok := stepAt(wf, order+1)
	if !ok {
		return nil
	}
	return &step
}

func (s *Service) notifyApprover(ctx context.Context, approverID string, doc store.Document, wf store.Workflow, step store.WorkflowStep) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	approver, err := s.store.GetProfile(ctx, approverID)
	if err != nil || approver.Email == "" {
		slog.WarnContext(ctx, "approval request not mailed", "approver_id", approverID, "error", err)
		return
	}
	err = s.mailer.SendApprovalRequested(approver.Email, email.ApprovalRequestedData{
		ApproverName:  displayName(approver),
		DocumentTitle: doc.Title,
		WorkflowName:  wf.Name,
		StepName:      step.Name,
	})
	if err != nil {
		slog.ErrorContext(ctx, "send approval request failed", "approver_id", approverID, "error", err)
	}
}

func (s *Service) notifyOwnerOfRejection(ctx context.Context, approval store.Approval, reason, comments string) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	doc, err := s.store.GetDocument(ctx, approval.DocumentID)
	if err != nil {
		slog.WarnContext(ctx, "rejection not mailed", "document_id", approval.DocumentID, "error", err)
		return
	}
	owner, err := s.store.GetProfile(ctx, doc.UserID)
	if err != nil || owner.Email == "" {
		slog.WarnContext(ctx, "rejection not mailed", "user_id", doc.UserID, "error", err)
		return
	}
	data := email.ApprovalRejectedData{
		OwnerName:       displayName(owner),
		DocumentTitle:   doc.Title,
		RejectionReason: reason,
		Comments:        comments,
	}
	if wf, err := s.store.GetWorkflow(ctx, approval.WorkflowID); err == nil {
		data.WorkflowName = wf.Name
		if step, ok := stepAt(wf, approval.StepOrder); ok {
			data.StepName = step.Name
		}
	}
	if err := s.mailer.SendApprovalRejected(owner.Email, data); err != nil {
		slog.ErrorContext(ctx, "send rejection failed", "user_id", doc.UserID, "error", err)
	}
}

func displayName(profile store.Profile) string {
	if name := strings.TrimSpace(profile.FullName); name != "" {
		return name
	}
	return profile.Email
}
