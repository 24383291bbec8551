package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"legalease/api/internal/util"
)

const workflowColumns = `id, organization_id, name, description, trigger_conditions, is_active, created_by, created_at, updated_at`

const stepColumns = `id, workflow_id, step_order, name, description, approver_id, approver_role, is_required, created_at`

func scanWorkflow(row rowScanner) (Workflow, error) {
	var wf Workflow
	var trigger []byte
	err := row.Scan(
		&wf.ID,
		&wf.OrganizationID,
		&wf.Name,
		&wf.Description,
		&trigger,
		&wf.IsActive,
		&wf.CreatedBy,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return Workflow{}, err
	}
	wf.TriggerConditions = rawJSON(trigger, "{}")
	wf.Steps = []WorkflowStep{}
	return wf, nil
}

func scanStep(row rowScanner) (WorkflowStep, error) {
	var step WorkflowStep
	err := row.Scan(
		&step.ID,
		&step.WorkflowID,
		&step.StepOrder,
		&step.Name,
		&step.Description,
		&step.ApproverID,
		&step.ApproverRole,
		&step.IsRequired,
		&step.CreatedAt,
	)
	return step, err
}

// ListWorkflows returns the organization's workflows with their steps in
// step order. isActive nil means any.
func (s *PostgresStore) ListWorkflows(ctx context.Context, organizationID string, isActive *bool) ([]Workflow, error) {
	where := []string{}
	args := []any{}
	if strings.TrimSpace(organizationID) != "" {
		args = append(args, organizationID)
		where = append(where, fmt.Sprintf("organization_id=$%d", len(args)))
	}
	if isActive != nil {
		args = append(args, *isActive)
		where = append(where, fmt.Sprintf("is_active=$%d", len(args)))
	}
	query := `SELECT ` + workflowColumns + ` FROM approval_workflows`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", translate(err))
	}
	workflows := make([]Workflow, 0)
	index := map[string]int{}
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		index[wf.ID] = len(workflows)
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(workflows) == 0 {
		return workflows, nil
	}

	ids := make([]string, 0, len(workflows))
	for _, wf := range workflows {
		ids = append(ids, wf.ID)
	}
	stepRows, err := s.db.QueryContext(ctx, `
		SELECT `+stepColumns+`
		FROM workflow_steps
		WHERE workflow_id = ANY($1)
		ORDER BY workflow_id, step_order ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list workflow steps: %w", translate(err))
	}
	defer stepRows.Close()
	for stepRows.Next() {
		step, err := scanStep(stepRows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow step: %w", err)
		}
		if i, ok := index[step.WorkflowID]; ok {
			workflows[i].Steps = append(workflows[i].Steps, step)
		}
	}
	return workflows, stepRows.Err()
}

// CreateWorkflow inserts the workflow and its steps together. Step order is
// the position in wf.Steps, starting at 1.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf Workflow) (Workflow, error) {
	if wf.ID == "" {
		wf.ID = util.NewID()
	}
	var created Workflow
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO approval_workflows (id, organization_id, name, description, trigger_conditions, is_active, created_by)
			VALUES ($1, $2, $3, $4, $5, TRUE, $6)
			RETURNING `+workflowColumns,
			wf.ID,
			wf.OrganizationID,
			wf.Name,
			wf.Description,
			jsonArg(wf.TriggerConditions, "{}"),
			ptrArg(wf.CreatedBy),
		)
		inserted, err := scanWorkflow(row)
		if err != nil {
			return fmt.Errorf("insert workflow: %w", translate(err))
		}

		for i, step := range wf.Steps {
			stepRow := tx.QueryRowContext(ctx, `
				INSERT INTO workflow_steps (id, workflow_id, step_order, name, description, approver_id, approver_role, is_required)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING `+stepColumns,
				util.NewID(),
				inserted.ID,
				i+1,
				step.Name,
				step.Description,
				ptrArg(step.ApproverID),
				step.ApproverRole,
				step.IsRequired,
			)
			insertedStep, err := scanStep(stepRow)
			if err != nil {
				return fmt.Errorf("insert workflow step %d: %w", i+1, translate(err))
			}
			inserted.Steps = append(inserted.Steps, insertedStep)
		}
		created = inserted
		return nil
	})
	if err != nil {
		return Workflow{}, err
	}
	return created, nil
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (Workflow, error) {
	wf, err := scanWorkflow(s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM approval_workflows WHERE id=$1`, id))
	if err != nil {
		return Workflow{}, fmt.Errorf("get workflow: %w", translate(err))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stepColumns+`
		FROM workflow_steps
		WHERE workflow_id=$1
		ORDER BY step_order ASC
	`, id)
	if err != nil {
		return Workflow{}, fmt.Errorf("list workflow steps: %w", translate(err))
	}
	defer rows.Close()
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return Workflow{}, fmt.Errorf("scan workflow step: %w", err)
		}
		wf.Steps = append(wf.Steps, step)
	}
	return wf, rows.Err()
}

func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM approval_workflows WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", translate(err))
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}
