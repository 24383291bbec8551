package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"legalease/api/internal/util"
)

const approvalColumns = `id, document_id, workflow_id, step_id, step_order, approver_id, status,
	requested_by, rejection_reason, decided_at, created_at, updated_at`

func scanApproval(row rowScanner) (Approval, error) {
	var approval Approval
	err := row.Scan(
		&approval.ID,
		&approval.DocumentID,
		&approval.WorkflowID,
		&approval.StepID,
		&approval.StepOrder,
		&approval.ApproverID,
		&approval.Status,
		&approval.RequestedBy,
		&approval.RejectionReason,
		&approval.DecidedAt,
		&approval.CreatedAt,
		&approval.UpdatedAt,
	)
	return approval, err
}

// CreateApproval opens a pending approval for one workflow step. A second
// pending approval for the same document and step yields ErrConflict.
func (s *PostgresStore) CreateApproval(ctx context.Context, approval Approval) (Approval, error) {
	if approval.ID == "" {
		approval.ID = util.NewID()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO document_approvals (id, document_id, workflow_id, step_id, step_order, approver_id, status, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+approvalColumns,
		approval.ID,
		approval.DocumentID,
		approval.WorkflowID,
		approval.StepID,
		approval.StepOrder,
		ptrArg(approval.ApproverID),
		ApprovalPending,
		ptrArg(approval.RequestedBy),
	)
	created, err := scanApproval(row)
	if err != nil {
		return Approval{}, fmt.Errorf("insert approval: %w", translate(err))
	}
	return created, nil
}

func (s *PostgresStore) GetApproval(ctx context.Context, id string) (Approval, error) {
	approval, err := scanApproval(s.db.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM document_approvals WHERE id=$1`, id))
	if err != nil {
		return Approval{}, fmt.Errorf("get approval: %w", translate(err))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, approval_id, signer_id, decision, comments, signed_at
		FROM approval_signoffs
		WHERE approval_id=$1
		ORDER BY signed_at ASC
	`, id)
	if err != nil {
		return Approval{}, fmt.Errorf("list signoffs: %w", translate(err))
	}
	defer rows.Close()
	for rows.Next() {
		var signoff Signoff
		if err := rows.Scan(&signoff.ID, &signoff.ApprovalID, &signoff.SignerID, &signoff.Decision, &signoff.Comments, &signoff.SignedAt); err != nil {
			return Approval{}, fmt.Errorf("scan signoff: %w", err)
		}
		approval.Signoffs = append(approval.Signoffs, signoff)
	}
	return approval, rows.Err()
}

func (s *PostgresStore) ListApprovals(ctx context.Context, filter ApprovalFilter) ([]Approval, error) {
	where := []string{}
	args := []any{}
	if strings.TrimSpace(filter.DocumentID) != "" {
		args = append(args, filter.DocumentID)
		where = append(where, fmt.Sprintf("document_id=$%d", len(args)))
	}
	if strings.TrimSpace(filter.ApproverID) != "" {
		args = append(args, filter.ApproverID)
		where = append(where, fmt.Sprintf("approver_id=$%d", len(args)))
	}
	if strings.TrimSpace(filter.Status) != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	query := `SELECT ` + approvalColumns + ` FROM document_approvals`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", translate(err))
	}
	defer rows.Close()

	items := make([]Approval, 0)
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		items = append(items, approval)
	}
	return items, rows.Err()
}

// DecideApproval moves a pending approval to its terminal status and appends
// the signoff. Decided approvals yield ErrAlreadyDecided and stay unchanged.
func (s *PostgresStore) DecideApproval(ctx context.Context, decision ApprovalDecision) (Approval, error) {
	var decided Approval
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			UPDATE document_approvals
			SET status=$2, rejection_reason=$3, decided_at=NOW(), updated_at=NOW()
			WHERE id=$1 AND status=$4
			RETURNING `+approvalColumns,
			decision.ApprovalID,
			decision.Status,
			nullIfEmpty(decision.RejectionReason),
			ApprovalPending,
		)
		approval, err := scanApproval(row)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM document_approvals WHERE id=$1)`, decision.ApprovalID).Scan(&exists); err != nil {
				return fmt.Errorf("check approval: %w", translate(err))
			}
			if !exists {
				return ErrNotFound
			}
			return ErrAlreadyDecided
		}
		if err != nil {
			return fmt.Errorf("decide approval: %w", translate(err))
		}

		var signoff Signoff
		err = tx.QueryRowContext(ctx, `
			INSERT INTO approval_signoffs (id, approval_id, signer_id, decision, comments)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, approval_id, signer_id, decision, comments, signed_at
		`, util.NewID(), approval.ID, nullIfEmpty(decision.SignerID), decision.Status, decision.Comments).Scan(
			&signoff.ID,
			&signoff.ApprovalID,
			&signoff.SignerID,
			&signoff.Decision,
			&signoff.Comments,
			&signoff.SignedAt,
		)
		if err != nil {
			return fmt.Errorf("insert signoff: %w", translate(err))
		}
		approval.Signoffs = []Signoff{signoff}
		decided = approval
		return nil
	})
	if err != nil {
		return Approval{}, err
	}
	return decided, nil
}

func (s *PostgresStore) PendingApprovalCount(ctx context.Context, organizationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM document_approvals da
		JOIN approval_workflows w ON w.id = da.workflow_id
		WHERE w.organization_id=$1 AND da.status=$2
	`, organizationID, ApprovalPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending approvals: %w", translate(err))
	}
	return count, nil
}
