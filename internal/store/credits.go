package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"legalease/api/internal/util"
)

const profileColumns = `id, email, full_name, credits_balance, created_at, updated_at`

func scanProfile(row rowScanner) (Profile, error) {
	var profile Profile
	err := row.Scan(&profile.ID, &profile.Email, &profile.FullName, &profile.CreditsBalance, &profile.CreatedAt, &profile.UpdatedAt)
	return profile, err
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	profile, err := scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1`, userID))
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", translate(err))
	}
	return profile, nil
}

func (s *PostgresStore) ListCreditTransactions(ctx context.Context, userID string, limit int) ([]CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, type, description, app_name, reference_id, metadata, created_at
		FROM credit_transactions
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list credit transactions: %w", translate(err))
	}
	defer rows.Close()

	items := make([]CreditTransaction, 0)
	for rows.Next() {
		var item CreditTransaction
		var metadata []byte
		if err := rows.Scan(&item.ID, &item.UserID, &item.Amount, &item.Type, &item.Description, &item.AppName, &item.ReferenceID, &metadata, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credit transaction: %w", err)
		}
		item.Metadata = rawJSON(metadata, "{}")
		items = append(items, item)
	}
	return items, rows.Err()
}

// CommitConversion charges the user and persists the converted document in
// one transaction. The decrement is conditional on the balance covering the
// cost, so concurrent conversions cannot overdraw it.
func (s *PostgresStore) CommitConversion(ctx context.Context, commit ConversionCommit) (ConversionReceipt, error) {
	var receipt ConversionReceipt
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		remaining, err := debitCredits(ctx, tx, commit.UserID, commit.Cost)
		if err != nil {
			return err
		}
		receipt.RemainingCredits = remaining

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO credit_transactions (id, user_id, amount, type, description, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, util.NewID(), commit.UserID, -commit.Cost, TransactionUsage, commit.Description, jsonArg(commit.Metadata, "{}")); err != nil {
			return fmt.Errorf("insert credit transaction: %w", translate(err))
		}

		conversionType := commit.ConversionType
		converted := commit.ConvertedText
		if commit.DocumentID == "" {
			doc, err := insertDocument(ctx, tx, Document{
				UserID:           commit.UserID,
				Title:            commit.Title,
				OriginalContent:  commit.OriginalText,
				ConvertedContent: &converted,
				ConversionType:   &conversionType,
				Status:           StatusCompleted,
				CreditsUsed:      commit.Cost,
				KeyTerms:         commit.KeyTerms,
				Summary:          commit.Summary,
				WordCount:        util.CountWords(commit.OriginalText),
				CharacterCount:   util.CountCharacters(commit.OriginalText),
			})
			if err != nil {
				return err
			}
			receipt.Document = doc
			return nil
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE documents
			SET original_content=$3, converted_content=$4, conversion_type=$5, status=$6,
				credits_used=credits_used+$7, key_terms=$8, summary=$9, updated_at=NOW()
			WHERE id=$1 AND user_id=$2
			RETURNING `+documentColumns,
			commit.DocumentID,
			commit.UserID,
			commit.OriginalText,
			converted,
			conversionType,
			StatusCompleted,
			commit.Cost,
			nullableJSON(commit.KeyTerms),
			ptrArg(commit.Summary),
		)
		doc, err := scanDocument(row)
		if err != nil {
			return fmt.Errorf("update converted document: %w", translate(err))
		}
		receipt.Document = doc
		return nil
	})
	if err != nil {
		return ConversionReceipt{}, err
	}
	return receipt, nil
}

func debitCredits(ctx context.Context, tx *sql.Tx, userID string, cost int) (int, error) {
	var remaining int
	err := tx.QueryRowContext(ctx, `
		UPDATE profiles
		SET credits_balance = credits_balance - $2, updated_at=NOW()
		WHERE id=$1 AND credits_balance >= $2
		RETURNING credits_balance
	`, userID, cost).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("debit credits: %w", translate(err))
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM profiles WHERE id=$1)`, userID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check profile: %w", translate(err))
	}
	if !exists {
		return 0, ErrNotFound
	}
	return 0, ErrInsufficientCredits
}

// GrantCredits adds purchased credits. A repeated ReferenceID yields
// ErrConflict so payment webhooks can be replayed safely.
func (s *PostgresStore) GrantCredits(ctx context.Context, grant CreditGrant) (Profile, error) {
	var profile Profile
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO credit_transactions (id, user_id, amount, type, description, reference_id)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, util.NewID(), grant.UserID, grant.Amount, TransactionPurchase, grant.Description, nullIfEmpty(grant.ReferenceID)); err != nil {
			return fmt.Errorf("insert credit grant: %w", translate(err))
		}

		updated, err := scanProfile(tx.QueryRowContext(ctx, `
			UPDATE profiles
			SET credits_balance = credits_balance + $2, updated_at=NOW()
			WHERE id=$1
			RETURNING `+profileColumns,
			grant.UserID, grant.Amount,
		))
		if err != nil {
			return fmt.Errorf("credit profile: %w", translate(err))
		}
		profile = updated
		return nil
	})
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}
