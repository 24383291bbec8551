package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"legalease/api/internal/credits"
	"legalease/api/internal/llm"
	"legalease/api/internal/logger"
	"legalease/api/internal/store"
	"legalease/api/internal/versions"
)

type ConvertInput struct {
	Text           string `json:"text"`
	ConversionType string `json:"conversionType"`
	UserID         string `json:"userId"`
	DocumentID     string `json:"documentId"`
	Title          string `json:"title"`
}

type ConvertResult struct {
	Success          bool          `json:"success"`
	ConvertedText    string        `json:"convertedText"`
	KeyTerms         []llm.KeyTerm `json:"keyTerms"`
	Summary          *string       `json:"summary"`
	CreditsUsed      int           `json:"creditsUsed"`
	RemainingCredits int           `json:"remainingCredits"`
	DocumentID       string        `json:"documentId"`
}

func insufficientCredits(needed, available int) *DomainError {
	return domainError(http.StatusPaymentRequired, "INSUFFICIENT_CREDITS", "Insufficient credits", map[string]any{
		"creditsNeeded": needed,
		"available":     available,
	})
}

// Convert runs a conversion and charges for it. Nothing is charged or
// written unless the model call succeeds, and the charge, the ledger entry
// and the document land in one transaction.
func (s *Service) Convert(ctx context.Context, input ConvertInput) (*ConvertResult, error) {
	conversionType := strings.TrimSpace(input.ConversionType)
	text := input.Text
	documentID := strings.TrimSpace(input.DocumentID)
	if conversionType == "" || (strings.TrimSpace(text) == "" && documentID == "") {
		return nil, validationError("Missing required fields")
	}
	if !credits.ValidConversionType(conversionType) {
		return nil, validationError("Invalid conversion type")
	}
	userID, err := s.actingUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{UserID: &userID, Component: "app.convert"})

	if err := s.checkRateLimit(ctx, "convert:"+userID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if documentID != "" {
		doc, err := s.ownedDocument(ctx, documentID, userID)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			text = doc.OriginalContent
		}
		if title == "" {
			title = doc.Title
		}
		ctx = logger.WithLogFields(ctx, logger.LogFields{DocumentID: &documentID})
	}
	if strings.TrimSpace(text) == "" {
		return nil, validationError("Document has no content to convert")
	}
	if title == "" {
		title = defaultConversionTitle(conversionType)
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("User not found")
	}
	if err != nil {
		return nil, err
	}

	textLength := utf8.RuneCountInString(text)
	cost := credits.Estimate(textLength, conversionType)
	if profile.CreditsBalance < cost {
		return nil, insufficientCredits(cost, profile.CreditsBalance)
	}

	if s.llm == nil {
		return nil, domainError(http.StatusServiceUnavailable, "AI_UNAVAILABLE", "Conversion service is not configured", nil)
	}

	converted, keyTerms, summary, err := s.runConversion(ctx, conversionType, text)
	if err != nil {
		return nil, s.upstreamError(ctx, err)
	}

	var keyTermsJSON json.RawMessage
	if keyTerms != nil {
		keyTermsJSON, err = json.Marshal(keyTerms)
		if err != nil {
			return nil, fmt.Errorf("encode key terms: %w", err)
		}
	}
	metadata, _ := json.Marshal(map[string]any{
		"text_length":     textLength,
		"conversion_type": conversionType,
		"model":           modelName(s.llm),
	})

	receipt, err := s.store.CommitConversion(ctx, store.ConversionCommit{
		UserID:         userID,
		DocumentID:     documentID,
		Title:          title,
		ConversionType: conversionType,
		OriginalText:   text,
		ConvertedText:  converted,
		KeyTerms:       keyTermsJSON,
		Summary:        summary,
		Cost:           cost,
		Description:    fmt.Sprintf("LegalEase: %s conversion", conversionType),
		Metadata:       metadata,
	})
	switch {
	case errors.Is(err, store.ErrInsufficientCredits):
		available := 0
		if current, perr := s.store.GetProfile(ctx, userID); perr == nil {
			available = current.CreditsBalance
		}
		return nil, insufficientCredits(cost, available)
	case errors.Is(err, store.ErrNotFound):
		if documentID != "" {
			return nil, notFound("Document not found")
		}
		return nil, notFound("User not found")
	case err != nil:
		return nil, err
	}

	s.afterDocumentWrite(ctx, receipt.Document, userID, fmt.Sprintf("Convert %s", conversionType))
	slog.InfoContext(ctx, "conversion committed",
		"document_id", receipt.Document.ID,
		"conversion_type", conversionType,
		"credits_used", cost,
		"remaining_credits", receipt.RemainingCredits,
	)

	return &ConvertResult{
		Success:          true,
		ConvertedText:    converted,
		KeyTerms:         keyTerms,
		Summary:          summary,
		CreditsUsed:      cost,
		RemainingCredits: receipt.RemainingCredits,
		DocumentID:       receipt.Document.ID,
	}, nil
}

// runConversion calls the model under the AI timeout. For legal-to-plain the
// key terms and summary run alongside the rewrite; any failure fails all.
func (s *Service) runConversion(ctx context.Context, conversionType, text string) (string, []llm.KeyTerm, *string, error) {
	if s.cfg.AITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AITimeout)
		defer cancel()
	}

	var (
		converted string
		keyTerms  []llm.KeyTerm
		summary   *string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if conversionType == credits.LegalToPlain {
			converted, err = s.llm.LegalToPlain(gctx, text)
		} else {
			converted, err = s.llm.PlainToLegal(gctx, text)
		}
		return err
	})
	if conversionType == credits.LegalToPlain {
		g.Go(func() error {
			terms, err := s.llm.ExtractKeyTerms(gctx, text)
			if err != nil {
				return err
			}
			keyTerms = terms
			return nil
		})
		g.Go(func() error {
			value, err := s.llm.Summarize(gctx, text)
			if err != nil {
				return err
			}
			summary = &value
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", nil, nil, err
	}
	return converted, keyTerms, summary, nil
}

// upstreamError logs the provider failure and returns a generic client error.
func (s *Service) upstreamError(ctx context.Context, err error) error {
	slog.ErrorContext(ctx, "language model call failed", "error", err)
	if errors.Is(err, llm.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return domainError(http.StatusGatewayTimeout, "AI_TIMEOUT", "Conversion timed out", nil)
	}
	return domainError(http.StatusBadGateway, "AI_ERROR", "Conversion failed", nil)
}

func (s *Service) checkRateLimit(ctx context.Context, scope string) error {
	if s.limiter == nil {
		return nil
	}
	decision, err := s.limiter.Allow(ctx, scope)
	if err != nil {
		slog.WarnContext(ctx, "rate limiter unavailable, allowing request", "error", err)
		return nil
	}
	if !decision.Allowed {
		return domainError(http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", map[string]any{
			"limit":             decision.Limit,
			"retryAfterSeconds": int(decision.RetryAfter.Seconds()),
		})
	}
	return nil
}

// afterDocumentWrite records a version and refreshes the search index. Both
// are best effort.
func (s *Service) afterDocumentWrite(ctx context.Context, doc store.Document, author, message string) {
	if s.versions != nil {
		_, err := s.versions.Record(doc.ID, versions.Content{
			Title:          doc.Title,
			Original:       doc.OriginalContent,
			Converted:      derefString(doc.ConvertedContent),
			ConversionType: derefString(doc.ConversionType),
		}, author, message)
		if err != nil {
			slog.WarnContext(ctx, "record document version failed", "document_id", doc.ID, "error", err)
		}
	}
	if s.search != nil {
		s.search.IndexDocument(ctx, doc)
	}
}

func defaultConversionTitle(conversionType string) string {
	if conversionType == credits.LegalToPlain {
		return "Legal to Plain Conversion"
	}
	return "Plain to Legal Conversion"
}

func modelName(converter llm.Converter) string {
	if named, ok := converter.(interface{ Model() string }); ok {
		return named.Model()
	}
	return ""
}

type CreditsView struct {
	Balance      int                       `json:"balance"`
	Transactions []store.CreditTransaction `json:"transactions"`
}

func (s *Service) Credits(ctx context.Context, userID string) (*CreditsView, error) {
	userID, err := s.actingUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("User not found")
	}
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListCreditTransactions(ctx, userID, 50)
	if err != nil {
		return nil, err
	}
	return &CreditsView{Balance: profile.CreditsBalance, Transactions: txs}, nil
}

type GrantCreditsInput struct {
	UserID      string `json:"userId"`
	Amount      int    `json:"amount"`
	Description string `json:"description"`
	ReferenceID string `json:"referenceId"`
}

// GrantCredits adds purchased credits. Callers authenticate with the admin
// key, checked by the HTTP layer.
func (s *Service) GrantCredits(ctx context.Context, input GrantCreditsInput) (*store.Profile, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, validationError("userId is required")
	}
	if input.Amount <= 0 {
		return nil, validationError("amount must be positive")
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = fmt.Sprintf("LegalEase: %d credits purchased", input.Amount)
	}
	profile, err := s.store.GrantCredits(ctx, store.CreditGrant{
		UserID:      userID,
		Amount:      input.Amount,
		Description: description,
		ReferenceID: strings.TrimSpace(input.ReferenceID),
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, domainError(http.StatusConflict, "DUPLICATE_REFERENCE", "Credits for this reference were already granted", nil)
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidReference) {
		return nil, notFound("User not found")
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
