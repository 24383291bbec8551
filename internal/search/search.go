package search

import (
	"context"
	"strings"
	"time"

	"legalease/api/internal/store"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Filter is one document search. Every non-empty field narrows the result;
// the predicates are ANDed.
type Filter struct {
	Text           string
	UserID         string
	OrganizationID string
	DocumentType   string
	Status         string
	IsArchived     *bool
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
	Tags           []string
	Limit          int
	Offset         int
}

func (f Filter) normalized() Filter {
	f.Text = strings.TrimSpace(f.Text)
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	tags := make([]string, 0, len(f.Tags))
	for _, tag := range f.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	f.Tags = tags
	return f
}

// Hit is a single search result.
type Hit struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Title          string    `json:"title"`
	Snippet        string    `json:"snippet"`
	DocumentType   string    `json:"document_type"`
	Status         string    `json:"status"`
	IsArchived     bool      `json:"is_archived"`
	Tags           []string  `json:"tags"`
	CreatedAt      time.Time `json:"created_at"`
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Hit  `json:"results"`
	Total   int    `json:"total"`
	Query   string `json:"query"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	Source  string `json:"source"`
}

// Searcher executes a document search.
type Searcher interface {
	Search(ctx context.Context, f Filter) ([]Hit, int, error)
	Healthy() bool
}

// DocumentRecord is the data we index for a document. CreatedAt is a unix
// timestamp so range filters work.
type DocumentRecord struct {
	ID             string   `json:"id"`
	UserID         string   `json:"userId"`
	OrganizationID string   `json:"organizationId"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	Converted      string   `json:"converted"`
	Summary        string   `json:"summary"`
	DocumentType   string   `json:"documentType"`
	Status         string   `json:"status"`
	IsArchived     bool     `json:"isArchived"`
	Tags           []string `json:"tags"`
	CreatedAt      int64    `json:"createdAt"`
}

func RecordFromDocument(doc store.Document) DocumentRecord {
	record := DocumentRecord{
		ID:           doc.ID,
		UserID:       doc.UserID,
		Title:        doc.Title,
		Content:      doc.OriginalContent,
		DocumentType: doc.DocumentType,
		Status:       doc.Status,
		IsArchived:   doc.IsArchived,
		Tags:         doc.Tags,
		CreatedAt:    doc.CreatedAt.Unix(),
	}
	if doc.OrganizationID != nil {
		record.OrganizationID = *doc.OrganizationID
	}
	if doc.ConvertedContent != nil {
		record.Converted = *doc.ConvertedContent
	}
	if doc.Summary != nil {
		record.Summary = *doc.Summary
	}
	if record.Tags == nil {
		record.Tags = []string{}
	}
	return record
}

func snippet(values ...string) string {
	for _, value := range values {
		value = strings.Join(strings.Fields(value), " ")
		if value == "" {
			continue
		}
		runes := []rune(value)
		if len(runes) > 200 {
			return string(runes[:200]) + "…"
		}
		return value
	}
	return ""
}
