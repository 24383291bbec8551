package search

import (
	"context"
	"log/slog"

	"legalease/api/internal/store"
)

const (
	SourceMeilisearch = "meilisearch"
	SourcePostgres    = "postgres"
)

// Service is the facade that tries Meilisearch first and falls back to
// PostgreSQL.
type Service struct {
	meili *Meili
	pg    *PgSearch
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pg *PgSearch) *Service {
	return &Service{meili: meili, pg: pg}
}

func (s *Service) Search(ctx context.Context, f Filter) (Response, error) {
	f = f.normalized()
	resp := Response{Query: f.Text, Limit: f.Limit, Offset: f.Offset}

	if s.meili != nil && s.meili.Healthy() {
		hits, total, err := s.meili.Search(ctx, f)
		if err == nil {
			resp.Results, resp.Total, resp.Source = hits, total, SourceMeilisearch
			return resp, nil
		}
		slog.WarnContext(ctx, "meilisearch failed, falling back to postgres", "error", err)
	}

	hits, total, err := s.pg.Search(ctx, f)
	if err != nil {
		return Response{}, err
	}
	resp.Results, resp.Total, resp.Source = hits, total, SourcePostgres
	return resp, nil
}

// IndexDocument pushes doc to Meilisearch in the background.
func (s *Service) IndexDocument(ctx context.Context, doc store.Document) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RecordFromDocument(doc)
	go func() {
		if err := s.meili.IndexDocument(record); err != nil {
			slog.WarnContext(ctx, "search index document failed", "document_id", record.ID, "error", err)
		}
	}()
}

// DeleteDocument removes a document from the index in the background.
func (s *Service) DeleteDocument(ctx context.Context, id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteDocument(id); err != nil {
			slog.WarnContext(ctx, "search delete document failed", "document_id", id, "error", err)
		}
	}()
}

// ReindexAllFromPG loads every document from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pg == nil {
		return
	}
	records, err := s.pg.LoadAllRecords(ctx)
	if err != nil {
		slog.WarnContext(ctx, "search reindex load failed", "error", err)
		return
	}
	if err := s.meili.IndexDocuments(records); err != nil {
		slog.WarnContext(ctx, "search reindex failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "search reindex complete", "documents", len(records))
}
