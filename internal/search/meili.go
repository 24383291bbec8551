package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxDocuments = "legalease_documents"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the index. An
// unreachable server leaves the client unhealthy; the health loop picks it
// up once it comes back.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		slog.Warn("meilisearch unavailable", "component", "search", "url", url, "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

var (
	filterableAttributes = []string{"userId", "organizationId", "documentType", "status", "isArchived", "tags", "createdAt"}
	searchableAttributes = []string{"title", "summary", "converted", "content"}
	sortableAttributes   = []string{"createdAt"}
)

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxDocuments,
		PrimaryKey: "id",
	}); err != nil {
		slog.Debug("meilisearch create index (may already exist)", "index", idxDocuments, "error", err)
	}

	index := m.client.Index(idxDocuments)
	filterable := make([]interface{}, len(filterableAttributes))
	for i, v := range filterableAttributes {
		filterable[i] = v
	}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		slog.Warn("meilisearch update filterable attributes", "index", idxDocuments, "error", err)
	}
	searchable := append([]string(nil), searchableAttributes...)
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		slog.Warn("meilisearch update searchable attributes", "index", idxDocuments, "error", err)
	}
	sortable := append([]string(nil), sortableAttributes...)
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		slog.Warn("meilisearch update sortable attributes", "index", idxDocuments, "error", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				slog.Info("meilisearch recovered, reconfiguring index", "component", "search")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// meiliFilter translates f into Meilisearch filter clauses, which are ANDed.
func meiliFilter(f Filter) []string {
	var filters []string
	if f.UserID != "" {
		filters = append(filters, fmt.Sprintf("userId = %q", f.UserID))
	}
	if f.OrganizationID != "" {
		filters = append(filters, fmt.Sprintf("organizationId = %q", f.OrganizationID))
	}
	if f.DocumentType != "" {
		filters = append(filters, fmt.Sprintf("documentType = %q", f.DocumentType))
	}
	if f.Status != "" {
		filters = append(filters, fmt.Sprintf("status = %q", f.Status))
	}
	if f.IsArchived != nil {
		filters = append(filters, fmt.Sprintf("isArchived = %t", *f.IsArchived))
	}
	if f.CreatedAfter != nil {
		filters = append(filters, fmt.Sprintf("createdAt >= %d", f.CreatedAfter.Unix()))
	}
	if f.CreatedBefore != nil {
		filters = append(filters, fmt.Sprintf("createdAt <= %d", f.CreatedBefore.Unix()))
	}
	for _, tag := range f.Tags {
		filters = append(filters, fmt.Sprintf("tags = %q", tag))
	}
	return filters
}

func (m *Meili) Search(_ context.Context, f Filter) ([]Hit, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	f = f.normalized()

	sr := &meili.SearchRequest{
		IndexUID: idxDocuments,
		Query:    f.Text,
		Limit:    int64(f.Limit),
		Offset:   int64(f.Offset),
		Sort:     []string{"createdAt:desc"},
	}
	if filters := meiliFilter(f); len(filters) > 0 {
		sr.Filter = filters
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	hits := make([]Hit, 0)
	total := 0
	for _, result := range resp.Results {
		total += int(result.EstimatedTotalHits)
		for _, hit := range result.Hits {
			hits = append(hits, hitToResult(hit))
		}
	}
	return hits, total, nil
}

func hitToResult(hit meili.Hit) Hit {
	h := Hit{
		ID:             decodeString(hit, "id"),
		UserID:         decodeString(hit, "userId"),
		OrganizationID: decodeString(hit, "organizationId"),
		Title:          decodeString(hit, "title"),
		DocumentType:   decodeString(hit, "documentType"),
		Status:         decodeString(hit, "status"),
		Tags:           decodeTags(hit["tags"]),
	}
	h.Snippet = snippet(decodeString(hit, "summary"), decodeString(hit, "converted"), decodeString(hit, "content"))
	if raw, ok := hit["isArchived"]; ok {
		_ = json.Unmarshal(raw, &h.IsArchived)
	}
	if raw, ok := hit["createdAt"]; ok {
		var unix int64
		if err := json.Unmarshal(raw, &unix); err == nil {
			h.CreatedAt = time.Unix(unix, 0).UTC()
		}
	}
	return h
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}

func decodeTags(raw []byte) []string {
	tags := []string{}
	if len(raw) == 0 {
		return tags
	}
	_ = json.Unmarshal(raw, &tags)
	if tags == nil {
		return []string{}
	}
	return tags
}

// IndexDocument adds or updates a document in the search index.
func (m *Meili) IndexDocument(doc DocumentRecord) error {
	_, err := m.client.Index(idxDocuments).AddDocuments([]DocumentRecord{doc}, nil)
	return err
}

// DeleteDocument removes a document from the search index.
func (m *Meili) DeleteDocument(id string) error {
	_, err := m.client.Index(idxDocuments).DeleteDocument(id, nil)
	return err
}

// IndexDocuments bulk-indexes documents.
func (m *Meili) IndexDocuments(documents []DocumentRecord) error {
	if len(documents) == 0 {
		return nil
	}
	_, err := m.client.Index(idxDocuments).AddDocuments(documents, nil)
	return err
}
