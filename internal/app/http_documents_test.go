package app

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"legalease/api/internal/store"
	"legalease/api/internal/versions"
)

func multipartRequest(t *testing.T, path, field, fileName, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileName != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+fileName+`"`)
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func ownedDocStore(ownerID string) *fakeStore {
	key := ownerID + "/1700000000000-lease.pdf"
	return &fakeStore{
		getDocumentFn: func(_ context.Context, id string) (store.Document, error) {
			return store.Document{ID: id, UserID: ownerID, Title: "Lease", OriginalContent: "original", OriginalFile: &key}, nil
		},
	}
}

func TestDeleteDocumentByOtherUserLeavesEverything(t *testing.T) {
	fs := ownedDocStore("owner-1")
	deleted := false
	fs.deleteDocumentFn = func(context.Context, string) error {
		deleted = true
		return nil
	}
	objects := &fakeObjects{}
	index := &fakeIndex{}
	history := &fakeVersions{}
	server, _ := newTestServer(testConfig(), fs, Options{Objects: objects, Search: index, Versions: history})

	rr := doJSON(t, server, http.MethodDelete, "/api/documents", map[string]any{"documentId": "doc-1", "userId": "intruder"})

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if msg := decodeResponse(t, rr)["error"]; msg != "Unauthorized" {
		t.Fatalf("expected Unauthorized, got %v", msg)
	}
	if deleted || len(objects.removed) != 0 || len(index.deleted) != 0 || len(history.removed) != 0 {
		t.Fatalf("forbidden delete touched state: row=%v objects=%v index=%v versions=%v", deleted, objects.removed, index.deleted, history.removed)
	}
}

func TestDeleteDocumentMissing(t *testing.T) {
	server, _ := newTestServer(testConfig(), &fakeStore{}, Options{})

	rr := doJSON(t, server, http.MethodDelete, "/api/documents/doc-404?userId=user-1", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if msg := decodeResponse(t, rr)["error"]; msg != "Document not found" {
		t.Fatalf("unexpected message %v", msg)
	}

	rr = doJSON(t, server, http.MethodDelete, "/api/documents", map[string]any{"documentId": "doc-1"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without userId, got %d", rr.Code)
	}
}

func TestDeleteDocumentRemovesRowThenSideData(t *testing.T) {
	fs := ownedDocStore("owner-1")
	var order []string
	fs.deleteDocumentFn = func(context.Context, string) error {
		order = append(order, "row")
		return nil
	}
	objects := &fakeObjects{}
	index := &fakeIndex{}
	history := &fakeVersions{}
	server, _ := newTestServer(testConfig(), fs, Options{Objects: objects, Search: index, Versions: history})

	rr := doJSON(t, server, http.MethodDelete, "/api/documents", map[string]any{"documentId": "doc-1", "userId": "owner-1"})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(order) != 1 {
		t.Fatalf("expected row deleted once, got %v", order)
	}
	if len(objects.removed) != 1 || objects.removed[0] != "documents/owner-1/1700000000000-lease.pdf" {
		t.Fatalf("unexpected removed objects %v", objects.removed)
	}
	if len(index.deleted) != 1 || len(history.removed) != 1 {
		t.Fatalf("expected index and versions cleaned up, got %v %v", index.deleted, history.removed)
	}
}

func TestUploadRejectsBeforeStorage(t *testing.T) {
	cases := []struct {
		name     string
		fileName string
		data     []byte
		fields   map[string]string
		want     string
	}{
		{"missing user", "lease.txt", []byte("hello"), map[string]string{}, "Missing file or userId"},
		{"missing file", "", nil, map[string]string{"userId": "user-1"}, "Missing file or userId"},
		{"bad extension", "lease.exe", []byte("MZ"), map[string]string{"userId": "user-1"}, "invalid file type"},
		{"fake pdf", "lease.pdf", []byte("not a pdf"), map[string]string{"userId": "user-1"}, "invalid PDF file"},
		{"empty", "lease.txt", []byte{}, map[string]string{"userId": "user-1"}, "file is empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inserted := false
			fs := &fakeStore{insertDocumentFn: func(_ context.Context, doc store.Document) (store.Document, error) {
				inserted = true
				return doc, nil
			}}
			objects := &fakeObjects{}
			server, _ := newTestServer(testConfig(), fs, Options{Objects: objects})

			req := multipartRequest(t, "/api/upload", "file", tc.fileName, "application/octet-stream", tc.data, tc.fields)
			rr := httptest.NewRecorder()
			server.Handler().ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			if msg, _ := decodeResponse(t, rr)["error"].(string); !strings.Contains(msg, tc.want) {
				t.Fatalf("expected %q, got %q", tc.want, msg)
			}
			if inserted || len(objects.puts) != 0 {
				t.Fatalf("rejected upload reached storage: inserted=%v puts=%d", inserted, len(objects.puts))
			}
		})
	}
}

func TestUploadStoresOriginalAndInsertsDocument(t *testing.T) {
	var insertedDoc store.Document
	fs := &fakeStore{insertDocumentFn: func(_ context.Context, doc store.Document) (store.Document, error) {
		doc.ID = "doc-up"
		insertedDoc = doc
		return doc, nil
	}}
	objects := &fakeObjects{}
	server, _ := newTestServer(testConfig(), fs, Options{Objects: objects})

	text := "The Tenant shall pay rent on the first day of each month."
	req := multipartRequest(t, "/api/upload", "file", "My Lease.txt", "text/plain", []byte(text), map[string]string{"userId": "user-1", "title": "Lease"})
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	response := decodeResponse(t, rr)
	if response["extractedText"] != text || response["wordCount"] != float64(12) {
		t.Fatalf("unexpected response %v", response)
	}
	if len(objects.puts) != 1 || objects.puts[0].bucket != "documents" || !strings.HasPrefix(objects.puts[0].key, "user-1/1700000000000-") {
		t.Fatalf("unexpected stored objects %+v", objects.puts)
	}
	if insertedDoc.Status != store.StatusPending || insertedDoc.OriginalFile == nil || *insertedDoc.OriginalFile != objects.puts[0].key {
		t.Fatalf("unexpected inserted document %+v", insertedDoc)
	}
	if !strings.Contains(string(insertedDoc.Metadata), `"originalFileName":"My Lease.txt"`) {
		t.Fatalf("metadata missing original file name: %s", insertedDoc.Metadata)
	}
}

func TestUploadRemovesObjectWhenInsertFails(t *testing.T) {
	fs := &fakeStore{insertDocumentFn: func(context.Context, store.Document) (store.Document, error) {
		return store.Document{}, errors.New("db down")
	}}
	objects := &fakeObjects{}
	server, _ := newTestServer(testConfig(), fs, Options{Objects: objects})

	req := multipartRequest(t, "/api/upload", "file", "lease.txt", "text/plain", []byte("Some terms."), map[string]string{"userId": "user-1"})
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if len(objects.puts) != 1 || len(objects.removed) != 1 || objects.removed[0] != "documents/"+objects.puts[0].key {
		t.Fatalf("expected stored object to be removed, puts=%v removed=%v", objects.puts, objects.removed)
	}
}

func TestArchiveReturnsCurrentRowWhenAlreadyArchived(t *testing.T) {
	calls := 0
	fs := &fakeStore{archiveDocumentFn: func(_ context.Context, id, by, reason string) (store.Document, error) {
		calls++
		return store.Document{ID: id, IsArchived: true}, nil
	}}
	server, _ := newTestServer(testConfig(), fs, Options{})

	for i := 0; i < 2; i++ {
		rr := doJSON(t, server, http.MethodPost, "/api/archive", map[string]any{"document_id": "doc-1", "archived_by": "user-1"})
		if rr.Code != http.StatusOK {
			t.Fatalf("archive %d: expected 200, got %d", i, rr.Code)
		}
		if decodeResponse(t, rr)["success"] != true {
			t.Fatalf("expected success")
		}
	}
	if calls != 2 {
		t.Fatalf("expected two archive calls, got %d", calls)
	}

	rr := doJSON(t, server, http.MethodPost, "/api/archive", map[string]any{"archived_by": "user-1"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without document_id, got %d", rr.Code)
	}
}

func TestRecallRequiresArchivedDocument(t *testing.T) {
	fs := &fakeStore{recallDocumentFn: func(_ context.Context, id, _, _ string) (store.Document, error) {
		if id == "missing" {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, store.ErrNotArchived
	}}
	server, _ := newTestServer(testConfig(), fs, Options{})

	rr := doJSON(t, server, http.MethodPost, "/api/archive/doc-1/recall", map[string]any{"recalled_by": "user-1"})
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "NOT_ARCHIVED" {
		t.Fatalf("expected 409 NOT_ARCHIVED, got %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, "/api/archive/missing/recall", map[string]any{})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestArchiveListClampsLimit(t *testing.T) {
	var got store.ArchiveFilter
	fs := &fakeStore{listArchivedFn: func(_ context.Context, filter store.ArchiveFilter) ([]store.Document, error) {
		got = filter
		return []store.Document{}, nil
	}}
	server, _ := newTestServer(testConfig(), fs, Options{})

	rr := doJSON(t, server, http.MethodGet, "/api/archive?organization_id=org-1&limit=5000", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got.Limit != 200 || got.OrganizationID != "org-1" {
		t.Fatalf("unexpected filter %+v", got)
	}
}

func TestSearchParsesFilters(t *testing.T) {
	index := &fakeIndex{}
	server, _ := newTestServer(testConfig(), &fakeStore{}, Options{Search: index})

	rr := doJSON(t, server, http.MethodGet, "/api/search?q=lease&is_archived=false&created_after=2024-01-01&tags=nda,hr&limit=10", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if decodeResponse(t, rr)["query"] != "lease" {
		t.Fatalf("unexpected response %s", rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, "/api/search?created_before=yesterday", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad date, got %d", rr.Code)
	}
}

func TestSearchDateOnlyBoundsCoverWholeDay(t *testing.T) {
	index := &fakeIndex{}
	server, _ := newTestServer(testConfig(), &fakeStore{}, Options{Search: index})

	rr := doJSON(t, server, http.MethodGet, "/api/search?created_after=2024-03-01&created_before=2024-03-31", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(index.searched) != 1 {
		t.Fatalf("expected one search, got %d", len(index.searched))
	}
	filter := index.searched[0]
	after := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	lateOnLastDay := time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)
	nextDay := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	if filter.CreatedAfter == nil || !filter.CreatedAfter.Equal(after) {
		t.Fatalf("unexpected created_after %v", filter.CreatedAfter)
	}
	if filter.CreatedBefore == nil || filter.CreatedBefore.Before(lateOnLastDay) || !filter.CreatedBefore.Before(nextDay) {
		t.Fatalf("created_before should cover all of 2024-03-31, got %v", filter.CreatedBefore)
	}

	rr = doJSON(t, server, http.MethodGet, "/api/search?created_before=2024-03-31T12:00:00Z", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	exact := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	if got := index.searched[1].CreatedBefore; got == nil || !got.Equal(exact) {
		t.Fatalf("timestamps must be kept as given, got %v", got)
	}
}

func TestRestoreVersionRecordsNewVersion(t *testing.T) {
	fs := ownedDocStore("owner-1")
	var restoredOriginal string
	fs.restoreContentFn = func(_ context.Context, id, original string, converted *string) (store.Document, error) {
		restoredOriginal = original
		return store.Document{ID: id, UserID: "owner-1", OriginalContent: original, ConvertedContent: converted}, nil
	}
	history := &fakeVersions{content: versions.Content{Title: "Lease", Original: "older original", Converted: "older plain"}}
	server, _ := newTestServer(testConfig(), fs, Options{Versions: history})

	rr := doJSON(t, server, http.MethodPost, "/api/documents/doc-1/versions/abc1234/restore", map[string]any{"userId": "owner-1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if restoredOriginal != "older original" {
		t.Fatalf("expected old content restored, got %q", restoredOriginal)
	}
	if len(history.recorded) != 1 || !strings.Contains(history.recorded[0], "Restore version") {
		t.Fatalf("expected restore recorded as a version, got %v", history.recorded)
	}

	history.getErr = versions.ErrVersionNotFound
	rr = doJSON(t, server, http.MethodPost, "/api/documents/doc-1/versions/fffffff/restore", map[string]any{"userId": "owner-1"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown version, got %d", rr.Code)
	}
}
