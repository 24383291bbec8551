package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"legalease/api/internal/export"
	"legalease/api/internal/extract"
	"legalease/api/internal/logger"
	"legalease/api/internal/rbac"
	"legalease/api/internal/search"
	"legalease/api/internal/storage"
	"legalease/api/internal/store"
	"legalease/api/internal/util"
	"legalease/api/internal/versions"
)

type CreateDocumentInput struct {
	UserID         string   `json:"userId"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	DocumentType   string   `json:"documentType"`
	Tags           []string `json:"tags"`
	OrganizationID string   `json:"organizationId"`
	TeamID         string   `json:"teamId"`
}

func (s *Service) ListDocuments(ctx context.Context, userID string) ([]store.Document, error) {
	userID, err := s.actingUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.ListDocumentsByUser(ctx, userID)
}

func (s *Service) CreateDocument(ctx context.Context, input CreateDocumentInput) (*store.Document, error) {
	userID, err := s.actingUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationError("title is required")
	}

	doc := store.Document{
		UserID:          userID,
		Title:           title,
		OriginalContent: input.Content,
		DocumentType:    strings.TrimSpace(input.DocumentType),
		Status:          store.StatusPending,
		Tags:            cleanTags(input.Tags),
		WordCount:       util.CountWords(input.Content),
		CharacterCount:  util.CountCharacters(input.Content),
	}
	if orgID := strings.TrimSpace(input.OrganizationID); orgID != "" {
		doc.OrganizationID = &orgID
	}
	if teamID := strings.TrimSpace(input.TeamID); teamID != "" {
		doc.TeamID = &teamID
	}

	created, err := s.store.InsertDocument(ctx, doc)
	if errors.Is(err, store.ErrInvalidReference) {
		return nil, validationError("organization, team or user does not exist")
	}
	if err != nil {
		return nil, err
	}
	s.afterDocumentWrite(ctx, created, userID, "Create document")
	return &created, nil
}

// GetDocument returns a document its owner may read.
func (s *Service) GetDocument(ctx context.Context, documentID, userID string) (*store.Document, error) {
	if caller, ok := callerFrom(ctx); ok && strings.TrimSpace(userID) == "" {
		userID = caller
	}
	if strings.TrimSpace(userID) == "" {
		doc, err := s.store.GetDocument(ctx, documentID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("Document not found")
		}
		if err != nil {
			return nil, err
		}
		return &doc, nil
	}
	userID, err := s.actingUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	doc, err := s.ownedDocument(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument removes the row first. Stored files, versions and the search
// entry are cleaned up afterwards on a best effort basis.
func (s *Service) DeleteDocument(ctx context.Context, documentID, userID string) error {
	if strings.TrimSpace(documentID) == "" || (strings.TrimSpace(userID) == "" && !s.hasCaller(ctx)) {
		return validationError("Missing documentId or userId")
	}
	userID, err := s.actingUser(ctx, userID)
	if err != nil {
		return err
	}
	doc, err := s.ownedDocument(ctx, documentID, userID)
	if err != nil {
		return err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{DocumentID: &doc.ID})

	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Document not found")
		}
		return err
	}

	if s.objects != nil && doc.OriginalFile != nil && *doc.OriginalFile != "" {
		if err := s.objects.Remove(ctx, s.cfg.Storage.DocumentsBucket, *doc.OriginalFile); err != nil {
			slog.WarnContext(ctx, "remove stored original failed", "key", *doc.OriginalFile, "error", err)
		}
	}
	if s.versions != nil {
		if err := s.versions.Remove(doc.ID); err != nil {
			slog.WarnContext(ctx, "remove document versions failed", "error", err)
		}
	}
	if s.search != nil {
		s.search.DeleteDocument(ctx, doc.ID)
	}
	return nil
}

type UploadInput struct {
	UserID   string
	Title    string
	FileName string
	Data     []byte
}

type UploadResult struct {
	Success        bool           `json:"success"`
	Document       store.Document `json:"document"`
	ExtractedText  string         `json:"extractedText"`
	WordCount      int            `json:"wordCount"`
	CharacterCount int            `json:"characterCount"`
}

// Upload validates and extracts the file before anything is stored. When the
// document insert fails the stored object is removed again.
func (s *Service) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if strings.TrimSpace(input.FileName) == "" || (strings.TrimSpace(input.UserID) == "" && !s.hasCaller(ctx)) {
		return nil, validationError("Missing file or userId")
	}
	userID, err := s.actingUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{UserID: &userID, Component: "app.upload"})

	if s.cfg.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.UploadTimeout)
		defer cancel()
	}

	result, err := extract.Extract(input.FileName, input.Data)
	if err != nil {
		return nil, uploadError(err)
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = input.FileName
	}
	metadata, _ := json.Marshal(map[string]any{
		"originalFileName": input.FileName,
		"fileSize":         len(input.Data),
		"pageCount":        result.PageCount,
		"contentType":      result.ContentType,
	})

	doc := store.Document{
		UserID:          userID,
		Title:           title,
		OriginalContent: result.Text,
		Status:          store.StatusPending,
		FileType:        &result.FileType,
		WordCount:       result.WordCount,
		CharacterCount:  result.CharacterCount,
		Metadata:        metadata,
	}

	var key string
	if s.objects != nil {
		key = storage.DocumentKey(userID, input.FileName, s.now())
		if err := s.objects.Put(ctx, s.cfg.Storage.DocumentsBucket, key, input.Data, result.ContentType); err != nil {
			slog.ErrorContext(ctx, "store uploaded original failed", "key", key, "error", err)
			return nil, domainError(http.StatusBadGateway, "STORAGE_ERROR", "Upload failed", nil)
		}
		doc.OriginalFile = &key
	}

	created, err := s.store.InsertDocument(ctx, doc)
	if err != nil {
		if key != "" {
			if rmErr := s.objects.Remove(context.WithoutCancel(ctx), s.cfg.Storage.DocumentsBucket, key); rmErr != nil {
				slog.ErrorContext(ctx, "remove orphaned upload failed", "key", key, "error", rmErr)
			}
		}
		if errors.Is(err, store.ErrInvalidReference) {
			return nil, notFound("User not found")
		}
		return nil, err
	}
	s.afterDocumentWrite(ctx, created, userID, "Upload "+input.FileName)

	return &UploadResult{
		Success:        true,
		Document:       created,
		ExtractedText:  result.Text,
		WordCount:      result.WordCount,
		CharacterCount: result.CharacterCount,
	}, nil
}

var uploadSentinels = []error{
	extract.ErrEmptyFile,
	extract.ErrTooLarge,
	extract.ErrUnsupportedType,
	extract.ErrInvalidPDF,
	extract.ErrEncryptedPDF,
	extract.ErrInvalidDOCX,
	extract.ErrInvalidText,
}

// uploadError turns extraction failures into 400s carrying only the
// sentinel text.
func uploadError(err error) error {
	for _, sentinel := range uploadSentinels {
		if errors.Is(err, sentinel) {
			return validationError(sentinel.Error())
		}
	}
	return err
}

type ArchiveInput struct {
	DocumentID    string `json:"document_id"`
	ArchivedBy    string `json:"archived_by"`
	ArchiveReason string `json:"archive_reason"`
}

type RecallInput struct {
	RecalledBy   string `json:"recalled_by"`
	RecallReason string `json:"recall_reason"`
}

const (
	defaultArchiveLimit = 50
	maxArchiveLimit     = 200
)

func (s *Service) ListArchive(ctx context.Context, filter store.ArchiveFilter) ([]store.Document, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultArchiveLimit
	}
	if filter.Limit > maxArchiveLimit {
		filter.Limit = maxArchiveLimit
	}
	// Verified callers see an organization's archive only as members, and
	// otherwise only their own documents.
	if caller, ok := callerFrom(ctx); ok {
		if filter.OrganizationID != "" {
			if err := s.requireOrgAction(ctx, filter.OrganizationID, rbac.ActionRead); err != nil {
				return nil, err
			}
		} else {
			filter.UserID = caller
		}
	}
	return s.store.ListArchivedDocuments(ctx, filter)
}

// archivable lets a verified caller archive or recall a document they own,
// or one in an organization they administer.
func (s *Service) archivable(ctx context.Context, documentID string) error {
	caller, ok := callerFrom(ctx)
	if !ok {
		return nil
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Document not found")
	}
	if err != nil {
		return err
	}
	if doc.UserID == caller {
		return nil
	}
	if organizationID := derefString(doc.OrganizationID); organizationID != "" {
		return s.requireOrgAdmin(ctx, organizationID)
	}
	return forbidden("Unauthorized")
}

// Archive flags a document archived. Archiving twice returns the row as it
// already is.
func (s *Service) Archive(ctx context.Context, input ArchiveInput) (*store.Document, error) {
	documentID := strings.TrimSpace(input.DocumentID)
	if documentID == "" {
		return nil, validationError("document_id is required")
	}
	if err := s.archivable(ctx, documentID); err != nil {
		return nil, err
	}
	archivedBy := strings.TrimSpace(input.ArchivedBy)
	if caller, ok := callerFrom(ctx); ok {
		archivedBy = caller
	}
	doc, err := s.store.ArchiveDocument(ctx, documentID, archivedBy, strings.TrimSpace(input.ArchiveReason))
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Document not found")
	}
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexDocument(ctx, doc)
	}
	return &doc, nil
}

// Recall only succeeds for archived documents and never touches others.
func (s *Service) Recall(ctx context.Context, documentID string, input RecallInput) (*store.Document, error) {
	if err := s.archivable(ctx, documentID); err != nil {
		return nil, err
	}
	recalledBy := strings.TrimSpace(input.RecalledBy)
	if caller, ok := callerFrom(ctx); ok {
		recalledBy = caller
	}
	doc, err := s.store.RecallDocument(ctx, documentID, recalledBy, strings.TrimSpace(input.RecallReason))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, notFound("Document not found or not archived")
	case errors.Is(err, store.ErrNotArchived):
		return nil, domainError(http.StatusConflict, "NOT_ARCHIVED", "Document is not archived", nil)
	case err != nil:
		return nil, err
	}
	if s.search != nil {
		s.search.IndexDocument(ctx, doc)
	}
	return &doc, nil
}

// Search scopes results to the caller's documents when a caller is verified.
func (s *Service) Search(ctx context.Context, filter search.Filter) (*search.Response, error) {
	if s.search == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	if caller, ok := callerFrom(ctx); ok {
		if filter.UserID != "" && filter.UserID != caller {
			return nil, forbidden("userId does not match the authenticated user")
		}
		filter.UserID = caller
	}
	resp, err := s.search.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

type VersionsView struct {
	DocumentID string             `json:"documentId"`
	Versions   []versions.Version `json:"versions"`
}

func (s *Service) DocumentVersions(ctx context.Context, documentID, userID string, limit int) (*VersionsView, error) {
	if s.versions == nil {
		return nil, domainError(http.StatusServiceUnavailable, "VERSIONS_UNAVAILABLE", "Version history is not configured", nil)
	}
	userID, err := s.actingUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedDocument(ctx, documentID, userID); err != nil {
		return nil, err
	}
	history, err := s.versions.History(documentID, limit)
	if err != nil {
		return nil, err
	}
	return &VersionsView{DocumentID: documentID, Versions: history}, nil
}

type RestoreResult struct {
	Document      store.Document   `json:"document"`
	RestoredFrom  versions.Version `json:"restoredFrom"`
	ChangedFields []string         `json:"changedFields"`
}

// RestoreVersion writes a previous version's content back to the document
// and records the restore as a new version.
func (s *Service) RestoreVersion(ctx context.Context, documentID, hash, userID string) (*RestoreResult, error) {
	if s.versions == nil {
		return nil, domainError(http.StatusServiceUnavailable, "VERSIONS_UNAVAILABLE", "Version history is not configured", nil)
	}
	userID, err := s.actingUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	doc, err := s.ownedDocument(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}

	content, version, err := s.versions.Get(documentID, strings.TrimSpace(hash))
	if errors.Is(err, versions.ErrNoHistory) || errors.Is(err, versions.ErrVersionNotFound) {
		return nil, notFound("Version not found")
	}
	if err != nil {
		return nil, err
	}

	current := versions.Content{
		Title:          doc.Title,
		Original:       doc.OriginalContent,
		Converted:      derefString(doc.ConvertedContent),
		ConversionType: derefString(doc.ConversionType),
	}

	var converted *string
	if content.Converted != "" {
		converted = &content.Converted
	}
	restored, err := s.store.RestoreDocumentContent(ctx, documentID, content.Original, converted)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Document not found")
	}
	if err != nil {
		return nil, err
	}
	s.afterDocumentWrite(ctx, restored, userID, fmt.Sprintf("Restore version %s", version.Hash))

	return &RestoreResult{
		Document:      restored,
		RestoredFrom:  version,
		ChangedFields: versions.ChangedFields(current, content),
	}, nil
}

// ExportDocument renders the document's converted text, or its original
// when it has not been converted, with an optional template's branding.
func (s *Service) ExportDocument(ctx context.Context, documentID, userID, templateID, format string) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	exportFormat, err := export.ParseFormat(strings.TrimSpace(format))
	if err != nil {
		return nil, validationError("format must be pdf or html")
	}
	userID, err = s.actingUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	doc, err := s.ownedDocument(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}

	var branding export.Branding
	if templateID = strings.TrimSpace(templateID); templateID != "" {
		tpl, err := s.store.GetTemplate(ctx, templateID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("Template not found")
		}
		if err != nil {
			return nil, err
		}
		if tpl.UserID != userID && !tpl.IsPublic {
			return nil, forbidden("Unauthorized")
		}
		branding = export.ParseBranding(tpl.BrandingConfig)
	}

	body := derefString(doc.ConvertedContent)
	if body == "" {
		body = doc.OriginalContent
	}
	result, err := s.exporter.Export(ctx, exportFormat, export.Document{
		Title:          doc.Title,
		Body:           body,
		ConversionType: derefString(doc.ConversionType),
		Summary:        derefString(doc.Summary),
		KeyTerms:       export.ParseKeyTerms(doc.KeyTerms),
		UpdatedAt:      doc.UpdatedAt,
	}, branding)
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
