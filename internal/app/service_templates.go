package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"legalease/api/internal/storage"
	"legalease/api/internal/store"
)

var defaultBrandingConfig = json.RawMessage(`{"primaryColor":"#1e40af","secondaryColor":"#3b82f6"}`)

type CreateTemplateInput struct {
	UserID         string          `json:"userId"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Description    string          `json:"description"`
	Content        string          `json:"content"`
	BrandingConfig json.RawMessage `json:"brandingConfig"`
	LegalClauses   json.RawMessage `json:"legalClauses"`
	IsPublic       bool            `json:"isPublic"`
}

// UpdateTemplateInput carries the target template and the owner next to the
// writable fields.
type UpdateTemplateInput struct {
	TemplateID string `json:"templateId"`
	UserID     string `json:"userId"`
	store.TemplatePatch
}

func (s *Service) ListTemplates(ctx context.Context, userID string, includePublic bool) ([]store.Template, error) {
	userID, err := s.actingUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.ListTemplates(ctx, userID, includePublic)
}

func (s *Service) CreateTemplate(ctx context.Context, input CreateTemplateInput) (*store.Template, error) {
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.Content) == "" {
		return nil, validationError("Missing required fields")
	}
	userID, err := s.actingUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	branding := input.BrandingConfig
	if len(branding) == 0 || string(branding) == "null" {
		branding = defaultBrandingConfig
	}

	tpl, err := s.store.CreateTemplate(ctx, store.Template{
		UserID:         userID,
		Name:           strings.TrimSpace(input.Name),
		Category:       strings.TrimSpace(input.Category),
		Description:    strings.TrimSpace(input.Description),
		Content:        input.Content,
		BrandingConfig: branding,
		LegalClauses:   input.LegalClauses,
		IsPublic:       input.IsPublic,
	})
	if errors.Is(err, store.ErrInvalidReference) {
		return nil, notFound("User not found")
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

// ownedTemplate applies the same 400/404/403 ladder as documents.
func (s *Service) ownedTemplate(ctx context.Context, templateID, userID string) (store.Template, string, error) {
	if strings.TrimSpace(templateID) == "" || (strings.TrimSpace(userID) == "" && !s.hasCaller(ctx)) {
		return store.Template{}, "", validationError("Missing templateId or userId")
	}
	userID, err := s.actingUser(ctx, userID)
	if err != nil {
		return store.Template{}, "", err
	}
	tpl, err := s.store.GetTemplate(ctx, templateID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Template{}, "", notFound("Template not found")
	}
	if err != nil {
		return store.Template{}, "", err
	}
	if tpl.UserID != userID {
		return store.Template{}, "", forbidden("Unauthorized")
	}
	return tpl, userID, nil
}

func (s *Service) UpdateTemplate(ctx context.Context, input UpdateTemplateInput) (*store.Template, error) {
	if _, _, err := s.ownedTemplate(ctx, input.TemplateID, input.UserID); err != nil {
		return nil, err
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, validationError("name cannot be empty")
	}
	tpl, err := s.store.UpdateTemplate(ctx, input.TemplateID, input.TemplatePatch)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Template not found")
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, templateID, userID string) error {
	if _, _, err := s.ownedTemplate(ctx, templateID, userID); err != nil {
		return err
	}
	err := s.store.DeleteTemplate(ctx, templateID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Template not found")
	}
	return err
}

const MaxLogoSize = 5 << 20

var allowedLogoTypes = map[string]bool{
	"image/jpeg":    true,
	"image/png":     true,
	"image/gif":     true,
	"image/webp":    true,
	"image/svg+xml": true,
}

type LogoUploadInput struct {
	UserID      string
	FileName    string
	ContentType string
	Size        int64
	Data        []byte
}

type LogoResult struct {
	Success  bool   `json:"success"`
	LogoURL  string `json:"logoUrl"`
	FileName string `json:"fileName"`
}

type Logo struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Service) UploadLogo(ctx context.Context, input LogoUploadInput) (*LogoResult, error) {
	if strings.TrimSpace(input.FileName) == "" || (strings.TrimSpace(input.UserID) == "" && !s.hasCaller(ctx)) {
		return nil, validationError("Missing logo or userId")
	}
	userID, err := s.actingUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	size := input.Size
	if size < int64(len(input.Data)) {
		size = int64(len(input.Data))
	}
	if size > MaxLogoSize {
		return nil, validationError("Logo too large (max 5MB)")
	}
	contentType := strings.ToLower(strings.TrimSpace(strings.Split(input.ContentType, ";")[0]))
	if !allowedLogoTypes[contentType] {
		return nil, validationError("Invalid image type")
	}
	if s.objects == nil {
		return nil, storageUnavailable()
	}

	key := storage.LogoKey(userID, input.FileName, s.now())
	if err := s.objects.Put(ctx, s.cfg.Storage.BrandingBucket, key, input.Data, contentType); err != nil {
		slog.ErrorContext(ctx, "store logo failed", "key", key, "error", err)
		return nil, domainError(http.StatusBadGateway, "STORAGE_ERROR", "Upload failed", nil)
	}
	return &LogoResult{
		Success:  true,
		LogoURL:  s.objects.PublicURL(s.cfg.Storage.BrandingBucket, key),
		FileName: key,
	}, nil
}

func (s *Service) ListLogos(ctx context.Context, userID string) ([]Logo, error) {
	if strings.TrimSpace(userID) == "" && !s.hasCaller(ctx) {
		return nil, validationError("Missing userId")
	}
	userID, err := s.actingUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.objects == nil {
		return nil, storageUnavailable()
	}
	objects, err := s.objects.List(ctx, s.cfg.Storage.BrandingBucket, storage.LogoPrefix(userID))
	if err != nil {
		return nil, err
	}
	logos := make([]Logo, 0, len(objects))
	for _, obj := range objects {
		logos = append(logos, Logo{
			Name:      path.Base(obj.Key),
			URL:       s.objects.PublicURL(s.cfg.Storage.BrandingBucket, obj.Key),
			CreatedAt: obj.LastModified,
		})
	}
	return logos, nil
}

// DeleteLogo accepts either the bare file name or the full key returned by
// UploadLogo. Either way the key must stay under the user's logo prefix.
func (s *Service) DeleteLogo(ctx context.Context, fileName, userID string) error {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" || (strings.TrimSpace(userID) == "" && !s.hasCaller(ctx)) {
		return validationError("Missing fileName or userId")
	}
	userID, err := s.actingUser(ctx, userID)
	if err != nil {
		return err
	}
	key, ok := logoKeyFor(userID, fileName)
	if !ok {
		return forbidden("Unauthorized")
	}
	if s.objects == nil {
		return storageUnavailable()
	}
	return s.objects.Remove(ctx, s.cfg.Storage.BrandingBucket, key)
}

func logoKeyFor(userID, fileName string) (string, bool) {
	prefix := storage.LogoPrefix(userID)
	name := strings.TrimPrefix(fileName, prefix)
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return "", false
	}
	return prefix + name, true
}

func storageUnavailable() error {
	return domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage is not configured", nil)
}
