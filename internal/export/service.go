package export

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"time"
)

// Service provides document export functionality
type Service struct {
	renderPDF PDFRenderer
	timeout   time.Duration
}

// NewService builds an exporter. A nil renderer uses headless Chrome.
func NewService(renderPDF PDFRenderer, timeout time.Duration) *Service {
	if renderPDF == nil {
		renderPDF = ChromePDF
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{renderPDF: renderPDF, timeout: timeout}
}

// ParseFormat maps a query value to a Format. Empty means PDF.
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, value)
	}
}

// ParseBranding decodes a template's branding config. Malformed JSON yields
// the default branding.
func ParseBranding(raw json.RawMessage) Branding {
	var branding Branding
	if len(raw) == 0 {
		return branding
	}
	if err := json.Unmarshal(raw, &branding); err != nil {
		return Branding{}
	}
	return branding
}

// ParseKeyTerms decodes stored key terms, ignoring malformed values.
func ParseKeyTerms(raw json.RawMessage) []KeyTerm {
	if len(raw) == 0 {
		return nil
	}
	var terms []KeyTerm
	if err := json.Unmarshal(raw, &terms); err != nil {
		return nil
	}
	return terms
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, format Format, doc Document, branding Branding) (*Result, error) {
	html, err := RenderDocumentHTML(TemplateData{
		Title:          doc.Title,
		ConversionType: doc.ConversionType,
		Summary:        doc.Summary,
		KeyTerms:       doc.KeyTerms,
		ContentHTML:    template.HTML(TextToHTML(doc.Body)),
		UpdatedAt:      doc.UpdatedAt,
		Branding:       branding,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(doc.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		data, err := s.renderPDF(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     data,
			Filename: sanitizeFilename(doc.Title) + ".pdf",
			MimeType: "application/pdf",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
