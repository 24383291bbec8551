// Package export renders converted documents as branded HTML or PDF.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// Document is the content being exported.
type Document struct {
	Title          string
	Body           string
	ConversionType string
	Summary        string
	KeyTerms       []KeyTerm
	UpdatedAt      time.Time
}

type KeyTerm struct {
	Term        string `json:"term"`
	Explanation string `json:"explanation"`
	Importance  string `json:"importance,omitempty"`
}

// Branding is the template branding applied to an export.
type Branding struct {
	CompanyName    string `json:"companyName"`
	PrimaryColor   string `json:"primaryColor"`
	SecondaryColor string `json:"secondaryColor"`
	LogoURL        string `json:"logoUrl"`
	FontFamily     string `json:"fontFamily"`
	FooterText     string `json:"footerText"`
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
