package export

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"strings"
	"testing"
	"time"
)

func TestTextToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "paragraphs", input: "First.\n\nSecond.", expected: "<p>First.</p>\n<p>Second.</p>\n"},
		{name: "line breaks", input: "Line one\nLine two", expected: "<p>Line one<br>Line two</p>\n"},
		{name: "bullets", input: "- You pay rent\n- They fix the roof", expected: "<ul>\n<li>You pay rent</li>\n<li>They fix the roof</li>\n</ul>\n"},
		{name: "escapes", input: "A < B & C", expected: "<p>A &lt; B &amp; C</p>\n"},
		{name: "windows newlines", input: "One\r\n\r\nTwo", expected: "<p>One</p>\n<p>Two</p>\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TextToHTML(tt.input); got != tt.expected {
				t.Errorf("TextToHTML() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"Lease v1.2", "Lease-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "document"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := sanitizeFilename(tt.input); result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := percentEncodeForDataURL(tt.input); result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderDocumentHTMLAppliesBranding(t *testing.T) {
	html, err := RenderDocumentHTML(TemplateData{
		Title:       "Lease Agreement",
		Summary:     "You rent the flat for a year.",
		ContentHTML: template.HTML("<p>You pay rent monthly.</p>"),
		KeyTerms:    []KeyTerm{{Term: "Indemnify", Explanation: "Cover the costs", Importance: "high"}},
		UpdatedAt:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Branding: Branding{
			CompanyName:  "Acme Legal",
			PrimaryColor: "#112233",
			LogoURL:      "https://cdn.example.com/logos/u/logo.png",
			FooterText:   "Confidential",
		},
	})
	if err != nil {
		t.Fatalf("RenderDocumentHTML() error = %v", err)
	}

	for _, want := range []string{
		"Lease Agreement",
		"Acme Legal",
		"#112233",
		"#3b82f6",
		"https://cdn.example.com/logos/u/logo.png",
		"<p>You pay rent monthly.</p>",
		"Indemnify",
		"Confidential",
		"March 1, 2024",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestRenderDocumentHTMLRejectsUnsafeBranding(t *testing.T) {
	html, err := RenderDocumentHTML(TemplateData{
		Title: "NDA",
		Branding: Branding{
			PrimaryColor: "red; background: url(x)",
			LogoURL:      "javascript:alert(1)",
		},
	})
	if err != nil {
		t.Fatalf("RenderDocumentHTML() error = %v", err)
	}
	if !strings.Contains(html, defaultPrimaryColor) {
		t.Error("expected default primary color")
	}
	if strings.Contains(html, "javascript") || strings.Contains(html, "url(x)") {
		t.Error("unsafe branding leaked into output")
	}
}

func TestExportHTMLAndPDF(t *testing.T) {
	var rendered string
	svc := NewService(func(ctx context.Context, html string) ([]byte, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected a deadline on the render context")
		}
		rendered = html
		return []byte("%PDF-1.4"), nil
	}, time.Second)

	doc := Document{Title: "Lease Agreement", Body: "You pay rent."}

	htmlResult, err := svc.Export(context.Background(), FormatHTML, doc, Branding{})
	if err != nil {
		t.Fatalf("Export(html) error = %v", err)
	}
	if htmlResult.Filename != "Lease-Agreement.html" || !strings.HasPrefix(htmlResult.MimeType, "text/html") {
		t.Fatalf("unexpected html result %+v", htmlResult)
	}

	pdfResult, err := svc.Export(context.Background(), FormatPDF, doc, Branding{})
	if err != nil {
		t.Fatalf("Export(pdf) error = %v", err)
	}
	if pdfResult.Filename != "Lease-Agreement.pdf" || pdfResult.MimeType != "application/pdf" || string(pdfResult.Data) != "%PDF-1.4" {
		t.Fatalf("unexpected pdf result %+v", pdfResult)
	}
	if !strings.Contains(rendered, "You pay rent.") {
		t.Error("renderer did not receive the document body")
	}

	if _, err := svc.Export(context.Background(), Format("docx"), doc, Branding{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestParseHelpers(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatPDF {
		t.Fatalf("ParseFormat(\"\") = %q, %v", f, err)
	}
	if _, err := ParseFormat("doc"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}

	branding := ParseBranding(json.RawMessage(`{"primaryColor":"#000000","companyName":"Acme"}`))
	if branding.PrimaryColor != "#000000" || branding.CompanyName != "Acme" {
		t.Fatalf("unexpected branding %+v", branding)
	}
	if got := ParseBranding(json.RawMessage(`not json`)); got != (Branding{}) {
		t.Fatalf("expected zero branding, got %+v", got)
	}

	terms := ParseKeyTerms(json.RawMessage(`[{"term":"Lien","explanation":"A claim"}]`))
	if len(terms) != 1 || terms[0].Term != "Lien" {
		t.Fatalf("unexpected key terms %+v", terms)
	}
}
