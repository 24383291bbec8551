package export

import (
	"bytes"
	"embed"
	"html/template"
	"regexp"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var documentTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/document.html")
	if err != nil {
		documentTemplate = template.Must(template.New("document").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	documentTemplate = template.Must(template.New("document").Funcs(funcMap).Parse(string(templateContent)))
}

const (
	defaultPrimaryColor   = "#1e40af"
	defaultSecondaryColor = "#3b82f6"
	defaultFontFamily     = "Georgia, serif"
)

var (
	hexColor   = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
	fontFamily = regexp.MustCompile(`^[A-Za-z0-9 ,\-]{1,80}$`)
)

// TemplateData holds data for document template rendering
type TemplateData struct {
	Title          string
	ConversionType string
	Summary        string
	KeyTerms       []KeyTerm
	ContentHTML    template.HTML
	UpdatedAt      time.Time
	Branding       Branding
}

// withDefaults replaces missing or unsafe branding values with the house
// style.
func (b Branding) withDefaults() Branding {
	if !hexColor.MatchString(b.PrimaryColor) {
		b.PrimaryColor = defaultPrimaryColor
	}
	if !hexColor.MatchString(b.SecondaryColor) {
		b.SecondaryColor = defaultSecondaryColor
	}
	if !fontFamily.MatchString(b.FontFamily) {
		b.FontFamily = defaultFontFamily
	}
	b.LogoURL = strings.TrimSpace(b.LogoURL)
	if !strings.HasPrefix(b.LogoURL, "https://") && !strings.HasPrefix(b.LogoURL, "http://") {
		b.LogoURL = ""
	}
	return b
}

// RenderDocumentHTML renders the document template with provided data
func RenderDocumentHTML(data TemplateData) (string, error) {
	data.Branding = data.Branding.withDefaults()
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: {{.Branding.FontFamily}}; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { color: {{.Branding.PrimaryColor}}; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div>{{.ContentHTML}}</div>
</body>
</html>`
