// Package email sends workflow notifications over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s != nil && s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart message with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	msg := s.buildMessage(to, subject, textBody, htmlBody)
	return s.send(s.server, s.auth, s.config.From, to, msg)
}

func (s *Service) buildMessage(to []string, subject, textBody, htmlBody string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	boundary := "boundary-legalease"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", textBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

type ApprovalRequestedData struct {
	AppName       string
	ApproverName  string
	DocumentTitle string
	WorkflowName  string
	StepName      string
}

type ApprovalRejectedData struct {
	AppName         string
	OwnerName       string
	DocumentTitle   string
	WorkflowName    string
	StepName        string
	RejectionReason string
	Comments        string
}

// SendApprovalRequested tells an approver that a document waits on their
// step.
func (s *Service) SendApprovalRequested(to string, data ApprovalRequestedData) error {
	if data.AppName == "" {
		data.AppName = "LegalEase"
	}
	subject := fmt.Sprintf("Approval requested: %s", data.DocumentTitle)
	html, err := renderTemplate(approvalRequestedTemplate, data)
	if err != nil {
		return fmt.Errorf("render approval requested template: %w", err)
	}
	text := fmt.Sprintf("%q is waiting for your approval at step %q of %q.", data.DocumentTitle, data.StepName, data.WorkflowName)
	return s.SendHTMLEmail([]string{to}, subject, text, html)
}

// SendApprovalRejected tells the document owner why a step was rejected.
func (s *Service) SendApprovalRejected(to string, data ApprovalRejectedData) error {
	if data.AppName == "" {
		data.AppName = "LegalEase"
	}
	subject := fmt.Sprintf("Approval rejected: %s", data.DocumentTitle)
	html, err := renderTemplate(approvalRejectedTemplate, data)
	if err != nil {
		return fmt.Errorf("render approval rejected template: %w", err)
	}
	text := fmt.Sprintf("%q was rejected at step %q.\n\nReason: %s", data.DocumentTitle, data.StepName, data.RejectionReason)
	if data.Comments != "" {
		text += "\n\n" + data.Comments
	}
	return s.SendHTMLEmail([]string{to}, subject, text, html)
}

func renderTemplate(tmpl string, data any) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const emailStyle = `
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #1e40af; padding-bottom: 10px; margin-bottom: 20px; }
        .reason { background: #fef2f2; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }`

const approvalRequestedTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Approval requested</title>
    <style>` + emailStyle + `
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <p>Hi {{.ApproverName}},</p>

    <p><strong>{{.DocumentTitle}}</strong> is waiting for your approval at step <strong>{{.StepName}}</strong> of the {{.WorkflowName}} workflow.</p>

    <div class="footer">
        <p>You receive this because you are the approver for this step.</p>
    </div>
</body>
</html>`

const approvalRejectedTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Approval rejected</title>
    <style>` + emailStyle + `
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <p>Hi {{.OwnerName}},</p>

    <p><strong>{{.DocumentTitle}}</strong> was rejected at step <strong>{{.StepName}}</strong> of the {{.WorkflowName}} workflow.</p>

    <div class="reason">
        <strong>Reason:</strong> {{.RejectionReason}}
        {{if .Comments}}<p>{{.Comments}}</p>{{end}}
    </div>

    <div class="footer">
        <p>Update the document and request approval again when it is ready.</p>
    </div>
</body>
</html>`
