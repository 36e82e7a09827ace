// Package mail delivers account emails (password reset, address
// verification) through a pluggable Sender.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// Sender delivers one HTML message.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	SubjectResetPassword = "Reset Your Password"
	SubjectVerifyEmail   = "Verify Your Email"
)

type linkData struct {
	Name string
	Link string
}

// ResetPasswordBody renders the password reset message.
func ResetPasswordBody(name, link string) (string, error) {
	return render("reset_password.html", linkData{Name: name, Link: link})
}

// VerifyEmailBody renders the address verification message.
func VerifyEmailBody(name, link string) (string, error) {
	return render("verify_email.html", linkData{Name: name, Link: link})
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// LogSender writes messages to the log instead of sending them. Meant for
// development. Bodies carry live single-use links, so they are only logged
// at debug level.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, to, subject, html string) error {
	s.log.Info(ctx, "mail not sent (log backend)", "to", to, "subject", subject)
	s.log.Debug(ctx, "mail body", "to", to, "body", html)
	return nil
}
