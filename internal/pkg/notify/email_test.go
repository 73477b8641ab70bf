package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"tasknotes/internal/config"

	"gopkg.in/gomail.v2"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendWelcome_SkipsWhenNotConfigured(t *testing.T) {
	n := NewEmailNotifier(&config.EmailConfig{}, discardLogger())
	called := false
	n.send = func(*gomail.Message) error {
		called = true
		return nil
	}
	if err := n.SendWelcome(context.Background(), "a@example.com", "alice"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if called {
		t.Fatalf("must not dial without SMTP config")
	}
}

func TestSendWelcome_Sends(t *testing.T) {
	cfg := &config.EmailConfig{SMTPHost: "smtp.example.com", SMTPPort: 465, SMTPUser: "u", FromEmail: "noreply@example.com"}
	n := NewEmailNotifier(cfg, discardLogger())

	var sent bytes.Buffer
	n.send = func(m *gomail.Message) error {
		_, err := m.WriteTo(&sent)
		return err
	}
	if err := n.SendWelcome(context.Background(), "a@example.com", "<alice>"); err != nil {
		t.Fatalf("send: %v", err)
	}
	out := sent.String()
	if !strings.Contains(out, "a@example.com") || !strings.Contains(out, "Welcome aboard") {
		t.Fatalf("unexpected message:\n%s", out)
	}
	if strings.Contains(out, "<alice>") {
		t.Fatalf("username must be escaped")
	}
}

func TestSendWelcome_Errors(t *testing.T) {
	cfg := &config.EmailConfig{SMTPHost: "smtp.example.com", SMTPUser: "u", FromEmail: "noreply@example.com"}
	n := NewEmailNotifier(cfg, discardLogger())
	n.send = func(*gomail.Message) error { return errors.New("dial failed") }

	if err := n.SendWelcome(context.Background(), " ", "alice"); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
	if err := n.SendWelcome(context.Background(), "a@example.com", "alice"); err == nil || !strings.Contains(err.Error(), "dial failed") {
		t.Fatalf("expected wrapped dial error, got %v", err)
	}
}
