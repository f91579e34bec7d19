package notification

import (
	"strings"
	"testing"

	"ConnSpectra/internal/config"
)

func TestSplitRecipients(t *testing.T) {
	got := splitRecipients(" ops@example.com, ,noc@example.com ")
	if len(got) != 2 || got[0] != "ops@example.com" || got[1] != "noc@example.com" {
		t.Errorf("Unexpected recipients %q", got)
	}
	if len(splitRecipients("")) != 0 {
		t.Errorf("Expected no recipients for an empty list")
	}
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("spectra@example.com", []string{"a@example.com", "b@example.com"}, "Alert", "<p>hi</p>"))
	for _, want := range []string{
		"To: a@example.com, b@example.com\r\n",
		"From: spectra@example.com\r\n",
		"Subject: Alert\r\n",
		"Content-Type: text/html; charset=UTF-8\r\n\r\n<p>hi</p>",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("Message %q lacks %q", msg, want)
		}
	}
}

func TestNew(t *testing.T) {
	if _, ok := New(config.SMTPConfig{}).(LogNotifier); !ok {
		t.Errorf("Expected a LogNotifier without SMTP host")
	}
	if _, ok := New(config.SMTPConfig{Host: "smtp.example.com", Port: 587}).(*EmailNotifier); !ok {
		t.Errorf("Expected an EmailNotifier with SMTP host")
	}
}

func TestEmailNotifier_NoRecipients(t *testing.T) {
	n := NewEmailNotifier(config.SMTPConfig{Host: "smtp.example.com", Port: 587})
	if err := n.Send("subject", "body"); err == nil {
		t.Errorf("Expected an error without recipients")
	}
}
