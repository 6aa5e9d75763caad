package mailer

import (
	"strings"
	"testing"
)

func TestRenderUserWelcome(t *testing.T) {
	subject, plainBody, htmlBody, err := Render("user_welcome.tmpl", map[string]any{
		"userID":    42,
		"firstName": "Ada",
	})
	if err != nil {
		t.Fatal(err)
	}

	if subject != "Welcome to Moviefavs!" {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(plainBody, "Hi Ada,") || !strings.Contains(plainBody, "user ID number is 42") {
		t.Errorf("plain body missing data: %q", plainBody)
	}
	if !strings.Contains(htmlBody, "<p>Hi Ada,</p>") {
		t.Errorf("html body missing greeting: %q", htmlBody)
	}
}

func TestRenderMissingTemplate(t *testing.T) {
	if _, _, _, err := Render("does_not_exist.tmpl", nil); err == nil {
		t.Error("expected an error for a missing template")
	}
}
