package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/prompthub/authcore/internal/models"
	"github.com/prompthub/authcore/pkg/mail"
)

const resetSubject = "Reset your password"

func resetMessage(from string, user models.User, link string, ttl time.Duration) mail.Message {
	name := strings.TrimSpace(user.DisplayName)
	if name == "" {
		name = user.Handle
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\n", name)
	body.WriteString("We received a request to reset the password for your account.\n")
	fmt.Fprintf(&body, "Open the link below within %s to choose a new password:\n\n", humanDuration(ttl))
	body.WriteString(link)
	body.WriteString("\n\nIf you did not ask for this, you can ignore this email. Your password will not change.\n")

	return mail.Message{
		From:    from,
		To:      []string{user.Email},
		Subject: resetSubject,
		Body:    body.String(),
	}
}

func humanDuration(d time.Duration) string {
	switch {
	case d%time.Hour == 0 && d >= time.Hour:
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	case d%time.Minute == 0 && d >= time.Minute:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
