// Package mailer delivers workflow notification emails through SendGrid.
// Delivery is best-effort: the mailer consumes events from the bus in its own
// goroutine and a failed send is logged, never surfaced to the workflow.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"church-admin-api/internal/event"
)

type Mailer struct {
	apiKey      string
	fromEmail   string
	fromName    string
	adminEmails []string
	frontendURL string
}

func New(apiKey string, fromEmail string, fromName string, adminEmails []string, frontendURL string) *Mailer {
	return &Mailer{
		apiKey:      apiKey,
		fromEmail:   fromEmail,
		fromName:    fromName,
		adminEmails: adminEmails,
		frontendURL: frontendURL,
	}
}

// Run consumes bus events until the context is cancelled or the bus closes.
func (m *Mailer) Run(ctx context.Context, bus event.Bus) {
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			m.handle(e)
		}
	}
}

func (m *Mailer) handle(e event.Event) {
	switch e.Type {
	case event.TypeRequestSubmitted:
		payload, ok := e.Payload.(event.RequestPayload)
		if !ok {
			return
		}
		for _, admin := range m.adminEmails {
			m.send(admin, "", "New access request",
				fmt.Sprintf("A new access request was received.\n\nName: %s\nEmail: %s\nRequested role: %s\nIP: %s\nDate: %s\n\nReview it at %s/admin/access-requests",
					payload.Name, payload.Email, payload.Role, payload.IPAddress, payload.CreatedAt, m.frontendURL),
				fmt.Sprintf("<h2>New access request</h2><ul><li><strong>Name:</strong> %s</li><li><strong>Email:</strong> %s</li><li><strong>Requested role:</strong> %s</li><li><strong>IP:</strong> %s</li></ul><p><a href=%q>Review request</a></p>",
					payload.Name, payload.Email, payload.Role, payload.IPAddress, m.frontendURL+"/admin/access-requests"))
		}

	case event.TypeRequestApproved:
		payload, ok := e.Payload.(event.RequestPayload)
		if !ok {
			return
		}
		m.send(payload.Email, payload.Name, "Your access request was approved",
			fmt.Sprintf("Hello %s,\n\nYour access request was approved. You can now log in at %s/login with the credentials you registered.\n\nRole: %s",
				payload.Name, m.frontendURL, payload.Role),
			fmt.Sprintf("<h2>Your request was approved!</h2><p>Hello %s,</p><p>Your access request was <strong>approved</strong>. Role: %s.</p><p><a href=%q>Log in</a></p>",
				payload.Name, payload.Role, m.frontendURL+"/login"))

	case event.TypeRequestRejected:
		payload, ok := e.Payload.(event.RequestPayload)
		if !ok {
			return
		}
		m.send(payload.Email, payload.Name, "About your access request",
			fmt.Sprintf("Hello %s,\n\nUnfortunately your access request was not approved.\n\nReason: %s\n\nContact the administrator if you believe this is a mistake.",
				payload.Name, payload.Reason),
			fmt.Sprintf("<h2>About your access request</h2><p>Hello %s,</p><p>Unfortunately your request was not approved.</p><blockquote>%s</blockquote>",
				payload.Name, payload.Reason))

	case event.TypeUserProvisioned:
		payload, ok := e.Payload.(event.UserPayload)
		if !ok {
			return
		}
		m.send(payload.Email, payload.Name, "Welcome to Church Admin",
			fmt.Sprintf("Hello %s,\n\nWelcome! Your account is ready.\n\nEmail: %s\nRole: %s\n\nLog in at %s/login",
				payload.Name, payload.Email, payload.Role, m.frontendURL),
			fmt.Sprintf("<h2>Welcome!</h2><p>Hello %s, your account is ready.</p><ul><li><strong>Email:</strong> %s</li><li><strong>Role:</strong> %s</li></ul><p><a href=%q>Log in</a></p>",
				payload.Name, payload.Email, payload.Role, m.frontendURL+"/login"))
	}
}

func (m *Mailer) send(to string, toName string, subject string, plainText string, htmlContent string) {
	if m.apiKey == "" {
		// No API key configured: log instead of sending, useful in dev.
		slog.Info("email skipped (no SendGrid API key)", "to", to, "subject", subject)
		return
	}

	from := mail.NewEmail(m.fromName, m.fromEmail)
	recipient := mail.NewEmail(toName, to)
	message := mail.NewSingleEmail(from, subject, recipient, plainText, htmlContent)

	client := sendgrid.NewSendClient(m.apiKey)
	response, err := client.Send(message)
	if err != nil {
		slog.Error("email send failed", "to", to, "subject", subject, "error", err)
		return
	}
	if response.StatusCode >= 400 {
		slog.Error("email rejected by SendGrid", "to", to, "subject", subject, "status", response.StatusCode)
		return
	}

	slog.Info("email sent", "to", to, "subject", subject)
}
