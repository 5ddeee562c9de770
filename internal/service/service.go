package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"church-admin-api/pkg/apierror"
)

const minPasswordLength = 8

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func isNotFound(err error) bool {
	var apiErr *apierror.APIError
	return errors.As(err, &apiErr) && apiErr.HTTPStatus == http.StatusNotFound
}

// recordAudit writes an audit entry best-effort; a failing audit store must
// never fail the operation being audited.
func recordAudit(ctx context.Context, audit Auditor, actorID *string, action string, subject string, detail string) {
	if audit == nil {
		return
	}
	if err := audit.Record(ctx, actorID, action, subject, detail); err != nil {
		slog.Warn("audit record failed", "action", action, "error", err)
	}
}
