package service

import (
	"context"
	"time"

	"church-admin-api/internal/model"
)

// The services depend on narrow store interfaces so tests can substitute
// in-memory fakes for the pgx repositories.

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u model.User) error
	Update(ctx context.Context, u model.User) error
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error
	SetRefreshToken(ctx context.Context, userID string, token *string) error
	RecordLogin(ctx context.Context, userID string, refreshToken string, at time.Time) error
	SoftDelete(ctx context.Context, id string) error
	List(ctx context.Context, filter model.UserFilter) ([]model.User, int, error)
	Count(ctx context.Context) (int, error)
}

type AccessRequestStore interface {
	Create(ctx context.Context, req model.AccessRequest) error
	FindByID(ctx context.Context, id string) (model.AccessRequest, error)
	HasPendingByEmail(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, filter model.AccessRequestFilter) ([]model.AccessRequest, int, error)
	UpdatePending(ctx context.Context, id string, name string, email string, role string) error
	Approve(ctx context.Context, requestID string, user model.User, approverID string, at time.Time) error
	Reject(ctx context.Context, requestID string, reason string, rejectorID string, at time.Time) error
	SoftDelete(ctx context.Context, id string) error
	Statistics(ctx context.Context) (model.AccessRequestStats, error)
}

type Auditor interface {
	Record(ctx context.Context, actorID *string, action string, subject string, detail string) error
}
