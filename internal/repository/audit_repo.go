package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository persists security-relevant events: failed logins,
// approvals, rejections, forbidden role checks. Writes are best-effort;
// callers log and continue on error.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Record(ctx context.Context, actorID *string, action string, subject string, detail string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_entries (id, actor_id, action, subject, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), actorID, action, subject, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}
