package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"church-admin-api/internal/model"
	"church-admin-api/pkg/apierror"
)

const requestColumns = `r.id, r.name, r.email, r.password_hash, r.role, r.status,
	r.rejection_reason, r.approved_by, r.approved_at, r.ip_address, r.user_agent,
	r.created_at, r.updated_at, r.deleted_at`

type AccessRequestRepository struct {
	pool *pgxpool.Pool
}

func NewAccessRequestRepository(pool *pgxpool.Pool) *AccessRequestRepository {
	return &AccessRequestRepository{pool: pool}
}

func scanRequest(row pgx.Row) (model.AccessRequest, error) {
	var req model.AccessRequest
	err := row.Scan(&req.ID, &req.Name, &req.Email, &req.PasswordHash, &req.Role,
		&req.Status, &req.RejectionReason, &req.ApprovedBy, &req.ApprovedAt,
		&req.IPAddress, &req.UserAgent, &req.CreatedAt, &req.UpdatedAt, &req.DeletedAt)
	return req, err
}

func (r *AccessRequestRepository) Create(ctx context.Context, req model.AccessRequest) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO access_requests
		   (id, name, email, password_hash, role, status, ip_address, user_agent, created_at, updated_at)
		 VALUES ($1, $2, lower($3), $4, $5, $6, $7, $8, $9, $10)`,
		req.ID, req.Name, req.Email, req.PasswordHash, req.Role, req.Status,
		req.IPAddress, req.UserAgent, req.CreatedAt, req.UpdatedAt)
	if isUniqueViolation(err) {
		// The partial unique index on pending emails is the authoritative
		// guard against concurrent duplicate submissions.
		return apierror.Conflict("a pending request already exists for this email", req.Email)
	}
	if err != nil {
		return fmt.Errorf("create access request: %w", err)
	}
	return nil
}

func (r *AccessRequestRepository) FindByID(ctx context.Context, id string) (model.AccessRequest, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+requestColumns+`, a.id, a.name, a.email, a.role, a.active, a.created_at
		 FROM access_requests r
		 LEFT JOIN users a ON a.id = r.approved_by
		 WHERE r.id = $1 AND r.deleted_at IS NULL`, id)

	req, approver, err := scanRequestWithApprover(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AccessRequest{}, apierror.NotFound("access request not found", id)
	}
	if err != nil {
		return model.AccessRequest{}, fmt.Errorf("find access request by id: %w", err)
	}
	req.Approver = approver
	return req, nil
}

func scanRequestWithApprover(row pgx.Row) (model.AccessRequest, *model.PublicUser, error) {
	var req model.AccessRequest
	var approverID, approverName, approverEmail, approverRole *string
	var approverActive *bool
	var approverCreated *time.Time

	err := row.Scan(&req.ID, &req.Name, &req.Email, &req.PasswordHash, &req.Role,
		&req.Status, &req.RejectionReason, &req.ApprovedBy, &req.ApprovedAt,
		&req.IPAddress, &req.UserAgent, &req.CreatedAt, &req.UpdatedAt, &req.DeletedAt,
		&approverID, &approverName, &approverEmail, &approverRole, &approverActive, &approverCreated)
	if err != nil {
		return model.AccessRequest{}, nil, err
	}

	if approverID != nil {
		return req, &model.PublicUser{
			ID:        *approverID,
			Name:      *approverName,
			Email:     *approverEmail,
			Role:      *approverRole,
			Active:    *approverActive,
			CreatedAt: *approverCreated,
		}, nil
	}
	return req, nil, nil
}

func (r *AccessRequestRepository) FindPendingByEmail(ctx context.Context, email string) (model.AccessRequest, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM access_requests r
		 WHERE r.email = lower($1) AND r.status = 'pending' AND r.deleted_at IS NULL`,
		strings.TrimSpace(email)))

	if errors.Is(err, pgx.ErrNoRows) {
		return model.AccessRequest{}, apierror.NotFound("access request not found", "")
	}
	if err != nil {
		return model.AccessRequest{}, fmt.Errorf("find pending request by email: %w", err)
	}
	return req, nil
}

func (r *AccessRequestRepository) HasPendingByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM access_requests
		  WHERE email = lower($1) AND status = 'pending' AND deleted_at IS NULL)`,
		strings.TrimSpace(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending request: %w", err)
	}
	return exists, nil
}

func (r *AccessRequestRepository) List(ctx context.Context, filter model.AccessRequestFilter) ([]model.AccessRequest, int, error) {
	where := []string{"r.deleted_at IS NULL"}
	args := []any{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(r.name ILIKE $%d OR r.email ILIKE $%d)", len(args), len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM access_requests r WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count access requests: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	rows, err := r.pool.Query(ctx,
		`SELECT `+requestColumns+`, a.id, a.name, a.email, a.role, a.active, a.created_at
		 FROM access_requests r
		 LEFT JOIN users a ON a.id = r.approved_by
		 WHERE `+whereClause+
			fmt.Sprintf(` ORDER BY r.created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list access requests: %w", err)
	}
	defer rows.Close()

	requests := make([]model.AccessRequest, 0)
	for rows.Next() {
		req, approver, err := scanRequestWithApprover(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan access request: %w", err)
		}
		req.Approver = approver
		requests = append(requests, req)
	}
	return requests, total, rows.Err()
}

// UpdatePending edits the mutable fields of a request. The status condition in
// the WHERE clause makes the pending-only rule hold under concurrency.
func (r *AccessRequestRepository) UpdatePending(ctx context.Context, id string, name string, email string, role string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE access_requests SET name = $2, email = lower($3), role = $4, updated_at = $5
		 WHERE id = $1 AND status = 'pending' AND deleted_at IS NULL`,
		id, name, email, role, time.Now().UTC())
	if isUniqueViolation(err) {
		return apierror.Conflict("a pending request already exists for this email", email)
	}
	if err != nil {
		return fmt.Errorf("update access request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierror.Conflict("access request is no longer pending", id)
	}
	return nil
}

// Approve provisions the user and marks the request approved inside a single
// transaction. The row-conditioned update is the serialization point for
// concurrent approvals: the loser affects zero rows and the whole transaction
// rolls back, so a user is never created for an already-processed request.
func (r *AccessRequestRepository) Approve(ctx context.Context, requestID string, user model.User, approverID string, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin approve transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE access_requests
		 SET status = 'approved', approved_by = $2, approved_at = $3, updated_at = $3
		 WHERE id = $1 AND status = 'pending' AND deleted_at IS NULL`,
		requestID, approverID, at)
	if err != nil {
		return fmt.Errorf("mark request approved: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierror.Conflict("access request already processed", requestID)
	}

	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit approve transaction: %w", err)
	}
	return nil
}

func (r *AccessRequestRepository) Reject(ctx context.Context, requestID string, reason string, rejectorID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE access_requests
		 SET status = 'rejected', rejection_reason = $2, approved_by = $3, approved_at = $4, updated_at = $4
		 WHERE id = $1 AND status = 'pending' AND deleted_at IS NULL`,
		requestID, reason, rejectorID, at)
	if err != nil {
		return fmt.Errorf("mark request rejected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierror.Conflict("access request already processed", requestID)
	}
	return nil
}

func (r *AccessRequestRepository) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE access_requests SET deleted_at = $2, updated_at = $2
		 WHERE id = $1 AND deleted_at IS NULL`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete access request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierror.NotFound("access request not found", id)
	}
	return nil
}

func (r *AccessRequestRepository) Statistics(ctx context.Context) (model.AccessRequestStats, error) {
	var stats model.AccessRequestStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'pending'),
		        COUNT(*) FILTER (WHERE status = 'approved'),
		        COUNT(*) FILTER (WHERE status = 'rejected'),
		        COUNT(*) FILTER (WHERE created_at >= now() - INTERVAL '1 month')
		 FROM access_requests
		 WHERE deleted_at IS NULL`).
		Scan(&stats.Total, &stats.Pending, &stats.Approved, &stats.Rejected, &stats.LastMonth)
	if err != nil {
		return model.AccessRequestStats{}, fmt.Errorf("request statistics: %w", err)
	}
	return stats, nil
}
