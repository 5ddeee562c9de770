package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"church-admin-api/internal/event"
	"church-admin-api/internal/model"
	"church-admin-api/pkg/apierror"
)

// AccessRequestService is the approval state machine: pending requests are
// submitted publicly, reviewed by an administrator, and provision a user
// account on approval.
type AccessRequestService struct {
	requests AccessRequestStore
	users    UserStore
	hasher   PasswordHasher
	bus      event.Bus
	audit    Auditor
}

func NewAccessRequestService(requests AccessRequestStore, users UserStore, hasher PasswordHasher, bus event.Bus, audit Auditor) *AccessRequestService {
	return &AccessRequestService{
		requests: requests,
		users:    users,
		hasher:   hasher,
		bus:      bus,
		audit:    audit,
	}
}

// Submit registers a pending access request. The applicant's password is
// hashed here and the plaintext discarded; approval later copies the hash
// onto the provisioned user.
func (s *AccessRequestService) Submit(ctx context.Context, input model.SubmitAccessRequest, ipAddress string, userAgent string) (model.AccessRequest, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	if input.Role == "" {
		input.Role = model.RoleSecretary
	}

	if input.Name == "" {
		return model.AccessRequest{}, apierror.Validation("name is required", "name")
	}
	if !validEmail(input.Email) {
		return model.AccessRequest{}, apierror.Validation("invalid email address", "email")
	}
	if len(input.Password) < minPasswordLength {
		return model.AccessRequest{}, apierror.Validation("password must be at least 8 characters", "password")
	}
	if !model.ValidRole(input.Role) {
		return model.AccessRequest{}, apierror.Validation("invalid role", input.Role)
	}

	// Pre-checks are an optimization; the partial unique index in the store
	// is what holds under concurrent submissions.
	pending, err := s.requests.HasPendingByEmail(ctx, input.Email)
	if err != nil {
		return model.AccessRequest{}, err
	}
	if pending {
		return model.AccessRequest{}, apierror.Conflict("a pending request already exists for this email", input.Email)
	}

	taken, err := s.users.ExistsByEmail(ctx, input.Email)
	if err != nil {
		return model.AccessRequest{}, err
	}
	if taken {
		return model.AccessRequest{}, apierror.Conflict("a user with this email already exists", input.Email)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return model.AccessRequest{}, err
	}

	now := time.Now().UTC()
	request := model.AccessRequest{
		ID:           uuid.NewString(),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         input.Role,
		Status:       model.StatusPending,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.requests.Create(ctx, request); err != nil {
		return model.AccessRequest{}, err
	}

	slog.Info("access request submitted",
		"request_id", request.ID, "role", request.Role, "ip", ipAddress)
	s.publish(event.TypeRequestSubmitted, "", requestPayload(request, ""))
	recordAudit(ctx, s.audit, nil, "access_request.submitted", request.Email, ipAddress)

	return request, nil
}

// Approve provisions a user from a pending request. Both writes happen in one
// store transaction; a request that lost a concurrent approval race surfaces
// as Conflict and no user is created.
func (s *AccessRequestService) Approve(ctx context.Context, requestID string, approver model.User) (model.PublicUser, error) {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return model.PublicUser{}, err
	}

	if request.Status != model.StatusPending {
		return model.PublicUser{}, apierror.Conflict("access request already processed", requestID)
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         request.Name,
		Email:        request.Email,
		PasswordHash: request.PasswordHash,
		Role:         request.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.requests.Approve(ctx, requestID, user, approver.ID, now); err != nil {
		return model.PublicUser{}, err
	}

	slog.Info("access request approved",
		"request_id", requestID, "user_id", user.ID, "approved_by", approver.ID)
	s.publish(event.TypeRequestApproved, approver.ID, requestPayload(request, ""))
	s.publish(event.TypeUserProvisioned, approver.ID, event.UserPayload{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	})
	recordAudit(ctx, s.audit, &approver.ID, "access_request.approved", request.Email, "")

	return user.Public(), nil
}

// Reject closes a pending request with a mandatory reason. The approver
// fields are reused for the rejecting actor.
func (s *AccessRequestService) Reject(ctx context.Context, requestID string, reason string, rejector model.User) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apierror.Validation("rejection reason is required", "reason")
	}

	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return err
	}

	if request.Status != model.StatusPending {
		return apierror.Conflict("access request already processed", requestID)
	}

	if err := s.requests.Reject(ctx, requestID, reason, rejector.ID, time.Now().UTC()); err != nil {
		return err
	}

	slog.Info("access request rejected",
		"request_id", requestID, "rejected_by", rejector.ID, "reason", reason)
	s.publish(event.TypeRequestRejected, rejector.ID, requestPayload(request, reason))
	recordAudit(ctx, s.audit, &rejector.ID, "access_request.rejected", request.Email, reason)

	return nil
}

// Update edits name, email and role of a request while it is still pending.
func (s *AccessRequestService) Update(ctx context.Context, requestID string, patch model.UpdateAccessRequest, updater model.User) (model.AccessRequest, error) {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return model.AccessRequest{}, err
	}

	if request.Status != model.StatusPending {
		return model.AccessRequest{}, apierror.Conflict("only pending requests can be edited", requestID)
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return model.AccessRequest{}, apierror.Validation("name cannot be empty", "name")
		}
		request.Name = name
	}
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		if !validEmail(email) {
			return model.AccessRequest{}, apierror.Validation("invalid email address", "email")
		}
		request.Email = email
	}
	if patch.Role != nil {
		if !model.ValidRole(*patch.Role) {
			return model.AccessRequest{}, apierror.Validation("invalid role", *patch.Role)
		}
		request.Role = *patch.Role
	}

	if err := s.requests.UpdatePending(ctx, requestID, request.Name, request.Email, request.Role); err != nil {
		return model.AccessRequest{}, err
	}

	slog.Info("access request updated", "request_id", requestID, "updated_by", updater.ID)
	return s.requests.FindByID(ctx, requestID)
}

// Remove soft-deletes a request; allowed regardless of status.
func (s *AccessRequestService) Remove(ctx context.Context, requestID string, remover model.User) error {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return err
	}

	if err := s.requests.SoftDelete(ctx, requestID); err != nil {
		return err
	}

	slog.Info("access request removed", "request_id", requestID, "removed_by", remover.ID)
	recordAudit(ctx, s.audit, &remover.ID, "access_request.deleted", request.Email, "")
	return nil
}

func (s *AccessRequestService) Get(ctx context.Context, requestID string) (model.AccessRequest, error) {
	return s.requests.FindByID(ctx, requestID)
}

func (s *AccessRequestService) List(ctx context.Context, filter model.AccessRequestFilter) ([]model.AccessRequest, int, error) {
	return s.requests.List(ctx, filter)
}

func (s *AccessRequestService) HasPendingRequest(ctx context.Context, email string) (bool, error) {
	return s.requests.HasPendingByEmail(ctx, normalizeEmail(email))
}

func (s *AccessRequestService) Statistics(ctx context.Context) (model.AccessRequestStats, error) {
	return s.requests.Statistics(ctx)
}

func (s *AccessRequestService) publish(typ event.Type, actorID string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		ActorID:   actorID,
	})
}

func requestPayload(request model.AccessRequest, reason string) event.RequestPayload {
	return event.RequestPayload{
		ID:        request.ID,
		Name:      request.Name,
		Email:     request.Email,
		Role:      request.Role,
		Reason:    reason,
		IPAddress: request.IPAddress,
		CreatedAt: request.CreatedAt.Format(time.RFC3339),
	}
}
