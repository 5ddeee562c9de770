package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"church-admin-api/internal/model"
	"church-admin-api/pkg/apierror"
)

// In-memory stand-ins for the pgx repositories. They reproduce the
// conditional-update semantics the real stores enforce so the services can be
// tested without a database.

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]model.User)}
}

func (f *fakeUserStore) FindByID(_ context.Context, id string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.DeletedAt != nil {
		return model.User{}, apierror.NotFound("user not found", id)
	}
	return u, nil
}

func (f *fakeUserStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.DeletedAt == nil && u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return model.User{}, apierror.NotFound("user not found", email)
}

func (f *fakeUserStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.DeletedAt == nil && u.Email == strings.ToLower(email) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserStore) Create(_ context.Context, u model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.DeletedAt == nil && existing.Email == u.Email {
			return apierror.Conflict("a user with this email already exists", u.Email)
		}
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserStore) Update(_ context.Context, u model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; !ok {
		return apierror.NotFound("user not found", u.ID)
	}
	u.UpdatedAt = time.Now().UTC()
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserStore) UpdatePassword(_ context.Context, userID string, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return apierror.NotFound("user not found", userID)
	}
	u.PasswordHash = passwordHash
	f.users[userID] = u
	return nil
}

func (f *fakeUserStore) SetRefreshToken(_ context.Context, userID string, token *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return apierror.NotFound("user not found", userID)
	}
	u.RefreshToken = token
	f.users[userID] = u
	return nil
}

func (f *fakeUserStore) RecordLogin(_ context.Context, userID string, refreshToken string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return apierror.NotFound("user not found", userID)
	}
	u.RefreshToken = &refreshToken
	u.LastLogin = &at
	f.users[userID] = u
	return nil
}

func (f *fakeUserStore) SoftDelete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.DeletedAt != nil {
		return apierror.NotFound("user not found", id)
	}
	now := time.Now().UTC()
	u.DeletedAt = &now
	u.RefreshToken = nil
	f.users[id] = u
	return nil
}

func (f *fakeUserStore) List(_ context.Context, filter model.UserFilter) ([]model.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.User
	for _, u := range f.users {
		if u.DeletedAt != nil {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Active != nil && u.Active != *filter.Active {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(u.Name), strings.ToLower(filter.Search)) &&
			!strings.Contains(u.Email, strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, u)
	}
	return out, len(out), nil
}

func (f *fakeUserStore) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, u := range f.users {
		if u.DeletedAt == nil {
			count++
		}
	}
	return count, nil
}

type fakeRequestStore struct {
	mu       sync.Mutex
	requests map[string]model.AccessRequest
	users    *fakeUserStore
}

func newFakeRequestStore(users *fakeUserStore) *fakeRequestStore {
	return &fakeRequestStore{requests: make(map[string]model.AccessRequest), users: users}
}

func (f *fakeRequestStore) Create(_ context.Context, req model.AccessRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.requests {
		if existing.DeletedAt == nil && existing.Status == model.StatusPending && existing.Email == req.Email {
			return apierror.Conflict("a pending request already exists for this email", req.Email)
		}
	}
	f.requests[req.ID] = req
	return nil
}

func (f *fakeRequestStore) FindByID(_ context.Context, id string) (model.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.DeletedAt != nil {
		return model.AccessRequest{}, apierror.NotFound("access request not found", id)
	}
	return r, nil
}

func (f *fakeRequestStore) HasPendingByEmail(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.DeletedAt == nil && r.Status == model.StatusPending && r.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRequestStore) List(_ context.Context, filter model.AccessRequestFilter) ([]model.AccessRequest, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AccessRequest
	for _, r := range f.requests {
		if r.DeletedAt != nil {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

func (f *fakeRequestStore) UpdatePending(_ context.Context, id string, name string, email string, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.DeletedAt != nil {
		return apierror.NotFound("access request not found", id)
	}
	if r.Status != model.StatusPending {
		return apierror.Conflict("access request is no longer pending", id)
	}
	r.Name = name
	r.Email = email
	r.Role = role
	r.UpdatedAt = time.Now().UTC()
	f.requests[id] = r
	return nil
}

func (f *fakeRequestStore) Approve(ctx context.Context, requestID string, user model.User, approverID string, at time.Time) error {
	f.mu.Lock()
	r, ok := f.requests[requestID]
	if !ok || r.DeletedAt != nil {
		f.mu.Unlock()
		return apierror.NotFound("access request not found", requestID)
	}
	if r.Status != model.StatusPending {
		f.mu.Unlock()
		return apierror.Conflict("access request is no longer pending", requestID)
	}
	r.Status = model.StatusApproved
	r.ApprovedBy = &approverID
	r.ApprovedAt = &at
	r.UpdatedAt = at
	f.requests[requestID] = r
	f.mu.Unlock()

	return f.users.Create(ctx, user)
}

func (f *fakeRequestStore) Reject(_ context.Context, requestID string, reason string, rejectorID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[requestID]
	if !ok || r.DeletedAt != nil {
		return apierror.NotFound("access request not found", requestID)
	}
	if r.Status != model.StatusPending {
		return apierror.Conflict("access request is no longer pending", requestID)
	}
	r.Status = model.StatusRejected
	r.RejectionReason = &reason
	r.ApprovedBy = &rejectorID
	r.ApprovedAt = &at
	r.UpdatedAt = at
	f.requests[requestID] = r
	return nil
}

func (f *fakeRequestStore) SoftDelete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.DeletedAt != nil {
		return apierror.NotFound("access request not found", id)
	}
	now := time.Now().UTC()
	r.DeletedAt = &now
	f.requests[id] = r
	return nil
}

func (f *fakeRequestStore) Statistics(_ context.Context) (model.AccessRequestStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats model.AccessRequestStats
	monthAgo := time.Now().UTC().AddDate(0, -1, 0)
	for _, r := range f.requests {
		if r.DeletedAt != nil {
			continue
		}
		stats.Total++
		switch r.Status {
		case model.StatusPending:
			stats.Pending++
		case model.StatusApproved:
			stats.Approved++
		case model.StatusRejected:
			stats.Rejected++
		}
		if r.CreatedAt.After(monthAgo) {
			stats.LastMonth++
		}
	}
	return stats, nil
}

type auditRecord struct {
	actorID *string
	action  string
	subject string
	detail  string
}

type fakeAuditor struct {
	mu      sync.Mutex
	records []auditRecord
}

func (f *fakeAuditor) Record(_ context.Context, actorID *string, action string, subject string, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, auditRecord{actorID: actorID, action: action, subject: subject, detail: detail})
	return nil
}

func (f *fakeAuditor) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r.action)
	}
	return out
}
