//go:build integration

package integration

import (
	"context"
	"strings"
	"sync"
	"time"

	"church-admin-api/internal/model"
	"church-admin-api/pkg/apierror"
)

// memoryStores backs the services with maps so the HTTP surface can be
// exercised without PostgreSQL. The conditional-update rules of the real
// repositories are reproduced here.
type memoryStores struct {
	mu       sync.Mutex
	users    map[string]model.User
	requests map[string]model.AccessRequest
}

func newMemoryStores() *memoryStores {
	return &memoryStores{
		users:    make(map[string]model.User),
		requests: make(map[string]model.AccessRequest),
	}
}

func (m *memoryStores) FindByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.DeletedAt != nil {
		return model.User{}, apierror.NotFound("user not found", id)
	}
	return u, nil
}

func (m *memoryStores) FindByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.DeletedAt == nil && u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return model.User{}, apierror.NotFound("user not found", email)
}

func (m *memoryStores) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.DeletedAt == nil && u.Email == strings.ToLower(email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStores) Create(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createUserLocked(u)
}

func (m *memoryStores) createUserLocked(u model.User) error {
	for _, existing := range m.users {
		if existing.DeletedAt == nil && existing.Email == u.Email {
			return apierror.Conflict("a user with this email already exists", u.Email)
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *memoryStores) Update(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return apierror.NotFound("user not found", u.ID)
	}
	m.users[u.ID] = u
	return nil
}

func (m *memoryStores) UpdatePassword(_ context.Context, userID string, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return apierror.NotFound("user not found", userID)
	}
	u.PasswordHash = passwordHash
	m.users[userID] = u
	return nil
}

func (m *memoryStores) SetRefreshToken(_ context.Context, userID string, token *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return apierror.NotFound("user not found", userID)
	}
	u.RefreshToken = token
	m.users[userID] = u
	return nil
}

func (m *memoryStores) RecordLogin(_ context.Context, userID string, refreshToken string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return apierror.NotFound("user not found", userID)
	}
	u.RefreshToken = &refreshToken
	u.LastLogin = &at
	m.users[userID] = u
	return nil
}

func (m *memoryStores) SoftDelete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.DeletedAt != nil {
		return apierror.NotFound("user not found", id)
	}
	now := time.Now().UTC()
	u.DeletedAt = &now
	u.RefreshToken = nil
	m.users[id] = u
	return nil
}

func (m *memoryStores) List(_ context.Context, filter model.UserFilter) ([]model.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, u := range m.users {
		if u.DeletedAt != nil {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Active != nil && u.Active != *filter.Active {
			continue
		}
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *memoryStores) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, u := range m.users {
		if u.DeletedAt == nil {
			count++
		}
	}
	return count, nil
}

// requestStore adapts memoryStores to the access-request store interface.
type requestStore struct {
	*memoryStores
}

func (m requestStore) Create(_ context.Context, req model.AccessRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.requests {
		if existing.DeletedAt == nil && existing.Status == model.StatusPending && existing.Email == req.Email {
			return apierror.Conflict("a pending request already exists for this email", req.Email)
		}
	}
	m.requests[req.ID] = req
	return nil
}

func (m requestStore) FindByID(_ context.Context, id string) (model.AccessRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.DeletedAt != nil {
		return model.AccessRequest{}, apierror.NotFound("access request not found", id)
	}
	return r, nil
}

func (m requestStore) HasPendingByEmail(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.DeletedAt == nil && r.Status == model.StatusPending && r.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m requestStore) List(_ context.Context, filter model.AccessRequestFilter) ([]model.AccessRequest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AccessRequest
	for _, r := range m.requests {
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

func (m requestStore) UpdatePending(_ context.Context, id string, name string, email string, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.DeletedAt != nil {
		return apierror.NotFound("access request not found", id)
	}
	if r.Status != model.StatusPending {
		return apierror.Conflict("access request is no longer pending", id)
	}
	r.Name = name
	r.Email = email
	r.Role = role
	m.requests[id] = r
	return nil
}

func (m requestStore) Approve(_ context.Context, requestID string, user model.User, approverID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok || r.DeletedAt != nil {
		return apierror.NotFound("access request not found", requestID)
	}
	if r.Status != model.StatusPending {
		return apierror.Conflict("access request is no longer pending", requestID)
	}
	if err := m.createUserLocked(user); err != nil {
		return err
	}
	r.Status = model.StatusApproved
	r.ApprovedBy = &approverID
	r.ApprovedAt = &at
	m.requests[requestID] = r
	return nil
}

func (m requestStore) Reject(_ context.Context, requestID string, reason string, rejectorID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
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
	m.requests[requestID] = r
	return nil
}

func (m requestStore) SoftDelete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.DeletedAt != nil {
		return apierror.NotFound("access request not found", id)
	}
	now := time.Now().UTC()
	r.DeletedAt = &now
	m.requests[id] = r
	return nil
}

func (m requestStore) Statistics(_ context.Context) (model.AccessRequestStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats model.AccessRequestStats
	monthAgo := time.Now().UTC().AddDate(0, -1, 0)
	for _, r := range m.requests {
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

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, *string, string, string, string) error {
	return nil
}
