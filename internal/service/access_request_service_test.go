package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"church-admin-api/internal/model"
	"church-admin-api/pkg/apierror"
)

func newRequestService(t *testing.T) (*AccessRequestService, *fakeUserStore, *fakeRequestStore, *fakeAuditor) {
	t.Helper()
	users := newFakeUserStore()
	requests := newFakeRequestStore(users)
	audit := &fakeAuditor{}
	svc := NewAccessRequestService(requests, users, NewPasswordHasher(bcrypt.MinCost), nil, audit)
	return svc, users, requests, audit
}

func adminActor() model.User {
	return model.User{ID: "admin-1", Name: "Admin", Email: "admin@example.org", Role: model.RoleAdmin, Active: true}
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var apiErr *apierror.APIError
	require.True(t, errors.As(err, &apiErr), "expected *apierror.APIError, got %v", err)
	require.Equal(t, status, apiErr.HTTPStatus)
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	t.Run("normalizes email, hashes password and defaults role", func(t *testing.T) {
		svc, _, requests, audit := newRequestService(t)

		request, err := svc.Submit(context.Background(), model.SubmitAccessRequest{
			Name:     "  Ana Torres  ",
			Email:    "ANA@Example.org",
			Password: "correct horse",
		}, "203.0.113.9", "test-agent")
		require.NoError(t, err)

		require.Equal(t, "Ana Torres", request.Name)
		require.Equal(t, "ana@example.org", request.Email)
		require.Equal(t, model.RoleSecretary, request.Role)
		require.Equal(t, model.StatusPending, request.Status)
		require.Equal(t, "203.0.113.9", request.IPAddress)

		stored, err := requests.FindByID(context.Background(), request.ID)
		require.NoError(t, err)
		require.NotEqual(t, "correct horse", stored.PasswordHash)
		require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct horse")))

		require.Contains(t, audit.actions(), "access_request.submitted")
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		svc, _, _, _ := newRequestService(t)
		ctx := context.Background()

		_, err := svc.Submit(ctx, model.SubmitAccessRequest{Email: "a@b.org", Password: "longenough"}, "", "")
		requireStatus(t, err, http.StatusBadRequest)

		_, err = svc.Submit(ctx, model.SubmitAccessRequest{Name: "Ana", Email: "not-an-email", Password: "longenough"}, "", "")
		requireStatus(t, err, http.StatusBadRequest)

		_, err = svc.Submit(ctx, model.SubmitAccessRequest{Name: "Ana", Email: "a@b.org", Password: "short"}, "", "")
		requireStatus(t, err, http.StatusBadRequest)

		_, err = svc.Submit(ctx, model.SubmitAccessRequest{Name: "Ana", Email: "a@b.org", Password: "longenough", Role: "pope"}, "", "")
		requireStatus(t, err, http.StatusBadRequest)
	})

	t.Run("conflicts on a second pending request for the same email", func(t *testing.T) {
		svc, _, _, _ := newRequestService(t)
		ctx := context.Background()

		input := model.SubmitAccessRequest{Name: "Ana", Email: "ana@example.org", Password: "longenough"}
		_, err := svc.Submit(ctx, input, "", "")
		require.NoError(t, err)

		_, err = svc.Submit(ctx, input, "", "")
		requireStatus(t, err, http.StatusConflict)
	})

	t.Run("conflicts when a user already holds the email", func(t *testing.T) {
		svc, users, _, _ := newRequestService(t)
		ctx := context.Background()

		require.NoError(t, users.Create(ctx, model.User{ID: "u1", Email: "taken@example.org", Active: true}))

		_, err := svc.Submit(ctx, model.SubmitAccessRequest{Name: "Ana", Email: "Taken@Example.org", Password: "longenough"}, "", "")
		requireStatus(t, err, http.StatusConflict)
	})
}

func TestApprove(t *testing.T) {
	t.Parallel()

	t.Run("provisions an active user carrying the submitted hash", func(t *testing.T) {
		svc, users, requests, audit := newRequestService(t)
		ctx := context.Background()

		request, err := svc.Submit(ctx, model.SubmitAccessRequest{
			Name: "Ana", Email: "ana@example.org", Password: "correct horse", Role: model.RoleSecretary,
		}, "", "")
		require.NoError(t, err)

		publicUser, err := svc.Approve(ctx, request.ID, adminActor())
		require.NoError(t, err)
		require.Equal(t, "ana@example.org", publicUser.Email)
		require.Equal(t, model.RoleSecretary, publicUser.Role)
		require.True(t, publicUser.Active)

		user, err := users.FindByEmail(ctx, "ana@example.org")
		require.NoError(t, err)
		require.True(t, svc.hasher.Verify("correct horse", user.PasswordHash))

		updated, err := requests.FindByID(ctx, request.ID)
		require.NoError(t, err)
		require.Equal(t, model.StatusApproved, updated.Status)
		require.NotNil(t, updated.ApprovedBy)
		require.Equal(t, "admin-1", *updated.ApprovedBy)
		require.NotNil(t, updated.ApprovedAt)

		require.Contains(t, audit.actions(), "access_request.approved")
	})

	t.Run("conflicts on an already processed request", func(t *testing.T) {
		svc, _, _, _ := newRequestService(t)
		ctx := context.Background()

		request, err := svc.Submit(ctx, model.SubmitAccessRequest{
			Name: "Ana", Email: "ana@example.org", Password: "correct horse",
		}, "", "")
		require.NoError(t, err)

		_, err = svc.Approve(ctx, request.ID, adminActor())
		require.NoError(t, err)

		_, err = svc.Approve(ctx, request.ID, adminActor())
		requireStatus(t, err, http.StatusConflict)
	})

	t.Run("second approver loses the race at the store", func(t *testing.T) {
		svc, _, requests, _ := newRequestService(t)
		ctx := context.Background()

		request, err := svc.Submit(ctx, model.SubmitAccessRequest{
			Name: "Ana", Email: "ana@example.org", Password: "correct horse",
		}, "", "")
		require.NoError(t, err)

		_, err = svc.Approve(ctx, request.ID, adminActor())
		require.NoError(t, err)

		// The conditional write itself refuses a non-pending row, independent
		// of the service's fast-path check.
		err = requests.Approve(ctx, request.ID, model.User{ID: "u2", Email: "dup@example.org"}, "admin-2", time.Now().UTC())
		requireStatus(t, err, http.StatusConflict)
	})

	t.Run("not found for unknown request", func(t *testing.T) {
		svc, _, _, _ := newRequestService(t)
		_, err := svc.Approve(context.Background(), "missing", adminActor())
		requireStatus(t, err, http.StatusNotFound)
	})
}

func TestReject(t *testing.T) {
	t.Parallel()

	t.Run("requires a reason", func(t *testing.T) {
		svc, _, _, _ := newRequestService(t)
		err := svc.Reject(context.Background(), "any", "   ", adminActor())
		requireStatus(t, err, http.StatusBadRequest)
	})

	t.Run("records the reason and the rejecting actor", func(t *testing.T) {
		svc, users, requests, _ := newRequestService(t)
		ctx := context.Background()

		request, err := svc.Submit(ctx, model.SubmitAccessRequest{
			Name: "Ana", Email: "ana@example.org", Password: "correct horse",
		}, "", "")
		require.NoError(t, err)

		require.NoError(t, svc.Reject(ctx, request.ID, "unverifiable identity", adminActor()))

		updated, err := requests.FindByID(ctx, request.ID)
		require.NoError(t, err)
		require.Equal(t, model.StatusRejected, updated.Status)
		require.NotNil(t, updated.RejectionReason)
		require.Equal(t, "unverifiable identity", *updated.RejectionReason)
		require.NotNil(t, updated.ApprovedBy)
		require.Equal(t, "admin-1", *updated.ApprovedBy)

		_, err = users.FindByEmail(ctx, "ana@example.org")
		requireStatus(t, err, http.StatusNotFound)
	})

	t.Run("conflicts on an already processed request", func(t *testing.T) {
		svc, _, _, _ := newRequestService(t)
		ctx := context.Background()

		request, err := svc.Submit(ctx, model.SubmitAccessRequest{
			Name: "Ana", Email: "ana@example.org", Password: "correct horse",
		}, "", "")
		require.NoError(t, err)
		require.NoError(t, svc.Reject(ctx, request.ID, "first", adminActor()))

		err = svc.Reject(ctx, request.ID, "second", adminActor())
		requireStatus(t, err, http.StatusConflict)
	})
}

func TestUpdateAccessRequest(t *testing.T) {
	t.Parallel()

	t.Run("edits pending fields", func(t *testing.T) {
		svc, _, _, _ := newRequestService(t)
		ctx := context.Background()

		request, err := svc.Submit(ctx, model.SubmitAccessRequest{
			Name: "Ana", Email: "ana@example.org", Password: "correct horse",
		}, "", "")
		require.NoError(t, err)

		name := "Ana Maria"
		role := model.RoleAdmin
		updated, err := svc.Update(ctx, request.ID, model.UpdateAccessRequest{Name: &name, Role: &role}, adminActor())
		require.NoError(t, err)
		require.Equal(t, "Ana Maria", updated.Name)
		require.Equal(t, model.RoleAdmin, updated.Role)
		require.Equal(t, model.StatusPending, updated.Status)
	})

	t.Run("refuses edits after processing", func(t *testing.T) {
		svc, _, _, _ := newRequestService(t)
		ctx := context.Background()

		request, err := svc.Submit(ctx, model.SubmitAccessRequest{
			Name: "Ana", Email: "ana@example.org", Password: "correct horse",
		}, "", "")
		require.NoError(t, err)
		_, err = svc.Approve(ctx, request.ID, adminActor())
		require.NoError(t, err)

		name := "Renamed"
		_, err = svc.Update(ctx, request.ID, model.UpdateAccessRequest{Name: &name}, adminActor())
		requireStatus(t, err, http.StatusConflict)
	})
}

func TestRemove(t *testing.T) {
	t.Parallel()

	svc, _, requests, _ := newRequestService(t)
	ctx := context.Background()

	request, err := svc.Submit(ctx, model.SubmitAccessRequest{
		Name: "Ana", Email: "ana@example.org", Password: "correct horse",
	}, "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, request.ID, adminActor()))

	_, err = requests.FindByID(ctx, request.ID)
	requireStatus(t, err, http.StatusNotFound)

	// A removed pending request frees the email for resubmission.
	_, err = svc.Submit(ctx, model.SubmitAccessRequest{
		Name: "Ana", Email: "ana@example.org", Password: "correct horse",
	}, "", "")
	require.NoError(t, err)
}

func TestStatistics(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newRequestService(t)
	ctx := context.Background()

	for _, email := range []string{"a@example.org", "b@example.org", "c@example.org"} {
		_, err := svc.Submit(ctx, model.SubmitAccessRequest{Name: "N", Email: email, Password: "correct horse"}, "", "")
		require.NoError(t, err)
	}

	list, _, err := svc.List(ctx, model.AccessRequestFilter{Status: model.StatusPending})
	require.NoError(t, err)
	require.Len(t, list, 3)

	_, err = svc.Approve(ctx, list[0].ID, adminActor())
	require.NoError(t, err)
	require.NoError(t, svc.Reject(ctx, list[1].ID, "no", adminActor()))

	stats, err := svc.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, model.AccessRequestStats{Total: 3, Pending: 1, Approved: 1, Rejected: 1, LastMonth: 3}, stats)

	pending, err := svc.HasPendingRequest(ctx, list[2].Email)
	require.NoError(t, err)
	require.True(t, pending)
}

func TestSubmitRaceLosesAtStore(t *testing.T) {
	t.Parallel()

	requests := newFakeRequestStore(newFakeUserStore())
	ctx := context.Background()

	// Seed a pending row directly so the store-level uniqueness check fires
	// even though the service pre-check was bypassed.
	require.NoError(t, requests.Create(ctx, model.AccessRequest{
		ID: "r1", Email: "ana@example.org", Status: model.StatusPending, CreatedAt: time.Now().UTC(),
	}))

	err := requests.Create(ctx, model.AccessRequest{
		ID: "r2", Email: "ana@example.org", Status: model.StatusPending, CreatedAt: time.Now().UTC(),
	})
	requireStatus(t, err, http.StatusConflict)
}
