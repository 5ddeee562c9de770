package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"church-admin-api/internal/model"
	"church-admin-api/internal/token"
	"church-admin-api/pkg/apierror"
)

// AuthService is the authentication gateway: credential checks, token
// issuance and rotation, and the admin-facing user management operations.
type AuthService struct {
	users  UserStore
	issuer *token.Issuer
	hasher PasswordHasher
	audit  Auditor
}

func NewAuthService(users UserStore, issuer *token.Issuer, hasher PasswordHasher, audit Auditor) *AuthService {
	return &AuthService{users: users, issuer: issuer, hasher: hasher, audit: audit}
}

// Login authenticates by email and password. Every credential failure maps to
// the same generic Unauthorized so callers cannot enumerate accounts.
func (s *AuthService) Login(ctx context.Context, email string, password string) (model.LoginResult, error) {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if isNotFound(err) {
		recordAudit(ctx, s.audit, nil, "auth.login_failed", email, "unknown email")
		return model.LoginResult{}, apierror.Unauthorized("invalid credentials")
	}
	if err != nil {
		return model.LoginResult{}, err
	}

	if !user.Active {
		recordAudit(ctx, s.audit, &user.ID, "auth.login_failed", email, "inactive account")
		return model.LoginResult{}, apierror.Unauthorized("invalid credentials")
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		recordAudit(ctx, s.audit, &user.ID, "auth.login_failed", email, "wrong password")
		return model.LoginResult{}, apierror.Unauthorized("invalid credentials")
	}

	pair, err := s.issuer.IssuePair(user)
	if err != nil {
		return model.LoginResult{}, err
	}

	now := time.Now().UTC()
	if err := s.users.RecordLogin(ctx, user.ID, pair.RefreshToken, now); err != nil {
		return model.LoginResult{}, err
	}

	user.LastLogin = &now
	slog.Info("login succeeded", "user_id", user.ID, "role", user.Role)
	return model.LoginResult{User: user.Public(), Tokens: pair}, nil
}

// Refresh rotates the session. The presented token must be a valid refresh
// token and byte-equal to the one stored on the user row; rotation makes the
// previous token unusable immediately.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	claims, err := s.issuer.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		return model.TokenPair{}, apierror.Unauthorized("invalid refresh token")
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if isNotFound(err) {
		return model.TokenPair{}, apierror.Unauthorized("invalid refresh token")
	}
	if err != nil {
		return model.TokenPair{}, err
	}

	if !user.Active {
		return model.TokenPair{}, apierror.Unauthorized("invalid refresh token")
	}
	if user.RefreshToken == nil || *user.RefreshToken != refreshToken {
		recordAudit(ctx, s.audit, &user.ID, "auth.refresh_replayed", user.Email, "")
		return model.TokenPair{}, apierror.Unauthorized("invalid refresh token")
	}

	pair, err := s.issuer.IssuePair(user)
	if err != nil {
		return model.TokenPair{}, err
	}

	if err := s.users.SetRefreshToken(ctx, user.ID, &pair.RefreshToken); err != nil {
		return model.TokenPair{}, err
	}

	return pair, nil
}

// Logout clears the stored refresh token, invalidating the session.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.users.SetRefreshToken(ctx, userID, nil)
}

func (s *AuthService) GetUser(ctx context.Context, userID string) (model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.PublicUser{}, err
	}
	return user.Public(), nil
}

// ResolveActiveUser loads the live user row for an access-token subject. Role
// or active changes therefore apply on the next request, not at token expiry.
func (s *AuthService) ResolveActiveUser(ctx context.Context, userID string) (model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if isNotFound(err) {
		return model.User{}, apierror.Unauthorized("user not found")
	}
	if err != nil {
		return model.User{}, err
	}
	if !user.Active {
		return model.User{}, apierror.Unauthorized("user is inactive")
	}
	return user, nil
}

func (s *AuthService) VerifyAccessToken(tokenString string) (*token.Claims, error) {
	return s.issuer.Verify(tokenString, token.TypeAccess)
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, patch model.UpdateProfileRequest) (model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.PublicUser{}, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return model.PublicUser{}, apierror.Validation("name cannot be empty", "name")
		}
		user.Name = name
	}
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		if !validEmail(email) {
			return model.PublicUser{}, apierror.Validation("invalid email address", "email")
		}
		user.Email = email
	}

	if err := s.users.Update(ctx, user); err != nil {
		return model.PublicUser{}, err
	}
	return user.Public(), nil
}

// ChangePassword re-hashes and stores a new password. A user changing their
// own password must present the current one; an admin changing someone
// else's does not.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, currentPassword string, newPassword string, actor model.User) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	isSelf := actor.ID == userID
	if !isSelf && actor.Role != model.RoleAdmin {
		return apierror.Forbidden("only administrators can change another user's password")
	}

	if isSelf && !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return apierror.Unauthorized("current password is incorrect")
	}

	if len(newPassword) < minPasswordLength {
		return apierror.Validation("password must be at least 8 characters", "new_password")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	recordAudit(ctx, s.audit, &actor.ID, "auth.password_changed", user.Email, "")
	return nil
}

// CreateUser registers a user directly, bypassing the request workflow.
// Admin-only at the route level.
func (s *AuthService) CreateUser(ctx context.Context, input model.CreateUserRequest, creator model.User) (model.PublicUser, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	if input.Role == "" {
		input.Role = model.RoleSecretary
	}

	if input.Name == "" {
		return model.PublicUser{}, apierror.Validation("name is required", "name")
	}
	if !validEmail(input.Email) {
		return model.PublicUser{}, apierror.Validation("invalid email address", "email")
	}
	if len(input.Password) < minPasswordLength {
		return model.PublicUser{}, apierror.Validation("password must be at least 8 characters", "password")
	}
	if !model.ValidRole(input.Role) {
		return model.PublicUser{}, apierror.Validation("invalid role", input.Role)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return model.PublicUser{}, err
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         input.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.PublicUser{}, err
	}

	slog.Info("user registered", "user_id", user.ID, "role", user.Role, "created_by", creator.ID)
	recordAudit(ctx, s.audit, &creator.ID, "user.created", user.Email, user.Role)
	return user.Public(), nil
}

func (s *AuthService) ListUsers(ctx context.Context, filter model.UserFilter) ([]model.PublicUser, int, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	out := make([]model.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, total, nil
}

func (s *AuthService) UpdateUser(ctx context.Context, userID string, patch model.UpdateUserRequest, actor model.User) (model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.PublicUser{}, err
	}

	if patch.Active != nil && !*patch.Active && userID == actor.ID {
		return model.PublicUser{}, apierror.Validation("you cannot deactivate your own account", "active")
	}
	if patch.Role != nil && *patch.Role != user.Role && actor.Role != model.RoleAdmin {
		return model.PublicUser{}, apierror.Forbidden("only administrators can change roles")
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return model.PublicUser{}, apierror.Validation("name cannot be empty", "name")
		}
		user.Name = name
	}
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		if !validEmail(email) {
			return model.PublicUser{}, apierror.Validation("invalid email address", "email")
		}
		user.Email = email
	}
	if patch.Role != nil {
		if !model.ValidRole(*patch.Role) {
			return model.PublicUser{}, apierror.Validation("invalid role", *patch.Role)
		}
		user.Role = *patch.Role
	}
	if patch.Active != nil {
		user.Active = *patch.Active
	}

	if err := s.users.Update(ctx, user); err != nil {
		return model.PublicUser{}, err
	}

	recordAudit(ctx, s.audit, &actor.ID, "user.updated", user.Email, "")
	return user.Public(), nil
}

func (s *AuthService) DeleteUser(ctx context.Context, userID string, actor model.User) error {
	if userID == actor.ID {
		return apierror.Validation("you cannot delete your own account", "id")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.users.SoftDelete(ctx, userID); err != nil {
		return err
	}

	recordAudit(ctx, s.audit, &actor.ID, "user.deleted", user.Email, "")
	return nil
}

// EnsureAdmin seeds the first administrator account when the user table is
// empty, so a fresh deployment can be logged into.
func (s *AuthService) EnsureAdmin(ctx context.Context, name string, email string, password string) error {
	count, err := s.users.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	email = normalizeEmail(email)
	if !validEmail(email) || len(password) < minPasswordLength {
		slog.Warn("no users exist and ADMIN_EMAIL/ADMIN_PASSWORD are not usable; skipping admin seed")
		return nil
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	admin := model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, admin); err != nil {
		return err
	}

	slog.Info("seeded initial admin user", "email", email)
	return nil
}
