// Package app holds the account operations of the auth service.
package app

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"carelink/internal/claims"
	"carelink/internal/policy"
	"carelink/internal/util"
	"carelink/pkg/apperr"
	"carelink/pkg/auth"
	"carelink/pkg/domain"
	"carelink/pkg/store"
)

// Config holds the collaborators of the auth core.
type Config struct {
	Users   store.Repository[domain.User]
	Signer  *claims.Signer
	Revoker store.TokenRevoker
	Now     func() time.Time
}

// App is the auth core.
type App struct {
	users   store.Repository[domain.User]
	signer  *claims.Signer
	revoker store.TokenRevoker
	now     func() time.Time
}

func New(cfg Config) (*App, error) {
	if cfg.Users == nil {
		return nil, errors.New("auth app: user repository required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("auth app: token signer required")
	}
	if cfg.Revoker == nil {
		cfg.Revoker = store.NewMemoryTokenRevoker()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &App{users: cfg.Users, signer: cfg.Signer, revoker: cfg.Revoker, now: cfg.Now}, nil
}

type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Role        string `json:"role"`
	PhoneNumber string `json:"phoneNumber"`
}

// Register creates an account. caller is nil for anonymous sign-up; only an
// admin caller may create another admin.
func (a *App) Register(ctx context.Context, caller *domain.Principal, in RegisterInput) (domain.User, error) {
	if err := requireFields(in); err != nil {
		return domain.User{}, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return domain.User{}, err
	}
	role, ok := domain.ParseRole(in.Role)
	if !ok {
		return domain.User{}, ErrInvalidRole
	}
	if role == domain.RoleAdmin && (caller == nil || caller.Role != domain.RoleAdmin) {
		return domain.User{}, ErrAdminRegistration
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.User{}, apperr.Wrap(apperr.Validation, err.Error(), err).With("field", "password")
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, err
	}
	user, err := a.users.Create(ctx, domain.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
	})
	if apperr.Is(err, apperr.Conflict) {
		return domain.User{}, ErrEmailAlreadyExists
	}
	return user, err
}

func requireFields(in RegisterInput) error {
	for _, f := range []struct{ name, value string }{
		{"email", in.Email},
		{"password", in.Password},
		{"firstName", in.FirstName},
		{"lastName", in.LastName},
		{"role", in.Role},
	} {
		if strings.TrimSpace(f.value) == "" {
			return apperr.New(apperr.Validation, f.name+" is required").With("field", f.name)
		}
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Session is what a successful login returns.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      domain.User `json:"user"`
}

// Login checks the password and issues a credential.
func (a *App) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, apperr.New(apperr.Validation, "email and password are required")
	}
	user, err := store.FindOne(ctx, a.users, store.Where(store.Eq("email", email)))
	if apperr.Is(err, apperr.NotFound) {
		// Spend the same bcrypt time as a real check.
		auth.CheckPassword(password, dummyHash)
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}
	issued, err := a.signer.Issue(user.ID, user.Role)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.Internal, "issue token", err)
	}
	return Session{Token: issued.Token, ExpiresAt: issued.ExpiresAt, User: user}, nil
}

var dummyHash, _ = auth.HashPassword("carelink-timing-equaliser")

// Logout revokes the credential's id until it would have expired anyway.
func (a *App) Logout(ctx context.Context, c *claims.Claims) error {
	if c == nil || c.ID == "" || c.ExpiresAt == nil {
		return nil
	}
	ttl := c.ExpiresAt.Sub(a.now())
	if ttl <= 0 {
		return nil
	}
	if err := a.revoker.Revoke(ctx, c.ID, ttl); err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "revocation store unavailable", err)
	}
	util.LoggerFromContext(ctx).Info().Str("subject", c.Subject).Msg("credential revoked")
	return nil
}

// Me returns the caller's account.
func (a *App) Me(ctx context.Context, p domain.Principal) (domain.User, error) {
	return a.users.FindByID(ctx, p.SubjectID)
}

// GetUser returns an account visible to p: its own, or any for an admin.
func (a *App) GetUser(ctx context.Context, p domain.Principal, id string) (domain.User, error) {
	if err := policy.Check(p, policy.AccessOwnAccount, policy.Ownership{UserID: id}); err != nil {
		return domain.User{}, err
	}
	return a.users.FindByID(ctx, id)
}

// ListUsers lists accounts, optionally by role. Admin only.
func (a *App) ListUsers(ctx context.Context, p domain.Principal, role string) ([]domain.User, error) {
	if err := policy.Check(p, policy.AdminOnly, policy.Ownership{}); err != nil {
		return nil, err
	}
	f := store.Where().Sort("createdAt", true)
	if strings.TrimSpace(role) != "" {
		r, ok := domain.ParseRole(role)
		if !ok {
			return nil, ErrInvalidRole
		}
		f = f.And(store.Eq("role", r))
	}
	return a.users.FindMany(ctx, f)
}

type UpdateUserInput struct {
	Email       *string `json:"email"`
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	PhoneNumber *string `json:"phoneNumber"`
	Role        *string `json:"role"`
}

// UpdateUser edits profile fields. Only an admin may change a role.
func (a *App) UpdateUser(ctx context.Context, p domain.Principal, id string, in UpdateUserInput) (domain.User, error) {
	if err := policy.Check(p, policy.AccessOwnAccount, policy.Ownership{UserID: id}); err != nil {
		return domain.User{}, err
	}
	var role domain.Role
	if in.Role != nil {
		if p.Role != domain.RoleAdmin {
			return domain.User{}, ErrRoleChange
		}
		r, ok := domain.ParseRole(*in.Role)
		if !ok {
			return domain.User{}, ErrInvalidRole
		}
		role = r
	}
	var email string
	if in.Email != nil {
		e, err := normalizeEmail(*in.Email)
		if err != nil {
			return domain.User{}, err
		}
		email = e
	}
	for name, v := range map[string]*string{"firstName": in.FirstName, "lastName": in.LastName} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return domain.User{}, apperr.New(apperr.Validation, name+" must not be blank").With("field", name)
		}
	}
	user, err := a.users.Update(ctx, id, store.Patch[domain.User]{Apply: func(u *domain.User) error {
		if email != "" {
			u.Email = email
		}
		if in.FirstName != nil {
			u.FirstName = strings.TrimSpace(*in.FirstName)
		}
		if in.LastName != nil {
			u.LastName = strings.TrimSpace(*in.LastName)
		}
		if in.PhoneNumber != nil {
			u.PhoneNumber = strings.TrimSpace(*in.PhoneNumber)
		}
		if role != "" {
			u.Role = role
		}
		return nil
	}})
	if apperr.Is(err, apperr.Conflict) && email != "" {
		return domain.User{}, ErrEmailAlreadyExists
	}
	return user, err
}

// ChangePassword replaces the caller's own password.
func (a *App) ChangePassword(ctx context.Context, p domain.Principal, id, current, next string) error {
	if p.SubjectID != id {
		return apperr.New(apperr.Unauthorized, "not permitted").With("reason", policy.ReasonNotOwner)
	}
	if current == "" {
		return apperr.New(apperr.Validation, "currentPassword is required").With("field", "currentPassword")
	}
	if err := auth.ValidatePassword(next); err != nil {
		return apperr.Wrap(apperr.Validation, err.Error(), err).With("field", "newPassword")
	}
	user, err := a.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(current, user.PasswordHash) {
		return ErrWrongPassword
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	_, err = a.users.Update(ctx, id, store.Patch[domain.User]{
		IfVersion: user.Version,
		Apply: func(u *domain.User) error {
			u.PasswordHash = hash
			return nil
		},
	})
	return err
}

// DeleteUser removes an account. Admin only.
func (a *App) DeleteUser(ctx context.Context, p domain.Principal, id string) error {
	if err := policy.Check(p, policy.AdminOnly, policy.Ownership{}); err != nil {
		return err
	}
	return a.users.Delete(ctx, id)
}
