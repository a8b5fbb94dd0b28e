package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carelink/internal/claims"
	"carelink/pkg/apperr"
	"carelink/pkg/domain"
	"carelink/pkg/store"
)

const secret = "auth-app-test-secret-0123456789"

func newApp(t *testing.T) (*App, *claims.Verifier, *store.MemoryTokenRevoker) {
	t.Helper()
	signer, err := claims.NewSigner(claims.Options{Secret: secret})
	require.NoError(t, err)
	revoker := store.NewMemoryTokenRevoker()
	verifier, err := claims.NewVerifier(claims.Options{Secret: secret}, revoker)
	require.NoError(t, err)
	a, err := New(Config{
		Users:   store.NewMemoryRepository[domain.User](store.MemoryConfig{Unique: []string{"email"}}),
		Signer:  signer,
		Revoker: revoker,
	})
	require.NoError(t, err)
	return a, verifier, revoker
}

func register(t *testing.T, a *App, email string, role domain.Role) domain.User {
	t.Helper()
	u, err := a.Register(context.Background(), nil, RegisterInput{
		Email: email, Password: "correct horse", FirstName: "Ada", LastName: "Okafor", Role: string(role),
	})
	require.NoError(t, err)
	return u
}

func TestRegisterNormalisesAndHashes(t *testing.T) {
	a, _, _ := newApp(t)
	u, err := a.Register(context.Background(), nil, RegisterInput{
		Email: "  Nurse.Joy@Example.COM ", Password: "correct horse", FirstName: "Joy", LastName: "Mensah", Role: "nurse",
	})
	require.NoError(t, err)
	require.Equal(t, "nurse.joy@example.com", u.Email)
	require.Equal(t, domain.RoleNurse, u.Role)
	require.NotEqual(t, "correct horse", u.PasswordHash)
	require.NotEmpty(t, u.ID)
}

func TestRegisterRejections(t *testing.T) {
	a, _, _ := newApp(t)
	register(t, a, "taken@example.com", domain.RolePatient)
	admin := domain.Principal{SubjectID: "root", Role: domain.RoleAdmin}
	nurse := domain.Principal{SubjectID: "n", Role: domain.RoleNurse}

	base := RegisterInput{Email: "new@example.com", Password: "long enough", FirstName: "A", LastName: "B", Role: "PATIENT"}
	tests := []struct {
		name   string
		caller *domain.Principal
		mutate func(*RegisterInput)
		kind   apperr.Kind
	}{
		{"missing first name", nil, func(in *RegisterInput) { in.FirstName = " " }, apperr.Validation},
		{"bad email", nil, func(in *RegisterInput) { in.Email = "not-an-email" }, apperr.Validation},
		{"unknown role", nil, func(in *RegisterInput) { in.Role = "DOCTOR" }, apperr.Validation},
		{"short password", nil, func(in *RegisterInput) { in.Password = "short" }, apperr.Validation},
		{"duplicate email", nil, func(in *RegisterInput) { in.Email = "TAKEN@example.com" }, apperr.Conflict},
		{"anonymous admin", nil, func(in *RegisterInput) { in.Role = "ADMIN" }, apperr.Unauthorized},
		{"nurse creating admin", &nurse, func(in *RegisterInput) { in.Role = "ADMIN" }, apperr.Unauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := a.Register(context.Background(), tc.caller, in)
			require.True(t, apperr.Is(err, tc.kind), "got %v", err)
		})
	}

	in := base
	in.Role = "ADMIN"
	_, err := a.Register(context.Background(), &admin, in)
	require.NoError(t, err)
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	a, verifier, _ := newApp(t)
	u := register(t, a, "pat@example.com", domain.RolePatient)

	session, err := a.Login(context.Background(), "PAT@example.com", "correct horse")
	require.NoError(t, err)
	require.Equal(t, u.ID, session.User.ID)
	require.True(t, session.ExpiresAt.After(time.Now()))

	p, err := verifier.Verify(context.Background(), session.Token)
	require.NoError(t, err)
	require.Equal(t, u.ID, p.SubjectID)
	require.Equal(t, domain.RolePatient, p.Role)
}

func TestLoginFailuresLookTheSame(t *testing.T) {
	a, _, _ := newApp(t)
	register(t, a, "pat@example.com", domain.RolePatient)

	_, wrongPassword := a.Login(context.Background(), "pat@example.com", "wrong horse")
	_, unknownUser := a.Login(context.Background(), "ghost@example.com", "correct horse")
	require.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, unknownUser, ErrInvalidCredentials)
}

func TestLogoutRevokesToken(t *testing.T) {
	a, verifier, _ := newApp(t)
	register(t, a, "pat@example.com", domain.RolePatient)
	session, err := a.Login(context.Background(), "pat@example.com", "correct horse")
	require.NoError(t, err)

	c, err := verifier.Parse(session.Token)
	require.NoError(t, err)
	require.NoError(t, a.Logout(context.Background(), c))

	_, err = verifier.Verify(context.Background(), session.Token)
	require.ErrorIs(t, err, claims.ErrRevoked)
}

func TestAccountAccessRules(t *testing.T) {
	a, _, _ := newApp(t)
	ctx := context.Background()
	pat := register(t, a, "pat@example.com", domain.RolePatient)
	other := register(t, a, "other@example.com", domain.RolePatient)
	self := domain.Principal{SubjectID: pat.ID, Role: domain.RolePatient}
	admin := domain.Principal{SubjectID: "root", Role: domain.RoleAdmin}

	_, err := a.GetUser(ctx, self, other.ID)
	require.True(t, apperr.Is(err, apperr.Unauthorized))
	got, err := a.GetUser(ctx, self, pat.ID)
	require.NoError(t, err)
	require.Equal(t, pat.Email, got.Email)

	_, err = a.ListUsers(ctx, self, "")
	require.True(t, apperr.Is(err, apperr.Unauthorized))
	patients, err := a.ListUsers(ctx, admin, "patient")
	require.NoError(t, err)
	require.Len(t, patients, 2)

	newRole := "NURSE"
	_, err = a.UpdateUser(ctx, self, pat.ID, UpdateUserInput{Role: &newRole})
	require.ErrorIs(t, err, ErrRoleChange)
	updated, err := a.UpdateUser(ctx, admin, pat.ID, UpdateUserInput{Role: &newRole})
	require.NoError(t, err)
	require.Equal(t, domain.RoleNurse, updated.Role)
	require.True(t, updated.UpdatedAt.After(updated.CreatedAt) || updated.UpdatedAt.Equal(updated.CreatedAt))
	require.Equal(t, pat.CreatedAt, updated.CreatedAt)

	takenEmail := "OTHER@example.com"
	_, err = a.UpdateUser(ctx, self, pat.ID, UpdateUserInput{Email: &takenEmail})
	require.ErrorIs(t, err, ErrEmailAlreadyExists)

	require.True(t, apperr.Is(a.DeleteUser(ctx, self, other.ID), apperr.Unauthorized))
	require.NoError(t, a.DeleteUser(ctx, admin, other.ID))
	_, err = a.GetUser(ctx, admin, other.ID)
	require.True(t, apperr.Is(err, apperr.NotFound))
}

func TestChangePassword(t *testing.T) {
	a, _, _ := newApp(t)
	ctx := context.Background()
	pat := register(t, a, "pat@example.com", domain.RolePatient)
	self := domain.Principal{SubjectID: pat.ID, Role: domain.RolePatient}

	require.ErrorIs(t, a.ChangePassword(ctx, self, pat.ID, "wrong horse", "brand new pass"), ErrWrongPassword)
	require.True(t, apperr.Is(a.ChangePassword(ctx, self, pat.ID, "correct horse", "short"), apperr.Validation))
	require.True(t, apperr.Is(a.ChangePassword(ctx, self, "someone-else", "correct horse", "brand new pass"), apperr.Unauthorized))

	require.NoError(t, a.ChangePassword(ctx, self, pat.ID, "correct horse", "brand new pass"))
	_, err := a.Login(ctx, "pat@example.com", "correct horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.Login(ctx, "pat@example.com", "brand new pass")
	require.NoError(t, err)
}
