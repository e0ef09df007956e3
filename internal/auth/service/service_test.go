package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	authdomain "github.com/smallbiznis/cabinet/internal/auth/domain"
	"github.com/smallbiznis/cabinet/internal/auth/repository"
	"github.com/smallbiznis/cabinet/internal/clock"
	"github.com/smallbiznis/cabinet/internal/testutil"
	"go.uber.org/zap"
)

type testEnv struct {
	svc   authdomain.Service
	clock *clock.FakeClock
	repo  authdomain.Repository
}

func newTestService(t *testing.T) (*testEnv, string) {
	t.Helper()

	dbConn := testutil.OpenDB(t)
	node := testutil.Node(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cabinet := testutil.SeedCabinet(t, dbConn, node, "cabinet-auth", now.AddDate(0, 0, 14), 50)

	repo, sessionRepo := repository.New(dbConn)
	fake := clock.NewFakeClock(now)
	svc := New(Params{
		Log:         zap.NewNop(),
		Repo:        repo,
		SessionRepo: sessionRepo,
		GenID:       node,
		Clock:       fake,
	})

	env := &testEnv{svc: svc, clock: fake, repo: repo}
	if _, err := svc.CreateUser(context.Background(), authdomain.CreateUserRequest{
		Email:     "Alice@Example.com",
		Password:  "correct-password",
		Role:      authdomain.RoleOwner,
		CabinetID: cabinet.ID,
	}); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return env, cabinet.ID.String()
}

func TestLoginWrongPassword(t *testing.T) {
	env, _ := newTestService(t)

	_, err := env.svc.Login(context.Background(), authdomain.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password",
	})
	if err != authdomain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	_, err = env.svc.Login(context.Background(), authdomain.LoginRequest{
		Email:    "nobody@example.com",
		Password: "correct-password",
	})
	if err != authdomain.ErrInvalidCredentials {
		t.Fatalf("unknown email must look like a wrong password, got %v", err)
	}
}

func TestCreateUserHashesPassword(t *testing.T) {
	env, cabinetID := newTestService(t)

	user, err := env.repo.FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if user.PasswordHash == nil || !strings.HasPrefix(*user.PasswordHash, "$argon2id$") {
		t.Fatalf("expected argon2id hash, got %v", user.PasswordHash)
	}
	if user.CabinetID == nil || user.CabinetID.String() != cabinetID {
		t.Fatalf("expected cabinet %s, got %v", cabinetID, user.CabinetID)
	}
	if user.DisplayName != "alice" {
		t.Fatalf("expected display name from email, got %q", user.DisplayName)
	}
}

func TestCreateUserValidation(t *testing.T) {
	env, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  authdomain.CreateUserRequest
		want error
	}{
		{"duplicate email", authdomain.CreateUserRequest{Email: "alice@example.com", Password: "another-password", Role: "super_admin"}, authdomain.ErrUserExists},
		{"short password", authdomain.CreateUserRequest{Email: "bob@example.com", Password: "short", Role: "super_admin"}, authdomain.ErrInvalidCredentials},
		{"bad email", authdomain.CreateUserRequest{Email: "not-an-email", Password: "long-enough", Role: "super_admin"}, authdomain.ErrInvalidCredentials},
		{"unknown role", authdomain.CreateUserRequest{Email: "bob@example.com", Password: "long-enough", Role: "janitor"}, authdomain.ErrInvalidRole},
		{"cabinet role without cabinet", authdomain.CreateUserRequest{Email: "bob@example.com", Password: "long-enough", Role: "assistant"}, authdomain.ErrMissingCabinet},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.CreateUser(ctx, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	admin, err := env.svc.CreateUser(ctx, authdomain.CreateUserRequest{
		Email:    "root@example.com",
		Password: "long-enough",
		Role:     authdomain.RoleSuperAdmin,
	})
	if err != nil {
		t.Fatalf("create super admin: %v", err)
	}
	if admin.CabinetID != nil {
		t.Fatalf("super admin must not belong to a cabinet")
	}
}

func TestSessionLifecycle(t *testing.T) {
	env, _ := newTestService(t)
	ctx := context.Background()

	result, err := env.svc.Login(ctx, authdomain.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.RawToken == "" {
		t.Fatal("expected raw token")
	}

	principal, err := env.svc.Authenticate(ctx, result.RawToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.User.Email != "alice@example.com" || principal.User.Role != authdomain.RoleOwner {
		t.Fatalf("unexpected principal %+v", principal.User)
	}

	if _, err := env.svc.Authenticate(ctx, "forged-token"); err != authdomain.ErrInvalidSession {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	if err := env.svc.Logout(ctx, result.RawToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.svc.Authenticate(ctx, result.RawToken); err != authdomain.ErrSessionRevoked {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestSessionExpires(t *testing.T) {
	env, _ := newTestService(t)
	ctx := context.Background()

	result, err := env.svc.Login(ctx, authdomain.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	env.clock.Advance(sessionTTL + time.Minute)
	if _, err := env.svc.Authenticate(ctx, result.RawToken); err != authdomain.ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	env, _ := newTestService(t)
	ctx := context.Background()

	user, err := env.repo.FindByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	current, err := env.svc.Login(ctx, authdomain.LoginRequest{Email: "alice@example.com", Password: "correct-password"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	other, err := env.svc.Login(ctx, authdomain.LoginRequest{Email: "alice@example.com", Password: "correct-password"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	if err := env.svc.ChangePassword(ctx, user.ID.String(), "brand-new-password", current.SessionID); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := env.svc.Authenticate(ctx, current.RawToken); err != nil {
		t.Fatalf("current session must survive: %v", err)
	}
	if _, err := env.svc.Authenticate(ctx, other.RawToken); err != authdomain.ErrSessionRevoked {
		t.Fatalf("other sessions must be revoked, got %v", err)
	}

	if _, err := env.svc.Login(ctx, authdomain.LoginRequest{Email: "alice@example.com", Password: "correct-password"}); err != authdomain.ErrInvalidCredentials {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := env.svc.Login(ctx, authdomain.LoginRequest{Email: "alice@example.com", Password: "brand-new-password"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
