package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/services/auth/token"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	"github.com/zmooth/zmooth/internal/storage"
	"github.com/zmooth/zmooth/internal/storage/sqlite"
)

const testPassword = "Str0ng!pass"

func newTestService(t *testing.T) (*Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	issuer, err := token.NewIssuer(token.Config{Secret: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return NewService(store, issuer), store
}

func register(t *testing.T, svc *Service, username string) user.User {
	t.Helper()
	created, _, err := svc.Register(context.Background(), RegisterInput{
		Email:    username + "@example.com",
		Username: username,
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return created
}

func TestRegisterCreatesActiveUser(t *testing.T) {
	svc, _ := newTestService(t)
	created, pair, err := svc.Register(context.Background(), RegisterInput{
		Email:    "Alice@Example.com",
		Username: "alice",
		Password: testPassword,
		Phone:    "+254712345678",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created.Role != user.RoleUser || created.Status != user.StatusActive || created.Email != "alice@example.com" {
		t.Fatalf("unexpected user %+v", created)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected token pair")
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	if _, _, err := svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Username: "alice", Password: testPassword, Phone: "0712345678"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	tests := []struct {
		name string
		in   RegisterInput
		want string
	}{
		{"email", RegisterInput{Email: "A@example.com", Username: "bob", Password: testPassword}, "Email already registered"},
		{"username", RegisterInput{Email: "b@example.com", Username: "ALICE", Password: testPassword}, "Username already taken"},
		{"phone", RegisterInput{Email: "c@example.com", Username: "carol", Password: testPassword, Phone: "0712345678"}, "Phone number already registered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(context.Background(), tt.in)
			domainErr, ok := apperrors.As(err)
			if !ok || domainErr.Message != tt.want {
				t.Fatalf("expected %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Username: "alice", Password: "password"})
	if apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestLoginByUsernameOrEmail(t *testing.T) {
	svc, store := newTestService(t)
	register(t, svc, "alice")

	for _, identifier := range []string{"alice", "alice@example.com"} {
		got, pair, err := svc.Login(context.Background(), LoginInput{Identifier: identifier, Password: testPassword, IP: "10.0.0.9"})
		if err != nil {
			t.Fatalf("login %s: %v", identifier, err)
		}
		if got.LastLogin == nil || pair.AccessToken == "" {
			t.Fatalf("expected last login and tokens for %s", identifier)
		}
	}

	_, _, err := svc.Login(context.Background(), LoginInput{Identifier: "alice", Password: "Wrong!pass1"})
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected bad credentials, got %v", err)
	}
	_, _, err = svc.Login(context.Background(), LoginInput{Identifier: "nobody", Password: testPassword})
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected bad credentials for unknown user, got %v", err)
	}

	failed, err := store.ListLoginAttempts(context.Background(), true, time.Time{}, storage.ListQuery{})
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(failed.Items) != 2 {
		t.Fatalf("expected two failed attempts, got %d", len(failed.Items))
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	svc, store := newTestService(t)
	created := register(t, svc, "alice")
	if _, err := store.SetUsersStatus(context.Background(), []string{created.ID}, user.StatusSuspended, time.Now()); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	_, _, err := svc.Login(context.Background(), LoginInput{Identifier: "alice", Password: testPassword})
	domainErr, ok := apperrors.As(err)
	if !ok || domainErr.Code != apperrors.CodeAccountInactive || domainErr.Message != "Account is suspended" {
		t.Fatalf("expected inactive error, got %v", err)
	}
}

func TestRefreshAndAuthenticate(t *testing.T) {
	svc, store := newTestService(t)
	created := register(t, svc, "alice")
	_, pair, err := svc.Login(context.Background(), LoginInput{Identifier: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := svc.Refresh(context.Background(), pair.AccessToken); err == nil {
		t.Fatal("expected access token to be rejected for refresh")
	}
	rotated, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	current, err := svc.Authenticate(context.Background(), rotated.AccessToken)
	if err != nil || current.ID != created.ID {
		t.Fatalf("authenticate: %v %+v", err, current)
	}

	if _, err := store.SetUsersStatus(context.Background(), []string{created.ID}, user.StatusBanned, time.Now()); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), rotated.AccessToken); apperrors.CodeOf(err) != apperrors.CodeAccountInactive {
		t.Fatalf("expected banned account to be rejected, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	created := register(t, svc, "alice")

	if err := svc.ChangePassword(context.Background(), created.ID, "Wrong!pass1", "N3w!password"); err == nil {
		t.Fatal("expected wrong old password to fail")
	}
	if err := svc.ChangePassword(context.Background(), created.ID, testPassword, "weak"); err == nil {
		t.Fatal("expected weak password to fail")
	}
	if err := svc.ChangePassword(context.Background(), created.ID, testPassword, "N3w!password"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), LoginInput{Identifier: "alice", Password: "N3w!password"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestCreateAdminAndList(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "alice")

	if _, err := svc.CreateAdmin(context.Background(), CreateAdminInput{Email: "x@example.com", Username: "ops", Password: testPassword, Role: user.RoleUser}); err == nil {
		t.Fatal("expected user role to be rejected")
	}
	admin, err := svc.CreateAdmin(context.Background(), CreateAdminInput{Email: "ops@example.com", Username: "ops", Password: testPassword})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if admin.Role != user.RoleAdmin {
		t.Fatalf("expected admin role, got %s", admin.Role)
	}

	page, err := svc.ListAdmins(context.Background(), storage.ListQuery{})
	if err != nil {
		t.Fatalf("list admins: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Username != "ops" {
		t.Fatalf("expected only ops, got %+v", page.Items)
	}
	events, err := svc.ListAuditEvents(context.Background(), storage.ListQuery{})
	if err != nil || len(events.Items) != 1 {
		t.Fatalf("expected one audit event, got %v %v", events.Items, err)
	}
}

func TestEnsureSuperAdminIsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	in := BootstrapAdmin{Username: "root", Email: "root@example.com", Password: testPassword}
	created, err := svc.EnsureSuperAdmin(context.Background(), in)
	if err != nil || !created {
		t.Fatalf("expected creation, got %v %v", created, err)
	}
	created, err = svc.EnsureSuperAdmin(context.Background(), in)
	if err != nil || created {
		t.Fatalf("expected no-op, got %v %v", created, err)
	}
	root, err := store.GetUserByUsername(context.Background(), "root")
	if err != nil || root.Role != user.RoleSuperAdmin {
		t.Fatalf("expected super admin, got %+v %v", root, err)
	}
	if ok, err := svc.EnsureSuperAdmin(context.Background(), BootstrapAdmin{}); ok || err != nil {
		t.Fatalf("expected empty bootstrap to be skipped")
	}
}
