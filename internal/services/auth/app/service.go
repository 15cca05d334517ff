package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/id"
	"github.com/zmooth/zmooth/internal/platform/otel"
	"github.com/zmooth/zmooth/internal/services/auth/token"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	"github.com/zmooth/zmooth/internal/services/shared/audit"
	"github.com/zmooth/zmooth/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrBadCredentials hides whether the username or the password was wrong.
	ErrBadCredentials = apperrors.New(apperrors.CodeInvalidCredentials, "Incorrect username or password")

	errEmailTaken    = apperrors.WithMetadata(apperrors.CodeInvalidArgument, "Email already registered", map[string]string{"field": "email"})
	errUsernameTaken = apperrors.WithMetadata(apperrors.CodeInvalidArgument, "Username already taken", map[string]string{"field": "username"})
	errPhoneTaken    = apperrors.WithMetadata(apperrors.CodeInvalidArgument, "Phone number already registered", map[string]string{"field": "phone"})
)

var tracer = otel.Tracer("zmooth/auth")

// Service owns account lifecycle operations.
type Service struct {
	store       storage.Store
	issuer      *token.Issuer
	audit       audit.Recorder
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewService builds an auth service.
func NewService(store storage.Store, issuer *token.Issuer) *Service {
	return &Service{
		store:       store,
		issuer:      issuer,
		audit:       audit.NewRecorder(store, time.Now),
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// RegisterInput is the self-service sign-up form.
type RegisterInput struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	FullName string `json:"full_name"`
}

// Register creates an active customer and signs them in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (user.User, token.Pair, error) {
	ctx, span := tracer.Start(ctx, "auth.Register")
	defer span.End()

	created, err := s.createUser(ctx, user.CreateUserInput{
		Email:    in.Email,
		Username: in.Username,
		Phone:    in.Phone,
		FullName: in.FullName,
		Password: in.Password,
		Role:     user.RoleUser,
		Status:   user.StatusActive,
	})
	if err != nil {
		return user.User{}, token.Pair{}, err
	}
	pair, err := s.issue(created)
	if err != nil {
		return user.User{}, token.Pair{}, err
	}
	return created, pair, nil
}

func (s *Service) createUser(ctx context.Context, in user.CreateUserInput) (user.User, error) {
	normalized, err := user.NormalizeCreateUserInput(in)
	if err != nil {
		return user.User{}, err
	}
	if err := s.ensureUnique(ctx, normalized); err != nil {
		return user.User{}, err
	}
	created, err := user.CreateUser(normalized, s.clock, s.idGenerator)
	if err != nil {
		return user.User{}, err
	}
	if err := s.store.PutUser(ctx, created); err != nil {
		return user.User{}, err
	}
	return created, nil
}

func (s *Service) ensureUnique(ctx context.Context, in user.CreateUserInput) error {
	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		return errEmailTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if _, err := s.store.GetUserByUsername(ctx, in.Username); err == nil {
		return errUsernameTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if in.Phone != "" {
		if _, err := s.store.GetUserByPhone(ctx, in.Phone); err == nil {
			return errPhoneTaken
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return nil
}

// LoginInput identifies a sign-in attempt.
type LoginInput struct {
	// Identifier is a username or an email address.
	Identifier string `json:"username"`
	Password   string `json:"password"`
	IP         string `json:"-"`
	UserAgent  string `json:"-"`
}

// Login verifies credentials and issues a token pair. Every attempt is
// recorded, successful or not.
func (s *Service) Login(ctx context.Context, in LoginInput) (user.User, token.Pair, error) {
	ctx, span := tracer.Start(ctx, "auth.Login")
	defer span.End()

	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" || in.Password == "" {
		return user.User{}, token.Pair{}, apperrors.Invalid("username", "username and password are required")
	}

	found, err := s.lookup(ctx, identifier)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return user.User{}, token.Pair{}, err
	}
	if err != nil || !user.CheckPassword(found.PasswordHash, in.Password) {
		s.recordAttempt(ctx, in, found.ID, false, "bad_credentials")
		return user.User{}, token.Pair{}, ErrBadCredentials
	}
	if !found.Active() {
		s.recordAttempt(ctx, in, found.ID, false, "account_"+string(found.Status))
		return user.User{}, token.Pair{}, found.InactiveError()
	}

	now := s.clock().UTC()
	found.LastLogin = &now
	found.UpdatedAt = now
	if err := s.store.PutUser(ctx, found); err != nil {
		return user.User{}, token.Pair{}, err
	}
	s.recordAttempt(ctx, in, found.ID, true, "")
	span.SetAttributes(attribute.String("user.role", string(found.Role)))

	pair, err := s.issue(found)
	if err != nil {
		return user.User{}, token.Pair{}, err
	}
	return found, pair, nil
}

func (s *Service) lookup(ctx context.Context, identifier string) (user.User, error) {
	found, err := s.store.GetUserByUsername(ctx, identifier)
	if err == nil || !errors.Is(err, storage.ErrNotFound) || !strings.Contains(identifier, "@") {
		return found, err
	}
	return s.store.GetUserByEmail(ctx, identifier)
}

func (s *Service) recordAttempt(ctx context.Context, in LoginInput, userID string, success bool, reason string) {
	attemptID, err := s.idGenerator()
	if err != nil {
		return
	}
	_ = s.store.PutLoginAttempt(ctx, storage.LoginAttempt{
		ID:         attemptID,
		Identifier: strings.TrimSpace(in.Identifier),
		UserID:     userID,
		IP:         in.IP,
		UserAgent:  in.UserAgent,
		Success:    success,
		Reason:     reason,
		CreatedAt:  s.clock().UTC(),
	})
}

// Refresh rotates a token pair from a refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	claims, err := s.issuer.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		return token.Pair{}, err
	}
	current, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return token.Pair{}, err
	}
	return s.issue(current)
}

// Authenticate resolves an access token to an active user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (user.User, error) {
	claims, err := s.issuer.Verify(accessToken, token.TypeAccess)
	if err != nil {
		return user.User{}, err
	}
	return s.activeUser(ctx, claims.UserID)
}

func (s *Service) activeUser(ctx context.Context, userID string) (user.User, error) {
	current, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, apperrors.New(apperrors.CodeUnauthenticated, "Could not validate credentials")
	}
	if err != nil {
		return user.User{}, err
	}
	if !current.Active() {
		return user.User{}, current.InactiveError()
	}
	return current, nil
}

// Me returns the caller's account.
func (s *Service) Me(ctx context.Context, userID string) (user.User, error) {
	return s.activeUser(ctx, userID)
}

// ChangePassword replaces the caller's password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	current, err := s.activeUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.CheckPassword(current.PasswordHash, oldPassword) {
		return apperrors.Invalid("old_password", "Incorrect password")
	}
	if err := user.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}
	hash, err := user.HashPassword(newPassword)
	if err != nil {
		return err
	}
	current.PasswordHash = hash
	current.UpdatedAt = s.clock().UTC()
	return s.store.PutUser(ctx, current)
}

// CreateAdminInput is the super-admin form for operator accounts.
type CreateAdminInput struct {
	Email    string    `json:"email"`
	Username string    `json:"username"`
	Password string    `json:"password"`
	Phone    string    `json:"phone"`
	FullName string    `json:"full_name"`
	Role     user.Role `json:"role"`
}

// CreateAdmin creates an admin or super admin.
func (s *Service) CreateAdmin(ctx context.Context, in CreateAdminInput) (user.User, error) {
	if in.Role == "" {
		in.Role = user.RoleAdmin
	}
	if in.Role != user.RoleAdmin && in.Role != user.RoleSuperAdmin {
		return user.User{}, apperrors.Invalid("role", "role must be admin or super_admin")
	}
	created, err := s.createUser(ctx, user.CreateUserInput{
		Email:    in.Email,
		Username: in.Username,
		Phone:    in.Phone,
		FullName: in.FullName,
		Password: in.Password,
		Role:     in.Role,
		Status:   user.StatusActive,
	})
	if err != nil {
		return user.User{}, err
	}
	s.audit.Record(ctx, "create", "admins", []string{created.ID}, string(created.Role)+" "+created.Username)
	return created, nil
}

// ListAdmins lists admin and super admin accounts.
func (s *Service) ListAdmins(ctx context.Context, query storage.ListQuery) (storage.Page[user.User], error) {
	return s.store.ListUsers(ctx, storage.UserQuery{
		ListQuery: query,
		Roles:     []user.Role{user.RoleAdmin, user.RoleSuperAdmin},
	})
}

// ListAuditEvents lists admin mutations, newest first.
func (s *Service) ListAuditEvents(ctx context.Context, query storage.ListQuery) (storage.Page[storage.AuditEvent], error) {
	return s.store.ListAuditEvents(ctx, query)
}

// BootstrapAdmin describes the first super admin created at startup.
type BootstrapAdmin struct {
	Username string
	Email    string
	Password string
}

// EnsureSuperAdmin creates the bootstrap account unless the username exists.
// It reports whether an account was created.
func (s *Service) EnsureSuperAdmin(ctx context.Context, in BootstrapAdmin) (bool, error) {
	if strings.TrimSpace(in.Username) == "" || strings.TrimSpace(in.Password) == "" {
		return false, nil
	}
	if _, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(in.Username)); err == nil {
		return false, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}
	if _, err := s.createUser(ctx, user.CreateUserInput{
		Email:    in.Email,
		Username: in.Username,
		Password: in.Password,
		Role:     user.RoleSuperAdmin,
		Status:   user.StatusActive,
	}); err != nil {
		return false, fmt.Errorf("bootstrap super admin: %w", err)
	}
	return true, nil
}

func (s *Service) issue(u user.User) (token.Pair, error) {
	return s.issuer.IssuePair(token.Subject{UserID: u.ID, Username: u.Username, Role: string(u.Role)})
}
