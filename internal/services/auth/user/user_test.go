package user

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
)

const strongPassword = "Sup3r$ecret"

func TestCreateUserDefaults(t *testing.T) {
	input := CreateUserInput{Email: "alice@example.com", Username: "alice", Password: strongPassword}

	created, err := CreateUser(input, nil, func() (string, error) { return "user-1", nil })
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.Role != RoleUser || created.Status != StatusActive {
		t.Fatalf("expected user/active defaults, got %s/%s", created.Role, created.Status)
	}
	if !CheckPassword(created.PasswordHash, strongPassword) {
		t.Fatal("expected stored hash to match password")
	}

	_, err = CreateUser(input, nil, func() (string, error) { return "", errors.New("id generator error") })
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCreateUserNormalizesInput(t *testing.T) {
	fixedTime := time.Date(2026, 1, 23, 10, 0, 0, 0, time.UTC)
	input := CreateUserInput{
		Email:    "  Alice@Example.COM ",
		Username: "  Alice_01  ",
		Phone:    "+254 712-345-678",
		FullName: " Alice W ",
		Password: strongPassword,
	}

	created, err := CreateUser(input, func() time.Time { return fixedTime }, func() (string, error) {
		return "user-123", nil
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.Username != "Alice_01" {
		t.Fatalf("expected trimmed username, got %q", created.Username)
	}
	if created.Email != "alice@example.com" {
		t.Fatalf("expected lowercased email, got %q", created.Email)
	}
	if created.Phone != "+254712345678" {
		t.Fatalf("expected compact phone, got %q", created.Phone)
	}
	if created.FullName != "Alice W" {
		t.Fatalf("expected trimmed name, got %q", created.FullName)
	}
	if !created.CreatedAt.Equal(fixedTime) || !created.UpdatedAt.Equal(fixedTime) {
		t.Fatalf("expected timestamps to match fixed time")
	}
}

func TestCreateUserRejectsWeakPassword(t *testing.T) {
	_, err := CreateUser(CreateUserInput{Email: "a@example.com", Username: "alice", Password: "password"}, nil, nil)
	if apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestValidateUsernameFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "valid lowercase", input: "alice", wantErr: nil},
		{name: "valid mixed case", input: "Alice", wantErr: nil},
		{name: "valid with dashes", input: "alice-b", wantErr: nil},
		{name: "valid with underscores", input: "alice_b", wantErr: nil},
		{name: "valid min length", input: "abc", wantErr: nil},
		{name: "valid max length", input: "abcdefghijabcdefghijabcdefghijabcdefghijabcdefghij", wantErr: nil},
		{name: "too short", input: "ab", wantErr: ErrInvalidUsername},
		{name: "too long", input: "abcdefghijabcdefghijabcdefghijabcdefghijabcdefghijk", wantErr: ErrInvalidUsername},
		{name: "dot", input: "alice.b", wantErr: ErrInvalidUsername},
		{name: "space", input: "alice b", wantErr: ErrInvalidUsername},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if !errors.Is(err, tt.wantErr) && !(err == nil && tt.wantErr == nil) {
				t.Fatalf("ValidateUsername(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"jane@example.com", "jane@example.com", true},
		{" JANE@Example.com ", "jane@example.com", true},
		{"jane", "", false},
		{"jane@localhost", "", false},
		{"Jane <jane@example.com>", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := NormalizeEmail(tt.input)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("NormalizeEmail(%q) = %q, %v", tt.input, got, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("NormalizeEmail(%q) expected error", tt.input)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	if got, err := NormalizePhone(""); err != nil || got != "" {
		t.Fatalf("empty phone = %q, %v", got, err)
	}
	if _, err := NormalizePhone("12345"); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected invalid phone, got %v", err)
	}
	if got, _ := NormalizePhone("0712345678"); got != "0712345678" {
		t.Fatalf("unexpected phone %q", got)
	}
}

func TestNormalizeMAC(t *testing.T) {
	tests := map[string]string{
		"aa:bb:cc:dd:ee:ff": "AA:BB:CC:DD:EE:FF",
		"AA-BB-CC-DD-EE-FF": "AA:BB:CC:DD:EE:FF",
		"aabb.ccdd.eeff":    "AA:BB:CC:DD:EE:FF",
		"":                  "",
	}
	for input, want := range tests {
		got, err := NormalizeMAC(input)
		if err != nil || got != want {
			t.Errorf("NormalizeMAC(%q) = %q, %v; want %q", input, got, err, want)
		}
	}
	for _, bad := range []string{"aa:bb", "gg:hh:ii:jj:kk:ll"} {
		if _, err := NormalizeMAC(bad); err == nil {
			t.Errorf("NormalizeMAC(%q) expected error", bad)
		}
	}
}

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		role     Role
		required Role
		want     bool
	}{
		{RoleUser, RoleUser, true},
		{RoleUser, RoleAdmin, false},
		{RoleAdmin, RoleAdmin, true},
		{RoleSuperAdmin, RoleAdmin, true},
		{RoleAdmin, RoleSuperAdmin, false},
		{Role("guest"), RoleUser, false},
	}
	for _, tt := range tests {
		if got := tt.role.AtLeast(tt.required); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.role, tt.required, got, tt.want)
		}
	}
}

func TestParseStatusAndInactiveError(t *testing.T) {
	status, err := ParseStatus(" Suspended ")
	if err != nil || status != StatusSuspended {
		t.Fatalf("ParseStatus = %q, %v", status, err)
	}
	if _, err := ParseStatus("deleted"); err == nil {
		t.Fatal("expected invalid status")
	}
	err = User{Status: StatusBanned}.InactiveError()
	if err.Error() != "Account is banned" || apperrors.CodeOf(err) != apperrors.CodeAccountInactive {
		t.Fatalf("unexpected inactive error %v", err)
	}
}
