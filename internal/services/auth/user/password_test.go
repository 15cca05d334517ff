package user

import "testing"

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		wantErr  string
	}{
		{"Sup3r$ecret", ""},
		{"Ab1!", "Password must be at least 8 characters long"},
		{"sup3r$ecret", "Password must contain at least one uppercase letter"},
		{"SUP3R$ECRET", "Password must contain at least one lowercase letter"},
		{"Super$ecret", "Password must contain at least one digit"},
		{"Sup3rSecret", "Password must contain at least one special character"},
	}
	for _, tt := range tests {
		err := ValidatePasswordStrength(tt.password)
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("ValidatePasswordStrength(%q) = %v", tt.password, err)
			}
			continue
		}
		if err == nil || err.Error() != tt.wantErr {
			t.Errorf("ValidatePasswordStrength(%q) = %v, want %q", tt.password, err, tt.wantErr)
		}
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Sup3r$ecret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "Sup3r$ecret") {
		t.Fatal("expected match")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatal("expected mismatch")
	}
	if CheckPassword("", "Sup3r$ecret") {
		t.Fatal("expected empty hash to fail")
	}
}
