package domain

import (
	"strings"
	"testing"
	"time"
)

func TestAccessExpiry(t *testing.T) {
	from := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	if got := AccessExpiry(Plan{Name: "Gold", ValidityHours: 6}, from); !got.Equal(from.Add(6 * time.Hour)) {
		t.Fatalf("expected plan validity, got %v", got)
	}
	if got := AccessExpiry(Plan{Name: "2 Hours"}, from); !got.Equal(from.Add(2 * time.Hour)) {
		t.Fatalf("expected name parsing, got %v", got)
	}
	if got := AccessExpiry(Plan{Name: "Weekly Super"}, from); !got.Equal(from.AddDate(0, 0, 7)) {
		t.Fatalf("expected named fallback, got %v", got)
	}
	if got := AccessExpiry(Plan{Name: "Basic"}, from); !got.Equal(from.AddDate(0, 0, 1)) {
		t.Fatalf("expected one day default, got %v", got)
	}
}

func TestGenerateCredentials(t *testing.T) {
	creds, err := GenerateCredentials()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, value := range []string{creds.Username, creds.Password} {
		if len(value) != 8 {
			t.Fatalf("expected 8 characters, got %q", value)
		}
		for _, r := range value {
			if !strings.ContainsRune(CredentialAlphabet, r) {
				t.Fatalf("unexpected character %q in %q", r, value)
			}
		}
	}
}

func TestAccessAccountNormalize(t *testing.T) {
	account, err := AccessAccount{Username: " guest01 ", Password: "abcd1234"}.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if account.Username != "guest01" || account.Service != ServiceHotspot || account.Status != AccessActive {
		t.Fatalf("unexpected account %+v", account)
	}
	if _, err := (AccessAccount{Username: "a b c", Password: "abcd"}).Normalize(); err == nil {
		t.Fatal("expected username error")
	}
	if _, err := (AccessAccount{Username: "guest01", Password: "ab"}).Normalize(); err == nil {
		t.Fatal("expected password error")
	}
}
