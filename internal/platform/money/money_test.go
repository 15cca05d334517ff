package money

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{in: "1200", want: 120000},
		{in: "1200.5", want: 120050},
		{in: "0.07", want: 7},
		{in: "-3.25", want: -325},
		{in: ".5", want: 50},
		{in: "", wantErr: true},
		{in: "1.234", wantErr: true},
		{in: "12.", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestString(t *testing.T) {
	if got := Amount(120050).String(); got != "1200.50" {
		t.Fatalf("String = %q", got)
	}
	if got := Amount(-5).String(); got != "-0.05" {
		t.Fatalf("String = %q", got)
	}
}

func TestJSON(t *testing.T) {
	var payload struct {
		Price Amount `json:"price"`
		Fee   Amount `json:"fee"`
	}
	if err := json.Unmarshal([]byte(`{"price": 99.99, "fee": "10"}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Price != 9999 || payload.Fee != 1000 {
		t.Fatalf("unexpected amounts %+v", payload)
	}
	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"price":99.99,"fee":10.00}` {
		t.Fatalf("unexpected json %s", out)
	}
}

func TestValidateCurrency(t *testing.T) {
	if code, err := ValidateCurrency(""); err != nil || code != "KES" {
		t.Fatalf("default currency = %q, %v", code, err)
	}
	if code, err := ValidateCurrency("usd"); err != nil || code != "USD" {
		t.Fatalf("usd = %q, %v", code, err)
	}
	if _, err := ValidateCurrency("ZZZ"); err == nil {
		t.Fatal("expected unknown currency error")
	}
}

func TestFormatterGroupsDigits(t *testing.T) {
	got := NewFormatter("en").Format(Amount(123456789), "KES")
	if !strings.HasPrefix(got, "KES ") {
		t.Fatalf("expected currency prefix, got %q", got)
	}
	if !strings.Contains(got, "1,234,567.89") {
		t.Fatalf("expected grouped digits, got %q", got)
	}
}
