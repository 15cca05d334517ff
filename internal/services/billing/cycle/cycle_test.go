package cycle

import (
	"testing"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
}

func TestNext(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		cycle Cycle
		want  time.Time
	}{
		{"daily", date(2025, 1, 1), Daily, date(2025, 1, 2)},
		{"daily year end", date(2024, 12, 31), Daily, date(2025, 1, 1)},
		{"weekly", date(2025, 1, 14), Weekly, date(2025, 1, 21)},
		{"monthly", date(2025, 1, 1), Monthly, date(2025, 2, 1)},
		{"monthly overflow", date(2025, 1, 31), Monthly, date(2025, 3, 3)},
		{"monthly overflow leap year", date(2024, 1, 31), Monthly, date(2024, 3, 2)},
		{"quarterly", date(2025, 1, 1), Quarterly, date(2025, 4, 1)},
		{"quarterly overflow", date(2025, 11, 30), Quarterly, date(2026, 3, 2)},
		{"yearly", date(2025, 6, 15), Yearly, date(2026, 6, 15)},
		{"yearly leap day", date(2024, 2, 29), Yearly, date(2025, 3, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.start, tt.cycle)
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Next(%v, %s) = %v, want %v", tt.start, tt.cycle, got, tt.want)
			}
		})
	}
}

func TestNextRejectsUnknownCycle(t *testing.T) {
	_, err := Next(date(2025, 1, 1), Cycle("fortnightly"))
	if apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestParse(t *testing.T) {
	got, err := Parse(" Monthly ")
	if err != nil || got != Monthly {
		t.Fatalf("Parse = %q, %v", got, err)
	}
	if _, err := Parse("biweekly"); err == nil {
		t.Fatal("expected error")
	}
}

func TestExpiryFromText(t *testing.T) {
	from := time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		text string
		want time.Time
	}{
		{"30 min", from.Add(30 * time.Minute)},
		{"45 minutes", from.Add(45 * time.Minute)},
		{"2 hours", from.Add(2 * time.Hour)},
		{"1.5 hr", from.Add(90 * time.Minute)},
		{"7 days", from.AddDate(0, 0, 7)},
		{"1 week", from.AddDate(0, 0, 7)},
		{"1 month", time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)},
		{"1 day 2 hours", from.AddDate(0, 0, 1).Add(2 * time.Hour)},
		{"Hourly Unlimited", from.Add(time.Hour)},
		{"daily unlimited", from.AddDate(0, 0, 1)},
		{"weekly super", from.AddDate(0, 0, 7)},
		{"monthly rocket", from.AddDate(0, 1, 0)},
		{"gold", from.AddDate(0, 0, 1)},
		{"", from.AddDate(0, 0, 1)},
	}
	for _, tt := range tests {
		if got := ExpiryFromText(from, tt.text); !got.Equal(tt.want) {
			t.Errorf("ExpiryFromText(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
