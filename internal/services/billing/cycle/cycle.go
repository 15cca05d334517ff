// Package cycle implements billing-cycle and validity date arithmetic.
//
// Month arithmetic follows time.AddDate: a day that does not exist in the
// target month rolls into the next one, so Jan 31 plus one month is Mar 3
// (Mar 2 in leap years).
package cycle

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
)

// Cycle is a recurring billing interval.
type Cycle string

const (
	Daily     Cycle = "daily"
	Weekly    Cycle = "weekly"
	Monthly   Cycle = "monthly"
	Quarterly Cycle = "quarterly"
	Yearly    Cycle = "yearly"
)

// All lists the supported cycles in display order.
var All = []Cycle{Daily, Weekly, Monthly, Quarterly, Yearly}

// Parse normalizes a cycle keyword.
func Parse(value string) (Cycle, error) {
	c := Cycle(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range All {
		if c == known {
			return c, nil
		}
	}
	return "", apperrors.WithMetadata(apperrors.CodeInvalidArgument,
		"billing cycle must be daily, weekly, monthly, quarterly or yearly",
		map[string]string{"field": "billing_cycle", "value": value})
}

// Next returns the date one cycle after start.
func Next(start time.Time, c Cycle) (time.Time, error) {
	switch c {
	case Daily:
		return start.AddDate(0, 0, 1), nil
	case Weekly:
		return start.AddDate(0, 0, 7), nil
	case Monthly:
		return start.AddDate(0, 1, 0), nil
	case Quarterly:
		return start.AddDate(0, 3, 0), nil
	case Yearly:
		return start.AddDate(1, 0, 0), nil
	default:
		_, err := Parse(string(c))
		return time.Time{}, err
	}
}

var (
	minutesPattern = regexp.MustCompile(`([\d.]+)\s*(min|minute|minutes)`)
	hoursPattern   = regexp.MustCompile(`([\d.]+)\s*(hr|hour|hours)`)
	daysPattern    = regexp.MustCompile(`([\d.]+)\s*(day|days)`)
	weeksPattern   = regexp.MustCompile(`([\d.]+)\s*(week|weeks)`)
	monthsPattern  = regexp.MustCompile(`([\d.]+)\s*(month|months)`)
)

// ExpiryFromText derives an expiry from a duration phrase such as "30 min",
// "2 hours", "7 days", "1 week" or "1 month". Every matched unit is added.
// Unmatched text falls back to a few named packages and then to one day.
func ExpiryFromText(from time.Time, text string) time.Time {
	text = strings.ToLower(strings.TrimSpace(text))
	expires := from
	matched := false

	if value, ok := match(minutesPattern, text); ok {
		expires = expires.Add(time.Duration(value * float64(time.Minute)))
		matched = true
	}
	if value, ok := match(hoursPattern, text); ok {
		expires = expires.Add(time.Duration(value * float64(time.Hour)))
		matched = true
	}
	if value, ok := match(daysPattern, text); ok {
		expires = addFractionalDays(expires, value)
		matched = true
	}
	if value, ok := match(weeksPattern, text); ok {
		expires = addFractionalDays(expires, 7*value)
		matched = true
	}
	if value, ok := match(monthsPattern, text); ok {
		expires = expires.AddDate(0, int(value), 0)
		matched = true
	}
	if matched {
		return expires
	}

	switch text {
	case "30 min":
		return from.Add(30 * time.Minute)
	case "hourly unlimited":
		return from.Add(time.Hour)
	case "weekly super":
		return from.AddDate(0, 0, 7)
	case "monthly rocket":
		return from.AddDate(0, 1, 0)
	default:
		// "daily unlimited" and anything unrecognised.
		return from.AddDate(0, 0, 1)
	}
}

// Whole days keep calendar semantics across DST; the remainder is clock time.
func addFractionalDays(t time.Time, days float64) time.Time {
	whole := int(days)
	t = t.AddDate(0, 0, whole)
	if rest := days - float64(whole); rest > 0 {
		t = t.Add(time.Duration(rest * float64(24*time.Hour)))
	}
	return t
}

func match(pattern *regexp.Regexp, text string) (float64, bool) {
	groups := pattern.FindStringSubmatch(text)
	if groups == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(groups[1], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
