// Package export renders tabular records as CSV downloads.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"
)

// ContentType is the MIME type of CSV downloads.
const ContentType = "text/csv; charset=utf-8"

// CSV renders header and rows with RFC 4180 quoting.
func CSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if len(row) != len(header) {
			return nil, fmt.Errorf("csv row has %d columns, header has %d", len(row), len(header))
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename builds "<resource>-YYYY-MM-DD.<ext>".
func Filename(resource string, now time.Time, ext string) string {
	resource = strings.Trim(strings.ToLower(strings.TrimSpace(resource)), "-")
	if resource == "" {
		resource = "export"
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "csv"
	}
	return fmt.Sprintf("%s-%s.%s", resource, now.UTC().Format("2006-01-02"), ext)
}

// YesNo renders booleans the way the console's CSV columns do.
func YesNo(value bool) string {
	if value {
		return "Yes"
	}
	return "No"
}

// Date renders a calendar date, or "" for the zero time.
func Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// DateTime renders a timestamp, or "" for the zero time.
func DateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
