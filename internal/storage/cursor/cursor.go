// Package cursor provides opaque page token encoding for list endpoints.
package cursor

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// DefaultPageSize applies when a request omits page_size.
	DefaultPageSize = 50
	// MaxPageSize caps page_size.
	MaxPageSize = 200
)

// Cursor is the decoded state of a page token.
type Cursor struct {
	// Offset is the number of rows already returned.
	Offset int `json:"off"`
	// QueryHash invalidates the token when the search or filter changes.
	QueryHash string `json:"qh,omitempty"`
}

// Encode encodes a cursor to an opaque base64 string.
func Encode(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode decodes an opaque page token.
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, fmt.Errorf("empty token")
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode base64: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("unmarshal cursor: %w", err)
	}
	if c.Offset < 0 {
		return Cursor{}, fmt.Errorf("invalid cursor offset %d", c.Offset)
	}
	return c, nil
}

// HashQuery computes a short hash of the query parts that shape a listing.
// Returns empty string when every part is empty.
func HashQuery(parts ...string) string {
	joined := strings.Join(parts, "\x00")
	if strings.Trim(joined, "\x00") == "" {
		return ""
	}
	h := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(h[:8])
}

// Page is a normalized page request.
type Page struct {
	Size   int
	Offset int
	hash   string
}

// Resolve normalizes page size and decodes the token against the current query.
func Resolve(pageSize int, token string, queryParts ...string) (Page, error) {
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	page := Page{Size: pageSize, hash: HashQuery(queryParts...)}
	if token == "" {
		return page, nil
	}
	c, err := Decode(token)
	if err != nil {
		return Page{}, err
	}
	if c.QueryHash != page.hash {
		return Page{}, fmt.Errorf("query changed since page token was created")
	}
	page.Offset = c.Offset
	return page, nil
}

// Next returns the token for the following page when the current page was
// full, or "" when the listing is exhausted. Callers fetch Size+1 rows and
// pass the fetched count.
func (p Page) Next(fetched int) (string, error) {
	if fetched <= p.Size {
		return "", nil
	}
	return Encode(Cursor{Offset: p.Offset + p.Size, QueryHash: p.hash})
}
