// Package token issues and verifies HS256 access and refresh tokens.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/id"
)

// MinSecretLength is the shortest signing secret accepted.
const MinSecretLength = 32

// Type distinguishes access tokens from refresh tokens.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

const issuer = "zmooth"

// Config defines signing parameters.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// Subject is the identity a token is issued for.
type Subject struct {
	UserID   string
	Username string
	Role     string
}

// Claims are the validated claims of a token.
type Claims struct {
	Subject
	Type      Type
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Pair is the response of a login or refresh.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
	Type     Type   `json:"typ"`
}

// Issuer signs and verifies tokens.
type Issuer struct {
	cfg Config
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 30 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Issuer{cfg: cfg}, nil
}

// IssuePair signs a fresh access and refresh token for subject.
func (i *Issuer) IssuePair(subject Subject) (Pair, error) {
	access, err := i.sign(subject, TypeAccess, i.cfg.AccessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.sign(subject, TypeRefresh, i.cfg.RefreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(i.cfg.AccessTTL / time.Second),
	}, nil
}

func (i *Issuer) sign(subject Subject, typ Type, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject.UserID) == "" {
		return "", errors.New("token subject is required")
	}
	jti, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	now := i.cfg.Now().UTC()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject.UserID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: subject.Username,
		Role:     subject.Role,
		Type:     typ,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Verify parses raw and checks signature, expiry and token type.
func (i *Issuer) Verify(raw string, want Type) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "Could not validate credentials")
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(token *jwt.Token) (any, error) {
		return i.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.cfg.Now),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}
	if parsed.Type != want {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "Invalid token type")
	}
	if parsed.Subject == "" {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "Could not validate credentials")
	}

	claims := Claims{
		Subject: Subject{
			UserID:   parsed.Subject,
			Username: parsed.Username,
			Role:     parsed.Role,
		},
		Type: parsed.Type,
		ID:   parsed.ID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "Token has expired", err)
	}
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "Token signature is invalid", err)
	}
	return apperrors.Wrap(apperrors.CodeUnauthenticated, "Could not validate credentials", err)
}
