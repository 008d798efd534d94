package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// MinSecretLength is the HS256 key-size floor in bytes.
	MinSecretLength = 32

	// ClaimPrecision is the resolution of the validity window carried in tokens.
	ClaimPrecision = time.Millisecond

	DefaultTokenTTL = time.Hour
	DefaultIssuer   = "abroadguide-auth-gateway"
)

var (
	// ErrWeakSecret is returned when the signing secret is shorter than MinSecretLength.
	ErrWeakSecret = fmt.Errorf("auth: signing secret must be at least %d bytes", MinSecretLength)
	// ErrTokenTTLTooShort is returned when the TTL is below ClaimPrecision.
	ErrTokenTTLTooShort = fmt.Errorf("auth: token ttl must be at least %s", ClaimPrecision)
)

var signingMethod = jwt.SigningMethodHS256

// Claims carried by bearer tokens. Only the subject, issue and expiry times
// are meaningful; the role is resolved per request and never embedded.
//
// The registered iat and exp are whole seconds, so the exact window travels in
// IssuedAtMs and ExpiresAtMs (Unix milliseconds). exp is rounded up so it never
// ends before ExpiresAtMs.
type Claims struct {
	jwt.RegisteredClaims
	IssuedAtMs  int64 `json:"iat_ms"`
	ExpiresAtMs int64 `json:"exp_ms"`
}

// IssuedToken is the result of Tokens.Issue.
type IssuedToken struct {
	Token     string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Tokens signs and verifies stateless bearer tokens with a single
// process-wide HMAC secret. It is safe for concurrent use.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// TokenOption configures Tokens behavior.
type TokenOption func(*Tokens)

// WithTokenTTL configures token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(t *Tokens) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithTokenClock overrides time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(t *Tokens) {
		if fn != nil {
			t.now = fn
		}
	}
}

// WithTokenIssuer overrides the issuer claim.
func WithTokenIssuer(issuer string) TokenOption {
	return func(t *Tokens) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			t.issuer = issuer
		}
	}
}

// NewTokens constructs a token service. The secret is copied and the TTL is
// truncated to ClaimPrecision.
func NewTokens(secret []byte, opts ...TokenOption) (*Tokens, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	t := &Tokens{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultTokenTTL,
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ttl = t.ttl.Truncate(ClaimPrecision)
	if t.ttl < ClaimPrecision {
		return nil, ErrTokenTTLTooShort
	}
	return t, nil
}

// TTL returns the configured token lifetime.
func (t *Tokens) TTL() time.Duration { return t.ttl }

// Issue signs a token for subject valid for the configured TTL.
func (t *Tokens) Issue(subject string) (IssuedToken, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return IssuedToken{}, errors.New("subject is required")
	}
	now := t.now().UTC().Truncate(ClaimPrecision)
	expires := now.Add(t.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ceilSecond(expires)),
			ID:        uuid.NewString(),
		},
		IssuedAtMs:  now.UnixMilli(),
		ExpiresAtMs: expires.UnixMilli(),
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(t.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}
	return IssuedToken{
		Token:     signed,
		Subject:   subject,
		IssuedAt:  now,
		ExpiresAt: expires,
	}, nil
}

func ceilSecond(t time.Time) time.Time {
	if s := t.Truncate(time.Second); !s.Equal(t) {
		return s.Add(time.Second)
	}
	return t
}

// Validate verifies the token signature and expiry and returns its subject.
// It fails with ErrTokenMalformed, ErrTokenSignatureInvalid or ErrTokenExpired.
// A token presented exactly at its expiry instant is expired.
func (t *Tokens) Validate(token string) (string, error) {
	token = strings.TrimSpace(token)
	segments := strings.Split(token, ".")
	if len(segments) != 3 || segments[0] == "" || segments[1] == "" || segments[2] == "" {
		return "", ErrTokenMalformed
	}
	// A signature segment that is not canonical base64url was altered in transit.
	if _, err := base64.RawURLEncoding.Strict().DecodeString(segments[2]); err != nil {
		return "", ErrTokenSignatureInvalid
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrTokenSignatureInvalid
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrTokenExpired
		default:
			return "", ErrTokenMalformed
		}
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" || claims.IssuedAt == nil || claims.IssuedAtMs <= 0 || claims.ExpiresAtMs <= claims.IssuedAtMs {
		return "", ErrTokenMalformed
	}
	if !t.now().Before(time.UnixMilli(claims.ExpiresAtMs)) {
		return "", ErrTokenExpired
	}
	return subject, nil
}
