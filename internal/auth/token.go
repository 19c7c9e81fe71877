package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role the service issues.
const RoleAdmin = "admin"

// ErrInvalidToken is returned for malformed, expired or foreign tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims are the verified contents of a token.
type Claims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// Authenticator checks the admin passcode and issues HS256 tokens.
type Authenticator struct {
	passcodeHash string
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

// NewAuthenticator returns an authenticator. ttl defaults to 12h.
func NewAuthenticator(passcodeHash, secret string, ttl time.Duration, now func() time.Time) *Authenticator {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Authenticator{passcodeHash: passcodeHash, secret: []byte(secret), ttl: ttl, now: now}
}

// Login verifies passcode and returns a signed admin token with its expiry.
func (a *Authenticator) Login(passcode string) (string, time.Time, error) {
	if err := VerifyPasscode(a.passcodeHash, passcode); err != nil {
		if errors.Is(err, ErrInvalidPasscode) {
			return "", time.Time{}, err
		}
		return "", time.Time{}, fmt.Errorf("auth: verify passcode: %w", err)
	}
	return a.Issue("admin", RoleAdmin)
}

// Issue signs a token for subject with role.
func (a *Authenticator) Issue(subject, role string) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	})
	signed, err := tok.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse validates raw and returns its claims.
func (a *Authenticator) Parse(raw string) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidToken
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, ErrInvalidToken
	}
	return Claims{Subject: sub, Role: role, ExpiresAt: exp.Time}, nil
}
