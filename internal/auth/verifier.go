// Package auth guards the admin endpoints.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnauthorized = errors.New("missing or invalid credentials")
	ErrForbidden    = errors.New("admin role required")
)

// Modes: none accepts every caller (development), token compares a static
// bearer token, hmac verifies HS256 JWTs and requires the admin role claim.
type Config struct {
	Mode       string `koanf:"mode" validate:"oneof=none token hmac"`
	Token      string `koanf:"token" validate:"required_if=Mode token"`
	HMACSecret string `koanf:"hmac_secret" validate:"required_if=Mode hmac"`
	RoleClaim  string `koanf:"role_claim"`
	AdminRole  string `koanf:"admin_role"`
}

func DefaultConfig() Config {
	return Config{Mode: "none", RoleClaim: "role", AdminRole: "admin"}
}

type Principal struct {
	Subject string
	Role    string
}

func (p Principal) IsAdmin(adminRole string) bool { return p.Role == adminRole }

type Verifier struct {
	cfg Config
}

func NewVerifier(cfg Config) (*Verifier, error) {
	def := DefaultConfig()
	if cfg.Mode == "" { cfg.Mode = def.Mode }
	if cfg.RoleClaim == "" { cfg.RoleClaim = def.RoleClaim }
	if cfg.AdminRole == "" { cfg.AdminRole = def.AdminRole }
	switch cfg.Mode {
	case "none":
	case "token":
		if cfg.Token == "" { return nil, errors.New("auth: token mode needs a token") }
	case "hmac":
		if cfg.HMACSecret == "" { return nil, errors.New("auth: hmac mode needs a secret") }
	default:
		return nil, fmt.Errorf("auth: unknown mode %q", cfg.Mode)
	}
	return &Verifier{cfg: cfg}, nil
}

func (v *Verifier) Mode() string { return v.cfg.Mode }

// Verify checks a bearer token and returns its principal.
func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.cfg.Mode {
	case "none":
		return Principal{Subject: "anonymous", Role: v.cfg.AdminRole}, nil
	case "token":
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(v.cfg.Token)) != 1 {
			return Principal{}, ErrUnauthorized
		}
		return Principal{Subject: "token", Role: v.cfg.AdminRole}, nil
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return []byte(v.cfg.HMACSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil { return Principal{}, fmt.Errorf("%w: %v", ErrUnauthorized, err) }
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid { return Principal{}, ErrUnauthorized }
	sub, _ := claims.GetSubject()
	role, _ := claims[v.cfg.RoleClaim].(string)
	return Principal{Subject: sub, Role: role}, nil
}

// Admin authenticates r and requires the admin role.
func (v *Verifier) Admin(r *http.Request) (Principal, error) {
	p, err := v.Verify(BearerToken(r))
	if err != nil { return Principal{}, err }
	if !p.IsAdmin(v.cfg.AdminRole) { return p, ErrForbidden }
	return p, nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
