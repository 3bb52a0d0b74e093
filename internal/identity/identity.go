// Package identity resolves the signed-in user from the session token and
// carries it through request contexts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"feedesk/internal/core"
)

// CookieName is the session cookie set by the platform's login service.
const CookieName = "session"

var (
	ErrNoSession      = errors.New("no session")
	ErrInvalidSession = errors.New("invalid session")
)

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id core.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity carried by ctx.
func FromContext(ctx context.Context) (core.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(core.Identity)
	return id, ok
}

// Provider resolves the identity of an incoming request.
type Provider interface {
	Identify(r *http.Request) (core.Identity, error)
}

// Claims are the session token claims issued by the login service.
type Claims struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	SchoolID string `json:"school_id"`
	jwt.RegisteredClaims
}

// JWTProvider validates HS256 session tokens.
type JWTProvider struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

// Identify reads the token from the session cookie or an Authorization bearer header.
func (p *JWTProvider) Identify(r *http.Request) (core.Identity, error) {
	raw := tokenFromRequest(r)
	if raw == "" {
		return core.Identity{}, ErrNoSession
	}
	return p.Parse(raw)
}

// Parse validates raw and maps its claims to an identity.
func (p *JWTProvider) Parse(raw string) (core.Identity, error) {
	var claims Claims
	if _, err := p.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}); err != nil {
		return core.Identity{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return core.Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}
	return core.Identity{
		UserID:   claims.Subject,
		Name:     claims.Name,
		Role:     core.ParseRole(claims.Role),
		SchoolID: claims.SchoolID,
		Token:    raw,
	}, nil
}

// Issue signs a session token. The login service owns sessions in production;
// this exists for development tooling and tests.
func (p *JWTProvider) Issue(id core.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:     id.Name,
		Role:     string(id.Role),
		SchoolID: id.SchoolID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// StaticProvider always returns the same identity. Used by tests.
type StaticProvider struct {
	Identity core.Identity
	Err      error
}

func (s StaticProvider) Identify(*http.Request) (core.Identity, error) {
	return s.Identity, s.Err
}

// Middleware resolves the identity of each request and stores it in the context.
// Requests without a valid session are passed to onFail.
func Middleware(p Provider, onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := p.Identify(r)
			if err != nil {
				onFail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
