package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/maneesh/voicehub/internal/apperr"
	"github.com/maneesh/voicehub/internal/models"
)

// DefaultAudience is the audience the managed auth provider puts in
// tokens issued to signed-in users.
const DefaultAudience = "authenticated"

// Identity is the verified caller.
type Identity struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// Verifier resolves a bearer token to an Identity.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
}

// Config defines token verification settings. Either Issuer (discovery) or
// JWKSURL must be set.
type Config struct {
	Issuer   string
	JWKSURL  string
	Audience string
}

// OIDCVerifier validates provider-issued JWTs against the provider's keys.
type OIDCVerifier struct {
	verifier *gooidc.IDTokenVerifier
}

// NewOIDCVerifier builds a verifier based on the provided Config.
func NewOIDCVerifier(ctx context.Context, cfg Config) (*OIDCVerifier, error) {
	audience := cfg.Audience
	if audience == "" {
		audience = DefaultAudience
	}

	switch {
	case cfg.JWKSURL != "":
		ks := gooidc.NewRemoteKeySet(ctx, cfg.JWKSURL)
		ver := gooidc.NewVerifier(cfg.Issuer, ks, &gooidc.Config{
			ClientID:        audience,
			SkipIssuerCheck: cfg.Issuer == "",
		})
		return &OIDCVerifier{verifier: ver}, nil
	case cfg.Issuer != "":
		provider, err := gooidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("auth: provider discovery failed: %w", err)
		}
		return &OIDCVerifier{verifier: provider.Verifier(&gooidc.Config{ClientID: audience})}, nil
	default:
		return nil, errors.New("auth: either issuer or jwks url must be provided")
	}
}

// Verify parses and validates rawToken.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	idt, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("auth: token verification failed: %w", err)
	}

	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := idt.Claims(&claims); err != nil {
		return nil, fmt.Errorf("auth: parse claims: %w", err)
	}
	if claims.Sub == "" {
		return nil, errors.New("auth: token has no subject")
	}

	return &Identity{
		UserID:    claims.Sub,
		Email:     claims.Email,
		Role:      claims.Role,
		ExpiresAt: idt.Expiry.UTC(),
	}, nil
}

// StaticVerifier maps fixed tokens to identities. Used for local
// development and tests.
type StaticVerifier map[string]Identity

// ParseStaticTokens parses "token:userID,token2:userID2".
func ParseStaticTokens(s string) StaticVerifier {
	v := StaticVerifier{}
	for _, entry := range strings.Split(s, ",") {
		token, user, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || token == "" || user == "" {
			continue
		}
		v[token] = Identity{UserID: user, Role: DefaultAudience}
	}
	return v
}

func (v StaticVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	id, ok := v[rawToken]
	if !ok {
		return nil, errors.New("auth: unknown token")
	}
	return &id, nil
}

type contextKey struct{}

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	if id == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok && id != nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	return raw, raw != ""
}

// Middleware enforces bearer auth. Preflight requests pass through so CORS
// can answer them.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := BearerToken(r)
			if !ok {
				writeUnauthorized(w, apperr.Unauthorized("missing bearer token"))
				return
			}

			id, err := v.Verify(r.Context(), raw)
			if err != nil {
				slog.Debug("Rejected bearer token", "error", err)
				writeUnauthorized(w, apperr.Unauthorized("invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, err *apperr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{
		Error: err.Message,
		Code:  string(err.Kind),
	})
}
