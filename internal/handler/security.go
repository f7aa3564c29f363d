package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/easyeat/internal/domain/auth"
)

// APIKeyHeader carries the client's API key.
const APIKeyHeader = "X-API-Key"

type identityKey struct{}

// IdentityFromContext returns the identity stored by SecurityHandler.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}

// SecurityHandler authenticates requests via HMAC-SHA256 hashed API keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate resolves the API key of a request to an identity.
func (s *SecurityHandler) Authenticate(ctx context.Context, key string) (auth.Identity, error) {
	if key == "" {
		return auth.Identity{}, errUnauthorized
	}
	hash := auth.HashKey(s.pepper, key)

	info, err := s.apikeys.FindByHash(ctx, hash)
	switch {
	case errors.Is(err, auth.ErrKeyNotFound):
		return auth.Identity{}, errUnauthorized
	case err != nil:
		zctx.From(ctx).Warn("API key lookup failed", zap.Error(err))
		return auth.Identity{}, errAuthUnavailable
	}

	// The stored hash must match what we computed even if the lookup
	// returned a row.
	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
		return auth.Identity{}, errUnauthorized
	}
	return info.Identity(), nil
}

// Middleware rejects requests without a valid API key and stores the
// identity in the request context.
func (s *SecurityHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, id)
		ctx = zctx.With(ctx, zap.String("subject_id", id.ID), zap.String("role", string(id.Role)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects identities without role.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				writeError(w, r, errUnauthorized)
				return
			}
			if id.Role != role {
				writeError(w, r, errForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
