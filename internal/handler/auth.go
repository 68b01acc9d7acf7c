package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/foodcourt/internal/domain/auth"
)

// ScopeVouchers is required for the voucher administration endpoints.
const ScopeVouchers = auth.ScopeVouchers

// APIKeyHeader carries operator API keys.
const APIKeyHeader = "api_key"

var errUnauthorized = errors.New("unauthorized")

type customerKey struct{}

// CustomerFromContext returns the authenticated customer id, if any.
func CustomerFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(customerKey{}).(string)
	return id, ok && id != ""
}

// Authenticator resolves customers from HS256 bearer tokens and operators
// from HMAC-hashed API keys.
type Authenticator struct {
	secret  []byte
	apikeys auth.Repository
	pepper  string
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(jwtSecret []byte, apikeys auth.Repository, pepper string) *Authenticator {
	return &Authenticator{secret: jwtSecret, apikeys: apikeys, pepper: pepper}
}

// NewCustomerToken signs a bearer token whose subject is customerID.
func NewCustomerToken(secret []byte, customerID string, now time.Time, ttl time.Duration) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   customerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	s, err := tok.SignedString(secret)
	return s, errors.Wrap(err, "sign token")
}

func (a *Authenticator) customer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", errUnauthorized
	}

	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid || claims.Subject == "" {
		return "", errUnauthorized
	}
	return claims.Subject, nil
}

// RequireCustomer rejects requests without a valid bearer token.
func (a *Authenticator) RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.customer(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), customerKey{}, id)))
	})
}

// OptionalCustomer attaches the customer when a valid token is present
// and otherwise serves the request anonymously.
func (a *Authenticator) OptionalCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := a.customer(r); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), customerKey{}, id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAPIKey authenticates operators by the HMAC of their key and
// checks that the key carries scope.
func (a *Authenticator) RequireAPIKey(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				writeError(w, http.StatusUnauthorized, errUnauthorized.Error())
				return
			}

			hash := auth.HashKey(key, a.pepper)
			info, err := a.apikeys.FindByHash(r.Context(), hash)
			if err != nil {
				if !errors.Is(err, auth.ErrKeyNotFound) {
					fail(w, r, err)
					return
				}
				writeError(w, http.StatusUnauthorized, errUnauthorized.Error())
				return
			}
			// The stored row could differ from the computed hash if the
			// repository returned a stale row.
			if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
				writeError(w, http.StatusUnauthorized, errUnauthorized.Error())
				return
			}
			if !info.HasScope(scope) {
				writeError(w, http.StatusForbidden, "missing scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
