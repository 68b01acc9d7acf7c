// Package auth holds the credentials the HTTP layer accepts.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// ScopeVouchers allows issuing and revoking vouchers.
const ScopeVouchers = "vouchers:write"

// ErrKeyNotFound is returned when no active key has the given hash.
var ErrKeyNotFound = errors.New("api key not found")

// APIKeyInfo identifies an operator key. Only the HMAC of the key is stored.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key was granted scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// Repository looks up operator keys by hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex HMAC-SHA256 of key under pepper.
func HashKey(key, pepper string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}
