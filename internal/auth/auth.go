package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/storage"
)

// Authenticator resolves a bearer credential to a participant. Token
// issuance and password verification belong to an external identity
// service; the dispatch core only consumes the resolved identity and
// role.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// TokenMap is the shipped resolver: opaque bearer tokens mapped to
// user IDs, looked up against the user store on every request so
// activation state is always current.
type TokenMap struct {
	mu     sync.RWMutex
	tokens map[string]string
	users  storage.UserStore
}

func NewTokenMap(users storage.UserStore) *TokenMap {
	return &TokenMap{tokens: make(map[string]string), users: users}
}

// Issue mints an opaque token for userID.
func (t *TokenMap) Issue(userID string) string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	token := hex.EncodeToString(b)
	t.mu.Lock()
	t.tokens[token] = userID
	t.mu.Unlock()
	return token
}

func (t *TokenMap) Authenticate(ctx context.Context, token string) (*models.User, error) {
	t.mu.RLock()
	userID, ok := t.tokens[token]
	t.mu.RUnlock()
	if !ok {
		return nil, models.ErrUnauthorized
	}
	u, err := t.users.GetUser(ctx, userID)
	if err != nil {
		return nil, models.ErrUnauthorized
	}
	return u, nil
}
