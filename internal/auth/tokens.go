package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// Tokens issues and checks bearer tokens.
type Tokens struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	tokens map[string]time.Time // token -> expiry
}

// NewTokens returns an empty token set. A non-positive ttl selects
// DefaultTokenTTL.
func NewTokens(ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{ttl: ttl, now: time.Now, tokens: make(map[string]time.Time)}
}

// Issue creates a new token and returns it with its expiry.
func (t *Tokens) Issue() (string, time.Time, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}
	token := hex.EncodeToString(b)

	t.mu.Lock()
	defer t.mu.Unlock()
	expiry := t.now().Add(t.ttl)
	t.tokens[token] = expiry
	return token, expiry, nil
}

// Valid reports whether token was issued and has not expired.
func (t *Tokens) Valid(token string) bool {
	if token == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	expiry, ok := t.tokens[token]
	return ok && t.now().Before(expiry)
}

// Revoke invalidates token.
func (t *Tokens) Revoke(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tokens, token)
}

// Prune drops expired tokens and returns how many were removed.
func (t *Tokens) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	n := 0
	for token, expiry := range t.tokens {
		if !now.Before(expiry) {
			delete(t.tokens, token)
			n++
		}
	}
	return n
}

// RunPruner calls Prune every interval until ctx is done.
func (t *Tokens) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Prune()
		}
	}
}
