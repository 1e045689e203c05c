package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrAuthenticationFailed means the portal rejected the credentials. It is
// never retried: wrong credentials stay wrong.
var ErrAuthenticationFailed = errors.New("session: authentication failed")

const defaultAuthTTL = 15 * time.Minute

// Authenticator is the shared login coordinator. Workers race to fetch, but
// only one goroutine at a time may run the credential POST; everyone else
// queues on the mutex and finds the fresh timestamp when they get in.
type Authenticator struct {
	mu       sync.Mutex
	ttl      time.Duration
	lastAuth time.Time
	now      func() time.Time

	claimed map[string]bool
}

// NewAuthenticator builds a coordinator. A non-positive ttl means 15
// minutes, after which the next Ensure re-authenticates.
func NewAuthenticator(ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = defaultAuthTTL
	}
	return &Authenticator{
		ttl:     ttl,
		now:     time.Now,
		claimed: map[string]bool{},
	}
}

// Ensure runs login unless the last successful authentication is still
// fresh. Concurrent callers are serialized; the login function is invoked
// with the lock held so the portal never sees two interleaved logins.
func (a *Authenticator) Ensure(ctx context.Context, login func(context.Context) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.lastAuth.IsZero() && a.now().Sub(a.lastAuth) < a.ttl {
		return nil
	}
	if err := login(ctx); err != nil {
		return err
	}
	a.lastAuth = a.now()
	return nil
}

// Invalidate forces the next Ensure to re-authenticate, used when a fetch
// comes back as the login page despite a fresh timestamp.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastAuth = time.Time{}
}

// claimCookieFile registers a cookie file path with the coordinator. Two
// sessions writing the same file would corrupt each other's cookies, so a
// second claim is a construction-time error.
func (a *Authenticator) claimCookieFile(path string) error {
	if path == "" {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.claimed[path] {
		return fmt.Errorf("session: cookie file %q is already in use by another session", path)
	}
	a.claimed[path] = true
	return nil
}
