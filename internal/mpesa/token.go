package mpesa

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type fetchTokenFunc func(ctx context.Context) (token string, ttl time.Duration, err error)

// tokenCache keeps the OAuth bearer token until shortly before it expires.
// Concurrent callers share one refresh, and each stops waiting when its own
// ctx is done.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time

	group  singleflight.Group
	margin time.Duration
	now    func() time.Time
	fetch  fetchTokenFunc
}

func newTokenCache(fetch fetchTokenFunc, margin time.Duration, now func() time.Time) *tokenCache {
	return &tokenCache{fetch: fetch, margin: margin, now: now}
}

func (c *tokenCache) Get(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	// The shared fetch must not die with whichever caller started it.
	fctx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("token", func() (any, error) {
		if token, ok := c.cached(); ok {
			return token, nil
		}
		token, ttl, err := c.fetch(fctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = token
		c.expiresAt = c.now().Add(ttl - c.margin)
		c.mu.Unlock()
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *tokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, true
	}
	return "", false
}

// Invalidate drops the cached token, e.g. after the provider answered 401.
func (c *tokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}
