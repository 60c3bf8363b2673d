package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Session is one public world instance as returned by the sessions endpoint.
type Session struct {
	Name  string        `json:"name"`
	Users []SessionUser `json:"sessionUsers"`
}

type SessionUser struct {
	UserID    string `json:"userID"`
	IsPresent bool   `json:"isPresent"`
}

// Fetcher retrieves the current public session list.
type Fetcher interface {
	Sessions(ctx context.Context) ([]Session, error)
}

// Cache holds the most recent session snapshot. The snapshot is replaced
// wholesale on every successful refresh; a failed refresh keeps the last
// good snapshot.
type Cache struct {
	fetcher Fetcher
	log     *zap.Logger

	mu       sync.RWMutex
	snapshot []Session
}

func New(fetcher Fetcher, log *zap.Logger) *Cache {
	return &Cache{fetcher: fetcher, log: log}
}

func (c *Cache) Refresh(ctx context.Context) error {
	sessions, err := c.fetcher.Sessions(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.snapshot = sessions
	c.mu.Unlock()
	return nil
}

// FindActiveWorld returns the name of the first session in snapshot order
// where userID appears with IsPresent set. A user present in more than one
// session resolves to the first match; that is policy, not an error.
func (c *Cache) FindActiveWorld(userID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, session := range c.snapshot {
		for _, user := range session.Users {
			if user.UserID == userID && user.IsPresent {
				return session.Name, true
			}
		}
	}
	return "", false
}

// Run refreshes the snapshot on a fixed interval until ctx is cancelled.
// Refresh failures are logged and the stale snapshot stays queryable.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.log.Warn("session refresh failed, keeping last snapshot", zap.Error(err))
			}
		}
	}
}
