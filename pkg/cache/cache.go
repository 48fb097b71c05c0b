// Package cache holds previously generated responses keyed by a fingerprint
// of the conversation and target platform.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/logging"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

// DefaultTTL is how long a cached response stays valid.
const DefaultTTL = 5 * time.Minute

// Store persists cache entries. Implementations must be safe for concurrent
// use. Get returns (nil, nil) for a missing or expired key.
type Store interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	Set(ctx context.Context, entry *models.CacheEntry) error
	Delete(ctx context.Context, key string) error
}

// Sizer is implemented by stores that can cheaply count live entries.
type Sizer interface {
	Len() int
}

// GenerateKey fingerprints a message sequence for a platform. Identical
// sequences on the same platform always produce the same key; changing any
// role, content, message order or the platform changes the key.
func GenerateKey(messages []models.ChatMessage, platform models.Platform) string {
	h := sha256.New()
	h.Write([]byte("platform:"))
	h.Write([]byte(platform))
	h.Write([]byte{0})
	for _, m := range messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{':'})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ResponseCache fronts a Store. Store failures are logged and reported to
// callers as misses so generation always proceeds.
type ResponseCache struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// NewResponseCache creates a cache over store.
func NewResponseCache(store Store, logger *zap.Logger) *ResponseCache {
	return &ResponseCache{
		store:  store,
		logger: logger.Named("response-cache"),
		now:    time.Now,
	}
}

// Get returns the cached response for key, if any.
func (c *ResponseCache) Get(ctx context.Context, key string) (string, bool) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Cache read failed, treating as miss",
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)))
		c.misses.Add(1)
		return "", false
	}
	if entry == nil {
		c.misses.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return entry.Response, true
}

// Set stores response under key stamped with the current time, replacing any
// previous entry.
func (c *ResponseCache) Set(ctx context.Context, key, response string) {
	err := c.store.Set(ctx, &models.CacheEntry{
		Key:       key,
		Response:  response,
		Timestamp: c.now(),
	})
	if err != nil {
		c.logger.Warn("Cache write failed",
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)))
	}
}

// Invalidate removes key. Used when a cached response failed the quality gate.
func (c *ResponseCache) Invalidate(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("Cache delete failed",
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)))
	}
}

// Stats reports hit/miss counters and, when the store supports it, the
// number of live entries (-1 otherwise).
func (c *ResponseCache) Stats() models.CacheStats {
	entries := -1
	if s, ok := c.store.(Sizer); ok {
		entries = s.Len()
	}
	return models.CacheStats{
		Entries: entries,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
