// Package cache holds the in-process pipeline result cache.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/domain"
	"github.com/satriahrh/kuber/server/domain/entities"
	"github.com/satriahrh/kuber/server/domain/repositories"
	"github.com/satriahrh/kuber/server/internal/metrics"
)

const (
	defaultTTL     = 300 * time.Second
	defaultMaxSize = 1000
)

// Config holds result cache settings
type Config struct {
	DefaultTTL time.Duration
	MaxSize    int
}

// Stats is a point-in-time view of the cache
type Stats struct {
	TotalEntries   int     `json:"total_entries"`
	ActiveEntries  int     `json:"active_entries"`
	ExpiredEntries int     `json:"expired_entries"`
	MaxSize        int     `json:"max_size"`
	DefaultTTL     float64 `json:"default_ttl"`
}

// snapshot is the stored form of a result. Request id and timings are
// regenerated on every hit and are never stored.
type snapshot struct {
	SessionID    string              `cbor:"1,keyasint"`
	Transcript   string              `cbor:"2,keyasint"`
	Confidence   float64             `cbor:"3,keyasint"`
	ResponseText string              `cbor:"4,keyasint"`
	Audio        []byte              `cbor:"5,keyasint"`
	GoldNudge    *entities.GoldNudge `cbor:"6,keyasint,omitempty"`
}

type entry struct {
	payload   []byte
	createdAt time.Time
	ttl       time.Duration
	seq       uint64
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// ResultCache is a TTL- and size-bounded map of encoded pipeline results.
// All methods are safe for concurrent use.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64

	defaultTTL time.Duration
	maxSize    int
	now        func() time.Time

	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Ensure ResultCache implements the ResultCache interface
var _ repositories.ResultCache = (*ResultCache)(nil)

// Option customises a ResultCache
type Option func(*ResultCache)

// WithClock replaces the time source, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) {
		c.now = now
	}
}

// New creates a result cache
func New(config Config, m *metrics.Metrics, logger *zap.Logger, opts ...Option) *ResultCache {
	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
		logger.Info("Using default cache TTL", zap.Duration("defaultTTL", ttl))
	}

	maxSize := config.MaxSize
	if maxSize <= 0 {
		maxSize = defaultMaxSize
		logger.Info("Using default cache max size", zap.Int("maxSize", maxSize))
	}

	c := &ResultCache{
		entries:    make(map[string]*entry),
		defaultTTL: ttl,
		maxSize:    maxSize,
		now:        time.Now,
		metrics:    m,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives the cache key from the audio content scoped by session, so that
// identical audio in two sessions never shares an entry.
func (c *ResultCache) Key(audio []byte, sessionID string) string {
	return fmt.Sprintf("%s:%016x", sessionID, xxhash.Sum64(audio))
}

// Get returns a copy of the cached result. Expired and undecodable entries are
// removed and reported as a miss.
func (c *ResultCache) Get(key string) (entities.PipelineResult, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.expired(c.now()) {
		delete(c.entries, key)
		c.metrics.CacheExpired.Inc()
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		c.metrics.RecordCacheLookup(false)
		return entities.PipelineResult{}, false
	}

	result, err := decode(e.payload)
	if err != nil {
		c.logger.Warn("Dropping unreadable cache entry",
			zap.String("key", key),
			zap.Error(err))
		c.mu.Lock()
		if current, exists := c.entries[key]; exists && current == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.metrics.CacheCorruptions.Inc()
		c.metrics.RecordCacheLookup(false)
		return entities.PipelineResult{}, false
	}

	c.metrics.RecordCacheLookup(true)
	return result, true
}

// Put stores a copy of result. A ttl of zero uses the default TTL. When the
// cache is full the entry with the oldest insertion time is evicted first.
func (c *ResultCache) Put(key string, result entities.PipelineResult, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	payload, err := encode(result)
	if err != nil {
		c.logger.Error("Failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.seq++
	c.entries[key] = &entry{
		payload:   payload,
		createdAt: c.now(),
		ttl:       ttl,
		seq:       c.seq,
	}
}

func (c *ResultCache) evictOldestLocked() {
	var oldestKey string
	var oldest *entry
	for k, e := range c.entries {
		if oldest == nil || e.createdAt.Before(oldest.createdAt) ||
			(e.createdAt.Equal(oldest.createdAt) && e.seq < oldest.seq) {
			oldestKey = k
			oldest = e
		}
	}
	if oldest != nil {
		delete(c.entries, oldestKey)
		c.metrics.CacheEvictions.Inc()
		c.logger.Debug("Evicted oldest cache entry", zap.String("key", oldestKey))
	}
}

// Sweep removes every expired entry and returns how many were removed
func (c *ResultCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.metrics.CacheExpired.Add(float64(removed))
	}
	return removed
}

// Clear removes all entries
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Len returns the number of stored entries, expired or not
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats reports entry counts without removing anything
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := 0
	for _, e := range c.entries {
		if e.expired(now) {
			expired++
		}
	}
	return Stats{
		TotalEntries:   len(c.entries),
		ActiveEntries:  len(c.entries) - expired,
		ExpiredEntries: expired,
		MaxSize:        c.maxSize,
		DefaultTTL:     c.defaultTTL.Seconds(),
	}
}

func encode(result entities.PipelineResult) ([]byte, error) {
	return cbor.Marshal(snapshot{
		SessionID:    result.SessionID,
		Transcript:   result.Transcript,
		Confidence:   result.Confidence,
		ResponseText: result.ResponseText,
		Audio:        result.Audio,
		GoldNudge:    result.GoldNudge,
	})
}

func decode(payload []byte) (entities.PipelineResult, error) {
	var s snapshot
	if err := cbor.Unmarshal(payload, &s); err != nil {
		return entities.PipelineResult{}, fmt.Errorf("%w: %v", domain.ErrCacheCorruption, err)
	}
	return entities.PipelineResult{
		SessionID:    s.SessionID,
		Transcript:   s.Transcript,
		Confidence:   s.Confidence,
		ResponseText: s.ResponseText,
		Audio:        s.Audio,
		GoldNudge:    s.GoldNudge,
	}, nil
}
