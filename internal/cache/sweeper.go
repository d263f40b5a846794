package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSweepInterval = time.Minute

// Sweeper periodically removes expired entries from a ResultCache
type Sweeper struct {
	cache    *ResultCache
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSweeper creates a sweeper for cache
func NewSweeper(cache *ResultCache, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
		logger.Info("Using default sweep interval", zap.Duration("interval", interval))
	}
	return &Sweeper{
		cache:    cache,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the background sweep loop
func (s *Sweeper) Start() {
	go s.sweepLoop()
	s.logger.Info("Cache sweeper started", zap.Duration("interval", s.interval))
}

// Stop stops the loop and waits for it to exit
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
		s.logger.Info("Cache sweeper stopped")
	})
}

func (s *Sweeper) sweepLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runSweep()
		}
	}
}

func (s *Sweeper) runSweep() {
	removed := s.cache.Sweep()
	if removed > 0 {
		s.logger.Info("Removed expired cache entries", zap.Int("removed", removed))
	}
}
