package main

import (
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically reaps expired entries from a store. Correctness
// does not depend on it: readers already treat expired entries as absent.
// The sweeper only reclaims space.
type Sweeper struct {
	store    *Store
	interval time.Duration
	logger   *zap.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a sweeper with the given cadence.
func NewSweeper(store *Store, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in its own goroutine.
func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("ttl sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ticker.C:
			removed := s.store.CleanupExpired()
			if removed > 0 {
				s.logger.Debug("swept expired keys", zap.Int("removed", removed))
			}
		case <-s.stop:
			return
		}
	}
}

// Stop terminates the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}
