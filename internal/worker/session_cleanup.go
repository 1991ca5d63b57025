// Package worker runs background maintenance jobs.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultCleanupInterval = 10 * time.Minute
	cleanupTimeout         = 5 * time.Minute
)

// StaleSessionCloser wraps up sessions that have been idle for too long
type StaleSessionCloser interface {
	AbandonStale(ctx context.Context, now time.Time) (int, error)
}

// SessionCleanupService periodically closes stale sessions
type SessionCleanupService struct {
	sessions     StaleSessionCloser
	interval     time.Duration
	initialDelay time.Duration
	logger       *zap.Logger
	now          func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewSessionCleanupService creates a new session cleanup service
func NewSessionCleanupService(sessions StaleSessionCloser, interval time.Duration, logger *zap.Logger) *SessionCleanupService {
	if interval <= 0 {
		interval = defaultCleanupInterval
		logger.Info("Using default session cleanup interval", zap.Duration("interval", interval))
	}
	return &SessionCleanupService{
		sessions:     sessions,
		interval:     interval,
		initialDelay: time.Minute,
		logger:       logger,
		now:          time.Now,
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started", zap.Duration("interval", s.interval))
}

// Stop stops the cleanup loop and waits for a running pass to finish
func (s *SessionCleanupService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
		s.logger.Info("Session cleanup service stopped")
	})
}

// cleanupLoop runs the cleanup process periodically
func (s *SessionCleanupService) cleanupLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// first pass shortly after boot picks up sessions left by a restart
	initialTimer := time.NewTimer(s.initialDelay)
	defer initialTimer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-initialTimer.C:
			s.RunOnce()
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce performs one cleanup pass and returns the number of sessions
// closed
func (s *SessionCleanupService) RunOnce() int {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	closed, err := s.sessions.AbandonStale(ctx, s.now())
	if err != nil {
		s.logger.Error("Failed to close stale sessions", zap.Int("closed", closed), zap.Error(err))
		return closed
	}
	if closed > 0 {
		s.logger.Info("Closed stale sessions", zap.Int("closed", closed))
	} else {
		s.logger.Debug("No stale sessions")
	}
	return closed
}
