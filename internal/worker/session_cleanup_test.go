package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type fakeCloser struct {
	mu    sync.Mutex
	calls []time.Time
	n     int
	err   error
}

func (f *fakeCloser) AbandonStale(ctx context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	return f.n, f.err
}

func (f *fakeCloser) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSessionCleanupService_RunOnce(t *testing.T) {
	closer := &fakeCloser{n: 3}
	svc := NewSessionCleanupService(closer, time.Minute, zaptest.NewLogger(t))
	fixed := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	if got := svc.RunOnce(); got != 3 {
		t.Errorf("RunOnce() = %d, want 3", got)
	}
	if len(closer.calls) != 1 || !closer.calls[0].Equal(fixed) {
		t.Errorf("Expected one call at %v, got %v", fixed, closer.calls)
	}

	closer.n, closer.err = 1, errors.New("database unavailable")
	if got := svc.RunOnce(); got != 1 {
		t.Errorf("RunOnce() = %d, want 1 on partial failure", got)
	}
}

func TestSessionCleanupService_Loop(t *testing.T) {
	closer := &fakeCloser{}
	svc := NewSessionCleanupService(closer, 20*time.Millisecond, zap.NewNop())
	svc.initialDelay = time.Millisecond

	svc.Start()
	deadline := time.Now().Add(2 * time.Second)
	for closer.callCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected repeated cleanup passes, got %d", closer.callCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
	svc.Stop()
	svc.Stop()

	calls := closer.callCount()
	time.Sleep(60 * time.Millisecond)
	if closer.callCount() != calls {
		t.Error("Cleanup kept running after Stop")
	}
}

func TestNewSessionCleanupService_DefaultInterval(t *testing.T) {
	svc := NewSessionCleanupService(&fakeCloser{}, 0, zaptest.NewLogger(t))
	if svc.interval != defaultCleanupInterval {
		t.Errorf("Expected default interval, got %v", svc.interval)
	}
}
