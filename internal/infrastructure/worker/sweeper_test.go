package worker

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type stubPurger struct {
	calls atomic.Int32
	n     int64
	err   error
	last  atomic.Value
}

func (s *stubPurger) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.calls.Add(1)
	s.last.Store(now)
	return s.n, s.err
}

func TestSweeper_SweepPassesClock(t *testing.T) {
	store := &stubPurger{n: 4}
	s := NewSweeper(store, time.Minute, zerolog.Nop())
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if n := s.Sweep(context.Background()); n != 4 {
		t.Fatalf("expected 4 removed, got %d", n)
	}
	if got := store.last.Load().(time.Time); !got.Equal(fixed) {
		t.Fatalf("expected now %s, got %s", fixed, got)
	}
}

func TestSweeper_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	store := &stubPurger{err: errors.New("store down")}
	s := NewSweeper(store, time.Minute, zerolog.New(&buf))

	if n := s.Sweep(context.Background()); n != 0 {
		t.Fatalf("expected 0 on failure, got %d", n)
	}
	if !strings.Contains(buf.String(), "store down") {
		t.Fatalf("expected the failure to be logged, got %q", buf.String())
	}
}

func TestSweeper_StartRunsUntilCancelled(t *testing.T) {
	store := &stubPurger{}
	s := NewSweeper(store, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := s.Start(ctx)

	deadline := time.After(2 * time.Second)
	for store.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected repeated sweeps, got %d", store.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop after cancel")
	}
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	if s := NewSweeper(&stubPurger{}, 0, zerolog.Nop()); s.interval != defaultInterval {
		t.Fatalf("expected default interval, got %s", s.interval)
	}
}
