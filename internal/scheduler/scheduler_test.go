package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSweeper struct {
	calls atomic.Int32
	err   error
	panic bool
}

func (f *fakeSweeper) ExpireStaleTransfers(ctx context.Context) (int, error) {
	f.calls.Add(1)
	if f.panic {
		panic("boom")
	}
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("sweep context must carry a deadline")
	}
	return 2, f.err
}

func TestNew_InvalidSchedule(t *testing.T) {
	if _, err := New(&fakeSweeper{}, "whenever", nil); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestRunOnce(t *testing.T) {
	sw := &fakeSweeper{}
	s, err := New(sw, "@every 1h", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n, err := s.RunOnce(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected (2, nil), got (%d, %v)", n, err)
	}
	if sw.calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", sw.calls.Load())
	}
}

func TestScheduler_SurvivesPanickingJob(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the cron tick")
	}

	sw := &fakeSweeper{panic: true}
	s, err := New(sw, "@every 1s", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()

	deadline := time.Now().Add(5 * time.Second)
	for sw.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	<-s.Stop().Done()
	if sw.calls.Load() < 2 {
		t.Fatalf("expected the job to keep running after a panic, got %d calls", sw.calls.Load())
	}
}
