package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddAndFire(t *testing.T) {
	var fired atomic.Int32
	r := New(nil)

	if err := r.Add("stats-refresh", "@every 1s", func(context.Context) {
		fired.Add(1)
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("count = %d", r.Count())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	time.Sleep(1500 * time.Millisecond)
	cancel()
	<-done

	if fired.Load() == 0 {
		t.Error("job never fired")
	}
}

func TestInvalidSchedule(t *testing.T) {
	r := New(nil)
	if err := r.Add("broken", "not-a-schedule", func(context.Context) {}); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if r.Count() != 0 {
		t.Errorf("count = %d after rejected add", r.Count())
	}
}

func TestReAddReplaces(t *testing.T) {
	r := New(nil)
	if err := r.Add("draft-prune", "@every 1h", func(context.Context) {}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add("draft-prune", "@every 2h", func(context.Context) {}); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("count = %d, want 1 after replace", r.Count())
	}
}

func TestRemove(t *testing.T) {
	r := New(nil)
	r.Add("stats-refresh", "@every 1h", func(context.Context) {})
	r.Add("draft-prune", "@every 1h", func(context.Context) {})

	r.Remove("stats-refresh")
	r.Remove("unknown")
	if r.Count() != 1 {
		t.Errorf("count = %d after remove", r.Count())
	}
}

func TestStartReturnsOnCancel(t *testing.T) {
	r := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("start did not return after cancel")
	}
}
