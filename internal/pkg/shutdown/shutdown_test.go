package shutdown

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"av1conv/internal/pkg/logger"
)

func TestNewManagerDefaults(t *testing.T) {
	mgr := NewManager(logger.Nop(), 0)
	if mgr.timeout != 30*time.Second {
		t.Errorf("timeout = %v", mgr.timeout)
	}

	mgr = NewManager(logger.Nop(), 10*time.Second)
	if mgr.timeout != 10*time.Second {
		t.Errorf("timeout = %v", mgr.timeout)
	}
}

func TestRegister(t *testing.T) {
	mgr := NewManager(logger.Nop(), 5*time.Second)
	mgr.Register("http", func(ctx context.Context) error { return nil })
	mgr.RegisterSimple("pool", func() {})

	if len(mgr.handlers) != 2 {
		t.Fatalf("expected 2 handlers, got %d", len(mgr.handlers))
	}
	if mgr.handlers[0].Name != "http" || mgr.handlers[1].Name != "pool" {
		t.Errorf("handlers = %+v", mgr.handlers)
	}
}

func TestShutdownRunsInReverseOrder(t *testing.T) {
	mgr := NewManager(logger.Nop(), 5*time.Second)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"state-store", "worker-pool", "http-server"} {
		mgr.RegisterSimple(name, func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		})
	}

	mgr.Shutdown()

	want := []string{"http-server", "worker-pool", "state-store"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
			break
		}
	}
}

func TestShutdownContinuesAfterError(t *testing.T) {
	mgr := NewManager(logger.Nop(), 5*time.Second)

	var ran atomic.Bool
	mgr.Register("first", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	mgr.Register("failing", func(ctx context.Context) error {
		return errors.New("close: connection reset")
	})

	err := mgr.Shutdown()

	if !ran.Load() {
		t.Error("handler after a failure should still run")
	}
	if err == nil || !strings.Contains(err.Error(), "failing: close: connection reset") {
		t.Errorf("err = %v", err)
	}
	if again := mgr.Shutdown(); again != err {
		t.Errorf("second call returned %v", again)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	mgr := NewManager(logger.Nop(), 5*time.Second)

	var calls atomic.Int32
	mgr.RegisterSimple("once", func() { calls.Add(1) })

	mgr.Shutdown()
	mgr.Shutdown()

	if calls.Load() != 1 {
		t.Errorf("calls = %d", calls.Load())
	}
}

func TestDoneAndContext(t *testing.T) {
	mgr := NewManager(logger.Nop(), 5*time.Second)
	ctx := mgr.Context()

	select {
	case <-mgr.Done():
		t.Fatal("done closed before shutdown")
	case <-ctx.Done():
		t.Fatal("context canceled before shutdown")
	default:
	}

	mgr.Shutdown()

	select {
	case <-mgr.Done():
	case <-time.After(time.Second):
		t.Error("done not closed after shutdown")
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("context not canceled after shutdown")
	}
}

func TestShutdownTimeout(t *testing.T) {
	mgr := NewManager(logger.Nop(), 100*time.Millisecond)

	release := make(chan struct{})
	defer close(release)
	mgr.Register("stuck-encode", func(ctx context.Context) error {
		<-release
		return nil
	})

	mgr.RegisterSimple("state-store", func() {})

	start := time.Now()
	err := mgr.Shutdown()

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("shutdown took %v", elapsed)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if !strings.HasSuffix(err.Error(), "unfinished: stuck-encode") {
		t.Errorf("err = %v", err)
	}
}

func TestWaitWithContext(t *testing.T) {
	mgr := NewManager(logger.Nop(), time.Second)

	var ran atomic.Bool
	mgr.RegisterSimple("x", func() { ran.Store(true) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := mgr.WaitWithContext(ctx); err != nil {
		t.Errorf("err = %v", err)
	}

	if !ran.Load() {
		t.Error("handler did not run")
	}
}
