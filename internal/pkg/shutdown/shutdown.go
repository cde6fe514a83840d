// Package shutdown coordinates graceful termination of the av1conv
// processes. Handlers run in reverse registration order so that the HTTP
// server stops accepting work before the worker pool drains and the state
// store closes.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"av1conv/internal/pkg/logger"
)

// Manager runs registered cleanup handlers once a signal arrives.
type Manager struct {
	log      *logger.Logger
	timeout  time.Duration
	mu       sync.Mutex
	handlers []Handler
	once     sync.Once
	done     chan struct{}
	err      error
}

// Handler is a named cleanup step.
type Handler struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// NewManager creates a Manager. A zero timeout means 30s.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup handler.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Cleanup: cleanup})
	m.log.Debug("registered shutdown handler", "name", name)
}

// RegisterSimple adds a handler that cannot fail.
func (m *Manager) RegisterSimple(name string, cleanup func()) {
	m.Register(name, func(ctx context.Context) error {
		cleanup()
		return nil
	})
}

// Wait blocks until SIGINT, SIGTERM or SIGHUP, then shuts down and
// returns the result of Shutdown.
func (m *Manager) Wait() error {
	return m.WaitWithContext(context.Background())
}

// WaitWithContext is Wait that also shuts down when ctx ends.
func (m *Manager) WaitWithContext(ctx context.Context) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sig)

	select {
	case s := <-sig:
		m.log.Info("shutdown signal received", "signal", s.String())
	case <-ctx.Done():
		m.log.Info("context canceled, initiating shutdown")
	case <-m.done:
	}
	return m.Shutdown()
}

// Shutdown runs the handlers last-registered first under one deadline and
// blocks until they finish or the deadline passes. A failing handler does
// not stop later ones; the returned error joins every failure and names the
// handlers the deadline cut off. Later calls return the first result.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		m.err = m.run()
		close(m.done)
	})
	<-m.done
	return m.err
}

func (m *Manager) run() error {
	m.mu.Lock()
	handlers := slices.Clone(m.handlers)
	m.mu.Unlock()
	slices.Reverse(handlers)

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.log.Info("starting graceful shutdown", "handlers", len(handlers), "timeout", m.timeout.String())

	// next is the index of the handler running when the deadline hit.
	var (
		mu   sync.Mutex
		errs []error
		next int
	)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i, h := range handlers {
			if ctx.Err() != nil {
				return
			}
			mu.Lock()
			next = i
			mu.Unlock()
			if err := m.runHandler(ctx, h); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}
		mu.Lock()
		next = len(handlers)
		mu.Unlock()
	}()

	select {
	case <-finished:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	if next < len(handlers) {
		pending := make([]string, 0, len(handlers)-next)
		for _, h := range handlers[next:] {
			pending = append(pending, h.Name)
		}
		m.log.Warn("shutdown timeout exceeded, forcing exit", "pending", pending)
		errs = append(errs, fmt.Errorf("shutdown: %w; unfinished: %s",
			context.DeadlineExceeded, strings.Join(pending, ", ")))
		return errors.Join(errs...)
	}
	m.log.Info("graceful shutdown completed", "failed", len(errs))
	return errors.Join(errs...)
}

func (m *Manager) runHandler(ctx context.Context, h Handler) error {
	start := time.Now()
	m.log.Debug("running shutdown handler", "name", h.Name)

	err := h.Cleanup(ctx)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		m.log.Error("shutdown handler failed", "name", h.Name, "error", err.Error(), "duration_ms", elapsed)
		return fmt.Errorf("%s: %w", h.Name, err)
	}
	m.log.Debug("shutdown handler completed", "name", h.Name, "duration_ms", elapsed)
	return nil
}

// Done is closed once Shutdown returns.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Context returns a context canceled when shutdown completes.
func (m *Manager) Context() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-m.done
		cancel()
	}()
	return ctx
}
