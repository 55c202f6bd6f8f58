// Package shutdown stops registered components in reverse registration order.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"dither-studio/internal/logger"
)

var ErrTimeout = errors.New("component shutdown timed out")

type Shutdownable interface {
	Shutdown() error
}

// Func adapts a plain function to Shutdownable.
type Func func() error

func (f Func) Shutdown() error { return f() }

type component struct {
	name string
	c    Shutdownable
}

type Manager struct {
	components []component
	logger     logger.Logger
	timeout    time.Duration
	mu         sync.Mutex
	done       chan struct{}
	err        error
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewManager(log logger.Logger, timeout time.Duration) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		logger:  log,
		timeout: timeout,
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (m *Manager) Register(name string, c Shutdownable) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.components = append(m.components, component{name: name, c: c})
}

// Listen shuts down on SIGINT or SIGTERM.
func (m *Manager) Listen() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			m.logger.Info("ShutdownManager", "shutdown signal received", map[string]interface{}{
				"signal": sig.String(),
			})
			_ = m.Shutdown()
		case <-m.done:
		}
		signal.Stop(sigChan)
	}()
}

// Shutdown runs once; later calls return the first call's result.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.done:
		return m.err
	default:
		close(m.done)
	}

	m.logger.Info("ShutdownManager", "shutdown sequence initiated", map[string]interface{}{
		"components": len(m.components),
	})
	m.cancel()

	var errs error
	for i := len(m.components) - 1; i >= 0; i-- {
		comp := m.components[i]

		result := make(chan error, 1)
		go func() {
			result <- comp.c.Shutdown()
		}()

		select {
		case err := <-result:
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", comp.name, err))
			}
		case <-time.After(m.timeout):
			m.logger.Warning("ShutdownManager", "component shutdown timeout", map[string]interface{}{
				"component": comp.name,
			})
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", comp.name, ErrTimeout))
		}
	}

	m.err = errs
	if errs != nil {
		m.logger.Error("ShutdownManager", errs, map[string]interface{}{
			"failed": len(multierr.Errors(errs)),
		})
	}
	m.logger.Info("ShutdownManager", "shutdown sequence completed", nil)
	return errs
}

// Context is canceled when shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

func (m *Manager) Done() <-chan struct{} {
	return m.done
}
