package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/gmanldn/actifix/internal/eventlog"
)

// Module is an optional component with its own start/stop lifecycle
// (e.g. an HTTP blueprint mounted under the main router). Modules are
// registered in load order and unregistered in reverse order.
type Module interface {
	Name() string
	Register(ctx context.Context) error
	Unregister(ctx context.Context) error
}

const defaultUnregisterTimeout = 5 * time.Second
const slowOperationThreshold = 2 * time.Second

// Registry tracks loaded modules for ordered startup/shutdown.
type Registry struct {
	modules           []Module
	unregisterTimeout time.Duration
	events            *eventlog.Log
}

// NewRegistry builds an empty registry. unregisterTimeout of zero uses
// the 5s default.
func NewRegistry(unregisterTimeout time.Duration, events *eventlog.Log) *Registry {
	if unregisterTimeout <= 0 {
		unregisterTimeout = defaultUnregisterTimeout
	}
	return &Registry{unregisterTimeout: unregisterTimeout, events: events}
}

// RegisterHook loads and registers a module, warning if Register takes
// longer than the slow-operation threshold.
func (r *Registry) RegisterHook(ctx context.Context, m Module) error {
	start := time.Now()
	if err := m.Register(ctx); err != nil {
		return fmt.Errorf("lifecycle: register %s: %w", m.Name(), err)
	}
	if elapsed := time.Since(start); elapsed > slowOperationThreshold {
		r.logEvent(eventlog.LevelWarning, fmt.Sprintf("module %s took %s to register", m.Name(), elapsed))
	}
	r.modules = append(r.modules, m)
	return nil
}

// Shutdown unregisters every module in reverse registration order, each
// bounded by the registry's per-module timeout. A timeout on one module
// is recorded as an event but does not block the rest.
func (r *Registry) Shutdown(ctx context.Context) {
	for i := len(r.modules) - 1; i >= 0; i-- {
		m := r.modules[i]
		moduleCtx, cancel := context.WithTimeout(ctx, r.unregisterTimeout)
		done := make(chan error, 1)
		go func() { done <- m.Unregister(moduleCtx) }()

		select {
		case err := <-done:
			if err != nil {
				r.logEvent(eventlog.LevelError, fmt.Sprintf("module %s unregister error: %v", m.Name(), err))
			}
		case <-moduleCtx.Done():
			r.logTimeout(m.Name())
		}
		cancel()
	}
	r.modules = nil
}

func (r *Registry) logEvent(level eventlog.Level, message string) {
	if r.events == nil {
		return
	}
	r.events.Append(eventlog.Event{EventType: "MODULE_LIFECYCLE", Level: level, Message: message})
}

func (r *Registry) logTimeout(moduleName string) {
	if r.events == nil {
		return
	}
	r.events.Append(eventlog.Event{
		EventType: "MODULE_UNREGISTER_TIMEOUT",
		Level:     eventlog.LevelError,
		Message:   fmt.Sprintf("module %s exceeded %s unregister timeout", moduleName, r.unregisterTimeout),
	})
}
