package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onEventIngested       []OnEventIngested
	onDuplicatePrevented  []OnDuplicatePrevented
	onIntegrityViolation  []OnIntegrityViolation
	onTenantPanicked      []OnTenantPanicked
	onTenantHalted        []OnTenantHalted
	onTenantResumed       []OnTenantResumed
	onOutboxDelivered     []OnOutboxDelivered
	onOutboxFailed        []OnOutboxFailed
	onOutboxDrained       []OnOutboxDrained
	onReconciliationAlert []OnReconciliationAlert
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnEventIngested); ok {
		r.onEventIngested = append(r.onEventIngested, v)
	}
	if v, ok := p.(OnDuplicatePrevented); ok {
		r.onDuplicatePrevented = append(r.onDuplicatePrevented, v)
	}
	if v, ok := p.(OnIntegrityViolation); ok {
		r.onIntegrityViolation = append(r.onIntegrityViolation, v)
	}
	if v, ok := p.(OnTenantPanicked); ok {
		r.onTenantPanicked = append(r.onTenantPanicked, v)
	}
	if v, ok := p.(OnTenantHalted); ok {
		r.onTenantHalted = append(r.onTenantHalted, v)
	}
	if v, ok := p.(OnTenantResumed); ok {
		r.onTenantResumed = append(r.onTenantResumed, v)
	}
	if v, ok := p.(OnOutboxDelivered); ok {
		r.onOutboxDelivered = append(r.onOutboxDelivered, v)
	}
	if v, ok := p.(OnOutboxFailed); ok {
		r.onOutboxFailed = append(r.onOutboxFailed, v)
	}
	if v, ok := p.(OnOutboxDrained); ok {
		r.onOutboxDrained = append(r.onOutboxDrained, v)
	}
	if v, ok := p.(OnReconciliationAlert); ok {
		r.onReconciliationAlert = append(r.onReconciliationAlert, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnEventIngested)(nil)).Elem(), "OnEventIngested")
	checkInterface(reflect.TypeOf((*OnDuplicatePrevented)(nil)).Elem(), "OnDuplicatePrevented")
	checkInterface(reflect.TypeOf((*OnIntegrityViolation)(nil)).Elem(), "OnIntegrityViolation")
	checkInterface(reflect.TypeOf((*OnTenantPanicked)(nil)).Elem(), "OnTenantPanicked")
	checkInterface(reflect.TypeOf((*OnTenantHalted)(nil)).Elem(), "OnTenantHalted")
	checkInterface(reflect.TypeOf((*OnTenantResumed)(nil)).Elem(), "OnTenantResumed")
	checkInterface(reflect.TypeOf((*OnOutboxDelivered)(nil)).Elem(), "OnOutboxDelivered")
	checkInterface(reflect.TypeOf((*OnOutboxFailed)(nil)).Elem(), "OnOutboxFailed")
	checkInterface(reflect.TypeOf((*OnOutboxDrained)(nil)).Elem(), "OnOutboxDrained")
	checkInterface(reflect.TypeOf((*OnReconciliationAlert)(nil)).Elem(), "OnReconciliationAlert")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEventIngested emits an event ingested notification.
func (r *Registry) EmitEventIngested(ctx context.Context, evt interface{}, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onEventIngested
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEventIngested(ctx, evt, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnEventIngested failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDuplicatePrevented emits a duplicate prevented notification.
func (r *Registry) EmitDuplicatePrevented(ctx context.Context, tenantID, replayKey string) {
	r.mu.RLock()
	plugins := r.onDuplicatePrevented
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDuplicatePrevented(ctx, tenantID, replayKey)
		}); err != nil {
			r.logger.Warn("plugin OnDuplicatePrevented failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitIntegrityViolation emits an integrity violation notification.
func (r *Registry) EmitIntegrityViolation(ctx context.Context, tenantID string, violation error) {
	r.mu.RLock()
	plugins := r.onIntegrityViolation
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnIntegrityViolation(ctx, tenantID, violation)
		}); err != nil {
			r.logger.Warn("plugin OnIntegrityViolation failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTenantPanicked emits a tenant panicked notification.
func (r *Registry) EmitTenantPanicked(ctx context.Context, tenantID, reason string) {
	r.mu.RLock()
	plugins := r.onTenantPanicked
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTenantPanicked(ctx, tenantID, reason)
		}); err != nil {
			r.logger.Warn("plugin OnTenantPanicked failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTenantHalted emits a tenant halted notification.
func (r *Registry) EmitTenantHalted(ctx context.Context, tenantID, reason string) {
	r.mu.RLock()
	plugins := r.onTenantHalted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTenantHalted(ctx, tenantID, reason)
		}); err != nil {
			r.logger.Warn("plugin OnTenantHalted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTenantResumed emits a tenant resumed notification.
func (r *Registry) EmitTenantResumed(ctx context.Context, tenantID string) {
	r.mu.RLock()
	plugins := r.onTenantResumed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTenantResumed(ctx, tenantID)
		}); err != nil {
			r.logger.Warn("plugin OnTenantResumed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitOutboxDelivered emits an outbox delivered notification.
func (r *Registry) EmitOutboxDelivered(ctx context.Context, msg interface{}) {
	r.mu.RLock()
	plugins := r.onOutboxDelivered
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnOutboxDelivered(ctx, msg)
		}); err != nil {
			r.logger.Warn("plugin OnOutboxDelivered failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitOutboxFailed emits an outbox failed notification.
func (r *Registry) EmitOutboxFailed(ctx context.Context, msg interface{}, deliveryErr error) {
	r.mu.RLock()
	plugins := r.onOutboxFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnOutboxFailed(ctx, msg, deliveryErr)
		}); err != nil {
			r.logger.Warn("plugin OnOutboxFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitOutboxDrained emits an outbox drained notification.
func (r *Registry) EmitOutboxDrained(ctx context.Context, count int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onOutboxDrained
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnOutboxDrained(ctx, count, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnOutboxDrained failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReconciliationAlert emits a reconciliation alert notification.
func (r *Registry) EmitReconciliationAlert(ctx context.Context, alert interface{}) {
	r.mu.RLock()
	plugins := r.onReconciliationAlert
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReconciliationAlert(ctx, alert)
		}); err != nil {
			r.logger.Warn("plugin OnReconciliationAlert failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout runs fn with a hard timeout so a misbehaving plugin
// cannot stall the engine.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
