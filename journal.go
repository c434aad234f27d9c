package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/journal/invariant"
	"github.com/xraph/journal/plugin"
	"github.com/xraph/journal/store"
)

// ContractMode controls how integration envelopes with unsupported
// contract versions are treated.
type ContractMode int

const (
	// ContractLenient logs a warning for unsupported versions and ingests anyway.
	ContractLenient ContractMode = iota
	// ContractStrict rejects unsupported versions from known integration sources.
	ContractStrict
)

// Engine is the journal gateway: the single write path into the
// double-entry event store, plus the background relay and auditor.
type Engine struct {
	store      store.Store
	plugins    *plugin.Registry
	invariants *invariant.Registry
	logger     *slog.Logger

	broker      Publisher
	subscribers map[string][]Subscriber
	subMu       sync.RWMutex

	// Background workers
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	requireIdempotency bool
	contractMode       ContractMode
	panicThreshold     uint64
	defaultCurrency    string
	defaultScale       int
	currencyScales     map[string]int
	relayInterval      time.Duration
	relayBatchSize     int
	reconcileInterval  time.Duration
	reconcileLookback  time.Duration
	reconcileEpsilon   float64
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:             s,
		plugins:           plugin.NewRegistry(),
		invariants:        invariant.NewRegistry(),
		logger:            slog.Default(),
		subscribers:       make(map[string][]Subscriber),
		stopChan:          make(chan struct{}),
		panicThreshold:    5,
		defaultCurrency:   "RUB",
		defaultScale:      2,
		currencyScales:    make(map[string]int),
		relayInterval:     time.Second,
		relayBatchSize:    50,
		reconcileInterval: 5 * time.Minute,
		reconcileLookback: 24 * time.Hour,
		reconcileEpsilon:  0.0001,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithRequireIdempotency makes ingestion reject events that carry no
// explicit idempotency key.
func WithRequireIdempotency(require bool) Option {
	return func(e *Engine) {
		e.requireIdempotency = require
	}
}

// WithContractMode sets the integration contract enforcement mode.
func WithContractMode(mode ContractMode) Option {
	return func(e *Engine) {
		e.contractMode = mode
	}
}

// WithPanicThreshold sets how many financial invariant failures trip the
// global panic gate. Zero disables the gate.
func WithPanicThreshold(n uint64) Option {
	return func(e *Engine) {
		e.panicThreshold = n
	}
}

// WithDefaultCurrency sets the currency assumed when an event carries none.
func WithDefaultCurrency(code string) Option {
	return func(e *Engine) {
		e.defaultCurrency = code
	}
}

// WithCurrencyScale sets the decimal scale for a currency code.
// Currencies without an explicit scale use the default scale.
func WithCurrencyScale(code string, scale int) Option {
	return func(e *Engine) {
		e.currencyScales[code] = scale
	}
}

// WithDefaultScale sets the scale used for currencies with no explicit entry.
func WithDefaultScale(scale int) Option {
	return func(e *Engine) {
		e.defaultScale = scale
	}
}

// WithRelayConfig configures the outbox relay worker.
func WithRelayConfig(batchSize int, interval time.Duration) Option {
	return func(e *Engine) {
		e.relayBatchSize = batchSize
		e.relayInterval = interval
	}
}

// WithReconcileConfig configures the reconciliation auditor.
func WithReconcileConfig(interval, lookback time.Duration, epsilon float64) Option {
	return func(e *Engine) {
		e.reconcileInterval = interval
		e.reconcileLookback = lookback
		e.reconcileEpsilon = epsilon
	}
}

// WithBrokerPublisher sets an external broker for outbox delivery.
func WithBrokerPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.broker = p
	}
}

// WithInvariantRegistry replaces the engine's invariant counter registry.
// Useful for sharing a registry across engines or pre-wiring exporters.
func WithInvariantRegistry(r *invariant.Registry) Option {
	return func(e *Engine) {
		e.invariants = r
	}
}

// Start begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	// Migrate database
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	// Initialize plugins
	e.plugins.EmitInit(ctx, e)

	// Start outbox relay worker
	e.wg.Add(1)
	go e.relayWorker(ctx)

	// Start reconciliation auditor
	e.wg.Add(1)
	go e.reconcileWorker(ctx)

	e.logger.Info("journal started",
		"relay_batch_size", e.relayBatchSize,
		"relay_interval", e.relayInterval,
		"reconcile_interval", e.reconcileInterval,
		"panic_threshold", e.panicThreshold,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// scaleFor resolves the decimal scale for a currency code.
func (e *Engine) scaleFor(currency string) int {
	if s, ok := e.currencyScales[currency]; ok {
		return s
	}
	return e.defaultScale
}
