package extension

import (
	"time"

	journal "github.com/xraph/journal"
	"github.com/xraph/journal/plugin"
	"github.com/xraph/journal/store"
)

// Option configures the Journal Forge extension.
type Option func(*Extension)

// WithStore sets the store for the journal engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithJournalOption passes a journal.Option through to the underlying engine.
func WithJournalOption(opt journal.Option) Option {
	return func(e *Extension) {
		e.journalOpts = append(e.journalOpts, opt)
	}
}

// WithPlugin registers a journal plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.journalOpts = append(e.journalOpts, journal.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithRequireIdempotency rejects ingest calls that carry no replay
// identity (idempotency key, replay key or source event id).
func WithRequireIdempotency() Option {
	return func(e *Extension) { e.config.RequireIdempotency = true }
}

// WithStrictContract rejects integration envelopes whose contract
// version is not supported instead of accepting them with a warning.
func WithStrictContract() Option {
	return func(e *Extension) { e.config.StrictContract = true }
}

// WithPanicThreshold sets how many integrity violations trip the global
// ingest gate. Zero disables the gate.
func WithPanicThreshold(n uint64) Option {
	return func(e *Extension) { e.config.PanicThreshold = n }
}

// WithDefaultCurrency sets the currency applied when an ingest input
// does not name one.
func WithDefaultCurrency(code string) Option {
	return func(e *Extension) { e.config.DefaultCurrency = code }
}

// WithDefaultScale sets the decimal scale used for currencies without
// an explicit override.
func WithDefaultScale(scale int) Option {
	return func(e *Extension) { e.config.DefaultScale = scale }
}

// WithCurrencyScale overrides the decimal scale for one currency.
func WithCurrencyScale(code string, scale int) Option {
	return func(e *Extension) {
		if e.config.CurrencyScales == nil {
			e.config.CurrencyScales = make(map[string]int)
		}
		e.config.CurrencyScales[code] = scale
	}
}

// WithRelayBatchSize sets how many outbox messages one relay pass claims.
func WithRelayBatchSize(size int) Option {
	return func(e *Extension) { e.config.RelayBatchSize = size }
}

// WithRelayInterval sets how often the outbox relay drains.
func WithRelayInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.RelayInterval = d }
}

// WithReconcileInterval sets how often the reconciliation sweep runs.
func WithReconcileInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.ReconcileInterval = d }
}

// WithReconcileLookback sets how far back each reconciliation sweep scans.
func WithReconcileLookback(d time.Duration) Option {
	return func(e *Extension) { e.config.ReconcileLookback = d }
}

// WithReconcileEpsilon sets the tolerated absolute drift, in major
// units, before a double-entry mismatch alert is raised.
func WithReconcileEpsilon(epsilon float64) Option {
	return func(e *Extension) { e.config.ReconcileEpsilon = epsilon }
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI container.
// The extension will auto-construct the appropriate store backend (postgres/sqlite)
// based on the grove driver type. Pass an empty string to use the default (unnamed) grove.DB.
func WithGroveDatabase(name string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}
