package extension

import "time"

// Config holds the Journal extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.journal" or "journal" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// RequireIdempotency rejects ingests without an explicit idempotency key.
	RequireIdempotency bool `json:"require_idempotency" mapstructure:"require_idempotency" yaml:"require_idempotency"`

	// StrictContract rejects integration events with unsupported contract
	// versions instead of logging a warning.
	StrictContract bool `json:"strict_contract" mapstructure:"strict_contract" yaml:"strict_contract"`

	// PanicThreshold is how many financial invariant failures trip the
	// global panic gate (default: 5; 0 disables).
	PanicThreshold uint64 `json:"panic_threshold" mapstructure:"panic_threshold" yaml:"panic_threshold"`

	// DefaultCurrency is assumed when an event carries none (default: "RUB").
	DefaultCurrency string `json:"default_currency" mapstructure:"default_currency" yaml:"default_currency"`

	// DefaultScale is the decimal scale for currencies without an explicit
	// entry in CurrencyScales (default: 2).
	DefaultScale int `json:"default_scale" mapstructure:"default_scale" yaml:"default_scale"`

	// CurrencyScales maps currency codes to decimal scales.
	CurrencyScales map[string]int `json:"currency_scales" mapstructure:"currency_scales" yaml:"currency_scales"`

	// RelayBatchSize is how many outbox messages one drain claims (default: 50).
	RelayBatchSize int `json:"relay_batch_size" mapstructure:"relay_batch_size" yaml:"relay_batch_size"`

	// RelayInterval is how frequently the outbox is drained (default: 1s).
	RelayInterval time.Duration `json:"relay_interval" mapstructure:"relay_interval" yaml:"relay_interval"`

	// ReconcileInterval is how frequently the auditor runs (default: 5m).
	ReconcileInterval time.Duration `json:"reconcile_interval" mapstructure:"reconcile_interval" yaml:"reconcile_interval"`

	// ReconcileLookback is how far back the auditor scans (default: 24h).
	ReconcileLookback time.Duration `json:"reconcile_lookback" mapstructure:"reconcile_lookback" yaml:"reconcile_lookback"`

	// ReconcileEpsilon is the tolerated debit/credit drift (default: 0.0001).
	ReconcileEpsilon float64 `json:"reconcile_epsilon" mapstructure:"reconcile_epsilon" yaml:"reconcile_epsilon"`

	// GroveDatabase is the name of a grove.DB registered in the DI container.
	// When set, the extension resolves this named database and auto-constructs
	// the appropriate store based on the driver type (pg/sqlite).
	// When empty and WithGroveDatabase was called, the default (unnamed) DB is used.
	GroveDatabase string `json:"grove_database" mapstructure:"grove_database" yaml:"grove_database"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PanicThreshold:    5,
		DefaultCurrency:   "RUB",
		DefaultScale:      2,
		RelayBatchSize:    50,
		RelayInterval:     time.Second,
		ReconcileInterval: 5 * time.Minute,
		ReconcileLookback: 24 * time.Hour,
		ReconcileEpsilon:  0.0001,
	}
}
