// Package extension provides the Forge extension adapter for Journal.
//
// It implements the forge.Extension interface to integrate Journal
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.journal" or "journal" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	journal "github.com/xraph/journal"
	"github.com/xraph/journal/store"
	"github.com/xraph/journal/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "journal"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Tenant-isolated double-entry ledger engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Journal as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	engine      *journal.Engine
	store       store.Store
	journalOpts []journal.Option
	useGrove    bool
}

// New creates a new Journal Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Journal instance.
// This is nil until Register is called.
func (e *Extension) Engine() *journal.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the journal engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build engine options from resolved config.
	opts := e.buildJournalOpts()

	eng := journal.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*journal.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("journal: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("journal: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildJournalOpts constructs journal.Option values from the resolved config.
func (e *Extension) buildJournalOpts() []journal.Option {
	opts := make([]journal.Option, 0, len(e.journalOpts)+8)

	if e.config.RequireIdempotency {
		opts = append(opts, journal.WithRequireIdempotency(true))
	}
	if e.config.StrictContract {
		opts = append(opts, journal.WithContractMode(journal.ContractStrict))
	}
	opts = append(opts, journal.WithPanicThreshold(e.config.PanicThreshold))
	if e.config.DefaultCurrency != "" {
		opts = append(opts, journal.WithDefaultCurrency(e.config.DefaultCurrency))
	}
	if e.config.DefaultScale > 0 {
		opts = append(opts, journal.WithDefaultScale(e.config.DefaultScale))
	}
	for code, scale := range e.config.CurrencyScales {
		opts = append(opts, journal.WithCurrencyScale(code, scale))
	}
	if e.config.RelayBatchSize > 0 && e.config.RelayInterval > 0 {
		opts = append(opts, journal.WithRelayConfig(e.config.RelayBatchSize, e.config.RelayInterval))
	}
	if e.config.ReconcileInterval > 0 && e.config.ReconcileLookback > 0 {
		opts = append(opts, journal.WithReconcileConfig(
			e.config.ReconcileInterval,
			e.config.ReconcileLookback,
			e.config.ReconcileEpsilon,
		))
	}

	// Append any pass-through journal options.
	opts = append(opts, e.journalOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("journal: configuration is required but not found in config files; " +
				"ensure 'extensions.journal' or 'journal' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("journal: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("require_idempotency", e.config.RequireIdempotency),
		forge.F("strict_contract", e.config.StrictContract),
		forge.F("panic_threshold", e.config.PanicThreshold),
		forge.F("relay_batch_size", e.config.RelayBatchSize),
		forge.F("relay_interval", e.config.RelayInterval),
		forge.F("reconcile_interval", e.config.ReconcileInterval),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.journal" first (namespaced pattern).
	if cm.IsSet("extensions.journal") {
		if err := cm.Bind("extensions.journal", &cfg); err == nil {
			e.Logger().Debug("journal: loaded config from file",
				forge.F("key", "extensions.journal"),
			)
			return cfg, true
		}
		e.Logger().Warn("journal: failed to bind extensions.journal config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "journal" key.
	if cm.IsSet("journal") {
		if err := cm.Bind("journal", &cfg); err == nil {
			e.Logger().Debug("journal: loaded config from file",
				forge.F("key", "journal"),
			)
			return cfg, true
		}
		e.Logger().Warn("journal: failed to bind journal config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.PanicThreshold == 0 {
		cfg.PanicThreshold = defaults.PanicThreshold
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = defaults.DefaultCurrency
	}
	if cfg.DefaultScale == 0 {
		cfg.DefaultScale = defaults.DefaultScale
	}
	if cfg.RelayBatchSize == 0 {
		cfg.RelayBatchSize = defaults.RelayBatchSize
	}
	if cfg.RelayInterval == 0 {
		cfg.RelayInterval = defaults.RelayInterval
	}
	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = defaults.ReconcileInterval
	}
	if cfg.ReconcileLookback == 0 {
		cfg.ReconcileLookback = defaults.ReconcileLookback
	}
	if cfg.ReconcileEpsilon == 0 {
		cfg.ReconcileEpsilon = defaults.ReconcileEpsilon
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.RequireIdempotency {
		yamlConfig.RequireIdempotency = true
	}
	if programmaticConfig.StrictContract {
		yamlConfig.StrictContract = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.DefaultCurrency == "" && programmaticConfig.DefaultCurrency != "" {
		yamlConfig.DefaultCurrency = programmaticConfig.DefaultCurrency
	}
	if yamlConfig.GroveDatabase == "" && programmaticConfig.GroveDatabase != "" {
		yamlConfig.GroveDatabase = programmaticConfig.GroveDatabase
	}

	// Numeric/duration fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.PanicThreshold == 0 && programmaticConfig.PanicThreshold != 0 {
		yamlConfig.PanicThreshold = programmaticConfig.PanicThreshold
	}
	if yamlConfig.DefaultScale == 0 && programmaticConfig.DefaultScale != 0 {
		yamlConfig.DefaultScale = programmaticConfig.DefaultScale
	}
	if yamlConfig.CurrencyScales == nil && programmaticConfig.CurrencyScales != nil {
		yamlConfig.CurrencyScales = programmaticConfig.CurrencyScales
	}
	if yamlConfig.RelayBatchSize == 0 && programmaticConfig.RelayBatchSize != 0 {
		yamlConfig.RelayBatchSize = programmaticConfig.RelayBatchSize
	}
	if yamlConfig.RelayInterval == 0 && programmaticConfig.RelayInterval != 0 {
		yamlConfig.RelayInterval = programmaticConfig.RelayInterval
	}
	if yamlConfig.ReconcileInterval == 0 && programmaticConfig.ReconcileInterval != 0 {
		yamlConfig.ReconcileInterval = programmaticConfig.ReconcileInterval
	}
	if yamlConfig.ReconcileLookback == 0 && programmaticConfig.ReconcileLookback != 0 {
		yamlConfig.ReconcileLookback = programmaticConfig.ReconcileLookback
	}
	if yamlConfig.ReconcileEpsilon == 0 && programmaticConfig.ReconcileEpsilon != 0 {
		yamlConfig.ReconcileEpsilon = programmaticConfig.ReconcileEpsilon
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
