// Package invariant tracks violation counters for the journal. The
// registry is a plain in-process accumulator: counters only ever go up
// for the life of the process and feed the panic threshold that stops
// ingest when financial invariants keep failing.
package invariant

import "sync"

// Kind names a class of invariant violation.
type Kind string

const (
	KindTenantIsolation     Kind = "tenant_isolation_violations_total"
	KindIllegalTransition   Kind = "illegal_transition_attempts_total"
	KindFinancialFailure    Kind = "financial_invariant_failures_total"
	KindDuplicatePrevented  Kind = "event_duplicates_prevented_total"
	KindReconciliationAlert Kind = "reconciliation_alerts_total"
)

// Kinds lists every tracked counter, in stable order for reporting.
func Kinds() []Kind {
	return []Kind{
		KindTenantIsolation,
		KindIllegalTransition,
		KindFinancialFailure,
		KindDuplicatePrevented,
		KindReconciliationAlert,
	}
}

// Registry accumulates violation counters with per-tenant and
// per-entity breakdowns. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	totals   map[Kind]uint64
	byTenant map[Kind]map[string]uint64
	byEntity map[Kind]map[string]uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		totals:   make(map[Kind]uint64),
		byTenant: make(map[Kind]map[string]uint64),
		byEntity: make(map[Kind]map[string]uint64),
	}
}

// Increment bumps the total for a kind.
func (r *Registry) Increment(kind Kind) {
	r.mu.Lock()
	r.totals[kind]++
	r.mu.Unlock()
}

// IncrementFor bumps the total plus the tenant and entity breakdowns.
// Empty tenant or entity labels skip their breakdown.
func (r *Registry) IncrementFor(kind Kind, tenantID, entity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totals[kind]++
	if tenantID != "" {
		m := r.byTenant[kind]
		if m == nil {
			m = make(map[string]uint64)
			r.byTenant[kind] = m
		}
		m[tenantID]++
	}
	if entity != "" {
		m := r.byEntity[kind]
		if m == nil {
			m = make(map[string]uint64)
			r.byEntity[kind] = m
		}
		m[entity]++
	}
}

// Total returns the current count for a kind.
func (r *Registry) Total(kind Kind) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totals[kind]
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot map[Kind]uint64

// Snapshot returns a copy of every total, including zero entries for
// kinds that have not fired.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(Snapshot, len(r.totals))
	for _, k := range Kinds() {
		out[k] = r.totals[k]
	}
	return out
}

// Breakdown is a point-in-time copy of the labeled counters.
type Breakdown struct {
	ByTenant map[Kind]map[string]uint64 `json:"by_tenant"`
	ByEntity map[Kind]map[string]uint64 `json:"by_entity"`
}

// Breakdown returns copies of the per-tenant and per-entity counters.
func (r *Registry) Breakdown() Breakdown {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Breakdown{
		ByTenant: copyLabels(r.byTenant),
		ByEntity: copyLabels(r.byEntity),
	}
}

// PanicTriggered reports whether financial invariant failures reached
// the threshold. A zero or negative threshold disables the check.
func (r *Registry) PanicTriggered(threshold uint64) bool {
	if threshold == 0 {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totals[KindFinancialFailure] >= threshold
}

func copyLabels(src map[Kind]map[string]uint64) map[Kind]map[string]uint64 {
	out := make(map[Kind]map[string]uint64, len(src))
	for kind, labels := range src {
		m := make(map[string]uint64, len(labels))
		for label, n := range labels {
			m[label] = n
		}
		out[kind] = m
	}
	return out
}
