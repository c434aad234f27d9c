// Package tenant models per-tenant operating modes and the transitions
// between them. A tenant runs ACTIVE until an integrity violation drops
// it to READ_ONLY; HALTED is an administrative stop that only an
// explicit unhalt can lift.
package tenant

import "time"

// Mode is a tenant's write admission state.
type Mode string

const (
	ModeActive   Mode = "ACTIVE"
	ModeReadOnly Mode = "READ_ONLY"
	ModeHalted   Mode = "HALTED"
)

// AllowsWrites reports whether ingest is admitted in this mode.
func (m Mode) AllowsWrites() bool {
	return m == ModeActive || m == ""
}

// Valid reports whether m is a recognized mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeActive, ModeReadOnly, ModeHalted:
		return true
	}
	return false
}

// State is a tenant's persisted operating state. A tenant with no
// stored state is implicitly ACTIVE.
type State struct {
	TenantID  string    `json:"tenant_id"`
	Mode      Mode      `json:"mode"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanTransition reports whether moving from one mode to another is
// permitted. Autonomous transitions (integrity panics) may only push an
// ACTIVE tenant into READ_ONLY; everything else requires an
// administrative action, and nothing leaves HALTED except an explicit
// administrative return to ACTIVE.
func CanTransition(from, to Mode, administrative bool) bool {
	if from == "" {
		from = ModeActive
	}
	if !to.Valid() {
		return false
	}
	if from == to {
		// Idempotent re-application is allowed, except re-halting a
		// halted tenant still needs an admin.
		return administrative || from == ModeReadOnly
	}

	if !administrative {
		return from == ModeActive && to == ModeReadOnly
	}

	switch from {
	case ModeActive:
		return to == ModeHalted || to == ModeReadOnly
	case ModeReadOnly:
		return to == ModeActive || to == ModeHalted
	case ModeHalted:
		return to == ModeActive
	}
	return false
}
