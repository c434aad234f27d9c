package journal

import (
	"context"
	"fmt"

	"github.com/xraph/journal/invariant"
	"github.com/xraph/journal/outbox"
	"github.com/xraph/journal/tenant"
)

// ──────────────────────────────────────────────────
// Tenant Administration
// ──────────────────────────────────────────────────

// HaltTenant administratively stops all writes for a tenant. Reads stay
// available. Only an explicit UnhaltTenant lifts a halt.
func (e *Engine) HaltTenant(ctx context.Context, tenantID, reason string) error {
	return e.transitionTenant(ctx, tenantID, tenant.ModeHalted, reason)
}

// UnhaltTenant returns a halted tenant to ACTIVE.
func (e *Engine) UnhaltTenant(ctx context.Context, tenantID, reason string) error {
	if err := e.transitionTenant(ctx, tenantID, tenant.ModeActive, reason); err != nil {
		return err
	}
	e.plugins.EmitTenantResumed(ctx, tenantID)
	return nil
}

// ResumeTenant clears a READ_ONLY panic state after an operator has
// verified the books. Resuming an ACTIVE tenant is a no-op; a HALTED
// tenant can only be lifted by UnhaltTenant.
func (e *Engine) ResumeTenant(ctx context.Context, tenantID, reason string) error {
	state, err := e.store.GetTenantState(ctx, tenantID)
	if err != nil {
		return err
	}
	if state == nil || state.Mode.AllowsWrites() {
		return nil
	}
	if state.Mode == tenant.ModeHalted {
		e.invariants.IncrementFor(invariant.KindIllegalTransition, tenantID, "HALTED->ACTIVE(resume)")
		return fmt.Errorf("%w: resume cannot lift a halt", ErrIllegalTransition)
	}
	if err := e.transitionTenant(ctx, tenantID, tenant.ModeActive, reason); err != nil {
		return err
	}
	e.plugins.EmitTenantResumed(ctx, tenantID)
	return nil
}

// TenantMode reads a tenant's current operating mode. Tenants without
// stored state are ACTIVE.
func (e *Engine) TenantMode(ctx context.Context, tenantID string) (tenant.Mode, error) {
	state, err := e.store.GetTenantState(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if state == nil {
		return tenant.ModeActive, nil
	}
	return state.Mode, nil
}

// transitionTenant applies an administrative mode change after checking
// the transition matrix. Rejected transitions are counted.
func (e *Engine) transitionTenant(ctx context.Context, tenantID string, to tenant.Mode, reason string) error {
	if tenantID == "" {
		return ValidationError{Field: "tenantId", Message: "required"}
	}

	state, err := e.store.GetTenantState(ctx, tenantID)
	if err != nil {
		return err
	}
	from := tenant.ModeActive
	if state != nil {
		from = state.Mode
	}

	if !tenant.CanTransition(from, to, true) {
		e.invariants.IncrementFor(invariant.KindIllegalTransition, tenantID, fmt.Sprintf("%s->%s", from, to))
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	if err := e.store.SetTenantMode(ctx, tenantID, to, reason); err != nil {
		return err
	}

	if to == tenant.ModeHalted {
		e.plugins.EmitTenantHalted(ctx, tenantID, reason)
	}
	e.logger.Info("tenant mode changed",
		"tenant_id", tenantID,
		"from", from,
		"to", to,
		"reason", reason,
	)
	return nil
}

// ──────────────────────────────────────────────────
// Observability
// ──────────────────────────────────────────────────

// InvariantSnapshot returns the current violation counter totals.
func (e *Engine) InvariantSnapshot() invariant.Snapshot {
	return e.invariants.Snapshot()
}

// InvariantBreakdown returns per-tenant and per-entity counter detail.
func (e *Engine) InvariantBreakdown() invariant.Breakdown {
	return e.invariants.Breakdown()
}

// PanicTriggered reports whether the global panic gate is tripped.
func (e *Engine) PanicTriggered() bool {
	return e.panicThreshold > 0 && e.invariants.PanicTriggered(e.panicThreshold)
}

// OutboxHealth reports delivery backlog statistics.
func (e *Engine) OutboxHealth(ctx context.Context) (*outbox.Stats, error) {
	return e.store.OutboxStats(ctx)
}
