package journal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/xraph/journal/event"
	"github.com/xraph/journal/id"
	"github.com/xraph/journal/invariant"
	"github.com/xraph/journal/outbox"
	"github.com/xraph/journal/types"
)

// Reconciliation alert types.
const (
	AlertMissingLedgerEntries = "MISSING_LEDGER_ENTRIES"
	AlertDoubleEntryMismatch  = "DOUBLE_ENTRY_MISMATCH"
)

// ReconciliationAlert reports an inconsistency the auditor found
// between stored events and their posting sets.
type ReconciliationAlert struct {
	ID         id.AlertID `json:"id"`
	Type       string     `json:"type"`
	TenantID   string     `json:"tenant_id"`
	EventID    id.EventID `json:"event_id"`
	EventType  string     `json:"event_type"`
	Detail     string     `json:"detail"`
	Debit      string     `json:"debit,omitempty"`
	Credit     string     `json:"credit,omitempty"`
	Delta      string     `json:"delta,omitempty"`
	DetectedAt time.Time  `json:"detected_at"`
}

// reconcileWorker runs the auditor on a fixed interval.
func (e *Engine) reconcileWorker(ctx context.Context) {
	defer e.wg.Done()

	interval := e.reconcileInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return

		case <-ticker.C:
			if _, err := e.RunReconciliation(ctx); err != nil {
				e.logger.Error("reconciliation run failed", "error", err)
			}
		}
	}
}

// RunReconciliation audits events written inside the lookback window
// and raises alerts for events with no postings and for posting sets
// whose debit and credit totals diverge beyond epsilon. Returns the
// number of alerts raised.
func (e *Engine) RunReconciliation(ctx context.Context) (int, error) {
	since := time.Now().Add(-e.reconcileLookback)
	alerts := 0

	orphans, err := e.store.ScanEventsWithoutPostings(ctx, since, e.relayBatchSize)
	if err != nil {
		return alerts, err
	}
	for _, evt := range orphans {
		// OTHER events legitimately carry no postings; every other
		// zero-posting event, unrecognized types included, is an anomaly.
		if evt.Type != event.TypeOther {
			e.raiseAlert(ctx, &ReconciliationAlert{
				ID:         id.NewAlertID(),
				Type:       AlertMissingLedgerEntries,
				TenantID:   evt.TenantID,
				EventID:    evt.ID,
				EventType:  string(evt.Type),
				Detail:     "event has no ledger postings",
				DetectedAt: time.Now().UTC(),
			})
			alerts++
		}
	}

	balances, err := e.store.ScanEventBalances(ctx, since, e.relayBatchSize)
	if err != nil {
		return alerts, err
	}
	for _, b := range balances {
		diff := b.DebitUnits - b.CreditUnits
		if diff < 0 {
			diff = -diff
		}
		if diff > e.epsilonUnits(b.Event.Amount.Scale) {
			currency, scale := b.Event.Amount.Currency, b.Event.Amount.Scale
			debit := types.New(b.DebitUnits, currency, scale).Format()
			credit := types.New(b.CreditUnits, currency, scale).Format()
			delta := types.New(diff, currency, scale).Format()
			e.raiseAlert(ctx, &ReconciliationAlert{
				ID:         id.NewAlertID(),
				Type:       AlertDoubleEntryMismatch,
				TenantID:   b.Event.TenantID,
				EventID:    b.Event.ID,
				EventType:  string(b.Event.Type),
				Detail:     fmt.Sprintf("debit %s != credit %s (delta %s)", debit, credit, delta),
				Debit:      debit,
				Credit:     credit,
				Delta:      delta,
				DetectedAt: time.Now().UTC(),
			})
			alerts++
		}
	}

	if alerts > 0 {
		e.logger.Warn("reconciliation found inconsistencies", "alerts", alerts)
	}
	return alerts, nil
}

// epsilonUnits converts the configured epsilon into minor units at a
// given scale, never below zero.
func (e *Engine) epsilonUnits(scale int) int64 {
	return int64(math.Round(e.reconcileEpsilon * math.Pow10(scale)))
}

// raiseAlert counts, notifies plugins and publishes a reconciliation
// alert through the outbox.
func (e *Engine) raiseAlert(ctx context.Context, alert *ReconciliationAlert) {
	e.invariants.IncrementFor(invariant.KindReconciliationAlert, alert.TenantID, alert.EventID.String())
	e.plugins.EmitReconciliationAlert(ctx, alert)
	e.logger.Warn("reconciliation alert",
		"alert_type", alert.Type,
		"tenant_id", alert.TenantID,
		"event_id", alert.EventID,
	)

	payload := map[string]any{
		outbox.PayloadTenantKey: alert.TenantID,
		"alertId":               alert.ID.String(),
		"alertType":             alert.Type,
		"eventId":               alert.EventID.String(),
		"eventType":             alert.EventType,
		"detail":                alert.Detail,
	}
	if alert.Delta != "" {
		payload["debit"] = alert.Debit
		payload["credit"] = alert.Credit
		payload["delta"] = alert.Delta
	}
	msg, err := outbox.NewMessage(alert.ID.String(), "reconciliation_alert", outbox.EventReconciliationAlert, payload, nil)
	if err != nil {
		e.logger.Error("reconciliation alert message build failed", "error", err)
		return
	}
	if err := e.store.EnqueueOutbox(ctx, msg); err != nil {
		e.logger.Error("reconciliation alert enqueue failed", "error", err)
	}
}
