package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/journal/attribution"
	"github.com/xraph/journal/contract"
	"github.com/xraph/journal/event"
	"github.com/xraph/journal/id"
	"github.com/xraph/journal/invariant"
	"github.com/xraph/journal/outbox"
	"github.com/xraph/journal/posting"
	"github.com/xraph/journal/store"
	"github.com/xraph/journal/tenant"
	"github.com/xraph/journal/types"
)

// IngestInput is the write-side request for recording an economic fact.
// AmountText carries an exact decimal string and takes precedence over
// Amount when set.
type IngestInput struct {
	Type        event.Type
	Amount      float64
	AmountText  string
	Currency    string
	TenantID    string
	FieldID     string
	SeasonID    string
	EmployeeID  string
	ExecutionID string
	Metadata    event.Metadata
}

// Ingest records an economic event and its derived double-entry
// postings atomically. Replays of an already recorded event return the
// stored event without writing anything new.
func (e *Engine) Ingest(ctx context.Context, in IngestInput) (*event.EconomicEvent, error) {
	start := time.Now()

	if in.TenantID == "" {
		return nil, ValidationError{Field: "tenantId", Message: "required"}
	}
	if in.Type == "" {
		return nil, ValidationError{Field: "type", Message: "required"}
	}

	// Global panic gate: once enough financial invariants have failed,
	// stop accepting writes process-wide until an operator intervenes.
	if e.panicThreshold > 0 && e.invariants.PanicTriggered(e.panicThreshold) {
		return nil, ErrPanicActive
	}

	md := event.Enrich(in.Type, in.Metadata)

	if e.requireIdempotency &&
		md.String(event.MetaIdempotencyKey) == "" &&
		md.String(event.MetaReplayKey) == "" &&
		md.String(event.MetaSourceEventID) == "" {
		return nil, ErrIdempotencyRequired
	}

	currency := in.Currency
	if currency == "" {
		currency = e.defaultCurrency
	}
	scale := e.scaleFor(currency)

	amount, err := e.resolveAmount(in, currency, scale)
	if err != nil {
		return nil, err
	}

	if err := e.checkContract(md); err != nil {
		return nil, err
	}

	replayKey := event.DeriveReplayKey(in.TenantID, in.Type, amount.Format(), amount.Currency, md)

	evt := &event.EconomicEvent{
		Entity:      types.NewEntity(),
		ID:          id.NewEventID(),
		TenantID:    in.TenantID,
		Type:        in.Type,
		Amount:      amount,
		Currency:    amount.Currency,
		FieldID:     in.FieldID,
		SeasonID:    in.SeasonID,
		EmployeeID:  in.EmployeeID,
		ExecutionID: in.ExecutionID,
		ReplayKey:   replayKey,
		Metadata:    md,
	}

	txErr := e.store.InTenantTx(ctx, in.TenantID, func(tx store.Tx) error {
		state, err := tx.TenantState(ctx)
		if err != nil {
			return err
		}
		if state != nil {
			switch state.Mode {
			case tenant.ModeHalted:
				return fmt.Errorf("%w: %s", ErrTenantHalted, in.TenantID)
			case tenant.ModeReadOnly:
				return fmt.Errorf("%w: %s", ErrTenantReadOnly, in.TenantID)
			}
		}

		if err := tx.InsertEvent(ctx, evt); err != nil {
			return err
		}

		if err := e.appendPostings(ctx, tx, evt); err != nil {
			return err
		}

		msg, err := eventCreatedMessage(evt)
		if err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, msg)
	})

	if txErr != nil {
		return e.handleIngestError(ctx, evt, txErr)
	}

	elapsed := time.Since(start)
	e.plugins.EmitEventIngested(ctx, evt, elapsed)
	e.logger.Debug("economic event ingested",
		"event_id", evt.ID,
		"tenant_id", evt.TenantID,
		"type", evt.Type,
		"amount", evt.Amount.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return evt, nil
}

// IngestEnvelope validates an integration envelope and records the
// event it carries. The source event id becomes the replay key, so
// upstream redeliveries collapse onto one stored event.
func (e *Engine) IngestEnvelope(ctx context.Context, env contract.Envelope) (*event.EconomicEvent, error) {
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	md := event.Metadata{}
	for k, v := range env.Metadata {
		md[k] = v
	}
	md[event.MetaSource] = env.Source
	md[event.MetaSourceEventID] = env.SourceEventID
	md[event.MetaContractVer] = env.ContractVersion
	if env.TraceID != "" {
		md[event.MetaTraceID] = env.TraceID
	}

	return e.Ingest(ctx, IngestInput{
		Type:       env.Type,
		AmountText: env.Amount.String(),
		Currency:   env.Currency,
		TenantID:   env.TenantID,
		FieldID:    env.FieldID,
		SeasonID:   env.SeasonID,
		EmployeeID: env.EmployeeID,
		Metadata:   md,
	})
}

// Event retrieves a stored economic event. Reads are permitted in every
// tenant mode.
func (e *Engine) Event(ctx context.Context, tenantID string, eventID id.EventID) (*event.EconomicEvent, error) {
	return e.store.GetEvent(ctx, tenantID, eventID)
}

// Postings retrieves the posting set of an event, in sequence order.
func (e *Engine) Postings(ctx context.Context, tenantID string, eventID id.EventID) ([]*posting.Posting, error) {
	return e.store.ListPostings(ctx, tenantID, eventID)
}

// resolveAmount parses and normalizes the input amount to the
// currency's configured scale.
func (e *Engine) resolveAmount(in IngestInput, currency string, scale int) (types.Money, error) {
	if in.AmountText != "" {
		m, err := types.Parse(in.AmountText, currency, scale)
		if err != nil {
			return types.Money{}, fmt.Errorf("%w: %v", ErrAmountInvalid, err)
		}
		return m, nil
	}
	m, err := types.FromFloat(in.Amount, currency, scale)
	if err != nil {
		return types.Money{}, fmt.Errorf("%w: %v", ErrAmountInvalid, err)
	}
	return m, nil
}

// checkContract enforces the integration contract for events that name
// a known upstream source.
func (e *Engine) checkContract(md event.Metadata) error {
	source := md.String(event.MetaSource)
	if !contract.IsIntegrationSource(source) {
		return nil
	}

	version := md.String(event.MetaContractVer)
	if contract.IsVersionSupported(version) {
		return nil
	}

	if e.contractMode == ContractStrict {
		return fmt.Errorf("%w: source %s version %q (supported: %v)",
			ErrContractIncompatible, source, version, contract.SupportedVersions())
	}
	e.logger.Warn("unsupported contract version accepted",
		"source", source,
		"version", version,
	)
	return nil
}

// appendPostings derives and stages the double-entry set for an event.
func (e *Engine) appendPostings(ctx context.Context, tx store.Tx, evt *event.EconomicEvent) error {
	entries := attribution.Attribute(evt.Type, evt.Amount)
	if len(entries) == 0 {
		// A settlement with no ledger effect would silently lose a cash
		// movement; that aborts the transaction. Other unknown types are
		// recorded as bare events.
		if event.PhaseOf(evt.Type) == event.PhaseSettlement {
			return fmt.Errorf("%w: no attribution for settlement event %s", ErrIncompleteEntry, evt.ID)
		}
		e.logger.Warn("event recorded without postings",
			"event_id", evt.ID,
			"tenant_id", evt.TenantID,
			"type", evt.Type,
		)
		return nil
	}

	if err := attribution.AssertBalanced(entries); err != nil {
		return err
	}

	cashImpact := evt.Metadata.Bool(event.MetaCashImpact)
	cashAccountID := evt.Metadata.String(event.MetaCashAccountID)
	cashDirection := evt.Metadata.String(event.MetaCashDirection)
	cashFlowType := evt.Metadata.String(event.MetaCashFlowType)
	if cashImpact && (cashAccountID == "" || cashDirection == "") {
		return fmt.Errorf("%w: event %s", ErrCashFieldsIncomplete, evt.ID)
	}

	var dueDate *time.Time
	if raw := evt.Metadata.String(event.MetaDueDate); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			dueDate = &t
		}
	}

	for _, entry := range entries {
		p := &posting.Posting{
			ID:              id.NewPostingID(),
			EconomicEventID: evt.ID,
			TenantID:        evt.TenantID,
			Direction:       entry.Direction,
			AccountCode:     entry.AccountCode,
			Amount:          entry.Amount,
			ExecutionID:     evt.ExecutionID,
			DueDate:         dueDate,
			CreatedAt:       time.Now().UTC(),
		}
		if cashImpact && posting.CashBearing(entry.AccountCode) {
			p.CashImpact = true
			p.CashAccountID = cashAccountID
			p.CashDirection = posting.CashDirection(cashDirection)
			p.CashFlowType = cashFlowType
		}
		if err := tx.AppendPosting(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// handleIngestError maps a failed ingest transaction onto the replay
// and panic paths.
func (e *Engine) handleIngestError(ctx context.Context, evt *event.EconomicEvent, txErr error) (*event.EconomicEvent, error) {
	tenantID := evt.TenantID

	if errors.Is(txErr, ErrDuplicateReplayKey) {
		e.invariants.IncrementFor(invariant.KindDuplicatePrevented, tenantID, string(evt.Type))
		e.plugins.EmitDuplicatePrevented(ctx, tenantID, evt.ReplayKey)

		existing, err := e.store.FindEventByReplayKey(ctx, tenantID, evt.ReplayKey)
		if err != nil {
			return nil, txErr
		}
		if err := e.recoverPhantomDuplicate(ctx, existing); err != nil {
			e.logger.Error("phantom duplicate recovery failed",
				"event_id", existing.ID,
				"tenant_id", tenantID,
				"error", err,
			)
		}
		e.logger.Info("duplicate event replay absorbed",
			"event_id", existing.ID,
			"tenant_id", tenantID,
			"replay_key", evt.ReplayKey,
		)
		return existing, nil
	}

	if IsIntegrityViolation(txErr) {
		kind := invariant.KindFinancialFailure
		if errors.Is(txErr, ErrTenantIsolation) {
			kind = invariant.KindTenantIsolation
		}
		e.invariants.IncrementFor(kind, tenantID, string(evt.Type))
		e.plugins.EmitIntegrityViolation(ctx, tenantID, txErr)

		changed, perr := e.store.PanicTenant(ctx, tenantID, txErr.Error())
		if perr != nil {
			e.logger.Error("tenant panic write failed",
				"tenant_id", tenantID,
				"error", perr,
			)
		} else if changed {
			e.plugins.EmitTenantPanicked(ctx, tenantID, txErr.Error())
			e.logger.Warn("tenant dropped to read-only after integrity violation",
				"tenant_id", tenantID,
				"violation", txErr.Error(),
			)
		}
		return nil, txErr
	}

	return nil, txErr
}

// recoverPhantomDuplicate regenerates a stored event's posting set when
// a crash between event insert and posting append left it empty.
// Attribution is deterministic, so the regenerated set is exactly what
// the original transaction would have written.
func (e *Engine) recoverPhantomDuplicate(ctx context.Context, existing *event.EconomicEvent) error {
	n, err := e.store.CountPostings(ctx, existing.TenantID, existing.ID)
	if err != nil || n > 0 {
		return err
	}

	e.logger.Warn("recovering event with missing postings",
		"event_id", existing.ID,
		"tenant_id", existing.TenantID,
	)
	return e.store.InTenantTx(ctx, existing.TenantID, func(tx store.Tx) error {
		return e.appendPostings(ctx, tx, existing)
	})
}

// eventCreatedMessage builds the outbox notification for a freshly
// recorded event.
func eventCreatedMessage(evt *event.EconomicEvent) (*outbox.Message, error) {
	payload := map[string]any{
		outbox.PayloadTenantKey: evt.TenantID,
		"eventId":               evt.ID.String(),
		"type":                  string(evt.Type),
		"amount":                evt.Amount.Format(),
		"currency":              evt.Currency,
		"journalPhase":          evt.Metadata.String(event.MetaJournalPhase),
	}
	if evt.ReplayKey != "" {
		payload["replayKey"] = evt.ReplayKey
	}
	return outbox.NewMessage(evt.ID.String(), "economic_event", outbox.EventEconomicEventCreated, payload, nil)
}
