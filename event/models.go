// Package event defines the economic event model, the write-side input
// of the journal. Events describe business facts (a cost was incurred,
// revenue was recognized); the attribution engine derives balanced
// ledger postings from them.
package event

import (
	"github.com/xraph/journal/id"
	"github.com/xraph/journal/types"
)

// Type classifies an economic event.
type Type string

const (
	TypeCostIncurred      Type = "COST_INCURRED"
	TypeRevenueRecognized Type = "REVENUE_RECOGNIZED"
	TypeObligationCreated Type = "OBLIGATION_CREATED"
	TypeObligationSettled Type = "OBLIGATION_SETTLED"
	TypeReserveAllocated  Type = "RESERVE_ALLOCATED"
	TypeBootstrap         Type = "BOOTSTRAP"
	TypeAdjustment        Type = "ADJUSTMENT"
	TypeOther             Type = "OTHER"
)

// Known reports whether t is one of the recognized event types.
func (t Type) Known() bool {
	switch t {
	case TypeCostIncurred, TypeRevenueRecognized, TypeObligationCreated,
		TypeObligationSettled, TypeReserveAllocated, TypeBootstrap,
		TypeAdjustment, TypeOther:
		return true
	}
	return false
}

// JournalPhase classifies when in an economic lifecycle an event lands.
type JournalPhase string

const (
	PhaseAccrual     JournalPhase = "ACCRUAL"
	PhaseSettlement  JournalPhase = "SETTLEMENT"
	PhaseOpening     JournalPhase = "OPENING"
	PhaseAdjustment  JournalPhase = "ADJUSTMENT"
	PhaseUnspecified JournalPhase = "UNSPECIFIED"
)

// PhaseOf maps an event type to its journal phase.
func PhaseOf(t Type) JournalPhase {
	switch t {
	case TypeCostIncurred, TypeRevenueRecognized, TypeObligationCreated:
		return PhaseAccrual
	case TypeObligationSettled, TypeReserveAllocated:
		return PhaseSettlement
	case TypeBootstrap:
		return PhaseOpening
	case TypeAdjustment:
		return PhaseAdjustment
	default:
		return PhaseUnspecified
	}
}

// EconomicEvent is a recorded business fact. The stored amount is
// normalized to the currency scale at ingest; postings derived from it
// are the accounting source of truth.
type EconomicEvent struct {
	types.Entity
	ID          id.EventID  `json:"id"`
	TenantID    string      `json:"tenant_id"`
	Type        Type        `json:"type"`
	Amount      types.Money `json:"amount"`
	Currency    string      `json:"currency"`
	FieldID     string      `json:"field_id,omitempty"`
	SeasonID    string      `json:"season_id,omitempty"`
	EmployeeID  string      `json:"employee_id,omitempty"`
	ExecutionID string      `json:"execution_id,omitempty"`
	ReplayKey   string      `json:"replay_key,omitempty"`
	Metadata    Metadata    `json:"metadata,omitempty"`
}

// Metadata is the free-form annotation bag attached to an event.
// Well-known keys are defined as constants below.
type Metadata map[string]any

// Well-known metadata keys.
const (
	MetaIdempotencyKey = "idempotencyKey"
	MetaReplayKey      = "replayKey"
	MetaSourceEventID  = "sourceEventId"
	MetaSource         = "source"
	MetaTraceID        = "traceId"
	MetaContractVer    = "contractVersion"
	MetaJournalPhase   = "journalPhase"
	MetaSettlementRef  = "settlementRef"
	MetaObligationID   = "obligationId"
	MetaReserveID      = "reserveId"
	MetaCashImpact     = "cashImpact"
	MetaCashAccountID  = "cashAccountId"
	MetaCashDirection  = "cashDirection"
	MetaCashFlowType   = "cashFlowType"
	MetaDueDate        = "dueDate"
)

// String returns the string value stored under key, or "" when the key
// is absent or holds a non-string.
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// Bool returns the boolean value stored under key. A string "true" also
// counts, since upstream producers serialize flags inconsistently.
func (m Metadata) Bool(key string) bool {
	if m == nil {
		return false
	}
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// Clone returns a shallow copy, never nil.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Enrich returns a copy of the metadata stamped with the journal phase
// and, for settlement events, a settlement reference derived from the
// obligation or reserve correlation keys.
func Enrich(t Type, m Metadata) Metadata {
	out := m.Clone()
	out[MetaJournalPhase] = string(PhaseOf(t))

	if PhaseOf(t) == PhaseSettlement && out.String(MetaSettlementRef) == "" {
		switch t {
		case TypeObligationSettled:
			if ref := out.String(MetaObligationID); ref != "" {
				out[MetaSettlementRef] = "obligation:" + ref
			}
		case TypeReserveAllocated:
			if ref := out.String(MetaReserveID); ref != "" {
				out[MetaSettlementRef] = "reserve:" + ref
			}
		}
	}
	return out
}
