package postgres

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/journal/event"
	"github.com/xraph/journal/id"
	"github.com/xraph/journal/outbox"
	"github.com/xraph/journal/posting"
	"github.com/xraph/journal/tenant"
	"github.com/xraph/journal/types"
)

// ==================== Event models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:journal_events"`

	ID          string          `grove:"id,pk"`
	TenantID    string          `grove:"tenant_id"`
	Type        string          `grove:"type"`
	AmountUnits int64           `grove:"amount_units"`
	AmountScale int             `grove:"amount_scale"`
	Currency    string          `grove:"currency"`
	FieldID     string          `grove:"field_id"`
	SeasonID    string          `grove:"season_id"`
	EmployeeID  string          `grove:"employee_id"`
	ExecutionID string          `grove:"execution_id"`
	ReplayKey   string          `grove:"replay_key"`
	Metadata    json.RawMessage `grove:"metadata,type:jsonb"`
	CreatedAt   time.Time       `grove:"created_at"`
	UpdatedAt   time.Time       `grove:"updated_at"`
}

func toEventModel(e *event.EconomicEvent) *eventModel {
	metadata, _ := json.Marshal(e.Metadata) //nolint:errcheck // best-effort

	return &eventModel{
		ID:          e.ID.String(),
		TenantID:    e.TenantID,
		Type:        string(e.Type),
		AmountUnits: e.Amount.Units,
		AmountScale: e.Amount.Scale,
		Currency:    e.Currency,
		FieldID:     e.FieldID,
		SeasonID:    e.SeasonID,
		EmployeeID:  e.EmployeeID,
		ExecutionID: e.ExecutionID,
		ReplayKey:   e.ReplayKey,
		Metadata:    metadata,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.EconomicEvent, error) {
	eventID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}

	var metadata event.Metadata
	if len(m.Metadata) > 0 && string(m.Metadata) != "null" {
		_ = json.Unmarshal(m.Metadata, &metadata) //nolint:errcheck // best-effort
	}

	return &event.EconomicEvent{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          eventID,
		TenantID:    m.TenantID,
		Type:        event.Type(m.Type),
		Amount:      types.New(m.AmountUnits, m.Currency, m.AmountScale),
		Currency:    m.Currency,
		FieldID:     m.FieldID,
		SeasonID:    m.SeasonID,
		EmployeeID:  m.EmployeeID,
		ExecutionID: m.ExecutionID,
		ReplayKey:   m.ReplayKey,
		Metadata:    metadata,
	}, nil
}

// ==================== Posting models ====================

type postingModel struct {
	grove.BaseModel `grove:"table:journal_postings"`

	ID              string     `grove:"id,pk"`
	EconomicEventID string     `grove:"economic_event_id"`
	TenantID        string     `grove:"tenant_id"`
	Direction       string     `grove:"direction"`
	AccountCode     string     `grove:"account_code"`
	AmountUnits     int64      `grove:"amount_units"`
	AmountScale     int        `grove:"amount_scale"`
	Currency        string     `grove:"currency"`
	SequenceNumber  int64      `grove:"sequence_number"`
	CashImpact      bool       `grove:"cash_impact"`
	CashAccountID   string     `grove:"cash_account_id"`
	CashDirection   string     `grove:"cash_direction"`
	CashFlowType    string     `grove:"cash_flow_type"`
	DueDate         *time.Time `grove:"due_date"`
	ExecutionID     string     `grove:"execution_id"`
	IsImmutable     bool       `grove:"is_immutable"`
	CreatedAt       time.Time  `grove:"created_at"`
}

func toPostingModel(p *posting.Posting) *postingModel {
	return &postingModel{
		ID:              p.ID.String(),
		EconomicEventID: p.EconomicEventID.String(),
		TenantID:        p.TenantID,
		Direction:       string(p.Direction),
		AccountCode:     p.AccountCode,
		AmountUnits:     p.Amount.Units,
		AmountScale:     p.Amount.Scale,
		Currency:        p.Amount.Currency,
		SequenceNumber:  p.SequenceNumber,
		CashImpact:      p.CashImpact,
		CashAccountID:   p.CashAccountID,
		CashDirection:   string(p.CashDirection),
		CashFlowType:    p.CashFlowType,
		DueDate:         p.DueDate,
		ExecutionID:     p.ExecutionID,
		IsImmutable:     p.IsImmutable,
		CreatedAt:       p.CreatedAt,
	}
}

func fromPostingModel(m *postingModel) (*posting.Posting, error) {
	postingID, err := id.ParsePostingID(m.ID)
	if err != nil {
		return nil, err
	}
	eventID, err := id.ParseEventID(m.EconomicEventID)
	if err != nil {
		return nil, err
	}

	return &posting.Posting{
		ID:              postingID,
		EconomicEventID: eventID,
		TenantID:        m.TenantID,
		Direction:       posting.Direction(m.Direction),
		AccountCode:     m.AccountCode,
		Amount:          types.New(m.AmountUnits, m.Currency, m.AmountScale),
		SequenceNumber:  m.SequenceNumber,
		CashImpact:      m.CashImpact,
		CashAccountID:   m.CashAccountID,
		CashDirection:   posting.CashDirection(m.CashDirection),
		CashFlowType:    m.CashFlowType,
		DueDate:         m.DueDate,
		ExecutionID:     m.ExecutionID,
		IsImmutable:     m.IsImmutable,
		CreatedAt:       m.CreatedAt,
	}, nil
}

// ==================== Tenant state models ====================

type tenantStateModel struct {
	grove.BaseModel `grove:"table:journal_tenant_states"`

	TenantID  string    `grove:"tenant_id,pk"`
	Mode      string    `grove:"mode"`
	Reason    string    `grove:"reason"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toTenantStateModel(s *tenant.State) *tenantStateModel {
	return &tenantStateModel{
		TenantID:  s.TenantID,
		Mode:      string(s.Mode),
		Reason:    s.Reason,
		UpdatedAt: s.UpdatedAt,
	}
}

func fromTenantStateModel(m *tenantStateModel) *tenant.State {
	return &tenant.State{
		TenantID:  m.TenantID,
		Mode:      tenant.Mode(m.Mode),
		Reason:    m.Reason,
		UpdatedAt: m.UpdatedAt,
	}
}

// ==================== Outbox models ====================

type outboxModel struct {
	grove.BaseModel `grove:"table:journal_outbox"`

	ID            string          `grove:"id,pk"`
	AggregateID   string          `grove:"aggregate_id"`
	AggregateType string          `grove:"aggregate_type"`
	EventType     string          `grove:"event_type"`
	EventVersion  int             `grove:"event_version"`
	Payload       json.RawMessage `grove:"payload,type:jsonb"`
	Status        string          `grove:"status"`
	Error         string          `grove:"error"`
	CreatedAt     time.Time       `grove:"created_at"`
	ProcessedAt   *time.Time      `grove:"processed_at"`
}

func toOutboxModel(msg *outbox.Message) *outboxModel {
	payload, _ := json.Marshal(msg.Payload) //nolint:errcheck // best-effort

	return &outboxModel{
		ID:            msg.ID.String(),
		AggregateID:   msg.AggregateID,
		AggregateType: msg.AggregateType,
		EventType:     msg.EventType,
		EventVersion:  msg.EventVersion,
		Payload:       payload,
		Status:        string(msg.Status),
		Error:         msg.Error,
		CreatedAt:     msg.CreatedAt,
		ProcessedAt:   msg.ProcessedAt,
	}
}

func fromOutboxModel(m *outboxModel) (*outbox.Message, error) {
	msgID, err := id.ParseOutboxID(m.ID)
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if len(m.Payload) > 0 && string(m.Payload) != "null" {
		_ = json.Unmarshal(m.Payload, &payload) //nolint:errcheck // best-effort
	}

	return &outbox.Message{
		ID:            msgID,
		AggregateID:   m.AggregateID,
		AggregateType: m.AggregateType,
		EventType:     m.EventType,
		EventVersion:  m.EventVersion,
		Payload:       payload,
		Status:        outbox.Status(m.Status),
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
		ProcessedAt:   m.ProcessedAt,
	}, nil
}
