// Package posting defines ledger postings, the immutable double-entry
// records derived from economic events.
package posting

import (
	"time"

	"github.com/xraph/journal/id"
	"github.com/xraph/journal/types"
)

// Direction is the side of the ledger a posting lands on.
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// Account codes used by the attribution rules. Postings may reference
// other codes when written through recovery or migration paths.
const (
	AccountOperationalExpense = "OPERATIONAL_EXPENSE"
	AccountAccountsPayable    = "ACCOUNTS_PAYABLE"
	AccountAccountsReceivable = "ACCOUNTS_RECEIVABLE"
	AccountRevenue            = "REVENUE"
	AccountFutureExpense      = "FUTURE_EXPENSE"
	AccountObligation         = "OBLIGATION"
	AccountReserve            = "RESERVE"
	AccountCash               = "CASH"
	AccountEquityReserve      = "EQUITY_RESERVE"
	AccountAdjustment         = "ADJUSTMENT_ACCOUNT"
)

// CashDirection marks whether a cash-impacting posting moves money in
// or out of the tenant's cash position.
type CashDirection string

const (
	CashIn  CashDirection = "IN"
	CashOut CashDirection = "OUT"
)

// Posting is one leg of a balanced double-entry set. Amount is always a
// non-negative magnitude; Direction carries the sign. Once stored a
// posting is immutable and holds a tenant-scoped sequence number.
type Posting struct {
	ID              id.PostingID  `json:"id"`
	EconomicEventID id.EventID    `json:"economic_event_id"`
	TenantID        string        `json:"tenant_id"`
	Direction       Direction     `json:"direction"`
	AccountCode     string        `json:"account_code"`
	Amount          types.Money   `json:"amount"`
	SequenceNumber  int64         `json:"sequence_number"`
	CashImpact      bool          `json:"cash_impact"`
	CashAccountID   string        `json:"cash_account_id,omitempty"`
	CashDirection   CashDirection `json:"cash_direction,omitempty"`
	CashFlowType    string        `json:"cash_flow_type,omitempty"`
	DueDate         *time.Time    `json:"due_date,omitempty"`
	ExecutionID     string        `json:"execution_id,omitempty"`
	IsImmutable     bool          `json:"is_immutable"`
	CreatedAt       time.Time     `json:"created_at"`
}

// CashBearing reports whether an account code participates in the
// solvency check.
func CashBearing(accountCode string) bool {
	return accountCode == AccountCash
}

// CashDelta returns the signed effect of the posting on its account
// balance in minor units. Cash is an asset account: debits increase it,
// credits decrease it.
func (p *Posting) CashDelta() int64 {
	if p.Direction == Debit {
		return p.Amount.Units
	}
	return -p.Amount.Units
}
