// Package attribution maps economic events to balanced double-entry
// posting sets. The rule table is pure and deterministic: the same
// event type and amount always yield the same entries, so attribution
// can be replayed safely during duplicate recovery.
package attribution

import (
	"errors"
	"fmt"

	"github.com/xraph/journal/event"
	"github.com/xraph/journal/posting"
	"github.com/xraph/journal/types"
)

// ErrUnbalanced reports a derived posting set whose debit and credit
// magnitudes disagree. It should never fire for rule-table output; it
// exists as a guard before anything reaches storage.
var ErrUnbalanced = errors.New("attribution: posting set is unbalanced")

// Entry is one prospective leg of a posting set, before storage
// assigns identity and sequence.
type Entry struct {
	Direction   posting.Direction
	AccountCode string
	Amount      types.Money
}

// Attribute derives the double-entry posting set for an event type and
// amount. Unrecognized types yield no entries; the caller decides
// whether that is acceptable for the event's journal phase.
//
// The amount for ADJUSTMENT events may be negative; the sign picks the
// direction of the correction and the stored magnitude is |amount|.
// All other rule amounts are used as-is and are expected non-negative.
func Attribute(t event.Type, amount types.Money) []Entry {
	switch t {
	case event.TypeCostIncurred:
		return pair(posting.AccountOperationalExpense, posting.AccountAccountsPayable, amount)
	case event.TypeRevenueRecognized:
		return pair(posting.AccountAccountsReceivable, posting.AccountRevenue, amount)
	case event.TypeObligationCreated:
		return pair(posting.AccountFutureExpense, posting.AccountObligation, amount)
	case event.TypeObligationSettled:
		return pair(posting.AccountObligation, posting.AccountCash, amount)
	case event.TypeReserveAllocated:
		return pair(posting.AccountReserve, posting.AccountCash, amount)
	case event.TypeBootstrap:
		return pair(posting.AccountCash, posting.AccountEquityReserve, amount)
	case event.TypeAdjustment:
		if amount.IsNegative() {
			return pair(posting.AccountEquityReserve, posting.AccountAdjustment, amount.Abs())
		}
		return pair(posting.AccountAdjustment, posting.AccountEquityReserve, amount)
	default:
		return nil
	}
}

// pair builds the canonical two-leg set: one debit, one credit, equal
// magnitudes.
func pair(debitAccount, creditAccount string, amount types.Money) []Entry {
	return []Entry{
		{Direction: posting.Debit, AccountCode: debitAccount, Amount: amount},
		{Direction: posting.Credit, AccountCode: creditAccount, Amount: amount},
	}
}

// AssertBalanced verifies that total debits equal total credits and
// that both sides are present for a non-empty set.
func AssertBalanced(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var debits, credits int64
	var debitCount, creditCount int
	for _, e := range entries {
		switch e.Direction {
		case posting.Debit:
			debits += e.Amount.Units
			debitCount++
		case posting.Credit:
			credits += e.Amount.Units
			creditCount++
		default:
			return fmt.Errorf("attribution: unknown direction %q", e.Direction)
		}
	}

	if debitCount == 0 || creditCount == 0 {
		return fmt.Errorf("%w: one-sided set (%d debits, %d credits)", ErrUnbalanced, debitCount, creditCount)
	}
	if debits != credits {
		return fmt.Errorf("%w: debits %d != credits %d", ErrUnbalanced, debits, credits)
	}
	return nil
}
