package attribution

import (
	"errors"
	"testing"

	"github.com/xraph/journal/event"
	"github.com/xraph/journal/posting"
	"github.com/xraph/journal/types"
)

func rub(units int64) types.Money { return types.New(units, "RUB", 4) }

func TestAttributeRuleTable(t *testing.T) {
	amount := rub(1000000) // 100.0000

	tests := []struct {
		eventType     event.Type
		debitAccount  string
		creditAccount string
	}{
		{event.TypeCostIncurred, posting.AccountOperationalExpense, posting.AccountAccountsPayable},
		{event.TypeRevenueRecognized, posting.AccountAccountsReceivable, posting.AccountRevenue},
		{event.TypeObligationCreated, posting.AccountFutureExpense, posting.AccountObligation},
		{event.TypeObligationSettled, posting.AccountObligation, posting.AccountCash},
		{event.TypeReserveAllocated, posting.AccountReserve, posting.AccountCash},
		{event.TypeBootstrap, posting.AccountCash, posting.AccountEquityReserve},
		{event.TypeAdjustment, posting.AccountAdjustment, posting.AccountEquityReserve},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			entries := Attribute(tt.eventType, amount)
			if len(entries) != 2 {
				t.Fatalf("expected 2 entries, got %d", len(entries))
			}

			debit, credit := entries[0], entries[1]
			if debit.Direction != posting.Debit {
				t.Errorf("first entry direction: got %s", debit.Direction)
			}
			if credit.Direction != posting.Credit {
				t.Errorf("second entry direction: got %s", credit.Direction)
			}
			if debit.AccountCode != tt.debitAccount {
				t.Errorf("debit account: got %s, want %s", debit.AccountCode, tt.debitAccount)
			}
			if credit.AccountCode != tt.creditAccount {
				t.Errorf("credit account: got %s, want %s", credit.AccountCode, tt.creditAccount)
			}
			if !debit.Amount.Equal(amount) || !credit.Amount.Equal(amount) {
				t.Error("entry amounts do not match input")
			}
		})
	}
}

func TestAttributeNegativeAdjustment(t *testing.T) {
	entries := Attribute(event.TypeAdjustment, rub(-1000000))
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if entries[0].AccountCode != posting.AccountEquityReserve || entries[0].Direction != posting.Debit {
		t.Errorf("negative adjustment debit: got %s %s", entries[0].Direction, entries[0].AccountCode)
	}
	if entries[1].AccountCode != posting.AccountAdjustment || entries[1].Direction != posting.Credit {
		t.Errorf("negative adjustment credit: got %s %s", entries[1].Direction, entries[1].AccountCode)
	}
	for _, e := range entries {
		if e.Amount.Units != 1000000 {
			t.Errorf("magnitude: got %d, want 1000000", e.Amount.Units)
		}
	}
}

func TestAttributeUnknownType(t *testing.T) {
	if entries := Attribute(event.TypeOther, rub(100)); entries != nil {
		t.Errorf("expected nil for OTHER, got %v", entries)
	}
	if entries := Attribute(event.Type("MYSTERY"), rub(100)); entries != nil {
		t.Errorf("expected nil for unknown type, got %v", entries)
	}
}

func TestAttributeDeterministic(t *testing.T) {
	a := Attribute(event.TypeCostIncurred, rub(123457))
	b := Attribute(event.TypeCostIncurred, rub(123457))
	if len(a) != len(b) {
		t.Fatal("lengths differ")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("entry %d differs: %v != %v", i, a[i], b[i])
		}
	}
}

func TestAssertBalanced(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantErr bool
	}{
		{
			"rule output balances",
			Attribute(event.TypeCostIncurred, rub(1000)),
			false,
		},
		{
			"empty set is fine",
			nil,
			false,
		},
		{
			"unequal magnitudes",
			[]Entry{
				{Direction: posting.Debit, AccountCode: posting.AccountCash, Amount: rub(100)},
				{Direction: posting.Credit, AccountCode: posting.AccountRevenue, Amount: rub(99)},
			},
			true,
		},
		{
			"one-sided set",
			[]Entry{
				{Direction: posting.Debit, AccountCode: posting.AccountCash, Amount: rub(100)},
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AssertBalanced(tt.entries)
			if tt.wantErr && !errors.Is(err, ErrUnbalanced) {
				t.Errorf("expected ErrUnbalanced, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
