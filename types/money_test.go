package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		currency string
		scale    int
		units    int64
		display  string
	}{
		{"two decimals exact", "49.00", "usd", 2, 4900, "49.00"},
		{"round half-up at scale 4", "12.345678", "RUB", 4, 123457, "12.3457"},
		{"round down below half", "12.34514", "RUB", 4, 123451, "12.3451"},
		{"exact half rounds up", "1.00005", "RUB", 4, 10001, "1.0001"},
		{"negative rounds away from zero", "-12.345678", "RUB", 4, -123457, "-12.3457"},
		{"pads short fraction", "12.3", "RUB", 4, 123000, "12.3000"},
		{"integer input", "100", "EUR", 2, 10000, "100.00"},
		{"zero scale", "100", "JPY", 0, 100, "100"},
		{"bare fraction", ".5", "USD", 2, 50, "0.50"},
		{"explicit plus sign", "+3.14", "USD", 2, 314, "3.14"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse(tt.input, tt.currency, tt.scale)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if m.Units != tt.units {
				t.Errorf("Units: got %d, want %d", m.Units, tt.units)
			}
			if m.Format() != tt.display {
				t.Errorf("Format: got %s, want %s", m.Format(), tt.display)
			}
		})
	}
}

func TestMoneyParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		scale int
	}{
		{"empty", "", 2},
		{"not a number", "abc", 2},
		{"double dot", "1.2.3", 2},
		{"lone dot", ".", 2},
		{"lone sign", "-", 2},
		{"scale too large", "1", 13},
		{"negative scale", "1", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input, "USD", tt.scale); err == nil {
				t.Errorf("Parse(%q, scale %d): expected error", tt.input, tt.scale)
			}
		})
	}
}

func TestMoneyFromFloat(t *testing.T) {
	tests := []struct {
		name  string
		input float64
		scale int
		units int64
	}{
		{"noisy float rounds deterministically", 12.345678, 4, 123457},
		{"binary noise", 0.1 + 0.2, 2, 30},
		{"negative", -100.0, 4, -1000000},
		{"whole number", 500, 2, 50000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := FromFloat(tt.input, "RUB", tt.scale)
			if err != nil {
				t.Fatalf("FromFloat: %v", err)
			}
			if m.Units != tt.units {
				t.Errorf("Units: got %d, want %d", m.Units, tt.units)
			}
		})
	}
}

func TestMoneyRescale(t *testing.T) {
	tests := []struct {
		name  string
		money Money
		scale int
		units int64
	}{
		{"widen", New(4900, "USD", 2), 4, 490000},
		{"narrow rounds half-up", New(123457, "RUB", 4), 2, 1235},
		{"narrow rounds down", New(123447, "RUB", 4), 2, 1234},
		{"negative narrows away from zero", New(-123457, "RUB", 4), 2, -1235},
		{"same scale", New(42, "USD", 2), 2, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.money.Rescale(tt.scale)
			if got.Units != tt.units {
				t.Errorf("Units: got %d, want %d", got.Units, tt.units)
			}
			if got.Scale != tt.scale {
				t.Errorf("Scale: got %d, want %d", got.Scale, tt.scale)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	rub := func(units int64) Money { return New(units, "RUB", 4) }

	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return rub(100).Add(rub(200)) }, rub(300)},
		{"Subtract", func() Money { return rub(500).Subtract(rub(200)) }, rub(300)},
		{"Negate", func() Money { return rub(100).Negate() }, rub(-100)},
		{"Abs positive", func() Money { return rub(100).Abs() }, rub(100)},
		{"Abs negative", func() Money { return rub(-100).Abs() }, rub(100)},
		{"Sum", func() Money { return Sum(rub(1), rub(2), rub(3)) }, rub(6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.op()
			if !got.Equal(tt.expected) {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMoneyMismatchPanics(t *testing.T) {
	tests := []struct {
		name string
		op   func()
	}{
		{"currency mismatch", func() { New(1, "USD", 2).Add(New(1, "EUR", 2)) }},
		{"scale mismatch", func() { New(1, "USD", 2).Add(New(1, "USD", 4)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.op()
		})
	}
}

func TestMoneyComparison(t *testing.T) {
	a := New(100, "USD", 2)
	b := New(200, "USD", 2)

	if !a.LessThan(b) {
		t.Error("LessThan: expected true")
	}
	if !b.GreaterThan(a) {
		t.Error("GreaterThan: expected true")
	}
	if !Zero("USD", 2).IsZero() {
		t.Error("IsZero: expected true")
	}
	if !a.IsPositive() {
		t.Error("IsPositive: expected true")
	}
	if !a.Negate().IsNegative() {
		t.Error("IsNegative: expected true")
	}
}

func TestMoneyJSON(t *testing.T) {
	m := New(123457, "RUB", 4)

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded["display"] != "12.3457" {
		t.Errorf("display: got %v, want 12.3457", decoded["display"])
	}
	if decoded["currency"] != "RUB" {
		t.Errorf("currency: got %v, want RUB", decoded["currency"])
	}
}
