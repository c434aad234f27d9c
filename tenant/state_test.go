package tenant

import "testing"

func TestAllowsWrites(t *testing.T) {
	if !ModeActive.AllowsWrites() {
		t.Error("ACTIVE should allow writes")
	}
	if !Mode("").AllowsWrites() {
		t.Error("missing state should allow writes")
	}
	if ModeReadOnly.AllowsWrites() {
		t.Error("READ_ONLY must not allow writes")
	}
	if ModeHalted.AllowsWrites() {
		t.Error("HALTED must not allow writes")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name           string
		from, to       Mode
		administrative bool
		want           bool
	}{
		{"panic active to read-only", ModeActive, ModeReadOnly, false, true},
		{"panic implicit active to read-only", "", ModeReadOnly, false, true},
		{"panic read-only is idempotent", ModeReadOnly, ModeReadOnly, false, true},
		{"panic cannot touch halted", ModeHalted, ModeReadOnly, false, false},
		{"panic cannot activate", ModeReadOnly, ModeActive, false, false},
		{"panic cannot halt", ModeActive, ModeHalted, false, false},

		{"admin resume from read-only", ModeReadOnly, ModeActive, true, true},
		{"admin halt from active", ModeActive, ModeHalted, true, true},
		{"admin halt from read-only", ModeReadOnly, ModeHalted, true, true},
		{"admin unhalt", ModeHalted, ModeActive, true, true},
		{"admin force read-only", ModeActive, ModeReadOnly, true, true},
		{"admin cannot move halted to read-only", ModeHalted, ModeReadOnly, true, false},

		{"unknown target mode", ModeActive, Mode("PAUSED"), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanTransition(tt.from, tt.to, tt.administrative)
			if got != tt.want {
				t.Errorf("CanTransition(%q, %q, admin=%v): got %v, want %v",
					tt.from, tt.to, tt.administrative, got, tt.want)
			}
		})
	}
}
