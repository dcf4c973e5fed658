package store

import "testing"

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		valid  bool
	}{
		{"request", "waiting", true},
		{"request", "requested", false},
		{"request", "at_counter", false},
		{"arrive", "waiting", true},
		{"arrive", "requested", true},
		{"arrive", "at_counter", false},
		{"serve", "at_counter", true},
		{"serve", "waiting", false},
		{"serve", "served", false},
		{"cancel", "waiting", true},
		{"cancel", "requested", true},
		{"cancel", "at_counter", false},
		{"cancel", "served", false},
		{"cancel", "cancelled", false},
		{"unknown", "waiting", false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestTargetStatus(t *testing.T) {
	cases := []struct {
		action string
		status string
		known  bool
	}{
		{"request", "requested", true},
		{"arrive", "at_counter", true},
		{"serve", "served", true},
		{"cancel", "cancelled", true},
		{"hold", "", false},
	}

	for _, tt := range cases {
		status, known := TargetStatus(tt.action)
		if status != tt.status || known != tt.known {
			t.Fatalf("TargetStatus(%q)=(%q,%v), want (%q,%v)", tt.action, status, known, tt.status, tt.known)
		}
	}
}
