package entity

import "testing"

func TestTransitionAllowedOnlyFromPending(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusFailed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusPending, false},
		{OrderStatusPaid, OrderStatusCancelled, false},
		{OrderStatusFailed, OrderStatusPaid, false},
		{OrderStatusCancelled, OrderStatusPaid, false},
		{OrderStatusPending, "SHIPPED", false},
	}
	for _, tc := range cases {
		if got := TransitionAllowed(tc.from, tc.to); got != tc.want {
			t.Fatalf("TransitionAllowed(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatus(t *testing.T) {
	if TerminalStatus(OrderStatusPending) {
		t.Fatal("PENDING must not be terminal")
	}
	for _, status := range []string{OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled} {
		if !TerminalStatus(status) {
			t.Fatalf("%s must be terminal", status)
		}
	}
}

func TestValidStatus(t *testing.T) {
	for _, status := range []string{OrderStatusPending, OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled} {
		if !ValidStatus(status) {
			t.Fatalf("%s must be valid", status)
		}
	}
	if ValidStatus("SHIPPED") || ValidStatus("") {
		t.Fatal("unknown statuses must be invalid")
	}
}
