package queue

import "testing"

func TestRedeliveryStatusWithinBudget(t *testing.T) {
	q := New(nil, 3)

	for attempts := 0; attempts < 3; attempts++ {
		if got := q.redeliveryStatus(attempts); got != "pending" {
			t.Fatalf("attempts=%d: expected pending, got %q", attempts, got)
		}
	}
}

func TestRedeliveryStatusDeadAtBudget(t *testing.T) {
	q := New(nil, 3)

	if got := q.redeliveryStatus(3); got != "dead" {
		t.Fatalf("expected dead at the budget, got %q", got)
	}
	if got := q.redeliveryStatus(7); got != "dead" {
		t.Fatalf("expected dead past the budget, got %q", got)
	}
}

func TestNewClampsDeliveryBudget(t *testing.T) {
	q := New(nil, 0)

	if q.MaxDeliveries != 3 {
		t.Fatalf("expected default budget 3, got %d", q.MaxDeliveries)
	}
	if got := q.redeliveryStatus(3); got != "dead" {
		t.Fatalf("expected default budget to bound redelivery, got %q", got)
	}
}
