package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shopcoreapp/shopcore/internal/models"
)

func fixedClock() func() time.Time {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	return func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Minute)
	}
}

func newOrderedOrder(t *testing.T, m *Machine) *models.Order {
	t.Helper()
	order := &models.Order{ID: uuid.New()}
	if _, err := m.Initialize(order, "order placed"); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	return order
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from models.OrderStatus
		to   models.OrderStatus
		want bool
	}{
		{"ordered to processing", models.StatusOrdered, models.StatusProcessing, true},
		{"ordered to canceled", models.StatusOrdered, models.StatusCanceled, true},
		{"ordered skips to shipped", models.StatusOrdered, models.StatusShipped, false},
		{"processing to partially shipped", models.StatusProcessing, models.StatusPartiallyShipped, true},
		{"processing to shipped", models.StatusProcessing, models.StatusShipped, true},
		{"partially shipped to shipped", models.StatusPartiallyShipped, models.StatusShipped, true},
		{"shipped to delivered", models.StatusShipped, models.StatusDelivered, true},
		{"delivered to refunded", models.StatusDelivered, models.StatusRefunded, true},
		{"delivered to canceled", models.StatusDelivered, models.StatusCanceled, false},
		{"canceled is terminal", models.StatusCanceled, models.StatusOrdered, false},
		{"refunded is terminal", models.StatusRefunded, models.StatusDelivered, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestMachine_Transition_AppendsHistory(t *testing.T) {
	t.Parallel()

	m := NewMachineWithClock(fixedClock())
	order := newOrderedOrder(t, m)

	entry, err := m.Transition(order, models.StatusProcessing, "picking started")
	if err != nil {
		t.Fatalf("Transition() error: %v", err)
	}
	if entry.Status != models.StatusProcessing {
		t.Fatalf("entry status = %q, want %q", entry.Status, models.StatusProcessing)
	}
	if order.Status != models.StatusProcessing {
		t.Fatalf("order status = %q, want %q", order.Status, models.StatusProcessing)
	}
	if len(order.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(order.History))
	}
	latest, _ := order.LatestHistory()
	if latest != entry {
		t.Fatalf("latest history %+v does not match returned entry %+v", latest, entry)
	}
	if !order.History[1].DateAdded.After(order.History[0].DateAdded) {
		t.Fatalf("history is not ordered by date added")
	}
}

func TestMachine_Transition_Idempotent(t *testing.T) {
	t.Parallel()

	m := NewMachineWithClock(fixedClock())
	order := newOrderedOrder(t, m)

	first, err := m.Transition(order, models.StatusProcessing, "first")
	if err != nil {
		t.Fatalf("Transition() error: %v", err)
	}

	second, err := m.Transition(order, models.StatusProcessing, "retried")
	if err != nil {
		t.Fatalf("repeated Transition() error: %v", err)
	}
	if second != first {
		t.Fatalf("repeated transition returned %+v, want existing entry %+v", second, first)
	}
	if len(order.History) != 2 {
		t.Fatalf("history length = %d after retry, want 2", len(order.History))
	}
}

func TestMachine_Transition_FromCanceledAlwaysFails(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	targets := []models.OrderStatus{
		models.StatusOrdered,
		models.StatusProcessing,
		models.StatusPartiallyShipped,
		models.StatusShipped,
		models.StatusDelivered,
		models.StatusRefunded,
	}

	for _, to := range targets {
		order := &models.Order{
			ID:     uuid.New(),
			Status: models.StatusCanceled,
			History: []models.OrderStatusHistory{
				{Status: models.StatusCanceled, DateAdded: time.Now().UTC()},
			},
		}

		_, err := m.Transition(order, to, "")
		var invalid *InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("Transition(canceled -> %q) error = %v, want InvalidTransitionError", to, err)
		}
		if invalid.From != models.StatusCanceled || invalid.To != to {
			t.Fatalf("error fields = %q -> %q, want canceled -> %q", invalid.From, invalid.To, to)
		}
		if len(order.History) != 1 {
			t.Fatalf("history grew on rejected transition")
		}
	}
}

func TestMachine_Initialize_RejectsExistingHistory(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	order := newOrderedOrder(t, m)

	if _, err := m.Initialize(order, ""); err == nil {
		t.Fatalf("expected error initializing order with existing history")
	}
}
