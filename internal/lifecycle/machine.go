// Package lifecycle enforces valid order status transitions and keeps
// the append-only status history.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/shopcoreapp/shopcore/internal/models"
)

// validNext is the legal transition graph. Canceled, refunded, and
// delivered-without-refund are terminal.
var validNext = map[models.OrderStatus]map[models.OrderStatus]bool{
	models.StatusOrdered: {
		models.StatusProcessing: true,
		models.StatusCanceled:   true,
	},
	models.StatusProcessing: {
		models.StatusPartiallyShipped: true,
		models.StatusShipped:          true,
		models.StatusCanceled:         true,
	},
	models.StatusPartiallyShipped: {
		models.StatusShipped:  true,
		models.StatusCanceled: true,
	},
	models.StatusShipped: {
		models.StatusDelivered: true,
		models.StatusCanceled:  true,
	},
	models.StatusDelivered: {
		models.StatusRefunded: true,
	},
	models.StatusCanceled: {},
	models.StatusRefunded: {},
}

// CanTransition reports whether to is reachable from from in one step.
func CanTransition(from, to models.OrderStatus) bool {
	return validNext[from][to]
}

// InvalidTransitionError is a caller error and is never retried.
type InvalidTransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition from %q to %q", e.From, e.To)
}

// Machine applies transitions to an order in memory. The caller is
// responsible for persisting the new status and the history entry
// atomically.
type Machine struct {
	now func() time.Time
}

func NewMachine() *Machine {
	return &Machine{now: time.Now}
}

// NewMachineWithClock is used by tests that need a deterministic clock.
func NewMachineWithClock(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{now: now}
}

// Initialize seeds a fresh order with its initial status and the first
// history entry. It fails if the order already has history.
func (m *Machine) Initialize(order *models.Order, comment string) (models.OrderStatusHistory, error) {
	if len(order.History) > 0 {
		return models.OrderStatusHistory{}, fmt.Errorf("order %s already has status history", order.ID)
	}

	entry := models.OrderStatusHistory{
		Status:    models.StatusOrdered,
		Comment:   comment,
		DateAdded: m.now().UTC(),
	}
	order.Status = models.StatusOrdered
	order.History = append(order.History, entry)
	return entry, nil
}

// Transition validates and applies a status change, appending exactly
// one history entry. Requesting the order's current status is a no-op
// that returns the latest existing entry, so retried requests cannot
// create duplicate history rows.
func (m *Machine) Transition(order *models.Order, to models.OrderStatus, comment string) (models.OrderStatusHistory, error) {
	if order.Status == to {
		if latest, ok := order.LatestHistory(); ok {
			return latest, nil
		}
		// An order with a status but no history predates this machine;
		// backfill a single entry for it.
		entry := models.OrderStatusHistory{
			Status:    to,
			Comment:   comment,
			DateAdded: m.now().UTC(),
		}
		order.History = append(order.History, entry)
		return entry, nil
	}

	if !CanTransition(order.Status, to) {
		return models.OrderStatusHistory{}, &InvalidTransitionError{From: order.Status, To: to}
	}

	entry := models.OrderStatusHistory{
		Status:    to,
		Comment:   comment,
		DateAdded: m.now().UTC(),
	}
	order.Status = to
	order.History = append(order.History, entry)
	return entry, nil
}
