package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/shopcoreapp/shopcore/internal/events"
	"github.com/shopcoreapp/shopcore/internal/lifecycle"
	"github.com/shopcoreapp/shopcore/internal/logging"
	"github.com/shopcoreapp/shopcore/internal/models"
	"github.com/shopcoreapp/shopcore/internal/observability"
	"github.com/shopcoreapp/shopcore/internal/totals"
)

const eventProducer = "shopcore"

type orderStore interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to models.OrderStatus, entry models.OrderStatusHistory) error
	ReplaceTotals(ctx context.Context, orderID uuid.UUID, totals []models.OrderTotal) error
	ListByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]uuid.UUID, error)
}

// OrderService owns order persistence and the status lifecycle.
type OrderService struct {
	store     orderStore
	machine   *lifecycle.Machine
	publisher events.Publisher
	logger    *slog.Logger
}

func NewOrderService(store orderStore, machine *lifecycle.Machine, publisher events.Publisher, logger *slog.Logger) *OrderService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &OrderService{
		store:     store,
		machine:   machine,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// PlaceOrder seeds the lifecycle, attaches the computed totals, and
// persists the new order.
func (s *OrderService) PlaceOrder(ctx context.Context, order *models.Order, result totals.Result) error {
	span := sentry.StartSpan(
		ctx,
		"service.order.place_order",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("PlaceOrder"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	if _, err := s.machine.Initialize(order, "order placed"); err != nil {
		return fmt.Errorf("failed to initialize order lifecycle: %w", err)
	}
	order.Totals = result.Totals

	if err := s.store.Create(ctx, order); err != nil {
		meter.Count("order.place.failed", 1)
		return fmt.Errorf("failed to create order: %w", err)
	}
	meter.Count("order.placed", 1)
	logger.Info("order placed",
		"order_id", order.ID, "grand_total_cents", result.GrandTotalCents, "warnings", len(result.Warnings))

	s.publish(ctx, events.EventOrderPlaced, order.ID, events.TotalsComputedPayload{
		OrderID:         order.ID.String(),
		GrandTotalCents: result.GrandTotalCents,
		Warnings:        len(result.Warnings),
	})
	return nil
}

// RecalculateTotals swaps the order's total lines for a freshly
// computed list and publishes the outcome.
func (s *OrderService) RecalculateTotals(ctx context.Context, orderID uuid.UUID, result totals.Result) error {
	if err := s.store.ReplaceTotals(ctx, orderID, result.Totals); err != nil {
		return fmt.Errorf("failed to replace order totals: %w", err)
	}
	s.publish(ctx, events.EventTotalsComputed, orderID, events.TotalsComputedPayload{
		OrderID:         orderID.String(),
		GrandTotalCents: result.GrandTotalCents,
		Warnings:        len(result.Warnings),
	})
	return nil
}

// TransitionStatus moves an order to a new status, appending exactly
// one history entry. Requesting the current status is a no-op, so a
// retried transition cannot duplicate history.
func (s *OrderService) TransitionStatus(ctx context.Context, orderID uuid.UUID, to models.OrderStatus, comment string) error {
	span := sentry.StartSpan(
		ctx,
		"service.order.transition_status",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("TransitionStatus"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}

	from := order.Status
	entry, err := s.machine.Transition(order, to, comment)
	if err != nil {
		meter.Count("order.transition.rejected", 1, sentry.WithAttributes(
			attribute.String("from", string(from)),
			attribute.String("to", string(to)),
		))
		return err
	}
	if from == to {
		logger.Info("order already in requested status", "order_id", orderID, "status", to)
		return nil
	}

	if err := s.store.UpdateStatus(ctx, orderID, from, to, entry); err != nil {
		meter.Count("order.transition.failed", 1)
		return fmt.Errorf("failed to persist status transition: %w", err)
	}
	meter.Count("order.transition.applied", 1, sentry.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
	logger.Info("order status changed", "order_id", orderID, "from", from, "to", to)

	s.publish(ctx, events.EventOrderStatusChanged, orderID, events.OrderStatusChangedPayload{
		OrderID: orderID.String(),
		From:    string(from),
		To:      string(to),
		Comment: comment,
	})
	return nil
}

// publish sends an event best effort; a broker problem is logged and
// never fails the operation that produced the event.
func (s *OrderService) publish(ctx context.Context, eventType string, orderID uuid.UUID, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		s.loggerFromContext(ctx).Warn("failed to marshal event payload", "event_type", eventType, "error", err)
		return
	}
	err = s.publisher.Publish(ctx, events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      eventProducer,
		CorrelationID: orderID.String(),
		Payload:       encoded,
	})
	if err != nil {
		s.loggerFromContext(ctx).Warn("failed to publish event", "event_type", eventType, "error", err)
	}
}
