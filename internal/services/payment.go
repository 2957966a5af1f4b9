package services

import (
	"context"
	"encoding/json"
	"errors"
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
	"github.com/shopcoreapp/shopcore/internal/payments"
)

type paymentSequencer interface {
	NextTransaction(ctx context.Context, orderID uuid.UUID) (models.TransactionType, error)
	Authorize(ctx context.Context, order *models.Order, amountCents int64) (models.Transaction, error)
	Capture(ctx context.Context, order *models.Order) (models.Transaction, error)
	Refund(ctx context.Context, order *models.Order, amountCents int64) (models.Transaction, error)
}

// PaymentService drives the authorize, capture, refund sequence for
// orders and moves the order lifecycle along on success.
type PaymentService struct {
	orders    orderStore
	sequencer paymentSequencer
	machine   *lifecycle.Machine
	publisher events.Publisher
	logger    *slog.Logger
}

func NewPaymentService(orders orderStore, sequencer paymentSequencer, machine *lifecycle.Machine, publisher events.Publisher, logger *slog.Logger) *PaymentService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &PaymentService{
		orders:    orders,
		sequencer: sequencer,
		machine:   machine,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *PaymentService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// NextTransaction reports the payment operation currently permitted
// for the order.
func (s *PaymentService) NextTransaction(ctx context.Context, orderID uuid.UUID) (models.TransactionType, error) {
	return s.sequencer.NextTransaction(ctx, orderID)
}

// AuthorizeOrder places an authorization hold for the order's grand
// total.
func (s *PaymentService) AuthorizeOrder(ctx context.Context, orderID uuid.UUID) (models.Transaction, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payment.authorize_order",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("AuthorizeOrder"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("failed to load order: %w", err)
	}

	amount := order.GrandTotalCents()
	transaction, err := s.sequencer.Authorize(ctx, order, amount)
	if err != nil {
		meter.Count("payment.authorize.failed", 1)
		return models.Transaction{}, err
	}
	meter.Count("payment.authorized", 1)

	s.publishPayment(ctx, events.EventPaymentAuthorized, transaction)
	return transaction, nil
}

// CaptureOrder settles the order's outstanding authorization and moves
// the order to processing. A capture that raced another attempt and
// lost reports ErrAlreadyCaptured; callers treat that as settled.
func (s *PaymentService) CaptureOrder(ctx context.Context, orderID uuid.UUID) (models.Transaction, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payment.capture_order",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("CaptureOrder"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("failed to load order: %w", err)
	}

	transaction, err := s.sequencer.Capture(ctx, order)
	if err != nil {
		meter.Count("payment.capture.failed", 1, sentry.WithAttributes(
			attribute.String("reason", captureFailureReason(err)),
		))
		return models.Transaction{}, err
	}
	meter.Count("payment.captured", 1)

	if err := s.transitionAfterCapture(ctx, order); err != nil {
		logger.Warn("captured payment but failed to advance order", "order_id", orderID, "error", err)
	}

	s.publishPayment(ctx, events.EventPaymentCaptured, transaction)
	return transaction, nil
}

// RefundOrder returns previously captured value to the customer.
func (s *PaymentService) RefundOrder(ctx context.Context, orderID uuid.UUID, amountCents int64) (models.Transaction, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payment.refund_order",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("RefundOrder"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("failed to load order: %w", err)
	}

	transaction, err := s.sequencer.Refund(ctx, order, amountCents)
	if err != nil {
		meter.Count("payment.refund.failed", 1)
		return models.Transaction{}, err
	}
	meter.Count("payment.refunded", 1)

	s.publishPayment(ctx, events.EventPaymentRefunded, transaction)
	return transaction, nil
}

// RunCaptureBatch captures every order still waiting on settlement.
// One order's failure never stops the batch.
func (s *PaymentService) RunCaptureBatch(ctx context.Context, limit int) (int, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payment.run_capture_batch",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("RunCaptureBatch"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)

	orderIDs, err := s.orders.ListByStatus(ctx, models.StatusOrdered, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list orders awaiting capture: %w", err)
	}

	captured := 0
	for _, orderID := range orderIDs {
		next, err := s.sequencer.NextTransaction(ctx, orderID)
		if err != nil {
			logger.Warn("failed to derive next transaction", "order_id", orderID, "error", err)
			continue
		}
		if next != models.TransactionCapture {
			continue
		}

		if _, err := s.CaptureOrder(ctx, orderID); err != nil {
			if errors.Is(err, payments.ErrAlreadyCaptured) {
				continue
			}
			logger.Warn("capture failed during batch run", "order_id", orderID, "error", err)
			continue
		}
		captured++
	}

	if captured > 0 {
		logger.Info("capture batch completed", "captured", captured, "scanned", len(orderIDs))
	}
	return captured, nil
}

func (s *PaymentService) transitionAfterCapture(ctx context.Context, order *models.Order) error {
	from := order.Status
	entry, err := s.machine.Transition(order, models.StatusProcessing, "payment captured")
	if err != nil {
		return err
	}
	if from == models.StatusProcessing {
		return nil
	}
	if err := s.orders.UpdateStatus(ctx, order.ID, from, models.StatusProcessing, entry); err != nil {
		return fmt.Errorf("failed to persist status transition: %w", err)
	}
	return nil
}

func (s *PaymentService) publishPayment(ctx context.Context, eventType string, transaction models.Transaction) {
	payload, err := json.Marshal(events.PaymentPayload{
		OrderID:       transaction.OrderID.String(),
		TransactionID: transaction.ID.String(),
		Type:          string(transaction.Type),
		AmountCents:   transaction.AmountCents,
	})
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
		CorrelationID: transaction.OrderID.String(),
		Payload:       payload,
	})
	if err != nil {
		s.loggerFromContext(ctx).Warn("failed to publish event", "event_type", eventType, "error", err)
	}
}

func captureFailureReason(err error) string {
	switch {
	case errors.Is(err, payments.ErrAlreadyCaptured):
		return "already_captured"
	case errors.Is(err, payments.ErrNoAuthorizationFound):
		return "no_authorization"
	default:
		return "gateway_error"
	}
}
