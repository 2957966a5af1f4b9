package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shopcoreapp/shopcore/internal/logging"
	"github.com/shopcoreapp/shopcore/internal/models"
)

// Sequencing violations are rejected synchronously and must never be
// retried automatically: retrying a duplicate capture could
// double-charge the customer.
var (
	ErrNoAuthorizationFound     = errors.New("no authorization found for order")
	ErrAlreadyCaptured          = errors.New("authorization already captured")
	ErrAuthorizationOutstanding = errors.New("order already has an unconsumed authorization")
	ErrRefundExceedsCapture     = errors.New("refund exceeds captured amount")
	ErrRefundWindowClosed       = errors.New("refund window has closed")
	ErrNothingCaptured          = errors.New("no captured amount to refund")
)

// Sequencer derives payment state entirely from the append-only
// transaction list; there is no separate mutable payment status field
// that could drift from the log.
type Sequencer struct {
	store        TransactionStore
	gateway      Gateway
	refundWindow time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

func NewSequencer(store TransactionStore, gateway Gateway, refundWindow time.Duration, logger *slog.Logger) *Sequencer {
	return &Sequencer{
		store:        store,
		gateway:      gateway,
		refundWindow: refundWindow,
		now:          time.Now,
		logger:       logger,
	}
}

func (s *Sequencer) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// paymentPosition is the state derived from one pass over the log.
type paymentPosition struct {
	openAuth      *models.Transaction
	capturedCents int64
	refundedCents int64
	lastCaptureAt time.Time
}

func derivePosition(transactions []models.Transaction) paymentPosition {
	var pos paymentPosition
	for i := range transactions {
		tx := transactions[i]
		switch tx.Type {
		case models.TransactionAuthorize:
			pos.openAuth = &transactions[i]
		case models.TransactionCapture:
			pos.openAuth = nil
			pos.capturedCents += tx.AmountCents
			pos.lastCaptureAt = tx.CreatedAt
		case models.TransactionRefund:
			pos.refundedCents += tx.AmountCents
		}
	}
	return pos
}

// NextTransaction returns the payment operation currently permitted for
// the order: AUTHORIZE when the log is empty, CAPTURE while an
// authorization is unconsumed, REFUND while captured value remains and
// the refund window is open, otherwise NONE.
func (s *Sequencer) NextTransaction(ctx context.Context, orderID uuid.UUID) (models.TransactionType, error) {
	transactions, err := s.store.ListByOrder(ctx, orderID)
	if err != nil {
		return models.TransactionNone, fmt.Errorf("failed to load transactions: %w", err)
	}

	pos := derivePosition(transactions)
	switch {
	case len(transactions) == 0:
		return models.TransactionAuthorize, nil
	case pos.openAuth != nil:
		return models.TransactionCapture, nil
	case pos.capturedCents > pos.refundedCents && s.withinRefundWindow(pos.lastCaptureAt):
		return models.TransactionRefund, nil
	default:
		return models.TransactionNone, nil
	}
}

func (s *Sequencer) withinRefundWindow(lastCapture time.Time) bool {
	if s.refundWindow <= 0 {
		return true
	}
	return s.now().Before(lastCapture.Add(s.refundWindow))
}

// Authorize records a new authorization through the gateway. An order
// may only hold one unconsumed authorization at a time.
func (s *Sequencer) Authorize(ctx context.Context, order *models.Order, amountCents int64) (models.Transaction, error) {
	if amountCents <= 0 {
		return models.Transaction{}, fmt.Errorf("authorization amount must be positive, got %d", amountCents)
	}

	var recorded models.Transaction
	err := s.store.WithOrderLock(ctx, order.ID, func(ctx context.Context, access TxAccess) error {
		transactions, err := access.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to load transactions: %w", err)
		}
		if pos := derivePosition(transactions); pos.openAuth != nil {
			return ErrAuthorizationOutstanding
		}

		details, err := s.gateway.Authorize(ctx, order, amountCents)
		if err != nil {
			return fmt.Errorf("gateway authorize failed: %w", err)
		}

		recorded = s.newTransaction(order.ID, models.TransactionAuthorize, amountCents, details)
		return access.Append(ctx, recorded)
	})
	if err != nil {
		return models.Transaction{}, err
	}

	s.loggerFromContext(ctx).Info("payment authorized",
		"order_id", order.ID, "amount_cents", amountCents, "transaction_id", recorded.ID)
	return recorded, nil
}

// Capture consumes the order's outstanding authorization. It fails
// with ErrNoAuthorizationFound when nothing was ever authorized and
// with ErrAlreadyCaptured when the authorization is already consumed;
// the order lock guarantees exactly one of two racing captures wins.
func (s *Sequencer) Capture(ctx context.Context, order *models.Order) (models.Transaction, error) {
	var recorded models.Transaction
	err := s.store.WithOrderLock(ctx, order.ID, func(ctx context.Context, access TxAccess) error {
		transactions, err := access.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to load transactions: %w", err)
		}

		pos := derivePosition(transactions)
		if pos.openAuth == nil {
			if pos.capturedCents > 0 {
				return ErrAlreadyCaptured
			}
			return ErrNoAuthorizationFound
		}

		details, err := s.gateway.Capture(ctx, order, *pos.openAuth)
		if err != nil {
			return fmt.Errorf("gateway capture failed: %w", err)
		}

		recorded = s.newTransaction(order.ID, models.TransactionCapture, pos.openAuth.AmountCents, details)
		return access.Append(ctx, recorded)
	})
	if err != nil {
		return models.Transaction{}, err
	}

	s.loggerFromContext(ctx).Info("payment captured",
		"order_id", order.ID, "amount_cents", recorded.AmountCents, "transaction_id", recorded.ID)
	return recorded, nil
}

// Refund records a refund against previously captured value. The total
// refunded can never exceed the total captured.
func (s *Sequencer) Refund(ctx context.Context, order *models.Order, amountCents int64) (models.Transaction, error) {
	if amountCents <= 0 {
		return models.Transaction{}, fmt.Errorf("refund amount must be positive, got %d", amountCents)
	}

	var recorded models.Transaction
	err := s.store.WithOrderLock(ctx, order.ID, func(ctx context.Context, access TxAccess) error {
		transactions, err := access.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to load transactions: %w", err)
		}

		pos := derivePosition(transactions)
		if pos.capturedCents == 0 {
			return ErrNothingCaptured
		}
		if amountCents > pos.capturedCents-pos.refundedCents {
			return fmt.Errorf("%w: %d requested, %d refundable",
				ErrRefundExceedsCapture, amountCents, pos.capturedCents-pos.refundedCents)
		}
		if !s.withinRefundWindow(pos.lastCaptureAt) {
			return ErrRefundWindowClosed
		}

		capture := latestCapture(transactions)
		details, err := s.gateway.Refund(ctx, order, amountCents, capture)
		if err != nil {
			return fmt.Errorf("gateway refund failed: %w", err)
		}

		recorded = s.newTransaction(order.ID, models.TransactionRefund, amountCents, details)
		return access.Append(ctx, recorded)
	})
	if err != nil {
		return models.Transaction{}, err
	}

	s.loggerFromContext(ctx).Info("payment refunded",
		"order_id", order.ID, "amount_cents", amountCents, "transaction_id", recorded.ID)
	return recorded, nil
}

func latestCapture(transactions []models.Transaction) models.Transaction {
	for i := len(transactions) - 1; i >= 0; i-- {
		if transactions[i].Type == models.TransactionCapture {
			return transactions[i]
		}
	}
	return models.Transaction{}
}

func (s *Sequencer) newTransaction(orderID uuid.UUID, txType models.TransactionType, amountCents int64, details map[string]string) models.Transaction {
	return models.Transaction{
		ID:          uuid.New(),
		OrderID:     orderID,
		Type:        txType,
		AmountCents: amountCents,
		Details:     details,
		CreatedAt:   s.now().UTC(),
	}
}
