// Package payments tracks the legal sequence of gateway operations per
// order and delegates the actual charges to a Gateway implementation.
package payments

import (
	"context"

	"github.com/google/uuid"

	"github.com/shopcoreapp/shopcore/internal/models"
)

// Gateway performs the actual authorize/capture/refund network calls.
// The returned detail map is recorded opaquely on the transaction.
type Gateway interface {
	Authorize(ctx context.Context, order *models.Order, amountCents int64) (map[string]string, error)
	Capture(ctx context.Context, order *models.Order, authorization models.Transaction) (map[string]string, error)
	Refund(ctx context.Context, order *models.Order, amountCents int64, capture models.Transaction) (map[string]string, error)
}

// TxAccess is transactional access to one order's transaction list,
// valid only inside a WithOrderLock callback.
type TxAccess interface {
	List(ctx context.Context) ([]models.Transaction, error)
	Append(ctx context.Context, tx models.Transaction) error
}

// TransactionStore persists the append-only transaction log. Writes to
// the same order must be serialized: WithOrderLock guarantees that of
// two racing capture attempts exactly one observes the other's result.
type TransactionStore interface {
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
	WithOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context, access TxAccess) error) error
}
