package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcoreapp/shopcore/internal/models"
	"github.com/shopcoreapp/shopcore/internal/payments"
)

// TransactionStore persists the per-order payment transaction log.
// WithOrderLock serializes writers by taking a row lock on the order,
// so of two racing capture attempts one always sees the other's record.
type TransactionStore struct {
	pool *pgxpool.Pool
}

func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

func (s *TransactionStore) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	rows, err := s.pool.Query(ctx, listTransactionsQuery, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (s *TransactionStore) WithOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context, access payments.TxAccess) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock order: %w", err)
	}

	if err := fn(ctx, &txAccess{tx: tx, orderID: orderID}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transactions: %w", err)
	}
	return nil
}

type txAccess struct {
	tx      pgx.Tx
	orderID uuid.UUID
}

func (a *txAccess) List(ctx context.Context) ([]models.Transaction, error) {
	rows, err := a.tx.Query(ctx, listTransactionsQuery, a.orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (a *txAccess) Append(ctx context.Context, transaction models.Transaction) error {
	detailsJSON, err := json.Marshal(transaction.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction details: %w", err)
	}

	_, err = a.tx.Exec(ctx, `
		INSERT INTO transactions (id, order_id, type, amount_cents, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		transaction.ID, transaction.OrderID, transaction.Type,
		transaction.AmountCents, detailsJSON, transaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

const listTransactionsQuery = `
	SELECT id, order_id, type, amount_cents, details, created_at
	FROM transactions
	WHERE order_id = $1
	ORDER BY created_at, id`

func scanTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	var transactions []models.Transaction
	for rows.Next() {
		var (
			transaction models.Transaction
			detailsJSON []byte
		)
		err := rows.Scan(
			&transaction.ID, &transaction.OrderID, &transaction.Type,
			&transaction.AmountCents, &detailsJSON, &transaction.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &transaction.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal transaction details: %w", err)
			}
		}
		transactions = append(transactions, transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return transactions, nil
}
