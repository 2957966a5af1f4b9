package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcoreapp/shopcore/internal/models"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrStatusConflict means the order's status no longer matched the
	// expected value when the update ran, typically because another
	// writer transitioned the order first.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// OrderStore persists orders together with their total lines and their
// append-only status history.
type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts the order, its totals, and its initial history in a
// single transaction.
func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	shippingJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	billingJSON, err := json.Marshal(order.BillingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal billing address: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, merchant_id, currency_code, items, shipping_address, billing_address, customer_email, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID, order.MerchantID, order.CurrencyCode,
		itemsJSON, shippingJSON, billingJSON,
		order.CustomerEmail, order.Status, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	if err := insertTotals(ctx, tx, order.ID, order.Totals); err != nil {
		return err
	}
	for _, entry := range order.History {
		if err := insertHistory(ctx, tx, order.ID, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

// GetByID loads an order with its totals and full status history.
func (s *OrderStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var (
		order        models.Order
		itemsJSON    []byte
		shippingJSON []byte
		billingJSON  []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, merchant_id, order_number, currency_code, items, shipping_address, billing_address, customer_email, status, created_at
		FROM orders
		WHERE id = $1`, id,
	).Scan(
		&order.ID, &order.MerchantID, &order.OrderNumber, &order.CurrencyCode,
		&itemsJSON, &shippingJSON, &billingJSON,
		&order.CustomerEmail, &order.Status, &order.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(shippingJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(billingJSON, &order.BillingAddress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal billing address: %w", err)
	}

	order.Totals, err = s.loadTotals(ctx, id)
	if err != nil {
		return nil, err
	}
	order.History, err = s.loadHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus moves the order from one status to another and appends
// the matching history entry in the same transaction. The update is
// guarded on the current status so racing transitions cannot both win.
func (s *OrderStore) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to models.OrderStatus, entry models.OrderStatusHistory) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`,
		to, orderID, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrStatusConflict
	}

	if err := insertHistory(ctx, tx, orderID, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}
	return nil
}

// ReplaceTotals swaps the order's total lines for a freshly computed
// list. Totals are recomputed as a whole, never patched line by line.
func (s *OrderStore) ReplaceTotals(ctx context.Context, orderID uuid.UUID, totals []models.OrderTotal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM order_totals WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("failed to clear order totals: %w", err)
	}
	if err := insertTotals(ctx, tx, orderID, totals); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit totals: %w", err)
	}
	return nil
}

// ListByStatus returns up to limit order IDs in the given status,
// oldest first.
func (s *OrderStore) ListByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM orders WHERE status = $1 ORDER BY created_at LIMIT $2`,
		status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	return ids, nil
}

func (s *OrderStore) loadTotals(ctx context.Context, orderID uuid.UUID) ([]models.OrderTotal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, title, value_cents, sort_order
		FROM order_totals
		WHERE order_id = $1
		ORDER BY sort_order`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load order totals: %w", err)
	}
	defer rows.Close()

	var totals []models.OrderTotal
	for rows.Next() {
		var total models.OrderTotal
		if err := rows.Scan(&total.Code, &total.Title, &total.ValueCents, &total.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan order total: %w", err)
		}
		totals = append(totals, total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order totals: %w", err)
	}
	return totals, nil
}

func (s *OrderStore) loadHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, comment, date_added
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY date_added, id`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load status history: %w", err)
	}
	defer rows.Close()

	var history []models.OrderStatusHistory
	for rows.Next() {
		var entry models.OrderStatusHistory
		if err := rows.Scan(&entry.Status, &entry.Comment, &entry.DateAdded); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read status history: %w", err)
	}
	return history, nil
}

func insertTotals(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, totals []models.OrderTotal) error {
	for _, total := range totals {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_totals (order_id, code, title, value_cents, sort_order)
			VALUES ($1, $2, $3, $4, $5)`,
			orderID, total.Code, total.Title, total.ValueCents, total.SortOrder,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order total %s: %w", total.Code, err)
		}
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, entry models.OrderStatusHistory) error {
	dateAdded := entry.DateAdded
	if dateAdded.IsZero() {
		dateAdded = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, comment, date_added)
		VALUES ($1, $2, $3, $4)`,
		orderID, entry.Status, entry.Comment, dateAdded,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}
