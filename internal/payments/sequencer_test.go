package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shopcoreapp/shopcore/internal/models"
)

type memoryTxStore struct {
	mu           sync.Mutex
	transactions map[uuid.UUID][]models.Transaction
}

func newMemoryTxStore() *memoryTxStore {
	return &memoryTxStore{transactions: make(map[uuid.UUID][]models.Transaction)}
}

func (s *memoryTxStore) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Transaction(nil), s.transactions[orderID]...), nil
}

type memoryTxAccess struct {
	store   *memoryTxStore
	orderID uuid.UUID
}

func (a *memoryTxAccess) List(ctx context.Context) ([]models.Transaction, error) {
	return append([]models.Transaction(nil), a.store.transactions[a.orderID]...), nil
}

func (a *memoryTxAccess) Append(ctx context.Context, tx models.Transaction) error {
	a.store.transactions[a.orderID] = append(a.store.transactions[a.orderID], tx)
	return nil
}

func (s *memoryTxStore) WithOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context, access TxAccess) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, &memoryTxAccess{store: s, orderID: orderID})
}

type fakeGateway struct {
	authorizeErr error
	captureErr   error
	refundErr    error
	captures     int
}

func (g *fakeGateway) Authorize(ctx context.Context, order *models.Order, amountCents int64) (map[string]string, error) {
	if g.authorizeErr != nil {
		return nil, g.authorizeErr
	}
	return map[string]string{DetailPaymentIntentID: "pi_fake_auth"}, nil
}

func (g *fakeGateway) Capture(ctx context.Context, order *models.Order, authorization models.Transaction) (map[string]string, error) {
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	g.captures++
	return map[string]string{DetailPaymentIntentID: authorization.Detail(DetailPaymentIntentID)}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, order *models.Order, amountCents int64, capture models.Transaction) (map[string]string, error) {
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return map[string]string{DetailRefundID: "re_fake"}, nil
}

func testOrder() *models.Order {
	return &models.Order{ID: uuid.New(), CurrencyCode: "USD"}
}

func TestSequencer_NextTransaction_Progression(t *testing.T) {
	t.Parallel()

	store := newMemoryTxStore()
	seq := NewSequencer(store, &fakeGateway{}, 0, nil)
	order := testOrder()

	next, err := seq.NextTransaction(t.Context(), order.ID)
	if err != nil {
		t.Fatalf("NextTransaction() error: %v", err)
	}
	if next != models.TransactionAuthorize {
		t.Fatalf("next = %q on empty log, want authorize", next)
	}

	if _, err := seq.Authorize(t.Context(), order, 5997); err != nil {
		t.Fatalf("Authorize() error: %v", err)
	}
	next, _ = seq.NextTransaction(t.Context(), order.ID)
	if next != models.TransactionCapture {
		t.Fatalf("next = %q after authorize, want capture", next)
	}

	if _, err := seq.Capture(t.Context(), order); err != nil {
		t.Fatalf("Capture() error: %v", err)
	}
	next, _ = seq.NextTransaction(t.Context(), order.ID)
	if next != models.TransactionRefund {
		t.Fatalf("next = %q after capture, want refund", next)
	}

	if _, err := seq.Refund(t.Context(), order, 5997); err != nil {
		t.Fatalf("Refund() error: %v", err)
	}
	next, _ = seq.NextTransaction(t.Context(), order.ID)
	if next != models.TransactionNone {
		t.Fatalf("next = %q after full refund, want none", next)
	}
}

func TestSequencer_CaptureWithoutAuthorization(t *testing.T) {
	t.Parallel()

	seq := NewSequencer(newMemoryTxStore(), &fakeGateway{}, 0, nil)

	_, err := seq.Capture(t.Context(), testOrder())
	if !errors.Is(err, ErrNoAuthorizationFound) {
		t.Fatalf("error = %v, want ErrNoAuthorizationFound", err)
	}
}

func TestSequencer_DoubleCapture(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{}
	seq := NewSequencer(newMemoryTxStore(), gateway, 0, nil)
	order := testOrder()

	if _, err := seq.Authorize(t.Context(), order, 2500); err != nil {
		t.Fatalf("Authorize() error: %v", err)
	}
	if _, err := seq.Capture(t.Context(), order); err != nil {
		t.Fatalf("first Capture() error: %v", err)
	}

	_, err := seq.Capture(t.Context(), order)
	if !errors.Is(err, ErrAlreadyCaptured) {
		t.Fatalf("second capture error = %v, want ErrAlreadyCaptured", err)
	}
	if gateway.captures != 1 {
		t.Fatalf("gateway captured %d times, want exactly 1", gateway.captures)
	}
}

func TestSequencer_CaptureAmountMatchesAuthorization(t *testing.T) {
	t.Parallel()

	seq := NewSequencer(newMemoryTxStore(), &fakeGateway{}, 0, nil)
	order := testOrder()

	if _, err := seq.Authorize(t.Context(), order, 4321); err != nil {
		t.Fatalf("Authorize() error: %v", err)
	}
	capture, err := seq.Capture(t.Context(), order)
	if err != nil {
		t.Fatalf("Capture() error: %v", err)
	}
	if capture.AmountCents != 4321 {
		t.Fatalf("capture amount = %d, want 4321", capture.AmountCents)
	}
}

func TestSequencer_SecondAuthorizationRejected(t *testing.T) {
	t.Parallel()

	seq := NewSequencer(newMemoryTxStore(), &fakeGateway{}, 0, nil)
	order := testOrder()

	if _, err := seq.Authorize(t.Context(), order, 1000); err != nil {
		t.Fatalf("Authorize() error: %v", err)
	}
	_, err := seq.Authorize(t.Context(), order, 1000)
	if !errors.Is(err, ErrAuthorizationOutstanding) {
		t.Fatalf("error = %v, want ErrAuthorizationOutstanding", err)
	}
}

func TestSequencer_RefundLimits(t *testing.T) {
	t.Parallel()

	seq := NewSequencer(newMemoryTxStore(), &fakeGateway{}, 0, nil)
	order := testOrder()

	_, err := seq.Refund(t.Context(), order, 100)
	if !errors.Is(err, ErrNothingCaptured) {
		t.Fatalf("refund before capture error = %v, want ErrNothingCaptured", err)
	}

	if _, err := seq.Authorize(t.Context(), order, 2000); err != nil {
		t.Fatalf("Authorize() error: %v", err)
	}
	if _, err := seq.Capture(t.Context(), order); err != nil {
		t.Fatalf("Capture() error: %v", err)
	}

	_, err = seq.Refund(t.Context(), order, 2500)
	if !errors.Is(err, ErrRefundExceedsCapture) {
		t.Fatalf("over-refund error = %v, want ErrRefundExceedsCapture", err)
	}

	if _, err := seq.Refund(t.Context(), order, 1500); err != nil {
		t.Fatalf("partial refund error: %v", err)
	}
	_, err = seq.Refund(t.Context(), order, 1000)
	if !errors.Is(err, ErrRefundExceedsCapture) {
		t.Fatalf("refund past remainder error = %v, want ErrRefundExceedsCapture", err)
	}
	if _, err := seq.Refund(t.Context(), order, 500); err != nil {
		t.Fatalf("refund of remainder error: %v", err)
	}
}

func TestSequencer_RefundWindow(t *testing.T) {
	t.Parallel()

	store := newMemoryTxStore()
	seq := NewSequencer(store, &fakeGateway{}, 30*24*time.Hour, nil)
	order := testOrder()

	if _, err := seq.Authorize(t.Context(), order, 2000); err != nil {
		t.Fatalf("Authorize() error: %v", err)
	}
	if _, err := seq.Capture(t.Context(), order); err != nil {
		t.Fatalf("Capture() error: %v", err)
	}

	// Move the clock past the window.
	seq.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }

	next, err := seq.NextTransaction(t.Context(), order.ID)
	if err != nil {
		t.Fatalf("NextTransaction() error: %v", err)
	}
	if next != models.TransactionNone {
		t.Fatalf("next = %q past refund window, want none", next)
	}

	_, err = seq.Refund(t.Context(), order, 2000)
	if !errors.Is(err, ErrRefundWindowClosed) {
		t.Fatalf("error = %v, want ErrRefundWindowClosed", err)
	}
}

func TestSequencer_GatewayFailureRecordsNothing(t *testing.T) {
	t.Parallel()

	store := newMemoryTxStore()
	seq := NewSequencer(store, &fakeGateway{captureErr: errors.New("gateway timeout")}, 0, nil)
	order := testOrder()

	if _, err := seq.Authorize(t.Context(), order, 2000); err != nil {
		t.Fatalf("Authorize() error: %v", err)
	}
	if _, err := seq.Capture(t.Context(), order); err == nil {
		t.Fatalf("expected capture error from gateway")
	}

	transactions, err := store.ListByOrder(t.Context(), order.ID)
	if err != nil {
		t.Fatalf("ListByOrder() error: %v", err)
	}
	if len(transactions) != 1 || transactions[0].Type != models.TransactionAuthorize {
		t.Fatalf("expected only the authorization in the log, got %+v", transactions)
	}
}
