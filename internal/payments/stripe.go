package payments

import (
	"context"
	"fmt"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/shopcoreapp/shopcore/internal/models"
)

// Detail keys recorded on transactions produced by the Stripe gateway.
const (
	DetailPaymentIntentID = "payment_intent_id"
	DetailRefundID        = "refund_id"
	DetailGatewayStatus   = "gateway_status"
)

// StripeGateway implements Gateway on Stripe PaymentIntents. Authorize
// creates a manual-capture intent so the funds are held until Capture
// consumes it.
type StripeGateway struct {
	client *stripeapi.Client
}

func NewStripeGateway(secretKey string) (*StripeGateway, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	return &StripeGateway{client: stripeapi.NewClient(secretKey)}, nil
}

func (g *StripeGateway) Authorize(ctx context.Context, order *models.Order, amountCents int64) (map[string]string, error) {
	params := &stripeapi.PaymentIntentCreateParams{
		Amount:        stripeapi.Int64(amountCents),
		Currency:      stripeapi.String(currencyOrDefault(order)),
		CaptureMethod: stripeapi.String(string(stripeapi.PaymentIntentCaptureMethodManual)),
		Metadata: map[string]string{
			"order_id":     order.ID.String(),
			"order_number": fmt.Sprintf("%d", order.OrderNumber),
		},
	}
	if order.CustomerEmail != "" {
		params.ReceiptEmail = stripeapi.String(order.CustomerEmail)
	}

	intent, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return map[string]string{
		DetailPaymentIntentID: intent.ID,
		DetailGatewayStatus:   string(intent.Status),
	}, nil
}

func (g *StripeGateway) Capture(ctx context.Context, order *models.Order, authorization models.Transaction) (map[string]string, error) {
	intentID := authorization.Detail(DetailPaymentIntentID)
	if intentID == "" {
		return nil, fmt.Errorf("authorization %s carries no payment intent id", authorization.ID)
	}

	intent, err := g.client.V1PaymentIntents.Capture(ctx, intentID, &stripeapi.PaymentIntentCaptureParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to capture payment intent %s: %w", intentID, err)
	}

	return map[string]string{
		DetailPaymentIntentID: intent.ID,
		DetailGatewayStatus:   string(intent.Status),
	}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, order *models.Order, amountCents int64, capture models.Transaction) (map[string]string, error) {
	intentID := capture.Detail(DetailPaymentIntentID)
	if intentID == "" {
		return nil, fmt.Errorf("capture %s carries no payment intent id", capture.ID)
	}

	refund, err := g.client.V1Refunds.Create(ctx, &stripeapi.RefundCreateParams{
		PaymentIntent: stripeapi.String(intentID),
		Amount:        stripeapi.Int64(amountCents),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to refund payment intent %s: %w", intentID, err)
	}

	return map[string]string{
		DetailPaymentIntentID: intentID,
		DetailRefundID:        refund.ID,
		DetailGatewayStatus:   string(refund.Status),
	}, nil
}

func currencyOrDefault(order *models.Order) string {
	if order.CurrencyCode != "" {
		return strings.ToLower(order.CurrencyCode)
	}
	return "usd"
}
