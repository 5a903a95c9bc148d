package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	razorpay "github.com/razorpay/razorpay-go"
	"github.com/shopspring/decimal"
)

// OrderRequest asks the gateway for a new order.
type OrderRequest struct {
	Amount   decimal.Decimal
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order is a gateway order. Amount is in currency subunits.
type Order struct {
	ID       string
	Amount   int64
	Currency string
}

// Gateway creates payment orders.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
}

// Subunits converts an amount to the smallest currency unit (paise for INR).
func Subunits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// Razorpay creates orders through the Razorpay Orders API.
type Razorpay struct {
	client *razorpay.Client
}

// NewRazorpay creates a Razorpay gateway with API key credentials.
func NewRazorpay(keyID, keySecret string) *Razorpay {
	return &Razorpay{client: razorpay.NewClient(keyID, keySecret)}
}

// CreateOrder implements Gateway.
func (r *Razorpay) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	amount := Subunits(req.Amount)
	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	body, err := r.client.Order.Create(map[string]interface{}{
		"amount":   amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	id, _ := body["id"].(string)
	if id == "" {
		return nil, errors.New("razorpay create order: response has no id")
	}
	return &Order{ID: id, Amount: amount, Currency: req.Currency}, nil
}

// Stub hands out local order IDs. Used in development when no Razorpay keys are set.
type Stub struct{}

// CreateOrder implements Gateway.
func (Stub) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	id := "order_stub_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	return &Order{ID: id, Amount: Subunits(req.Amount), Currency: req.Currency}, nil
}
