package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/payments"
)

var (
	// ErrRefundInvalidInput indicates the refund request parameters are invalid.
	ErrRefundInvalidInput = errors.New("refund service: invalid input")
	// ErrRefundInvalidState indicates the order holds no refundable payment.
	ErrRefundInvalidState = errors.New("refund service: order not refundable")
	// ErrRefundUnavailable indicates the payment provider rejected or could not serve the refund.
	ErrRefundUnavailable = errors.New("refund service: unavailable")
)

// refundOrderAccess is the slice of OrderService refunds need.
type refundOrderAccess interface {
	Get(ctx context.Context, orderID string) (Order, error)
	AddPayment(ctx context.Context, cmd AddPaymentCommand) (Order, error)
}

// paymentRefundGateway abstracts payments.Manager for easier testing.
type paymentRefundGateway interface {
	Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// RefundServiceDeps wires the dependencies required by the refund service.
type RefundServiceDeps struct {
	Orders   refundOrderAccess
	Payments paymentRefundGateway
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type refundService struct {
	orders   refundOrderAccess
	payments paymentRefundGateway
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewRefundService constructs a RefundService validating required dependencies.
func NewRefundService(deps RefundServiceDeps) (RefundService, error) {
	if deps.Orders == nil {
		return nil, errors.New("refund service: order access is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("refund service: payment gateway is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &refundService{
		orders:   deps.Orders,
		payments: deps.Payments,
		logger:   logger,
	}, nil
}

// Refund returns money for an order through the payment provider, then records
// the outcome as a refunded payment attempt so the payment dimension follows.
// The PSP is only contacted once the order-side checks pass; a provider
// failure leaves the order untouched.
func (s *refundService) Refund(ctx context.Context, cmd RefundOrderCommand) (Order, error) {
	cmd.OrderID = strings.TrimSpace(cmd.OrderID)
	if cmd.OrderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrRefundInvalidInput)
	}
	if cmd.Amount < 0 {
		return Order{}, fmt.Errorf("%w: amount cannot be negative", ErrRefundInvalidInput)
	}

	order, err := s.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	remaining := completedPaymentTotal(order.Payments) - refundedPaymentTotal(order.Payments)
	if remaining <= 0 {
		return Order{}, fmt.Errorf("%w: no captured payment left to refund", ErrRefundInvalidState)
	}

	amount := cmd.Amount
	if amount == 0 {
		amount = remaining
	}
	if amount > remaining {
		return Order{}, fmt.Errorf("%w: amount %.2f exceeds refundable %.2f", ErrRefundInvalidInput, amount, remaining)
	}

	status := order.Status()
	if amount >= remaining {
		if !status.CanTransitionTo(domain.OrderRefunded) {
			return Order{}, fmt.Errorf("%w: cannot refund order in status %s", ErrRefundInvalidState, status)
		}
	} else if order.PaymentState != domain.PaymentPaid && order.PaymentState != domain.PaymentPartiallyRefunded {
		return Order{}, fmt.Errorf("%w: cannot partially refund payment state %s", ErrRefundInvalidState, order.PaymentState)
	}

	intentID, method := refundableIntent(order.Payments)
	if intentID == "" {
		return Order{}, fmt.Errorf("%w: no payment reference on record", ErrRefundInvalidState)
	}

	paymentCtx := payments.PaymentContext{Currency: order.Pricing.Currency}
	details, err := s.payments.LookupPayment(ctx, paymentCtx, payments.LookupRequest{IntentID: intentID})
	if err != nil {
		return Order{}, fmt.Errorf("%w: lookup payment: %s", ErrRefundUnavailable, err.Error())
	}
	if !details.Captured {
		return Order{}, fmt.Errorf("%w: payment %s is not captured", ErrRefundInvalidState, intentID)
	}

	minor := toMinorUnits(amount)
	details, err = s.payments.Refund(ctx, paymentCtx, payments.RefundRequest{
		IntentID:       intentID,
		Amount:         &minor,
		Reason:         cmd.Reason,
		IdempotencyKey: fmt.Sprintf("refund:%s:%d", order.ID, len(order.Payments)),
		Metadata:       map[string]string{"orderId": order.ID},
	})
	if err != nil {
		return Order{}, fmt.Errorf("%w: %s", ErrRefundUnavailable, err.Error())
	}

	s.logger(ctx, "order_refund_issued", map[string]any{
		"orderId":       order.ID,
		"paymentIntent": intentID,
		"amount":        amount,
	})

	metadata := map[string]string{"paymentIntent": intentID}
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		metadata["reason"] = reason
	}
	return s.orders.AddPayment(ctx, AddPaymentCommand{
		OrderID:       order.ID,
		Method:        method,
		TransactionID: details.IntentID,
		Amount:        amount,
		Status:        domain.PaymentAttemptRefunded,
		Actor:         cmd.Actor,
		Metadata:      metadata,
	})
}

// refundableIntent walks the attempts newest-first looking for the completed
// payment carrying a provider intent reference.
func refundableIntent(attempts []PaymentAttempt) (intentID string, method string) {
	for i := len(attempts) - 1; i >= 0; i-- {
		attempt := attempts[i]
		if attempt.Status != domain.PaymentAttemptCompleted {
			continue
		}
		if id := strings.TrimSpace(attempt.Metadata["paymentIntent"]); id != "" {
			return id, attempt.Method
		}
		if id := strings.TrimSpace(attempt.TransactionID); id != "" {
			return id, attempt.Method
		}
	}
	return "", ""
}
