package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/payments"
)

type stubRefundGateway struct {
	details   payments.PaymentDetails
	lookupErr error
	refundErr error
	lookups   []payments.LookupRequest
	refunds   []payments.RefundRequest
}

func (g *stubRefundGateway) LookupPayment(_ context.Context, _ payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
	g.lookups = append(g.lookups, req)
	if g.lookupErr != nil {
		return payments.PaymentDetails{}, g.lookupErr
	}
	return g.details, nil
}

func (g *stubRefundGateway) Refund(_ context.Context, _ payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error) {
	g.refunds = append(g.refunds, req)
	if g.refundErr != nil {
		return payments.PaymentDetails{}, g.refundErr
	}
	return g.details, nil
}

func newTestRefundService(t *testing.T, orders refundOrderAccess, gateway paymentRefundGateway) RefundService {
	t.Helper()
	svc, err := NewRefundService(RefundServiceDeps{Orders: orders, Payments: gateway})
	if err != nil {
		t.Fatalf("unexpected error building refund service: %v", err)
	}
	return svc
}

// seedPaidOrder stores an order in the wanted status with one completed
// attempt covering the total, referencing the given payment intent.
func seedPaidOrder(repo *memOrderRepo, id string, status domain.OrderStatus, total float64, intentID string) domain.Order {
	order := seedOrder(repo, id, status, total)
	order.Payments = append(order.Payments, domain.PaymentAttempt{
		ID:            "pay-1",
		Method:        "card",
		TransactionID: "cs_1",
		Amount:        total,
		Status:        domain.PaymentAttemptCompleted,
		ProcessedAt:   time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		Metadata:      map[string]string{"paymentIntent": intentID},
	})
	repo.orders[id] = order
	return order
}

func TestRefundFullMovesOrderToRefunded(t *testing.T) {
	repo := newMemOrderRepo()
	seedPaidOrder(repo, "o1", domain.OrderDelivered, 100, "pi_abc")
	orders := newTestOrderService(t, repo, nil)
	gateway := &stubRefundGateway{details: payments.PaymentDetails{IntentID: "pi_abc", Captured: true}}
	svc := newTestRefundService(t, orders, gateway)

	order, err := svc.Refund(context.Background(), RefundOrderCommand{OrderID: "o1", Actor: "admin:eva", Reason: "requested_by_customer"})
	if err != nil {
		t.Fatalf("Refund returned error: %v", err)
	}
	if order.Status() != domain.OrderRefunded {
		t.Fatalf("expected refunded status, got %s", order.Status())
	}
	if order.PaymentState != domain.PaymentRefunded {
		t.Fatalf("expected refunded payment state, got %s", order.PaymentState)
	}
	if len(order.Payments) != 2 || order.Payments[1].Status != domain.PaymentAttemptRefunded {
		t.Fatalf("expected appended refunded attempt, got %+v", order.Payments)
	}
	if len(order.StatusHistory) != 1 || order.StatusHistory[0].From != domain.OrderDelivered || order.StatusHistory[0].To != domain.OrderRefunded {
		t.Fatalf("expected delivered->refunded history entry, got %+v", order.StatusHistory)
	}
	if len(gateway.refunds) != 1 {
		t.Fatalf("expected one provider refund, got %d", len(gateway.refunds))
	}
	req := gateway.refunds[0]
	if req.IntentID != "pi_abc" {
		t.Fatalf("expected refund against pi_abc, got %s", req.IntentID)
	}
	if req.Amount == nil || *req.Amount != 10000 {
		t.Fatalf("expected 10000 minor units, got %v", req.Amount)
	}
}

func TestRefundPartialMarksPartiallyRefunded(t *testing.T) {
	repo := newMemOrderRepo()
	seedPaidOrder(repo, "o1", domain.OrderDelivered, 100, "pi_abc")
	orders := newTestOrderService(t, repo, nil)
	gateway := &stubRefundGateway{details: payments.PaymentDetails{IntentID: "pi_abc", Captured: true}}
	svc := newTestRefundService(t, orders, gateway)

	order, err := svc.Refund(context.Background(), RefundOrderCommand{OrderID: "o1", Amount: 40, Actor: "admin:eva"})
	if err != nil {
		t.Fatalf("Refund returned error: %v", err)
	}
	if order.PaymentState != domain.PaymentPartiallyRefunded {
		t.Fatalf("expected partially refunded, got %s", order.PaymentState)
	}
	if order.Status() != domain.OrderDelivered {
		t.Fatalf("expected status to stay delivered, got %s", order.Status())
	}
	if req := gateway.refunds[0]; req.Amount == nil || *req.Amount != 4000 {
		t.Fatalf("expected 4000 minor units, got %v", gateway.refunds[0].Amount)
	}
}

func TestRefundRejectsOrderWithoutCapturedPayment(t *testing.T) {
	repo := newMemOrderRepo()
	seedOrder(repo, "o1", domain.OrderPending, 100)
	orders := newTestOrderService(t, repo, nil)
	gateway := &stubRefundGateway{}
	svc := newTestRefundService(t, orders, gateway)

	_, err := svc.Refund(context.Background(), RefundOrderCommand{OrderID: "o1"})
	if !errors.Is(err, ErrRefundInvalidState) {
		t.Fatalf("expected ErrRefundInvalidState, got %v", err)
	}
	if len(gateway.lookups) != 0 || len(gateway.refunds) != 0 {
		t.Fatalf("expected provider to remain untouched")
	}
}

func TestRefundRejectsExcessAmount(t *testing.T) {
	repo := newMemOrderRepo()
	seedPaidOrder(repo, "o1", domain.OrderDelivered, 100, "pi_abc")
	orders := newTestOrderService(t, repo, nil)
	gateway := &stubRefundGateway{}
	svc := newTestRefundService(t, orders, gateway)

	_, err := svc.Refund(context.Background(), RefundOrderCommand{OrderID: "o1", Amount: 150})
	if !errors.Is(err, ErrRefundInvalidInput) {
		t.Fatalf("expected ErrRefundInvalidInput, got %v", err)
	}
	if len(gateway.refunds) != 0 {
		t.Fatalf("expected no provider refund")
	}
}

func TestRefundRequiresCapturedIntent(t *testing.T) {
	repo := newMemOrderRepo()
	seedPaidOrder(repo, "o1", domain.OrderDelivered, 100, "pi_abc")
	orders := newTestOrderService(t, repo, nil)
	gateway := &stubRefundGateway{details: payments.PaymentDetails{IntentID: "pi_abc", Captured: false}}
	svc := newTestRefundService(t, orders, gateway)

	_, err := svc.Refund(context.Background(), RefundOrderCommand{OrderID: "o1"})
	if !errors.Is(err, ErrRefundInvalidState) {
		t.Fatalf("expected ErrRefundInvalidState, got %v", err)
	}
	if len(gateway.refunds) != 0 {
		t.Fatalf("expected no provider refund for uncaptured intent")
	}
}

func TestRefundProviderFailureLeavesOrderUntouched(t *testing.T) {
	repo := newMemOrderRepo()
	seedPaidOrder(repo, "o1", domain.OrderDelivered, 100, "pi_abc")
	orders := newTestOrderService(t, repo, nil)
	gateway := &stubRefundGateway{
		details:   payments.PaymentDetails{IntentID: "pi_abc", Captured: true},
		refundErr: errors.New("psp down"),
	}
	svc := newTestRefundService(t, orders, gateway)

	_, err := svc.Refund(context.Background(), RefundOrderCommand{OrderID: "o1"})
	if !errors.Is(err, ErrRefundUnavailable) {
		t.Fatalf("expected ErrRefundUnavailable, got %v", err)
	}
	stored := repo.orders["o1"]
	if len(stored.Payments) != 1 {
		t.Fatalf("expected no attempt recorded, got %d", len(stored.Payments))
	}
	if stored.PaymentState != domain.PaymentPaid {
		t.Fatalf("expected payment state untouched, got %s", stored.PaymentState)
	}
}

func TestRefundUnknownOrder(t *testing.T) {
	repo := newMemOrderRepo()
	orders := newTestOrderService(t, repo, nil)
	svc := newTestRefundService(t, orders, &stubRefundGateway{})

	_, err := svc.Refund(context.Background(), RefundOrderCommand{OrderID: "missing"})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
