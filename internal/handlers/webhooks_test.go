package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stripe/stripe-go/v78"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/services"
)

type stubOrderService struct {
	addPayment  func(ctx context.Context, cmd services.AddPaymentCommand) (services.Order, error)
	transition  func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error)
	get         func(ctx context.Context, orderID string) (services.Order, error)
	getByNumber func(ctx context.Context, orderNumber string) (services.Order, error)
	list        func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
}

func (s *stubOrderService) Get(ctx context.Context, orderID string) (services.Order, error) {
	return s.get(ctx, orderID)
}

func (s *stubOrderService) GetByNumber(ctx context.Context, orderNumber string) (services.Order, error) {
	return s.getByNumber(ctx, orderNumber)
}

func (s *stubOrderService) List(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	return s.list(ctx, filter)
}

func (s *stubOrderService) Create(context.Context, services.CreateOrderCommand) (services.Order, error) {
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) CanUpdateStatus(context.Context, string, services.OrderStatus) (bool, error) {
	return false, errors.New("not implemented")
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	return s.transition(ctx, cmd)
}

func (s *stubOrderService) Cancel(context.Context, services.CancelOrderCommand) (services.Order, error) {
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) AddPayment(ctx context.Context, cmd services.AddPaymentCommand) (services.Order, error) {
	return s.addPayment(ctx, cmd)
}

func (s *stubOrderService) AddTrackingEvent(context.Context, services.AddTrackingEventCommand) (services.Order, error) {
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) RecordNotification(context.Context, services.RecordNotificationCommand) (services.Order, error) {
	return services.Order{}, errors.New("not implemented")
}

var _ services.OrderService = (*stubOrderService)(nil)

func stripeEvent(t *testing.T, eventType string, object map[string]any) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("failed to marshal event object: %v", err)
	}
	return stripe.Event{
		ID:   "evt_1",
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func newWebhookHandlersForTest(orders services.OrderService, event stripe.Event, signatureErr error) *WebhookHandlers {
	h := NewWebhookHandlers(orders, "whsec_test")
	h.constructEvent = func([]byte, string, string) (stripe.Event, error) {
		if signatureErr != nil {
			return stripe.Event{}, signatureErr
		}
		return event, nil
	}
	return h
}

func postWebhook(h *WebhookHandlers) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	rr := httptest.NewRecorder()
	h.handleStripe(rr, req)
	return rr
}

func TestStripeWebhookCheckoutCompletedRecordsCoveringPayment(t *testing.T) {
	var payment services.AddPaymentCommand
	orders := &stubOrderService{
		addPayment: func(_ context.Context, cmd services.AddPaymentCommand) (services.Order, error) {
			payment = cmd
			// The order service confirms the order itself once the
			// attempt covers the total.
			return services.Order{
				ID:               cmd.OrderID,
				PaymentState:     domain.PaymentPaid,
				FulfillmentState: domain.FulfillmentPending,
			}, nil
		},
		transition: func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error) {
			t.Fatal("webhook must not issue a transition on its own")
			return services.Order{}, nil
		},
	}

	event := stripeEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_123",
		"amount_total":   6525,
		"payment_intent": "pi_9",
		"metadata":       map[string]string{"orderId": "ord-1"},
	})
	rr := postWebhook(newWebhookHandlersForTest(orders, event, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if payment.OrderID != "ord-1" || payment.Status != domain.PaymentAttemptCompleted {
		t.Fatalf("unexpected payment command %+v", payment)
	}
	if payment.Amount != 65.25 {
		t.Fatalf("expected amount 65.25, got %v", payment.Amount)
	}
	if payment.TransactionID != "cs_123" {
		t.Fatalf("expected transaction cs_123, got %s", payment.TransactionID)
	}
	if payment.Metadata["paymentIntent"] != "pi_9" {
		t.Fatalf("expected payment intent recorded, got %+v", payment.Metadata)
	}
}

func TestStripeWebhookReplayOnlyAppendsAttempt(t *testing.T) {
	attempts := 0
	orders := &stubOrderService{
		addPayment: func(_ context.Context, cmd services.AddPaymentCommand) (services.Order, error) {
			attempts++
			// Already confirmed by the first delivery; the payment
			// dimension never regresses.
			return services.Order{
				ID:               cmd.OrderID,
				PaymentState:     domain.PaymentPaid,
				FulfillmentState: domain.FulfillmentPending,
			}, nil
		},
		transition: func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error) {
			t.Fatal("replayed event must not trigger a transition")
			return services.Order{}, nil
		},
	}

	event := stripeEvent(t, "checkout.session.completed", map[string]any{
		"id":           "cs_123",
		"amount_total": 6525,
		"metadata":     map[string]string{"orderId": "ord-1"},
	})
	h := newWebhookHandlersForTest(orders, event, nil)
	for i := 0; i < 2; i++ {
		if rr := postWebhook(h); rr.Code != http.StatusOK {
			t.Fatalf("expected 200 on delivery %d, got %d", i+1, rr.Code)
		}
	}
	if attempts != 2 {
		t.Fatalf("expected both deliveries recorded as attempts, got %d", attempts)
	}
}

func TestStripeWebhookPaymentFailedRecordsAttempt(t *testing.T) {
	var payment services.AddPaymentCommand
	orders := &stubOrderService{
		addPayment: func(_ context.Context, cmd services.AddPaymentCommand) (services.Order, error) {
			payment = cmd
			return services.Order{ID: cmd.OrderID}, nil
		},
	}

	event := stripeEvent(t, "payment_intent.payment_failed", map[string]any{
		"id":       "pi_9",
		"amount":   6525,
		"metadata": map[string]string{"orderId": "ord-1"},
	})
	rr := postWebhook(newWebhookHandlersForTest(orders, event, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if payment.Status != domain.PaymentAttemptFailed {
		t.Fatalf("expected failed attempt, got %+v", payment)
	}
	if payment.Amount != 65.25 {
		t.Fatalf("expected amount 65.25, got %v", payment.Amount)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	orders := &stubOrderService{}
	rr := postWebhook(newWebhookHandlersForTest(orders, stripe.Event{}, errors.New("bad signature")))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid signature, got %d", rr.Code)
	}
}

func TestStripeWebhookAcknowledgesUnknownOrder(t *testing.T) {
	orders := &stubOrderService{
		addPayment: func(context.Context, services.AddPaymentCommand) (services.Order, error) {
			return services.Order{}, fmt.Errorf("%w: no such order", services.ErrOrderNotFound)
		},
	}

	event := stripeEvent(t, "checkout.session.completed", map[string]any{
		"id":           "cs_123",
		"amount_total": 100,
		"metadata":     map[string]string{"orderId": "ord-missing"},
	})
	rr := postWebhook(newWebhookHandlersForTest(orders, event, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown order, got %d", rr.Code)
	}
}

func TestStripeWebhookIgnoresUnhandledEvents(t *testing.T) {
	orders := &stubOrderService{}
	event := stripeEvent(t, "customer.created", map[string]any{"id": "cus_1"})
	rr := postWebhook(newWebhookHandlersForTest(orders, event, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for unhandled event type, got %d", rr.Code)
	}
}

func TestStripeWebhookUnavailableWithoutSecret(t *testing.T) {
	h := NewWebhookHandlers(&stubOrderService{}, "")
	rr := postWebhook(h)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without webhook secret, got %d", rr.Code)
	}
}
