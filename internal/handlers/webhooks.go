package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/platform/httpx"
	"github.com/glowmane/api/internal/services"
)

const maxWebhookBodySize = 64 * 1024

// WebhookHandlers receives payment provider callbacks. Signatures are
// verified before any order state is touched.
type WebhookHandlers struct {
	orders         services.OrderService
	stripeSecret   string
	constructEvent func(payload []byte, header string, secret string) (stripe.Event, error)
}

// NewWebhookHandlers constructs webhook handlers verifying Stripe signatures
// with the provided endpoint secret.
func NewWebhookHandlers(orders services.OrderService, stripeWebhookSecret string) *WebhookHandlers {
	return &WebhookHandlers{
		orders:       orders,
		stripeSecret: strings.TrimSpace(stripeWebhookSecret),
		constructEvent: func(payload []byte, header string, secret string) (stripe.Event, error) {
			return webhook.ConstructEvent(payload, header, secret)
		},
	}
}

// Routes registers webhook endpoints under the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil || h.stripeSecret == "" {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook processing is unavailable", http.StatusServiceUnavailable))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
		return
	}
	if len(payload) > maxWebhookBodySize {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}

	event, err := h.constructEvent(payload, r.Header.Get("Stripe-Signature"), h.stripeSecret)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		err = h.handleCheckoutCompleted(r, event)
	case "checkout.session.expired", "payment_intent.payment_failed":
		err = h.handlePaymentFailed(r, event)
	default:
		// Unhandled event types are acknowledged so Stripe stops retrying.
	}
	if err != nil {
		writeStripeWebhookError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"received": "true"})
}

func (h *WebhookHandlers) handleCheckoutCompleted(r *http.Request, event stripe.Event) error {
	ctx := r.Context()

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return errors.New("malformed checkout.session payload")
	}

	orderID := strings.TrimSpace(session.Metadata["orderId"])
	if orderID == "" {
		return errors.New("checkout.session missing orderId metadata")
	}

	amount := float64(session.AmountTotal) / 100

	metadata := map[string]string{"eventId": event.ID}
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		metadata["paymentIntent"] = session.PaymentIntent.ID
	}

	// Recording the covering attempt confirms the order; a replayed event
	// appends another attempt but the payment dimension never regresses.
	_, err := h.orders.AddPayment(ctx, services.AddPaymentCommand{
		OrderID:       orderID,
		Method:        "card",
		TransactionID: session.ID,
		Amount:        amount,
		Status:        domain.PaymentAttemptCompleted,
		Actor:         "stripe-webhook",
		Metadata:      metadata,
	})
	return err
}

func (h *WebhookHandlers) handlePaymentFailed(r *http.Request, event stripe.Event) error {
	ctx := r.Context()

	var obj struct {
		ID          string            `json:"id"`
		Amount      int64             `json:"amount"`
		AmountTotal int64             `json:"amount_total"`
		Metadata    map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return errors.New("malformed event payload")
	}

	orderID := strings.TrimSpace(obj.Metadata["orderId"])
	if orderID == "" {
		// Sessions created outside checkout carry no order reference.
		return nil
	}

	amount := obj.Amount
	if amount == 0 {
		amount = obj.AmountTotal
	}

	_, err := h.orders.AddPayment(ctx, services.AddPaymentCommand{
		OrderID:       orderID,
		Method:        "card",
		TransactionID: obj.ID,
		Amount:        float64(amount) / 100,
		Status:        domain.PaymentAttemptFailed,
		Actor:         "stripe-webhook",
		Metadata: map[string]string{
			"eventId": event.ID,
		},
	})
	return err
}

func writeStripeWebhookError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		// Acknowledge events for unknown orders; retrying will not help.
		writeJSONResponse(w, http.StatusOK, map[string]string{"received": "true"})
	case errors.Is(err, services.ErrOrderInvalidInput), errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_event", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", err.Error(), http.StatusInternalServerError))
	}
}
