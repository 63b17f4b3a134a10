package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/repositories"
)

type memOrderRepo struct {
	orders map[string]domain.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]domain.Order)}
}

func (r *memOrderRepo) Insert(_ context.Context, order domain.Order) error {
	if _, ok := r.orders[order.ID]; ok {
		return fakeRepoError{msg: "order exists", conflict: true}
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepo) Update(_ context.Context, order domain.Order) error {
	if _, ok := r.orders[order.ID]; !ok {
		return fakeRepoError{msg: "order not found", notFound: true}
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, fakeRepoError{msg: "order not found", notFound: true}
	}
	return order, nil
}

func (r *memOrderRepo) FindByNumber(_ context.Context, orderNumber string) (domain.Order, error) {
	for _, order := range r.orders {
		if order.OrderNumber == orderNumber {
			return order, nil
		}
	}
	return domain.Order{}, fakeRepoError{msg: "order not found", notFound: true}
}

func (r *memOrderRepo) List(_ context.Context, _ repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	page := domain.CursorPage[domain.Order]{}
	for _, order := range r.orders {
		page.Items = append(page.Items, order)
	}
	return page, nil
}

type stubNumbers struct {
	next int
}

func (s *stubNumbers) NextOrderNumber(context.Context) (string, error) {
	s.next++
	return fmt.Sprintf("GLW-2026-%06d", s.next), nil
}

type capturingPublisher struct {
	events []OrderEvent
}

func (p *capturingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.events = append(p.events, event)
	return nil
}

func newTestOrderService(t *testing.T, repo *memOrderRepo, events OrderEventPublisher) OrderService {
	t.Helper()
	counter := 0
	svc, err := NewOrderService(OrderServiceDeps{
		Repository: repo,
		Numbers:    &stubNumbers{},
		Events:     events,
		Clock:      func() time.Time { return time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC) },
		IDGenerator: func() string {
			counter++
			return fmt.Sprintf("ord-%d", counter)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error building order service: %v", err)
	}
	return svc
}

// dimsFor returns stored dimensions whose projection equals the wanted status.
func dimsFor(status domain.OrderStatus) (domain.PaymentState, domain.FulfillmentState) {
	switch status {
	case domain.OrderPending:
		return domain.PaymentPending, domain.FulfillmentPending
	case domain.OrderConfirmed:
		return domain.PaymentPaid, domain.FulfillmentPending
	case domain.OrderProcessing:
		return domain.PaymentPaid, domain.FulfillmentPreparing
	case domain.OrderShipped:
		return domain.PaymentPaid, domain.FulfillmentShipped
	case domain.OrderDelivered:
		return domain.PaymentPaid, domain.FulfillmentDelivered
	case domain.OrderCancelled:
		return domain.PaymentPending, domain.FulfillmentCancelled
	case domain.OrderReturned:
		return domain.PaymentPaid, domain.FulfillmentReturned
	case domain.OrderRefunded:
		return domain.PaymentRefunded, domain.FulfillmentDelivered
	}
	return domain.PaymentPending, domain.FulfillmentPending
}

func seedOrder(repo *memOrderRepo, id string, status domain.OrderStatus, total float64) domain.Order {
	payment, fulfillment := dimsFor(status)
	order := domain.Order{
		ID:               id,
		OrderNumber:      "GLW-2026-000001",
		CustomerID:       "cust1",
		Customer:         domain.CustomerInfo{Name: "Ana", Email: "ana@example.com"},
		Lines:            []domain.OrderLine{{ProductID: "serum", Quantity: 1, UnitPrice: total, TotalPrice: total}},
		Pricing:          domain.OrderPricing{Subtotal: total, Total: total, Currency: "EUR"},
		PaymentState:     payment,
		FulfillmentState: fulfillment,
		CreatedAt:        time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:        time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	repo.orders[id] = order
	return order
}

func TestTransitionTable(t *testing.T) {
	all := []domain.OrderStatus{
		domain.OrderPending, domain.OrderConfirmed, domain.OrderProcessing,
		domain.OrderShipped, domain.OrderDelivered, domain.OrderCancelled,
		domain.OrderReturned, domain.OrderRefunded,
	}
	legal := map[domain.OrderStatus][]domain.OrderStatus{
		domain.OrderPending:    {domain.OrderConfirmed, domain.OrderCancelled},
		domain.OrderConfirmed:  {domain.OrderProcessing, domain.OrderCancelled},
		domain.OrderProcessing: {domain.OrderShipped, domain.OrderCancelled},
		domain.OrderShipped:    {domain.OrderDelivered, domain.OrderReturned},
		domain.OrderDelivered:  {domain.OrderReturned, domain.OrderRefunded},
		domain.OrderCancelled:  {},
		domain.OrderReturned:   {domain.OrderRefunded},
		domain.OrderRefunded:   {},
	}

	for _, from := range all {
		for _, to := range all {
			allowed := false
			for _, target := range legal[from] {
				if target == to {
					allowed = true
					break
				}
			}

			repo := newMemOrderRepo()
			svc := newTestOrderService(t, repo, nil)
			seedOrder(repo, "o1", from, 50)

			order, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
				OrderID:      "o1",
				TargetStatus: to,
				Actor:        "ops",
			})

			if allowed {
				if err != nil {
					t.Fatalf("%s -> %s: expected success, got %v", from, to, err)
				}
				if order.Status() != to {
					t.Fatalf("%s -> %s: expected projected status %s, got %s", from, to, to, order.Status())
				}
				continue
			}

			if !errors.Is(err, ErrOrderInvalidState) {
				t.Fatalf("%s -> %s: expected invalid state error, got %v", from, to, err)
			}
			stored := repo.orders["o1"]
			if len(stored.StatusHistory) != 0 || stored.Status() != from {
				t.Fatalf("%s -> %s: rejected transition must not mutate the order", from, to)
			}
		}
	}
}

func TestTransitionErrorNamesBothStatuses(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil)
	seedOrder(repo, "o1", domain.OrderPending, 50)

	_, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "o1",
		TargetStatus: domain.OrderShipped,
	})
	if err == nil {
		t.Fatalf("expected error for pending -> shipped")
	}
	if !strings.Contains(err.Error(), "pending") || !strings.Contains(err.Error(), "shipped") {
		t.Fatalf("expected error to name both statuses, got %q", err.Error())
	}
}

func TestTransitionAppendsMatchingHistoryAndAudit(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil)
	seedOrder(repo, "o1", domain.OrderPending, 50)

	order, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "o1",
		TargetStatus: domain.OrderConfirmed,
		Actor:        "ops",
		Reason:       "payment verified",
	})
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	if len(order.StatusHistory) != 1 {
		t.Fatalf("expected exactly one status history entry, got %d", len(order.StatusHistory))
	}
	if len(order.AuditLog) != 1 {
		t.Fatalf("expected exactly one audit entry, got %d", len(order.AuditLog))
	}

	change := order.StatusHistory[0]
	audit := order.AuditLog[0]
	if change.From != domain.OrderPending || change.To != domain.OrderConfirmed {
		t.Fatalf("unexpected status change %+v", change)
	}
	if change.Actor != "ops" || change.Reason != "payment verified" {
		t.Fatalf("unexpected actor/reason %+v", change)
	}
	if !change.ChangedAt.Equal(audit.OccurredAt) {
		t.Fatalf("history and audit timestamps differ: %v vs %v", change.ChangedAt, audit.OccurredAt)
	}
}

func TestTransitionSetsOpportunisticTimestamps(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil)
	seedOrder(repo, "o1", domain.OrderPending, 50)
	ctx := context.Background()

	order, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{OrderID: "o1", TargetStatus: domain.OrderConfirmed})
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if order.ConfirmedAt == nil {
		t.Fatalf("expected confirmedAt set")
	}
	firstConfirmedAt := *order.ConfirmedAt

	for _, target := range []domain.OrderStatus{domain.OrderProcessing, domain.OrderShipped, domain.OrderDelivered} {
		order, err = svc.TransitionStatus(ctx, OrderStatusTransitionCommand{OrderID: "o1", TargetStatus: target})
		if err != nil {
			t.Fatalf("transition to %s failed: %v", target, err)
		}
	}

	if order.ShippedAt == nil || order.DeliveredAt == nil {
		t.Fatalf("expected shippedAt and deliveredAt set")
	}
	if order.CancelledAt != nil {
		t.Fatalf("expected cancelledAt unset, got %v", order.CancelledAt)
	}
	if !order.ConfirmedAt.Equal(firstConfirmedAt) {
		t.Fatalf("confirmedAt must not be overwritten")
	}
}

func TestConfirmedOrderRejectsShipDirectly(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil)
	seedOrder(repo, "o1", domain.OrderPending, 50)
	ctx := context.Background()

	if _, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{OrderID: "o1", TargetStatus: domain.OrderConfirmed}); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	_, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{OrderID: "o1", TargetStatus: domain.OrderShipped})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state error, got %v", err)
	}

	stored := repo.orders["o1"]
	if stored.Status() != domain.OrderConfirmed {
		t.Fatalf("expected order to remain confirmed, got %s", stored.Status())
	}
	if len(stored.StatusHistory) != 1 {
		t.Fatalf("expected history unchanged after rejected move, got %d entries", len(stored.StatusHistory))
	}
}

func TestTransitionExpectedStatusMismatch(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil)
	seedOrder(repo, "o1", domain.OrderConfirmed, 50)

	_, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:        "o1",
		TargetStatus:   domain.OrderProcessing,
		ExpectedStatus: domain.OrderPending,
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestAddPaymentPromotesOnceCovered(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil)
	seedOrder(repo, "o1", domain.OrderPending, 100)
	ctx := context.Background()

	order, err := svc.AddPayment(ctx, AddPaymentCommand{
		OrderID: "o1", Method: "card", Amount: 40, Status: domain.PaymentAttemptCompleted,
	})
	if err != nil {
		t.Fatalf("first payment failed: %v", err)
	}
	if order.PaymentState != domain.PaymentPending {
		t.Fatalf("expected payment state pending after partial payment, got %s", order.PaymentState)
	}

	order, err = svc.AddPayment(ctx, AddPaymentCommand{
		OrderID: "o1", Method: "card", Amount: 60, Status: domain.PaymentAttemptCompleted,
	})
	if err != nil {
		t.Fatalf("second payment failed: %v", err)
	}
	if order.PaymentState != domain.PaymentPaid {
		t.Fatalf("expected payment state paid once covered, got %s", order.PaymentState)
	}
	if len(order.Payments) != 2 {
		t.Fatalf("expected two payment attempts, got %d", len(order.Payments))
	}
}

func TestAddPaymentPromotionRecordsStatusChange(t *testing.T) {
	repo := newMemOrderRepo()
	publisher := &capturingPublisher{}
	svc := newTestOrderService(t, repo, publisher)
	seedOrder(repo, "o1", domain.OrderPending, 100)

	order, err := svc.AddPayment(context.Background(), AddPaymentCommand{
		OrderID: "o1", Method: "card", Amount: 100, Status: domain.PaymentAttemptCompleted, Actor: "stripe-webhook",
	})
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	if order.Status() != domain.OrderConfirmed {
		t.Fatalf("expected confirmed order, got %s", order.Status())
	}
	if len(order.StatusHistory) != 1 {
		t.Fatalf("expected one status history entry, got %d", len(order.StatusHistory))
	}
	change := order.StatusHistory[0]
	if change.From != domain.OrderPending || change.To != domain.OrderConfirmed {
		t.Fatalf("expected pending->confirmed entry, got %+v", change)
	}
	if change.Actor != "stripe-webhook" {
		t.Fatalf("expected actor carried into history, got %q", change.Actor)
	}
	if order.ConfirmedAt == nil || !order.ConfirmedAt.Equal(change.ChangedAt) {
		t.Fatalf("expected ConfirmedAt matching the history timestamp, got %v", order.ConfirmedAt)
	}
	if len(publisher.events) != 2 || publisher.events[0].Type != "order.payment.recorded" || publisher.events[1].Type != "order.status.changed" {
		t.Fatalf("expected payment and status events, got %+v", publisher.events)
	}
}

func TestAddPaymentPartialLeavesHistoryUntouched(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil)
	seedOrder(repo, "o1", domain.OrderPending, 100)

	order, err := svc.AddPayment(context.Background(), AddPaymentCommand{
		OrderID: "o1", Method: "card", Amount: 40, Status: domain.PaymentAttemptCompleted,
	})
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	if len(order.StatusHistory) != 0 {
		t.Fatalf("expected no status history for partial payment, got %+v", order.StatusHistory)
	}
	if order.ConfirmedAt != nil {
		t.Fatalf("expected ConfirmedAt unset, got %v", order.ConfirmedAt)
	}
}

func TestAddPaymentRefundedAttemptMovesStateBack(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil)
	seedOrder(repo, "o1", domain.OrderDelivered, 100)
	ctx := context.Background()

	if _, err := svc.AddPayment(ctx, AddPaymentCommand{
		OrderID: "o1", Method: "card", Amount: 100, Status: domain.PaymentAttemptCompleted,
	}); err != nil {
		t.Fatalf("payment failed: %v", err)
	}

	order, err := svc.AddPayment(ctx, AddPaymentCommand{
		OrderID: "o1", Method: "card", Amount: 30, Status: domain.PaymentAttemptRefunded, Actor: "admin:eva",
	})
	if err != nil {
		t.Fatalf("partial refund attempt failed: %v", err)
	}
	if order.PaymentState != domain.PaymentPartiallyRefunded {
		t.Fatalf("expected partially refunded, got %s", order.PaymentState)
	}
	if order.Status() != domain.OrderDelivered {
		t.Fatalf("expected status to stay delivered, got %s", order.Status())
	}

	order, err = svc.AddPayment(ctx, AddPaymentCommand{
		OrderID: "o1", Method: "card", Amount: 70, Status: domain.PaymentAttemptRefunded, Actor: "admin:eva",
	})
	if err != nil {
		t.Fatalf("final refund attempt failed: %v", err)
	}
	if order.Status() != domain.OrderRefunded {
		t.Fatalf("expected refunded once fully returned, got %s", order.Status())
	}
	last := order.StatusHistory[len(order.StatusHistory)-1]
	if last.From != domain.OrderDelivered || last.To != domain.OrderRefunded {
		t.Fatalf("expected delivered->refunded entry, got %+v", last)
	}
}

func TestAddPaymentFailedAttemptDoesNotPromote(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil)
	seedOrder(repo, "o1", domain.OrderPending, 100)

	order, err := svc.AddPayment(context.Background(), AddPaymentCommand{
		OrderID: "o1", Method: "card", Amount: 100, Status: domain.PaymentAttemptFailed,
	})
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	if order.PaymentState != domain.PaymentPending {
		t.Fatalf("expected payment state pending, got %s", order.PaymentState)
	}
}

func TestAddPaymentNeverRegressesState(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil)
	order := seedOrder(repo, "o1", domain.OrderRefunded, 100)
	if order.PaymentState != domain.PaymentRefunded {
		t.Fatalf("fixture expected refunded, got %s", order.PaymentState)
	}

	updated, err := svc.AddPayment(context.Background(), AddPaymentCommand{
		OrderID: "o1", Method: "card", Amount: 100, Status: domain.PaymentAttemptCompleted,
	})
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	if updated.PaymentState != domain.PaymentRefunded {
		t.Fatalf("expected refunded state preserved, got %s", updated.PaymentState)
	}
}

func TestAddPaymentValidatesInput(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil)
	seedOrder(repo, "o1", domain.OrderPending, 100)
	ctx := context.Background()

	if _, err := svc.AddPayment(ctx, AddPaymentCommand{OrderID: "o1", Amount: 0, Status: domain.PaymentAttemptCompleted}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for zero amount, got %v", err)
	}
	if _, err := svc.AddPayment(ctx, AddPaymentCommand{OrderID: "o1", Amount: 10, Status: "unknown"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
	if _, err := svc.AddPayment(ctx, AddPaymentCommand{OrderID: "o1", Amount: 0, Status: domain.PaymentAttemptFailed}); err != nil {
		t.Fatalf("failed attempts may carry a zero amount, got %v", err)
	}
}

func TestCreateAssignsNumberAndAudit(t *testing.T) {
	repo := newMemOrderRepo()
	publisher := &capturingPublisher{}
	svc := newTestOrderService(t, repo, publisher)

	order, err := svc.Create(context.Background(), CreateOrderCommand{
		CustomerID: "cust1",
		Customer:   domain.CustomerInfo{Name: "Ana", Email: "ana@example.com"},
		Lines: []domain.OrderLine{
			{ProductID: "serum", Quantity: 1, UnitPrice: 25, TotalPrice: 25},
		},
		Pricing:        domain.OrderPricing{Subtotal: 25, Total: 25, Currency: "EUR"},
		ShippingMethod: domain.ShippingStandard,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if order.OrderNumber == "" || order.ID == "" {
		t.Fatalf("expected id and number assigned, got %q/%q", order.ID, order.OrderNumber)
	}
	if order.Status() != domain.OrderPending {
		t.Fatalf("expected new order pending, got %s", order.Status())
	}
	if len(order.AuditLog) != 1 || order.AuditLog[0].Action != "order_created" {
		t.Fatalf("expected single order_created audit entry, got %+v", order.AuditLog)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != "order.created" {
		t.Fatalf("expected order.created event, got %+v", publisher.events)
	}
}

func TestCreateRejectsEmptyLines(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil)

	_, err := svc.Create(context.Background(), CreateOrderCommand{
		Customer: domain.CustomerInfo{Email: "ana@example.com"},
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestTrackingAndNotificationsAppendRegardlessOfStatus(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil)
	seedOrder(repo, "o1", domain.OrderCancelled, 50)
	ctx := context.Background()

	order, err := svc.AddTrackingEvent(ctx, AddTrackingEventCommand{
		OrderID: "o1", Carrier: "dpd", Code: "123", Status: "info_received",
	})
	if err != nil {
		t.Fatalf("tracking append failed: %v", err)
	}
	if len(order.TrackingEvents) != 1 {
		t.Fatalf("expected one tracking event, got %d", len(order.TrackingEvents))
	}

	order, err = svc.RecordNotification(ctx, RecordNotificationCommand{
		OrderID: "o1", Type: "order_cancelled", Channel: "email", Recipient: "ana@example.com",
	})
	if err != nil {
		t.Fatalf("notification append failed: %v", err)
	}
	if len(order.Notifications) != 1 {
		t.Fatalf("expected one notification, got %d", len(order.Notifications))
	}
	if order.Notifications[0].Status != "sent" {
		t.Fatalf("expected default status sent, got %s", order.Notifications[0].Status)
	}
}

func TestGetByNumber(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil)
	seedOrder(repo, "o1", domain.OrderPending, 50)

	order, err := svc.GetByNumber(context.Background(), "GLW-2026-000001")
	if err != nil {
		t.Fatalf("get by number failed: %v", err)
	}
	if order.ID != "o1" {
		t.Fatalf("expected order o1, got %s", order.ID)
	}

	if _, err := svc.GetByNumber(context.Background(), "GLW-0000"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCancelRoutesThroughTransitionTable(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil)
	seedOrder(repo, "o1", domain.OrderProcessing, 50)

	order, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "o1", Actor: "ops", Reason: "customer request"})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if order.Status() != domain.OrderCancelled {
		t.Fatalf("expected cancelled, got %s", order.Status())
	}
	if order.CancelledAt == nil {
		t.Fatalf("expected cancelledAt set")
	}

	if _, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "o1"}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected cancelled to be terminal, got %v", err)
	}
}
