package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/platform/textutil"
	"github.com/glowmane/api/internal/repositories"
)

const (
	orderEventCreated         = "order.created"
	orderEventStatusChanged   = "order.status.changed"
	orderEventPaymentRecorded = "order.payment.recorded"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an illegal status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the backing store cannot serve the request.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

// orderNumberSource allocates immutable order numbers.
type orderNumberSource interface {
	NextOrderNumber(ctx context.Context) (string, error)
}

// OrderServiceDeps wires persistence, sequencing and eventing for orders.
type OrderServiceDeps struct {
	Repository  repositories.OrderRepository
	Numbers     orderNumberSource
	UnitOfWork  repositories.UnitOfWork
	Events      OrderEventPublisher
	Audit       AuditLogService
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type orderService struct {
	repo    repositories.OrderRepository
	numbers orderNumberSource
	uow     repositories.UnitOfWork
	events  OrderEventPublisher
	audit   AuditLogService
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)
	newID   func() string
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Repository == nil {
		return nil, errors.New("order service: repository is required")
	}
	if deps.Numbers == nil {
		return nil, errors.New("order service: number source is required")
	}

	uow := deps.UnitOfWork
	if uow == nil {
		uow = noopUnitOfWork{}
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &orderService{
		repo:    deps.Repository,
		numbers: deps.Numbers,
		uow:     uow,
		events:  deps.Events,
		audit:   deps.Audit,
		now:     func() time.Time { return now().UTC() },
		logger:  logger,
		newID:   idGen,
	}, nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

func (s *orderService) GetByNumber(ctx context.Context, orderNumber string) (Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	order, err := s.repo.FindByNumber(ctx, orderNumber)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.repo.List(ctx, repositories.OrderListFilter{
		CustomerID:    strings.TrimSpace(filter.CustomerID),
		PaymentStates: filter.PaymentStates,
		Fulfillments:  filter.Fulfillments,
		DateRange:     filter.DateRange,
		Pagination:    filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

// Create persists a fully repriced order. The order number and id are
// assigned here and never change afterwards.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if err := validateCreateOrder(cmd); err != nil {
		return Order{}, err
	}

	now := s.now()
	number, err := s.numbers.NextOrderNumber(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("%w: allocate order number: %s", ErrOrderUnavailable, err.Error())
	}

	order := Order{
		ID:               s.newID(),
		OrderNumber:      number,
		CustomerID:       strings.TrimSpace(cmd.CustomerID),
		Customer:         cmd.Customer,
		ShippingAddress:  cmd.ShippingAddress,
		Lines:            cloneOrderLines(cmd.Lines),
		Pricing:          cmd.Pricing,
		PaymentState:     domain.PaymentPending,
		FulfillmentState: domain.FulfillmentPending,
		PaymentMethod:    strings.TrimSpace(cmd.PaymentMethod),
		ShippingMethod:   cmd.ShippingMethod,
		Notes:            strings.TrimSpace(cmd.Notes),
		AuditLog: []OrderAuditEntry{{
			Action:     "order_created",
			Actor:      orderActor(cmd.CustomerID),
			OccurredAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		return s.repo.Insert(txCtx, order)
	})
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        orderEventCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Status:      order.Status(),
		OccurredAt:  now,
	})
	return order, nil
}

func (s *orderService) CanUpdateStatus(ctx context.Context, orderID string, target OrderStatus) (bool, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return false, err
	}
	return order.Status().CanTransitionTo(target), nil
}

// TransitionStatus applies one legal move of the transition table. On
// success it appends exactly one status-history entry and one audit entry
// carrying the same timestamp; on an illegal pair it fails without touching
// either log.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	cmd.OrderID = strings.TrimSpace(cmd.OrderID)
	actor := strings.TrimSpace(cmd.Actor)
	if cmd.OrderID == "" || cmd.TargetStatus == "" {
		return Order{}, fmt.Errorf("%w: order id and target status are required", ErrOrderInvalidInput)
	}
	if actor == "" {
		actor = "system"
	}

	order, err := s.Get(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	current := order.Status()
	if cmd.ExpectedStatus != "" && cmd.ExpectedStatus != current {
		return Order{}, fmt.Errorf("%w: expected status %s but found %s", ErrOrderConflict, cmd.ExpectedStatus, current)
	}

	if err := applyStatusTransition(&order, cmd.TargetStatus, actor, cmd.Reason, s.now()); err != nil {
		return Order{}, err
	}

	err = s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		return s.repo.Update(txCtx, order)
	})
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        orderEventStatusChanged,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Status:      order.Status(),
		OccurredAt:  order.UpdatedAt,
		Metadata:    map[string]string{"from": string(current), "to": string(cmd.TargetStatus)},
	})
	s.recordAudit(ctx, order, "order.status_changed", actor, map[string]AuditLogDiff{
		"status": {Before: string(current), After: string(cmd.TargetStatus)},
	})
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	return s.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      cmd.OrderID,
		TargetStatus: domain.OrderCancelled,
		Actor:        cmd.Actor,
		Reason:       cmd.Reason,
	})
}

// AddPayment appends a payment attempt and lets the payment dimension follow
// the recorded money facts. Covering the order total is the pending ->
// confirmed move of the transition table and records the same status-history
// and audit bookkeeping as an explicit transition; the state is never
// regressed by a later partial attempt.
func (s *orderService) AddPayment(ctx context.Context, cmd AddPaymentCommand) (Order, error) {
	cmd.OrderID = strings.TrimSpace(cmd.OrderID)
	if cmd.OrderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	// Failed attempts may come in without a usable amount; anything that can
	// count toward the total must be positive.
	if cmd.Amount < 0 || (cmd.Amount == 0 && cmd.Status != domain.PaymentAttemptFailed) {
		return Order{}, fmt.Errorf("%w: payment amount must be positive", ErrOrderInvalidInput)
	}
	switch cmd.Status {
	case domain.PaymentAttemptPending, domain.PaymentAttemptCompleted, domain.PaymentAttemptFailed, domain.PaymentAttemptRefunded:
	default:
		return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, cmd.Status)
	}

	order, err := s.Get(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	attempt := PaymentAttempt{
		ID:            s.newID(),
		Method:        strings.TrimSpace(cmd.Method),
		TransactionID: strings.TrimSpace(cmd.TransactionID),
		Amount:        cmd.Amount,
		Status:        cmd.Status,
		ProcessedAt:   now,
		Metadata:      textutil.NormalizeStringMap(cmd.Metadata),
	}
	order.Payments = append(order.Payments, attempt)

	previousState := order.PaymentState
	previousStatus := order.Status()
	actor := orderActor(cmd.Actor)
	switch cmd.Status {
	case domain.PaymentAttemptCompleted:
		if completedPaymentTotal(order.Payments) >= order.Pricing.Total {
			switch order.PaymentState {
			case domain.PaymentPending, domain.PaymentProcessing, domain.PaymentFailed:
				if previousStatus.CanTransitionTo(domain.OrderConfirmed) {
					_ = applyStatusTransition(&order, domain.OrderConfirmed, actor, "payment covered the order total", now)
				} else {
					order.PaymentState = domain.PaymentPaid
				}
			}
		}
	case domain.PaymentAttemptRefunded:
		switch {
		case refundedPaymentTotal(order.Payments) >= completedPaymentTotal(order.Payments) &&
			previousStatus.CanTransitionTo(domain.OrderRefunded):
			_ = applyStatusTransition(&order, domain.OrderRefunded, actor, "payment fully refunded", now)
		case order.PaymentState == domain.PaymentPaid:
			order.PaymentState = domain.PaymentPartiallyRefunded
		}
	}

	order.AuditLog = append(order.AuditLog, OrderAuditEntry{
		Action:     "payment_added",
		Actor:      actor,
		OccurredAt: now,
		Fields: []FieldChange{
			{Field: "payments", Before: len(order.Payments) - 1, After: len(order.Payments)},
			{Field: "paymentState", Before: string(previousState), After: string(order.PaymentState)},
		},
	})
	order.UpdatedAt = now

	err = s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		return s.repo.Update(txCtx, order)
	})
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        orderEventPaymentRecorded,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Status:      order.Status(),
		OccurredAt:  now,
		Metadata:    map[string]string{"attemptStatus": string(cmd.Status)},
	})
	if newStatus := order.Status(); newStatus != previousStatus {
		s.publishEvent(ctx, OrderEvent{
			Type:        orderEventStatusChanged,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
			Status:      newStatus,
			OccurredAt:  now,
			Metadata:    map[string]string{"from": string(previousStatus), "to": string(newStatus)},
		})
	}
	return order, nil
}

// AddTrackingEvent appends a carrier fact. External-system facts are recorded
// regardless of the order's current status.
func (s *orderService) AddTrackingEvent(ctx context.Context, cmd AddTrackingEventCommand) (Order, error) {
	cmd.OrderID = strings.TrimSpace(cmd.OrderID)
	if cmd.OrderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.Get(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	occurredAt := cmd.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	order.TrackingEvents = append(order.TrackingEvents, TrackingEvent{
		Carrier:     strings.TrimSpace(cmd.Carrier),
		Code:        strings.TrimSpace(cmd.Code),
		Status:      strings.TrimSpace(cmd.Status),
		Location:    strings.TrimSpace(cmd.Location),
		Description: strings.TrimSpace(cmd.Description),
		OccurredAt:  occurredAt.UTC(),
	})
	order.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, order); err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

// RecordNotification appends an outbound notification record, again without
// transition gating.
func (s *orderService) RecordNotification(ctx context.Context, cmd RecordNotificationCommand) (Order, error) {
	cmd.OrderID = strings.TrimSpace(cmd.OrderID)
	if cmd.OrderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Type) == "" {
		return Order{}, fmt.Errorf("%w: notification type is required", ErrOrderInvalidInput)
	}

	order, err := s.Get(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	status := strings.TrimSpace(cmd.Status)
	if status == "" {
		status = "sent"
	}
	now := s.now()
	order.Notifications = append(order.Notifications, NotificationRecord{
		Type:      strings.TrimSpace(cmd.Type),
		Channel:   strings.TrimSpace(cmd.Channel),
		Recipient: strings.TrimSpace(cmd.Recipient),
		Message:   cmd.Message,
		Status:    status,
		SentAt:    now,
	})
	order.UpdatedAt = now

	if err := s.repo.Update(ctx, order); err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

// applyStatusTransition validates the move against the table and mutates the
// order in memory: dimension effect, status history, embedded audit entry and
// the opportunistic side timestamps. The two log entries share one timestamp.
func applyStatusTransition(order *Order, target OrderStatus, actor string, reason string, now time.Time) error {
	current := order.Status()
	if !current.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, current, target)
	}

	domain.ApplyStatusEffect(order, target)
	order.StatusHistory = append(order.StatusHistory, StatusChange{
		From:      current,
		To:        target,
		Actor:     actor,
		Reason:    reason,
		ChangedAt: now,
	})
	order.AuditLog = append(order.AuditLog, OrderAuditEntry{
		Action:     "status_changed",
		Actor:      actor,
		OccurredAt: now,
		Fields: []FieldChange{
			{Field: "status", Before: string(current), After: string(target)},
		},
	})
	updateStatusTimestamps(order, target, now)
	order.UpdatedAt = now
	return nil
}

func updateStatusTimestamps(order *Order, target OrderStatus, now time.Time) {
	switch target {
	case domain.OrderConfirmed:
		if order.ConfirmedAt == nil {
			order.ConfirmedAt = &now
		}
	case domain.OrderShipped:
		if order.ShippedAt == nil {
			order.ShippedAt = &now
		}
	case domain.OrderDelivered:
		if order.DeliveredAt == nil {
			order.DeliveredAt = &now
		}
	case domain.OrderCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
	}
}

func completedPaymentTotal(payments []PaymentAttempt) float64 {
	var total float64
	for _, payment := range payments {
		if payment.Status == domain.PaymentAttemptCompleted {
			total += payment.Amount
		}
	}
	return total
}

func refundedPaymentTotal(payments []PaymentAttempt) float64 {
	var total float64
	for _, payment := range payments {
		if payment.Status == domain.PaymentAttemptRefunded {
			total += payment.Amount
		}
	}
	return total
}

func validateCreateOrder(cmd CreateOrderCommand) error {
	if strings.TrimSpace(cmd.Customer.Email) == "" {
		return fmt.Errorf("%w: customer email is required", ErrOrderInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrOrderInvalidInput)
	}
	for _, line := range cmd.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return fmt.Errorf("%w: line product id is required", ErrOrderInvalidInput)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: line quantity must be positive", ErrOrderInvalidInput)
		}
		if line.UnitPrice < 0 {
			return fmt.Errorf("%w: line unit price cannot be negative", ErrOrderInvalidInput)
		}
	}
	if cmd.Pricing.Total < 0 {
		return fmt.Errorf("%w: order total cannot be negative", ErrOrderInvalidInput)
	}
	return nil
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order_event_publish_failed", map[string]any{
			"type":    event.Type,
			"orderId": event.OrderID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) recordAudit(ctx context.Context, order Order, action string, actor string, diff map[string]AuditLogDiff) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      actor,
		ActorType:  "staff",
		Action:     action,
		TargetRef:  "orders/" + order.ID,
		OccurredAt: s.now(),
		Diff:       diff,
	})
}

func (s *orderService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrOrderNotFound, repoErr.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrOrderConflict, repoErr.Error())
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrOrderUnavailable, repoErr.Error())
		}
	}
	return fmt.Errorf("%w: %s", ErrOrderUnavailable, err.Error())
}

func orderActor(actor string) string {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return "system"
	}
	return actor
}

func cloneOrderLines(lines []OrderLine) []OrderLine {
	if len(lines) == 0 {
		return nil
	}
	out := make([]OrderLine, len(lines))
	copy(out, lines)
	return out
}

// noopUnitOfWork runs the function directly when no transactional boundary is
// configured.
type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
