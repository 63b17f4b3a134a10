package firestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/glowmane/api/internal/domain"
	pfirestore "github.com/glowmane/api/internal/platform/firestore"
	"github.com/glowmane/api/internal/repositories"
)

const (
	orderCollection      = "orders"
	defaultOrderPageSize = 50
)

// OrderRepository persists order documents within Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the order document. An existing ID is a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the stored document with the given order state.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	if _, err := r.base.Set(ctx, orderID, encodeOrder(order)); err != nil {
		return err
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return domain.Order{}, errors.New("order repository: order number is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", number).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NotFoundError("orders.find_by_number", fmt.Errorf("order %s not found", number))
	}
	return decodeOrder(docs[0].ID, docs[0].Data), nil
}

// List returns orders newest first, filtered and cursor paginated.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	query := client.Collection(orderCollection).Query
	if customerID := strings.TrimSpace(filter.CustomerID); customerID != "" {
		query = query.Where("customerId", "==", customerID)
	}
	if len(filter.PaymentStates) > 0 {
		query = query.Where("paymentState", "in", stateStrings(filter.PaymentStates))
	}
	if len(filter.Fulfillments) > 0 {
		query = query.Where("fulfillmentState", "in", fulfillmentStrings(filter.Fulfillments))
	}
	if !filter.DateRange.From.IsZero() {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if !filter.DateRange.To.IsZero() {
		query = query.Where("createdAt", "<", filter.DateRange.To.UTC())
	}

	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)

	limit := filter.Pagination.PageSize
	if limit <= 0 {
		limit = defaultOrderPageSize
	}
	fetchLimit := limit + 1
	query = query.Limit(fetchLimit)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursorTime, cursorID, err := decodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("orders.list: invalid page token: %w", err)
		}
		query = query.StartAfter(cursorTime, cursorID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	type orderRow struct {
		order     domain.Order
		docID     string
		createdAt time.Time
	}

	var rows []orderRow
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("orders.list: decode %s: %w", snap.Ref.ID, err)
		}
		rows = append(rows, orderRow{
			order:     decodeOrder(snap.Ref.ID, doc),
			docID:     snap.Ref.ID,
			createdAt: doc.CreatedAt,
		})
	}

	nextToken := ""
	if len(rows) == fetchLimit {
		last := rows[len(rows)-1]
		nextToken = encodeTimeCursor(last.createdAt, last.docID)
		rows = rows[:len(rows)-1]
	}

	items := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.order)
	}
	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func stateStrings(states []domain.PaymentState) []string {
	out := make([]string, 0, len(states))
	for _, state := range states {
		out = append(out, string(state))
	}
	return out
}

func fulfillmentStrings(states []domain.FulfillmentState) []string {
	out := make([]string, 0, len(states))
	for _, state := range states {
		out = append(out, string(state))
	}
	return out
}

type timeCursor struct {
	At time.Time `json:"at"`
	ID string    `json:"id"`
}

func encodeTimeCursor(at time.Time, id string) string {
	data, err := json.Marshal(timeCursor{At: at.UTC(), ID: id})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeTimeCursor(token string) (time.Time, string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	var cursor timeCursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return time.Time{}, "", err
	}
	return cursor.At, cursor.ID, nil
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Customer: orderCustomerDocument{
			Name:  order.Customer.Name,
			Email: order.Customer.Email,
			Phone: order.Customer.Phone,
		},
		ShippingAddress:  encodeOrderAddress(order.ShippingAddress),
		Lines:            encodeOrderLines(order.Lines),
		Pricing:          encodeOrderPricing(order.Pricing),
		PaymentState:     string(order.PaymentState),
		FulfillmentState: string(order.FulfillmentState),
		PaymentMethod:    order.PaymentMethod,
		ShippingMethod:   string(order.ShippingMethod),
		Payments:         encodePayments(order.Payments),
		StatusHistory:    encodeStatusHistory(order.StatusHistory),
		AuditLog:         encodeOrderAudit(order.AuditLog),
		TrackingEvents:   encodeTrackingEvents(order.TrackingEvents),
		Notifications:    encodeNotifications(order.Notifications),
		Notes:            order.Notes,
		ConfirmedAt:      order.ConfirmedAt,
		ShippedAt:        order.ShippedAt,
		DeliveredAt:      order.DeliveredAt,
		CancelledAt:      order.CancelledAt,
		CreatedAt:        order.CreatedAt.UTC(),
		UpdatedAt:        order.UpdatedAt.UTC(),
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	return domain.Order{
		ID:          id,
		OrderNumber: doc.OrderNumber,
		CustomerID:  doc.CustomerID,
		Customer: domain.CustomerInfo{
			Name:  doc.Customer.Name,
			Email: doc.Customer.Email,
			Phone: doc.Customer.Phone,
		},
		ShippingAddress:  decodeOrderAddress(doc.ShippingAddress),
		Lines:            decodeOrderLines(doc.Lines),
		Pricing:          decodeOrderPricing(doc.Pricing),
		PaymentState:     domain.PaymentState(doc.PaymentState),
		FulfillmentState: domain.FulfillmentState(doc.FulfillmentState),
		PaymentMethod:    doc.PaymentMethod,
		ShippingMethod:   domain.ShippingMethod(doc.ShippingMethod),
		Payments:         decodePayments(doc.Payments),
		StatusHistory:    decodeStatusHistory(doc.StatusHistory),
		AuditLog:         decodeOrderAudit(doc.AuditLog),
		TrackingEvents:   decodeTrackingEvents(doc.TrackingEvents),
		Notifications:    decodeNotifications(doc.Notifications),
		Notes:            doc.Notes,
		ConfirmedAt:      doc.ConfirmedAt,
		ShippedAt:        doc.ShippedAt,
		DeliveredAt:      doc.DeliveredAt,
		CancelledAt:      doc.CancelledAt,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}

func encodeOrderAddress(addr domain.Address) orderAddressDocument {
	return orderAddressDocument{
		ID:         addr.ID,
		Label:      addr.Label,
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		Region:     addr.Region,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

func decodeOrderAddress(doc orderAddressDocument) domain.Address {
	return domain.Address{
		ID:         doc.ID,
		Label:      doc.Label,
		Recipient:  doc.Recipient,
		Line1:      doc.Line1,
		Line2:      doc.Line2,
		City:       doc.City,
		Region:     doc.Region,
		PostalCode: doc.PostalCode,
		Country:    doc.Country,
		Phone:      doc.Phone,
	}
}

func encodeOrderLines(lines []domain.OrderLine) []orderLineDocument {
	out := make([]orderLineDocument, 0, len(lines))
	for _, line := range lines {
		out = append(out, orderLineDocument{
			ProductID:  line.ProductID,
			VariantID:  line.VariantID,
			Name:       line.Name,
			SKU:        line.SKU,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			TotalPrice: line.TotalPrice,
		})
	}
	return out
}

func decodeOrderLines(docs []orderLineDocument) []domain.OrderLine {
	out := make([]domain.OrderLine, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.OrderLine{
			ProductID:  doc.ProductID,
			VariantID:  doc.VariantID,
			Name:       doc.Name,
			SKU:        doc.SKU,
			Quantity:   doc.Quantity,
			UnitPrice:  doc.UnitPrice,
			TotalPrice: doc.TotalPrice,
		})
	}
	return out
}

func encodeOrderPricing(pricing domain.OrderPricing) orderPricingDocument {
	return orderPricingDocument{
		Subtotal:   pricing.Subtotal,
		Shipping:   pricing.Shipping,
		Discount:   pricing.Discount,
		Tax:        pricing.Tax,
		Total:      pricing.Total,
		Currency:   pricing.Currency,
		CouponCode: pricing.CouponCode,
	}
}

func decodeOrderPricing(doc orderPricingDocument) domain.OrderPricing {
	return domain.OrderPricing{
		Subtotal:   doc.Subtotal,
		Shipping:   doc.Shipping,
		Discount:   doc.Discount,
		Tax:        doc.Tax,
		Total:      doc.Total,
		Currency:   doc.Currency,
		CouponCode: doc.CouponCode,
	}
}

func encodePayments(payments []domain.PaymentAttempt) []paymentAttemptDocument {
	out := make([]paymentAttemptDocument, 0, len(payments))
	for _, payment := range payments {
		out = append(out, paymentAttemptDocument{
			ID:            payment.ID,
			Method:        payment.Method,
			TransactionID: payment.TransactionID,
			Amount:        payment.Amount,
			Status:        string(payment.Status),
			ProcessedAt:   payment.ProcessedAt.UTC(),
			Metadata:      cloneStringValueMap(payment.Metadata),
		})
	}
	return out
}

func decodePayments(docs []paymentAttemptDocument) []domain.PaymentAttempt {
	out := make([]domain.PaymentAttempt, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.PaymentAttempt{
			ID:            doc.ID,
			Method:        doc.Method,
			TransactionID: doc.TransactionID,
			Amount:        doc.Amount,
			Status:        domain.PaymentAttemptStatus(doc.Status),
			ProcessedAt:   doc.ProcessedAt,
			Metadata:      cloneStringValueMap(doc.Metadata),
		})
	}
	return out
}

func encodeStatusHistory(history []domain.StatusChange) []statusChangeDocument {
	out := make([]statusChangeDocument, 0, len(history))
	for _, change := range history {
		out = append(out, statusChangeDocument{
			From:      string(change.From),
			To:        string(change.To),
			Actor:     change.Actor,
			Reason:    change.Reason,
			ChangedAt: change.ChangedAt.UTC(),
		})
	}
	return out
}

func decodeStatusHistory(docs []statusChangeDocument) []domain.StatusChange {
	out := make([]domain.StatusChange, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.StatusChange{
			From:      domain.OrderStatus(doc.From),
			To:        domain.OrderStatus(doc.To),
			Actor:     doc.Actor,
			Reason:    doc.Reason,
			ChangedAt: doc.ChangedAt,
		})
	}
	return out
}

func encodeOrderAudit(entries []domain.OrderAuditEntry) []orderAuditDocument {
	out := make([]orderAuditDocument, 0, len(entries))
	for _, entry := range entries {
		doc := orderAuditDocument{
			Action:     entry.Action,
			Actor:      entry.Actor,
			OccurredAt: entry.OccurredAt.UTC(),
		}
		for _, change := range entry.Fields {
			doc.Fields = append(doc.Fields, fieldChangeDocument{
				Field:  change.Field,
				Before: change.Before,
				After:  change.After,
			})
		}
		out = append(out, doc)
	}
	return out
}

func decodeOrderAudit(docs []orderAuditDocument) []domain.OrderAuditEntry {
	out := make([]domain.OrderAuditEntry, 0, len(docs))
	for _, doc := range docs {
		entry := domain.OrderAuditEntry{
			Action:     doc.Action,
			Actor:      doc.Actor,
			OccurredAt: doc.OccurredAt,
		}
		for _, change := range doc.Fields {
			entry.Fields = append(entry.Fields, domain.FieldChange{
				Field:  change.Field,
				Before: change.Before,
				After:  change.After,
			})
		}
		out = append(out, entry)
	}
	return out
}

func encodeTrackingEvents(events []domain.TrackingEvent) []trackingEventDocument {
	out := make([]trackingEventDocument, 0, len(events))
	for _, event := range events {
		out = append(out, trackingEventDocument{
			Carrier:     event.Carrier,
			Code:        event.Code,
			Status:      event.Status,
			Location:    event.Location,
			Description: event.Description,
			OccurredAt:  event.OccurredAt.UTC(),
		})
	}
	return out
}

func decodeTrackingEvents(docs []trackingEventDocument) []domain.TrackingEvent {
	out := make([]domain.TrackingEvent, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.TrackingEvent{
			Carrier:     doc.Carrier,
			Code:        doc.Code,
			Status:      doc.Status,
			Location:    doc.Location,
			Description: doc.Description,
			OccurredAt:  doc.OccurredAt,
		})
	}
	return out
}

func encodeNotifications(records []domain.NotificationRecord) []notificationDocument {
	out := make([]notificationDocument, 0, len(records))
	for _, record := range records {
		out = append(out, notificationDocument{
			Type:      record.Type,
			Channel:   record.Channel,
			Recipient: record.Recipient,
			Message:   record.Message,
			Status:    record.Status,
			SentAt:    record.SentAt.UTC(),
		})
	}
	return out
}

func decodeNotifications(docs []notificationDocument) []domain.NotificationRecord {
	out := make([]domain.NotificationRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.NotificationRecord{
			Type:      doc.Type,
			Channel:   doc.Channel,
			Recipient: doc.Recipient,
			Message:   doc.Message,
			Status:    doc.Status,
			SentAt:    doc.SentAt,
		})
	}
	return out
}

type orderDocument struct {
	OrderNumber      string                   `firestore:"orderNumber"`
	CustomerID       string                   `firestore:"customerId"`
	Customer         orderCustomerDocument    `firestore:"customer"`
	ShippingAddress  orderAddressDocument     `firestore:"shippingAddress"`
	Lines            []orderLineDocument      `firestore:"lines"`
	Pricing          orderPricingDocument     `firestore:"pricing"`
	PaymentState     string                   `firestore:"paymentState"`
	FulfillmentState string                   `firestore:"fulfillmentState"`
	PaymentMethod    string                   `firestore:"paymentMethod,omitempty"`
	ShippingMethod   string                   `firestore:"shippingMethod,omitempty"`
	Payments         []paymentAttemptDocument `firestore:"payments,omitempty"`
	StatusHistory    []statusChangeDocument   `firestore:"statusHistory,omitempty"`
	AuditLog         []orderAuditDocument     `firestore:"auditLog,omitempty"`
	TrackingEvents   []trackingEventDocument  `firestore:"trackingEvents,omitempty"`
	Notifications    []notificationDocument   `firestore:"notifications,omitempty"`
	Notes            string                   `firestore:"notes,omitempty"`
	ConfirmedAt      *time.Time               `firestore:"confirmedAt,omitempty"`
	ShippedAt        *time.Time               `firestore:"shippedAt,omitempty"`
	DeliveredAt      *time.Time               `firestore:"deliveredAt,omitempty"`
	CancelledAt      *time.Time               `firestore:"cancelledAt,omitempty"`
	CreatedAt        time.Time                `firestore:"createdAt"`
	UpdatedAt        time.Time                `firestore:"updatedAt"`
}

type orderCustomerDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Phone string `firestore:"phone,omitempty"`
}

type orderAddressDocument struct {
	ID         string `firestore:"id,omitempty"`
	Label      string `firestore:"label,omitempty"`
	Recipient  string `firestore:"recipient"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	Region     string `firestore:"region,omitempty"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
}

type orderLineDocument struct {
	ProductID  string  `firestore:"productId"`
	VariantID  string  `firestore:"variantId,omitempty"`
	Name       string  `firestore:"name"`
	SKU        string  `firestore:"sku,omitempty"`
	Quantity   int     `firestore:"quantity"`
	UnitPrice  float64 `firestore:"unitPrice"`
	TotalPrice float64 `firestore:"totalPrice"`
}

type orderPricingDocument struct {
	Subtotal   float64 `firestore:"subtotal"`
	Shipping   float64 `firestore:"shipping"`
	Discount   float64 `firestore:"discount"`
	Tax        float64 `firestore:"tax"`
	Total      float64 `firestore:"total"`
	Currency   string  `firestore:"currency"`
	CouponCode string  `firestore:"couponCode,omitempty"`
}

type paymentAttemptDocument struct {
	ID            string            `firestore:"id"`
	Method        string            `firestore:"method"`
	TransactionID string            `firestore:"transactionId,omitempty"`
	Amount        float64           `firestore:"amount"`
	Status        string            `firestore:"status"`
	ProcessedAt   time.Time         `firestore:"processedAt"`
	Metadata      map[string]string `firestore:"metadata,omitempty"`
}

type statusChangeDocument struct {
	From      string    `firestore:"from"`
	To        string    `firestore:"to"`
	Actor     string    `firestore:"actor"`
	Reason    string    `firestore:"reason,omitempty"`
	ChangedAt time.Time `firestore:"changedAt"`
}

type orderAuditDocument struct {
	Action     string                `firestore:"action"`
	Actor      string                `firestore:"actor"`
	OccurredAt time.Time             `firestore:"occurredAt"`
	Fields     []fieldChangeDocument `firestore:"fields,omitempty"`
}

type fieldChangeDocument struct {
	Field  string `firestore:"field"`
	Before any    `firestore:"before,omitempty"`
	After  any    `firestore:"after,omitempty"`
}

type trackingEventDocument struct {
	Carrier     string    `firestore:"carrier"`
	Code        string    `firestore:"code,omitempty"`
	Status      string    `firestore:"status"`
	Location    string    `firestore:"location,omitempty"`
	Description string    `firestore:"description,omitempty"`
	OccurredAt  time.Time `firestore:"occurredAt"`
}

type notificationDocument struct {
	Type      string    `firestore:"type"`
	Channel   string    `firestore:"channel"`
	Recipient string    `firestore:"recipient"`
	Message   string    `firestore:"message,omitempty"`
	Status    string    `firestore:"status"`
	SentAt    time.Time `firestore:"sentAt"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
