package domain

import "slices"

// PaymentState tracks the money dimension of an order independently of
// fulfillment.
type PaymentState string

const (
	PaymentPending           PaymentState = "pending"
	PaymentProcessing        PaymentState = "processing"
	PaymentPaid              PaymentState = "paid"
	PaymentFailed            PaymentState = "failed"
	PaymentRefunded          PaymentState = "refunded"
	PaymentPartiallyRefunded PaymentState = "partially_refunded"
)

// FulfillmentState tracks the physical dimension of an order independently of
// payment.
type FulfillmentState string

const (
	FulfillmentPending   FulfillmentState = "pending"
	FulfillmentPreparing FulfillmentState = "preparing"
	FulfillmentShipped   FulfillmentState = "shipped"
	FulfillmentInTransit FulfillmentState = "in_transit"
	FulfillmentDelivered FulfillmentState = "delivered"
	FulfillmentReturned  FulfillmentState = "returned"
	FulfillmentCancelled FulfillmentState = "cancelled"
)

// OrderStatus is the projected, customer-facing order status. It is computed
// from the two stored dimensions and drives the transition table.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderReturned   OrderStatus = "returned"
	OrderRefunded   OrderStatus = "refunded"
)

// orderStatusTransitions is the fixed legal-transition table. Cancelled and
// refunded are terminal.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderConfirmed, OrderCancelled},
	OrderConfirmed:  {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered, OrderReturned},
	OrderDelivered:  {OrderReturned, OrderRefunded},
	OrderCancelled:  {},
	OrderReturned:   {OrderRefunded},
	OrderRefunded:   {},
}

// CanTransitionTo reports whether the table allows moving from s to target.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	return slices.Contains(orderStatusTransitions[s], target)
}

// ProjectOrderStatus collapses the two stored dimensions into the single
// status the transition table speaks. Precedence runs from the most final
// fulfillment facts down to payment capture; the zero dimensions project to
// pending.
func ProjectOrderStatus(payment PaymentState, fulfillment FulfillmentState) OrderStatus {
	switch {
	case fulfillment == FulfillmentCancelled:
		return OrderCancelled
	case payment == PaymentRefunded:
		return OrderRefunded
	case fulfillment == FulfillmentReturned:
		return OrderReturned
	case fulfillment == FulfillmentDelivered:
		return OrderDelivered
	case fulfillment == FulfillmentShipped, fulfillment == FulfillmentInTransit:
		return OrderShipped
	case fulfillment == FulfillmentPreparing:
		return OrderProcessing
	case payment == PaymentPaid, payment == PaymentPartiallyRefunded:
		return OrderConfirmed
	default:
		return OrderPending
	}
}

// statusEffects maps each projected target onto the dimension write that
// realizes it. Exactly one dimension changes per transition.
type statusEffect struct {
	payment     *PaymentState
	fulfillment *FulfillmentState
}

func paymentEffect(p PaymentState) statusEffect         { return statusEffect{payment: &p} }
func fulfillmentEffect(f FulfillmentState) statusEffect { return statusEffect{fulfillment: &f} }

var orderStatusEffects = map[OrderStatus]statusEffect{
	OrderConfirmed:  paymentEffect(PaymentPaid),
	OrderProcessing: fulfillmentEffect(FulfillmentPreparing),
	OrderShipped:    fulfillmentEffect(FulfillmentShipped),
	OrderDelivered:  fulfillmentEffect(FulfillmentDelivered),
	OrderCancelled:  fulfillmentEffect(FulfillmentCancelled),
	OrderReturned:   fulfillmentEffect(FulfillmentReturned),
	OrderRefunded:   paymentEffect(PaymentRefunded),
}

// ApplyStatusEffect mutates the order's dimensions so its projection becomes
// target. Callers must have validated the transition first.
func ApplyStatusEffect(order *Order, target OrderStatus) {
	effect, ok := orderStatusEffects[target]
	if !ok {
		return
	}
	if effect.payment != nil {
		order.PaymentState = *effect.payment
	}
	if effect.fulfillment != nil {
		order.FulfillmentState = *effect.fulfillment
	}
}
