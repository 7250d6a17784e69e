package enums

// OrderStatus tracks the lifecycle of a customer order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// fulfillmentRank orders the forward path; cancelled sits outside it.
var fulfillmentRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusShipped:    2,
	OrderStatusDelivered:  3,
}

// OrderStatuses returns every recognised status in lifecycle order.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(validOrderStatuses))
	copy(out, validOrderStatuses)
	return out
}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return member(validOrderStatuses, s) }

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one call.
// Forward jumps along pending -> processing -> shipped -> delivered are allowed,
// pending and processing may be cancelled, terminal states never move.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !s.IsValid() || !next.IsValid() || s.IsTerminal() || s == next {
		return false
	}
	if next == OrderStatusCancelled {
		return s == OrderStatusPending || s == OrderStatusProcessing
	}
	return fulfillmentRank[next] > fulfillmentRank[s]
}

// AllowedTransitions lists the statuses reachable from s.
func (s OrderStatus) AllowedTransitions() []OrderStatus {
	out := []OrderStatus{}
	for _, candidate := range validOrderStatuses {
		if s.CanTransitionTo(candidate) {
			out = append(out, candidate)
		}
	}
	return out
}

// ParseOrderStatus ignores surrounding whitespace and letter case.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return lookup(validOrderStatuses, "order status", value, true)
}
