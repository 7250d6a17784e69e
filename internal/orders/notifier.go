package orders

import (
	"context"
	"fmt"

	"github.com/farmfresh/marketplace-backend/pkg/auth"
	"github.com/farmfresh/marketplace-backend/pkg/enums"
	"github.com/farmfresh/marketplace-backend/pkg/outbox"
	"github.com/farmfresh/marketplace-backend/pkg/outbox/payloads"
	"gorm.io/gorm"
)

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxNotifier records order events as outbox rows in their own short
// transaction, after the business transaction has committed.
type OutboxNotifier struct {
	tx     txRunner
	outbox outboxEmitter
}

// NewOutboxNotifier wires the notifier to the transaction runner and outbox.
func NewOutboxNotifier(tx txRunner, emitter outboxEmitter) (*OutboxNotifier, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &OutboxNotifier{tx: tx, outbox: emitter}, nil
}

// OrderCreated emits order_created.
func (n *OutboxNotifier) OrderCreated(ctx context.Context, actor auth.Actor, event payloads.OrderCreatedEvent) error {
	return n.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   event.OrderID,
		Actor:         actorRef(actor),
		Data:          event,
		OccurredAt:    event.CreatedAt,
	})
}

// OrderStatusChanged emits order_status_changed.
func (n *OutboxNotifier) OrderStatusChanged(ctx context.Context, actor auth.Actor, event payloads.OrderStatusChangedEvent) error {
	return n.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   event.OrderID,
		Actor:         actorRef(actor),
		Data:          event,
		OccurredAt:    event.ChangedAt,
	})
}

func (n *OutboxNotifier) emit(ctx context.Context, event outbox.DomainEvent) error {
	return n.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return n.outbox.Emit(ctx, tx, event)
	})
}

func actorRef(actor auth.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()}
}
