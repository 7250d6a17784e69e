package worker

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/farmfresh/marketplace-backend/internal/analytics/router"
	"github.com/farmfresh/marketplace-backend/internal/analytics/types"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
	"github.com/farmfresh/marketplace-backend/pkg/metrics"
	"github.com/farmfresh/marketplace-backend/pkg/outbox/idempotency"
)

const (
	consumerName = "sales-facts"
	jobName      = "analytics_sales_facts"
)

// Handler turns one order event into sales facts.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type deduper interface {
	Guard(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// outcome decides what happens to a delivery once handling returns.
type outcome int

const (
	ack outcome = iota
	retry
)

// Service consumes the orders subscription and records one sales fact per
// order event. Redeliveries are skipped by event id.
type Service struct {
	sub     receiver
	handler Handler
	dedupe  deduper
	metrics *metrics.JobMetrics
	logg    *logger.Logger
}

// NewService builds the consumer. jobMetrics may be nil.
func NewService(sub *gcppubsub.Subscriber, handler Handler, dedupe deduper, jobMetrics *metrics.JobMetrics, logg *logger.Logger) (*Service, error) {
	switch {
	case sub == nil:
		return nil, errors.New("orders subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case dedupe == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{sub: sub, handler: handler, dedupe: dedupe, metrics: jobMetrics, logg: logg}, nil
}

// Run blocks receiving messages until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.sub.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		done := s.metrics.Time(jobName)
		result := s.process(msgCtx, msg)
		done()
		if result == retry {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) outcome {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := decodeMessage(msg)
	if err != nil {
		// redelivering a malformed message cannot fix it
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dropping undecodable order event")
		return ack
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     envelope.EventID,
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
		"occurred_at":  envelope.OccurredAt.Format(time.RFC3339Nano),
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(ctx, "dropping order event with malformed id")
		return ack
	}

	err = s.dedupe.Guard(ctx, consumerName, eventID, func(ctx context.Context) error {
		return s.handler.Handle(ctx, envelope)
	})
	switch {
	case err == nil:
		s.metrics.IncSuccess(jobName)
		s.logg.Info(ctx, "sales fact recorded")
		return ack
	case errors.Is(err, idempotency.ErrDuplicate):
		s.logg.Info(ctx, "order event already recorded")
		return ack
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Warn(ctx, "no analytics handler for event type")
		return ack
	default:
		s.metrics.IncFailure(jobName)
		s.logg.Error(ctx, "sales fact handling failed", err)
		return retry
	}
}
