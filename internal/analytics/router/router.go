package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/farmfresh/marketplace-backend/internal/analytics/types"
	"github.com/farmfresh/marketplace-backend/pkg/enums"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer receives the sales facts built from order events.
type Writer interface {
	InsertSalesFact(ctx context.Context, row types.SalesFactRow) error
}

// Handler replaces the built-in fact mapping for one event type.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// factFunc decodes an envelope payload and maps it to a row.
type factFunc func(envelope types.Envelope) (types.SalesFactRow, error)

// Router maps order events to sales fact rows and hands them to the writer.
type Router struct {
	writer    Writer
	facts     map[enums.OutboxEventType]factFunc
	overrides map[enums.OutboxEventType]Handler
	logg      *logger.Logger
}

// NewRouter registers the built-in fact mappings. overrides may replace the
// handling of a known event type; entries for unknown types are ignored.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	r := &Router{
		writer: writer,
		facts: map[enums.OutboxEventType]factFunc{
			enums.EventOrderCreated:       decoding(orderCreatedFact),
			enums.EventOrderStatusChanged: decoding(statusChangedFact),
		},
		overrides: map[enums.OutboxEventType]Handler{},
		logg:      logg,
	}
	for event, h := range overrides {
		if _, known := r.facts[event]; known && h != nil {
			r.overrides[event] = h
		}
	}
	return r, nil
}

// Handle writes the sales fact for envelope.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	if h, ok := r.overrides[envelope.EventType]; ok {
		return h.Handle(ctx, envelope)
	}
	build, ok := r.facts[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}

	row, err := build(envelope)
	if err != nil {
		return err
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": envelope.EventType,
		"order_id":   row.OrderID,
		"status":     row.Status,
	})
	if err := r.writer.InsertSalesFact(ctx, row); err != nil {
		r.logg.Error(ctx, "failed to insert sales fact", err)
		return err
	}
	r.logg.Debug(ctx, "sales fact queued")
	return nil
}

func decoding[T any](build func(types.Envelope, *T) (types.SalesFactRow, error)) factFunc {
	return func(envelope types.Envelope) (types.SalesFactRow, error) {
		event := new(T)
		if err := envelope.Decode(event); err != nil {
			return types.SalesFactRow{}, err
		}
		return build(envelope, event)
	}
}
