package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"

	"github.com/farmfresh/marketplace-backend/pkg/db/models"
)

type dlqAdmin interface {
	List(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
	Requeue(ctx context.Context, eventID uuid.UUID) error
}

type dlqView struct {
	EventID      uuid.UUID       `json:"event_id"`
	EventType    string          `json:"event_type"`
	AggregateID  uuid.UUID       `json:"aggregate_id"`
	Reason       string          `json:"reason"`
	Error        string          `json:"error,omitempty"`
	AttemptCount int             `json:"attempt_count"`
	FailedAt     string          `json:"failed_at"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// runDLQ serves `outbox-publisher dlq list [limit] | show <event-id> | requeue <event-id>`.
func runDLQ(ctx context.Context, out io.Writer, store dlqAdmin, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: dlq list [limit] | show <event-id> | requeue <event-id>")
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	switch args[0] {
	case "list":
		limit := 0
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid limit %q", args[1])
			}
			limit = n
		}
		entries, err := store.List(ctx, limit)
		if err != nil {
			return err
		}
		views := make([]dlqView, 0, len(entries))
		for _, e := range entries {
			views = append(views, viewOf(e, false))
		}
		return enc.Encode(views)
	case "show", "requeue":
		if len(args) < 2 {
			return fmt.Errorf("dlq %s needs an event id", args[0])
		}
		eventID, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid event id: %w", err)
		}
		if args[0] == "requeue" {
			if err := store.Requeue(ctx, eventID); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "requeued %s\n", eventID)
			return err
		}
		entry, err := store.FindByEventID(ctx, eventID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("event %s is not in the dlq", eventID)
		}
		return enc.Encode(viewOf(*entry, true))
	default:
		return fmt.Errorf("unknown dlq command %q", args[0])
	}
}

func viewOf(e models.OutboxDLQ, withPayload bool) dlqView {
	v := dlqView{
		EventID:      e.EventID,
		EventType:    string(e.EventType),
		AggregateID:  e.AggregateID,
		Reason:       string(e.ErrorReason),
		AttemptCount: e.AttemptCount,
		FailedAt:     e.FailedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if e.ErrorMessage != nil {
		v.Error = *e.ErrorMessage
	}
	if withPayload {
		v.Payload = e.Payload
	}
	return v
}
