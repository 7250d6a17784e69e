// Package idempotency dedupes event deliveries per consumer. Pub/Sub is
// at-least-once, so a consumer records each event id before side effects and
// forgets it again when handling fails, letting the redelivery retry.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/farmfresh/marketplace-backend/pkg/redis"
)

// ErrDuplicate is returned by Guard when the event was already handled.
var ErrDuplicate = errors.New("event already processed")

// Manager remembers processed event ids in Redis for ttl. Keys look like
// ff:idempotency:evt:processed:<consumer>:<event_id>.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMarkProcessed marks eventID for consumer and reports whether it
// had already been marked.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	fresh, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s processed: %w", eventID, err)
	}
	return !fresh, nil
}

// Delete forgets eventID so a redelivery is handled again.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

// Guard runs fn at most once per consumer and event. If fn fails or panics
// the mark is released, even when ctx is already cancelled, so the
// redelivery runs fn again.
func (m *Manager) Guard(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (err error) {
	already, err := m.CheckAndMarkProcessed(ctx, consumer, eventID)
	if err != nil {
		return err
	}
	if already {
		return ErrDuplicate
	}

	done := false
	defer func() {
		if done && err == nil {
			return
		}
		if relErr := m.Delete(context.WithoutCancel(ctx), consumer, eventID); relErr != nil {
			err = errors.Join(err, fmt.Errorf("release %s: %w", eventID, relErr))
		}
	}()
	err = fn(ctx)
	done = true
	return err
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case eventID == uuid.Nil:
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID.String()), nil
}
