// Package locks serializes critical sections per key: one cart per user,
// one status transition per order.
package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/farmfresh/marketplace-backend/pkg/errors"
)

// ErrNotAcquired is returned when the wait for a lock ends before it was granted.
var ErrNotAcquired = errors.New("lock not acquired")

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func()

// Locker grants exclusive access to a key until the returned Unlock is called.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// WaitObserver receives how long callers waited for a lock.
type WaitObserver interface {
	ObserveLockWait(backend string, wait time.Duration)
}

// CartKey is the lock key shared by every mutation of a user's cart and
// wishlist, checkout and clear included.
func CartKey(userID uuid.UUID) string {
	return "cart:" + userID.String()
}

// OrderKey is the lock key for status transitions on one order.
func OrderKey(orderID uuid.UUID) string {
	return "order:" + orderID.String()
}

func notAcquired(key string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, cause)
}

// Acquire takes key on locker and reports a failed wait as a retryable
// dependency error.
func Acquire(ctx context.Context, locker Locker, key string) (Unlock, error) {
	unlock, err := locker.Lock(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "resource is busy, retry shortly")
	}
	return unlock, nil
}
