package locks

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/farmfresh/marketplace-backend/pkg/errors"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
)

func TestKeys(t *testing.T) {
	id := uuid.MustParse("6f1c2d4e-8a1b-4c3d-9e5f-0a1b2c3d4e5f")
	assert.Equal(t, "cart:6f1c2d4e-8a1b-4c3d-9e5f-0a1b2c3d4e5f", CartKey(id))
	assert.Equal(t, "order:6f1c2d4e-8a1b-4c3d-9e5f-0a1b2c3d4e5f", OrderKey(id))
}

func TestLocalLockerSerializesSameKey(t *testing.T) {
	locker := NewLocalLocker(nil)
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "cart:a")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				prev := atomic.LoadInt32(&maxInside)
				if n <= prev || atomic.CompareAndSwapInt32(&maxInside, prev, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxInside)
	assert.Zero(t, locker.size())
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	locker := NewLocalLocker(nil)
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, "cart:a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := locker.Lock(ctx, "cart:b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key should not block")
	}
}

func TestLocalLockerHonoursContext(t *testing.T) {
	locker := NewLocalLocker(nil)
	unlock, err := locker.Lock(context.Background(), "order:1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "order:1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAcquired))

	unlock()
	unlock()
	assert.Zero(t, locker.size())

	again, err := locker.Lock(context.Background(), "order:1")
	require.NoError(t, err)
	again()
}

type recordingObserver struct {
	mu       sync.Mutex
	backends []string
}

func (r *recordingObserver) ObserveLockWait(backend string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append(r.backends, backend)
}

type fakeRedis struct {
	mu   sync.Mutex
	data        map[string]string
	fail        error
	releaseFail error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return false, f.fail
	}
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value.(string)
	return true, nil
}

func (f *fakeRedis) ReleaseLock(_ context.Context, key, owner string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseFail != nil {
		return false, f.releaseFail
	}
	if f.data[key] != owner {
		return false, nil
	}
	delete(f.data, key)
	return true, nil
}

func (f *fakeRedis) LockKey(name string) string {
	return "ff:lock:" + name
}

func (f *fakeRedis) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func TestRedisLockerAcquireRelease(t *testing.T) {
	store := newFakeRedis()
	observer := &recordingObserver{}
	locker, err := NewRedisLocker(store, RedisOptions{RetryInterval: time.Millisecond, Observer: observer})
	require.NoError(t, err)

	unlock, err := locker.Lock(context.Background(), "cart:u1")
	require.NoError(t, err)
	assert.True(t, store.has("ff:lock:cart:u1"))

	unlock()
	assert.False(t, store.has("ff:lock:cart:u1"))
	assert.Equal(t, []string{"redis"}, observer.backends)
}

func TestRedisLockerWaitsForHolder(t *testing.T) {
	store := newFakeRedis()
	locker, err := NewRedisLocker(store, RedisOptions{RetryInterval: time.Millisecond})
	require.NoError(t, err)

	first, err := locker.Lock(context.Background(), "order:9")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := locker.Lock(context.Background(), "order:9")
		if err == nil {
			close(acquired)
			second()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second caller acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}

	first()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second caller never acquired the released lock")
	}
}

func TestRedisLockerWaitTimeout(t *testing.T) {
	store := newFakeRedis()
	store.data["ff:lock:cart:busy"] = "someone-else"
	locker, err := NewRedisLocker(store, RedisOptions{RetryInterval: time.Millisecond, WaitTimeout: 15 * time.Millisecond})
	require.NoError(t, err)

	_, err = locker.Lock(context.Background(), "cart:busy")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAcquired))
}

func TestRedisLockerDoesNotReleaseForeignOwner(t *testing.T) {
	store := newFakeRedis()
	locker, err := NewRedisLocker(store, RedisOptions{RetryInterval: time.Millisecond})
	require.NoError(t, err)

	unlock, err := locker.Lock(context.Background(), "cart:u2")
	require.NoError(t, err)

	// simulate TTL expiry and takeover
	store.mu.Lock()
	store.data["ff:lock:cart:u2"] = "new-owner"
	store.mu.Unlock()

	unlock()
	assert.True(t, store.has("ff:lock:cart:u2"))
}

func TestRedisLockerLogsFailedRelease(t *testing.T) {
	store := newFakeRedis()
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "locks-test", Output: &buf})
	locker, err := NewRedisLocker(store, RedisOptions{RetryInterval: time.Millisecond, Logger: logg})
	require.NoError(t, err)

	unlock, err := locker.Lock(context.Background(), "cart:u3")
	require.NoError(t, err)

	store.mu.Lock()
	store.releaseFail = errors.New("i/o timeout")
	store.mu.Unlock()
	unlock()

	assert.True(t, store.has("ff:lock:cart:u3"))
	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, "lock release failed")
	assert.Contains(t, out, `"lock_key":"cart:u3"`)
	assert.Contains(t, out, "i/o timeout")
}

func TestRedisLockerSurfacesStoreErrors(t *testing.T) {
	store := newFakeRedis()
	store.fail = errors.New("connection refused")
	locker, err := NewRedisLocker(store, RedisOptions{})
	require.NoError(t, err)

	_, err = locker.Lock(context.Background(), "cart:x")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotAcquired))

	_, err = NewRedisLocker(nil, RedisOptions{})
	require.Error(t, err)
}

func TestAcquireMapsWaitFailure(t *testing.T) {
	locker := NewLocalLocker(nil)
	key := CartKey(uuid.New())

	unlock, err := Acquire(context.Background(), locker, key)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = Acquire(ctx, locker, key)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependencyUnavailable))
	assert.ErrorIs(t, err, ErrNotAcquired)
}
