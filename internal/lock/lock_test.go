package lock

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/config"
	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(context.Background(), "room-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, k.Len())
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	k := NewKeyedMutex()
	unlockA, err := k.Lock(context.Background(), "room-1")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := k.Lock(ctx, "room-2")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "room-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "room-1")
	assert.True(t, errors.Is(err, ErrNotAcquired))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	unlock()
	unlock()
	assert.Equal(t, 0, k.Len())
}

type fakeLeases struct {
	mu         sync.Mutex
	holder     map[string]string
	refreshes  int
	releaseErr error
}

func newFakeLeases() *fakeLeases {
	return &fakeLeases{holder: make(map[string]string)}
}

func (f *fakeLeases) acquire(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.holder[key]; ok {
		return false, nil
	}
	f.holder[key] = token
	return true, nil
}

func (f *fakeLeases) refresh(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.holder[key] == token, nil
}

func (f *fakeLeases) release(_ context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseErr != nil {
		return f.releaseErr
	}
	if f.holder[key] == token {
		delete(f.holder, key)
	}
	return nil
}

func (f *fakeLeases) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func TestRedisLocker_RenewsLeaseWhileHeld(t *testing.T) {
	leases := newFakeLeases()
	l := newLeaseLocker(leases, 30*time.Millisecond, observability.NewNopLogger())

	unlock, err := l.Lock(context.Background(), "room-1")
	require.NoError(t, err)

	// hold well past the ttl
	assert.Eventually(t, func() bool { return leases.refreshCount() >= 3 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "room-1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	unlock()
	renewed := leases.refreshCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, renewed, leases.refreshCount(), "renewal stops on unlock")

	unlock2, err := l.Lock(context.Background(), "room-1")
	require.NoError(t, err)
	unlock2()
}

func TestRedisLocker_LogsReleaseFailure(t *testing.T) {
	leases := newFakeLeases()
	leases.releaseErr = errors.New("connection refused")
	var buf bytes.Buffer
	logger := observability.NewLoggerTo(&buf, &config.ObservabilityConfig{LogLevel: "info", LogFormat: "json"})
	l := newLeaseLocker(leases, time.Second, logger)

	unlock, err := l.Lock(context.Background(), "room-1")
	require.NoError(t, err)
	unlock()

	assert.Contains(t, buf.String(), "failed to release lock")
	assert.Contains(t, buf.String(), "connection refused")
	assert.Contains(t, buf.String(), `"key":"room-1"`)
}
