package lock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packlane/orderflow/pkg/config"
	pkgerrors "github.com/packlane/orderflow/pkg/errors"
)

type fakeBackend struct {
	mu         sync.Mutex
	store      map[string]string
	denyFirst  int
	setNXCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{store: map[string]string{}}
}

func (f *fakeBackend) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setNXCalls++
	if f.denyFirst > 0 {
		f.denyFirst--
		return false, nil
	}
	if _, held := f.store[key]; held {
		return false, nil
	}
	f.store[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeBackend) Eval(_ context.Context, _ string, keys []string, args ...any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(keys) == 0 || len(args) == 0 {
		return int64(0), nil
	}
	if f.store[keys[0]] == fmt.Sprint(args[0]) {
		delete(f.store, keys[0])
		return int64(1), nil
	}
	return int64(0), nil
}

func (f *fakeBackend) LockKey(parts ...string) string {
	return "of:lock:" + strings.Join(parts, ":")
}

func testConfig() config.LockConfig {
	return config.LockConfig{
		LeaseTTL:      time.Second,
		RetryInterval: time.Millisecond,
		MaxAttempts:   3,
	}
}

func TestAcquireAndRelease(t *testing.T) {
	backend := newFakeBackend()
	manager := NewManager(backend, testConfig(), nil, nil)
	ctx := context.Background()

	lease, err := manager.Acquire(ctx, "order-1", "checkout", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "of:lock:order:checkout:order-1", lease.Key)
	assert.NotEmpty(t, lease.Token)

	require.NoError(t, lease.Release(ctx))

	// Released, so the next acquire succeeds immediately.
	again, err := manager.Acquire(ctx, "order-1", "checkout", time.Second)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestAcquireContendedTimesOut(t *testing.T) {
	backend := newFakeBackend()
	manager := NewManager(backend, testConfig(), nil, nil)
	ctx := context.Background()

	held, err := manager.Acquire(ctx, "order-1", "checkout", time.Second)
	require.NoError(t, err)
	defer held.Release(ctx)

	_, err = manager.Acquire(ctx, "order-1", "checkout", 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeLockTimeout))

	// A different operation on the same order is a separate lock.
	other, err := manager.Acquire(ctx, "order-1", "confirm", time.Second)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))
}

func TestAcquireRetriesUntilFree(t *testing.T) {
	backend := newFakeBackend()
	backend.denyFirst = 2
	manager := NewManager(backend, testConfig(), nil, nil)

	lease, err := manager.Acquire(context.Background(), "order-1", "checkout", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, backend.setNXCalls)
	require.NoError(t, lease.Release(context.Background()))
}

func TestReleaseIgnoresStaleToken(t *testing.T) {
	backend := newFakeBackend()
	manager := NewManager(backend, testConfig(), nil, nil)
	ctx := context.Background()

	lease, err := manager.Acquire(ctx, "order-1", "checkout", time.Second)
	require.NoError(t, err)

	// Simulate lease expiry and takeover by another owner.
	backend.mu.Lock()
	backend.store[lease.Key] = "someone-else"
	backend.mu.Unlock()

	require.NoError(t, lease.Release(ctx))
	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, "someone-else", backend.store[lease.Key])
}

func TestAcquireValidation(t *testing.T) {
	manager := NewManager(newFakeBackend(), testConfig(), nil, nil)
	ctx := context.Background()

	_, err := manager.Acquire(ctx, "", "checkout", time.Second)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = manager.Acquire(ctx, "order-1", "", time.Second)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestReleaseNilLease(t *testing.T) {
	var lease *Lease
	require.NoError(t, lease.Release(context.Background()))
}
