// Package lock provides the persistent mutual-exclusion primitive used to
// serialize checkout/confirm/reject calls against the same order. The lock is
// advisory: callers that skip it can still race.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/packlane/orderflow/pkg/config"
	pkgerrors "github.com/packlane/orderflow/pkg/errors"
	"github.com/packlane/orderflow/pkg/metrics"
)

// compare-and-delete so an expired lease cannot release a successor's lock.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

type backend interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)
	LockKey(parts ...string) string
}

type tokenFunc func() string

// Manager hands out order-scoped leases backed by Redis.
type Manager struct {
	store    backend
	cfg      config.LockConfig
	metrics  *metrics.EngineMetrics
	newToken tokenFunc
}

// Lease is a held lock. Release it when the guarded operation finishes;
// otherwise it expires with the lease TTL.
type Lease struct {
	Key   string
	Token string

	manager *Manager
}

// NewManager builds a lock manager on top of the given Redis client.
func NewManager(store backend, cfg config.LockConfig, m *metrics.EngineMetrics, newToken func() string) *Manager {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 150 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 20
	}
	if newToken == nil {
		newToken = uuid.NewString
	}
	return &Manager{store: store, cfg: cfg, metrics: m, newToken: newToken}
}

// Acquire obtains the lock scoped to order:{operation}:{orderID}, retrying on
// contention with a fixed backoff until the bounded attempts or the timeout
// run out.
func (m *Manager) Acquire(ctx context.Context, orderID, operation string, timeout time.Duration) (*Lease, error) {
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if operation == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "operation identifier required")
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	key := m.store.LockKey("order", operation, orderID)
	token := m.newToken()

	backoff := retry.WithMaxRetries(uint64(m.cfg.MaxAttempts-1), retry.NewConstant(m.cfg.RetryInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		acquired, err := m.store.SetNX(ctx, key, token, m.cfg.LeaseTTL)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock backend unavailable")
		}
		if !acquired {
			m.metrics.IncLockContention(operation)
			return retry.RetryableError(pkgerrors.Newf(pkgerrors.CodeLockTimeout, "order %s locked for %s", orderID, operation))
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, "acquiring order lock")
	}

	return &Lease{Key: key, Token: token, manager: m}, nil
}

// Release frees the lease if it is still held by this owner.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.manager == nil {
		return nil
	}
	_, err := l.manager.store.Eval(ctx, releaseScript, []string{l.Key}, l.Token)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "releasing order lock")
	}
	return nil
}
