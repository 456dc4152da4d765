package cache

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tiercache/tiercache/internal/circuit"
	"github.com/tiercache/tiercache/internal/metrics"
	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/retry"
	"github.com/tiercache/tiercache/pkg/types"
)

const defaultNetworkTimeout = 500 * time.Millisecond

// NetworkOptions configures a NetworkStore.
type NetworkOptions struct {
	// Source is the remote read path. Nil makes every fetch a miss.
	Source types.RemoteSource
	// Name labels logs and metrics, e.g. "valkey" or "s3".
	Name    string
	Timeout time.Duration
	Retry   retry.Config
	Breaker circuit.Config
	Clock   clock.Clock
	Metrics *metrics.Collector
}

// NetworkStore is the read-only network tier.
type NetworkStore struct {
	source  types.RemoteSource
	name    string
	timeout time.Duration
	breaker *circuit.CircuitBreaker
	retryer *retry.Retryer
	metrics *metrics.Collector
}

// NewNetworkStore wraps opts.Source with a circuit breaker and retryer.
func NewNetworkStore(opts NetworkOptions) *NetworkStore {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Name == "" {
		opts.Name = "remote"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultNetworkTimeout
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}

	return &NetworkStore{
		source:  opts.Source,
		name:    opts.Name,
		timeout: opts.Timeout,
		breaker: circuit.NewCircuitBreakerWithClock("network:"+opts.Name, opts.Breaker, opts.Clock),
		retryer: retry.NewWithClock(opts.Retry, opts.Clock),
		metrics: opts.Metrics,
	}
}

// Name returns the source label.
func (n *NetworkStore) Name() string { return n.name }

// Enabled reports whether a source is configured.
func (n *NetworkStore) Enabled() bool { return n != nil && n.source != nil }

// BreakerState returns the state of the circuit guarding the source.
func (n *NetworkStore) BreakerState() circuit.State { return n.breaker.GetState() }

// Fetch reads key from the source. Each attempt gets its own timeout.
func (n *NetworkStore) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	if !n.Enabled() {
		return nil, false, nil
	}

	var (
		data  []byte
		found bool
	)
	err := n.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		return n.retryer.DoWithContext(ctx, func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, n.timeout)
			defer cancel()

			d, ok, err := n.source.Fetch(attemptCtx, key)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeNetworkFetch, "remote fetch failed").
					WithComponent("network").
					WithOperation("fetch").
					WithDetail("source", n.name).
					WithDetail("key", key)
			}
			data, found = d, ok
			return nil
		})
	})

	switch {
	case errors.HasCode(err, errors.ErrCodeCircuitOpen):
		n.metrics.RecordRemoteFetch(n.name, "rejected")
		return nil, false, err
	case err != nil:
		n.metrics.RecordRemoteFetch(n.name, "error")
		return nil, false, err
	case !found:
		n.metrics.RecordRemoteFetch(n.name, "not_found")
	default:
		n.metrics.RecordRemoteFetch(n.name, "found")
	}
	return data, found, nil
}

// Probe checks the circuit. An open circuit reports CIRCUIT_OPEN.
func (n *NetworkStore) Probe() error {
	if n.breaker.GetState() == circuit.StateOpen {
		return errors.NewError(errors.ErrCodeCircuitOpen, "network circuit is open").
			WithComponent("network").
			WithDetail("source", n.name)
	}
	return nil
}
