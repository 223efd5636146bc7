// Package breaker wraps an aiclient.Client with a circuit breaker so a
// degraded model provider fails fast instead of queuing node invocations
// against it.
package breaker

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/meshagent/meshagent/pkg/aiclient"
)

// Client wraps an inner aiclient.Client with a gobreaker.CircuitBreaker.
type Client struct {
	inner aiclient.Client
	cb    *gobreaker.CircuitBreaker
}

// New wraps inner in a circuit breaker named name. The breaker trips after
// five consecutive failures and probes again after 30 seconds.
func New(name string, inner aiclient.Client) *Client {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

func (c *Client) Complete(ctx context.Context, req aiclient.Request) (*aiclient.Result, error) {
	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.inner.Complete(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("aiclient breaker %s: %w", c.cb.Name(), err)
	}
	return result.(*aiclient.Result), nil
}

var _ aiclient.Client = (*Client)(nil)
