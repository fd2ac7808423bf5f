package ai

import (
	"context"
	"time"

	"github.com/keshon/vecna/pkg/retrylimit"
)

// Client wraps a Provider with a timeout budget, adaptive rate limiting and a
// small retry allowance. Errors are returned to the caller, which is expected
// to substitute a fallback rather than abort message processing.
type Client struct {
	provider Provider
	limiter  *retrylimit.AdaptiveLimiter
	timeout  time.Duration
}

func NewClient(provider Provider, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &Client{
		provider: provider,
		limiter:  retrylimit.NewAdaptiveLimiter(2, 1, 5, 1, 0.5),
		timeout:  timeout,
	}
}

// Generate runs one generation attempt set within the client's timeout.
func (c *Client) Generate(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reply string
	err := retrylimit.WithRetryMax(ctx, func() error {
		r, genErr := c.provider.Generate(ctx, messages)
		if genErr != nil {
			return genErr
		}
		reply = r
		return nil
	}, c.limiter, 2)
	return reply, err
}
