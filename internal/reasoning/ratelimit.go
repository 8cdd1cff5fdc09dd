package reasoning

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

// RateLimited spaces outbound calls so the provider sees at most rpm
// requests per minute. The limiter is shared by every run in the process.
type RateLimited struct {
	next    Reasoner
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a limiter allowing rpm requests per minute,
// with bursts of up to burst calls. rpm <= 0 disables limiting.
func NewRateLimited(next Reasoner, rpm, burst int) *RateLimited {
	limit := rate.Inf
	if rpm > 0 {
		limit = rate.Every(time.Minute / time.Duration(rpm))
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) Invoke(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", errors.Mark(errors.Wrap(err, "rate limit wait"), ErrReasoningUnavailable)
	}
	return r.next.Invoke(ctx, req)
}
