package backend

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/hyperjump/qexpand/internal/models"
)

// RateLimited throttles searches on the wrapped backend with a token bucket.
type RateLimited struct {
	next    Backend
	limiter *rate.Limiter
}

// NewRateLimited allows requestsPerSecond sustained searches with bursts of up to burst.
// burst < 1 is treated as 1.
func NewRateLimited(next Backend, requestsPerSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Search implements Backend. It blocks until a token is available or ctx is done.
func (r *RateLimited) Search(ctx context.Context, query string) (*models.ResultSet, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Search(ctx, query)
}
