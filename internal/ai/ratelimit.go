package ai

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// rateLimited paces requests to a wrapped gateway.
type rateLimited struct {
	next    Gateway
	limiter *rate.Limiter
}

// WithRateLimit limits g to perMinute requests per minute. A non-positive
// perMinute returns g unchanged.
func WithRateLimit(g Gateway, perMinute int) Gateway {
	if perMinute <= 0 {
		return g
	}
	return &rateLimited{
		next:    g,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (r *rateLimited) Request(ctx context.Context, prompt Prompt, cfg Config) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Request(ctx, prompt, cfg)
}

// NewGateway returns the gateway for provider, paced to perMinute requests.
func NewGateway(provider string, perMinute int) (Gateway, error) {
	var g Gateway
	switch provider {
	case "", ProviderOpenAI:
		g = NewClient(nil)
	default:
		lc, err := NewLangChainClient(provider)
		if err != nil {
			return nil, err
		}
		g = lc
	}
	return WithRateLimit(g, perMinute), nil
}
