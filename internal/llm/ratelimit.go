package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	xerrors "ForesightX/internal/errors"
)

// RateLimited 为底层客户端增加令牌桶限流。
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
}

var _ Client = (*RateLimited)(nil)

// NewRateLimited 按每分钟请求数与突发量包装客户端，perMinute<=0 时不限流。
func NewRateLimited(next Client, perMinute, burst int) Client {
	if next == nil || perMinute <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	interval := time.Minute / time.Duration(perMinute)
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Generate 在获得令牌后调用底层客户端。
func (r *RateLimited) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeModelFailure, err, "等待模型限流令牌失败")
	}
	return r.next.Generate(ctx, req)
}
