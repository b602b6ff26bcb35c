// Package gateway wraps the remote energy monitor behind a small
// capability interface and classifies its failures.
package gateway

import (
	"context"
	"time"

	"github.com/wattscope/wattscope/internal/domain"
)

// Gateway is the consumed capability of the remote monitor. Errors follow
// the taxonomy in errors.go; callers classify with IsTransient / IsAuth /
// IsPartialData.
type Gateway interface {
	ReadInstantaneous(ctx context.Context) (domain.RealtimeReading, error)
	ReadTrends(ctx context.Context, period domain.TrendPeriod) (domain.TrendReading, error)
	SetRateLimit(interval time.Duration)
}
