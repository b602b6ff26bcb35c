package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wattscope/wattscope/internal/domain"
	"github.com/wattscope/wattscope/internal/gateway"
	"github.com/wattscope/wattscope/internal/metrics"
)

// DefaultTrendInterval matches the monitor's roll-up refresh rate. The
// trend endpoint is best effort; nothing here may slow the realtime loop.
const DefaultTrendInterval = 300 * time.Second

// TrendSync polls daily/weekly/monthly/yearly roll-ups on a coarse fixed
// interval. Independent failure domain from RealtimeSync.
type TrendSync struct {
	gw            gateway.Gateway
	log           zerolog.Logger
	interval      time.Duration
	pollTimeout   time.Duration
	degradedAfter int

	mu      sync.Mutex
	state   State
	rollups map[domain.TrendPeriod]domain.TrendReading

	subs []func(domain.TrendReading)
}

// NewTrendSync builds the loop; no network calls until the first tick.
func NewTrendSync(gw gateway.Gateway, interval, pollTimeout time.Duration, log zerolog.Logger) *TrendSync {
	if interval <= 0 {
		interval = DefaultTrendInterval
	}
	return &TrendSync{
		gw:            gw,
		log:           log.With().Str("component", "trend_sync").Logger(),
		interval:      interval,
		pollTimeout:   pollTimeout,
		degradedAfter: DefaultDegradedThreshold,
		state:         State{Interval: interval},
		rollups:       make(map[domain.TrendPeriod]domain.TrendReading),
	}
}

// SetDegradedThreshold overrides the consecutive-failure count that
// raises the degraded flag. Call before Run.
func (s *TrendSync) SetDegradedThreshold(n int) {
	if n > 0 {
		s.degradedAfter = n
	}
}

// Subscribe registers a callback invoked from the loop goroutine for each
// refreshed roll-up. Register before Run.
func (s *TrendSync) Subscribe(fn func(domain.TrendReading)) {
	s.subs = append(s.subs, fn)
}

// Latest returns the last-good roll-up for a period.
func (s *TrendSync) Latest(period domain.TrendPeriod) (domain.TrendReading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rollups[period]
	return r, ok
}

// All returns a copy of every cached roll-up.
func (s *TrendSync) All() map[domain.TrendPeriod]domain.TrendReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.TrendPeriod]domain.TrendReading, len(s.rollups))
	for k, v := range s.rollups {
		out[k] = v
	}
	return out
}

// State returns a copy of the loop state.
func (s *TrendSync) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run drives the trend loop until ctx is done or auth fails terminally.
func (s *TrendSync) Run(ctx context.Context) {
	s.mu.Lock()
	s.state.Running = true
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.state.Running = false
			s.mu.Unlock()
			return
		case <-ticker.C:
			if s.PollNow(ctx) == pollTerminal {
				s.log.Error().Msg("trend sync stopped: re-authentication required")
				return
			}
		}
	}
}

// PollNow fetches all roll-up periods once. A failure mid-sequence keeps
// the periods already refreshed (stale-preferred).
func (s *TrendSync) PollNow(ctx context.Context) pollOutcome {
	pollCtx, cancel := context.WithTimeout(ctx, s.pollTimeout)
	defer cancel()

	var refreshed []domain.TrendReading
	outcome := pollSuccess
	for _, period := range domain.TrendPeriods() {
		reading, err := s.gw.ReadTrends(pollCtx, period)
		switch {
		case err == nil:
			refreshed = append(refreshed, reading)
		case gateway.IsPartialData(err):
			s.log.Debug().Err(err).Str("period", string(period)).Msg("partial trend response, keeping stale data")
		case gateway.IsAuth(err):
			s.mu.Lock()
			s.state.LastError = err.Error()
			s.state.ReauthRequired = true
			s.state.Running = false
			s.mu.Unlock()
			metrics.PollFailure.WithLabelValues("trend", "auth").Inc()
			return pollTerminal
		default:
			if outcome == pollSuccess {
				outcome = pollTransient
			}
			s.log.Debug().Err(err).Str("period", string(period)).Msg("trend poll failed (non-critical)")
		}
	}

	s.mu.Lock()
	for _, r := range refreshed {
		s.rollups[r.Period] = r
	}
	if outcome == pollSuccess {
		s.state.LastSuccess = time.Now()
		s.state.LastError = ""
		s.state.ConsecutiveFailures = 0
		s.state.Degraded = false
	} else {
		s.state.ConsecutiveFailures++
		s.state.Degraded = s.state.ConsecutiveFailures >= s.degradedAfter
	}
	degraded := s.state.Degraded
	s.mu.Unlock()

	if outcome == pollSuccess {
		metrics.PollSuccess.WithLabelValues("trend").Inc()
		metrics.LoopDegraded.WithLabelValues("trend").Set(0)
	} else {
		metrics.PollFailure.WithLabelValues("trend", "transient").Inc()
		if degraded {
			metrics.LoopDegraded.WithLabelValues("trend").Set(1)
		}
	}

	for _, r := range refreshed {
		for _, fn := range s.subs {
			fn(r)
		}
	}
	return outcome
}
