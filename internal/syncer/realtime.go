package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/wattscope/wattscope/internal/domain"
	"github.com/wattscope/wattscope/internal/gateway"
	"github.com/wattscope/wattscope/internal/metrics"
	"github.com/wattscope/wattscope/internal/stats"
)

// DefaultDegradedThreshold raises the degraded flag after this many
// consecutive transient failures. Polling continues regardless.
const DefaultDegradedThreshold = 5

// RealtimeSync polls the gateway for instantaneous telemetry and feeds
// each reading into the per-channel sample windows. It is the only writer
// of those windows and of its own State.
type RealtimeSync struct {
	gw            gateway.Gateway
	log           zerolog.Logger
	pollTimeout   time.Duration
	degradedAfter int

	mu         sync.Mutex
	interval   time.Duration
	state      State
	gen        uint64             // bumped on interval change; stale polls are discarded
	pollCancel context.CancelFunc // cancels the in-flight gateway call, if any

	reschedule chan struct{}

	windows  map[domain.Channel]*stats.SampleWindow
	snapshot atomic.Pointer[domain.RealtimeReading]
	subs     []func(domain.RealtimeReading)
}

// NewRealtimeSync builds the loop. Construction registers windows and
// returns immediately; no gateway call happens until the first tick.
func NewRealtimeSync(gw gateway.Gateway, interval, pollTimeout time.Duration, windowCapacity int, log zerolog.Logger) *RealtimeSync {
	channels := []domain.Channel{
		domain.ChannelPower,
		domain.ChannelSolar,
		domain.ChannelVoltageL1,
		domain.ChannelVoltageL2,
		domain.ChannelFrequency,
	}
	windows := make(map[domain.Channel]*stats.SampleWindow, len(channels))
	for _, ch := range channels {
		windows[ch] = stats.NewSampleWindow(ch, windowCapacity)
	}
	gw.SetRateLimit(interval)
	return &RealtimeSync{
		gw:            gw,
		log:           log.With().Str("component", "realtime_sync").Logger(),
		pollTimeout:   pollTimeout,
		degradedAfter: DefaultDegradedThreshold,
		interval:      interval,
		state:         State{Interval: interval},
		reschedule:    make(chan struct{}, 1),
		windows:       windows,
	}
}

// SetDegradedThreshold overrides the consecutive-failure count that
// raises the degraded flag. Call before Run.
func (s *RealtimeSync) SetDegradedThreshold(n int) {
	if n > 0 {
		s.degradedAfter = n
	}
}

// Subscribe registers a callback invoked synchronously from the loop
// goroutine after each successful poll. Register before Run.
func (s *RealtimeSync) Subscribe(fn func(domain.RealtimeReading)) {
	s.subs = append(s.subs, fn)
}

// Window returns the sample window for a channel, or nil.
func (s *RealtimeSync) Window(ch domain.Channel) *stats.SampleWindow {
	return s.windows[ch]
}

// Latest returns the last-good reading.
func (s *RealtimeSync) Latest() (domain.RealtimeReading, bool) {
	r := s.snapshot.Load()
	if r == nil {
		return domain.RealtimeReading{}, false
	}
	return *r, true
}

// State returns a copy of the loop state.
func (s *RealtimeSync) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Interval = s.interval
	return st
}

// SetInterval changes the polling cadence. The in-flight poll, if any, is
// cancelled and its result discarded; the next poll is scheduled at
// now+interval, not on the old schedule.
func (s *RealtimeSync) SetInterval(d time.Duration) {
	s.mu.Lock()
	s.interval = d
	s.gen++
	if s.pollCancel != nil {
		s.pollCancel()
	}
	s.mu.Unlock()

	s.gw.SetRateLimit(d)
	select {
	case s.reschedule <- struct{}{}:
	default:
	}
	s.log.Info().Dur("interval", d).Msg("realtime interval changed")
}

func (s *RealtimeSync) currentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Run drives the poll loop until ctx is done or a terminal auth failure
// stops it. Call in its own goroutine.
func (s *RealtimeSync) Run(ctx context.Context) {
	s.mu.Lock()
	s.state.Running = true
	s.mu.Unlock()

	timer := time.NewTimer(s.currentInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.state.Running = false
			s.mu.Unlock()
			return
		case <-s.reschedule:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.currentInterval())
		case <-timer.C:
			if s.pollOnce(ctx) == pollTerminal {
				s.log.Error().Msg("realtime sync stopped: re-authentication required")
				return
			}
			timer.Reset(s.currentInterval())
		}
	}
}

// PollNow runs one poll synchronously. Exercised by Run and by tests.
func (s *RealtimeSync) PollNow(ctx context.Context) {
	s.pollOnce(ctx)
}

func (s *RealtimeSync) pollOnce(ctx context.Context) pollOutcome {
	s.mu.Lock()
	gen := s.gen
	pollCtx, cancel := context.WithTimeout(ctx, s.pollTimeout)
	s.pollCancel = cancel
	s.mu.Unlock()

	reading, err := s.gw.ReadInstantaneous(pollCtx)
	cancel()

	s.mu.Lock()
	s.pollCancel = nil
	discarded := gen != s.gen
	s.mu.Unlock()
	if discarded {
		s.log.Debug().Msg("in-flight poll discarded after interval change")
		return pollDiscarded
	}

	switch {
	case err == nil:
		s.recordSuccess(reading)
		return pollSuccess
	case gateway.IsPartialData(err):
		// Schema drift, not connectivity: skip the tick without counting
		// a failure.
		s.log.Debug().Err(err).Msg("partial realtime response, skipping tick")
		return pollPartial
	case gateway.IsAuth(err):
		s.mu.Lock()
		s.state.LastError = err.Error()
		s.state.ReauthRequired = true
		s.state.Running = false
		s.mu.Unlock()
		metrics.PollFailure.WithLabelValues("realtime", "auth").Inc()
		return pollTerminal
	default:
		s.recordFailure(err)
		return pollTransient
	}
}

func (s *RealtimeSync) recordSuccess(r domain.RealtimeReading) {
	s.windows[domain.ChannelPower].Push(r.PowerW, r.ReadAt)
	s.windows[domain.ChannelSolar].Push(r.SolarW, r.ReadAt)
	if r.FrequencyHz > 0 {
		s.windows[domain.ChannelFrequency].Push(r.FrequencyHz, r.ReadAt)
	}
	if len(r.VoltageV) > 0 {
		s.windows[domain.ChannelVoltageL1].Push(r.VoltageV[0], r.ReadAt)
	}
	if len(r.VoltageV) > 1 {
		s.windows[domain.ChannelVoltageL2].Push(r.VoltageV[1], r.ReadAt)
	}

	snap := r
	s.snapshot.Store(&snap)

	s.mu.Lock()
	s.state.LastSuccess = r.ReadAt
	s.state.LastError = ""
	s.state.ConsecutiveFailures = 0
	s.state.Degraded = false
	s.mu.Unlock()

	metrics.PollSuccess.WithLabelValues("realtime").Inc()
	metrics.LoopDegraded.WithLabelValues("realtime").Set(0)
	s.log.Debug().Float64("power_w", r.PowerW).Float64("solar_w", r.SolarW).Msg("realtime update")

	for _, fn := range s.subs {
		fn(r)
	}
}

func (s *RealtimeSync) recordFailure(err error) {
	s.mu.Lock()
	s.state.LastError = err.Error()
	s.state.ConsecutiveFailures++
	degraded := s.state.ConsecutiveFailures >= s.degradedAfter
	justDegraded := degraded && !s.state.Degraded
	s.state.Degraded = degraded
	failures := s.state.ConsecutiveFailures
	s.mu.Unlock()

	metrics.PollFailure.WithLabelValues("realtime", "transient").Inc()
	if degraded {
		metrics.LoopDegraded.WithLabelValues("realtime").Set(1)
	}
	if justDegraded {
		s.log.Warn().Int("consecutive_failures", failures).Msg("realtime sync degraded")
	} else {
		s.log.Debug().Err(err).Int("consecutive_failures", failures).Msg("realtime poll failed, will retry")
	}
}
