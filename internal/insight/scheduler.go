package insight

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wattscope/wattscope/internal/domain"
	"github.com/wattscope/wattscope/internal/metrics"
)

// Generator turns a feature's context payload into text. Calls may take
// seconds; the scheduler never waits for them on the tick path.
type Generator interface {
	Generate(ctx context.Context, feature string, payload map[string]any, maxTokens int) (string, error)
}

// ContextSource builds the prompt-context payload for a feature from the
// latest snapshots.
type ContextSource interface {
	Payload(feature string) map[string]any
}

type feature struct {
	id        string
	cadence   time.Duration
	maxTokens int
	enabled   bool
	lastRun   time.Time
	gate      func() bool // nil means always eligible

	cached   string
	cachedAt time.Time
	hasCache bool
	lastErr  string
}

// Scheduler owns the registered insight features and decides, per tick and
// per feature, whether to dispatch generation. Tick never blocks on the
// generator: it only decides and dispatches.
type Scheduler struct {
	gen     Generator
	source  ContextSource
	timeout time.Duration
	log     zerolog.Logger

	mu       sync.Mutex
	features map[string]*feature
	tier     Tier

	dispatchCtx context.Context // parent of generator calls; Run installs it
	wg          sync.WaitGroup
}

// NewScheduler builds an empty scheduler. Construction performs no
// generator calls; features arrive via ApplyTier or RegisterFeature.
func NewScheduler(gen Generator, source ContextSource, timeout time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		gen:         gen,
		source:      source,
		timeout:     timeout,
		log:         log.With().Str("component", "insight").Logger(),
		features:    make(map[string]*feature),
		dispatchCtx: context.Background(),
	}
}

// RegisterFeature adds or reconfigures one feature. A new feature has a
// zero lastRun, so it becomes due on the next eligible tick.
func (s *Scheduler) RegisterFeature(id string, cadence time.Duration, maxTokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerLocked(id, cadence, maxTokens)
}

func (s *Scheduler) registerLocked(id string, cadence time.Duration, maxTokens int) {
	if f, ok := s.features[id]; ok {
		f.cadence = cadence
		f.maxTokens = maxTokens
		f.enabled = true
		return
	}
	s.features[id] = &feature{id: id, cadence: cadence, maxTokens: maxTokens, enabled: true}
}

// SetGate installs a dispatch gate for a feature: when it returns false
// the feature is skipped without consuming its cadence window.
func (s *Scheduler) SetGate(id string, gate func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.features[id]; ok {
		f.gate = gate
	}
}

// ApplyTier atomically replaces the feature mapping. Features absent from
// the new tier are disabled but keep their cached result; features whose
// lastRun already exceeds the new cadence become due on the next tick.
func (s *Scheduler) ApplyTier(tier Tier) {
	settings := Resolve(tier)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tier = tier
	for id, f := range s.features {
		if _, ok := settings[id]; !ok {
			f.enabled = false
		}
	}
	for id, set := range settings {
		s.registerLocked(id, set.Cadence, set.MaxTokens)
	}
	s.log.Info().Str("tier", string(tier)).Int("enabled", len(settings)).Msg("budget tier applied")
}

// Tier returns the active tier.
func (s *Scheduler) Tier() Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tier
}

// Tick evaluates every registered feature at now and dispatches the due
// ones asynchronously. Returns the number of dispatches. Never blocks on
// generation; lastRun is taken optimistically at dispatch so a second
// Tick inside the cadence window cannot double-dispatch.
func (s *Scheduler) Tick(now time.Time) int {
	s.mu.Lock()
	var due []*feature
	for _, f := range s.features {
		if !f.enabled {
			continue
		}
		if !f.lastRun.IsZero() && now.Sub(f.lastRun) < f.cadence {
			continue
		}
		if f.gate != nil && !f.gate() {
			continue
		}
		f.lastRun = now
		due = append(due, f)
	}
	ctx := s.dispatchCtx
	s.mu.Unlock()

	for _, f := range due {
		s.dispatch(ctx, f.id, f.maxTokens)
	}
	return len(due)
}

func (s *Scheduler) dispatch(parent context.Context, id string, maxTokens int) {
	reqID := uuid.NewString()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(parent, s.timeout)
		defer cancel()

		payload := s.source.Payload(id)
		text, err := s.gen.Generate(ctx, id, payload, maxTokens)

		s.mu.Lock()
		f, ok := s.features[id]
		if ok {
			if err != nil {
				// Keep the previous cached result; stale beats absent.
				f.lastErr = err.Error()
			} else {
				f.cached = text
				f.cachedAt = time.Now()
				f.hasCache = true
				f.lastErr = ""
			}
		}
		s.mu.Unlock()

		if err != nil {
			metrics.GeneratorCalls.WithLabelValues(id, "failure").Inc()
			s.log.Warn().Err(err).Str("feature", id).Str("request_id", reqID).Msg("insight generation failed")
			return
		}
		metrics.GeneratorCalls.WithLabelValues(id, "success").Inc()
		s.log.Debug().Str("feature", id).Str("request_id", reqID).Msg("insight generated")
	}()
}

// Cached returns the feature's last generated text. Stale means the
// feature is currently disabled or the cache has outlived its cadence;
// a stale result is still returned (never cleared on failure or disable).
func (s *Scheduler) Cached(id string) (domain.InsightResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.features[id]
	if !ok || !f.hasCache {
		return domain.InsightResult{}, false
	}
	return domain.InsightResult{
		Feature:     id,
		Text:        f.cached,
		GeneratedAt: f.cachedAt,
		Stale:       !f.enabled || time.Since(f.cachedAt) > f.cadence,
	}, true
}

// Features lists registered feature ids, enabled or not.
func (s *Scheduler) Features() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.features))
	for id := range s.features {
		out = append(out, id)
	}
	return out
}

// Run ticks the scheduler until ctx is done. In-flight generator calls
// are cancelled through ctx on shutdown.
func (s *Scheduler) Run(ctx context.Context, tickEvery time.Duration) {
	s.mu.Lock()
	s.dispatchCtx = ctx
	s.mu.Unlock()

	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}
