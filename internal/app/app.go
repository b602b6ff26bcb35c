// Package app wires the gateway, sync loops, detector, scheduler and the
// optional collaborators into one runnable unit.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/wattscope/wattscope/internal/anomaly"
	"github.com/wattscope/wattscope/internal/archive"
	"github.com/wattscope/wattscope/internal/config"
	"github.com/wattscope/wattscope/internal/cost"
	"github.com/wattscope/wattscope/internal/domain"
	"github.com/wattscope/wattscope/internal/gateway"
	"github.com/wattscope/wattscope/internal/httpapi"
	"github.com/wattscope/wattscope/internal/insight"
	"github.com/wattscope/wattscope/internal/publish"
	"github.com/wattscope/wattscope/internal/syncer"
)

// insightTick is how often the scheduler re-evaluates feature due-ness.
// Cadences are per feature; this only bounds scheduling latency.
const insightTick = time.Minute

// App holds every wired component. Build with New, start with Start.
type App struct {
	Log      zerolog.Logger
	Gateway  *gateway.Client
	Realtime *syncer.RealtimeSync
	Trends   *syncer.TrendSync
	Detector *anomaly.Detector
	Insights *insight.Scheduler
	Calc     *cost.Calculator
	Archive  *archive.Recorder
	Pub      *publish.Publisher

	cancel context.CancelFunc
	wsFeed bool
}

// New builds the full component graph from the loaded configuration.
// Nothing is polled and nothing listens until Start.
func New(log zerolog.Logger) (*App, error) {
	gw := gateway.NewClient(
		config.MonitorAPIURL(),
		config.MonitorWSURL(),
		config.MonitorEmail(),
		config.MonitorPassword(),
		config.MonitorTimeout(),
		log,
	)

	rt := syncer.NewRealtimeSync(gw, config.RealtimeInterval(), config.MonitorTimeout(), config.WindowCapacity(), log)
	rt.SetDegradedThreshold(config.DegradedThreshold())
	tr := syncer.NewTrendSync(gw, config.TrendInterval(), config.MonitorTimeout(), log)
	tr.SetDegradedThreshold(config.DegradedThreshold())

	det := anomaly.NewDetector(rt.Window(domain.ChannelPower), config.AnomalyMultiplier(), time.Local, log)
	rt.Subscribe(det.Observe)

	calc := cost.New(config.EnergyRate(), config.DistributionRate(), config.SolarCreditRate(), nil)

	var gen insight.Generator
	if key := config.OpenAIAPIKey(); key != "" {
		gen = insight.NewOpenAIGenerator(key, config.OpenAIModel(), log)
	} else {
		log.Info().Msg("no OpenAI key configured, using built-in insight generator")
		gen = insight.BasicGenerator{}
	}
	sched := insight.NewScheduler(gen, insight.NewSnapshotSource(rt, tr, det, calc), config.GeneratorTimeout(), log)
	tier, err := insight.ParseTier(config.BudgetTier())
	if err != nil {
		return nil, err
	}
	sched.ApplyTier(tier)
	sched.SetGate(insight.FeatureAnomalyExplanation, func() bool {
		return det.Snapshot().Anomalous
	})

	a := &App{
		Log:      log,
		Gateway:  gw,
		Realtime: rt,
		Trends:   tr,
		Detector: det,
		Insights: sched,
		Calc:     calc,
		wsFeed:   config.MonitorWSURL() != "" && config.MonitorEmail() != "",
	}

	// Recorder and publisher dial their backends in Start; the observer
	// methods tolerate the nil collaborators until then (and forever when
	// unconfigured).
	rt.Subscribe(func(r domain.RealtimeReading) { a.Archive.RecordRealtime(r) })
	rt.Subscribe(func(r domain.RealtimeReading) { a.Pub.PublishRealtime(r) })
	tr.Subscribe(func(r domain.TrendReading) { a.Archive.RecordTrend(r) })
	tr.Subscribe(func(r domain.TrendReading) { a.Pub.PublishTrend(r) })
	det.Subscribe(func(s domain.AnomalySnapshot) { a.Pub.PublishAnomaly(s) })

	return a, nil
}

// APIDeps returns the handler dependency set.
func (a *App) APIDeps() httpapi.Deps {
	return httpapi.Deps{
		Realtime: a.Realtime,
		Trends:   a.Trends,
		Detector: a.Detector,
		Insights: a.Insights,
		Calc:     a.Calc,
	}
}

// Start dials the optional collaborators, launches the poll loops, the
// websocket feed and the insight scheduler, then returns. Stop cancels
// them. An unreachable database or broker disables that collaborator
// rather than failing startup.
func (a *App) Start(ctx context.Context) {
	if rec, err := archive.Open(config.DBDSN(), a.Log); err != nil {
		a.Log.Warn().Err(err).Msg("archive disabled: database unreachable")
	} else {
		a.Archive = rec
	}
	if pub, err := publish.Connect(config.MQTTBroker(), config.MQTTTopicPrefix(), a.Log); err != nil {
		a.Log.Warn().Err(err).Msg("publisher disabled: broker unreachable")
	} else {
		a.Pub = pub
	}

	ctx, a.cancel = context.WithCancel(ctx)
	if a.wsFeed {
		go a.Gateway.RunRealtimeFeed(ctx)
	}
	go a.Realtime.Run(ctx)
	go a.Trends.Run(ctx)
	go a.Insights.Run(ctx, insightTick)
	a.Log.Info().
		Dur("realtime_interval", a.Realtime.State().Interval).
		Dur("trend_interval", a.Trends.State().Interval).
		Str("tier", string(a.Insights.Tier())).
		Msg("loops started")
}

// Stop cancels the loops and closes the optional collaborators.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.Pub.Close()
	a.Archive.Close()
}
