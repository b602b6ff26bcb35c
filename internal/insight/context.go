package insight

import (
	"time"

	"github.com/wattscope/wattscope/internal/anomaly"
	"github.com/wattscope/wattscope/internal/cost"
	"github.com/wattscope/wattscope/internal/domain"
	"github.com/wattscope/wattscope/internal/syncer"
)

// SnapshotSource builds feature payloads from the live snapshot surfaces.
// All reads are non-blocking snapshot reads.
type SnapshotSource struct {
	realtime *syncer.RealtimeSync
	trends   *syncer.TrendSync
	detector *anomaly.Detector
	calc     *cost.Calculator
}

// NewSnapshotSource wires the payload builder.
func NewSnapshotSource(rt *syncer.RealtimeSync, tr *syncer.TrendSync, det *anomaly.Detector, calc *cost.Calculator) *SnapshotSource {
	return &SnapshotSource{realtime: rt, trends: tr, detector: det, calc: calc}
}

// Payload assembles the prompt context for one feature.
func (s *SnapshotSource) Payload(feature string) map[string]any {
	now := time.Now()
	power := s.realtime.Window(domain.ChannelPower).Snapshot()
	solar := s.realtime.Window(domain.ChannelSolar).Snapshot()
	anomalySnap := s.detector.Snapshot()

	payload := map[string]any{
		"date":             now.Format("2006-01-02"),
		"current_power_w":  power.Latest,
		"avg_power_w":      power.Mean,
		"peak_power_w":     anomalySnap.PeakTodayW,
		"power_stddev":     power.StdDev,
		"recent_15min_avg": s.realtime.Window(domain.ChannelPower).RecentAverage(15*time.Minute, now),
		"solar_power_w":    solar.Latest,
		"solar_peak_w":     solar.Max,
	}

	for period, trend := range s.trends.All() {
		payload[string(period)+"_usage_kwh"] = trend.UsageKWh
		payload[string(period)+"_production_kwh"] = trend.ProductionKWh
	}

	switch feature {
	case FeatureAnomalyExplanation:
		payload["expected_power_w"] = anomalySnap.MeanTodayW
		payload["deviation_sigma"] = anomalySnap.DeviationScore
		payload["time"] = now.Format("3:04 PM")
	case FeatureSolarCoach:
		excess := solar.Latest - power.Latest
		payload["excess_w"] = excess
		payload["time"] = now.Format("3:04 PM")
	case FeatureBillForecast:
		if trend, ok := s.trends.Latest(domain.TrendMonthly); ok {
			daysElapsed := now.Day()
			daysInMonth := daysIn(now)
			payload["days_elapsed"] = daysElapsed
			payload["days_in_month"] = daysInMonth
			payload["month_cost_so_far"] = s.calc.DailyCost(trend.UsageKWh)
			payload["projected_cost"] = s.calc.ProjectMonthly(trend.UsageKWh, daysElapsed, daysInMonth)
		}
	case FeatureDailyInsights:
		if trend, ok := s.trends.Latest(domain.TrendDaily); ok {
			payload["daily_cost"] = s.calc.NetDailyCost(trend.UsageKWh, trend.ProductionKWh)
			payload["solar_savings"] = s.calc.SolarSavings(trend.ProductionKWh)
		}
	}
	return payload
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
