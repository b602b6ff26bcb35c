package domain

import "time"

// Channel tags one telemetry stream from the monitor.
type Channel string

const (
	ChannelPower     Channel = "power"
	ChannelSolar     Channel = "solar"
	ChannelVoltageL1 Channel = "voltage_l1"
	ChannelVoltageL2 Channel = "voltage_l2"
	ChannelFrequency Channel = "frequency"
)

// Sample is one timestamped scalar reading on a channel. Immutable once
// recorded.
type Sample struct {
	Channel   Channel   `json:"channel"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// RealtimeReading is one instantaneous read from the monitor.
type RealtimeReading struct {
	PowerW      float64   `json:"power_w"`
	SolarW      float64   `json:"solar_w"`
	VoltageV    []float64 `json:"voltage_v"`
	FrequencyHz float64   `json:"frequency_hz"`
	ReadAt      time.Time `json:"read_at"`
}

// TrendPeriod selects one historical roll-up scale.
type TrendPeriod string

const (
	TrendDaily   TrendPeriod = "daily"
	TrendWeekly  TrendPeriod = "weekly"
	TrendMonthly TrendPeriod = "monthly"
	TrendYearly  TrendPeriod = "yearly"
)

// TrendPeriods lists all roll-up scales in fetch order.
func TrendPeriods() []TrendPeriod {
	return []TrendPeriod{TrendDaily, TrendWeekly, TrendMonthly, TrendYearly}
}

// Valid reports whether p names a known roll-up scale.
func (p TrendPeriod) Valid() bool {
	switch p {
	case TrendDaily, TrendWeekly, TrendMonthly, TrendYearly:
		return true
	default:
		return false
	}
}

// TrendReading is one roll-up for a period, in kWh.
type TrendReading struct {
	Period        TrendPeriod `json:"period"`
	UsageKWh      float64     `json:"usage_kwh"`
	ProductionKWh float64     `json:"production_kwh"`
	ReadAt        time.Time   `json:"read_at"`
}

// AnomalySnapshot is a point-in-time copy of the detector state.
type AnomalySnapshot struct {
	Anomalous      bool      `json:"anomalous"`
	DeviationScore float64   `json:"deviation_score"`
	PeakTodayW     float64   `json:"peak_today_w"`
	MeanTodayW     float64   `json:"mean_today_w"`
	SamplesToday   int       `json:"samples_today"`
	Day            time.Time `json:"day"`
}

// InsightResult is the cached output of one insight feature.
type InsightResult struct {
	Feature     string    `json:"feature"`
	Text        string    `json:"text"`
	GeneratedAt time.Time `json:"generated_at"`
	Stale       bool      `json:"stale"`
}
