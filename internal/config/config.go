package config

import (
	"time"

	"github.com/spf13/viper"
)

// Realtime polling bounds. The monitor rate-limits below 5s and anything
// above 300s is no longer "near real time".
const (
	MinRealtimeInterval = 5 * time.Second
	MaxRealtimeInterval = 300 * time.Second
)

func Load() error {
	// HTTP surface
	viper.SetDefault("API_ADDR", ":8080")
	viper.SetDefault("METRICS_ADDR", ":9090")

	// Monitor gateway
	viper.SetDefault("MONITOR_API_URL", "https://api.sense.com/apiservice/api/v1")
	viper.SetDefault("MONITOR_WS_URL", "wss://clientrt.sense.com/monitors/%s/realtimefeed")
	viper.SetDefault("MONITOR_EMAIL", "")
	viper.SetDefault("MONITOR_PASSWORD", "")
	viper.SetDefault("MONITOR_TIMEOUT", "30s")

	// Sync loops
	viper.SetDefault("REALTIME_INTERVAL", "60s")
	viper.SetDefault("TREND_INTERVAL", "300s")
	viper.SetDefault("DEGRADED_THRESHOLD", 5)

	// Statistics / anomaly
	viper.SetDefault("WINDOW_CAPACITY", 100)
	viper.SetDefault("ANOMALY_MULTIPLIER", 2.0)

	// Insights
	viper.SetDefault("BUDGET_TIER", "medium")
	viper.SetDefault("OPENAI_API_KEY", "")
	viper.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	viper.SetDefault("GENERATOR_TIMEOUT", "30s")

	// Tariff
	viper.SetDefault("ENERGY_RATE", 0.12)
	viper.SetDefault("SOLAR_CREDIT_RATE", 0.10)
	viper.SetDefault("DISTRIBUTION_RATE", 0.0)

	// Optional collaborators (keep for local dev)
	viper.SetDefault("DB_DSN", "")
	viper.SetDefault("MQTT_BROKER", "")
	viper.SetDefault("MQTT_TOPIC_PREFIX", "wattscope")

	viper.AutomaticEnv()
	return nil
}

func APIAddr() string     { return viper.GetString("API_ADDR") }
func MetricsAddr() string { return viper.GetString("METRICS_ADDR") }

func MonitorAPIURL() string           { return viper.GetString("MONITOR_API_URL") }
func MonitorWSURL() string            { return viper.GetString("MONITOR_WS_URL") }
func MonitorEmail() string            { return viper.GetString("MONITOR_EMAIL") }
func MonitorPassword() string         { return viper.GetString("MONITOR_PASSWORD") }
func MonitorTimeout() time.Duration   { return viper.GetDuration("MONITOR_TIMEOUT") }
func TrendInterval() time.Duration    { return viper.GetDuration("TREND_INTERVAL") }
func DegradedThreshold() int          { return viper.GetInt("DEGRADED_THRESHOLD") }
func WindowCapacity() int             { return viper.GetInt("WINDOW_CAPACITY") }
func AnomalyMultiplier() float64      { return viper.GetFloat64("ANOMALY_MULTIPLIER") }
func BudgetTier() string              { return viper.GetString("BUDGET_TIER") }
func OpenAIAPIKey() string            { return viper.GetString("OPENAI_API_KEY") }
func OpenAIModel() string             { return viper.GetString("OPENAI_MODEL") }
func GeneratorTimeout() time.Duration { return viper.GetDuration("GENERATOR_TIMEOUT") }
func EnergyRate() float64             { return viper.GetFloat64("ENERGY_RATE") }
func SolarCreditRate() float64        { return viper.GetFloat64("SOLAR_CREDIT_RATE") }
func DistributionRate() float64       { return viper.GetFloat64("DISTRIBUTION_RATE") }
func DBDSN() string                   { return viper.GetString("DB_DSN") }
func MQTTBroker() string              { return viper.GetString("MQTT_BROKER") }
func MQTTTopicPrefix() string         { return viper.GetString("MQTT_TOPIC_PREFIX") }

// RealtimeInterval returns the configured realtime poll interval clamped
// to the supported bounds.
func RealtimeInterval() time.Duration {
	return ClampRealtimeInterval(viper.GetDuration("REALTIME_INTERVAL"))
}

// ClampRealtimeInterval bounds d to [MinRealtimeInterval, MaxRealtimeInterval].
func ClampRealtimeInterval(d time.Duration) time.Duration {
	if d < MinRealtimeInterval {
		return MinRealtimeInterval
	}
	if d > MaxRealtimeInterval {
		return MaxRealtimeInterval
	}
	return d
}
