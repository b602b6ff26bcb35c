// Package insight schedules budget-tiered natural-language insight
// generation over the derived statistics.
package insight

import (
	"fmt"
	"time"
)

// Tier names a budget level. Changing tier swaps the whole feature
// mapping atomically.
type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierDisabled Tier = "disabled"
)

// ParseTier validates a configured tier string.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierLow, TierMedium, TierHigh, TierDisabled:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown budget tier %q", s)
	}
}

// Feature identifiers.
const (
	FeatureDailyInsights        = "daily_insights"
	FeatureAnomalyExplanation   = "anomaly_explanation"
	FeatureSolarCoach           = "solar_coach"
	FeatureBillForecast         = "bill_forecast"
	FeatureDeviceIdentification = "device_identification"
	FeatureWeeklyStory          = "weekly_story"
	FeatureOptimization         = "optimization_suggestions"
	FeatureComparative          = "comparative_analysis"
)

// Setting is one feature's cadence and token allowance under a tier.
type Setting struct {
	Cadence   time.Duration
	MaxTokens int
}

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// Resolve maps a tier to its enabled features. Pure lookup; features
// absent from the result are disabled under that tier.
func Resolve(tier Tier) map[string]Setting {
	switch tier {
	case TierLow:
		// Minimal usage, roughly $1-2/month.
		return map[string]Setting{
			FeatureDailyInsights:      {Cadence: day, MaxTokens: 500},
			FeatureAnomalyExplanation: {Cadence: time.Hour, MaxTokens: 300},
			FeatureBillForecast:       {Cadence: week, MaxTokens: 400},
			FeatureWeeklyStory:        {Cadence: week, MaxTokens: 600},
			FeatureOptimization:       {Cadence: week, MaxTokens: 500},
		}
	case TierMedium:
		// Balanced usage, roughly $3-5/month.
		return map[string]Setting{
			FeatureDailyInsights:        {Cadence: day, MaxTokens: 800},
			FeatureAnomalyExplanation:   {Cadence: time.Hour, MaxTokens: 500},
			FeatureSolarCoach:           {Cadence: time.Hour, MaxTokens: 200},
			FeatureBillForecast:         {Cadence: week, MaxTokens: 600},
			FeatureDeviceIdentification: {Cadence: day, MaxTokens: 400},
			FeatureWeeklyStory:          {Cadence: week, MaxTokens: 1000},
			FeatureOptimization:         {Cadence: week, MaxTokens: 800},
		}
	case TierHigh:
		// Full feature set, roughly $8-12/month.
		return map[string]Setting{
			FeatureDailyInsights:        {Cadence: day, MaxTokens: 1500},
			FeatureAnomalyExplanation:   {Cadence: time.Hour, MaxTokens: 800},
			FeatureSolarCoach:           {Cadence: 5 * time.Minute, MaxTokens: 300},
			FeatureBillForecast:         {Cadence: day, MaxTokens: 1000},
			FeatureDeviceIdentification: {Cadence: day, MaxTokens: 600},
			FeatureWeeklyStory:          {Cadence: week, MaxTokens: 2000},
			FeatureOptimization:         {Cadence: day, MaxTokens: 1200},
			FeatureComparative:          {Cadence: 30 * day, MaxTokens: 1000},
		}
	default:
		return map[string]Setting{}
	}
}
