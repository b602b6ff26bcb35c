package insight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	for _, valid := range []string{"low", "medium", "high", "disabled"} {
		tier, err := ParseTier(valid)
		require.NoError(t, err)
		assert.Equal(t, Tier(valid), tier)
	}
	_, err := ParseTier("unlimited")
	assert.Error(t, err)
}

func TestResolveTierShape(t *testing.T) {
	assert.Empty(t, Resolve(TierDisabled))

	low := Resolve(TierLow)
	medium := Resolve(TierMedium)
	high := Resolve(TierHigh)

	// Each tier is a superset of the one below it.
	for id := range low {
		_, ok := medium[id]
		assert.True(t, ok, "medium must include low feature %s", id)
	}
	for id := range medium {
		_, ok := high[id]
		assert.True(t, ok, "high must include medium feature %s", id)
	}

	assert.NotContains(t, low, FeatureSolarCoach)
	assert.NotContains(t, medium, FeatureComparative)
	assert.Contains(t, high, FeatureComparative)
}

func TestResolveCadencesTightenWithTier(t *testing.T) {
	medium := Resolve(TierMedium)
	high := Resolve(TierHigh)

	assert.Equal(t, 7*24*time.Hour, medium[FeatureBillForecast].Cadence)
	assert.Equal(t, 24*time.Hour, high[FeatureBillForecast].Cadence)
	assert.Equal(t, time.Hour, medium[FeatureSolarCoach].Cadence)
	assert.Equal(t, 5*time.Minute, high[FeatureSolarCoach].Cadence)

	// Token allowances grow with the tier.
	assert.Greater(t, high[FeatureDailyInsights].MaxTokens, medium[FeatureDailyInsights].MaxTokens)
}

func TestBuildPromptIncludesContext(t *testing.T) {
	p := BuildPrompt(FeatureDailyInsights, map[string]any{"daily_usage_kwh": 18.4})
	assert.Contains(t, p, "daily_usage_kwh")
	assert.Contains(t, p, "18.4")
	assert.Contains(t, p, "actionable recommendations")
}
