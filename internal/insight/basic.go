package insight

import (
	"context"
	"fmt"
)

// BasicGenerator produces rule-based text without any model call. It is
// the fallback when no API key is configured, so insight endpoints stay
// populated on a fresh install.
type BasicGenerator struct{}

// Generate renders a canned summary from the payload numbers.
func (BasicGenerator) Generate(_ context.Context, feature string, payload map[string]any, _ int) (string, error) {
	switch feature {
	case FeatureDailyInsights:
		usage, _ := payload["daily_usage_kwh"].(float64)
		cost, _ := payload["daily_cost"].(float64)
		if cost > 0 {
			return fmt.Sprintf("You used %.1f kWh today, roughly $%.2f. Shifting heavy appliances to off-peak hours is the fastest way to trim that.", usage, cost), nil
		}
		return fmt.Sprintf("You used %.1f kWh today. Shifting heavy appliances to off-peak hours is the fastest way to trim that.", usage), nil
	case FeatureAnomalyExplanation:
		current, _ := payload["current_power_w"].(float64)
		expected, _ := payload["expected_power_w"].(float64)
		return fmt.Sprintf("Usage is %.0f W against a typical %.0f W for this time of day. Check for an appliance left running, such as an oven, space heater, or pool pump.", current, expected), nil
	case FeatureSolarCoach:
		excess, _ := payload["excess_w"].(float64)
		if excess > 0 {
			return fmt.Sprintf("You are exporting %.0f W of solar right now. Running the dishwasher or charging an EV would use it instead of selling it back at the lower credit rate.", excess), nil
		}
		return "Solar production currently covers less than your usage. Defer flexible loads until midday production peaks.", nil
	case FeatureBillForecast:
		projected, _ := payload["projected_cost"].(float64)
		return fmt.Sprintf("At the current pace your bill projects to about $%.2f this month.", projected), nil
	default:
		return "Energy usage looks steady. No specific recommendations right now.", nil
	}
}
