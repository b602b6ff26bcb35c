package insight

import (
	"encoding/json"
	"fmt"
)

const systemPersona = `You are an expert energy analyst helping homeowners understand and optimize their electricity usage.
Provide clear, actionable insights in a friendly, conversational tone. Focus on practical recommendations that save money and energy.
Be specific with numbers and percentages. Keep responses concise but informative.`

var featurePrompts = map[string]string{
	FeatureDailyInsights: `Analyze yesterday's energy usage and provide:
1. A brief summary (2-3 sentences)
2. Top 3 specific, actionable recommendations to save energy/money
3. Notable patterns or concerns

Be specific with numbers. Focus on practical advice.`,

	FeatureAnomalyExplanation: `An unusual power usage spike was detected. Analyze the data and provide:
1. Most likely cause(s) of the spike
2. Whether this is concerning or normal
3. Recommended actions

Be specific and practical.`,

	FeatureSolarCoach: `Provide real-time solar optimization advice:
1. Current status (1 sentence)
2. Best action right now (run appliance, wait, etc.)
3. Timing for any recommended actions

Be concise and actionable. Focus on maximizing solar self-consumption.`,

	FeatureBillForecast: `Forecast this month's electricity bill:
1. Projected total cost with confidence level
2. Main factors driving the projection
3. Top 3 specific actions to reduce the bill

Be specific with dollar amounts and percentages.`,

	FeatureDeviceIdentification: `Analyze the power signature and identify what device it likely is:
1. Most likely device type (with confidence %)
2. Reasoning based on power signature and patterns
3. How to confirm the identification`,

	FeatureWeeklyStory: `Create an engaging narrative about this week's energy usage:
1. Opening summary (what kind of week was it?)
2. Notable achievements or concerns
3. Looking ahead: recommendations for next week

Write in a friendly, storytelling style. Make the data interesting and relatable.`,

	FeatureOptimization: `Analyze usage patterns and suggest optimizations:
1. Top 3 optimization opportunities (with savings estimate)
2. For each: what to change and why it saves money

Focus on practical, implementable suggestions.`,

	FeatureComparative: `Compare this home's energy usage to similar homes:
1. Overall performance (better/worse/average)
2. What you're doing well
3. Areas for improvement with specific recommendations

Be encouraging but honest.`,
}

// BuildPrompt assembles the user prompt for a feature: the serialized
// context payload and the feature task. The persona travels separately
// as the system message.
func BuildPrompt(feature string, payload map[string]any) string {
	task, ok := featurePrompts[feature]
	if !ok {
		task = "Summarize the energy data below and point out anything notable."
	}
	contextJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		contextJSON = []byte("{}")
	}
	return fmt.Sprintf("Context Data:\n%s\n\nTask: %s\n\nPlease provide a helpful, specific response based on the data above.",
		contextJSON, task)
}
