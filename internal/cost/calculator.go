// Package cost computes variable energy charges from tariff rates.
// Figures exclude taxes, fixed monthly charges and utility credits.
package cost

import "time"

// Default rates in USD per kWh.
const (
	DefaultRate        = 0.12
	DefaultSolarCredit = 0.10
)

// TOUPeriod is one time-of-use rate band. Hours are half-open [Start, End)
// in local time.
type TOUPeriod struct {
	Rate  float64
	Start int
	End   int
}

// Calculator prices consumption and solar production. Pure: no state
// beyond configuration.
type Calculator struct {
	energyRate       float64 // generation/supply charge per kWh
	distributionRate float64 // delivery/transmission charge per kWh
	solarCredit      float64 // credit per produced kWh
	timeOfUse        []TOUPeriod
}

// New builds a calculator. Non-positive rates fall back to defaults.
func New(energyRate, distributionRate, solarCredit float64, tou []TOUPeriod) *Calculator {
	if energyRate <= 0 {
		energyRate = DefaultRate
	}
	if solarCredit < 0 {
		solarCredit = DefaultSolarCredit
	}
	return &Calculator{
		energyRate:       energyRate,
		distributionRate: distributionRate,
		solarCredit:      solarCredit,
		timeOfUse:        tou,
	}
}

// CurrentRate returns the applicable per-kWh rate at t, including
// distribution charges.
func (c *Calculator) CurrentRate(t time.Time) float64 {
	hour := t.Hour()
	for _, p := range c.timeOfUse {
		if p.Start <= hour && hour < p.End {
			return p.Rate + c.distributionRate
		}
	}
	return c.energyRate + c.distributionRate
}

// InstantaneousCost returns the cost per hour at the given power draw.
func (c *Calculator) InstantaneousCost(powerW float64, t time.Time) float64 {
	return powerW / 1000.0 * c.CurrentRate(t)
}

// DailyCost prices a day's usage at the flat rate.
func (c *Calculator) DailyCost(usageKWh float64) float64 {
	return usageKWh * (c.energyRate + c.distributionRate)
}

// SolarSavings returns the credit earned for produced energy.
func (c *Calculator) SolarSavings(productionKWh float64) float64 {
	return productionKWh * c.solarCredit
}

// NetDailyCost is usage cost minus solar credit, floored at zero.
func (c *Calculator) NetDailyCost(usageKWh, productionKWh float64) float64 {
	net := c.DailyCost(usageKWh) - c.SolarSavings(productionKWh)
	if net < 0 {
		return 0
	}
	return net
}

// ProjectMonthly extrapolates a month's cost from usage so far.
func (c *Calculator) ProjectMonthly(usageSoFarKWh float64, daysElapsed, daysInMonth int) float64 {
	if daysElapsed <= 0 {
		return 0
	}
	daily := usageSoFarKWh / float64(daysElapsed)
	return c.DailyCost(daily * float64(daysInMonth))
}
