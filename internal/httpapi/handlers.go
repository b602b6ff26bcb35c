// Package httpapi exposes the live snapshot surfaces over HTTP. Every
// handler is a non-blocking snapshot read; nothing here waits on a poll.
package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/wattscope/wattscope/internal/anomaly"
	"github.com/wattscope/wattscope/internal/config"
	"github.com/wattscope/wattscope/internal/cost"
	"github.com/wattscope/wattscope/internal/domain"
	"github.com/wattscope/wattscope/internal/insight"
	"github.com/wattscope/wattscope/internal/syncer"
)

// Deps carries the snapshot surfaces the handlers read from.
type Deps struct {
	Realtime *syncer.RealtimeSync
	Trends   *syncer.TrendSync
	Detector *anomaly.Detector
	Insights *insight.Scheduler
	Calc     *cost.Calculator
}

// Register mounts all routes on the app.
func Register(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	app.Get("/realtime", func(c *fiber.Ctx) error {
		reading, ok := d.Realtime.Latest()
		if !ok {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no reading yet"})
		}
		return c.JSON(fiber.Map{
			"reading": reading,
			"power":   d.Realtime.Window(domain.ChannelPower).Snapshot(),
			"solar":   d.Realtime.Window(domain.ChannelSolar).Snapshot(),
			"state":   d.Realtime.State(),
		})
	})

	app.Get("/trends/:period", func(c *fiber.Ctx) error {
		period := domain.TrendPeriod(c.Params("period"))
		if !period.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown period"})
		}
		trend, ok := d.Trends.Latest(period)
		if !ok {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no roll-up yet"})
		}
		return c.JSON(trend)
	})

	app.Get("/trends", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"periods": d.Trends.All(), "state": d.Trends.State()})
	})

	app.Get("/anomaly", func(c *fiber.Ctx) error {
		return c.JSON(d.Detector.Snapshot())
	})

	app.Get("/insights/:feature", func(c *fiber.Ctx) error {
		result, ok := d.Insights.Cached(c.Params("feature"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no insight generated yet"})
		}
		return c.JSON(result)
	})

	app.Get("/insights", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"features": d.Insights.Features()})
	})

	app.Get("/cost", func(c *fiber.Ctx) error {
		now := time.Now()
		out := fiber.Map{"rate_per_kwh": d.Calc.CurrentRate(now)}
		if reading, ok := d.Realtime.Latest(); ok {
			out["cost_per_hour"] = d.Calc.InstantaneousCost(reading.PowerW, now)
		}
		if daily, ok := d.Trends.Latest(domain.TrendDaily); ok {
			out["daily_cost"] = d.Calc.NetDailyCost(daily.UsageKWh, daily.ProductionKWh)
			out["solar_savings"] = d.Calc.SolarSavings(daily.ProductionKWh)
		}
		if monthly, ok := d.Trends.Latest(domain.TrendMonthly); ok {
			out["projected_monthly"] = d.Calc.ProjectMonthly(monthly.UsageKWh, now.Day(), daysIn(now))
		}
		return c.JSON(out)
	})

	app.Put("/config/interval", func(c *fiber.Ctx) error {
		var body struct {
			Interval string `json:"interval"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		dur, err := time.ParseDuration(body.Interval)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid duration"})
		}
		applied := config.ClampRealtimeInterval(dur)
		d.Realtime.SetInterval(applied)
		return c.JSON(fiber.Map{"interval": applied.String()})
	})

	app.Put("/config/tier", func(c *fiber.Ctx) error {
		var body struct {
			Tier string `json:"tier"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		tier, err := insight.ParseTier(body.Tier)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		d.Insights.ApplyTier(tier)
		return c.JSON(fiber.Map{"tier": string(tier)})
	})
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
