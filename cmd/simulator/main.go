// Simulator serves a fake monitor API for local development. Point
// monitord at it with MONITOR_API_URL=http://localhost:9091 and any
// credentials.
package main

import (
	"math"
	"math/rand"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// basePower returns a synthetic household load with a morning and an
// evening peak.
func basePower(t time.Time) float64 {
	h := float64(t.Hour()) + float64(t.Minute())/60
	load := 400.0
	load += 900 * math.Exp(-math.Pow(h-7.5, 2)/2)
	load += 1400 * math.Exp(-math.Pow(h-19, 2)/3)
	return load
}

func solarOutput(t time.Time) float64 {
	h := float64(t.Hour()) + float64(t.Minute())/60
	if h < 6 || h > 20 {
		return 0
	}
	return 3000 * math.Sin(math.Pi*(h-6)/14)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	app := fiber.New()

	app.Post("/authenticate", func(c *fiber.Ctx) error {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := c.BodyParser(&body); err != nil || body.Email == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid credentials"})
		}
		return c.JSON(fiber.Map{
			"access_token": "simulated-token",
			"user_id":      1,
			"monitors":     []fiber.Map{{"id": 1001}},
		})
	})

	app.Get("/app/monitors/:id/status", func(c *fiber.Ctx) error {
		now := time.Now()
		power := basePower(now) + rand.Float64()*150
		// Occasional spike so the anomaly path gets exercised.
		if rand.Float64() < 0.02 {
			power += 3000
		}
		return c.JSON(fiber.Map{
			"w":       power,
			"solar_w": solarOutput(now) + rand.Float64()*50,
			"voltage": []float64{119 + rand.Float64()*2, 120 + rand.Float64()*2},
			"hz":      59.95 + rand.Float64()*0.1,
		})
	})

	app.Get("/app/history/trends", func(c *fiber.Ctx) error {
		days := map[string]float64{"DAY": 1, "WEEK": 7, "MONTH": 30, "YEAR": 365}[c.Query("scale")]
		if days == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown scale"})
		}
		usage := days * (18 + rand.Float64()*6)
		production := days * (9 + rand.Float64()*4)
		return c.JSON(fiber.Map{
			"consumption": fiber.Map{"total": usage},
			"production":  fiber.Map{"total": production},
		})
	})

	addr := ":9091"
	log.Info().Str("addr", addr).Msg("simulator listening")
	log.Fatal().Err(app.Listen(addr)).Msg("server exit")
}
