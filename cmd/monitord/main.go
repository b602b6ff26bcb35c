package main

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wattscope/wattscope/internal/app"
	"github.com/wattscope/wattscope/internal/config"
	"github.com/wattscope/wattscope/internal/httpapi"
	"github.com/wattscope/wattscope/internal/metrics"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	a, err := app.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("wiring failed")
	}
	defer a.Stop()

	a.Start(context.Background())

	go metrics.Serve(config.MetricsAddr(), log.Logger)

	srv := fiber.New()
	httpapi.Register(srv, a.APIDeps())

	addr := config.APIAddr()
	log.Info().Str("addr", addr).Msg("api listening")
	log.Fatal().Err(srv.Listen(addr)).Msg("server exit")
}
