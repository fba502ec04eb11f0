package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zakupai/lotsearch/internal/app"
	"github.com/zakupai/lotsearch/internal/health"
	"github.com/zakupai/lotsearch/internal/httpapi"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// .env is optional; real env always wins.
	_ = godotenv.Load()

	var (
		configPath string
		listenAddr string
		verbose    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to optional YAML config file")
	flag.StringVar(&listenAddr, "listen", "", "HTTP listen address (default :8080)")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	cfg := app.Config{ListenAddr: listenAddr, Verbose: verbose}
	app.ApplyEnvToConfig(&cfg)
	if configPath != "" {
		if err := app.LoadConfigFile(configPath, &cfg); err != nil {
			log.Fatal().Err(err).Msg("config file")
		}
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	checkers := []health.Checker{
		{Name: "metrics_db", Check: a.Metrics.Ping},
	}
	if ping := a.RedisPing(); ping != nil {
		checkers = append(checkers, health.Checker{Name: "redis", Check: ping})
	}

	srv := &http.Server{
		Addr:              a.Cfg.ListenAddr,
		Handler:           httpapi.NewRouter(a.Service, checkers...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go a.RunMaintenance(ctx, time.Hour)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", a.Cfg.ListenAddr).Msg("lotsearch listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("shut down cleanly")
}
