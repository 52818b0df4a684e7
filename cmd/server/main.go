package main

import (
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/goboard/internal/server"
	"github.com/Tyrowin/goboard/internal/store"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := server.LoadConfig(cfgPath)
	if err != nil {
		logger := zerolog.New(os.Stderr)
		logger.Error().Err(err).Msg("configuration error")
		os.Exit(1)
	}
	server.SetConfig(cfg)

	log := newLogger(cfg.LogLevel)
	log.Info().Str("port", cfg.Port).Str("store", cfg.Store.Backend).Msg("starting bulletin board server")

	st, err := openStore(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open persistence store")
	}

	snap, err := st.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load persisted state")
	}

	state, err := server.NewStateFromSnapshot(snap)
	if err != nil {
		log.Fatal().Err(err).Msg("persisted state is corrupt")
	}

	hub := server.NewHub(state, log)
	go hub.Run()

	handler := server.NewHandler(hub)
	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(handler))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
		}
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown did not complete cleanly")
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("hub shutdown did not complete cleanly")
	}

	// Persist the final state. A save failure here is fatal: exiting quietly
	// would silently discard the boards.
	if err := st.Save(state.Snapshot()); err != nil {
		log.Fatal().Err(err).Msg("failed to persist state")
	}
	if err := st.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close persistence store")
	}

	log.Info().Msg("shutdown complete")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(cw).Level(lvl).With().Timestamp().Logger()
}

func openStore(cfg server.StoreConfig) (store.Store, error) {
	if cfg.Backend == server.StoreBackendBadger {
		return store.NewBadgerStore(cfg.Dir)
	}
	return store.NewFileStore(cfg.Dir)
}
