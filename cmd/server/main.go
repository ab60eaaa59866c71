package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/yacall/internal/adapter/driven/device"
	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yacall/internal/adapter/driven/messaging/natsbus"
	"github.com/Wyydra/yacall/internal/adapter/driven/messaging/redisbus"
	repo "github.com/Wyydra/yacall/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/yacall/internal/adapter/driven/persistence/sqlite"
	handler "github.com/Wyydra/yacall/internal/adapter/driving/http"
	"github.com/Wyydra/yacall/internal/config"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "yacall.yaml", "path to the YAML config file")
	flag.Parse()

	w := zerolog.ConsoleWriter{Out: os.Stdout}
	log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	lvl, _ := cfg.LogLevel()
	zerolog.SetGlobalLevel(lvl)

	var closers []io.Closer

	var history port.CallHistory
	if cfg.History.DSN != "" {
		h, err := sqlite.Open(cfg.History.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open call history")
		}
		closers = append(closers, h)
		history = h
	}

	var hub *ws.Hub
	var messenger port.Messenger
	switch cfg.Messaging.Driver {
	case config.DriverNATS:
		nc, err := natsbus.Connect(natsbus.Config{
			URL:             cfg.Messaging.NATS.URL,
			CredentialsFile: cfg.Messaging.NATS.CredentialsFile,
			ReconnectWait:   cfg.Messaging.NATS.ReconnectWait,
			MaxReconnects:   cfg.Messaging.NATS.MaxReconnects,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect messaging")
		}
		defer nc.Close()
		messenger = natsbus.New(nc, cfg.Messaging.NATS.SubjectPrefix)

	case config.DriverRedis:
		rdb, err := redisbus.Open(context.Background(), cfg.Messaging.Redis.Addr, cfg.Messaging.Redis.PingTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect messaging")
		}
		closers = append(closers, rdb)
		messenger = redisbus.New(rdb, cfg.Messaging.Redis.ChannelPrefix)

	default:
		hub = ws.NewHub()
		go hub.Run()
		messenger = hub
	}

	bridge := device.NewBridge(cfg.Device.RequestTimeout)
	notifier := service.NewNotifier(domain.UserID(cfg.Device.UserID), messenger)
	coordinator := service.NewCoordinator(repo.NewCallRepository(), bridge, bridge, notifier, history)
	h := handler.NewHandler(coordinator, bridge, hub, history)

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: h.NewRouter(),
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("messaging", cfg.Messaging.Driver).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if hub != nil {
		hub.Stop()
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to release resource")
		}
	}
	log.Info().Msg("Server exited")
}
