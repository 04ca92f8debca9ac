package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"

	"github.com/karthikraju391/go-nats-chat-sync/auth"
	"github.com/karthikraju391/go-nats-chat-sync/config"
	"github.com/karthikraju391/go-nats-chat-sync/handlers"
	"github.com/karthikraju391/go-nats-chat-sync/logger"
	"github.com/karthikraju391/go-nats-chat-sync/nats_service"
	"github.com/karthikraju391/go-nats-chat-sync/session"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(logger.Config{Development: cfg.Log.Development})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	// --- Initialize NATS Service ---
	natsSvc, err := nats_service.NewNatsService(context.Background(), cfg, zl)
	if err != nil {
		zl.Fatal("Failed to initialize NATS Service", zap.Error(err))
	}
	defer natsSvc.Close()
	zl.Info("NATS Service Initialized", zap.String("url", cfg.Nats.URL))

	if cfg.Relay.Enabled {
		relay, err := nats_service.NewRelay(natsSvc.Conn(), natsSvc, cfg.Relay.Queue, zl.Named("relay"))
		if err != nil {
			zl.Fatal("Failed to create relay", zap.Error(err))
		}
		if err := relay.Start(); err != nil {
			zl.Fatal("Failed to start relay", zap.Error(err))
		}
		defer relay.Stop()
	}

	authn := auth.NewAuthenticator(cfg.Auth.JWTSecret)
	if !authn.Enabled() {
		zl.Warn("No JWT secret configured, every socket gets a guest identity")
	}

	settings := session.DefaultSettings(cfg.Nats.URL)
	settings.RetryInterval = cfg.RetryInterval
	if cfg.Session.EventBuffer > 0 {
		settings.EventBuffer = cfg.Session.EventBuffer
	}

	gateway := handlers.NewGateway(
		nats_service.NewDialer("chat-sync-session", cfg.ConnectTimeout, cfg.RetryInterval, zl.Named("backbone")),
		natsSvc,
		authn,
		settings,
		handlers.SocketSettings{
			MaxMessageSize: cfg.WS.MaxMessageSize,
			PongWait:       cfg.PongWait,
			PingPeriod:     cfg.PingPeriod,
			WriteWait:      cfg.WriteWait,
		},
		zl.Named("gateway"),
	)

	// --- Initialize Fiber App ---
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(fiberlogger.New())

	// --- Setup WebSocket Route ---
	app.Use("/ws", gateway.Upgrade)

	// /ws/chat selects nothing up front; /ws/chat/:conversationID selects on connect
	app.Get("/ws/chat/:conversationID?", websocket.New(gateway.HandleWebSocket))

	// --- Start Server ---
	go func() {
		zl.Info("Starting server", zap.String("addr", cfg.Server.Addr))
		if err := app.Listen(cfg.Server.Addr); err != nil {
			zl.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		zl.Error("Error shutting down Fiber", zap.Error(err))
	}

	zl.Info("Server gracefully stopped")
}
