package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"server/internal/app"
	"server/internal/handlers"
	"server/internal/logger"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	log := logger.New("main")

	application, err := app.New()
	if err != nil {
		log.Er("failed to initialize app", err)
		os.Exit(1)
	}
	defer func() { _ = application.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background replay of writes that only reached the cache.
	application.Reconciliation.Run(ctx, 30*time.Second)

	server := fiber.New(fiber.Config{
		AppName:      "practitioner-connect",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	server.Use(recover.New())
	server.Use(cors.New())

	if err := handlers.Router(server, application); err != nil {
		log.Er("failed to register routes", err)
		os.Exit(1)
	}

	go func() {
		if err := server.Listen(fmt.Sprintf(":%d", application.Config.Port)); err != nil {
			log.Er("server stopped", err)
		}
	}()

	log.Info("server started", "port", application.Config.Port,
		"environment", application.Config.Environment)

	<-ctx.Done()

	log.Info("shutting down")
	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Er("graceful shutdown failed", err)
	}
}
