package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/davibasa/Enter-Fellowship-sub001/api/handlers"
	"github.com/davibasa/Enter-Fellowship-sub001/api/routes"
	"github.com/davibasa/Enter-Fellowship-sub001/config"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/app"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

func main() {
	cfg, err := config.GetExtractionConfig()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths([]string{"stdout", "logs/server.log"}),
		logger.WithInitialFields(map[string]interface{}{"service": "extractor-server"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, log, true)
	if err != nil {
		log.Fatal("Failed to build extraction service", logger.Error(err))
	}
	defer rt.Close()

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	routes.SetupRoutes(r, handlers.NewHandlers(rt.Service, rt.Health, log), log)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := rt.Health.Serve(ctx, cfg.Server.GRPCAddr); err != nil {
			log.Error("Health server error", logger.Error(err))
		}
	}()

	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
