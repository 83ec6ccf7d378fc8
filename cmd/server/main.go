package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/study-assistant/api/handlers"
	"github.com/feichai0017/study-assistant/api/routes"
	"github.com/feichai0017/study-assistant/config"
	"github.com/feichai0017/study-assistant/internal/service/material"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

func main() {
	serverCfg := config.GetServerConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(serverCfg.LogLevel),
		logger.WithEncoding(serverCfg.LogEncoding),
		logger.WithOutputPaths([]string{"stdout", serverCfg.LogOutputPath}),
		logger.WithInitialFields(map[string]interface{}{"service": "study-assistant"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := material.GetService(ctx, log, false)
	if err != nil {
		log.Fatal("Failed to initialize material service", logger.Error(err))
	}
	defer components.Close()

	h := handlers.NewHandlers(components.Service, components.History, components.Ping, log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, routes.Config{
		AllowOrigins: serverCfg.AllowOrigins,
		MaxBodyBytes: serverCfg.MaxUploadBytes + 1<<20,
	}, log)

	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", logger.String("addr", serverCfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Server stopped")
}
