package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashgrove/rota/internal/clock"
	"github.com/ashgrove/rota/internal/config"
	"github.com/ashgrove/rota/internal/database"
	"github.com/ashgrove/rota/internal/logging"
	"github.com/ashgrove/rota/internal/server"
	"github.com/ashgrove/rota/internal/sweep"
	"github.com/ashgrove/rota/internal/websocket"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel)

	civil, err := clock.LoadCivil(cfg.Timezone)
	if err != nil {
		log.Fatalf("failed to load timezone %q: %v", cfg.Timezone, err)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	srv := server.New(db, civil, clock.System{}, logger)

	hub := srv.Hub()
	scheduler := sweep.NewScheduler(srv.Engine(), func(count int) {
		hub.Broadcast(websocket.NewMessage("assignment", "overdue", 0, map[string]any{
			"rotated": count,
		}))
	}, logger.With("component", "sweep"))
	if err := scheduler.Start(cfg.SweepSchedule); err != nil {
		log.Fatalf("failed to start sweep scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Expired sessions pile up otherwise; prune them daily.
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := srv.SessionStore().DeleteExpired(); err != nil {
				logger.Error("session cleanup failed", "error", err)
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("rota listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
