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

	"go.uber.org/zap"

	"prtriage/internal/config"
	"prtriage/internal/logging"
	"prtriage/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML triage policy")
	flag.Parse()

	cfg := config.Load()
	log, err := logging.NewLogger(cfg.Verbose)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	policy, err := config.LoadPolicy(*configPath)
	if err != nil {
		log.Fatal("policy load failed", zap.Error(err))
	}
	if policy.Repository == "" {
		policy.Repository = cfg.DefaultRepo
	}

	s, err := server.NewServer(cfg, policy, log)
	if err != nil {
		log.Fatal("server init failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("triage server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
}
