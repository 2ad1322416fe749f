package main

import (
	"context"
	"flag"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"rpg-forum/internal/api"
	"rpg-forum/internal/app"
	"rpg-forum/internal/config"
	"rpg-forum/internal/logger"
	"rpg-forum/internal/permission"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", ".", "directory holding config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zl := logger.New(cfg.Logging)
	defer func() { _ = zl.Sync() }()
	zl.Info("RPG forum", zap.String("version", version))
	gin.SetMode(cfg.App.Mode)

	metrics := permission.NewMetrics(prometheus.DefaultRegisterer)
	a, err := app.Open(context.Background(), cfg, zl, permission.WithMetrics(metrics))
	if err != nil {
		zl.Fatal("failed to open forum", zap.Error(err))
	}
	secret, err := app.JWTSecret(cfg, zl)
	if err != nil {
		zl.Fatal("failed to load JWT secret", zap.Error(err))
	}

	router := api.NewRouter(api.Deps{
		Store:     a.Store,
		Evaluator: a.Evaluator,
		Forum:     a.Forum,
		Quotas:    a.Quotas,
		Config:    cfg,
		JWTSecret: secret,
		Logger:    zl,
		Gatherer:  prometheus.DefaultGatherer,
	})

	zl.Info("server listening", zap.String("addr", cfg.App.ListenAddr))
	if err := http.ListenAndServe(cfg.App.ListenAddr, router); err != nil {
		zl.Fatal("server failed to start", zap.Error(err))
	}
}
