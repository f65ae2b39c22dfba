package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/leeluca/seon-sub000/internal/audit"
	"github.com/leeluca/seon-sub000/internal/config"
	"github.com/leeluca/seon-sub000/internal/events"
	"github.com/leeluca/seon-sub000/internal/httpserver"
	"github.com/leeluca/seon-sub000/internal/keys"
	"github.com/leeluca/seon-sub000/internal/middleware"
	"github.com/leeluca/seon-sub000/internal/models"
	"github.com/leeluca/seon-sub000/internal/repo"
	"github.com/leeluca/seon-sub000/internal/service"
	"github.com/leeluca/seon-sub000/internal/token"
	"github.com/leeluca/seon-sub000/pkg/db"
	"github.com/leeluca/seon-sub000/pkg/logging"
	loggingmw "github.com/leeluca/seon-sub000/pkg/middleware/logging"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	// Key import is expensive and fatal on failure; the provider memoizes
	// one load even if early callers race to it.
	provider := keys.NewProvider(func() (*keys.Material, error) {
		return keys.Load(cfg)
	})
	km, err := provider.Get()
	if err != nil {
		log.Fatalf("key init error: %v", err)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	if err := gdb.AutoMigrate(&models.User{}, &models.RefreshToken{}); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	registry := keys.NewRegistry(km, cfg)
	tokens := token.NewService(registry, cfg.OriginURL)
	store := repo.NewRefreshTokenStore(gdb, tokens)
	users := &repo.UserRepo{DB: gdb}

	producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	sink, err := audit.NewSink(cfg.ESURL, cfg.ESUser, cfg.ESPassword)
	if err != nil {
		logger.Warn("audit sink unavailable", "error", err)
	}

	svc := &service.AuthService{
		Users:    users,
		Store:    store,
		Tokens:   tokens,
		Producer: producer,
		Audit:    sink,
		SyncURL:  cfg.SyncURL,
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Use(loggingmw.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{Svc: svc, Tokens: tokens},
		Auth:        middleware.NewAuth(tokens, svc),
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.ServerPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown", "error", err)
	}
}
