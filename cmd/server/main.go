package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"leaf-disease-service/internal/adapters/primary/http/handlers"
	"leaf-disease-service/internal/adapters/primary/http/middleware"
	"leaf-disease-service/internal/app"
	"leaf-disease-service/internal/config"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app.InitLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.WithError(err).Warn("release resources")
		}
	}()

	// Primary Adapter (HTTP Handlers)
	h := handlers.New(a.Classifier, cfg.Upload.MaxBytes)

	// Setup router
	router := gin.New()
	router.MaxMultipartMemory = cfg.Upload.MaxBytes
	router.Use(middleware.RequestID(), middleware.Logging(), middleware.CORS(cfg.CORS.AllowOrigins), gin.Recovery())

	api := router.Group("/api/v1/leaf-disease")
	h.RegisterRoutes(api)
	router.GET("/healthz", h.Health)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("mode", cfg.Inference.Mode).Infof("starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Warm the model in the background. A failure is retried on the next request.
	if cfg.Inference.Mode == config.ModeModel && cfg.Artifact.WarmOnStart {
		g.Go(func() error {
			st, err := a.Classifier.EnsureModel(gctx)
			if err != nil {
				log.WithError(err).Warn("model warm-up failed, will retry on first request")
				return nil
			}
			log.WithField("state", st.State).Info("model warm-up complete")
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("server stopped")
	return nil
}
