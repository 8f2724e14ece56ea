// Package app wires configuration into the service graph shared by the
// HTTP server and the leafctl command.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"leaf-disease-service/internal/adapters/secondary/onnx"
	"leaf-disease-service/internal/adapters/secondary/postgres"
	"leaf-disease-service/internal/adapters/secondary/remote"
	"leaf-disease-service/internal/config"
	"leaf-disease-service/internal/core/domain"
	ports "leaf-disease-service/internal/core/ports/output"
	"leaf-disease-service/internal/core/services"
)

// App owns the classifier and every resource behind it.
type App struct {
	Config     *config.Config
	Classifier *services.ClassifierService

	pool   *pgxpool.Pool
	cache  *services.ArtifactCache
	loader *onnx.Loader
}

func InitLogger(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Logger.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// ArtifactSpec maps the artifact settings onto the domain description.
func ArtifactSpec(cfg *config.Config) domain.ArtifactSpec {
	return domain.ArtifactSpec{
		Name:     cfg.Artifact.Path,
		RemoteID: cfg.Artifact.RemoteID,
		SHA256:   cfg.Artifact.SHA256,
		MinSize:  cfg.Artifact.MinSize,
	}
}

// New builds the classifier for cfg.Inference.Mode. The disease catalog is
// checked against the label set before anything else is created.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := domain.ValidateCatalog(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg}

	if cfg.Inference.Mode == config.ModeDemo {
		demo := services.NewDemoPredictor(services.DemoStrategy(cfg.Demo.Strategy), cfg.Demo.DelayMin, cfg.Demo.DelayMax)
		a.Classifier = services.NewDemoClassifier(demo, cfg.Upload.MaxBytes)
		log.WithField("strategy", cfg.Demo.Strategy).Warn("running in demo mode, results are simulated")
		return a, nil
	}

	var ledger ports.ArtifactLedger
	if cfg.Ledger.Enabled {
		pool, err := openPool(ctx, cfg.Ledger)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		ledger = postgres.NewArtifactEventRepository(pool)
		log.Info("artifact ledger enabled")
	} else {
		log.Info("artifact ledger disabled")
	}

	engine := services.NewInferenceEngine(cfg.Inference.ImageSize, services.Layout(cfg.Inference.Layout)).
		WithScores(services.ScoreKind(cfg.Inference.Output))
	a.loader = onnx.NewLoader(onnx.Options{
		LibraryPath: cfg.Inference.RuntimeLibrary,
		InputName:   cfg.Inference.InputName,
		OutputName:  cfg.Inference.OutputName,
		InputShape:  engine.InputShape(),
		NumClasses:  len(domain.Labels),
	})
	fetcher := remote.NewClient(cfg.Artifact.URLTemplate, cfg.Artifact.DownloadTimeout)

	a.cache = services.NewArtifactCache(a.loader, fetcher, ledger).WithTimeout(cfg.Artifact.DownloadTimeout)
	provider := services.NewModelProvider(a.cache, ArtifactSpec(cfg))
	a.Classifier = services.NewModelClassifier(provider, engine, cfg.Upload.MaxBytes)
	return a, nil
}

func openPool(ctx context.Context, cfg config.LedgerConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("database connection established")
	return pool, nil
}

// Close releases loaded models, the onnxruntime environment and the pool.
func (a *App) Close() error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.loader != nil {
		errs = append(errs, a.loader.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
