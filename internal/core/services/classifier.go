package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	log "github.com/sirupsen/logrus"

	"leaf-disease-service/internal/core/domain"
)

// ClassifierService is the caller-facing entry point. It runs either on a real
// model or on the demo predictor, never both.
type ClassifierService struct {
	mode     domain.PredictionMode
	provider *ModelProvider
	engine   *InferenceEngine
	demo     *DemoPredictor
	maxBytes int64
}

// NewModelClassifier classifies with the model owned by provider.
func NewModelClassifier(provider *ModelProvider, engine *InferenceEngine, maxBytes int64) *ClassifierService {
	return &ClassifierService{
		mode:     domain.PredictionModeModel,
		provider: provider,
		engine:   engine,
		maxBytes: maxBytes,
	}
}

// NewDemoClassifier returns simulated results and never loads a model.
func NewDemoClassifier(demo *DemoPredictor, maxBytes int64) *ClassifierService {
	return &ClassifierService{
		mode:     domain.PredictionModeDemo,
		demo:     demo,
		maxBytes: maxBytes,
	}
}

func (s *ClassifierService) Mode() domain.PredictionMode {
	return s.mode
}

// Provider is nil in demo mode.
func (s *ClassifierService) Provider() *ModelProvider {
	return s.provider
}

// Classify decodes data and returns a fresh result. On error nothing held by
// the service changes.
func (s *ClassifierService) Classify(ctx context.Context, data []byte) (*domain.ClassificationResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidImage)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", domain.ErrImageTooLarge, len(data), s.maxBytes)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidImage, err)
	}

	logger := log.WithFields(log.Fields{
		"format": format,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
		"mode":   s.mode,
	})

	start := time.Now()
	var result *domain.ClassificationResult
	if s.mode == domain.PredictionModeDemo {
		result, err = s.demo.Predict(ctx)
	} else {
		result, err = s.classifyWithModel(ctx, img)
	}
	if err != nil {
		logger.WithError(err).Warn("classification failed")
		return nil, err
	}

	logger.WithFields(log.Fields{
		"label":      result.Label,
		"confidence": result.Confidence,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Info("image classified")
	return result, nil
}

func (s *ClassifierService) classifyWithModel(ctx context.Context, img image.Image) (*domain.ClassificationResult, error) {
	model, err := s.provider.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.Predict(model, img)
}

func (s *ClassifierService) Status() ModelStatus {
	if s.mode == domain.PredictionModeDemo {
		return ModelStatus{Mode: domain.PredictionModeDemo, State: ModelStateDisabled}
	}
	return s.provider.Status()
}

// EnsureModel populates the model without classifying anything.
func (s *ClassifierService) EnsureModel(ctx context.Context) (ModelStatus, error) {
	if s.mode == domain.PredictionModeDemo {
		return s.Status(), fmt.Errorf("%w: running in demo mode", domain.ErrModelUnavailable)
	}
	_, err := s.provider.Get(ctx)
	return s.provider.Status(), err
}

func (s *ClassifierService) ModelEvents(ctx context.Context, limit int) ([]*domain.ArtifactEvent, error) {
	if s.mode == domain.PredictionModeDemo {
		return nil, domain.ErrLedgerDisabled
	}
	return s.provider.Events(ctx, limit)
}

func (s *ClassifierService) Labels() []string {
	out := make([]string, len(domain.Labels))
	copy(out, domain.Labels)
	return out
}

func (s *ClassifierService) Diseases() []domain.DiseaseRecord {
	return domain.Diseases()
}

func (s *ClassifierService) Disease(label string) (domain.DiseaseRecord, error) {
	return domain.LookupDisease(label)
}
