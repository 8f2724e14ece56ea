package services

import (
	"context"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"leaf-disease-service/internal/core/domain"
)

type DemoStrategy string

const (
	DemoFixed  DemoStrategy = "fixed"
	DemoRandom DemoStrategy = "random"
)

const (
	demoFixedLabel      = "Cassava Mosaic Disease"
	demoFixedConfidence = 0.92
	demoMinConfidence   = 0.70
	demoMaxConfidence   = 0.99
)

// DemoPredictor fabricates results without any model. Every result it
// returns is marked PredictionModeDemo.
type DemoPredictor struct {
	strategy DemoStrategy
	delayMin time.Duration
	delayMax time.Duration
}

func NewDemoPredictor(strategy DemoStrategy, delayMin, delayMax time.Duration) *DemoPredictor {
	if strategy != DemoRandom {
		strategy = DemoFixed
	}
	if delayMax < delayMin {
		delayMax = delayMin
	}
	return &DemoPredictor{strategy: strategy, delayMin: delayMin, delayMax: delayMax}
}

func (d *DemoPredictor) Predict(ctx context.Context) (*domain.ClassificationResult, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}

	if d.strategy == DemoRandom {
		label := domain.Labels[rand.Intn(len(domain.Labels))]
		confidence := demoMinConfidence + rand.Float64()*(demoMaxConfidence-demoMinConfidence)
		return domain.NewDemoResult(label, confidence), nil
	}
	return domain.NewDemoResult(demoFixedLabel, demoFixedConfidence), nil
}

// wait simulates analysis time.
func (d *DemoPredictor) wait(ctx context.Context) error {
	delay := d.delayMin
	if span := d.delayMax - d.delayMin; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}
	if delay <= 0 {
		return nil
	}

	log.WithField("delay_ms", delay.Milliseconds()).Debug("simulating analysis")
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
