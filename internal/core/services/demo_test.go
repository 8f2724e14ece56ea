package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaf-disease-service/internal/core/domain"
)

func TestDemoPredictor_Fixed(t *testing.T) {
	d := NewDemoPredictor(DemoFixed, 0, 0)

	result, err := d.Predict(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Cassava Mosaic Disease", result.Label)
	assert.InDelta(t, 0.92, result.Confidence, 1e-9)
	assert.Equal(t, domain.PredictionModeDemo, result.Mode)
}

func TestDemoPredictor_Random(t *testing.T) {
	d := NewDemoPredictor(DemoRandom, 0, 0)

	for i := 0; i < 50; i++ {
		result, err := d.Predict(context.Background())
		require.NoError(t, err)
		assert.Contains(t, domain.Labels, result.Label)
		assert.GreaterOrEqual(t, result.Confidence, 0.70)
		assert.LessOrEqual(t, result.Confidence, 0.99)
		assert.Equal(t, domain.PredictionModeDemo, result.Mode)
	}
}

func TestDemoPredictor_DelayHonorsContext(t *testing.T) {
	d := NewDemoPredictor(DemoFixed, time.Minute, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := d.Predict(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDemoPredictor_UnknownStrategyFallsBackToFixed(t *testing.T) {
	d := NewDemoPredictor("surprise", 0, 0)

	result, err := d.Predict(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Cassava Mosaic Disease", result.Label)
}
