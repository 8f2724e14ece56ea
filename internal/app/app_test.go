package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaf-disease-service/internal/config"
	"leaf-disease-service/internal/core/domain"
	"leaf-disease-service/internal/core/services"
)

func TestNew_Demo(t *testing.T) {
	cfg := &config.Config{
		Inference: config.InferenceConfig{Mode: config.ModeDemo},
		Demo:      config.DemoConfig{Strategy: "random"},
		Upload:    config.UploadConfig{MaxBytes: 1 << 20},
	}

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, domain.PredictionModeDemo, a.Classifier.Mode())
	assert.Nil(t, a.Classifier.Provider())
	assert.Equal(t, services.ModelStateDisabled, a.Classifier.Status().State)
}

func TestNew_ModelIsLazy(t *testing.T) {
	cfg := &config.Config{
		Artifact: config.ArtifactConfig{
			Path:        t.TempDir() + "/cassava.onnx",
			RemoteID:    "abc",
			URLTemplate: "http://127.0.0.1:1/%s",
			MinSize:     1024,
		},
		Inference: config.InferenceConfig{Mode: config.ModeModel, ImageSize: 224, Layout: "nhwc"},
	}

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, domain.PredictionModeModel, a.Classifier.Mode())
	assert.Equal(t, services.ModelStateNotLoaded, a.Classifier.Status().State)
	assert.Equal(t, "abc", a.Classifier.Provider().Spec().RemoteID)
}

func TestArtifactSpec(t *testing.T) {
	cfg := &config.Config{Artifact: config.ArtifactConfig{
		Path: "models/x.onnx", RemoteID: "id", SHA256: "ff", MinSize: 10,
	}}
	assert.Equal(t, domain.ArtifactSpec{Name: "models/x.onnx", RemoteID: "id", SHA256: "ff", MinSize: 10}, ArtifactSpec(cfg))
}
