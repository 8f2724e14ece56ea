package testutil

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"leaf-disease-service/internal/core/domain"
	"leaf-disease-service/internal/core/ports/output"
)

// MockModel is a mock of ports.Model.
type MockModel struct {
	mock.Mock
}

func (m *MockModel) Forward(input []float32) ([]float32, error) {
	args := m.Called(input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockModel) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockModelLoader is a mock of ports.ModelLoader.
type MockModelLoader struct {
	mock.Mock
}

func (m *MockModelLoader) Load(ctx context.Context, path string) (ports.Model, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.Model), args.Error(1)
}

// MockArtifactFetcher is a mock of ports.ArtifactFetcher. The first return
// value is the payload written to dst before the error is returned.
type MockArtifactFetcher struct {
	mock.Mock
}

func (m *MockArtifactFetcher) Fetch(ctx context.Context, remoteID string, dst io.Writer) (int64, error) {
	args := m.Called(ctx, remoteID)
	var n int64
	if payload, ok := args.Get(0).([]byte); ok && len(payload) > 0 {
		written, err := dst.Write(payload)
		n = int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, args.Error(1)
}

// MockArtifactLedger is a mock of ports.ArtifactLedger.
type MockArtifactLedger struct {
	mock.Mock
}

func (m *MockArtifactLedger) Record(ctx context.Context, event *domain.ArtifactEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockArtifactLedger) ListRecent(ctx context.Context, artifactName string, limit int) ([]*domain.ArtifactEvent, error) {
	args := m.Called(ctx, artifactName, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ArtifactEvent), args.Error(1)
}
