package ports

import (
	"context"
	"io"

	"leaf-disease-service/internal/core/domain"
)

// Model is a loaded classifier. Forward must be safe for concurrent use.
type Model interface {
	// Forward runs one pass over a preprocessed batch of size 1 and
	// returns one score per label.
	Forward(input []float32) ([]float32, error)
	Close() error
}

// ModelLoader opens a serialized model. A file that cannot be opened as a
// model returns an error; it is the only validity check the cache relies on.
type ModelLoader interface {
	Load(ctx context.Context, path string) (Model, error)
}

// ArtifactFetcher streams the artifact identified by remoteID into dst and
// returns the number of bytes written.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, remoteID string, dst io.Writer) (int64, error)
}

type ArtifactLedger interface {
	Record(ctx context.Context, event *domain.ArtifactEvent) error
	ListRecent(ctx context.Context, artifactName string, limit int) ([]*domain.ArtifactEvent, error)
}
