package domain

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactSpec identifies a model file by its local path and its id in the remote store.
type ArtifactSpec struct {
	Name     string
	RemoteID string
	// SHA256 is the expected hex digest. Empty disables the check.
	SHA256 string
	// MinSize rejects downloads smaller than this many bytes, e.g. a saved error page.
	MinSize int64
}

type ArtifactState string

const (
	ArtifactStateAbsent      ArtifactState = "absent"
	ArtifactStateDownloading ArtifactState = "downloading"
	ArtifactStateUnverified  ArtifactState = "present-unverified"
	ArtifactStateReady       ArtifactState = "ready"
	ArtifactStateInvalid     ArtifactState = "invalid"
)

type ArtifactStatus struct {
	Name      string        `json:"name"`
	RemoteID  string        `json:"remote_id"`
	State     ArtifactState `json:"state"`
	Present   bool          `json:"present"`
	SizeBytes int64         `json:"size_bytes"`
	LoadedAt  *time.Time    `json:"loaded_at,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

type ArtifactOutcome string

const (
	OutcomeCached        ArtifactOutcome = "cached"
	OutcomeDownloaded    ArtifactOutcome = "downloaded"
	OutcomeInvalid       ArtifactOutcome = "invalid"
	OutcomeLoadFailed    ArtifactOutcome = "load_failed"
	OutcomeNetworkFailed ArtifactOutcome = "network_failed"
	OutcomeEvicted       ArtifactOutcome = "evicted"
)

// ArtifactEvent is one entry of the artifact lifecycle ledger.
type ArtifactEvent struct {
	ID           uuid.UUID       `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	ArtifactName string          `json:"artifact_name"`
	RemoteID     string          `json:"remote_id"`
	Outcome      ArtifactOutcome `json:"outcome"`
	SizeBytes    int64           `json:"size_bytes"`
	SHA256       string          `json:"sha256"`
	Detail       string          `json:"detail"`
}

func NewArtifactEvent(spec ArtifactSpec, outcome ArtifactOutcome, size int64, digest, detail string) *ArtifactEvent {
	return &ArtifactEvent{
		ID:           uuid.New(),
		CreatedAt:    time.Now().UTC(),
		ArtifactName: spec.Name,
		RemoteID:     spec.RemoteID,
		Outcome:      outcome,
		SizeBytes:    size,
		SHA256:       digest,
		Detail:       detail,
	}
}
