package dto

import (
	"time"

	"github.com/google/uuid"

	"leaf-disease-service/internal/core/domain"
	"leaf-disease-service/internal/core/services"
)

type ArtifactResponse struct {
	Name      string  `json:"name"`
	RemoteID  string  `json:"remote_id"`
	State     string  `json:"state"`
	Present   bool    `json:"present"`
	SizeBytes int64   `json:"size_bytes"`
	LoadedAt  *string `json:"loaded_at,omitempty"`
	LastError string  `json:"last_error,omitempty"`
}

type ModelStatusResponse struct {
	Mode     string            `json:"mode"`
	State    string            `json:"state"`
	Artifact *ArtifactResponse `json:"artifact,omitempty"`
	Error    string            `json:"error,omitempty"`
}

type ArtifactEventResponse struct {
	ID           uuid.UUID `json:"id"`
	CreatedAt    string    `json:"created_at"`
	ArtifactName string    `json:"artifact_name"`
	RemoteID     string    `json:"remote_id"`
	Outcome      string    `json:"outcome"`
	SizeBytes    int64     `json:"size_bytes"`
	SHA256       string    `json:"sha256,omitempty"`
	Detail       string    `json:"detail,omitempty"`
}

type ListArtifactEventsResponse struct {
	Items []ArtifactEventResponse `json:"items"`
	Total int                     `json:"total"`
}

func ToModelStatusResponse(s services.ModelStatus) ModelStatusResponse {
	resp := ModelStatusResponse{
		Mode:  string(s.Mode),
		State: string(s.State),
		Error: s.Error,
	}
	if s.Artifact != nil {
		a := ToArtifactResponse(*s.Artifact)
		resp.Artifact = &a
	}
	return resp
}

func ToArtifactResponse(a domain.ArtifactStatus) ArtifactResponse {
	resp := ArtifactResponse{
		Name:      a.Name,
		RemoteID:  a.RemoteID,
		State:     string(a.State),
		Present:   a.Present,
		SizeBytes: a.SizeBytes,
		LastError: a.LastError,
	}
	if a.LoadedAt != nil {
		s := a.LoadedAt.Format(time.RFC3339)
		resp.LoadedAt = &s
	}
	return resp
}

func ToArtifactEventResponse(e *domain.ArtifactEvent) ArtifactEventResponse {
	return ArtifactEventResponse{
		ID:           e.ID,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		ArtifactName: e.ArtifactName,
		RemoteID:     e.RemoteID,
		Outcome:      string(e.Outcome),
		SizeBytes:    e.SizeBytes,
		SHA256:       e.SHA256,
		Detail:       e.Detail,
	}
}
