package dto

import (
	"time"

	"github.com/google/uuid"

	"leaf-disease-service/internal/core/domain"
)

// ClassificationResponse carries confidence and scores on the [0,1] scale.
type ClassificationResponse struct {
	ID         uuid.UUID        `json:"id"`
	CreatedAt  string           `json:"created_at"`
	Label      string           `json:"label"`
	Confidence float64          `json:"confidence"`
	Scores     []LabelScore     `json:"scores"`
	Mode       string           `json:"mode"`
	Disease    *DiseaseResponse `json:"disease,omitempty"`
}

type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type DiseaseResponse struct {
	Label      string   `json:"label"`
	Agent      string   `json:"agent"`
	About      string   `json:"about"`
	Symptoms   []string `json:"symptoms"`
	Prevention []string `json:"prevention"`
	Healthy    bool     `json:"healthy"`
}

type ListDiseasesResponse struct {
	Items []DiseaseResponse `json:"items"`
	Total int               `json:"total"`
}

type LabelsResponse struct {
	Labels []string `json:"labels"`
}

func ToClassificationResponse(r *domain.ClassificationResult, disease *domain.DiseaseRecord) ClassificationResponse {
	scores := make([]LabelScore, 0, len(r.Scores))
	for i, s := range r.Scores {
		if i >= len(domain.Labels) {
			break
		}
		scores = append(scores, LabelScore{Label: domain.Labels[i], Score: s})
	}

	resp := ClassificationResponse{
		ID:         r.ID,
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
		Label:      r.Label,
		Confidence: r.Confidence,
		Scores:     scores,
		Mode:       string(r.Mode),
	}
	if disease != nil {
		d := ToDiseaseResponse(*disease)
		resp.Disease = &d
	}
	return resp
}

func ToDiseaseResponse(r domain.DiseaseRecord) DiseaseResponse {
	symptoms := r.Symptoms
	if symptoms == nil {
		symptoms = []string{}
	}
	return DiseaseResponse{
		Label:      r.Label,
		Agent:      r.Agent,
		About:      r.About,
		Symptoms:   symptoms,
		Prevention: r.Prevention,
		Healthy:    r.Label == domain.HealthyLabel,
	}
}
