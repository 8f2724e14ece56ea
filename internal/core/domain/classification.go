package domain

import (
	"time"

	"github.com/google/uuid"
)

type PredictionMode string

const (
	PredictionModeModel PredictionMode = "model"
	PredictionModeDemo  PredictionMode = "demo"
)

// ClassificationResult is the outcome of one classify call.
// Confidence and every entry of Scores are on the [0,1] scale.
type ClassificationResult struct {
	ID         uuid.UUID      `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	Label      string         `json:"label"`
	Confidence float64        `json:"confidence"`
	Scores     []float64      `json:"scores"`
	Mode       PredictionMode `json:"mode"`
}

func newResult(mode PredictionMode, label string, confidence float64, scores []float64) *ClassificationResult {
	return &ClassificationResult{
		ID:         uuid.New(),
		CreatedAt:  time.Now().UTC(),
		Label:      label,
		Confidence: confidence,
		Scores:     scores,
		Mode:       mode,
	}
}

// NewModelResult picks the arg-max of scores. Ties resolve to the lowest index.
// scores must be non-empty and index-aligned with Labels.
func NewModelResult(scores []float64) *ClassificationResult {
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	return newResult(PredictionModeModel, Labels[best], scores[best], scores)
}

// NewDemoResult builds a simulated result. The remaining probability is
// spread evenly over the other labels.
func NewDemoResult(label string, confidence float64) *ClassificationResult {
	scores := make([]float64, len(Labels))
	rest := (1 - confidence) / float64(len(Labels)-1)
	for i, l := range Labels {
		if l == label {
			scores[i] = confidence
		} else {
			scores[i] = rest
		}
	}
	return newResult(PredictionModeDemo, label, confidence, scores)
}

// ScoreMap returns the scores keyed by label.
func (r *ClassificationResult) ScoreMap() map[string]float64 {
	m := make(map[string]float64, len(r.Scores))
	for i, s := range r.Scores {
		if i < len(Labels) {
			m[Labels[i]] = s
		}
	}
	return m
}
