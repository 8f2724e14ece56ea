package services

import (
	"fmt"
	"image"
	"math"

	"leaf-disease-service/internal/core/domain"
	"leaf-disease-service/internal/core/ports/output"
)

// InferenceEngine turns an image into a ClassificationResult with a loaded model.
// It holds no mutable state and never retries.
type InferenceEngine struct {
	imageSize int
	layout    Layout
	scores    ScoreKind
}

// ScoreKind says what the model's output layer emits.
type ScoreKind string

const (
	// ScoresProbabilities means the model ends in softmax. Scores are used as-is.
	ScoresProbabilities ScoreKind = "probabilities"
	// ScoresLogits means raw logits. Scores are softmaxed before arg-max.
	ScoresLogits ScoreKind = "logits"
)

// probabilityTolerance absorbs float32 rounding in a softmax output.
const probabilityTolerance = 1e-4

func NewInferenceEngine(imageSize int, layout Layout) *InferenceEngine {
	if layout != LayoutNCHW {
		layout = LayoutNHWC
	}
	return &InferenceEngine{imageSize: imageSize, layout: layout, scores: ScoresProbabilities}
}

// WithScores sets the output kind. Unknown kinds fall back to probabilities.
func (e *InferenceEngine) WithScores(kind ScoreKind) *InferenceEngine {
	if kind != ScoresLogits {
		kind = ScoresProbabilities
	}
	e.scores = kind
	return e
}

func (e *InferenceEngine) InputShape() []int64 {
	return InputShape(e.imageSize, e.layout)
}

func (e *InferenceEngine) Preprocess(img image.Image) ([]float32, error) {
	return Preprocess(img, e.imageSize, e.layout)
}

// Predict runs preprocess, one forward pass and arg-max. Confidence is the top
// score on the [0,1] scale.
func (e *InferenceEngine) Predict(model ports.Model, img image.Image) (*domain.ClassificationResult, error) {
	input, err := e.Preprocess(img)
	if err != nil {
		return nil, err
	}

	out, err := forward(model, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInference, err)
	}
	if len(out) != len(domain.Labels) {
		return nil, fmt.Errorf("%w: model returned %d scores for %d labels",
			domain.ErrInference, len(out), len(domain.Labels))
	}

	scores := make([]float64, len(out))
	for i, v := range out {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite score at index %d", domain.ErrInference, i)
		}
		scores[i] = f
	}
	if e.scores == ScoresLogits {
		scores = softmax(scores)
	} else if i, ok := outOfRange(scores); ok {
		return nil, fmt.Errorf("%w: score %g at index %d is not a probability, the model may emit logits",
			domain.ErrInference, scores[i], i)
	}

	return domain.NewModelResult(scores), nil
}

// outOfRange returns the first score outside [0,1] beyond rounding. In-tolerance
// overshoot is clamped in place.
func outOfRange(scores []float64) (int, bool) {
	for i, s := range scores {
		if s < -probabilityTolerance || s > 1+probabilityTolerance {
			return i, true
		}
		scores[i] = math.Min(math.Max(s, 0), 1)
	}
	return 0, false
}

// softmax maps raw logits onto [0,1].
func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, l := range logits[1:] {
		if l > maxLogit {
			maxLogit = l
		}
	}

	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func forward(model ports.Model, input []float32) (out []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("forward pass panicked: %v", r)
		}
	}()
	return model.Forward(input)
}
