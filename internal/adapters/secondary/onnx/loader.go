package onnx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	ports "leaf-disease-service/internal/core/ports/output"
)

type Options struct {
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// platform default lookup.
	LibraryPath string
	InputName   string
	OutputName  string
	InputShape  []int64
	NumClasses  int
}

// Loader opens ONNX files as classifier sessions. The onnxruntime
// environment is initialized on the first Load.
type Loader struct {
	opts Options

	initOnce sync.Once
	initErr  error
}

func NewLoader(opts Options) *Loader {
	if opts.InputName == "" {
		opts.InputName = "input"
	}
	if opts.OutputName == "" {
		opts.OutputName = "output"
	}
	return &Loader{opts: opts}
}

func (l *Loader) init() error {
	l.initOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if l.opts.LibraryPath != "" {
			ort.SetSharedLibraryPath(l.opts.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			l.initErr = fmt.Errorf("initialize onnxruntime environment: %w", err)
		}
	})
	return l.initErr
}

func (l *Loader) Load(ctx context.Context, path string) (ports.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.init(); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(l.opts.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(l.opts.NumClasses)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{l.opts.InputName}, []string{l.opts.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create onnx session for %s: %w", path, err)
	}

	log.WithFields(log.Fields{
		"path":        path,
		"input_shape": l.opts.InputShape,
		"classes":     l.opts.NumClasses,
	}).Debug("onnx session created")

	return &model{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

// Close tears down the onnxruntime environment. Call it after every model is closed.
func (l *Loader) Close() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// model shares one pair of pre-allocated tensors across calls, so Forward
// is serialized.
type model struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func (m *model) Forward(input []float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, errors.New("model is closed")
	}

	dst := m.input.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), len(dst))
	}
	copy(dst, input)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}

	out := m.output.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

func (m *model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}
	err := errors.Join(
		m.session.Destroy(),
		m.input.Destroy(),
		m.output.Destroy(),
	)
	m.session = nil
	return err
}
