// Package inference implements the Inference Runner: loading
// the two trained ONNX graphs and running the autoencoder
// reconstruction-error and classifier argmax passes over normalized
// feature tensors.
package inference

import (
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envOnce  sync.Once
	envErr   error
	envCount int
	envMu    sync.Mutex
)

// initEnvironment lazily brings up the shared ONNX Runtime environment the
// first time a Runner is built, and reference-counts it so the last Runner
// to shut down tears it back down.
func initEnvironment(sharedLibPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	envOnce.Do(func() {
		if sharedLibPath != "" {
			ort.SetSharedLibraryPath(sharedLibPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	if envErr == nil {
		envCount++
	}
	return envErr
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	envCount--
	if envCount <= 0 {
		_ = ort.DestroyEnvironment()
	}
}

// Runner wraps the two ONNX sessions a sensor needs: the autoencoder
// (reconstruction error over an 81-feature vector) and the classifier
// (softmax over a 78-feature vector). Both input/output tensor shapes are
// fixed at [1, N] for a single flow scored at a time.
type Runner struct {
	autoencoder *ort.Session[float32]
	aeInput     *ort.Tensor[float32]
	aeOutput    *ort.Tensor[float32]

	classifier *ort.Session[float32]
	clsInput   *ort.Tensor[float32]
	clsOutput  *ort.Tensor[float32]
}

// Config points at the on-disk model artifacts.
type Config struct {
	SharedLibraryPath  string
	AutoencoderPath    string
	AutoencoderInputs  int
	AutoencoderOutputs int
	ClassifierPath     string
	ClassifierInputs   int
	ClassifierOutputs  int
}

// NewRunner loads both ONNX graphs and allocates their I/O tensors.
func NewRunner(cfg Config) (*Runner, error) {
	if err := initEnvironment(cfg.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("inference: initialize onnxruntime: %w", err)
	}

	aeInput, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.AutoencoderInputs)))
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("inference: allocate autoencoder input tensor: %w", err)
	}
	aeOutput, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.AutoencoderOutputs)))
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("inference: allocate autoencoder output tensor: %w", err)
	}
	aeSession, err := ort.NewSession[float32](cfg.AutoencoderPath, []string{"input"}, []string{"output"}, aeInput, aeOutput)
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("inference: load autoencoder %s: %w", cfg.AutoencoderPath, err)
	}

	clsInput, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.ClassifierInputs)))
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("inference: allocate classifier input tensor: %w", err)
	}
	clsOutput, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.ClassifierOutputs)))
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("inference: allocate classifier output tensor: %w", err)
	}
	clsSession, err := ort.NewSession[float32](cfg.ClassifierPath, []string{"input"}, []string{"output"}, clsInput, clsOutput)
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("inference: load classifier %s: %w", cfg.ClassifierPath, err)
	}

	return &Runner{
		autoencoder: aeSession,
		aeInput:     aeInput,
		aeOutput:    aeOutput,
		classifier:  clsSession,
		clsInput:    clsInput,
		clsOutput:   clsOutput,
	}, nil
}

// Close releases both sessions and their tensors.
func (r *Runner) Close() {
	r.autoencoder.Destroy()
	r.aeInput.Destroy()
	r.aeOutput.Destroy()
	r.classifier.Destroy()
	r.clsInput.Destroy()
	r.clsOutput.Destroy()
	releaseEnvironment()
}

// AutoencoderMAE runs the autoencoder over a normalized 81-feature vector
// and returns the mean absolute error between input and reconstruction
//. Any runtime failure is returned as an error; callers must
// treat that as "no anomaly" rather than propagating a false positive.
func (r *Runner) AutoencoderMAE(normalized []float64) (float64, error) {
	data := r.aeInput.GetData()
	if len(data) != len(normalized) {
		return 0, fmt.Errorf("inference: autoencoder expects %d features, got %d", len(data), len(normalized))
	}
	for i, v := range normalized {
		data[i] = float32(v)
	}

	if err := r.autoencoder.Run(); err != nil {
		return 0, fmt.Errorf("inference: autoencoder run: %w", err)
	}

	out := r.aeOutput.GetData()
	if len(out) != len(data) {
		return 0, fmt.Errorf("inference: autoencoder output length %d does not match input length %d", len(out), len(data))
	}

	var sum float64
	for i := range data {
		diff := float64(data[i]) - float64(out[i])
		sum += math.Abs(diff)
	}
	return sum / float64(len(data)), nil
}

// ClassifierArgmax runs the classifier over a normalized 78-feature vector
// and returns the index of the highest-scoring class.
func (r *Runner) ClassifierArgmax(normalized []float64) (int, error) {
	data := r.clsInput.GetData()
	if len(data) != len(normalized) {
		return 0, fmt.Errorf("inference: classifier expects %d features, got %d", len(data), len(normalized))
	}
	for i, v := range normalized {
		data[i] = float32(v)
	}

	if err := r.classifier.Run(); err != nil {
		return 0, fmt.Errorf("inference: classifier run: %w", err)
	}

	out := r.clsOutput.GetData()
	if len(out) == 0 {
		return 0, fmt.Errorf("inference: classifier returned no output")
	}

	best := 0
	for i, v := range out {
		if v > out[best] {
			best = i
		}
	}
	return best, nil
}
