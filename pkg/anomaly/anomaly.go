// Package anomaly implements the Anomaly Engine: the
// orchestration layer that turns a flow's accumulated features into a
// two-stage inference verdict and records the result on the network
// graph.
package anomaly

import (
	"fmt"
	"time"

	"github.com/edoardooldani/honeysensor/pkg/flowtracker"
	"github.com/edoardooldani/honeysensor/pkg/graph"
	"github.com/edoardooldani/honeysensor/pkg/logging"
	"github.com/edoardooldani/honeysensor/pkg/types"
)

// Scorer is the subset of pkg/scaler.Scaler the engine depends on.
type Scorer interface {
	Normalize(vec []float64) ([]float64, error)
}

// Model is the subset of pkg/inference.Runner the engine depends on.
type Model interface {
	AutoencoderMAE(normalized []float64) (float64, error)
	ClassifierArgmax(normalized []float64) (int, error)
}

// Config carries the engine's configurable policy knobs.
type Config struct {
	// MAEThreshold gates whether the classifier stage runs at all.
	MAEThreshold float64
	// MediumPriorityThreshold and HighPriorityThreshold are cumulative
	// per-node anomaly counts at which alert priority escalates.
	MediumPriorityThreshold int
	HighPriorityThreshold   int
}

// DefaultConfig returns the engine's default policy knobs.
func DefaultConfig() Config {
	return Config{
		MAEThreshold:            0.15,
		MediumPriorityThreshold: types.DefaultMediumThreshold,
		HighPriorityThreshold:   types.DefaultHighThreshold,
	}
}

// Engine wires the Feature Scaler and Inference Runner together over a
// shared Network Graph.
type Engine struct {
	cfg Config

	autoencoderScaler Scorer
	classifierScaler  Scorer
	model             Model
	graph             *graph.Graph
}

// NewEngine builds an Engine from its collaborators.
func NewEngine(cfg Config, autoencoderScaler, classifierScaler Scorer, model Model, g *graph.Graph) *Engine {
	return &Engine{
		cfg:               cfg,
		autoencoderScaler: autoencoderScaler,
		classifierScaler:  classifierScaler,
		model:             model,
		graph:             g,
	}
}

// Verdict is the result of scoring one flow's current feature snapshot.
type Verdict struct {
	MAE         float64
	Anomalous   bool
	Class       types.AnomalyClass
	Priority    types.Priority
	AnomalyCount int
}

// Score runs the two-stage pipeline over feat, recording any non-Benign
// classification on sourceNode. It returns false with a zero Verdict when
// feat is nil, for frames the flow tracker didn't route to a flow.
func (e *Engine) Score(feat *flowtracker.FlowFeatures, sourceNode *graph.Node, now time.Time) (Verdict, bool, error) {
	if feat == nil {
		return Verdict{}, false, nil
	}

	aeNorm, err := e.autoencoderScaler.Normalize(feat.AutoencoderVector())
	if err != nil {
		return Verdict{}, false, fmt.Errorf("anomaly: normalize autoencoder vector: %w", err)
	}

	mae, err := e.model.AutoencoderMAE(aeNorm)
	if err != nil {
		// Inference runtime failures are logged here and mapped to a
		// Benign ("no anomaly") verdict instead of an error.
		logging.Logger().Warn("anomaly: autoencoder inference failed", "error", err)
		return Verdict{Class: types.Benign}, true, nil
	}

	if mae <= e.cfg.MAEThreshold {
		return Verdict{MAE: mae, Class: types.Benign}, true, nil
	}

	clsNorm, err := e.classifierScaler.Normalize(feat.ClassifierVector())
	if err != nil {
		return Verdict{}, false, fmt.Errorf("anomaly: normalize classifier vector: %w", err)
	}

	idx, err := e.model.ClassifierArgmax(clsNorm)
	if err != nil {
		logging.Logger().Warn("anomaly: classifier inference failed", "error", err)
		return Verdict{MAE: mae, Class: types.Benign}, true, nil
	}

	class, err := types.AnomalyClassFromIndex(idx)
	if err != nil {
		return Verdict{}, false, fmt.Errorf("anomaly: %w", err)
	}

	v := Verdict{MAE: mae, Class: class, Anomalous: class != types.Benign}
	if v.Anomalous {
		v.AnomalyCount = e.graph.RecordAnomaly(sourceNode, class, now)
		v.Priority = types.PriorityFromAnomalyCount(v.AnomalyCount, e.cfg.MediumPriorityThreshold, e.cfg.HighPriorityThreshold)
	}

	return v, true, nil
}
