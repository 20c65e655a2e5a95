package eit

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Prepare runs the measurement pipeline on a copy of the request data:
// baseline correction (when a baseline is given), reordering,
// normalisation and anomaly construction. The request slices are not modified.
func Prepare(req Request) ([]Anomaly, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	data := make([]float64, len(req.Readings))
	copy(data, req.Readings)

	var err error
	if req.Baseline != nil {
		data, err = BaselineCorrection(data, req.Baseline)
		if err != nil {
			return nil, fmt.Errorf("baseline correction: %w", err)
		}
	}

	if data, err = CleanData(data); err != nil {
		return nil, fmt.Errorf("clean data: %w", err)
	}

	if data, err = NormaliseData(data, req.Flatten); err != nil {
		return nil, fmt.Errorf("normalise data: %w", err)
	}

	anomalies, err := CreateAnomaly(data)
	if err != nil {
		return nil, fmt.Errorf("create anomaly: %w", err)
	}
	return anomalies, nil
}

func validateRequest(req Request) error {
	if len(req.Readings) == 0 {
		return fmt.Errorf("%w: no readings", ErrEmptyInput)
	}
	for i, v := range req.Readings {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: reading %d is not finite", ErrInvalidInput, i)
		}
	}
	for i, v := range req.Baseline {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: baseline reading %d is not finite", ErrInvalidInput, i)
		}
	}
	if req.Flatten != nil && (*req.Flatten < 0 || math.IsNaN(*req.Flatten)) {
		return fmt.Errorf("%w: flatten must be non-negative, got %g", ErrInvalidInput, *req.Flatten)
	}
	return nil
}

// Reconstructor runs the pipeline and hands its output to an Engine
type Reconstructor struct {
	Engine Engine
	Logger *zap.Logger
}

// NewReconstructor creates a reconstructor. A nil engine selects the
// default GridEngine and a nil logger disables logging.
func NewReconstructor(engine Engine, logger *zap.Logger) *Reconstructor {
	if engine == nil {
		engine = NewGridEngine(DefaultGridSize, DefaultLambda)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconstructor{Engine: engine, Logger: logger}
}

// Reconstruct prepares the anomaly list and reconstructs the field that
// the anomalies produce against the background distribution.
func (r *Reconstructor) Reconstruct(req Request) (*Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	anomalies, err := Prepare(req)
	if err != nil {
		return nil, err
	}
	logger.Debug("anomalies prepared",
		zap.Int("nodes", len(anomalies)),
		zap.Bool("baseline", req.Baseline != nil),
		zap.Bool("flatten", req.Flatten != nil))

	m, err := r.Engine.BuildMesh(ElectrodeCount)
	if err != nil {
		return nil, fmt.Errorf("build mesh: %w", err)
	}

	perm, err := r.Engine.AssignPermittivity(m, anomalies, Background)
	if err != nil {
		return nil, fmt.Errorf("assign permittivity: %w", err)
	}

	base := make([]float64, len(perm))
	for i := range base {
		base[i] = Background
	}

	excitation := ScanLines(ElectrodeCount, 1)
	v0, err := r.Engine.ForwardSolve(m, excitation, base)
	if err != nil {
		return nil, fmt.Errorf("forward solve (reference): %w", err)
	}
	v1, err := r.Engine.ForwardSolve(m, excitation, perm)
	if err != nil {
		return nil, fmt.Errorf("forward solve: %w", err)
	}

	field, err := r.Engine.InverseSolve(m, v1, v0)
	if err != nil {
		return nil, fmt.Errorf("inverse solve: %w", err)
	}
	logger.Debug("field reconstructed", zap.Int("size", field.Size))

	return &Result{
		ID:         uuid.NewString(),
		Anomalies:  anomalies,
		Background: Background,
		Field:      field,
		CreatedAt:  time.Now(),
	}, nil
}
