package adversarial

import (
	"context"

	"github.com/chewxy/math32"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/janpfeifer/depthadv/internal/depth"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Defaults for the optimization loop, from the original sink-to-bathtub
// experiment.
const (
	DefaultIterations = 100
	DefaultStepSize   = 0.001
)

// Config selects the experiment inputs and the loop parameters. Both
// parameters are fixed for the whole run: no schedule, no convergence check,
// no early stopping.
type Config struct {
	// SourcePath is the image whose pixels are perturbed (the "sink" photo).
	SourcePath string
	// TargetPath is the image whose predicted depth is the goal (the
	// "bathtub" photo).
	TargetPath string

	Iterations int     // <= 0 means DefaultIterations
	StepSize   float32 // <= 0 means DefaultStepSize
}

// Perturbation summarizes how far the altered image moved from the original,
// over pixel values in [0, 1].
type Perturbation struct {
	LInf float32
	L2   float32
}

// Result carries everything the display step needs.
type Result struct {
	// OriginalInput is the source image before any perturbation;
	// AlteredInput is the adversarial example.
	OriginalInput, AlteredInput *tensors.Tensor

	// Model depth predictions for the two inputs, and the goal depth map
	// predicted from the target image.
	OriginalDepth, AlteredDepth, TargetDepth *tensors.Tensor

	// Losses recorded at each optimization step.
	Losses []float32

	Perturbation Perturbation
}

// TargetInputs loads the source image and runs the frozen model forward on
// the target image, returning the attack input tensor and its goal depth
// output. Unreadable paths or a failing forward pass are fatal to the run and
// propagate to the caller.
func TargetInputs(predictor *depth.Predictor, sourcePath, targetPath string) (input, goal *tensors.Tensor, err error) {
	input, err = predictor.LoadImage(sourcePath)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "loading source image")
	}
	targetImage, err := predictor.LoadImage(targetPath)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "loading target image")
	}
	goal, err = predictor.Predict(targetImage)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "predicting target depth")
	}
	return input, goal, nil
}

// Generate runs the full pipeline: load inputs, build the loss/gradient
// callable, run the optimization loop on the source image, and evaluate the
// model on the original and altered inputs.
func Generate(ctx context.Context, predictor *depth.Predictor, config Config) (*Result, error) {
	if config.Iterations <= 0 {
		config.Iterations = DefaultIterations
	}
	if config.StepSize <= 0 {
		config.StepSize = DefaultStepSize
	}

	input, goal, err := TargetInputs(predictor, config.SourcePath, config.TargetPath)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("Source %q loaded as %s, goal depth shaped %s",
		config.SourcePath, input.Shape(), goal.Shape())

	// The loop mutates input in place; keep a pristine copy for display and
	// perturbation stats.
	original := cloneTensor(input)

	lossAndGradients := NewLossAndGradients(predictor.Model(), goal)
	losses, err := GradientDescent(ctx, lossAndGradients, input, config.Iterations, config.StepSize)
	if err != nil {
		return nil, err
	}

	originalDepth, err := predictor.Predict(original)
	if err != nil {
		return nil, err
	}
	alteredDepth, err := predictor.Predict(input)
	if err != nil {
		return nil, err
	}

	return &Result{
		OriginalInput: original,
		AlteredInput:  input,
		OriginalDepth: originalDepth,
		AlteredDepth:  alteredDepth,
		TargetDepth:   goal,
		Losses:        losses,
		Perturbation:  measurePerturbation(original, input),
	}, nil
}

func cloneTensor(t *tensors.Tensor) *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(
		tensors.CopyFlatData[float32](t), t.Shape().Dimensions...)
}

func measurePerturbation(original, altered *tensors.Tensor) Perturbation {
	flatOriginal := tensors.CopyFlatData[float32](original)
	flatAltered := tensors.CopyFlatData[float32](altered)
	var p Perturbation
	var sumSquares float32
	for i, v := range flatOriginal {
		diff := math32.Abs(flatAltered[i] - v)
		p.LInf = math32.Max(p.LInf, diff)
		sumSquares += diff * diff
	}
	p.L2 = math32.Sqrt(sumSquares)
	return p
}
