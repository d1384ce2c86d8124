package depth

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/janpfeifer/depthadv/internal/imaging"
	"github.com/janpfeifer/depthadv/internal/parameters"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Predictor owns a frozen Model and the compiled executors to run it.
//
// It is the Go rendition of the "depth model wrapper" collaborator: it
// initializes the model, loads images at the model's input resolution and
// predicts depth maps.
type Predictor struct {
	model Model

	// Executors, compiled once at construction.
	predictExec, finalLayerExec *context.Exec

	// checkpoint handler, when weights are loaded from / saved to disk.
	checkpoint *checkpoints.Handler
}

// NewPredictor builds a Predictor from a configuration string such as
// "conv,filters=32,hidden_layers=3,ckpt=/path/to/weights".
//
// The leading model name selects the architecture (only "conv" is
// implemented); the optional "ckpt" key points at a GoMLX checkpoint
// directory with pretrained weights. Remaining keys override the model's
// hyperparameters; unknown keys are an error.
func NewPredictor(config string) (*Predictor, error) {
	params := parameters.NewFromConfigString(config)
	isConv, _ := parameters.PopParamOr(params, "conv", false)
	if !isConv {
		return nil, errors.Errorf("unknown model configuration %q: only \"conv\" is implemented", config)
	}
	ckptPath, _ := parameters.PopParamOr(params, "ckpt", "")
	keep, err := parameters.PopParamOr(params, "keep", 3)
	if err != nil {
		return nil, err
	}

	p := &Predictor{model: NewConv()}
	ctx := p.model.Context()
	if err := applyParams("conv", params, ctx); err != nil {
		return nil, err
	}
	if err := parameters.AssertExhausted(params); err != nil {
		return nil, err
	}

	// Load weights before the graph runs, so loaded variables win over random
	// initialization.
	if ckptPath != "" {
		p.checkpoint, err = checkpoints.Build(ctx).Dir(ckptPath).Keep(keep).Immediate().Done()
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to load checkpoint from %q", ckptPath)
		}
		klog.V(1).Infof("Loaded depth model weights from %q", ckptPath)
	}

	_ = backend()
	p.predictExec = context.NewExec(backend(), ctx,
		func(ctx *context.Context, image *graph.Node) *graph.Node {
			ctx = ctx.Checked(false)
			return p.model.PredictGraph(ctx, image)
		})
	p.finalLayerExec = context.NewExec(backend(), ctx,
		func(ctx *context.Context, image *graph.Node) *graph.Node {
			ctx = ctx.Checked(false)
			return p.model.FinalLayerGraph(ctx, image)
		})

	// Force variable creation (or a shape error) now rather than mid-run.
	if _, err := p.Predict(tensors.FromShape(p.model.InputShape())); err != nil {
		return nil, errors.WithMessagef(err, "model %q failed its warm-up forward pass", config)
	}
	return p, nil
}

// Model returns the wrapped (frozen) model.
func (p *Predictor) Model() Model { return p.model }

// String implements fmt.Stringer.
func (p *Predictor) String() string {
	if p == nil {
		return "<nil>[depth]"
	}
	if p.checkpoint == nil {
		return "conv[depth]"
	}
	return fmt.Sprintf("conv[depth]@%s", p.checkpoint.Dir())
}

// LoadImage reads and decodes the image in path, resized to the model's input
// resolution, as a [1, height, width, channels] float32 tensor in [0, 1].
func (p *Predictor) LoadImage(path string) (*tensors.Tensor, error) {
	dims := p.model.InputShape().Dimensions
	return imaging.LoadTensor(path, dims[1], dims[2], dims[3])
}

// Predict runs the model forward and returns the depth map, shaped
// [1, height, width, 1].
func (p *Predictor) Predict(image *tensors.Tensor) (depthMap *tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() {
		depthMap = p.predictExec.Call(image)[0]
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "depth prediction failed for image shaped %s", image.Shape())
	}
	return depthMap, nil
}

// FinalLayer runs the model forward and returns the final-layer activation
// instead of the depth output.
func (p *Predictor) FinalLayer(image *tensors.Tensor) (activation *tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() {
		activation = p.finalLayerExec.Call(image)[0]
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "final-layer evaluation failed for image shaped %s", image.Shape())
	}
	return activation, nil
}

// Save writes the current weights to the checkpoint directory, if one was
// configured.
func (p *Predictor) Save() error {
	if p.checkpoint == nil {
		klog.Warning("Depth model has no checkpoint directory configured, not saving")
		return nil
	}
	return p.checkpoint.Save()
}
