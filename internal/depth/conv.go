package depth

import (
	"fmt"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
)

// Conv is a small fully-convolutional depth regressor: a stack of stride-1
// same-padded convolutions ending in a single-channel feature map, so the
// depth output keeps the spatial resolution of the input.
type Conv struct {
	ctx *context.Context
}

// NewConv creates a Conv model with a fresh context, initialized with the
// default hyperparameters. Weights are created lazily on the first forward
// pass (random unless a checkpoint is loaded first).
func NewConv() *Conv {
	c := &Conv{ctx: context.New()}
	c.ctx.RngStateReset()
	c.ctx.SetParams(map[string]any{
		// Input geometry, NHWC with batch=1.
		"input_height":   240,
		"input_width":    320,
		"input_channels": 3,

		// Network size.
		"filters":       32,
		"hidden_layers": 3,

		// Depth maps are squashed into (0, max_depth) meters.
		"max_depth": 10.0,
	})
	c.ctx = c.ctx.Checked(false)
	return c
}

func (c *Conv) Context() *context.Context {
	return c.ctx
}

// InputShape implements Model.
func (c *Conv) InputShape() shapes.Shape {
	height := context.GetParamOr(c.ctx, "input_height", 240)
	width := context.GetParamOr(c.ctx, "input_width", 320)
	channels := context.GetParamOr(c.ctx, "input_channels", 3)
	return shapes.Make(dtypes.Float32, 1, height, width, channels)
}

// FinalLayerGraph implements Model: hidden convolutions with ReLU, then a
// linear single-channel convolution. This last pre-activation map is what the
// adversarial loss matches against the target depth.
func (c *Conv) FinalLayerGraph(ctx *context.Context, image *Node) *Node {
	batchSize := image.Shape().Dim(0)
	height := image.Shape().Dim(1)
	width := image.Shape().Dim(2)

	filters := context.GetParamOr(ctx, "filters", 32)
	hiddenLayers := context.GetParamOr(ctx, "hidden_layers", 3)

	x := image
	for layerIdx := range hiddenLayers {
		x = layers.Convolution(ctx.In(fmt.Sprintf("conv_%d", layerIdx)), x).
			Filters(filters).KernelSize(3).PadSame().Done()
		x = activations.Relu(x)
	}
	x = layers.Convolution(ctx.In("conv_out"), x).
		Filters(1).KernelSize(3).PadSame().Done()
	x.AssertDims(batchSize, height, width, 1)
	return x
}

// PredictGraph implements Model: the final layer squashed into
// (0, max_depth).
func (c *Conv) PredictGraph(ctx *context.Context, image *Node) *Node {
	maxDepth := context.GetParamOr(ctx, "max_depth", 10.0)
	return MulScalar(Sigmoid(c.FinalLayerGraph(ctx, image)), maxDepth)
}
