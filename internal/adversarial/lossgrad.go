// Package adversarial perturbs an input image, by gradient steps against a
// frozen depth model, until the model's predicted depth approaches the depth
// predicted for a different target image.
package adversarial

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/janpfeifer/depthadv/internal/depth"
	"github.com/pkg/errors"
)

// gradientNormFloor is the smallest divisor used when normalizing the
// gradient by its mean absolute value, so a vanishing gradient never divides
// by zero.
const gradientNormFloor = 1e-7

// LossAndGradients evaluates the adversarial loss at an input image and
// returns it together with the normalized gradient of the loss with respect
// to the image pixels.
type LossAndGradients func(image *tensors.Tensor) (loss float32, gradients *tensors.Tensor, err error)

// NewLossAndGradients compiles the loss/gradient computation for the given
// frozen model and target depth map and returns it as an explicit callable:
// it is threaded into the optimization loop as a value, there is no hidden
// process-wide state.
//
// The loss is the sum of squared differences between the model's final-layer
// activation and targetDepth, divided by the final layer's element count. The
// gradient is taken with respect to the input image and divided by
// max(mean(|gradient|), gradientNormFloor), which keeps step sizes comparable
// across iterations regardless of the raw gradient magnitude.
func NewLossAndGradients(model depth.Model, targetDepth *tensors.Tensor) LossAndGradients {
	exec := context.NewExec(depth.Backend(), model.Context(),
		func(ctx *context.Context, inputs []*Node) []*Node {
			ctx = ctx.Checked(false)
			image, target := inputs[0], inputs[1]
			finalLayer := model.FinalLayerGraph(ctx, image)
			scale := float64(finalLayer.Shape().Size())
			loss := DivScalar(ReduceAllSum(Square(Sub(finalLayer, target))), scale)
			gradients := Gradient(loss, image)[0]
			norm := Max(ReduceAllMean(Abs(gradients)), Const(image.Graph(), float32(gradientNormFloor)))
			gradients = Div(gradients, norm)
			return []*Node{loss, gradients}
		})

	return func(image *tensors.Tensor) (loss float32, gradients *tensors.Tensor, err error) {
		err = exceptions.TryCatch[error](func() {
			results := exec.Call(image, targetDepth)
			loss = tensors.ToScalar[float32](results[0])
			gradients = results[1]
		})
		if err != nil {
			return 0, nil, errors.WithMessagef(err, "adversarial loss evaluation failed for image shaped %s", image.Shape())
		}
		return loss, gradients, nil
	}
}
