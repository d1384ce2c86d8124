package adversarial

import (
	"context"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// GradientDescent runs the fixed-iteration optimization loop: at each step it
// evaluates lossAndGradients at the current image, logs the loss, and applies
// image -= stepSize * gradients in place. It returns the loss recorded at
// each step.
//
// The original experiment called this step "gradient ascent" even though the
// update subtracts the gradient and so descends the loss toward the target
// depth; the literal subtract-update is kept here.
//
// Termination is purely iteration-count based, except that a canceled ctx
// stops the loop early and returns the losses accumulated so far.
func GradientDescent(ctx context.Context, lossAndGradients LossAndGradients,
	image *tensors.Tensor, iterations int, stepSize float32) ([]float32, error) {
	losses := make([]float32, 0, iterations)
	for i := range iterations {
		if ctx.Err() != nil {
			klog.Warningf("Optimization interrupted after %d of %d iterations", i, iterations)
			return losses, nil
		}
		loss, gradients, err := lossAndGradients(image)
		if err != nil {
			return losses, errors.WithMessagef(err, "gradient step %d", i)
		}
		klog.Infof("Loss at %d: %g", i, loss)
		losses = append(losses, loss)
		applyStep(image, gradients, stepSize)
	}
	return losses, nil
}

// applyStep mutates the (exclusively owned) image buffer in place.
func applyStep(image, gradients *tensors.Tensor, stepSize float32) {
	flatGradients := tensors.CopyFlatData[float32](gradients)
	tensors.MutableFlatData(image, func(flat []float32) {
		for i, g := range flatGradients {
			flat[i] -= stepSize * g
		}
	})
}
