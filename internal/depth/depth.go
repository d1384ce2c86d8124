// Package depth wraps a monocular depth-estimation model built with GoMLX.
//
// The model is always frozen here: the package only runs forward passes and
// exposes the model's final-layer activation so callers can differentiate
// through it with respect to the input image. No optimizer ever touches the
// weights.
package depth

import (
	"sync"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/janpfeifer/depthadv/internal/parameters"
	"github.com/pkg/errors"
)

// backend is a singleton, shared by all predictors and executors.
var backend = sync.OnceValue(func() backends.Backend { return backends.MustNew() })

// Backend returns the process-wide GoMLX backend.
func Backend() backends.Backend { return backend() }

// Model is a GoMLX depth model: it maps an image tensor shaped
// [batch, height, width, channels] to a depth map shaped
// [batch, height, width, 1].
type Model interface {
	// Context holds the model's weights and hyperparameters.
	Context() *context.Context

	// InputShape the model expects, shaped [1, height, width, channels].
	InputShape() shapes.Shape

	// FinalLayerGraph returns the model's last feature map before the output
	// transformation, shaped [batch, height, width, 1]. The adversarial loss
	// is built on this node.
	FinalLayerGraph(ctx *context.Context, image *graph.Node) *graph.Node

	// PredictGraph returns the depth map. It must be a pure function of
	// FinalLayerGraph's output.
	PredictGraph(ctx *context.Context, image *graph.Node) *graph.Node
}

// applyParams overwrites the context hyperparameters from the user's
// configuration string. Only root-scope hyperparameters already declared by
// the model can be set; the types are taken from their default values.
func applyParams(modelName string, params parameters.Params, ctx *context.Context) error {
	var err error
	ctx.EnumerateParams(func(scope, key string, valueAny any) {
		if err != nil || scope != context.RootScope {
			return
		}
		switch defaultValue := valueAny.(type) {
		case string:
			value, _ := parameters.PopParamOr(params, key, defaultValue)
			ctx.SetParam(key, value)
		case int:
			value, newErr := parameters.PopParamOr(params, key, defaultValue)
			if newErr != nil {
				err = errors.WithMessagef(newErr, "parsing %q (int) for model %s", key, modelName)
				return
			}
			ctx.SetParam(key, value)
		case float64:
			value, newErr := parameters.PopParamOr(params, key, defaultValue)
			if newErr != nil {
				err = errors.WithMessagef(newErr, "parsing %q (float64) for model %s", key, modelName)
				return
			}
			ctx.SetParam(key, value)
		case float32:
			value, newErr := parameters.PopParamOr(params, key, defaultValue)
			if newErr != nil {
				err = errors.WithMessagef(newErr, "parsing %q (float32) for model %s", key, modelName)
				return
			}
			ctx.SetParam(key, value)
		case bool:
			value, newErr := parameters.PopParamOr(params, key, defaultValue)
			if newErr != nil {
				err = errors.WithMessagef(newErr, "parsing %q (bool) for model %s", key, modelName)
				return
			}
			ctx.SetParam(key, value)
		default:
			err = errors.Errorf("model %s hyperparameter %q has unsupported type %T", modelName, key, defaultValue)
		}
	})
	return err
}
