package adversarial

import (
	stdctx "context"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

// identityModel is a toy depth "model" whose final layer is the input itself,
// so the adversarial loss reduces to mean((input-target)²).
type identityModel struct {
	ctx *context.Context
}

func newIdentityModel() *identityModel {
	return &identityModel{ctx: context.New().Checked(false)}
}

func (m *identityModel) Context() *context.Context { return m.ctx }

func (m *identityModel) InputShape() shapes.Shape {
	return shapes.Make(dtypes.Float32, 1, 4, 4, 1)
}

func (m *identityModel) FinalLayerGraph(_ *context.Context, image *graph.Node) *graph.Node {
	return image
}

func (m *identityModel) PredictGraph(_ *context.Context, image *graph.Node) *graph.Node {
	return image
}

func identityInput(values ...float32) *tensors.Tensor {
	if len(values) != 16 {
		panic("identityModel inputs have 16 elements")
	}
	return tensors.FromFlatDataAndDimensions(values, 1, 4, 4, 1)
}

func zeroTarget() *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(make([]float32, 16), 1, 4, 4, 1)
}

func rampInput() *tensors.Tensor {
	values := make([]float32, 16)
	for i := range values {
		values[i] = 0.5 + float32(i)/32 // in [0.5, 1)
	}
	return identityInput(values...)
}

func meanSquare(values []float32) float32 {
	var sum float32
	for _, v := range values {
		sum += v * v
	}
	return sum / float32(len(values))
}

func TestLossAndGradientsIdentity(t *testing.T) {
	lossAndGradients := NewLossAndGradients(newIdentityModel(), zeroTarget())
	input := rampInput()
	values := tensors.CopyFlatData[float32](input)

	loss, gradients, err := lossAndGradients(input)
	require.NoError(t, err)
	require.InDelta(t, meanSquare(values), loss, 1e-5)

	// Gradient is normalized so its mean absolute value is 1, and points in
	// the direction of each (positive) pixel.
	flat := tensors.CopyFlatData[float32](gradients)
	require.Len(t, flat, 16)
	var sumAbs float32
	for i, g := range flat {
		require.Greater(t, g, float32(0), "gradient sign at %d", i)
		sumAbs += g
	}
	require.InDelta(t, 1.0, sumAbs/16, 1e-4)
}

func TestLossAndGradientsDeterministic(t *testing.T) {
	lossAndGradients := NewLossAndGradients(newIdentityModel(), zeroTarget())
	input := rampInput()

	loss1, gradients1, err := lossAndGradients(input)
	require.NoError(t, err)
	loss2, gradients2, err := lossAndGradients(input)
	require.NoError(t, err)

	require.Equal(t, loss1, loss2)
	require.Equal(t,
		tensors.CopyFlatData[float32](gradients1),
		tensors.CopyFlatData[float32](gradients2))
}

func TestGradientNormFloor(t *testing.T) {
	// A zero input against a zero target has a vanishing gradient: the floor
	// divisor must yield zeros, not NaNs.
	lossAndGradients := NewLossAndGradients(newIdentityModel(), zeroTarget())
	loss, gradients, err := lossAndGradients(identityInput(make([]float32, 16)...))
	require.NoError(t, err)
	require.Zero(t, loss)
	for _, g := range tensors.CopyFlatData[float32](gradients) {
		require.Zero(t, g)
	}
}

func TestGradientDescentUpdateLaw(t *testing.T) {
	// Hand-rolled loss function with a different gradient each step: after 3
	// iterations the image must equal the sequential unroll of
	// x -= step*g_t, in the same order.
	step := 0
	gradientAt := func(iter int) []float32 {
		flat := make([]float32, 16)
		for i := range flat {
			flat[i] = float32(iter+1) * float32(i-8) / 8
		}
		return flat
	}
	lossAndGradients := func(image *tensors.Tensor) (float32, *tensors.Tensor, error) {
		g := tensors.FromFlatDataAndDimensions(gradientAt(step), 1, 4, 4, 1)
		step++
		return float32(step), g, nil
	}

	initial := make([]float32, 16)
	for i := range initial {
		initial[i] = float32(i) / 4
	}
	image := identityInput(append([]float32(nil), initial...)...)

	const stepSize = float32(0.001)
	losses, err := GradientDescent(stdctx.Background(), lossAndGradients, image, 3, stepSize)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, losses)

	expected := append([]float32(nil), initial...)
	for iter := 0; iter < 3; iter++ {
		for i, g := range gradientAt(iter) {
			expected[i] -= stepSize * g
		}
	}
	require.Equal(t, expected, tensors.CopyFlatData[float32](image))
}

func TestGradientDescentMonotonicLoss(t *testing.T) {
	// End-to-end with the identity final layer and a constant zero target:
	// loss at step 0 is mean(input²) and must strictly decrease through all
	// 100 default-sized steps.
	lossAndGradients := NewLossAndGradients(newIdentityModel(), zeroTarget())
	input := rampInput()
	initial := tensors.CopyFlatData[float32](input)

	losses, err := GradientDescent(stdctx.Background(), lossAndGradients, input,
		DefaultIterations, DefaultStepSize)
	require.NoError(t, err)
	require.Len(t, losses, DefaultIterations)
	require.InDelta(t, meanSquare(initial), losses[0], 1e-5)
	for i := 1; i < len(losses); i++ {
		require.Less(t, losses[i], losses[i-1], "loss must strictly decrease at step %d", i)
	}
}

func TestGradientDescentCancel(t *testing.T) {
	ctx, cancel := stdctx.WithCancel(stdctx.Background())
	cancel()
	lossAndGradients := func(*tensors.Tensor) (float32, *tensors.Tensor, error) {
		t.Fatal("loss must not be evaluated after cancellation")
		return 0, nil, nil
	}
	losses, err := GradientDescent(ctx, lossAndGradients, rampInput(), 10, 0.001)
	require.NoError(t, err)
	require.Empty(t, losses)
}

func TestGradientDescentError(t *testing.T) {
	failing := func(*tensors.Tensor) (float32, *tensors.Tensor, error) {
		return 0, nil, errors.New("shape mismatch")
	}
	_, err := GradientDescent(stdctx.Background(), failing, rampInput(), 10, 0.001)
	require.Error(t, err)
	require.Contains(t, err.Error(), "gradient step 0")
}
