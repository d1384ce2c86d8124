package depth

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

const tinyConvConfig = "conv,input_height=8,input_width=8,filters=2,hidden_layers=1"

func TestNewPredictorConfig(t *testing.T) {
	// Unknown model type.
	_, err := NewPredictor("fnn")
	require.Error(t, err)
	require.Contains(t, err.Error(), "only \"conv\"")

	// Unknown hyperparameter.
	_, err = NewPredictor("conv,filtres=32")
	require.Error(t, err)
	require.Contains(t, err.Error(), "filtres")

	// Valid config, with hyperparameter overrides applied.
	predictor, err := NewPredictor(tinyConvConfig)
	require.NoError(t, err)
	require.Equal(t, []int{1, 8, 8, 3}, predictor.Model().InputShape().Dimensions)
}

func TestPredictShapeAndDeterminism(t *testing.T) {
	predictor, err := NewPredictor(tinyConvConfig)
	require.NoError(t, err)

	flat := make([]float32, 8*8*3)
	for i := range flat {
		flat[i] = float32(i%17) / 17
	}
	input := tensors.FromFlatDataAndDimensions(flat, 1, 8, 8, 3)

	depthMap, err := predictor.Predict(input)
	require.NoError(t, err)
	require.Equal(t, []int{1, 8, 8, 1}, depthMap.Shape().Dimensions)

	// Frozen model, no dropout: repeated evaluation is bit-identical.
	again, err := predictor.Predict(input)
	require.NoError(t, err)
	require.Equal(t,
		tensors.CopyFlatData[float32](depthMap),
		tensors.CopyFlatData[float32](again))

	// Depth maps stay within (0, max_depth).
	maxDepth := float32(10)
	for _, v := range tensors.CopyFlatData[float32](depthMap) {
		require.Greater(t, v, float32(0))
		require.Less(t, v, maxDepth)
	}
}

func TestPredictShapeMismatch(t *testing.T) {
	predictor, err := NewPredictor(tinyConvConfig)
	require.NoError(t, err)

	// Wrong channel count against the already-created conv kernels: surfaces
	// as an error, not a panic.
	bad := tensors.FromFlatDataAndDimensions(make([]float32, 8*8*4), 1, 8, 8, 4)
	_, err = predictor.Predict(bad)
	require.Error(t, err)
}

func TestFinalLayer(t *testing.T) {
	predictor, err := NewPredictor(tinyConvConfig)
	require.NoError(t, err)

	input := tensors.FromFlatDataAndDimensions(make([]float32, 8*8*3), 1, 8, 8, 3)
	activation, err := predictor.FinalLayer(input)
	require.NoError(t, err)
	require.Equal(t, []int{1, 8, 8, 1}, activation.Shape().Dimensions)
}

func TestLoadImage(t *testing.T) {
	predictor, err := NewPredictor(tinyConvConfig)
	require.NoError(t, err)

	img := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 12), G: 128, B: uint8(y * 25), A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "input.png")
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, img))
	require.NoError(t, file.Close())

	// Loaded at the model's input resolution, whatever the file's size.
	loaded, err := predictor.LoadImage(path)
	require.NoError(t, err)
	require.Equal(t, []int{1, 8, 8, 3}, loaded.Shape().Dimensions)

	_, err = predictor.LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
}

func TestCheckpointSaveLoad(t *testing.T) {
	dir := t.TempDir()
	config := tinyConvConfig + ",ckpt=" + dir

	predictor, err := NewPredictor(config)
	require.NoError(t, err)

	input := tensors.FromFlatDataAndDimensions(make([]float32, 8*8*3), 1, 8, 8, 3)
	want, err := predictor.Predict(input)
	require.NoError(t, err)
	require.NoError(t, predictor.Save())

	// A fresh predictor over the same checkpoint reproduces the predictions.
	reloaded, err := NewPredictor(config)
	require.NoError(t, err)
	got, err := reloaded.Predict(input)
	require.NoError(t, err)
	require.Equal(t,
		tensors.CopyFlatData[float32](want),
		tensors.CopyFlatData[float32](got))
}
