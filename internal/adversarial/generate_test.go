package adversarial

import (
	stdctx "context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/depthadv/internal/depth"
	"github.com/stretchr/testify/require"
)

// writeScenePNG saves a small synthetic "scene" with a vertical brightness
// ramp, offset so source and target differ.
func writeScenePNG(t *testing.T, name string, offset uint8) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			v := uint8(y*12) + offset
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v / 2, B: 255 - v, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), name)
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, img))
	require.NoError(t, file.Close())
	return path
}

func tinyPredictor(t *testing.T) *depth.Predictor {
	t.Helper()
	predictor, err := depth.NewPredictor("conv,input_height=16,input_width=16,filters=2,hidden_layers=1")
	require.NoError(t, err)
	return predictor
}

func TestTargetInputs(t *testing.T) {
	predictor := tinyPredictor(t)
	source := writeScenePNG(t, "sink.png", 0)
	target := writeScenePNG(t, "bathtub.png", 64)

	input, goal, err := TargetInputs(predictor, source, target)
	require.NoError(t, err)
	require.Equal(t, []int{1, 16, 16, 3}, input.Shape().Dimensions)
	require.Equal(t, []int{1, 16, 16, 1}, goal.Shape().Dimensions)

	// Missing files fail loudly, they never return a placeholder.
	_, _, err = TargetInputs(predictor, "/no/such/sink.png", target)
	require.Error(t, err)
	_, _, err = TargetInputs(predictor, source, "/no/such/bathtub.png")
	require.Error(t, err)
}

func TestGenerate(t *testing.T) {
	predictor := tinyPredictor(t)
	config := Config{
		SourcePath: writeScenePNG(t, "sink.png", 0),
		TargetPath: writeScenePNG(t, "bathtub.png", 64),
		Iterations: 5,
		StepSize:   0.001,
	}

	result, err := Generate(stdctx.Background(), predictor, config)
	require.NoError(t, err)
	require.Len(t, result.Losses, 5)
	require.Equal(t, []int{1, 16, 16, 3}, result.AlteredInput.Shape().Dimensions)
	require.Equal(t, []int{1, 16, 16, 1}, result.OriginalDepth.Shape().Dimensions)
	require.Equal(t, []int{1, 16, 16, 1}, result.AlteredDepth.Shape().Dimensions)

	// The loop did move the pixels, and the original copy was not touched.
	require.Greater(t, result.Perturbation.LInf, float32(0))
	require.Greater(t, result.Perturbation.L2, result.Perturbation.LInf)
}
