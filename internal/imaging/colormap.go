package imaging

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// depthStops is a compact plasma-like ramp, near to far.
var depthStops = [][3]float32{
	{0.050, 0.030, 0.530},
	{0.494, 0.012, 0.658},
	{0.798, 0.280, 0.470},
	{0.973, 0.585, 0.252},
	{0.940, 0.975, 0.131},
}

// colormap maps v in [0, 1] to an RGB triple by interpolating depthStops.
func colormap(v float32) (r, g, b float32) {
	v = math32.Max(0, math32.Min(1, v))
	scaled := v * float32(len(depthStops)-1)
	idx := int(scaled)
	if idx >= len(depthStops)-1 {
		stop := depthStops[len(depthStops)-1]
		return stop[0], stop[1], stop[2]
	}
	frac := scaled - float32(idx)
	lo, hi := depthStops[idx], depthStops[idx+1]
	return lo[0] + frac*(hi[0]-lo[0]),
		lo[1] + frac*(hi[1]-lo[1]),
		lo[2] + frac*(hi[2]-lo[2])
}

// DepthToImage renders a single-channel depth tensor as a colorized image.
// The map is normalized to its own min/max range, so relative depth structure
// stays visible whatever the absolute scale.
func DepthToImage(t *tensors.Tensor) (image.Image, error) {
	height, width, channels, err := spatialDims(t)
	if err != nil {
		return nil, err
	}
	if channels != 1 {
		return nil, errors.Errorf("depth tensor must have 1 channel, got shape %s", t.Shape())
	}
	flat := tensors.CopyFlatData[float32](t)

	minV, maxV := flat[0], flat[0]
	for _, v := range flat {
		minV = math32.Min(minV, v)
		maxV = math32.Max(maxV, v)
	}
	scale := maxV - minV
	if scale <= 0 {
		scale = 1 // Flat map renders as a single color.
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b := colormap((flat[y*width+x] - minV) / scale)
			offset := img.PixOffset(x, y)
			img.Pix[offset+0] = clampByte(r)
			img.Pix[offset+1] = clampByte(g)
			img.Pix[offset+2] = clampByte(b)
			img.Pix[offset+3] = 0xff
		}
	}
	return img, nil
}
