// Package imaging converts between on-disk images and the float32 NHWC
// tensors the depth model consumes, and renders results back into images.
package imaging

import (
	"image"
	"os"

	_ "image/jpeg"
	_ "image/png"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// LoadTensor reads the image at path and returns it as a
// [1, height, width, channels] float32 tensor with values in [0, 1], resized
// to the requested resolution. channels must be 1 (luminance) or 3 (RGB).
//
// A missing file surfaces as the os.Open error: there is no placeholder
// fallback.
func LoadTensor(path string, height, width, channels int) (*tensors.Tensor, error) {
	if channels != 1 && channels != 3 {
		return nil, errors.Errorf("channels must be 1 or 3, got %d", channels)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image %q", path)
	}
	defer func() { _ = file.Close() }()

	decoded, _, err := image.Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image %q", path)
	}
	decoded = resize.Resize(uint(width), uint(height), decoded, resize.Bilinear)

	flat := make([]float32, height*width*channels)
	bounds := decoded.Bounds()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := decoded.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			pos := (y*width + x) * channels
			if channels == 3 {
				flat[pos+0] = float32(r) / 0xffff
				flat[pos+1] = float32(g) / 0xffff
				flat[pos+2] = float32(b) / 0xffff
			} else {
				// ITU-R BT.601 luminance.
				flat[pos] = (0.299*float32(r) + 0.587*float32(g) + 0.114*float32(b)) / 0xffff
			}
		}
	}
	return tensors.FromFlatDataAndDimensions(flat, 1, height, width, channels), nil
}

// spatialDims returns (height, width, channels) for an image tensor shaped
// either [height, width, channels] or [1, height, width, channels].
func spatialDims(t *tensors.Tensor) (height, width, channels int, err error) {
	dims := t.Shape().Dimensions
	switch len(dims) {
	case 3:
		return dims[0], dims[1], dims[2], nil
	case 4:
		if dims[0] != 1 {
			return 0, 0, 0, errors.Errorf("image tensor must have batch=1, got shape %s", t.Shape())
		}
		return dims[1], dims[2], dims[3], nil
	}
	return 0, 0, 0, errors.Errorf("image tensor must have rank 3 or 4, got shape %s", t.Shape())
}

// ToMultichannel returns t with 3 channels: 3-channel tensors are returned
// unchanged, 1-channel tensors have their channel repeated 3 times. The rank
// (3 or 4, with batch=1) is preserved.
func ToMultichannel(t *tensors.Tensor) (*tensors.Tensor, error) {
	height, width, channels, err := spatialDims(t)
	if err != nil {
		return nil, err
	}
	if channels == 3 {
		return t, nil
	}
	if channels != 1 {
		return nil, errors.Errorf("cannot broadcast %d channels to 3", channels)
	}
	flat := tensors.CopyFlatData[float32](t)
	stacked := make([]float32, height*width*3)
	for i, v := range flat {
		stacked[3*i+0] = v
		stacked[3*i+1] = v
		stacked[3*i+2] = v
	}
	if t.Shape().Rank() == 4 {
		return tensors.FromFlatDataAndDimensions(stacked, 1, height, width, 3), nil
	}
	return tensors.FromFlatDataAndDimensions(stacked, height, width, 3), nil
}

// ToImage renders an input image tensor (1 or 3 channels, values in [0, 1])
// as an 8-bit RGB image. Values outside [0, 1] are clamped.
func ToImage(t *tensors.Tensor) (image.Image, error) {
	t, err := ToMultichannel(t)
	if err != nil {
		return nil, err
	}
	height, width, _, err := spatialDims(t)
	if err != nil {
		return nil, err
	}
	flat := tensors.CopyFlatData[float32](t)
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pos := (y*width + x) * 3
			offset := img.PixOffset(x, y)
			img.Pix[offset+0] = clampByte(flat[pos+0])
			img.Pix[offset+1] = clampByte(flat[pos+1])
			img.Pix[offset+2] = clampByte(flat[pos+2])
			img.Pix[offset+3] = 0xff
		}
	}
	return img, nil
}

func clampByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xff
	}
	return uint8(v * 255)
}
