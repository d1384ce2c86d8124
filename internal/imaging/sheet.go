package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Panel is one labeled cell of a contact sheet.
type Panel struct {
	Image image.Image
	Label string
}

const (
	sheetMargin = 8
	labelHeight = 18
)

// ContactSheet lays the panels out in a grid with the given number of columns
// and draws each panel's label above it. All panels are assumed to share the
// same size (they all come from the same model resolution here).
func ContactSheet(panels []Panel, columns int) (image.Image, error) {
	if len(panels) == 0 {
		return nil, errors.New("contact sheet needs at least one panel")
	}
	if columns < 1 {
		columns = 1
	}
	rows := (len(panels) + columns - 1) / columns
	cellW := panels[0].Image.Bounds().Dx()
	cellH := panels[0].Image.Bounds().Dy()

	sheetW := columns*cellW + (columns+1)*sheetMargin
	sheetH := rows*(cellH+labelHeight) + (rows+1)*sheetMargin
	sheet := image.NewNRGBA(image.Rect(0, 0, sheetW, sheetH))
	draw.Draw(sheet, sheet.Bounds(), image.NewUniform(color.Gray{Y: 0x20}), image.Point{}, draw.Src)

	for i, panel := range panels {
		col := i % columns
		row := i / columns
		left := sheetMargin + col*(cellW+sheetMargin)
		top := sheetMargin + row*(cellH+labelHeight+sheetMargin)

		drawLabel(sheet, panel.Label, left, top+labelHeight-5)
		target := image.Rect(left, top+labelHeight, left+cellW, top+labelHeight+cellH)
		draw.Draw(sheet, target, panel.Image, panel.Image.Bounds().Min, draw.Src)
	}
	return sheet, nil
}

// drawLabel writes text at (x, y) with the fixed 7x13 bitmap font.
func drawLabel(dst draw.Image, text string, x, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// SavePNG writes img to path.
func SavePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}
	if err := png.Encode(file, img); err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "failed to encode PNG to %q", path)
	}
	return errors.Wrapf(file.Close(), "failed to close %q", path)
}
