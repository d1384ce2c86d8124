// Package termviz renders images directly in the terminal with ANSI
// half-block characters, standing in for an interactive plot window.
package termviz

import (
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/nfnt/resize"
	"golang.org/x/term"
)

// maxPreviewColumns caps how wide a preview gets, even on wide terminals.
const maxPreviewColumns = 96

var labelStyle = lipgloss.NewStyle().
	Bold(true).
	Background(lipgloss.Color("13")).
	Foreground(lipgloss.Color("0")).
	Padding(0, 2)

// terminalWidth returns the current terminal width, or a conservative default
// when stdout is not a terminal.
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func printCentered(block string, width int) {
	for _, line := range strings.Split(block, "\n") {
		indent := (width - lipgloss.Width(line)) / 2
		if indent < 0 {
			indent = 0
		}
		fmt.Printf("%s%s\n", strings.Repeat(" ", indent), line)
	}
}

// Print renders img under a styled label. Each character cell covers two
// vertically stacked pixels via the upper-half-block rune, with the top pixel
// as foreground and the bottom pixel as background.
func Print(img image.Image, label string) {
	width := terminalWidth()
	columns := width - 4
	if columns > maxPreviewColumns {
		columns = maxPreviewColumns
	}
	if columns < 2 {
		columns = 2
	}
	if img.Bounds().Dx() < columns {
		columns = img.Bounds().Dx()
	}
	// Half-block cells are roughly square: two pixel rows per text row.
	scaled := resize.Resize(uint(columns), 0, img, resize.Bilinear)
	bounds := scaled.Bounds()

	printCentered(labelStyle.Render(label), width)
	var sb strings.Builder
	for y := bounds.Min.Y; y+1 < bounds.Max.Y; y += 2 {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			top := hexColor(scaled, x, y)
			bottom := hexColor(scaled, x, y+1)
			sb.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color(top)).
				Background(lipgloss.Color(bottom)).
				Render("▀"))
		}
		sb.WriteByte('\n')
	}
	printCentered(strings.TrimRight(sb.String(), "\n"), width)
	fmt.Println()
}

func hexColor(img image.Image, x, y int) string {
	r, g, b, _ := img.At(x, y).RGBA()
	return fmt.Sprintf("#%02x%02x%02x", uint8(r>>8), uint8(g>>8), uint8(b>>8))
}
