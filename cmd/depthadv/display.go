package main

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/janpfeifer/depthadv/internal/adversarial"
	"github.com/janpfeifer/depthadv/internal/imaging"
	"github.com/janpfeifer/depthadv/internal/ui/termviz"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// display renders the four result images in order: original input, its depth
// prediction, the altered input and its depth prediction. Inputs with a
// single channel are broadcast to 3 channels for display.
func display(result *adversarial.Result) error {
	panels, err := resultPanels(result)
	if err != nil {
		return err
	}
	if *flagPreview {
		for _, panel := range panels {
			termviz.Print(panel.Image, panel.Label)
		}
	}
	if *flagOutput != "" {
		return savePanels(panels)
	}
	return nil
}

func resultPanels(result *adversarial.Result) ([]imaging.Panel, error) {
	type entry struct {
		tensor  *tensors.Tensor
		label   string
		isDepth bool
	}
	entries := []entry{
		{result.OriginalInput, "original input", false},
		{result.OriginalDepth, "original depth", true},
		{result.AlteredInput, "altered input", false},
		{result.AlteredDepth, "altered depth", true},
	}
	panels := make([]imaging.Panel, 0, len(entries))
	for _, e := range entries {
		var img image.Image
		var err error
		if e.isDepth {
			img, err = imaging.DepthToImage(e.tensor)
		} else {
			img, err = imaging.ToImage(e.tensor)
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "rendering %q", e.label)
		}
		panels = append(panels, imaging.Panel{Image: img, Label: e.label})
	}
	return panels, nil
}

func savePanels(panels []imaging.Panel) error {
	if err := os.MkdirAll(*flagOutput, 0755); err != nil {
		return errors.Wrapf(err, "failed to create output directory %q", *flagOutput)
	}
	names := []string{"input.png", "input_depth.png", "altered.png", "altered_depth.png"}
	for i, panel := range panels {
		path := filepath.Join(*flagOutput, names[i])
		if err := imaging.SavePNG(path, panel.Image); err != nil {
			return err
		}
		klog.V(1).Infof("Wrote %s", path)
	}

	sheet, err := imaging.ContactSheet(panels, 2)
	if err != nil {
		return err
	}
	path := filepath.Join(*flagOutput, "summary.png")
	if err := imaging.SavePNG(path, sheet); err != nil {
		return err
	}
	fmt.Printf("Results written to %s\n", *flagOutput)
	return nil
}
