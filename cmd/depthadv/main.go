// depthadv generates an adversarial example for a depth-estimation model:
// it perturbs a source image, by gradient steps, until the model predicts for
// it the depth map of a different target image, then displays and saves the
// original/altered inputs and their depth predictions.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/janpfeifer/depthadv/internal/adversarial"
	"github.com/janpfeifer/depthadv/internal/depth"
	"github.com/janpfeifer/depthadv/internal/ui/spinning"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagSource = flag.String("source", "", "Image whose pixels are perturbed (e.g. the sink photo).")
	flagTarget = flag.String("target", "", "Image whose predicted depth is the optimization goal (e.g. the bathtub photo).")
	flagModel  = flag.String("model", "conv", "Depth model configuration string, e.g. "+
		"\"conv,filters=32,hidden_layers=3,ckpt=/path/to/weights\".")

	flagIterations = flag.Int("iterations", adversarial.DefaultIterations,
		"Number of gradient steps to run.")
	flagStepSize = flag.Float64("step_size", adversarial.DefaultStepSize,
		"Step size for each gradient update.")

	flagOutput  = flag.String("output", "", "Directory where result PNGs are written. Empty disables saving.")
	flagPreview = flag.Bool("preview", true, "Render the results in the terminal.")
)

// Globals
var (
	// globalCtx is cancelled when the program is interrupted (Ctrl+C); the
	// optimization loop checks it between steps.
	globalCtx = context.Background()
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	var globalCancel func()
	globalCtx, globalCancel = context.WithCancel(context.Background())
	spinning.SafeInterrupt(globalCancel, 5*time.Second)
	defer globalCancel()

	if *flagProfiler >= 0 {
		setupHTTPProfiler()
		defer httpProfilerOnQuit()
	}
	if *flagCPUProfile != "" {
		stopCPUProfile := createCPUProfile()
		defer stopCPUProfile()
	}

	must.M(run())
}

func run() error {
	if *flagSource == "" || *flagTarget == "" {
		return errors.New("both -source and -target image paths are required")
	}

	klog.Infof("Creating depth model from %q", *flagModel)
	spin := spinning.New(globalCtx)
	predictor, err := depth.NewPredictor(*flagModel)
	spin.Done()
	if err != nil {
		return err
	}
	klog.V(1).Infof("Model ready: %s, input shape %s", predictor, predictor.Model().InputShape())

	fmt.Printf("Running %d gradient steps (step size %g)...\n", *flagIterations, *flagStepSize)
	result, err := adversarial.Generate(globalCtx, predictor, adversarial.Config{
		SourcePath: *flagSource,
		TargetPath: *flagTarget,
		Iterations: *flagIterations,
		StepSize:   float32(*flagStepSize),
	})
	if err != nil {
		return err
	}

	if len(result.Losses) > 0 {
		fmt.Printf("Loss: %g -> %g over %d steps\n",
			result.Losses[0], result.Losses[len(result.Losses)-1], len(result.Losses))
	}
	fmt.Printf("Perturbation: L_inf=%.5f, L2=%.5f\n",
		result.Perturbation.LInf, result.Perturbation.L2)

	return display(result)
}
