package cmd

import (
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/microcompunics/imbatracer/pkg/integrator"
	"github.com/microcompunics/imbatracer/pkg/renderer"
	"github.com/microcompunics/imbatracer/pkg/scene"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// builtinScenes maps scene names to their constructors
var builtinScenes = map[string]struct {
	option scene.CornellOption
	desc   string
}{
	"cornell":        {scene.CornellEmpty, "empty cornell box with a ceiling area light"},
	"cornell-mirror": {scene.CornellMirrorSphere, "cornell box with a mirror sphere"},
	"cornell-glass":  {scene.CornellGlassSphere, "cornell box with a glass sphere"},
}

// integratorModes maps flag values to integrator modes
var integratorModes = map[string]integrator.Mode{
	"pt":   integrator.ModePathTracing,
	"lt":   integrator.ModeLightTracing,
	"bpt":  integrator.ModeBPT,
	"sppm": integrator.ModePPM,
	"vcm":  integrator.ModeVCM,
}

// Render traces a built-in scene and writes the frame to disk.
func Render(ctx *cli.Context) error {
	setupLogging(ctx)

	name := ctx.Args().First()
	if name == "" {
		name = "cornell"
	}
	entry, ok := builtinScenes[name]
	if !ok {
		err := fmt.Errorf("unknown scene %q", name)
		logger.Error(err)
		return err
	}

	mode, ok := integratorModes[ctx.String("integrator")]
	if !ok {
		err := fmt.Errorf("unknown integrator %q", ctx.String("integrator"))
		logger.Error(err)
		return err
	}

	width := ctx.Int("width")
	height := ctx.Int("height")
	iterations := ctx.Int("iterations")
	if iterations <= 0 {
		iterations = 1
	}

	logger.Noticef("loading scene %s", name)
	sc, cam, err := scene.NewCornellScene(entry.option, width, height)
	if err != nil {
		logger.Error(err)
		return err
	}
	logger.Infof("scene has %d triangles, %d lights", sc.Mesh.TriangleCount(), sc.LightCount())

	cfg := integrator.Config{
		Width:           width,
		Height:          height,
		SamplesPerPixel: ctx.Int("spp"),
		BaseRadius:      ctx.Float64("radius"),
		Workers:         ctx.Int("workers"),
	}

	integ, err := integrator.New(mode, cfg, sc, cam)
	if err != nil {
		logger.Error(err)
		return err
	}

	img := renderer.NewImage(width, height)

	logger.Noticef("rendering %dx%d, %d spp, %d iterations, integrator %s",
		width, height, cfg.SamplesPerPixel, iterations, mode)

	start := time.Now()
	for i := 0; i < iterations; i++ {
		iterStart := time.Now()
		if err := integ.Render(img); err != nil {
			logger.Error(err)
			return err
		}
		logger.Infof("iteration %d/%d done in %v", i+1, iterations, time.Since(iterStart))
	}
	elapsed := time.Since(start)

	outFile := ctx.String("out")
	f, err := os.Create(outFile)
	if err != nil {
		logger.Error(err)
		return err
	}
	defer f.Close()

	if err := png.Encode(f, img.ToNRGBA(1.0/float64(iterations))); err != nil {
		logger.Error(err)
		return err
	}

	logger.Noticef("wrote %s", outFile)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Scene", "Integrator", "Resolution", "Spp", "Iterations", "Time"})
	table.Append([]string{
		name,
		mode.String(),
		fmt.Sprintf("%dx%d", width, height),
		fmt.Sprintf("%d", cfg.SamplesPerPixel),
		fmt.Sprintf("%d", iterations),
		elapsed.Round(time.Millisecond).String(),
	})
	table.Render()

	return nil
}

// ListScenes prints the built-in scene table.
func ListScenes(ctx *cli.Context) error {
	setupLogging(ctx)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Description"})
	for name, entry := range builtinScenes {
		table.Append([]string{name, entry.desc})
	}
	table.Render()
	return nil
}
