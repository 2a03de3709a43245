package cmd

import (
	"testing"

	"github.com/microcompunics/imbatracer/pkg/integrator"
	"github.com/microcompunics/imbatracer/pkg/scene"
)

func TestBuiltinScenesConstruct(t *testing.T) {
	for name, entry := range builtinScenes {
		sc, cam, err := scene.NewCornellScene(entry.option, 16, 16)
		if err != nil {
			t.Errorf("scene %q: %v", name, err)
			continue
		}
		if sc.LightCount() == 0 {
			t.Errorf("scene %q has no lights", name)
		}
		if cam.Width() != 16 || cam.Height() != 16 {
			t.Errorf("scene %q camera raster mismatch", name)
		}
	}
}

func TestIntegratorModesConstruct(t *testing.T) {
	sc, cam, err := scene.NewCornellScene(scene.CornellEmpty, 16, 16)
	if err != nil {
		t.Fatal(err)
	}

	cfg := integrator.Config{Width: 16, Height: 16, SamplesPerPixel: 1}
	for name, mode := range integratorModes {
		if _, err := integrator.New(mode, cfg, sc, cam); err != nil {
			t.Errorf("integrator %q: %v", name, err)
		}
	}
}
