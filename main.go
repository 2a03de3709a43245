package main

import (
	"os"

	"github.com/microcompunics/imbatracer/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "imbatracer"
	app.Usage = "render scenes with a wavefront light transport core"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render a built-in scene",
			Description: `
Trace a built-in test scene with one of the integrator variants (pt, lt, bpt,
sppm, vcm) and write the accumulated frame to a png file.`,
			ArgsUsage: "scene_name",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "width",
					Value: 512,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 512,
					Usage: "frame height",
				},
				cli.IntFlag{
					Name:  "spp",
					Value: 16,
					Usage: "samples per pixel per iteration",
				},
				cli.IntFlag{
					Name:  "iterations",
					Value: 8,
					Usage: "render iterations to accumulate",
				},
				cli.StringFlag{
					Name:  "integrator",
					Value: "pt",
					Usage: "integrator variant: pt, lt, bpt, sppm or vcm",
				},
				cli.Float64Flag{
					Name:  "radius",
					Value: 0.01,
					Usage: "initial merge radius for sppm/vcm",
				},
				cli.IntFlag{
					Name:  "workers",
					Value: 0,
					Usage: "worker count, 0 selects one per cpu",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "frame.png",
					Usage: "image filename for the rendered frame",
				},
			},
			Action: cmd.Render,
		},
		{
			Name:   "scenes",
			Usage:  "list built-in scenes",
			Action: cmd.ListScenes,
		},
	}

	app.Run(os.Args)
}
