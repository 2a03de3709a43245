package cmd

import (
	"github.com/microcompunics/imbatracer/log"
	"github.com/urfave/cli"
)

var logger = log.New("imbatracer")

// setupLogging adjusts verbosity from the global cli flags
func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	} else if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}
}
