// Package main is the sensing command line tool. It lists the sensors of a config file and
// streams samples from one of them.
package main

import (
	"context"

	"go.viam.com/utils"

	// registers the drivers.
	_ "go.viam.com/sensing/driver/fake"
	_ "go.viam.com/sensing/driver/phy3d"
	"go.viam.com/sensing/logging"
)

var logger = logging.NewLogger("sensing")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	return newApp(logger).RunContext(ctx, args)
}
