// Command dxmem inspects schema layouts and exercises the direct accessors
// against the in-memory chunk store.
package main

import (
	"os"

	"github.com/golang/glog"
	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	app := &cli.App{
		Name:  "dxmem",
		Usage: "direct memory layouts over a chunk store",
		Commands: []*cli.Command{
			planCommand(),
			constsCommand(),
			demoCommand(),
			versionCommand(),
		},
		Before:          setGoFlagVals,
		HideHelpCommand: true,
	}
	addGoFlags(app)
	return app
}

func main() {
	defer glog.Flush()
	if err := newApp().Run(os.Args); err != nil {
		glog.Errorf("%+v", err)
		glog.Flush()
		os.Exit(1)
	}
}
