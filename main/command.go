package main

import (
	"flag"
	"fmt"
	"runtime/debug"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

var goFlags []*flag.Flag

// versionCommand prints the module build information.
func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print build information",
		Action: func(c *cli.Context) error {
			info, ok := debug.ReadBuildInfo()
			if !ok {
				fmt.Fprintln(c.App.Writer, "dxmem (unknown build)")
				return nil
			}
			fmt.Fprintf(c.App.Writer, "%s %s %s\n", info.Main.Path, info.Main.Version, info.GoVersion)
			return nil
		},
	}
}

// addGoFlags exposes the flags registered on flag.CommandLine, glog's among
// them, as app flags.
func addGoFlags(app *cli.App) {
	flag.CommandLine.VisitAll(func(gf *flag.Flag) {
		goFlags = append(goFlags, gf)
		app.Flags = append(app.Flags, &cli.StringFlag{
			Name:        gf.Name,
			Value:       gf.Value.String(),
			Usage:       gf.Usage,
			DefaultText: gf.DefValue,
		})
	})
}

// setGoFlagVals copies the parsed app values back into the go flags and
// marks flag.CommandLine parsed so glog does not complain.
func setGoFlagVals(c *cli.Context) error {
	for _, gf := range goFlags {
		if !c.IsSet(gf.Name) {
			continue
		}
		if err := gf.Value.Set(c.String(gf.Name)); err != nil {
			return errors.Wrapf(err, "flag -%s", gf.Name)
		}
	}
	goFlags = nil
	return flag.CommandLine.Parse(nil)
}
