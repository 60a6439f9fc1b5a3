package main

import (
	"bytes"
	"fmt"
	"go/format"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"unicode"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem/pkg/layout"
	"github.com/rawbytedev/dxmem/pkg/model"
	"github.com/urfave/cli/v2"
)

var schemaFlag = &cli.StringFlag{
	Name:    "schema",
	Aliases: []string{"s"},
	Usage:   "YAML schema file, the bundled example schema when empty",
}

// loadPlans plans the named structs, or all of them when none are named.
func loadPlans(c *cli.Context) ([]*layout.Layout, error) {
	var p *layout.Planner
	var err error
	if path := c.String(schemaFlag.Name); path != "" {
		p, err = plannerFromFile(path)
	} else {
		p, err = model.NewPlanner()
	}
	if err != nil {
		return nil, err
	}
	names := c.Args().Slice()
	if len(names) == 0 {
		names = p.Names()
	}
	plans := make([]*layout.Layout, 0, len(names))
	for _, name := range names {
		l, err := p.Plan(name)
		if err != nil {
			return nil, err
		}
		plans = append(plans, l)
	}
	glog.V(1).Infof("planned %d structs", len(plans))
	return plans, nil
}

func plannerFromFile(path string) (*layout.Planner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open schema")
	}
	defer f.Close()
	s, err := layout.LoadSchema(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	p := layout.NewPlanner()
	if err := p.Load(s); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return p, nil
}

func planCommand() *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "print the binary layout of schema structs",
		ArgsUsage: "[struct...]",
		Flags:     []cli.Flag{schemaFlag},
		Action: func(c *cli.Context) error {
			plans, err := loadPlans(c)
			if err != nil {
				return err
			}
			return printPlans(c.App.Writer, plans)
		},
	}
}

func printPlans(w io.Writer, plans []*layout.Layout) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, l := range plans {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		kind := "plain"
		if l.Tagged {
			kind = "typed"
		}
		fmt.Fprintf(tw, "%s\t%s\tsize %d\n", l.Name, kind, l.Size)
		if l.Tagged {
			fmt.Fprintf(tw, "  <header>\t\t%d\t%d\t\n", 0, layout.TypeHeaderSize)
		}
		printFields(tw, l, "", 0)
	}
	return tw.Flush()
}

func printFields(w io.Writer, l *layout.Layout, prefix string, base int) {
	for _, f := range l.Fields {
		class := f.Class.String()
		switch f.Class {
		case layout.Scalar, layout.Array:
			class += " " + f.Kind.String()
		case layout.Enum:
			class += " " + f.Enum
		case layout.Nested:
			class += " " + f.Nested.Name
		}
		fmt.Fprintf(w, "  %s%s\t%s\t%d\t%d\t%s\n", prefix, f.Name, class, base+f.Offset, f.Width, ownership(f.Class.Ownership()))
		if f.Class == layout.Nested {
			printFields(w, f.Nested, prefix+f.Name+".", base+f.Offset)
		}
	}
}

func ownership(o layout.Ownership) string {
	switch o {
	case layout.OwnedArrayChunk:
		return "owns chunk"
	case layout.OwnedNestedStruct:
		return "inline struct"
	case layout.NonOwningReference:
		return "reference"
	default:
		return ""
	}
}

func constsCommand() *cli.Command {
	return &cli.Command{
		Name:      "consts",
		Usage:     "emit Go offset constants for schema structs",
		ArgsUsage: "[struct...]",
		Flags: []cli.Flag{
			schemaFlag,
			&cli.StringFlag{Name: "package", Value: "layouts", Usage: "package clause of the output"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file, stdout when empty"},
		},
		Action: func(c *cli.Context) error {
			plans, err := loadPlans(c)
			if err != nil {
				return err
			}
			src, err := renderConsts(c.String("package"), plans)
			if err != nil {
				return err
			}
			if out := c.String("out"); out != "" {
				glog.Infof("writing %d bytes to %s", len(src), out)
				return errors.Wrap(os.WriteFile(out, src, 0o644), "write constants")
			}
			_, err = c.App.Writer.Write(src)
			return err
		},
	}
}

// renderConsts writes one const block per struct. Nested fields are
// flattened with their absolute offsets.
func renderConsts(pkg string, plans []*layout.Layout) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "// Code generated by dxmem consts. DO NOT EDIT.\n\npackage %s\n", pkg)
	for _, l := range plans {
		fmt.Fprintf(&buf, "\n// %s layout.\nconst (\n", l.Name)
		fmt.Fprintf(&buf, "%sSize = %d\n", exported(l.Name), l.Size)
		if l.Tagged {
			fmt.Fprintf(&buf, "%sHeaderType = %d\n", exported(l.Name), layout.TypeTagOffset)
		}
		writeConsts(&buf, exported(l.Name), l, 0)
		buf.WriteString(")\n")
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "format constants")
	}
	return src, nil
}

func writeConsts(buf *bytes.Buffer, prefix string, l *layout.Layout, base int) {
	for _, f := range l.Fields {
		name := prefix + exported(f.Name)
		off := base + f.Offset
		switch f.Class {
		case layout.String, layout.Array, layout.RefArray, layout.IDArray:
			fmt.Fprintf(buf, "%sLength = %d\n", name, off+layout.ArrayLenOffset)
			fmt.Fprintf(buf, "%sCID = %d\n", name, off+layout.ArrayIDOffset)
			fmt.Fprintf(buf, "%sAddr = %d\n", name, off+layout.ArrayAddrOffset)
		case layout.Ref:
			fmt.Fprintf(buf, "%sCID = %d\n", name, off+layout.RefIDOffset)
			fmt.Fprintf(buf, "%sAddr = %d\n", name, off+layout.RefAddrOffset)
		case layout.Nested:
			writeConsts(buf, name, f.Nested, off)
		default:
			fmt.Fprintf(buf, "%s = %d\n", name, off)
		}
	}
}

func exported(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' })
	var b strings.Builder
	for _, p := range parts {
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}
