package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/rawbytedev/dxmem"
	"github.com/rawbytedev/dxmem/pkg/cid"
	"github.com/rawbytedev/dxmem/pkg/memstore"
	"github.com/rawbytedev/dxmem/pkg/model"
	"github.com/urfave/cli/v2"
)

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "populate an in-memory store with the example schema and snapshot it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "memstore TOML config"},
			&cli.StringFlag{Name: "snapshot", Usage: "write the store snapshot to this file"},
			&cli.IntFlag{Name: "cities", Value: 1000, Usage: "number of cities to create"},
			&cli.BoolFlag{Name: "check-types", Usage: "verify type tags on by-id access"},
			&cli.StringFlag{Name: "memprofile", Usage: "write a heap profile to this file"},
		},
		Action: runDemo,
	}
}

func runDemo(c *cli.Context) error {
	cfg, err := memstore.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if path := c.String("memprofile"); path != "" {
		runtime.MemProfileRate = 1
		defer writeHeapProfile(path)
	}
	store, err := memstore.New(cfg)
	if err != nil {
		return err
	}
	ctx, err := dxmem.Open(store, dxmem.Config{CheckTypes: c.Bool("check-types")})
	if err != nil {
		return err
	}
	m, err := model.Bind(ctx)
	if err != nil {
		return err
	}

	country, cities, err := populate(m, c.Int("cities"))
	if err != nil {
		return err
	}
	st := store.Stats()
	w := c.App.Writer
	fmt.Fprintf(w, "node %d: %d chunks, %d live bytes, %d free blocks\n", store.NodeID(), st.Chunks, st.LiveBytes, st.FreeBlocks)
	if err := report(w, m, country, cities); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := store.Snapshot(&buf); err != nil {
		return err
	}
	fmt.Fprintf(w, "snapshot: %d bytes (level %s)\n", buf.Len(), cfg.Snapshot.Level)
	if err := verifySnapshot(cfg, buf.Bytes(), m, cities); err != nil {
		return err
	}
	if path := c.String("snapshot"); path != "" {
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return errors.Wrap(err, "write snapshot")
		}
		glog.Infof("snapshot written to %s", path)
	}
	return nil
}

// populate creates one country and n cities referencing it. Every tenth
// city is dropped again to leave holes in the arena.
func populate(m *model.Model, n int) (cid.ID, []cid.ID, error) {
	country, err := m.Country.Create()
	if err != nil {
		return cid.Invalid, nil, err
	}
	if err := m.Country.Name.Set(country, "Germany"); err != nil {
		return cid.Invalid, nil, err
	}
	cities, err := m.City.CreateN(n)
	if err != nil {
		return cid.Invalid, nil, err
	}
	kept := cities[:0]
	for i, city := range cities {
		if err := m.City.Name.Set(city, fmt.Sprintf("city-%04d", i)); err != nil {
			return cid.Invalid, nil, err
		}
		if err := m.City.Country.Set(city, country); err != nil {
			return cid.Invalid, nil, err
		}
		if err := m.City.Population.Set(city, int32(1000*(i+1))); err != nil {
			return cid.Invalid, nil, err
		}
		if i%10 == 9 {
			if err := m.City.Remove(city); err != nil {
				return cid.Invalid, nil, err
			}
			continue
		}
		kept = append(kept, city)
	}
	if len(kept) > 0 {
		if err := m.Country.Capital.Set(country, kept[0]); err != nil {
			return cid.Invalid, nil, err
		}
	}
	if err := m.Country.Cities.SetAll(country, kept); err != nil {
		return cid.Invalid, nil, err
	}
	glog.V(1).Infof("populated %d cities, kept %d", n, len(kept))
	return country, kept, nil
}

func report(w io.Writer, m *model.Model, country cid.ID, cities []cid.ID) error {
	name, _, err := m.Country.Name.Get(country)
	if err != nil {
		return err
	}
	n, err := m.Country.Cities.Len(country)
	if err != nil {
		return err
	}
	var total int64
	for _, city := range cities {
		p, err := m.City.Population.Get(city)
		if err != nil {
			return err
		}
		total += int64(p)
	}
	fmt.Fprintf(w, "%s: %d cities, population %d\n", name, n, total)
	if n > 0 {
		capital, err := m.Country.Capital.Get(country)
		if err != nil {
			return err
		}
		cname, _, err := m.City.Name.GetAt(capital.Address())
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "capital: %s at %s\n", cname, capital)
	}
	return nil
}

// verifySnapshot restores the snapshot into a fresh store and reads the
// cities back through it.
func verifySnapshot(cfg memstore.Config, snap []byte, m *model.Model, cities []cid.ID) error {
	fresh, err := memstore.New(cfg)
	if err != nil {
		return err
	}
	if err := fresh.Restore(bytes.NewReader(snap)); err != nil {
		return err
	}
	ctx, err := dxmem.Open(fresh, dxmem.Config{})
	if err != nil {
		return err
	}
	rm, err := model.Bind(ctx)
	if err != nil {
		return err
	}
	for _, city := range cities {
		want, _, err := m.City.Name.Get(city)
		if err != nil {
			return err
		}
		got, _, err := rm.City.Name.Get(city)
		if err != nil {
			return errors.Wrapf(err, "restored %s", city)
		}
		if got != want {
			return errors.Errorf("restored %s: name %q, want %q", city, got, want)
		}
	}
	glog.V(1).Infof("snapshot verified for %d cities", len(cities))
	return nil
}

func writeHeapProfile(path string) {
	f, err := os.Create(path)
	if err != nil {
		glog.Errorf("heap profile: %v", err)
		return
	}
	defer f.Close()
	if err := pprof.WriteHeapProfile(f); err != nil {
		glog.Errorf("heap profile: %v", err)
	}
}
