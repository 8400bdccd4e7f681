package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"biomelevel.ai/internal/level/blocks"
	"biomelevel.ai/internal/level/world"
	"biomelevel.ai/internal/persistence/snapshot"
	"biomelevel.ai/internal/tuning"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: levelctl <command> [flags]

commands:
  inspect  print header and per-layer stats of level files
  convert  rewrite a level into another layer shape
  pack     compress a JSON level into a .level.zst file
  unpack   expand a .level.zst file into JSON
  new      write an empty level with the configured layers
  db       query the level index
  audit    print audit log entries
  push     upload a level to a server
  pull     download a level from a server
  ls       list levels on a server`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "inspect":
		err = inspectCmd(os.Args[2:], os.Stdout)
	case "convert":
		err = convertCmd(os.Args[2:])
	case "pack":
		err = packCmd(os.Args[2:], true)
	case "unpack":
		err = packCmd(os.Args[2:], false)
	case "new":
		err = newCmd(os.Args[2:])
	case "db":
		err = dbCmd(os.Args[2:], os.Stdout)
	case "audit":
		err = auditCmd(os.Args[2:], os.Stdout)
	case "push":
		err = pushCmd(os.Args[2:], os.Stdout)
	case "pull":
		err = pullCmd(os.Args[2:], os.Stdout)
	case "ls":
		err = lsCmd(os.Args[2:], os.Stdout)
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, os.Args[1]+":", err)
		os.Exit(1)
	}
}

func loadTuning(path string) (tuning.Tuning, error) {
	if _, err := os.Stat(path); err != nil {
		return tuning.Load("")
	}
	return tuning.Load(path)
}

// readLevel accepts both .level.zst files and plain JSON containers.
func readLevel(path string) (snapshot.Header, *world.Container, error) {
	return snapshot.ReadLevel(path)
}

// writeLevel writes JSON when path ends in .json and a level file otherwise.
func writeLevel(path string, c *world.Container) error {
	if strings.HasSuffix(path, ".json") {
		b, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, append(b, '\n'), 0o644)
	}
	_, err := snapshot.WriteLevel(path, c)
	return err
}

func printJSON(w io.Writer, v any) {
	b, _ := json.Marshal(v)
	fmt.Fprintln(w, string(b))
}

func inspectCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	configPath := fs.String("config", "./configs/levels.yaml", "levels.yaml used by -check")
	check := fs.Bool("check", false, "also import every level into the configured layers")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		return fmt.Errorf("missing level file")
	}

	tune, err := loadTuning(*configPath)
	if err != nil {
		return err
	}
	for _, path := range fs.Args() {
		h, c, err := readLevel(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(w, "%s: level v%d name=%q digest=%s layers=%d world_size=%d seed=%d format_version=%d\n",
			path, h.Version, c.Metadata.Name, h.Digest, len(c.Layers), c.Metadata.WorldSize, c.Metadata.Seed, c.Metadata.FormatVersion)
		stats, err := world.Stats(c)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for _, st := range stats {
			printJSON(w, st)
		}
		if !*check {
			continue
		}
		size := c.Metadata.WorldSize
		if size <= 0 {
			size = tune.WorldSize
		}
		rep, err := world.Import(c, tune.NewStack(size))
		if err != nil {
			return fmt.Errorf("%s: import: %w", path, err)
		}
		for _, lr := range rep.Layers {
			fmt.Fprintf(w, "import %s: %s %dx%d runs=%d cells=%d\n", lr.LayerType, lr.Shape, lr.Width, lr.Height, lr.Runs, lr.Cells)
		}
		for _, t := range rep.Skipped {
			fmt.Fprintf(w, "import %s: skipped (not configured)\n", t)
		}
	}
	return nil
}

func parseShape(s string) (blocks.Shape, error) {
	t := tuning.Defaults()
	t.Export.Shape = strings.ToLower(strings.TrimSpace(s))
	return t.ExportShape()
}

func convertCmd(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	shapeName := fs.String("shape", "auto", "target shape: auto, rle-base64, indexed or literal")
	out := fs.String("o", "", "output path (.json or .level.zst; required)")
	_ = fs.Parse(args)
	if fs.NArg() != 1 || *out == "" {
		return fmt.Errorf("want: convert -shape <shape> -o <out> <in>")
	}
	shape, err := parseShape(*shapeName)
	if err != nil {
		return err
	}
	_, c, err := readLevel(fs.Arg(0))
	if err != nil {
		return err
	}
	conv, err := world.Convert(c, shape)
	if err != nil {
		return err
	}
	return writeLevel(*out, conv)
}

// packCmd converts between plain JSON and level files. Digests are preserved.
func packCmd(args []string, pack bool) error {
	name := "unpack"
	if pack {
		name = "pack"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("want: %s <in> <out>", name)
	}
	in, out := fs.Arg(0), fs.Arg(1)
	if pack && strings.HasSuffix(out, ".json") {
		return fmt.Errorf("pack output must not be .json")
	}
	if !pack && !strings.HasSuffix(out, ".json") {
		out += ".json"
	}
	_, c, err := readLevel(in)
	if err != nil {
		return err
	}
	return writeLevel(out, c)
}

func newCmd(args []string) error {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	configPath := fs.String("config", "./configs/levels.yaml", "levels.yaml naming the layers")
	name := fs.String("name", "", "level name (required)")
	size := fs.Int("size", 0, "world size (default: config world_size)")
	seed := fs.Int64("seed", 0, "maze generation seed")
	out := fs.String("o", "", "output path (default: <name>.level.zst)")
	_ = fs.Parse(args)
	if *name == "" {
		return fmt.Errorf("missing -name")
	}
	tune, err := loadTuning(*configPath)
	if err != nil {
		return err
	}
	if *size <= 0 {
		*size = tune.WorldSize
	}
	if *size > tune.MaxWorldSize {
		return fmt.Errorf("size %d exceeds max_world_size %d", *size, tune.MaxWorldSize)
	}
	stack := tune.NewStack(*size)
	c, err := world.Export(world.Metadata{Name: *name, WorldSize: *size, Seed: *seed}, stack.Layers(), tune.ExportOptions())
	if err != nil {
		return err
	}
	if *out == "" {
		*out = *name + snapshot.Ext
	}
	return writeLevel(*out, c)
}
