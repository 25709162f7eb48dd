// Command luaot translates a Lua 5.4 module into a C unit that the luaot
// glue templates turn into a loadable library.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/luaot/manifest"
	"github.com/chazu/luaot/pkg/aot"
	"github.com/chazu/luaot/pkg/loader"
)

const progName = "luaot"

var log = commonlog.GetLogger("luaot.cli")

var errNotC = errors.New(`output file is not of a "c" file`)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(progName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbosity := fs.Int("v", 0, "Log verbosity (0 = warnings, 1 = info, 2 = debug)")
	configPath := fs.String("config", "", "Configuration file (default: nearest luaot.toml)")
	listing := fs.Bool("l", false, "Print a listing of the translated functions")
	contractPath := fs.String("contract", "", "Write the traversal contract (CBOR) to this file")
	unsupported := fs.String("unsupported", "", "Unsupported opcode policy: error, trap, fallback")
	luac := fs.String("luac", "", "Lua compiler used for source input")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: %s [options] input.lua output.c\n\n", progName)
		fmt.Fprintf(stderr, "Translates a Lua 5.4 module (source or binary chunk) into C.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  luaot foo.lua foo.c                  # luaopen_foo\n")
		fmt.Fprintf(stderr, "  luaot -unsupported trap foo.lua foo.c\n")
		fmt.Fprintf(stderr, "  luaot -l -contract foo.cbor foo.luac foo.c\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 2 {
		fmt.Fprintf(stderr, "usage: %s input.lua output.c\n", progName)
		return 1
	}
	input, output := fs.Arg(0), fs.Arg(1)

	commonlog.Configure(*verbosity, nil)

	cfg, err := loadConfig(*configPath, input)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", progName, err)
		return 1
	}
	if *unsupported != "" {
		cfg.Compile.Unsupported = *unsupported
	}
	if *luac != "" {
		cfg.Compile.Luac = *luac
	}
	contract := cfg.ContractPath()
	if *contractPath != "" {
		contract = *contractPath
	}

	t := translation{
		cfg:      cfg,
		input:    input,
		output:   output,
		contract: contract,
	}
	if *listing {
		t.listing = stdout
	}
	if err := t.run(context.Background()); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", progName, err)
		return 1
	}
	return 0
}

// loadConfig reads the explicit configuration file, or the nearest
// luaot.toml above the input, or falls back to the defaults.
func loadConfig(path, input string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	m, err := manifest.FindAndLoad(filepath.Dir(input))
	if err != nil {
		return nil, err
	}
	if m == nil {
		return manifest.Default(), nil
	}
	log.Debugf("using configuration %s", filepath.Join(m.Dir, manifest.FileName))
	return m, nil
}

// moduleName derives the module name from the output path: the final
// component up to its first dot. The remainder must be exactly "c".
func moduleName(output string) (string, error) {
	base := output
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	name, ext, found := strings.Cut(base, ".")
	if !found || ext != "c" {
		return "", errNotC
	}
	return name, nil
}

type translation struct {
	cfg      *manifest.Manifest
	input    string
	output   string
	contract string
	listing  io.Writer
}

func (t *translation) run(ctx context.Context) error {
	name, err := moduleName(t.output)
	if err != nil {
		return err
	}
	opts, err := t.cfg.Options()
	if err != nil {
		return err
	}

	unit, err := loader.New(t.cfg.Compile.Luac).Load(ctx, t.input)
	if err != nil {
		return err
	}

	if t.listing != nil {
		if err := aot.WriteListing(t.listing, unit.Proto, opts.FunctionPrefix); err != nil {
			return err
		}
	}

	res, err := t.writeUnit(opts, aot.Unit{Name: name, Proto: unit.Proto, Source: unit.Source})
	if err != nil {
		return err
	}
	for _, u := range res.Unsupported {
		log.Infof("%s instruction: %s", opts.Unsupported, u)
	}

	if t.contract != "" {
		data, err := aot.MarshalContract(res.Contract)
		if err != nil {
			return err
		}
		if err := os.WriteFile(t.contract, data, 0644); err != nil {
			return err
		}
		log.Infof("wrote contract %s (build %s)", t.contract, res.Contract.BuildID)
	}

	log.Infof("wrote %s: %d functions", t.output, len(res.Entries))
	return nil
}

// writeUnit generates into a temporary file next to the output and renames
// it into place, so a failed run leaves no partial unit behind.
func (t *translation) writeUnit(opts aot.Options, unit aot.Unit) (*aot.Result, error) {
	tmp, err := os.CreateTemp(filepath.Dir(t.output), ".luaot-*.c")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	res, err := aot.NewCompiler(opts).CompileModule(bw, unit)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = tmp.Chmod(0644)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	if err := os.Rename(tmp.Name(), t.output); err != nil {
		return nil, err
	}
	return res, nil
}
