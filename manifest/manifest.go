// Package manifest handles luaot.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/luaot/pkg/aot"
	"github.com/chazu/luaot/pkg/loader"
)

// FileName is the name FindAndLoad looks for.
const FileName = "luaot.toml"

// Manifest represents a luaot.toml configuration.
type Manifest struct {
	Output   Output   `toml:"output"`
	Compile  Compile  `toml:"compile"`
	Contract Contract `toml:"contract"`

	// Dir is the directory containing the luaot.toml file (set at load time).
	Dir string `toml:"-"`
}

// Output configures the generated C unit.
type Output struct {
	Header         string `toml:"header"`
	Footer         string `toml:"footer"`
	FunctionPrefix string `toml:"function-prefix"`
	Comments       bool   `toml:"comments"`
	EmbedSource    bool   `toml:"embed-source"`
}

// Compile configures input loading and translation.
type Compile struct {
	Unsupported string `toml:"unsupported"`
	Luac        string `toml:"luac"`
}

// Contract configures the traversal contract sidecar.
type Contract struct {
	File string `toml:"file"`
}

// Default returns the configuration used when no luaot.toml exists.
func Default() *Manifest {
	opts := aot.DefaultOptions()
	return &Manifest{
		Output: Output{
			Header:         opts.Header,
			Footer:         opts.Footer,
			FunctionPrefix: opts.FunctionPrefix,
			Comments:       opts.Comments,
			EmbedSource:    opts.EmbedSource,
		},
		Compile: Compile{
			Unsupported: opts.Unsupported.String(),
			Luac:        loader.DefaultCompiler,
		},
	}
}

// Load parses the luaot.toml file in the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a configuration file. Keys it leaves out keep their
// Default values.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	md, err := toml.Decode(string(data), m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	// Defaults for keys set to empty strings
	def := Default()
	if m.Output.Header == "" {
		m.Output.Header = def.Output.Header
	}
	if m.Output.Footer == "" {
		m.Output.Footer = def.Output.Footer
	}
	if m.Output.FunctionPrefix == "" {
		m.Output.FunctionPrefix = def.Output.FunctionPrefix
	}
	if m.Compile.Unsupported == "" {
		m.Compile.Unsupported = def.Compile.Unsupported
	}
	if m.Compile.Luac == "" {
		m.Compile.Luac = def.Compile.Luac
	}

	if _, err := aot.ParsePolicy(m.Compile.Unsupported); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a luaot.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Options converts the configuration to code generation options.
func (m *Manifest) Options() (aot.Options, error) {
	policy, err := aot.ParsePolicy(m.Compile.Unsupported)
	if err != nil {
		return aot.Options{}, err
	}
	return aot.Options{
		Header:         m.Output.Header,
		Footer:         m.Output.Footer,
		FunctionPrefix: m.Output.FunctionPrefix,
		Comments:       m.Output.Comments,
		EmbedSource:    m.Output.EmbedSource,
		Unsupported:    policy,
	}, nil
}

// ContractPath returns the sidecar path, relative paths being resolved
// against the manifest directory. It is empty when no sidecar is wanted.
func (m *Manifest) ContractPath() string {
	if m.Contract.File == "" || filepath.IsAbs(m.Contract.File) || m.Dir == "" {
		return m.Contract.File
	}
	return filepath.Join(m.Dir, m.Contract.File)
}
