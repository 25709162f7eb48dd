// Package loader turns an input file into a Lua 5.4 prototype tree.
//
// Precompiled chunks are decoded directly. Anything else is treated as Lua
// source and compiled by an external luac, whose binary output is then
// decoded the same way.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/luaot/pkg/bytecode"
)

var log = commonlog.GetLogger("luaot.loader")

// DefaultCompiler is the luac executable used when none is configured.
const DefaultCompiler = "luac"

// ErrCompile is wrapped by LoadError when the external compiler fails.
var ErrCompile = errors.New("compilation failed")

// Unit is one loaded input: the main prototype plus the raw input bytes.
type Unit struct {
	Path   string
	Proto  *bytecode.Prototype
	Source []byte // the input file exactly as read
}

// LoadError reports why an input could not be loaded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Loader produces a Unit for an input path.
type Loader interface {
	Load(ctx context.Context, path string) (*Unit, error)
}

// FileLoader reads inputs from the file system.
type FileLoader struct {
	// Compiler is the luac executable for source inputs.
	Compiler string
}

// New creates a FileLoader using the given luac executable.
// An empty name selects DefaultCompiler.
func New(compiler string) *FileLoader {
	if compiler == "" {
		compiler = DefaultCompiler
	}
	return &FileLoader{Compiler: compiler}
}

// Load reads path and decodes it, compiling it first if it is source text.
// I/O failures are returned as *fs.PathError; everything else is a
// *LoadError.
func (l *FileLoader) Load(ctx context.Context, path string) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	chunk := data
	if !bytecode.IsChunk(data) {
		log.Debugf("compiling %s with %s", path, l.compiler())
		chunk, err = l.compile(ctx, path)
		if err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
	}

	proto, err := bytecode.Undump(chunk, path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	log.Infof("loaded %s: %d functions", path, proto.Count())

	return &Unit{Path: path, Proto: proto, Source: data}, nil
}

func (l *FileLoader) compiler() string {
	if l.Compiler == "" {
		return DefaultCompiler
	}
	return l.Compiler
}

// compile runs "luac -o - path" and returns the chunk it writes to stdout.
func (l *FileLoader) compile(ctx context.Context, path string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, l.compiler(), "-o", "-", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrCompile, msg)
	}
	return stdout.Bytes(), nil
}
