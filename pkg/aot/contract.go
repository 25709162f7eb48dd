package aot

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chazu/luaot/pkg/bytecode"
)

// TraversalVersion identifies the numbering scheme of generated functions:
// pre-order over the prototype tree, children in index order.
const TraversalVersion = 1

// ErrContractMismatch is returned when a prototype tree does not match
// the functions a unit was generated for.
var ErrContractMismatch = errors.New("traversal contract mismatch")

// Contract binds generated entry points to prototypes. Both the generated
// unit and the glue that installs it must agree on it.
type Contract struct {
	Version   int             `cbor:"1,keyasint"`
	Module    string          `cbor:"2,keyasint"`
	BuildID   string          `cbor:"3,keyasint"`
	HasSource bool            `cbor:"4,keyasint"`
	Functions []ContractEntry `cbor:"5,keyasint"`
}

// ContractEntry describes one generated function.
type ContractEntry struct {
	ID   int      `cbor:"1,keyasint"`
	Name string   `cbor:"2,keyasint"`
	Path []int    `cbor:"3,keyasint"` // child indexes from the main function
	Hash [32]byte `cbor:"4,keyasint"` // PrototypeHash of the function
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("aot: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalContract serializes a contract to canonical CBOR.
func MarshalContract(c *Contract) ([]byte, error) {
	return cborEncMode.Marshal(c)
}

// UnmarshalContract deserializes a contract from CBOR bytes.
func UnmarshalContract(data []byte) (*Contract, error) {
	var c Contract
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("aot: unmarshal contract: %w", err)
	}
	return &c, nil
}

// PathString renders a child-index path in dotted form. The main
// function's path is empty.
func PathString(path []int) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// PrototypeHash computes the SHA-256 content hash of one function: its
// header, code and constants. Children contribute only their count.
func PrototypeHash(p *bytecode.Prototype) [32]byte {
	h := sha256.New()
	var b [8]byte

	writeInt := func(n int) {
		binary.LittleEndian.PutUint64(b[:], uint64(n))
		h.Write(b[:])
	}

	writeInt(int(p.NumParams))
	if p.IsVararg {
		writeInt(1)
	} else {
		writeInt(0)
	}
	writeInt(int(p.MaxStackSize))
	writeInt(len(p.Upvalues))
	writeInt(len(p.Protos))

	writeInt(len(p.Code))
	for _, ins := range p.Code {
		binary.LittleEndian.PutUint32(b[:4], uint32(ins))
		h.Write(b[:4])
	}

	writeInt(len(p.Constants))
	for _, k := range p.Constants {
		h.Write([]byte{byte(k.Kind)})
		switch k.Kind {
		case bytecode.ConstBool:
			if k.Bool {
				h.Write([]byte{1})
			} else {
				h.Write([]byte{0})
			}
		case bytecode.ConstInt:
			binary.LittleEndian.PutUint64(b[:], uint64(k.Int))
			h.Write(b[:])
		case bytecode.ConstFloat:
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(k.Float))
			h.Write(b[:])
		case bytecode.ConstString:
			writeInt(len(k.Str))
			h.Write([]byte(k.Str))
		}
	}

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// buildID derives a name-based UUID from the module name and the
// function hashes, so identical inputs always get the same ID.
func buildID(module string, source []byte, entries []ContractEntry) string {
	data := []byte("luaot:" + module + "\x00")
	data = append(data, source...)
	for _, e := range entries {
		data = append(data, e.Hash[:]...)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, data).String()
}

// newContract builds the contract for a traversal.
func newContract(module string, source []byte, hasSource bool, entries []FunctionEntry) *Contract {
	c := &Contract{
		Version:   TraversalVersion,
		Module:    module,
		HasSource: hasSource,
		Functions: make([]ContractEntry, len(entries)),
	}
	for i, e := range entries {
		c.Functions[i] = ContractEntry{
			ID:   e.ID,
			Name: e.Name,
			Path: e.Path,
			Hash: PrototypeHash(e.Proto),
		}
	}
	c.BuildID = buildID(module, source, c.Functions)
	return c
}

// Verify checks that root yields exactly the functions of the contract,
// in the same order and with the same content.
func (c *Contract) Verify(root *bytecode.Prototype) error {
	if c.Version != TraversalVersion {
		return fmt.Errorf("%w: traversal version %d, want %d", ErrContractMismatch, c.Version, TraversalVersion)
	}
	id := 0
	err := root.Walk(func(p *bytecode.Prototype, path []int) error {
		if id >= len(c.Functions) {
			return fmt.Errorf("%w: extra function at path %q", ErrContractMismatch, PathString(path))
		}
		want := c.Functions[id]
		if PathString(want.Path) != PathString(path) {
			return fmt.Errorf("%w: function %d is at path %q, want %q",
				ErrContractMismatch, id, PathString(path), PathString(want.Path))
		}
		if PrototypeHash(p) != want.Hash {
			return fmt.Errorf("%w: function %d (%s) has different content", ErrContractMismatch, id, want.Name)
		}
		id++
		return nil
	})
	if err != nil {
		return err
	}
	if id != len(c.Functions) {
		return fmt.Errorf("%w: %d functions, want %d", ErrContractMismatch, id, len(c.Functions))
	}
	return nil
}
