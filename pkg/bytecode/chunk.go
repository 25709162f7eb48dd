package bytecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Binary chunk header constants (lundump.h, Lua 5.4).
const (
	ChunkSignature = "\x1bLua"
	ChunkVersion   = 0x54
	ChunkFormat    = 0
	chunkData      = "\x19\x93\r\n\x1a\n"
	chunkInt       = 0x5678
	chunkNum       = 370.5

	sizeInstruction = 4
	sizeInteger     = 8
	sizeNumber      = 8
)

// Constant type tags as stored in a chunk (makevariant in lobject.h).
const (
	tagNil      = 0x00
	tagFalse    = 0x01
	tagTrue     = 0x11
	tagInt      = 0x03
	tagFloat    = 0x13
	tagShortStr = 0x04
	tagLongStr  = 0x14
)

// ---------------------------------------------------------------------------
// Chunk Error Types
// ---------------------------------------------------------------------------

var (
	ErrBadChunk        = errors.New("bad binary chunk")
	ErrNotChunk        = errors.New("not a precompiled chunk")
	ErrVersionMismatch = errors.New("version mismatch")
	ErrFormatMismatch  = errors.New("format mismatch")
	ErrTruncated       = errors.New("truncated precompiled chunk")
)

// IsChunk reports whether data starts with the binary chunk signature.
func IsChunk(data []byte) bool {
	return bytes.HasPrefix(data, []byte(ChunkSignature))
}

// chunkReader decodes a binary chunk held in memory.
type chunkReader struct {
	data   []byte
	offset int
	order  binary.ByteOrder
	name   string
}

// Undump decodes a Lua 5.4 binary chunk into its main prototype.
// The name is used in error messages only.
func Undump(data []byte, name string) (*Prototype, error) {
	r := &chunkReader{data: data, name: name}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	if _, err := r.readByte(); err != nil { // number of upvalues of the main closure
		return nil, err
	}
	p, err := r.readFunction("")
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *chunkReader) errorf(base error, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", r.name, base, fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Header Reading
// ---------------------------------------------------------------------------

func (r *chunkReader) readHeader() error {
	if !IsChunk(r.data) {
		return fmt.Errorf("%s: %w", r.name, ErrNotChunk)
	}
	r.offset = len(ChunkSignature)

	version, err := r.readByte()
	if err != nil {
		return err
	}
	if version != ChunkVersion {
		return r.errorf(ErrVersionMismatch, "expected 0x%02x, got 0x%02x", ChunkVersion, version)
	}
	format, err := r.readByte()
	if err != nil {
		return err
	}
	if format != ChunkFormat {
		return r.errorf(ErrFormatMismatch, "format %d", format)
	}
	data, err := r.readBlock(len(chunkData))
	if err != nil {
		return err
	}
	if string(data) != chunkData {
		return r.errorf(ErrBadChunk, "corrupted chunk")
	}
	for _, check := range []struct {
		what string
		size int
	}{
		{"Instruction", sizeInstruction},
		{"lua_Integer", sizeInteger},
		{"lua_Number", sizeNumber},
	} {
		size, err := r.readByte()
		if err != nil {
			return err
		}
		if int(size) != check.size {
			return r.errorf(ErrFormatMismatch, "%s size mismatch", check.what)
		}
	}

	raw, err := r.readBlock(sizeInteger)
	if err != nil {
		return err
	}
	switch {
	case binary.LittleEndian.Uint64(raw) == chunkInt:
		r.order = binary.LittleEndian
	case binary.BigEndian.Uint64(raw) == chunkInt:
		r.order = binary.BigEndian
	default:
		return r.errorf(ErrFormatMismatch, "integer format mismatch")
	}
	num, err := r.readNumber()
	if err != nil {
		return err
	}
	if num != chunkNum {
		return r.errorf(ErrFormatMismatch, "float format mismatch")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Primitive Reading
// ---------------------------------------------------------------------------

func (r *chunkReader) readBlock(n int) ([]byte, error) {
	if n < 0 || r.offset+n > len(r.data) {
		return nil, fmt.Errorf("%s: %w", r.name, ErrTruncated)
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *chunkReader) readByte() (byte, error) {
	b, err := r.readBlock(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// readUnsigned decodes the MSB-first 7-bit varint used for sizes.
func (r *chunkReader) readUnsigned(limit uint64) (uint64, error) {
	var x uint64
	limit >>= 7
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		if x >= limit {
			return 0, r.errorf(ErrBadChunk, "integer overflow")
		}
		x = x<<7 | uint64(b&0x7f)
		if b&0x80 != 0 {
			return x, nil
		}
	}
}

func (r *chunkReader) readSize() (int, error) {
	n, err := r.readUnsigned(math.MaxInt64)
	return int(n), err
}

func (r *chunkReader) readInt() (int, error) {
	n, err := r.readUnsigned(math.MaxInt32)
	return int(n), err
}

func (r *chunkReader) readInteger() (int64, error) {
	b, err := r.readBlock(sizeInteger)
	if err != nil {
		return 0, err
	}
	return int64(r.order.Uint64(b)), nil
}

func (r *chunkReader) readNumber() (float64, error) {
	b, err := r.readBlock(sizeNumber)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(r.order.Uint64(b)), nil
}

// readString returns the string and whether it was present at all.
func (r *chunkReader) readString() (string, bool, error) {
	size, err := r.readSize()
	if err != nil {
		return "", false, err
	}
	if size == 0 {
		return "", false, nil
	}
	b, err := r.readBlock(size - 1)
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

// ---------------------------------------------------------------------------
// Function Reading
// ---------------------------------------------------------------------------

func (r *chunkReader) readFunction(parentSource string) (*Prototype, error) {
	p := &Prototype{}
	var err error

	source, ok, err := r.readString()
	if err != nil {
		return nil, err
	}
	if !ok {
		source = parentSource
	}
	p.Source = source

	if p.LineDefined, err = r.readInt(); err != nil {
		return nil, err
	}
	if p.LastLineDefined, err = r.readInt(); err != nil {
		return nil, err
	}
	if p.NumParams, err = r.readByte(); err != nil {
		return nil, err
	}
	vararg, err := r.readByte()
	if err != nil {
		return nil, err
	}
	p.IsVararg = vararg != 0
	if p.MaxStackSize, err = r.readByte(); err != nil {
		return nil, err
	}

	if err := r.readCode(p); err != nil {
		return nil, err
	}
	if err := r.readConstants(p); err != nil {
		return nil, err
	}
	if err := r.readUpvalues(p); err != nil {
		return nil, err
	}
	if err := r.readProtos(p); err != nil {
		return nil, err
	}
	if err := r.readDebug(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *chunkReader) readCode(p *Prototype) error {
	n, err := r.readInt()
	if err != nil {
		return err
	}
	raw, err := r.readBlock(n * sizeInstruction)
	if err != nil {
		return err
	}
	p.Code = make([]Instruction, n)
	for i := range p.Code {
		word := r.order.Uint32(raw[i*sizeInstruction:])
		ins, err := Decode(word)
		if err != nil {
			return r.errorf(ErrBadChunk, "pc %d: %v", i, err)
		}
		p.Code[i] = ins
	}
	return nil
}

func (r *chunkReader) readConstants(p *Prototype) error {
	n, err := r.readInt()
	if err != nil {
		return err
	}
	p.Constants = make([]Constant, n)
	for i := range p.Constants {
		tag, err := r.readByte()
		if err != nil {
			return err
		}
		switch tag {
		case tagNil:
			p.Constants[i] = NilConstant()
		case tagFalse:
			p.Constants[i] = BoolConstant(false)
		case tagTrue:
			p.Constants[i] = BoolConstant(true)
		case tagInt:
			v, err := r.readInteger()
			if err != nil {
				return err
			}
			p.Constants[i] = IntConstant(v)
		case tagFloat:
			v, err := r.readNumber()
			if err != nil {
				return err
			}
			p.Constants[i] = FloatConstant(v)
		case tagShortStr, tagLongStr:
			s, _, err := r.readString()
			if err != nil {
				return err
			}
			p.Constants[i] = Constant{Kind: ConstString, Str: s, Long: tag == tagLongStr}
		default:
			return r.errorf(ErrBadChunk, "constant %d has unknown tag 0x%02x", i, tag)
		}
	}
	return nil
}

func (r *chunkReader) readUpvalues(p *Prototype) error {
	n, err := r.readInt()
	if err != nil {
		return err
	}
	p.Upvalues = make([]Upvalue, n)
	for i := range p.Upvalues {
		b, err := r.readBlock(3)
		if err != nil {
			return err
		}
		p.Upvalues[i] = Upvalue{InStack: b[0] != 0, Index: int(b[1]), Kind: b[2]}
	}
	return nil
}

func (r *chunkReader) readProtos(p *Prototype) error {
	n, err := r.readInt()
	if err != nil {
		return err
	}
	p.Protos = make([]*Prototype, n)
	for i := range p.Protos {
		child, err := r.readFunction(p.Source)
		if err != nil {
			return err
		}
		p.Protos[i] = child
	}
	return nil
}

func (r *chunkReader) readDebug(p *Prototype) error {
	n, err := r.readInt()
	if err != nil {
		return err
	}
	if n > 0 {
		raw, err := r.readBlock(n)
		if err != nil {
			return err
		}
		p.LineInfo = make([]int8, n)
		for i, b := range raw {
			p.LineInfo[i] = int8(b)
		}
	}

	if n, err = r.readInt(); err != nil {
		return err
	}
	if n > 0 {
		p.AbsLineInfo = make([]AbsLineInfo, n)
	}
	for i := 0; i < n; i++ {
		if p.AbsLineInfo[i].PC, err = r.readInt(); err != nil {
			return err
		}
		if p.AbsLineInfo[i].Line, err = r.readInt(); err != nil {
			return err
		}
	}

	if n, err = r.readInt(); err != nil {
		return err
	}
	if n > 0 {
		p.LocVars = make([]LocVar, n)
	}
	for i := 0; i < n; i++ {
		if p.LocVars[i].Name, _, err = r.readString(); err != nil {
			return err
		}
		if p.LocVars[i].StartPC, err = r.readInt(); err != nil {
			return err
		}
		if p.LocVars[i].EndPC, err = r.readInt(); err != nil {
			return err
		}
	}

	if n, err = r.readInt(); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		name, _, err := r.readString()
		if err != nil {
			return err
		}
		if i < len(p.Upvalues) {
			p.Upvalues[i].Name = name
		}
	}
	return nil
}
