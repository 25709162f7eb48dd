package bytecode

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Dump encodes p as a Lua 5.4 binary chunk in little-endian byte order.
// The output is accepted by Undump and by luac-compatible loaders.
func Dump(p *Prototype) []byte {
	return DumpOrder(p, binary.LittleEndian)
}

// DumpOrder is like Dump with an explicit byte order for multi-byte
// integers, floats and instruction words.
func DumpOrder(p *Prototype, order binary.ByteOrder) []byte {
	w := &chunkWriter{order: order}
	w.writeHeader()
	w.buf.WriteByte(byte(len(p.Upvalues)))
	w.writeFunction(p, "")
	return w.buf.Bytes()
}

type chunkWriter struct {
	buf   bytes.Buffer
	order binary.ByteOrder
}

func (w *chunkWriter) writeHeader() {
	w.buf.WriteString(ChunkSignature)
	w.buf.WriteByte(ChunkVersion)
	w.buf.WriteByte(ChunkFormat)
	w.buf.WriteString(chunkData)
	w.buf.WriteByte(sizeInstruction)
	w.buf.WriteByte(sizeInteger)
	w.buf.WriteByte(sizeNumber)
	w.writeInteger(chunkInt)
	w.writeNumber(chunkNum)
}

// writeSize emits x as MSB-first 7-bit groups; the last byte carries 0x80.
func (w *chunkWriter) writeSize(x uint64) {
	var tmp [10]byte
	n := 0
	for {
		n++
		tmp[len(tmp)-n] = byte(x & 0x7f)
		x >>= 7
		if x == 0 {
			break
		}
	}
	tmp[len(tmp)-1] |= 0x80
	w.buf.Write(tmp[len(tmp)-n:])
}

func (w *chunkWriter) writeInt(n int) {
	w.writeSize(uint64(n))
}

func (w *chunkWriter) writeInteger(n int64) {
	var b [sizeInteger]byte
	w.order.PutUint64(b[:], uint64(n))
	w.buf.Write(b[:])
}

func (w *chunkWriter) writeNumber(f float64) {
	var b [sizeNumber]byte
	w.order.PutUint64(b[:], math.Float64bits(f))
	w.buf.Write(b[:])
}

func (w *chunkWriter) writeString(s string, present bool) {
	if !present {
		w.writeSize(0)
		return
	}
	w.writeSize(uint64(len(s)) + 1)
	w.buf.WriteString(s)
}

func (w *chunkWriter) writeFunction(p *Prototype, parentSource string) {
	// Children that share the parent's source leave it out.
	w.writeString(p.Source, parentSource == "" || p.Source != parentSource)
	w.writeInt(p.LineDefined)
	w.writeInt(p.LastLineDefined)
	w.buf.WriteByte(p.NumParams)
	if p.IsVararg {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
	w.buf.WriteByte(p.MaxStackSize)

	w.writeInt(len(p.Code))
	var word [sizeInstruction]byte
	for _, ins := range p.Code {
		w.order.PutUint32(word[:], uint32(ins))
		w.buf.Write(word[:])
	}

	w.writeInt(len(p.Constants))
	for _, k := range p.Constants {
		w.writeConstant(k)
	}

	w.writeInt(len(p.Upvalues))
	for _, uv := range p.Upvalues {
		instack := byte(0)
		if uv.InStack {
			instack = 1
		}
		w.buf.Write([]byte{instack, byte(uv.Index), uv.Kind})
	}

	w.writeInt(len(p.Protos))
	for _, child := range p.Protos {
		w.writeFunction(child, p.Source)
	}

	w.writeDebug(p)
}

func (w *chunkWriter) writeConstant(k Constant) {
	switch k.Kind {
	case ConstNil:
		w.buf.WriteByte(tagNil)
	case ConstBool:
		if k.Bool {
			w.buf.WriteByte(tagTrue)
		} else {
			w.buf.WriteByte(tagFalse)
		}
	case ConstInt:
		w.buf.WriteByte(tagInt)
		w.writeInteger(k.Int)
	case ConstFloat:
		w.buf.WriteByte(tagFloat)
		w.writeNumber(k.Float)
	case ConstString:
		if k.Long {
			w.buf.WriteByte(tagLongStr)
		} else {
			w.buf.WriteByte(tagShortStr)
		}
		w.writeString(k.Str, true)
	}
}

func (w *chunkWriter) writeDebug(p *Prototype) {
	w.writeInt(len(p.LineInfo))
	for _, d := range p.LineInfo {
		w.buf.WriteByte(byte(d))
	}
	w.writeInt(len(p.AbsLineInfo))
	for _, abs := range p.AbsLineInfo {
		w.writeInt(abs.PC)
		w.writeInt(abs.Line)
	}
	w.writeInt(len(p.LocVars))
	for _, lv := range p.LocVars {
		w.writeString(lv.Name, true)
		w.writeInt(lv.StartPC)
		w.writeInt(lv.EndPC)
	}

	named := 0
	for i, uv := range p.Upvalues {
		if uv.Name != "" {
			named = i + 1
		}
	}
	w.writeInt(named)
	for _, uv := range p.Upvalues[:named] {
		w.writeString(uv.Name, true)
	}
}
