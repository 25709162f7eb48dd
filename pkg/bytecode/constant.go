package bytecode

import "fmt"

// ConstantKind tags the value held by a Constant.
type ConstantKind uint8

const (
	ConstNil ConstantKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstString
)

// String returns a human-readable name for the kind.
func (k ConstantKind) String() string {
	switch k {
	case ConstNil:
		return "nil"
	case ConstBool:
		return "boolean"
	case ConstInt:
		return "integer"
	case ConstFloat:
		return "float"
	case ConstString:
		return "string"
	default:
		return fmt.Sprintf("ConstantKind(%d)", k)
	}
}

// MaxShortLen is the longest string the runtime interns as a short string.
const MaxShortLen = 40

// Constant is one entry of a prototype's constant pool.
type Constant struct {
	Kind  ConstantKind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Long  bool // long string; only matters for interning
}

// NilConstant returns the nil constant.
func NilConstant() Constant { return Constant{Kind: ConstNil} }

// BoolConstant returns a boolean constant.
func BoolConstant(b bool) Constant { return Constant{Kind: ConstBool, Bool: b} }

// IntConstant returns an integer constant.
func IntConstant(n int64) Constant { return Constant{Kind: ConstInt, Int: n} }

// FloatConstant returns a float constant.
func FloatConstant(f float64) Constant { return Constant{Kind: ConstFloat, Float: f} }

// StringConstant returns a string constant, long if it exceeds MaxShortLen.
func StringConstant(s string) Constant {
	return Constant{Kind: ConstString, Str: s, Long: len(s) > MaxShortLen}
}
