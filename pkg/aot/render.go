package aot

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/luaot/pkg/bytecode"
)

// RenderConstant renders a constant as a C-compatible literal, in the
// style luac uses for listings.
func RenderConstant(k bytecode.Constant) string {
	switch k.Kind {
	case bytecode.ConstNil:
		return "nil"
	case bytecode.ConstBool:
		if k.Bool {
			return "true"
		}
		return "false"
	case bytecode.ConstInt:
		return strconv.FormatInt(k.Int, 10)
	case bytecode.ConstFloat:
		return renderFloat(k.Float)
	case bytecode.ConstString:
		return renderString(k.Str)
	default:
		return fmt.Sprintf("?%d", k.Kind)
	}
}

func renderFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "1e9999"
	case math.IsInf(f, -1):
		return "-1e9999"
	case math.IsNaN(f):
		return "(0.0/0.0)"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if strings.Trim(s, "-0123456789") == "" {
		s += ".0"
	}
	return s
}

func renderString(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\a':
			sb.WriteString(`\a`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case '\v':
			sb.WriteString(`\v`)
		default:
			if c >= 0x20 && c <= 0x7e {
				sb.WriteByte(c)
			} else {
				fmt.Fprintf(&sb, `\%03o`, c)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
