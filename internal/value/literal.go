package value

import (
	"strconv"
	"strings"
	"unicode"
)

// FunctionCacheName is the script-side table that function references index.
const FunctionCacheName = "__functionCache"

// Literal renders v as script source text that evaluates to v.
//
// Function references are emitted as a lookup into the script-side function
// table by id, so repeated encodes never mint a new function identity. Only a
// legacy "function:<base64>" reference, which carries no id, inlines its
// source as a global eval. Output is deterministic for a given Value.
func Literal(v Value) string {
	var sb strings.Builder
	writeLiteral(&sb, v)
	return sb.String()
}

// Literals renders vs as a comma-separated argument list.
func Literals(vs []Value) string {
	var sb strings.Builder
	for i, v := range vs {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeLiteral(&sb, v)
	}
	return sb.String()
}

func writeLiteral(sb *strings.Builder, v Value) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindDouble:
		sb.WriteString(formatDouble(v.f))
	case KindString:
		writeQuoted(sb, v.s)
	case KindFunction:
		writeFunction(sb, v)
	case KindArray:
		sb.WriteByte('[')
		for i, elem := range v.arr {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeLiteral(sb, elem)
		}
		sb.WriteByte(']')
	case KindObject:
		sb.WriteByte('{')
		first := true
		v.obj.Range(func(key string, member Value) bool {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			if IsIdentifier(key) {
				sb.WriteString(key)
			} else {
				writeQuoted(sb, key)
			}
			sb.WriteString(": ")
			writeLiteral(sb, member)
			return true
		})
		sb.WriteByte('}')
	}
}

func writeFunction(sb *strings.Builder, v Value) {
	if id, ok := v.FunctionID(); ok {
		sb.WriteString(FunctionCacheName)
		sb.WriteByte('[')
		sb.WriteString(strconv.FormatUint(id, 10))
		sb.WriteByte(']')
		return
	}
	if src, ok := v.legacySource(); ok && strings.TrimSpace(src) != "" {
		// evaluated from a string, so broken source throws instead of
		// failing to compile the enclosing statement
		sb.WriteString("(0, eval)(")
		writeQuoted(sb, "("+src+")")
		sb.WriteByte(')')
		return
	}
	sb.WriteString("null")
}

func writeQuoted(sb *strings.Builder, s string) {
	sb.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			sb.WriteString(`\'`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\u2028':
			sb.WriteString(`\u2028`)
		case '\u2029':
			sb.WriteString(`\u2029`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('\'')
}

// IsIdentifier reports whether s can be used as a script variable or bare
// property name.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}
