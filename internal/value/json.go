package value

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// MarshalJSON encodes v as JSON text, keeping object key order. Function
// references encode as their wire string and non-finite doubles as null,
// matching what the script side produces.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON document with the default decoder. The
// "__rawValue" envelope is not unwrapped here; use Parse for wire text.
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = Decompose(data)
	return nil
}

// JSON returns the JSON text of v.
func JSON(v Value) string {
	b, _ := v.MarshalJSON()
	return string(b)
}

// Envelope wraps v as {"__rawValue":<json>}, the wire form used to deliver a
// single value as a whole JSON document.
func Envelope(v Value) string {
	return `{"` + RawValueKey + `":` + JSON(v) + `}`
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindDouble:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			buf.WriteString("null")
			return nil
		}
		b, err := json.Marshal(v.f)
		if err != nil {
			return err
		}
		buf.Write(b)
		// keep the double a double when read back
		if !bytes.ContainsAny(b, ".eE") {
			buf.WriteString(".0")
		}
	case KindString, KindFunction:
		return writeJSONString(buf, v.s)
	case KindArray:
		buf.WriteByte('[')
		for i, elem := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		var err error
		first := true
		v.obj.Range(func(key string, member Value) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			if err = writeJSONString(buf, key); err != nil {
				return false
			}
			buf.WriteByte(':')
			err = writeJSON(buf, member)
			return err == nil
		})
		if err != nil {
			return err
		}
		buf.WriteByte('}')
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode appends a newline
	buf.Truncate(buf.Len() - 1)
	return nil
}
