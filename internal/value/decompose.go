package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/buger/jsonparser"
)

// RawValueKey is the envelope key used to carry a single, possibly scalar,
// payload through a channel that only delivers whole JSON documents.
const RawValueKey = "__rawValue"

// errSkipped marks a composite member that failed to decode.
var errSkipped = errors.New("member skipped")

// Decoder turns boundary text into Values.
//
// Malformed input degrades at the smallest possible scope: a failing array
// element or object member is dropped (and logged), never the whole document.
// With Strict set, a failing member invalidates its enclosing composite, which
// then decodes to Null.
type Decoder struct {
	Logger *slog.Logger
	Strict bool
}

var defaultDecoder = &Decoder{}

// Parse decodes raw wire text using the default decoder.
func Parse(raw string) Value { return defaultDecoder.Parse(raw) }

// Decompose decodes a JSON document using the default decoder.
func Decompose(data []byte) Value { return defaultDecoder.Decompose(data) }

// Parse decodes raw wire text.
//
// Text that is not JSON becomes String(raw), which still recognises function
// references. An object whose only key is "__rawValue" is unwrapped. Any other
// JSON document is decomposed whole.
func (d *Decoder) Parse(raw string) Value {
	data := []byte(raw)
	if !json.Valid(data) {
		return String(raw)
	}
	if inner, ok := unwrapEnvelope(data); ok {
		return d.Decompose(inner)
	}
	return d.Decompose(data)
}

// Decompose decodes a single JSON document, preserving array element order and
// object key order. Invalid top-level input decodes to Null.
func (d *Decoder) Decompose(data []byte) Value {
	raw, typ, _, err := jsonparser.Get(data)
	if err != nil {
		d.logger().Debug("undecodable document", slog.Any("error", err))
		return Null()
	}
	v, err := d.decode(raw, typ)
	if err != nil {
		return Null()
	}
	return v
}

func (d *Decoder) decode(raw []byte, typ jsonparser.ValueType) (Value, error) {
	switch typ {
	case jsonparser.Null:
		return Null(), nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return Null(), err
		}
		return Bool(b), nil
	case jsonparser.Number:
		return decodeNumber(raw)
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return Null(), err
		}
		return String(s), nil
	case jsonparser.Array:
		return d.decodeArray(raw)
	case jsonparser.Object:
		return d.decodeObject(raw)
	}
	return Null(), fmt.Errorf("unexpected json type %v", typ)
}

func (d *Decoder) decodeArray(raw []byte) (Value, error) {
	elems := make([]Value, 0)
	failed := false
	index := 0
	_, err := jsonparser.ArrayEach(raw, func(elem []byte, typ jsonparser.ValueType, _ int, err error) {
		defer func() { index++ }()
		if err == nil {
			var v Value
			if v, err = d.decode(elem, typ); err == nil {
				elems = append(elems, v)
				return
			}
		}
		failed = true
		d.logger().Warn("dropping array element", slog.Int("index", index), slog.Any("error", err))
	})
	if err != nil {
		return Null(), err
	}
	if failed && d.Strict {
		return Null(), errSkipped
	}
	return Array(elems...), nil
}

func (d *Decoder) decodeObject(raw []byte) (Value, error) {
	obj := NewObject()
	failed := false
	err := jsonparser.ObjectEach(raw, func(key []byte, member []byte, typ jsonparser.ValueType, _ int) error {
		v, err := d.decode(member, typ)
		if err != nil {
			failed = true
			d.logger().Warn("dropping object member", slog.String("key", string(key)), slog.Any("error", err))
			return nil
		}
		obj.Set(string(key), v)
		return nil
	})
	if err != nil {
		return Null(), err
	}
	if failed && d.Strict {
		return Null(), errSkipped
	}
	return ObjectOf(obj), nil
}

func (d *Decoder) logger() *slog.Logger {
	if d == nil || d.Logger == nil {
		return discardLogger
	}
	return d.Logger
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// decodeNumber maps integer literals that fit in int64 to Int and everything
// else to Double.
func decodeNumber(raw []byte) (Value, error) {
	if !bytes.ContainsAny(raw, ".eE") {
		if i, err := jsonparser.ParseInt(raw); err == nil {
			return Int(i), nil
		}
	}
	f, err := jsonparser.ParseFloat(raw)
	if err != nil {
		return Null(), err
	}
	return Double(f), nil
}

// unwrapEnvelope returns the payload of {"__rawValue": payload} when it is
// the document's only key.
func unwrapEnvelope(data []byte) ([]byte, bool) {
	_, typ, _, err := jsonparser.Get(data)
	if err != nil || typ != jsonparser.Object {
		return nil, false
	}
	var (
		count   int
		payload []byte
	)
	err = jsonparser.ObjectEach(data, func(key []byte, member []byte, typ jsonparser.ValueType, offset int) error {
		count++
		if string(key) == RawValueKey {
			payload = rawMember(data, member, typ, offset)
		}
		return nil
	})
	if err != nil || count != 1 || payload == nil {
		return nil, false
	}
	return payload, true
}

// rawMember restores the quotes jsonparser strips from string members, so the
// payload remains a standalone JSON document.
func rawMember(data, member []byte, typ jsonparser.ValueType, offset int) []byte {
	if typ != jsonparser.String {
		return member
	}
	// offset points just past the member; the closing quote sits at offset-1
	end := offset
	start := end - len(member) - 2
	if start < 0 || end > len(data) {
		return nil
	}
	return data[start:end]
}
