package value

import (
	"math"
	"strconv"
	"strings"
)

// The accessors below coerce on a best-effort basis: the boundary is untyped
// JSON text, so numbers and strings convert into each other where a textual
// parse or format succeeds. A failed coercion reports ok == false.

// AsString returns plain strings as-is and formats numbers and booleans.
// Function references, null and composites are absent.
func (v Value) AsString() (string, bool) {
	switch v.kind {
	case KindString:
		return v.s, true
	case KindInt:
		return strconv.FormatInt(v.i, 10), true
	case KindDouble:
		return formatDouble(v.f), true
	case KindBool:
		return strconv.FormatBool(v.b), true
	}
	return "", false
}

// AsInt returns integers, truncated finite doubles in int64 range, and strings
// holding an integral number.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindDouble:
		return truncate(v.f)
	case KindString:
		s := strings.TrimSpace(v.s)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return truncate(f)
	}
	return 0, false
}

// AsDouble returns doubles, widened integers and strings holding a number.
func (v Value) AsDouble() (float64, bool) {
	switch v.kind {
	case KindDouble:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// AsBool returns booleans, numbers compared against zero, and strings accepted
// by strconv.ParseBool.
func (v Value) AsBool() (bool, bool) {
	switch v.kind {
	case KindBool:
		return v.b, true
	case KindInt:
		return v.i != 0, true
	case KindDouble:
		if math.IsNaN(v.f) {
			return false, false
		}
		return v.f != 0, true
	case KindString:
		b, err := strconv.ParseBool(strings.TrimSpace(v.s))
		if err != nil {
			return false, false
		}
		return b, true
	}
	return false, false
}

// AsObject returns the members of an object value.
func (v Value) AsObject() (*Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// AsArray returns the elements of an array value. The slice is shared.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

func truncate(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	t := math.Trunc(f)
	if t < math.MinInt64 || t >= math.MaxInt64 {
		return 0, false
	}
	return int64(t), true
}

// formatDouble renders f the way a script runtime would print it: integral
// values without a fraction, everything else in shortest round-trip form.
func formatDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
