package vector

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TZFlag tells how the time zone of a date/time value is known.
type TZFlag int

const (
	// TZUnknown marks a wall-clock time without zone information.
	TZUnknown TZFlag = iota
	// TZLocal marks a time in the unspecified local zone of the data.
	TZLocal
	// TZFixed marks a time whose location carries a fixed UTC offset.
	TZFixed
)

type valueState uint8

const (
	stateUnset valueState = iota
	stateNull
	stateSet
)

// Value is a field value. The zero Value is unset; Null returns an explicit
// null. The concrete payload depends on the kind the value was built with.
type Value struct {
	state valueState
	kind  FieldType
	i     int64
	f     float64
	s     string
	t     time.Time
	tz    TZFlag
	b     []byte
	is    []int64
	fs    []float64
	ss    []string
}

// Null returns an explicit null value.
func Null() Value { return Value{state: stateNull} }

// IntValue returns an Integer64 value.
func IntValue(v int64) Value { return Value{state: stateSet, kind: Integer64, i: v} }

// RealValue returns a Real value.
func RealValue(v float64) Value { return Value{state: stateSet, kind: Real, f: v} }

// StringValue returns a String value.
func StringValue(v string) Value { return Value{state: stateSet, kind: String, s: v} }

// TimeValue returns a value of kind Date, Time or DateTime.
func TimeValue(kind FieldType, t time.Time, tz TZFlag) Value {
	return Value{state: stateSet, kind: kind, t: t, tz: tz}
}

// BinaryValue returns a Binary value.
func BinaryValue(v []byte) Value { return Value{state: stateSet, kind: Binary, b: v} }

// IntListValue returns an Integer64List value.
func IntListValue(v []int64) Value { return Value{state: stateSet, kind: Integer64List, is: v} }

// RealListValue returns a RealList value.
func RealListValue(v []float64) Value { return Value{state: stateSet, kind: RealList, fs: v} }

// StringListValue returns a StringList value.
func StringListValue(v []string) Value { return Value{state: stateSet, kind: StringList, ss: v} }

// IsSet reports whether the value was assigned, null included.
func (v Value) IsSet() bool { return v.state != stateUnset }

// IsNull reports whether the value is an explicit null.
func (v Value) IsNull() bool { return v.state == stateNull }

// Valid reports whether the value is set and not null.
func (v Value) Valid() bool { return v.state == stateSet }

// Kind returns the type the value was built with.
func (v Value) Kind() FieldType { return v.kind }

// Int returns the value as an integer. Reals are truncated and strings
// parsed; anything else yields 0.
func (v Value) Int() int64 {
	switch v.kind {
	case Integer, Integer64:
		return v.i
	case Real:
		return int64(v.f)
	case String:
		n, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
		if err != nil {
			f, _ := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
			return int64(f)
		}
		return n
	}
	return 0
}

// Real returns the value as a float.
func (v Value) Real() float64 {
	switch v.kind {
	case Integer, Integer64:
		return float64(v.i)
	case Real:
		return v.f
	case String:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		return f
	}
	return 0
}

// Time returns the time payload and its zone flag.
func (v Value) Time() (time.Time, TZFlag) { return v.t, v.tz }

// Bytes returns the Binary payload.
func (v Value) Bytes() []byte { return v.b }

// IntList returns the integer list payload.
func (v Value) IntList() []int64 { return v.is }

// RealList returns the real list payload.
func (v Value) RealList() []float64 { return v.fs }

// StringList returns the string list payload.
func (v Value) StringList() []string { return v.ss }

// Len returns the number of elements of a list value, or 1 for a set scalar.
func (v Value) Len() int {
	if !v.Valid() {
		return 0
	}
	switch v.kind {
	case IntegerList, Integer64List:
		return len(v.is)
	case RealList:
		return len(v.fs)
	case StringList:
		return len(v.ss)
	}
	return 1
}

// Elem returns element i of a list value as a scalar value.
func (v Value) Elem(i int) Value {
	switch v.kind {
	case IntegerList, Integer64List:
		return IntValue(v.is[i])
	case RealList:
		return RealValue(v.fs[i])
	case StringList:
		return StringValue(v.ss[i])
	}
	return v
}

// String formats the value the way text outputs write it. Lists use the
// "(n:a,b,c)" notation.
func (v Value) String() string {
	if !v.Valid() {
		return ""
	}
	switch v.kind {
	case Integer, Integer64:
		return strconv.FormatInt(v.i, 10)
	case Real:
		return strconv.FormatFloat(v.f, 'g', 15, 64)
	case String:
		return v.s
	case Date:
		return v.t.Format("2006/01/02")
	case Time:
		return v.t.Format("15:04:05")
	case DateTime:
		s := v.t.Format("2006/01/02 15:04:05")
		if v.tz == TZFixed {
			_, off := v.t.Zone()
			sign := '+'
			if off < 0 {
				sign = '-'
			}
			s += fmt.Sprintf("%c%02d", sign, abs(off)/3600)
			if m := abs(off) % 3600 / 60; m != 0 {
				s += fmt.Sprintf(":%02d", m)
			}
		}
		return s
	case Binary:
		return strings.ToUpper(hex.EncodeToString(v.b))
	case IntegerList, Integer64List:
		parts := make([]string, len(v.is))
		for i, n := range v.is {
			parts[i] = strconv.FormatInt(n, 10)
		}
		return fmt.Sprintf("(%d:%s)", len(parts), strings.Join(parts, ","))
	case RealList:
		parts := make([]string, len(v.fs))
		for i, f := range v.fs {
			parts[i] = strconv.FormatFloat(f, 'g', 15, 64)
		}
		return fmt.Sprintf("(%d:%s)", len(parts), strings.Join(parts, ","))
	case StringList:
		return fmt.Sprintf("(%d:%s)", len(v.ss), strings.Join(v.ss, ","))
	}
	return ""
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Convert returns the value converted to type t. Unset and null values are
// returned unchanged. Integer targets clamp to 32 bits.
func (v Value) Convert(t FieldType) (Value, error) {
	if !v.Valid() || v.kind == t {
		return v, nil
	}

	switch t {
	case Integer, Integer64:
		if !v.numericLike() {
			return v, fmt.Errorf("cannot convert %s to %s", v.kind, t)
		}
		n := v.Int()
		if t == Integer {
			n = clampInt32(n)
		}
		return Value{state: stateSet, kind: t, i: n}, nil
	case Real:
		if !v.numericLike() {
			return v, fmt.Errorf("cannot convert %s to %s", v.kind, t)
		}
		return RealValue(v.Real()), nil
	case String:
		return StringValue(v.String()), nil
	case Date, Time, DateTime:
		switch v.kind {
		case Date, Time, DateTime:
			return TimeValue(t, v.t, v.tz), nil
		case String:
			tm, tz, err := ParseDateTime(v.s)
			if err != nil {
				return v, err
			}
			return TimeValue(t, tm, tz), nil
		}
	case Binary:
		if v.kind == String {
			return BinaryValue([]byte(v.s)), nil
		}
	case IntegerList, Integer64List:
		switch v.kind {
		case Integer, Integer64:
			return Value{state: stateSet, kind: t, is: []int64{v.i}}, nil
		case IntegerList, Integer64List:
			return Value{state: stateSet, kind: t, is: v.is}, nil
		case RealList:
			is := make([]int64, len(v.fs))
			for i, f := range v.fs {
				is[i] = int64(f)
			}
			return Value{state: stateSet, kind: t, is: is}, nil
		}
	case RealList:
		switch v.kind {
		case Real, Integer, Integer64:
			return RealListValue([]float64{v.Real()}), nil
		case IntegerList, Integer64List:
			fs := make([]float64, len(v.is))
			for i, n := range v.is {
				fs[i] = float64(n)
			}
			return RealListValue(fs), nil
		}
	case StringList:
		switch v.kind {
		case String:
			return StringListValue([]string{v.s}), nil
		case IntegerList, Integer64List, RealList:
			n := v.Len()
			ss := make([]string, n)
			for i := 0; i < n; i++ {
				ss[i] = v.Elem(i).String()
			}
			return StringListValue(ss), nil
		}
	}
	return v, fmt.Errorf("cannot convert %s to %s", v.kind, t)
}

func (v Value) numericLike() bool {
	switch v.kind {
	case Integer, Integer64, Real, String:
		return true
	}
	return false
}

func clampInt32(n int64) int64 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	if n < math.MinInt32 {
		return math.MinInt32
	}
	return n
}

// Equal reports whether two values have the same state, kind and payload.
func (v Value) Equal(o Value) bool {
	if v.state != o.state {
		return false
	}
	if v.state != stateSet {
		return true
	}
	if v.kind != o.kind {
		// integer widths compare by value
		if v.isInt() && o.isInt() {
			return v.i == o.i
		}
		return false
	}
	switch v.kind {
	case Date, Time, DateTime:
		return v.t.Equal(o.t) && v.tz == o.tz
	}
	return v.String() == o.String()
}

func (v Value) isInt() bool {
	return v.kind == Integer || v.kind == Integer64
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05-07:00",
	"2006/01/02 15:04:05-07",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"15:04:05",
}

// ParseDateTime parses the date/time spellings used by text drivers. A zone
// suffix yields TZFixed; otherwise the zone is unknown.
func ParseDateTime(s string) (time.Time, TZFlag, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if strings.Contains(layout, "07") {
			return t, TZFixed, nil
		}
		return t, TZUnknown, nil
	}
	return time.Time{}, TZUnknown, fmt.Errorf("invalid date/time %q", s)
}
