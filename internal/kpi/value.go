package kpi

import (
	"bytes"
	"encoding/json"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Kind classifies a KPI value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindPair
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindPair:
		return "pair"
	default:
		return "other"
	}
}

// Value is one JSON-compatible field value. Numbers keep their literal so
// integers and floats render the way they were produced.
type Value struct {
	kind  Kind
	b     bool
	num   json.Number
	str   string
	pair  []Value
	other any
}

// Null is the unknown value.
var Null = Value{}

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String wraps a text value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a JSON number literal.
func Number(n json.Number) Value { return Value{kind: KindNumber, num: n} }

// Int wraps an integer.
func Int(i int64) Value { return Number(json.Number(strconv.FormatInt(i, 10))) }

// Float wraps a float, always rendered with a fractional part or exponent.
func Float(f float64) Value { return Number(json.Number(formatPyFloat(f))) }

// Pair is an unresolved conflict between two values, in argument order.
func Pair(a, b Value) Value { return Value{kind: KindPair, pair: []Value{a, b}} }

// FromAny converts a decoded JSON value (decoded with UseNumber) into a Value.
// Two-element arrays read back as conflict pairs; other arrays and objects
// are kept as opaque values. Numbers outside the float64 range become null.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null
	case bool:
		return Bool(t)
	case json.Number:
		if _, ok := parseNumber(t); !ok {
			zap.L().Warn("kpi: number out of range, using null", zap.String("value", string(t)))
			return Null
		}
		return Number(t)
	case string:
		return String(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return Int(int64(t))
		}
		return Float(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case []any:
		if len(t) == 2 {
			return Pair(FromAny(t[0]), FromAny(t[1]))
		}
		return Value{kind: KindOther, other: v}
	default:
		return Value{kind: KindOther, other: v}
	}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is unknown.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Text returns the string content and whether the value is a string.
func (v Value) Text() (string, bool) { return v.str, v.kind == KindString }

// BoolValue returns the boolean content and whether the value is a bool.
func (v Value) BoolValue() (bool, bool) { return v.b, v.kind == KindBool }

// Literal returns the number literal and whether the value is a number.
func (v Value) Literal() (json.Number, bool) { return v.num, v.kind == KindNumber }

// Pair returns both sides of a conflict pair.
func (v Value) Pair() (Value, Value, bool) {
	if v.kind != KindPair {
		return Null, Null, false
	}
	return v.pair[0], v.pair[1], true
}

// isIntLiteral reports whether a number literal is an integer (no fraction or exponent).
func isIntLiteral(n json.Number) bool {
	return !strings.ContainsAny(string(n), ".eE")
}

// number is a parsed numeric literal. Integer literals keep every digit.
type number struct {
	i *big.Int
	f float64
}

func (n number) isInt() bool { return n.i != nil }

// parseNumber reads a finite JSON number literal.
func parseNumber(n json.Number) (number, bool) {
	if isIntLiteral(n) {
		if i, ok := new(big.Int).SetString(string(n), 10); ok {
			f, _ := new(big.Float).SetInt(i).Float64()
			if math.IsInf(f, 0) {
				return number{}, false
			}
			return number{i: i, f: f}, true
		}
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return number{}, false
	}
	return number{f: f}, true
}

func (n number) String() string {
	if n.isInt() {
		return n.i.String()
	}
	return formatPyFloat(n.f)
}

func (n number) equal(o number) bool {
	if n.isInt() && o.isInt() {
		return n.i.Cmp(o.i) == 0
	}
	return n.f == o.f
}

// mean is always a float, as with true division. The mean of two integers
// is the correctly rounded value of their exact sum halved.
func mean(a, b number) float64 {
	if a.isInt() && b.isInt() {
		sum := new(big.Int).Add(a.i, b.i)
		f, _ := new(big.Rat).SetFrac(sum, big.NewInt(2)).Float64()
		return f
	}
	return (a.f + b.f) / 2
}

// Float64 returns the numeric value of a number.
func (v Value) Float64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	n, ok := parseNumber(v.num)
	return n.f, ok
}

// Equal reports structural equality. Numbers compare by value, so 100 equals 100.0.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.str == o.str
	case KindNumber:
		a, okA := parseNumber(v.num)
		b, okB := parseNumber(o.num)
		if !okA || !okB {
			return v.num == o.num
		}
		return a.equal(b)
	case KindPair:
		return v.pair[0].Equal(o.pair[0]) && v.pair[1].Equal(o.pair[1])
	default:
		return reflect.DeepEqual(v.other, o.other)
	}
}

// MarshalJSON renders the value as JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		if _, ok := parseNumber(v.num); !ok || !json.Valid([]byte(v.num)) {
			return nil, eris.Errorf("kpi: invalid number literal %q", string(v.num))
		}
		return []byte(v.num), nil
	case KindString:
		return marshalNoEscape(v.str)
	case KindPair:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, p := range v.pair {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := p.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return json.Marshal(v.other)
	}
}

// UnmarshalJSON decodes any JSON value.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return eris.Wrap(err, "kpi: decode value")
	}
	*v = FromAny(raw)
	return nil
}

// marshalNoEscape keeps characters like & and < readable in annotations.
func marshalNoEscape(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
