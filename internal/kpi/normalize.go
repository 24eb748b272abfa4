package kpi

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Normalize enforces the record invariants: numeric fields use "." as the
// decimal separator and unknown values are null rather than "".
// Numeric vocabulary keys holding text such as "14,5" or "1 234,5" become
// numbers; text that cannot be read as a number becomes null.
func Normalize(r Record) Record {
	out := r.Clone()
	for _, k := range out.Keys() {
		v, _ := out.Get(k)
		if s, ok := v.Text(); ok && strings.TrimSpace(s) == "" {
			out.Set(k, Null)
			continue
		}
		f, known := LookupField(k)
		if !known || f.Type != FieldNumeric {
			continue
		}
		s, ok := v.Text()
		if !ok {
			continue
		}
		n, ok := ParseLocalizedNumber(s)
		if !ok {
			zap.L().Warn("kpi: numeric field is not a number, using null",
				zap.String("key", k),
				zap.String("value", s),
			)
			out.Set(k, Null)
			continue
		}
		out.Set(k, n)
	}
	return out
}

// ParseLocalizedNumber reads numbers written with a decimal comma and space
// or non-breaking-space thousands separators. The result keeps a fractional
// part when the input had one, so "14,0" stays a float literal. Values
// beyond the float64 range are not numbers.
func ParseLocalizedNumber(s string) (Value, bool) {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\'', '%':
			return -1
		case '\u2212':
			return '-'
		}
		return r
	}, s)
	if s == "" {
		return Null, false
	}

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		// The later separator is the decimal one: "1.234,5" or "1,234.5".
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Null, false
	}
	if !strings.ContainsAny(s, ".eE") {
		n := json.Number(d.String())
		if _, ok := parseNumber(n); !ok {
			return Null, false
		}
		return Number(n), true
	}
	f, _ := d.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return Null, false
	}
	return Float(f), true
}
