package kpi

import (
	"math"
	"strconv"
	"strings"
)

// formatPyFloat renders f with the shortest round-trip digits, keeping a
// ".0" on integral values and switching to exponent form outside
// 1e-4 <= |f| < 1e16. Annotations produced by the reconciler rely on this
// exact rendering ("101.0", "1e+16", "1e-05").
func formatPyFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case f == 0:
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}

	s := strconv.FormatFloat(f, 'e', -1, 64)
	sign := ""
	if s[0] == '-' {
		sign = "-"
		s = s[1:]
	}

	mant, expPart, _ := strings.Cut(s, "e")
	exp, _ := strconv.Atoi(expPart)
	digits := strings.Replace(mant, ".", "", 1)
	decpt := exp + 1

	if decpt > -4 && decpt <= 16 {
		return sign + fixedNotation(digits, decpt)
	}

	out := digits[:1]
	if len(digits) > 1 {
		out += "." + digits[1:]
	}
	expSign := "+"
	if exp < 0 {
		expSign = "-"
		exp = -exp
	}
	expStr := strconv.Itoa(exp)
	if len(expStr) < 2 {
		expStr = "0" + expStr
	}
	return sign + out + "e" + expSign + expStr
}

func fixedNotation(digits string, decpt int) string {
	switch {
	case decpt <= 0:
		return "0." + strings.Repeat("0", -decpt) + digits
	case decpt >= len(digits):
		return digits + strings.Repeat("0", decpt-len(digits)) + ".0"
	default:
		return digits[:decpt] + "." + digits[decpt:]
	}
}
