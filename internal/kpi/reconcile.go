package kpi

import (
	"fmt"
	"unicode/utf8"
)

// Reconcile merges two KPI records describing the same (company, year,
// quarter) into one. It never fails and never mutates its inputs.
//
// For every key in either record:
//   - a value present in only one record (the other absent or null) wins;
//   - equal numbers keep a's value, different numbers become an annotated
//     mean "<mean> (might be wrong: avg of <a> & <b>)";
//   - two summaries are concatenated, a then b, separated by a newline;
//   - other text keeps the longer value, a on ties;
//   - structurally equal values are kept;
//   - anything else becomes the pair [a, b].
func Reconcile(a, b Record) Record {
	out := NewRecord()
	for _, k := range unionKeys(a, b) {
		va, _ := a.Get(k)
		vb, _ := b.Get(k)
		out.Set(k, reconcileValue(k, va, vb))
	}
	return out
}

func unionKeys(a, b Record) []string {
	merged := a.Clone()
	for _, k := range b.Keys() {
		if !merged.Has(k) {
			merged.Set(k, Null)
		}
	}
	return merged.Keys()
}

func reconcileValue(key string, a, b Value) Value {
	switch {
	case b.IsNull():
		return a
	case a.IsNull():
		return b
	}

	if a.kind == KindNumber && b.kind == KindNumber {
		na, okA := parseNumber(a.num)
		nb, okB := parseNumber(b.num)
		if okA && okB {
			if na.equal(nb) {
				return a
			}
			return String(fmt.Sprintf("%s (might be wrong: avg of %s & %s)",
				formatPyFloat(mean(na, nb)), na.String(), nb.String()))
		}
	}

	if a.kind == KindString && b.kind == KindString {
		if key == KeySummary {
			return String(a.str + "\n" + b.str)
		}
		if utf8.RuneCountInString(b.str) > utf8.RuneCountInString(a.str) {
			return b
		}
		return a
	}

	if a.Equal(b) {
		return a
	}
	return Pair(a, b)
}
