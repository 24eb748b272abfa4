// Package kpi models financial key-performance-indicator records extracted
// from report text and reconciles two records for the same period.
package kpi

import (
	"bytes"
	"encoding/json"
	"slices"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/report-kpi/internal/model"
)

// FieldType describes what a known key is expected to hold.
type FieldType int

const (
	FieldNumeric FieldType = iota
	FieldText
	FieldIdentity
)

// Known vocabulary keys.
const (
	KeyCompany          = "company"
	KeyYear             = "year"
	KeyQuarter          = "quarter"
	KeyRevenue          = "revenue"
	KeyOperatingIncome  = "operating_income"
	KeyProfitBeforeTax  = "profit_before_tax"
	KeyProfitAfterTax   = "profit_after_tax"
	KeyEBITDA           = "ebitda"
	KeyEPS              = "eps"
	KeyBacklog          = "backlog"
	KeyOutlook1Y        = "fremtid1år"
	KeyOutlook2Y        = "fremtid2år"
	KeyOutlook3Y        = "fremtid3år"
	KeyGrossProfit      = "gross_profit"
	KeyGrossMargin      = "gross_margin"
	KeyEBITDAMargin     = "ebitda_margin"
	KeyOperatingMargin  = "operating_margin"
	KeyOperatingCash    = "operating_cash_flow"
	KeyFreeCashFlow     = "free_cash_flow"
	KeyCashConversion   = "cash_conversion"
	KeyGuidance         = "guidance"
	KeySummary          = "500tegnoppsummering"
)

// Field is one entry of the known vocabulary.
type Field struct {
	Key  string
	Type FieldType
}

// Vocabulary lists the recognized keys in output order.
var Vocabulary = []Field{
	{KeyCompany, FieldIdentity},
	{KeyYear, FieldIdentity},
	{KeyQuarter, FieldIdentity},
	{KeyRevenue, FieldNumeric},
	{KeyOperatingIncome, FieldNumeric},
	{KeyProfitBeforeTax, FieldNumeric},
	{KeyProfitAfterTax, FieldNumeric},
	{KeyEBITDA, FieldNumeric},
	{KeyEPS, FieldNumeric},
	{KeyBacklog, FieldNumeric},
	{KeyOutlook1Y, FieldNumeric},
	{KeyOutlook2Y, FieldNumeric},
	{KeyOutlook3Y, FieldNumeric},
	{KeyGrossProfit, FieldNumeric},
	{KeyGrossMargin, FieldNumeric},
	{KeyEBITDAMargin, FieldNumeric},
	{KeyOperatingMargin, FieldNumeric},
	{KeyOperatingCash, FieldNumeric},
	{KeyFreeCashFlow, FieldNumeric},
	{KeyCashConversion, FieldNumeric},
	{KeyGuidance, FieldText},
	{KeySummary, FieldText},
}

var fieldIndex = func() map[string]int {
	m := make(map[string]int, len(Vocabulary))
	for i, f := range Vocabulary {
		m[f.Key] = i
	}
	return m
}()

// LookupField returns the vocabulary entry for key.
func LookupField(key string) (Field, bool) {
	i, ok := fieldIndex[key]
	if !ok {
		return Field{}, false
	}
	return Vocabulary[i], true
}

// ErrNotObject is returned when KPI JSON is not a flat object.
var ErrNotObject = eris.New("kpi: record is not a JSON object")

// Record is a KPI mapping split into known vocabulary keys and an Extra
// bucket for anything else. A key that is absent differs from a key that is
// present with a null value only in serialization; reconciliation treats
// both as unknown.
type Record struct {
	Values map[string]Value
	Extra  map[string]Value
}

// NewRecord returns an empty record.
func NewRecord() Record {
	return Record{Values: map[string]Value{}, Extra: map[string]Value{}}
}

// NullRecord returns a record with every known key present as null.
func NullRecord() Record {
	r := NewRecord()
	for _, f := range Vocabulary {
		r.Values[f.Key] = Null
	}
	return r
}

// FromMap builds a record from decoded JSON without normalizing it.
func FromMap(m map[string]any) Record {
	r := NewRecord()
	for k, v := range m {
		r.Set(k, FromAny(v))
	}
	return r
}

// Set stores v under key, routing unknown keys to Extra.
func (r *Record) Set(key string, v Value) {
	if r.Values == nil {
		r.Values = map[string]Value{}
	}
	if r.Extra == nil {
		r.Extra = map[string]Value{}
	}
	if _, ok := fieldIndex[key]; ok {
		r.Values[key] = v
		return
	}
	r.Extra[key] = v
}

// Get returns the value for key and whether the key is present.
func (r Record) Get(key string) (Value, bool) {
	if v, ok := r.Values[key]; ok {
		return v, true
	}
	v, ok := r.Extra[key]
	return v, ok
}

// Has reports whether key is present (possibly null).
func (r Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Len returns the number of present keys.
func (r Record) Len() int {
	return len(r.Values) + len(r.Extra)
}

// Keys returns present keys: vocabulary order first, then extras sorted.
func (r Record) Keys() []string {
	keys := make([]string, 0, r.Len())
	for _, f := range Vocabulary {
		if _, ok := r.Values[f.Key]; ok {
			keys = append(keys, f.Key)
		}
	}
	extra := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// Clone returns a copy that shares no maps with r.
func (r Record) Clone() Record {
	out := NewRecord()
	for k, v := range r.Values {
		out.Values[k] = v
	}
	for k, v := range r.Extra {
		out.Extra[k] = v
	}
	return out
}

// Equal reports whether both records hold the same keys and values.
func (r Record) Equal(o Record) bool {
	if !slices.Equal(r.Keys(), o.Keys()) {
		return false
	}
	for _, k := range r.Keys() {
		a, _ := r.Get(k)
		b, _ := o.Get(k)
		if !a.Equal(b) {
			return false
		}
	}
	return true
}

// Period reads year and quarter from the record, accepting numbers or
// numeric text, with quarter text like "Q3".
func (r Record) Period() (model.Period, bool) {
	year, okY := intField(r, KeyYear)
	quarter, okQ := intField(r, KeyQuarter)
	p := model.Period{Year: year, Quarter: quarter}
	if !okY || !okQ || !p.Valid() {
		return model.Period{}, false
	}
	return p, true
}

// Company returns the company identity field, if it is text.
func (r Record) Company() (string, bool) {
	v, ok := r.Get(KeyCompany)
	if !ok {
		return "", false
	}
	s, ok := v.Text()
	return s, ok && s != ""
}

// WithIdentity fills company, year and quarter when they are missing or null.
func (r Record) WithIdentity(company string, p model.Period) Record {
	out := r.Clone()
	if v, ok := out.Get(KeyCompany); !ok || v.IsNull() {
		out.Set(KeyCompany, String(company))
	}
	if v, ok := out.Get(KeyYear); !ok || v.IsNull() {
		out.Set(KeyYear, Int(int64(p.Year)))
	}
	if v, ok := out.Get(KeyQuarter); !ok || v.IsNull() {
		out.Set(KeyQuarter, Int(int64(p.Quarter)))
	}
	return out
}

func intField(r Record, key string) (int, bool) {
	v, ok := r.Get(key)
	if !ok {
		return 0, false
	}
	if f, ok := v.Float64(); ok {
		return int(f), f == float64(int(f))
	}
	s, ok := v.Text()
	if !ok {
		return 0, false
	}
	s = trimQuarterPrefix(s)
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return i, true
}

func trimQuarterPrefix(s string) string {
	b := bytes.TrimSpace([]byte(s))
	if len(b) > 1 && (b[0] == 'Q' || b[0] == 'q') {
		b = b[1:]
	}
	return string(b)
}

// MarshalJSON writes a flat object with keys in Keys() order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalNoEscape(k)
		if err != nil {
			return nil, eris.Wrapf(err, "kpi: marshal key %s", k)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		v, _ := r.Get(k)
		vb, err := v.MarshalJSON()
		if err != nil {
			return nil, eris.Wrapf(err, "kpi: marshal value for %s", k)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object.
func (r *Record) UnmarshalJSON(data []byte) error {
	m, err := decodeObject(data)
	if err != nil {
		return err
	}
	*r = FromMap(m)
	return nil
}

// Encode renders the record as indented JSON without HTML escaping.
func (r Record) Encode() ([]byte, error) {
	raw, err := r.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return nil, eris.Wrap(err, "kpi: indent record")
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "kpi: decode record")
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return m, nil
}
