package kpi

import (
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rotisserie/eris"
)

// ErrNoObject is returned when oracle output holds no JSON object at all.
var ErrNoObject = eris.New("kpi: no JSON object in output")

// Parse turns raw oracle output into a normalized Record. Markdown fences
// and surrounding prose are dropped and light JSON damage (trailing commas,
// single quotes, unquoted keys) is repaired before decoding.
func Parse(raw string) (Record, error) {
	body := stripFences(raw)

	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return Record{}, ErrNoObject
	}
	body = body[start : end+1]

	repaired, err := jsonrepair.JSONRepair(body)
	if err != nil {
		return Record{}, eris.Wrap(err, "kpi: repair oracle output")
	}

	m, err := decodeObject([]byte(repaired))
	if err != nil {
		return Record{}, err
	}
	return Normalize(FromMap(m)), nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
