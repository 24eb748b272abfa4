package model

import (
	"fmt"
	"time"
)

// Period is a fiscal reporting quarter.
type Period struct {
	Year    int `json:"year"`
	Quarter int `json:"quarter"`
}

// CurrentPeriod returns the calendar quarter containing t.
func CurrentPeriod(t time.Time) Period {
	return Period{
		Year:    t.Year(),
		Quarter: (int(t.Month())-1)/3 + 1,
	}
}

// Valid reports whether the period has a plausible year and a quarter in 1..4.
func (p Period) Valid() bool {
	return p.Year > 0 && p.Quarter >= 1 && p.Quarter <= 4
}

// Previous returns the quarter before p.
func (p Period) Previous() Period {
	if p.Quarter <= 1 {
		return Period{Year: p.Year - 1, Quarter: 4}
	}
	return Period{Year: p.Year, Quarter: p.Quarter - 1}
}

func (p Period) String() string {
	return fmt.Sprintf("%dQ%d", p.Year, p.Quarter)
}

// RecordKey identifies the consolidated KPI record for one company and period.
// Two records are comparable only when their keys match.
type RecordKey struct {
	Company string `json:"company"`
	Year    int    `json:"year"`
	Quarter int    `json:"quarter"`
}

// Period returns the reporting period part of the key.
func (k RecordKey) Period() Period {
	return Period{Year: k.Year, Quarter: k.Quarter}
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%dQ%d", k.Company, k.Year, k.Quarter)
}
