package cashback

import (
	"fmt"
	"time"
)

const TagLayout = "2006-01"

// Window is a cycle window. End is the last millisecond of the cycle for
// display; membership is decided against Next, the start of the following
// cycle, so sub-millisecond timestamps never fall between two windows.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Next is the exclusive upper bound of the window.
func (w Window) Next() time.Time {
	return w.End.Add(time.Millisecond)
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.Next())
}

// Tag labels the window with the month whose 15th falls inside it.
// Every window spans exactly one 15th, so ReferenceDate(tag) maps back to it.
func (w Window) Tag() string {
	mid := time.Date(w.Start.Year(), w.Start.Month(), 15, 12, 0, 0, 0, w.Start.Location())
	if !w.Contains(mid) {
		mid = mid.AddDate(0, 1, 0)
	}
	return mid.Format(TagLayout)
}

// ResolveCycle returns the cycle window containing ref.
func ResolveCycle(cfg Config, ref time.Time) (Window, error) {
	if cfg == nil {
		return Window{}, &ConfigError{Reason: "not configured"}
	}
	ct, statementDay := cfg.Cycle()
	if err := validateCycle(ct, statementDay); err != nil {
		return Window{}, err
	}

	loc := ref.Location()
	y, m, d := ref.Date()

	if ct == CalendarMonth {
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return Window{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Millisecond)}, nil
	}

	thisStart := statementStart(y, m, statementDay, loc)
	if d >= thisStart.Day() {
		next := statementStart(y, m+1, statementDay, loc)
		return Window{Start: thisStart, End: next.Add(-time.Millisecond)}, nil
	}
	prev := statementStart(y, m-1, statementDay, loc)
	return Window{Start: prev, End: thisStart.Add(-time.Millisecond)}, nil
}

// statementStart clamps day to the length of the month (31 -> 28/29 in February).
func statementStart(y int, m time.Month, day int, loc *time.Location) time.Time {
	first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, loc)
}

// ReferenceDate picks the date a window is derived from. A persisted cycle
// tag wins over the raw date and points to the 15th of the tagged month.
func ReferenceDate(occurredAt time.Time, cycleTag string) (time.Time, error) {
	if cycleTag == "" {
		return occurredAt, nil
	}
	month, err := time.ParseInLocation(TagLayout, cycleTag, occurredAt.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cycle tag %q: %w", cycleTag, err)
	}
	return time.Date(month.Year(), month.Month(), 15, 12, 0, 0, 0, occurredAt.Location()), nil
}

// ResolveTransactionCycle resolves the window for a transaction, honouring its persisted tag.
func ResolveTransactionCycle(cfg Config, occurredAt time.Time, cycleTag string) (Window, error) {
	ref, err := ReferenceDate(occurredAt, cycleTag)
	if err != nil {
		return Window{}, err
	}
	return ResolveCycle(cfg, ref)
}
