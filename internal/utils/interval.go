package utils

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Empty() bool {
	return !i.End.After(i.Start)
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Expand grows the interval by before at the start and after at the end.
func (i Interval) Expand(before, after time.Duration) Interval {
	return Interval{Start: i.Start.Add(-before), End: i.End.Add(after)}
}

// Merge sorts intervals and joins the ones that overlap or touch.
func Merge(in []Interval) []Interval {
	var out []Interval
	sorted := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Empty() {
			sorted = append(sorted, iv)
		}
	}
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Start.Before(sorted[b].Start) })

	for _, iv := range sorted {
		if n := len(out); n > 0 && !iv.Start.After(out[n-1].End) {
			if iv.End.After(out[n-1].End) {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Subtract removes every cut interval from base and returns what remains.
func Subtract(base Interval, cuts []Interval) []Interval {
	remaining := []Interval{base}
	for _, c := range Merge(cuts) {
		var next []Interval
		for _, r := range remaining {
			if !r.Overlaps(c) {
				next = append(next, r)
				continue
			}
			if r.Start.Before(c.Start) {
				next = append(next, Interval{Start: r.Start, End: c.Start})
			}
			if c.End.Before(r.End) {
				next = append(next, Interval{Start: c.End, End: r.End})
			}
		}
		remaining = next
	}
	return remaining
}
