package availability

import (
	"sort"
	"time"
)

// Interval is half-open: [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// OpenSlots walks every window in steps of step and returns the candidate
// starts whose [start, start+duration) interval hits no busy interval.
//
// A candidate is generated while start+step fits in the window, not
// start+duration: a long service may be offered at the tail of a window and
// then be refused by Covers at booking time. Results are ascending and
// de-duplicated across overlapping windows.
func OpenSlots(windows, busy []Interval, step, duration time.Duration) []time.Time {
	if step <= 0 || duration <= 0 {
		return nil
	}

	seen := map[int64]struct{}{}
	var slots []time.Time
	for _, w := range windows {
		for t := w.Start; !t.Add(step).After(w.End); t = t.Add(step) {
			if OverlapsAny(Interval{Start: t, End: t.Add(duration)}, busy) {
				continue
			}
			if _, dup := seen[t.UnixNano()]; dup {
				continue
			}
			seen[t.UnixNano()] = struct{}{}
			slots = append(slots, t)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots
}

// Covers reports whether a single window fully contains iv.
func Covers(windows []Interval, iv Interval) bool {
	for _, w := range windows {
		if !w.Start.After(iv.Start) && !w.End.Before(iv.End) {
			return true
		}
	}
	return false
}

func OverlapsAny(iv Interval, busy []Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}
