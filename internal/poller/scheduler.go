package poller

import "time"

const day = 24 * time.Hour

// Interval is an inclusive date range submitted as one source request.
// The source treats both bounds as whole days, so a single-day fetch has
// Start == End.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Plan is the fetch schedule for one series within one pass.
type Plan struct {
	// Intervals are in chronological order: the historical gap before
	// the oldest stored value first, then the gap after the newest.
	Intervals []Interval

	// GapDetected reports whether any interval covers missing history.
	// When false the plan holds only the single keep-alive fetch of the
	// current day, and the writer may apply its count-skip heuristic.
	GapDetected bool
}

// PlanIntervals computes the date ranges that must be fetched to bring
// one series up to date.
//
// Two gaps are considered: [memberSince, first) for history recorded
// before the oldest stored value, and (last, now] for everything since
// the newest. A gap is only fetched when it is wider than one day;
// anything narrower is already covered because interval bounds are
// inclusive. When the store holds nothing for the series, callers pass
// now for both first and last, which turns gap one into a full backfill
// and leaves gap two empty.
//
// Each gap is walked in chunks of at most maxSpan, stepping past each
// emitted chunk by one day so consecutive chunks never overlap and no
// day is skipped. The final chunk is clipped to the gap end exactly.
//
// If neither gap needs fetching, a single interval covering just now is
// returned so the series still gets a keep-alive fetch.
//
// Parameters:
//   - memberSince: Earliest date data can exist for this account
//   - first, last: Oldest and newest stored timestamps for the series
//   - now: Current pass time
//   - maxSpan: Maximum width of one request interval
//
// Returns:
//   - Plan: Ordered, non-overlapping intervals plus the gap flag
func PlanIntervals(memberSince, first, last, now time.Time, maxSpan time.Duration) Plan {
	var plan Plan

	if wholeDays(first.Sub(memberSince)) > 1 {
		plan.Intervals = appendChunks(plan.Intervals, memberSince, first, maxSpan)
		plan.GapDetected = true
	}
	if wholeDays(now.Sub(last)) > 1 {
		plan.Intervals = appendChunks(plan.Intervals, last, now, maxSpan)
		plan.GapDetected = true
	}

	if len(plan.Intervals) == 0 {
		plan.Intervals = []Interval{{Start: now, End: now}}
	}
	return plan
}

// appendChunks walks [start, end] forward in maxSpan-sized chunks.
func appendChunks(intervals []Interval, start, end time.Time, maxSpan time.Duration) []Interval {
	cursor := start
	for !cursor.After(end) {
		if cursor.Add(maxSpan).After(end) {
			intervals = append(intervals, Interval{Start: cursor, End: end})
			break
		}
		intervals = append(intervals, Interval{Start: cursor, End: cursor.Add(maxSpan)})
		cursor = cursor.Add(maxSpan + day)
	}
	return intervals
}

// wholeDays truncates a duration to full days, matching the day-granular
// gap arithmetic of the fetch planner.
func wholeDays(d time.Duration) int {
	return int(d / day)
}
