package workorders

import (
	"sort"
	"time"
)

// Elapsed derives the active working time of an order from its stored
// timestamps and time events. Paused intervals (pause..resume pairs, plus an
// open pause running to the end) are excluded. The result is reproducible
// from persisted rows: for completed orders now is ignored, so historical
// records never depend on a live clock.
func Elapsed(startedAt, completedAt *time.Time, events []TimeEvent, now time.Time) time.Duration {
	if startedAt == nil {
		return 0
	}
	start := startedAt.UTC()
	end := now.UTC()
	if completedAt != nil {
		end = completedAt.UTC()
	}
	if end.Before(start) {
		return 0
	}

	sorted := make([]TimeEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })

	var paused time.Duration
	var pauseStart *time.Time
	for _, ev := range sorted {
		at := ev.At.UTC()
		if at.After(end) {
			break
		}
		switch ev.Event {
		case EventPause:
			if pauseStart == nil {
				t := at
				pauseStart = &t
			}
		case EventResume:
			if pauseStart != nil {
				paused += at.Sub(*pauseStart)
				pauseStart = nil
			}
		}
	}
	if pauseStart != nil {
		paused += end.Sub(*pauseStart)
	}

	elapsed := end.Sub(start) - paused
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
