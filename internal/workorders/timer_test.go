package workorders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ts(minute int) time.Time {
	return time.Date(2025, 3, 10, 8, minute, 0, 0, time.UTC)
}

func TestElapsedExcludesPausedIntervals(t *testing.T) {
	start := ts(0)
	pause := ts(30)
	resume := ts(50)
	done := ts(80)
	events := []TimeEvent{
		{Event: EventStart, At: start},
		{Event: EventPause, At: pause},
		{Event: EventResume, At: resume},
		{Event: EventComplete, At: done},
	}
	got := Elapsed(&start, &done, events, ts(200))
	require.Equal(t, 60*time.Minute, got)
}

func TestElapsedOpenPauseRunsToNow(t *testing.T) {
	start := ts(0)
	pause := ts(30)
	events := []TimeEvent{
		{Event: EventStart, At: start},
		{Event: EventPause, At: pause},
	}
	// Still paused: elapsed is frozen at the pause point.
	got := Elapsed(&start, nil, events, ts(90))
	require.Equal(t, 30*time.Minute, got)
}

func TestElapsedRunningOrderUsesNow(t *testing.T) {
	start := ts(0)
	events := []TimeEvent{{Event: EventStart, At: start}}
	got := Elapsed(&start, nil, events, ts(45))
	require.Equal(t, 45*time.Minute, got)
}

func TestElapsedCompletedOrderIgnoresClock(t *testing.T) {
	start := ts(0)
	done := ts(40)
	events := []TimeEvent{
		{Event: EventStart, At: start},
		{Event: EventComplete, At: done},
	}
	first := Elapsed(&start, &done, events, ts(100))
	later := Elapsed(&start, &done, events, ts(500))
	require.Equal(t, 40*time.Minute, first)
	require.Equal(t, first, later)
}

func TestElapsedNotStarted(t *testing.T) {
	require.Zero(t, Elapsed(nil, nil, nil, ts(10)))
}

func TestElapsedUnsortedEvents(t *testing.T) {
	start := ts(0)
	done := ts(80)
	events := []TimeEvent{
		{Event: EventResume, At: ts(50)},
		{Event: EventStart, At: start},
		{Event: EventComplete, At: done},
		{Event: EventPause, At: ts(30)},
	}
	require.Equal(t, 60*time.Minute, Elapsed(&start, &done, events, ts(300)))
}
