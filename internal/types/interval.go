package types

import (
	"fmt"
	"time"
)

// Interval is either Open{start} or Closed{start, end}.
// The zero value is a closed interval at the zero time.
type Interval struct {
	start time.Time
	end   time.Time
	open  bool
}

// OpenInterval starts an ongoing interval.
func OpenInterval(start time.Time) Interval {
	return Interval{start: start, open: true}
}

// ClosedInterval builds a finished interval. end must not precede start.
func ClosedInterval(start, end time.Time) (Interval, error) {
	if end.Before(start) {
		return Interval{}, fmt.Errorf("%w: interval end %s before start %s",
			ErrInvalidArgument, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return Interval{start: start, end: end}, nil
}

func (i Interval) Start() time.Time { return i.start }

func (i Interval) IsOpen() bool { return i.open }

// End returns the end boundary; ok is false while the interval is open.
func (i Interval) End() (end time.Time, ok bool) {
	if i.open {
		return time.Time{}, false
	}
	return i.end, true
}

// EndOr returns the end boundary, or now for an open interval.
func (i Interval) EndOr(now time.Time) time.Time {
	if i.open {
		return now
	}
	return i.end
}

// Duration measures the interval up to now, never negative.
func (i Interval) Duration(now time.Time) time.Duration {
	d := i.EndOr(now).Sub(i.start)
	if d < 0 {
		return 0
	}
	return d
}

// Contains reports whether t lies in [start, end ?? now], both ends inclusive.
func (i Interval) Contains(t, now time.Time) bool {
	return !t.Before(i.start) && !t.After(i.EndOr(now))
}

// Close transitions Open{start} to Closed{start, end}.
func (i Interval) Close(end time.Time) (Interval, error) {
	if !i.open {
		return i, fmt.Errorf("%w: interval already closed", ErrConflictingState)
	}
	return ClosedInterval(i.start, end)
}
