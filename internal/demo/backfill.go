package demo

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/types"
)

// Backfill synthesizes production for the current hour and the previous
// hours so a fresh demo dashboard has history: 1-3 events per hour with
// counts 2-6. Events never lie after now. Hour boundaries follow now's
// location.
func Backfill(rng *rand.Rand, now time.Time, hours int) []types.ProductionEvent {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	events := make([]types.ProductionEvent, 0, (hours+1)*3)
	y, m, d := now.Date()
	h := now.Hour()

	for offset := hours; offset >= 0; offset-- {
		hourStart := time.Date(y, m, d, h-offset, 0, 0, 0, now.Location())
		n := 1 + rng.IntN(3)
		for i := 0; i < n; i++ {
			ts := hourStart.Add(time.Duration(rng.Int64N(int64(time.Hour))))
			if ts.After(now) {
				continue
			}
			ts = time.UnixMilli(ts.UnixMilli())
			events = append(events, types.ProductionEvent{
				ID:        fmt.Sprintf("demo-%d-%d", ts.UnixMilli(), i),
				Timestamp: ts,
				Count:     2 + rng.IntN(5),
			})
		}
	}

	slices.SortStableFunc(events, func(a, b types.ProductionEvent) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return events
}

// SeedHistory fills an empty production log when demo mode is on.
// It reports whether events were added.
func SeedHistory(state *types.AppState, rng *rand.Rand, now time.Time, hours int) bool {
	if !state.DemoMode || len(state.ProductionEvents) > 0 || hours < 0 {
		return false
	}
	state.ProductionEvents = Backfill(rng, now, hours)
	return len(state.ProductionEvents) > 0
}
