package metrics

import (
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/types"
	"golang.org/x/text/message"
)

// Summary bundles the figures of the home screen.
type Summary struct {
	Machine                types.Machine          `json:"machine"`
	DemoMode               bool                   `json:"demo_mode"`
	TodayProduction        int                    `json:"today_production"`
	TodayDowntimeMs        int64                  `json:"today_downtime_ms"`
	TodayDowntime          string                 `json:"today_downtime"`
	TodayOperatingTimeMs   int64                  `json:"today_operating_time_ms"`
	TodayOperatingTime     string                 `json:"today_operating_time"`
	TodayEarnings          float64                `json:"today_earnings"`
	TodayEarningsFormatted string                 `json:"today_earnings_formatted"`
	ActiveDowntime         *types.DowntimeEvent   `json:"active_downtime,omitempty"`
	ActiveSession          *types.OperatorSession `json:"active_session,omitempty"`
	LastUpdated            time.Time              `json:"last_updated"`
	GeneratedAt            time.Time              `json:"generated_at"`
}

// WithLocale returns an engine sharing location and currency with e.
func (e *Engine) WithLocale(l Locale) *Engine {
	if l == e.locale {
		return e
	}
	out := *e
	out.locale = l
	out.labels = labelsFor(l)
	out.printer = message.NewPrinter(l.tag())
	return &out
}

func (e *Engine) Summary(state types.AppState, now time.Time) Summary {
	downtime := e.TodayDowntime(state, now)
	operating := e.TodayOperatingTime(state, now)
	earnings := e.TodayEarnings(state, now)

	s := Summary{
		Machine:                state.Machine,
		DemoMode:               state.DemoMode,
		TodayProduction:        e.TodayProduction(state, now),
		TodayDowntimeMs:        downtime.Milliseconds(),
		TodayDowntime:          e.FormatDuration(downtime),
		TodayOperatingTimeMs:   operating.Milliseconds(),
		TodayOperatingTime:     e.FormatDuration(operating),
		TodayEarnings:          earnings,
		TodayEarningsFormatted: e.FormatEarnings(earnings),
		LastUpdated:            state.LastUpdated,
		GeneratedAt:            now,
	}
	if dt, ok := state.ActiveDowntime(); ok {
		s.ActiveDowntime = &dt
	}
	if sess, ok := state.ActiveSession(); ok {
		s.ActiveSession = &sess
	}
	return s
}
