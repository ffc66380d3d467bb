// Package metrics derives every dashboard figure from an AppState snapshot.
// All functions are pure in (state, now); nothing here mutates state or
// reads the wall clock.
package metrics

import (
	"fmt"
	"slices"
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/types"
	"golang.org/x/text/currency"
	"golang.org/x/text/message"
)

type Options struct {
	// Location defines local midnight. Nil means time.Local.
	Location *time.Location
	Locale   Locale
	// Currency is an ISO 4217 code, "USD" when empty.
	Currency string
}

type Engine struct {
	loc     *time.Location
	locale  Locale
	labels  labels
	unit    currency.Unit
	printer *message.Printer
}

func NewEngine(opts Options) (*Engine, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	code := opts.Currency
	if code == "" {
		code = "USD"
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("invalid currency %q: %w", code, err)
	}
	locale := opts.Locale
	if locale == "" {
		locale = LocaleEN
	}
	return &Engine{
		loc:     loc,
		locale:  locale,
		labels:  labelsFor(locale),
		unit:    unit,
		printer: message.NewPrinter(locale.tag()),
	}, nil
}

func (e *Engine) Location() *time.Location { return e.loc }

type HourBucket struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

type DayBucket struct {
	Date  time.Time `json:"date"`
	Label string    `json:"label"`
	Count int       `json:"count"`
}

type OperatorStats struct {
	Operator      types.Operator `json:"operator"`
	Production    int            `json:"production"`
	Time          time.Duration  `json:"-"`
	TimeMs        int64          `json:"time_ms"`
	TimeFormatted string         `json:"time"`
	Active        bool           `json:"active"`
}

type OperatorReport struct {
	Operators []OperatorStats `json:"operators"`
	// Unassigned is today's production outside every operator session.
	Unassigned int `json:"unassigned"`
}

// StartOfDay returns local midnight of t's calendar day.
func (e *Engine) StartOfDay(t time.Time) time.Time {
	t = t.In(e.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
}

// dayWindow is the half-open window [start, end) of the calendar day offset
// days away from now's day.
func (e *Engine) dayWindow(now time.Time, offset int) (time.Time, time.Time) {
	n := now.In(e.loc)
	start := time.Date(n.Year(), n.Month(), n.Day()+offset, 0, 0, 0, 0, e.loc)
	end := time.Date(n.Year(), n.Month(), n.Day()+offset+1, 0, 0, 0, 0, e.loc)
	return start, end
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func (e *Engine) TodayProduction(state types.AppState, now time.Time) int {
	start, end := e.dayWindow(now, 0)
	return sumProduction(state.ProductionEvents, start, end)
}

func sumProduction(events []types.ProductionEvent, start, end time.Time) int {
	total := 0
	for _, ev := range events {
		if within(ev.Timestamp, start, end) {
			total += ev.Count
		}
	}
	return total
}

// TodayDowntime sums downtime intervals that started today; open intervals
// count up to now.
func (e *Engine) TodayDowntime(state types.AppState, now time.Time) time.Duration {
	start, end := e.dayWindow(now, 0)
	var total time.Duration
	for _, ev := range state.DowntimeEvents {
		if within(ev.Interval.Start(), start, end) {
			total += ev.Interval.Duration(now)
		}
	}
	return total
}

// TodayOperatingTime is elapsed day time minus today's downtime, floored at 0.
func (e *Engine) TodayOperatingTime(state types.AppState, now time.Time) time.Duration {
	elapsed := now.Sub(e.StartOfDay(now))
	op := elapsed - e.TodayDowntime(state, now)
	if op < 0 {
		return 0
	}
	return op
}

// FormatDuration renders floor-rounded hours and minutes: "1h 30m", "45m", "0m".
func (e *Engine) FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int64(d / time.Hour)
	minutes := int64((d % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%d%s %d%s", hours, e.labels.hoursShort, minutes, e.labels.minutesShort)
	}
	return fmt.Sprintf("%d%s", minutes, e.labels.minutesShort)
}

// ProductionByHour returns one bucket per hour from 0 through now's hour.
func (e *Engine) ProductionByHour(state types.AppState, now time.Time) []HourBucket {
	current := now.In(e.loc).Hour()
	buckets := make([]HourBucket, current+1)
	for h := range buckets {
		buckets[h].Hour = h
	}

	start, end := e.dayWindow(now, 0)
	for _, ev := range state.ProductionEvents {
		if !within(ev.Timestamp, start, end) {
			continue
		}
		h := ev.Timestamp.In(e.loc).Hour()
		if h <= current {
			buckets[h].Count += ev.Count
		}
	}
	return buckets
}

// Last7DaysProduction returns the six previous calendar days and today,
// oldest first.
func (e *Engine) Last7DaysProduction(state types.AppState, now time.Time) []DayBucket {
	days := make([]DayBucket, 0, 7)
	for offset := -6; offset <= 0; offset++ {
		start, end := e.dayWindow(now, offset)
		days = append(days, DayBucket{
			Date:  start,
			Label: e.labels.formatDay(start),
			Count: sumProduction(state.ProductionEvents, start, end),
		})
	}
	return days
}

// TodayDowntimeEvents lists today's downtime events, most recent start first.
func (e *Engine) TodayDowntimeEvents(state types.AppState, now time.Time) []types.DowntimeEvent {
	start, end := e.dayWindow(now, 0)
	out := make([]types.DowntimeEvent, 0)
	for _, ev := range state.DowntimeEvents {
		if within(ev.Interval.Start(), start, end) {
			out = append(out, ev)
		}
	}
	slices.SortStableFunc(out, func(a, b types.DowntimeEvent) int {
		return b.Interval.Start().Compare(a.Interval.Start())
	})
	return out
}

// ProductionByOperator attributes today's production to today's sessions.
// An event goes to the session with the earliest start whose
// [start, end ?? now] contains it (ties keep log order), so it is counted at
// most once. Every roster operator appears, including idle ones.
func (e *Engine) ProductionByOperator(state types.AppState, now time.Time) OperatorReport {
	start, end := e.dayWindow(now, 0)

	sessions := make([]types.OperatorSession, 0)
	for _, s := range state.OperatorSessions {
		if within(s.Interval.Start(), start, end) {
			sessions = append(sessions, s)
		}
	}
	slices.SortStableFunc(sessions, func(a, b types.OperatorSession) int {
		return a.Interval.Start().Compare(b.Interval.Start())
	})

	production := make(map[string]int)
	spent := make(map[string]time.Duration)
	unassigned := 0

	for _, ev := range state.ProductionEvents {
		if !within(ev.Timestamp, start, end) {
			continue
		}
		idx := slices.IndexFunc(sessions, func(s types.OperatorSession) bool {
			return s.Interval.Contains(ev.Timestamp, now)
		})
		if idx < 0 {
			unassigned += ev.Count
			continue
		}
		production[sessions[idx].OperatorID] += ev.Count
	}
	for _, s := range sessions {
		spent[s.OperatorID] += s.Interval.Duration(now)
	}

	active, hasActive := state.ActiveSession()

	report := OperatorReport{Operators: make([]OperatorStats, 0, len(state.Operators)), Unassigned: unassigned}
	for _, op := range state.Operators {
		d := spent[op.ID]
		report.Operators = append(report.Operators, OperatorStats{
			Operator:      op,
			Production:    production[op.ID],
			Time:          d,
			TimeMs:        d.Milliseconds(),
			TimeFormatted: e.FormatDuration(d),
			Active:        hasActive && active.OperatorID == op.ID,
		})
	}
	return report
}

// TodayEarnings is today's production times the per-unit profit.
func (e *Engine) TodayEarnings(state types.AppState, now time.Time) float64 {
	return float64(e.TodayProduction(state, now)) * state.ProfitPerEmpanada
}

// FormatEarnings renders an amount in the configured currency and locale.
func (e *Engine) FormatEarnings(amount float64) string {
	return e.printer.Sprint(currency.Symbol(e.unit.Amount(amount)))
}

