package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/types"
)

func newTestEngine(t *testing.T, locale Locale) *Engine {
	t.Helper()
	e, err := NewEngine(Options{Location: time.UTC, Locale: locale})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func closed(t *testing.T, start, end time.Time) types.Interval {
	t.Helper()
	iv, err := types.ClosedInterval(start, end)
	if err != nil {
		t.Fatalf("ClosedInterval() error = %v", err)
	}
	return iv
}

func baseState() types.AppState {
	return types.AppState{
		Machine:           types.Machine{ID: "machine-001", Status: types.StatusRunning},
		Operators:         []types.Operator{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}, {ID: "c", Name: "C"}},
		ProfitPerEmpanada: 1,
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0m"},
		{-5 * time.Minute, "0m"},
		{59 * time.Second, "0m"},
		{45 * time.Minute, "45m"},
		{90 * time.Minute, "1h 30m"},
		{2*time.Hour + 59*time.Second, "2h 0m"},
		{25 * time.Hour, "25h 0m"},
	}
	e := newTestEngine(t, LocaleEN)
	for _, tt := range tests {
		if got := e.FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTodayProductionExcludesYesterday(t *testing.T) {
	e := newTestEngine(t, LocaleEN)
	now := time.Date(2024, 10, 14, 10, 0, 0, 0, time.UTC)
	s := baseState()
	s.ProductionEvents = []types.ProductionEvent{
		{Timestamp: now.Add(-10*time.Hour - time.Minute), Count: 7}, // yesterday 23:59
		{Timestamp: time.Date(2024, 10, 14, 0, 0, 0, 0, time.UTC), Count: 2},
		{Timestamp: now.Add(-time.Hour), Count: 3},
	}
	if got := e.TodayProduction(s, now); got != 5 {
		t.Fatalf("TodayProduction() = %d, want 5", got)
	}
	if got := e.TodayEarnings(s, now); got != 5 {
		t.Fatalf("TodayEarnings() = %v, want 5", got)
	}
}

func TestTodayDowntimeAndOperatingTime(t *testing.T) {
	e := newTestEngine(t, LocaleEN)
	now := time.Date(2024, 10, 14, 10, 0, 0, 0, time.UTC)
	s := baseState()
	s.DowntimeEvents = []types.DowntimeEvent{
		{ID: "old", Interval: closed(t, now.Add(-11*time.Hour), now.Add(-10*time.Hour+30*time.Minute))},
		{ID: "d1", Interval: closed(t, now.Add(-3*time.Hour), now.Add(-2*time.Hour))},
		{ID: "d2", Interval: types.OpenInterval(now.Add(-15 * time.Minute))},
	}

	if got := e.TodayDowntime(s, now); got != time.Hour+15*time.Minute {
		t.Fatalf("TodayDowntime() = %s, want 1h15m", got)
	}
	if got := e.TodayOperatingTime(s, now); got != 8*time.Hour+45*time.Minute {
		t.Fatalf("TodayOperatingTime() = %s, want 8h45m", got)
	}

	events := e.TodayDowntimeEvents(s, now)
	if len(events) != 2 || events[0].ID != "d2" || events[1].ID != "d1" {
		t.Fatalf("TodayDowntimeEvents() = %+v", events)
	}
}

func TestOperatingTimeFloor(t *testing.T) {
	e := newTestEngine(t, LocaleEN)
	now := time.Date(2024, 10, 14, 0, 30, 0, 0, time.UTC)
	s := baseState()
	// Clock skew: a downtime recorded in the future still counts from its start.
	s.DowntimeEvents = []types.DowntimeEvent{
		{ID: "d", Interval: closed(t, now.Add(-20*time.Minute), now.Add(time.Hour))},
	}
	if got := e.TodayOperatingTime(s, now); got != 0 {
		t.Fatalf("TodayOperatingTime() = %s, want 0", got)
	}
}

func TestProductionByHour(t *testing.T) {
	e := newTestEngine(t, LocaleEN)
	now := time.Date(2024, 10, 14, 3, 10, 0, 0, time.UTC)
	s := baseState()
	s.ProductionEvents = []types.ProductionEvent{
		{Timestamp: time.Date(2024, 10, 14, 0, 5, 0, 0, time.UTC), Count: 1},
		{Timestamp: time.Date(2024, 10, 14, 2, 59, 59, 0, time.UTC), Count: 4},
		{Timestamp: time.Date(2024, 10, 14, 2, 0, 0, 0, time.UTC), Count: 2},
		{Timestamp: time.Date(2024, 10, 14, 5, 0, 0, 0, time.UTC), Count: 9},
	}
	buckets := e.ProductionByHour(s, now)
	want := []int{1, 0, 6, 0}
	if len(buckets) != len(want) {
		t.Fatalf("buckets = %d, want %d", len(buckets), len(want))
	}
	for h, c := range want {
		if buckets[h].Hour != h || buckets[h].Count != c {
			t.Errorf("bucket %d = %+v, want count %d", h, buckets[h], c)
		}
	}
}

func TestLast7DaysProduction(t *testing.T) {
	now := time.Date(2024, 10, 14, 12, 0, 0, 0, time.UTC) // Monday
	s := baseState()
	s.ProductionEvents = []types.ProductionEvent{
		{Timestamp: time.Date(2024, 10, 8, 8, 0, 0, 0, time.UTC), Count: 2},
		{Timestamp: time.Date(2024, 10, 7, 23, 59, 0, 0, time.UTC), Count: 100},
		{Timestamp: time.Date(2024, 10, 14, 9, 0, 0, 0, time.UTC), Count: 5},
	}

	days := newTestEngine(t, LocaleEN).Last7DaysProduction(s, now)
	if len(days) != 7 {
		t.Fatalf("days = %d, want 7", len(days))
	}
	if days[0].Count != 2 || days[6].Count != 5 {
		t.Fatalf("first/last counts = %d/%d, want 2/5", days[0].Count, days[6].Count)
	}
	if days[6].Label != "Mon, Oct 14" {
		t.Fatalf("label = %q, want %q", days[6].Label, "Mon, Oct 14")
	}
	if days[0].Label != "Tue, Oct 8" {
		t.Fatalf("label = %q, want %q", days[0].Label, "Tue, Oct 8")
	}

	es := newTestEngine(t, LocaleES).Last7DaysProduction(s, now)
	if es[6].Label != "lun, 14 oct" {
		t.Fatalf("es label = %q, want %q", es[6].Label, "lun, 14 oct")
	}
}

func TestProductionByOperator(t *testing.T) {
	e := newTestEngine(t, LocaleEN)
	day := time.Date(2024, 10, 14, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }
	now := at(12, 0)

	s := baseState()
	s.OperatorSessions = []types.OperatorSession{
		{ID: "s1", OperatorID: "a", Interval: closed(t, at(9, 0), at(10, 0))},
		{ID: "s2", OperatorID: "b", Interval: types.OpenInterval(at(10, 0))},
	}
	s.ProductionEvents = []types.ProductionEvent{
		{Timestamp: at(9, 30), Count: 5},
		{Timestamp: at(10, 30), Count: 3},
		{Timestamp: at(8, 0), Count: 4},
	}

	report := e.ProductionByOperator(s, now)
	if len(report.Operators) != 3 {
		t.Fatalf("operators = %d, want 3", len(report.Operators))
	}
	byID := map[string]OperatorStats{}
	for _, st := range report.Operators {
		byID[st.Operator.ID] = st
	}
	if byID["a"].Production != 5 || byID["b"].Production != 3 || byID["c"].Production != 0 {
		t.Fatalf("production = a:%d b:%d c:%d, want 5/3/0",
			byID["a"].Production, byID["b"].Production, byID["c"].Production)
	}
	if byID["a"].Time != time.Hour || byID["b"].Time != 2*time.Hour {
		t.Fatalf("time = a:%s b:%s", byID["a"].Time, byID["b"].Time)
	}
	if !byID["b"].Active || byID["a"].Active {
		t.Fatal("only b should be active")
	}
	if byID["b"].TimeFormatted != "2h 0m" {
		t.Fatalf("formatted = %q", byID["b"].TimeFormatted)
	}
	if report.Unassigned != 4 {
		t.Fatalf("unassigned = %d, want 4", report.Unassigned)
	}
}

func TestProductionAtSessionBoundaryCountedOnce(t *testing.T) {
	e := newTestEngine(t, LocaleEN)
	day := time.Date(2024, 10, 14, 0, 0, 0, 0, time.UTC)
	boundary := day.Add(10 * time.Hour)

	s := baseState()
	s.OperatorSessions = []types.OperatorSession{
		{ID: "s1", OperatorID: "a", Interval: closed(t, day.Add(9*time.Hour), boundary)},
		{ID: "s2", OperatorID: "b", Interval: types.OpenInterval(boundary)},
	}
	s.ProductionEvents = []types.ProductionEvent{{Timestamp: boundary, Count: 2}}

	report := e.ProductionByOperator(s, day.Add(11*time.Hour))
	total := report.Unassigned
	for _, st := range report.Operators {
		total += st.Production
	}
	if total != 2 {
		t.Fatalf("attributed total = %d, want 2", total)
	}
	if report.Operators[0].Production != 2 {
		t.Fatalf("earliest session should win the boundary event, got %+v", report.Operators)
	}
}

func TestSummaryAndEarnings(t *testing.T) {
	e := newTestEngine(t, LocaleEN)
	now := time.Date(2024, 10, 14, 10, 0, 0, 0, time.UTC)
	s := baseState()
	s.ProfitPerEmpanada = 2.5
	s.ProductionEvents = []types.ProductionEvent{{Timestamp: now.Add(-time.Hour), Count: 4}}
	s.DowntimeEvents = []types.DowntimeEvent{{ID: "d", Interval: types.OpenInterval(now.Add(-30 * time.Minute))}}

	sum := e.Summary(s, now)
	if sum.TodayProduction != 4 || sum.TodayEarnings != 10 {
		t.Fatalf("Summary() = %+v", sum)
	}
	if sum.TodayDowntime != "30m" || sum.TodayOperatingTime != "9h 30m" {
		t.Fatalf("durations = %q, %q", sum.TodayDowntime, sum.TodayOperatingTime)
	}
	if sum.ActiveDowntime == nil || sum.ActiveDowntime.ID != "d" {
		t.Fatal("Summary() missing active downtime")
	}
	if !strings.Contains(sum.TodayEarningsFormatted, "10") {
		t.Fatalf("formatted earnings = %q", sum.TodayEarningsFormatted)
	}
}

func TestParseLocale(t *testing.T) {
	for in, want := range map[string]Locale{"es": LocaleES, "es-AR": LocaleES, "EN": LocaleEN, "": LocaleEN, "fr": LocaleEN} {
		if got := ParseLocale(in); got != want {
			t.Errorf("ParseLocale(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewEngineRejectsBadCurrency(t *testing.T) {
	if _, err := NewEngine(Options{Currency: "NOPE"}); err == nil {
		t.Fatal("NewEngine() error = nil for invalid currency")
	}
}
