package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/seed"
	"github.com/KevinKickass/ProductionPulse/internal/types"
)

var t0 = time.Date(2024, 10, 14, 9, 0, 0, 0, time.UTC)

type memPersister struct {
	mu    sync.Mutex
	saves []types.AppState
	err   error
}

func (m *memPersister) Save(_ context.Context, s types.AppState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, s)
	return m.err
}

func (m *memPersister) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func newTestLog(t *testing.T, opts Options) *Log {
	t.Helper()
	n := 0
	if opts.NewID == nil {
		opts.NewID = func(prefix string) string {
			n++
			return fmt.Sprintf("%s-%d", prefix, n)
		}
	}
	initial := seed.InitialState(seed.DefaultRoster(), seed.Defaults{ProfitPerEmpanada: 1}, t0)
	l, err := New(initial, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l
}

func TestRecordProduction(t *testing.T) {
	p := &memPersister{}
	l := newTestLog(t, Options{Persister: p})

	ev, err := l.RecordProduction(4, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("RecordProduction() error = %v", err)
	}
	if ev.ID != "prod-1" || ev.Count != 4 {
		t.Fatalf("RecordProduction() = %+v", ev)
	}

	for _, bad := range []int{0, -3} {
		if _, err := l.RecordProduction(bad, t0); !errors.Is(err, types.ErrInvalidArgument) {
			t.Fatalf("RecordProduction(%d) error = %v, want ErrInvalidArgument", bad, err)
		}
	}

	s := l.Snapshot()
	if len(s.ProductionEvents) != 1 {
		t.Fatalf("production events = %d, want 1", len(s.ProductionEvents))
	}
	if s.Machine.Status != types.StatusRunning {
		t.Fatalf("status = %s, want RUNNING", s.Machine.Status)
	}
	if !s.LastUpdated.Equal(t0.Add(time.Minute)) {
		t.Fatalf("LastUpdated = %s", s.LastUpdated)
	}
	if p.count() != 1 {
		t.Fatalf("saves = %d, want 1", p.count())
	}
}

func TestDowntimeLifecycle(t *testing.T) {
	l := newTestLog(t, Options{})

	ev, err := l.StartDowntime("  Cleaning  ", t0)
	if err != nil {
		t.Fatalf("StartDowntime() error = %v", err)
	}
	if ev.Reason != "Cleaning" || !ev.Interval.IsOpen() {
		t.Fatalf("StartDowntime() = %+v", ev)
	}
	if l.Status() != types.StatusStopped {
		t.Fatalf("status = %s, want STOPPED", l.Status())
	}

	if _, err := l.StartDowntime("jam", t0.Add(time.Minute)); !errors.Is(err, types.ErrConflictingState) {
		t.Fatalf("second StartDowntime() error = %v, want ErrConflictingState", err)
	}

	ended, err := l.EndDowntime(t0.Add(5 * time.Minute))
	if err != nil || ended == nil {
		t.Fatalf("EndDowntime() = %v, %v", ended, err)
	}
	if got := ended.Interval.Duration(t0.Add(time.Hour)); got != 5*time.Minute {
		t.Fatalf("duration = %s, want 5m", got)
	}
	if l.Status() != types.StatusRunning {
		t.Fatalf("status = %s, want RUNNING", l.Status())
	}

	before := l.Snapshot()
	again, err := l.EndDowntime(t0.Add(6 * time.Minute))
	if err != nil || again != nil {
		t.Fatalf("EndDowntime() without open interval = %v, %v", again, err)
	}
	if after := l.Snapshot(); !after.LastUpdated.Equal(before.LastUpdated) || len(after.DowntimeEvents) != 1 {
		t.Fatal("EndDowntime() without open interval changed state")
	}
}

func TestEndDowntimeBeforeStart(t *testing.T) {
	l := newTestLog(t, Options{})
	if _, err := l.StartDowntime("", t0); err != nil {
		t.Fatalf("StartDowntime() error = %v", err)
	}
	if _, err := l.EndDowntime(t0.Add(-time.Minute)); !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("EndDowntime(before start) error = %v, want ErrInvalidArgument", err)
	}
	if l.Status() != types.StatusStopped {
		t.Fatal("rejected EndDowntime() changed status")
	}
}

func TestOperatorSessions(t *testing.T) {
	l := newTestLog(t, Options{})

	if _, err := l.StartOperatorSession("", t0); !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("empty operator error = %v", err)
	}
	if _, err := l.StartOperatorSession("op-404", t0); !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("unknown operator error = %v", err)
	}

	sess, err := l.StartOperatorSession("op-1", t0)
	if err != nil {
		t.Fatalf("StartOperatorSession() error = %v", err)
	}
	if sess.ID != "session-1" || sess.OperatorID != "op-1" {
		t.Fatalf("StartOperatorSession() = %+v", sess)
	}
	if _, err := l.StartOperatorSession("op-2", t0.Add(time.Minute)); !errors.Is(err, types.ErrConflictingState) {
		t.Fatalf("second session error = %v, want ErrConflictingState", err)
	}

	ended, err := l.EndOperatorSession(t0.Add(time.Hour))
	if err != nil || ended == nil || ended.Interval.IsOpen() {
		t.Fatalf("EndOperatorSession() = %+v, %v", ended, err)
	}
	if again, err := l.EndOperatorSession(t0.Add(2 * time.Hour)); again != nil || err != nil {
		t.Fatalf("EndOperatorSession() without session = %v, %v", again, err)
	}
	if _, err := l.StartOperatorSession("op-2", t0.Add(2*time.Hour)); err != nil {
		t.Fatalf("StartOperatorSession() after end error = %v", err)
	}
}

func TestDemoMode(t *testing.T) {
	l := newTestLog(t, Options{})
	if l.DemoActive() {
		t.Fatal("DemoActive() with demo off")
	}
	if !l.ToggleDemoMode(t0) {
		t.Fatal("ToggleDemoMode() = false, want true")
	}
	if !l.DemoActive() {
		t.Fatal("DemoActive() = false with demo on and machine running")
	}

	if _, err := l.StartDowntime("jam", t0); err != nil {
		t.Fatalf("StartDowntime() error = %v", err)
	}
	if _, ok, _ := l.RecordDemoProduction(2, t0); ok {
		t.Fatal("RecordDemoProduction() recorded while stopped")
	}
	if _, err := l.EndDowntime(t0.Add(time.Minute)); err != nil {
		t.Fatalf("EndDowntime() error = %v", err)
	}
	if _, ok, err := l.RecordDemoProduction(2, t0.Add(2*time.Minute)); !ok || err != nil {
		t.Fatalf("RecordDemoProduction() = %v, %v", ok, err)
	}

	if s := l.SetDemoMode(false, t0); s.DemoMode {
		t.Fatal("SetDemoMode(false) returned demo on")
	}
	if _, ok, _ := l.RecordDemoProduction(2, t0); ok {
		t.Fatal("RecordDemoProduction() recorded with demo off")
	}
	if n := len(l.Snapshot().ProductionEvents); n != 1 {
		t.Fatalf("production events = %d, want 1", n)
	}
}

func TestSetProfitPerEmpanada(t *testing.T) {
	l := newTestLog(t, Options{})
	if err := l.SetProfitPerEmpanada(2.5, t0); err != nil {
		t.Fatalf("SetProfitPerEmpanada() error = %v", err)
	}
	if got := l.Snapshot().ProfitPerEmpanada; got != 2.5 {
		t.Fatalf("profit = %v, want 2.5", got)
	}
	if err := l.SetProfitPerEmpanada(-1, t0); !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("negative profit error = %v", err)
	}
}

func TestListenersSeeCommittedState(t *testing.T) {
	l := newTestLog(t, Options{})
	var got []Change
	l.Subscribe(func(ch Change) {
		// Listeners run outside the lock and may read the log.
		_ = l.Status()
		got = append(got, ch)
	})

	l.RecordProduction(1, t0)
	l.StartDowntime("jam", t0.Add(time.Minute))
	l.EndDowntime(t0.Add(2 * time.Minute))

	if len(got) != 3 {
		t.Fatalf("changes = %d, want 3", len(got))
	}
	kinds := []ChangeKind{ChangeProductionRecorded, ChangeDowntimeStarted, ChangeDowntimeEnded}
	for i, k := range kinds {
		if got[i].Kind != k || got[i].Seq != uint64(i+1) {
			t.Fatalf("change %d = %s seq %d, want %s seq %d", i, got[i].Kind, got[i].Seq, k, i+1)
		}
	}
	if got[1].State.Machine.Status != types.StatusStopped {
		t.Fatal("downtime start change does not carry STOPPED")
	}
	if got[0].Production == nil || got[1].Downtime == nil {
		t.Fatal("change is missing its record")
	}
}

func TestListenersReceiveChangesInCommitOrder(t *testing.T) {
	l := newTestLog(t, Options{})

	entered := make(chan struct{})
	release := make(chan struct{})
	l.Subscribe(func(ch Change) {
		if ch.Kind == ChangeDowntimeStarted {
			close(entered)
			<-release
		}
	})

	var mu sync.Mutex
	var kinds []ChangeKind
	var last types.MachineStatus
	l.Subscribe(func(ch Change) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, ch.Kind)
		last = ch.State.Machine.Status
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.StartDowntime("jam", t0)
	}()
	<-entered

	go func() {
		defer wg.Done()
		l.EndDowntime(t0.Add(time.Minute))
	}()
	// Wait until the end is committed while the start is still being delivered.
	deadline := time.Now().Add(2 * time.Second)
	for l.Status() != types.StatusRunning {
		if time.Now().After(deadline) {
			t.Fatal("EndDowntime() did not commit")
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	want := []ChangeKind{ChangeDowntimeStarted, ChangeDowntimeEnded}
	if len(kinds) != 2 || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Fatalf("delivered kinds = %v, want %v", kinds, want)
	}
	if last != types.StatusRunning {
		t.Fatalf("last delivered status = %s, want RUNNING", last)
	}
}

func TestPersistFailureKeepsMutation(t *testing.T) {
	p := &memPersister{err: types.ErrPersistenceFailure}
	var failures int
	l := newTestLog(t, Options{Persister: p, OnPersistError: func(error) { failures++ }})

	if _, err := l.RecordProduction(2, t0); err != nil {
		t.Fatalf("RecordProduction() error = %v", err)
	}
	if failures != 1 {
		t.Fatalf("failures = %d, want 1", failures)
	}
	if n := len(l.Snapshot().ProductionEvents); n != 1 {
		t.Fatalf("production events = %d, want 1", n)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	l := newTestLog(t, Options{})
	l.RecordProduction(3, t0)
	l.StartOperatorSession("op-2", t0)
	l.StartDowntime("jam", t0.Add(time.Minute))

	data, err := json.Marshal(l.Snapshot())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded types.AppState
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	other := newTestLog(t, Options{})
	if err := other.Restore(decoded); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if other.Status() != types.StatusStopped {
		t.Fatalf("restored status = %s, want STOPPED", other.Status())
	}
	if _, err := other.StartDowntime("again", t0.Add(2*time.Minute)); !errors.Is(err, types.ErrConflictingState) {
		t.Fatalf("restored log lost its open downtime: %v", err)
	}
	if _, err := other.EndOperatorSession(t0.Add(time.Hour)); err != nil {
		t.Fatalf("EndOperatorSession() on restored log error = %v", err)
	}
	if !other.Snapshot().LastUpdated.Equal(l.Snapshot().LastUpdated) {
		t.Fatal("Restore() changed lastUpdated")
	}
}

func TestNewRejectsTwoOpenIntervals(t *testing.T) {
	initial := seed.InitialState(seed.DefaultRoster(), seed.Defaults{}, t0)
	initial.DowntimeEvents = []types.DowntimeEvent{
		{ID: "a", Interval: types.OpenInterval(t0)},
		{ID: "b", Interval: types.OpenInterval(t0.Add(time.Minute))},
	}
	if _, err := New(initial, Options{}); !errors.Is(err, types.ErrConflictingState) {
		t.Fatalf("New() error = %v, want ErrConflictingState", err)
	}
}

func TestReset(t *testing.T) {
	l := newTestLog(t, Options{})
	l.RecordProduction(3, t0)
	l.StartDowntime("jam", t0)

	fresh := seed.InitialState(seed.DefaultRoster(), seed.Defaults{DemoMode: true}, t0)
	if err := l.Reset(fresh, t0.Add(time.Hour)); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	s := l.Snapshot()
	if len(s.ProductionEvents) != 0 || len(s.DowntimeEvents) != 0 || s.Machine.Status != types.StatusRunning {
		t.Fatalf("Reset() left state %+v", s)
	}
	if _, err := l.StartDowntime("after reset", t0.Add(2*time.Hour)); err != nil {
		t.Fatalf("StartDowntime() after reset error = %v", err)
	}
}

func TestConcurrentMutations(t *testing.T) {
	l := newTestLog(t, Options{NewID: func(p string) string { return p }})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.RecordProduction(1, t0)
		}()
		go func() {
			defer wg.Done()
			if _, err := l.StartDowntime("x", t0); err == nil {
				l.EndDowntime(t0.Add(time.Second))
			}
		}()
	}
	wg.Wait()

	s := l.Snapshot()
	if len(s.ProductionEvents) != 50 {
		t.Fatalf("production events = %d, want 50", len(s.ProductionEvents))
	}
	open := 0
	for _, d := range s.DowntimeEvents {
		if d.Interval.IsOpen() {
			open++
		}
	}
	if open > 1 {
		t.Fatalf("open downtimes = %d", open)
	}
}
