package eventlog

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures a Log.
type Options struct {
	Persister Persister
	Logger    *zap.Logger
	// OnPersistError is called after a failed save, for metrics.
	OnPersistError func(error)
	// NewID overrides ID generation (tests). Receives the record prefix.
	NewID func(prefix string) string
}

// Log owns the AppState. All mutations are serialized through mu; at most
// one downtime interval and one operator session are open at any time.
// Starting a second one is rejected with types.ErrConflictingState.
type Log struct {
	mu           sync.Mutex
	state        types.AppState
	openDowntime int
	openSession  int
	seq          uint64

	persister      Persister
	onPersistError func(error)
	newID          func(prefix string) string
	logger         *zap.Logger

	listenersMu sync.RWMutex
	listeners   []Listener

	// Listeners see changes in seq order; dispatched is the last seq delivered.
	dispatchMu   sync.Mutex
	dispatchCond *sync.Cond
	dispatched   uint64
}

// New builds a Log around initial. initial must satisfy the open-interval
// invariants; machine status is re-derived from the open downtime.
func New(initial types.AppState, opts Options) (*Log, error) {
	l := &Log{
		persister:      opts.Persister,
		onPersistError: opts.OnPersistError,
		newID:          opts.NewID,
		logger:         opts.Logger,
	}
	l.dispatchCond = sync.NewCond(&l.dispatchMu)
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.newID == nil {
		l.newID = func(prefix string) string {
			return prefix + "-" + uuid.NewString()
		}
	}
	if err := l.load(initial); err != nil {
		return nil, err
	}
	return l, nil
}

// Subscribe registers a listener for committed mutations.
func (l *Log) Subscribe(fn Listener) {
	l.listenersMu.Lock()
	defer l.listenersMu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// load installs state and indexes its open intervals. Caller holds mu or owns l.
func (l *Log) load(state types.AppState) error {
	openDowntime, err := findOpen(len(state.DowntimeEvents), func(i int) bool {
		return state.DowntimeEvents[i].Interval.IsOpen()
	})
	if err != nil {
		return fmt.Errorf("downtime events: %w", err)
	}
	openSession, err := findOpen(len(state.OperatorSessions), func(i int) bool {
		return state.OperatorSessions[i].Interval.IsOpen()
	})
	if err != nil {
		return fmt.Errorf("operator sessions: %w", err)
	}

	l.state = state.Clone()
	if l.state.Version == 0 {
		l.state.Version = types.SnapshotVersion
	}
	l.openDowntime = openDowntime
	l.openSession = openSession
	l.state.Machine.Status = types.StatusRunning
	if openDowntime >= 0 {
		l.state.Machine.Status = types.StatusStopped
	}
	return nil
}

func findOpen(n int, isOpen func(int) bool) (int, error) {
	idx := -1
	for i := 0; i < n; i++ {
		if !isOpen(i) {
			continue
		}
		if idx >= 0 {
			return -1, fmt.Errorf("%w: more than one open interval", types.ErrConflictingState)
		}
		idx = i
	}
	return idx, nil
}

// Snapshot exports the full state.
func (l *Log) Snapshot() types.AppState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// Status returns the current machine status.
func (l *Log) Status() types.MachineStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Machine.Status
}

// DemoActive reports whether demo ticks may currently produce events.
func (l *Log) DemoActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.demoActiveLocked()
}

func (l *Log) demoActiveLocked() bool {
	return l.state.DemoMode && l.state.Machine.Status == types.StatusRunning
}

// Restore replaces the full state with a previously exported snapshot.
func (l *Log) Restore(state types.AppState) error {
	l.mu.Lock()
	if err := l.load(state); err != nil {
		l.mu.Unlock()
		return err
	}
	ch := l.commitLocked(ChangeRestored, state.LastUpdated, false)
	l.mu.Unlock()

	l.notify(ch)
	return nil
}

// Reset replaces the whole state with a freshly initialized one.
func (l *Log) Reset(initial types.AppState, at time.Time) error {
	l.mu.Lock()
	if err := l.load(initial); err != nil {
		l.mu.Unlock()
		return err
	}
	ch := l.commitLocked(ChangeReset, at, true)
	l.mu.Unlock()

	l.logger.Info("Event log reset")
	l.notify(ch)
	return nil
}

// RecordProduction appends a production event. It does not affect machine status.
func (l *Log) RecordProduction(count int, at time.Time) (types.ProductionEvent, error) {
	if count <= 0 {
		return types.ProductionEvent{}, fmt.Errorf("%w: production count must be positive, got %d",
			types.ErrInvalidArgument, count)
	}

	l.mu.Lock()
	ev := l.appendProductionLocked(count, at)
	ch := l.commitLocked(ChangeProductionRecorded, at, true)
	ch.Production = &ev
	l.mu.Unlock()

	l.notify(ch)
	return ev, nil
}

// RecordDemoProduction appends a production event only while demo mode is on
// and the machine is running; the check and the append are atomic.
func (l *Log) RecordDemoProduction(count int, at time.Time) (types.ProductionEvent, bool, error) {
	if count <= 0 {
		return types.ProductionEvent{}, false, fmt.Errorf("%w: production count must be positive, got %d",
			types.ErrInvalidArgument, count)
	}

	l.mu.Lock()
	if !l.demoActiveLocked() {
		l.mu.Unlock()
		return types.ProductionEvent{}, false, nil
	}
	ev := l.appendProductionLocked(count, at)
	ch := l.commitLocked(ChangeProductionRecorded, at, true)
	ch.Production = &ev
	l.mu.Unlock()

	l.notify(ch)
	return ev, true, nil
}

func (l *Log) appendProductionLocked(count int, at time.Time) types.ProductionEvent {
	ev := types.ProductionEvent{
		ID:        l.newID("prod"),
		Timestamp: stamp(at),
		Count:     count,
	}
	l.state.ProductionEvents = append(l.state.ProductionEvents, ev)
	return ev
}

// StartDowntime opens a downtime interval and stops the machine.
func (l *Log) StartDowntime(reason string, at time.Time) (types.DowntimeEvent, error) {
	l.mu.Lock()
	if l.openDowntime >= 0 {
		open := l.state.DowntimeEvents[l.openDowntime]
		l.mu.Unlock()
		return types.DowntimeEvent{}, fmt.Errorf("%w: downtime %s already open since %s",
			types.ErrConflictingState, open.ID, open.Interval.Start().Format(time.RFC3339))
	}

	ev := types.DowntimeEvent{
		ID:       l.newID("down"),
		Interval: types.OpenInterval(stamp(at)),
		Reason:   strings.TrimSpace(reason),
	}
	l.state.DowntimeEvents = append(l.state.DowntimeEvents, ev)
	l.openDowntime = len(l.state.DowntimeEvents) - 1
	l.state.Machine.Status = types.StatusStopped

	ch := l.commitLocked(ChangeDowntimeStarted, at, true)
	ch.Downtime = &ev
	l.mu.Unlock()

	l.logger.Info("Downtime started",
		zap.String("downtime_id", ev.ID),
		zap.String("reason", ev.Reason))
	l.notify(ch)
	return ev, nil
}

// EndDowntime closes the open downtime interval. It returns nil and changes
// nothing when no interval is open.
func (l *Log) EndDowntime(at time.Time) (*types.DowntimeEvent, error) {
	l.mu.Lock()
	if l.openDowntime < 0 {
		l.mu.Unlock()
		return nil, nil
	}

	idx := l.openDowntime
	closed, err := l.state.DowntimeEvents[idx].Interval.Close(stamp(at))
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.state.DowntimeEvents[idx].Interval = closed
	l.openDowntime = -1
	l.state.Machine.Status = types.StatusRunning

	ev := l.state.DowntimeEvents[idx]
	ch := l.commitLocked(ChangeDowntimeEnded, at, true)
	ch.Downtime = &ev
	l.mu.Unlock()

	l.logger.Info("Downtime ended",
		zap.String("downtime_id", ev.ID),
		zap.Duration("duration", ev.Interval.Duration(at)))
	l.notify(ch)
	return &ev, nil
}

// StartOperatorSession opens a session for a roster operator. Only one
// session may be open at a time, globally.
func (l *Log) StartOperatorSession(operatorID string, at time.Time) (types.OperatorSession, error) {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return types.OperatorSession{}, fmt.Errorf("%w: operator id is required", types.ErrInvalidArgument)
	}

	l.mu.Lock()
	if _, ok := l.state.Operator(operatorID); !ok {
		l.mu.Unlock()
		return types.OperatorSession{}, fmt.Errorf("%w: unknown operator %q", types.ErrInvalidArgument, operatorID)
	}
	if l.openSession >= 0 {
		open := l.state.OperatorSessions[l.openSession]
		l.mu.Unlock()
		return types.OperatorSession{}, fmt.Errorf("%w: session %s for operator %s already open",
			types.ErrConflictingState, open.ID, open.OperatorID)
	}

	sess := types.OperatorSession{
		ID:         l.newID("session"),
		OperatorID: operatorID,
		Interval:   types.OpenInterval(stamp(at)),
	}
	l.state.OperatorSessions = append(l.state.OperatorSessions, sess)
	l.openSession = len(l.state.OperatorSessions) - 1

	ch := l.commitLocked(ChangeSessionStarted, at, true)
	ch.Session = &sess
	l.mu.Unlock()

	l.logger.Info("Operator session started",
		zap.String("session_id", sess.ID),
		zap.String("operator_id", operatorID))
	l.notify(ch)
	return sess, nil
}

// EndOperatorSession closes the open session, or returns nil when none is open.
func (l *Log) EndOperatorSession(at time.Time) (*types.OperatorSession, error) {
	l.mu.Lock()
	if l.openSession < 0 {
		l.mu.Unlock()
		return nil, nil
	}

	idx := l.openSession
	closed, err := l.state.OperatorSessions[idx].Interval.Close(stamp(at))
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.state.OperatorSessions[idx].Interval = closed
	l.openSession = -1

	sess := l.state.OperatorSessions[idx]
	ch := l.commitLocked(ChangeSessionEnded, at, true)
	ch.Session = &sess
	l.mu.Unlock()

	l.logger.Info("Operator session ended",
		zap.String("session_id", sess.ID),
		zap.String("operator_id", sess.OperatorID))
	l.notify(ch)
	return &sess, nil
}

// SetDemoMode switches synthetic production on or off.
func (l *Log) SetDemoMode(enabled bool, at time.Time) types.AppState {
	return l.updateDemoMode(func(bool) bool { return enabled }, at)
}

// ToggleDemoMode flips demo mode and returns the new value.
func (l *Log) ToggleDemoMode(at time.Time) bool {
	return l.updateDemoMode(func(cur bool) bool { return !cur }, at).DemoMode
}

func (l *Log) updateDemoMode(next func(bool) bool, at time.Time) types.AppState {
	l.mu.Lock()
	l.state.DemoMode = next(l.state.DemoMode)
	ch := l.commitLocked(ChangeDemoMode, at, true)
	l.mu.Unlock()

	l.logger.Info("Demo mode changed", zap.Bool("enabled", ch.State.DemoMode))
	l.notify(ch)
	return ch.State.Clone()
}

// SetProfitPerEmpanada updates the per-unit profit used for earnings.
func (l *Log) SetProfitPerEmpanada(profit float64, at time.Time) error {
	if math.IsNaN(profit) || math.IsInf(profit, 0) || profit < 0 {
		return fmt.Errorf("%w: profit per empanada must be a non-negative number, got %v",
			types.ErrInvalidArgument, profit)
	}

	l.mu.Lock()
	l.state.ProfitPerEmpanada = profit
	ch := l.commitLocked(ChangeSettings, at, true)
	l.mu.Unlock()

	l.notify(ch)
	return nil
}

// commitLocked stamps, persists and snapshots the state. Saving happens under
// mu so snapshots reach the store in mutation order; failures are logged only.
func (l *Log) commitLocked(kind ChangeKind, at time.Time, touch bool) Change {
	if touch {
		l.state.LastUpdated = stamp(at)
	}
	l.seq++
	snap := l.state.Clone()

	if l.persister != nil {
		if err := l.persister.Save(context.Background(), snap); err != nil {
			l.logger.Error("Failed to persist state",
				zap.String("change", string(kind)),
				zap.Uint64("seq", l.seq),
				zap.Error(err))
			if l.onPersistError != nil {
				l.onPersistError(err)
			}
		}
	}

	return Change{Seq: l.seq, Kind: kind, At: at, State: snap}
}

// notify delivers ch once every earlier change has been delivered. Listeners
// run without mu held and must not mutate the log.
func (l *Log) notify(ch Change) {
	l.dispatchMu.Lock()
	for l.dispatched+1 != ch.Seq {
		l.dispatchCond.Wait()
	}
	l.dispatchMu.Unlock()

	defer func() {
		l.dispatchMu.Lock()
		l.dispatched = ch.Seq
		l.dispatchCond.Broadcast()
		l.dispatchMu.Unlock()
	}()

	l.listenersMu.RLock()
	listeners := make([]Listener, len(l.listeners))
	copy(listeners, l.listeners)
	l.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(ch)
	}
}

// stamp normalizes a timestamp to the millisecond precision of the snapshot format.
func stamp(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}
