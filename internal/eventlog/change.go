package eventlog

import (
	"context"
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/types"
)

type ChangeKind string

const (
	ChangeProductionRecorded ChangeKind = "production_recorded"
	ChangeDowntimeStarted    ChangeKind = "downtime_started"
	ChangeDowntimeEnded      ChangeKind = "downtime_ended"
	ChangeSessionStarted     ChangeKind = "session_started"
	ChangeSessionEnded       ChangeKind = "session_ended"
	ChangeDemoMode           ChangeKind = "demo_mode_changed"
	ChangeSettings           ChangeKind = "settings_changed"
	ChangeReset              ChangeKind = "state_reset"
	ChangeRestored           ChangeKind = "state_restored"
)

// Change describes one committed mutation. State is a snapshot taken right
// after the mutation and is shared between listeners: treat it as read-only.
type Change struct {
	Seq        uint64
	Kind       ChangeKind
	At         time.Time
	State      types.AppState
	Production *types.ProductionEvent
	Downtime   *types.DowntimeEvent
	Session    *types.OperatorSession
}

// Listener is called after every committed mutation, outside the log's lock,
// in commit order.
type Listener func(Change)

// Persister saves the full state after each mutation.
type Persister interface {
	Save(ctx context.Context, state types.AppState) error
}
