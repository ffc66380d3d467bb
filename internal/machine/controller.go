package machine

import (
	"context"
	"fmt"
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/eventlog"
	"github.com/KevinKickass/ProductionPulse/internal/types"
	"go.uber.org/zap"
)

type Command string

const (
	CommandStart Command = "start"
	CommandStop  Command = "stop"
)

type MachineStatus struct {
	Machine         types.Machine       `json:"machine"`
	State           types.MachineStatus `json:"state"`
	DowntimeID      string              `json:"downtime_id,omitempty"`
	DowntimeReason  string              `json:"downtime_reason,omitempty"`
	StoppedSince    *time.Time          `json:"stopped_since,omitempty"`
	DemoActive      bool                `json:"demo_active"`
	LastStateChange time.Time           `json:"last_state_change"`
}

// Controller maps start/stop commands onto downtime intervals in the event log.
// The machine is STOPPED exactly while a downtime interval is open.
type Controller struct {
	logger *zap.Logger
	log    *eventlog.Log
	now    func() time.Time
}

func NewController(logger *zap.Logger, log *eventlog.Log, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{logger: logger, log: log, now: now}
}

// ExecuteCommand handles machine commands. reason is only used by stop.
// Starting a running machine is a no-op; stopping a stopped machine returns
// types.ErrConflictingState.
func (c *Controller) ExecuteCommand(ctx context.Context, cmd Command, reason string) error {
	c.logger.Info("Machine command received",
		zap.String("command", string(cmd)),
		zap.String("current_state", string(c.log.Status())))

	switch cmd {
	case CommandStop:
		_, err := c.log.StartDowntime(reason, c.now())
		return err
	case CommandStart:
		_, err := c.log.EndDowntime(c.now())
		return err
	default:
		return fmt.Errorf("%w: unknown command %q", types.ErrInvalidArgument, cmd)
	}
}

func (c *Controller) GetStatus() MachineStatus {
	state := c.log.Snapshot()
	status := MachineStatus{
		Machine:    state.Machine,
		State:      state.Machine.Status,
		DemoActive: state.DemoMode && state.Machine.Status == types.StatusRunning,
	}

	if dt, ok := state.ActiveDowntime(); ok {
		since := dt.Interval.Start()
		status.DowntimeID = dt.ID
		status.DowntimeReason = dt.Reason
		status.StoppedSince = &since
		status.LastStateChange = since
		return status
	}

	// Running: the last transition is the most recent downtime end.
	for _, dt := range state.DowntimeEvents {
		if end, ok := dt.Interval.End(); ok && end.After(status.LastStateChange) {
			status.LastStateChange = end
		}
	}
	return status
}
