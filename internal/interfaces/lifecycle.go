package interfaces

import (
	"context"
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/config"
	"github.com/KevinKickass/ProductionPulse/internal/eventlog"
	"github.com/KevinKickass/ProductionPulse/internal/machine"
	"github.com/KevinKickass/ProductionPulse/internal/metrics"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string `json:"state"`
	StorageBackend   string `json:"storage_backend"`
	StorageSlot      string `json:"storage_slot"`
	DemoSimulator    bool   `json:"demo_simulator"`
	WebSocketClients int    `json:"websocket_clients"`
	NATSConnected    bool   `json:"nats_connected"`
}

type LifecycleManager interface {
	Config() *config.Config
	EventLog() *eventlog.Log
	Metrics() *metrics.Engine
	MachineController() *machine.Controller
	Now() time.Time
	ResetState(ctx context.Context) error
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
