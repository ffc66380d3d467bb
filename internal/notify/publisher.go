package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/eventlog"
	"github.com/KevinKickass/ProductionPulse/internal/types"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event is the payload published for every committed change.
type Event struct {
	Seq        uint64                 `json:"seq"`
	Kind       string                 `json:"kind"`
	At         time.Time              `json:"at"`
	MachineID  string                 `json:"machine_id"`
	Status     types.MachineStatus    `json:"status"`
	DemoMode   bool                   `json:"demo_mode"`
	Production *types.ProductionEvent `json:"production,omitempty"`
	Downtime   *types.DowntimeEvent   `json:"downtime,omitempty"`
	Session    *types.OperatorSession `json:"session,omitempty"`
}

// Publisher forwards event log changes to NATS subjects <prefix>.<kind>.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

func NewPublisher(url, prefix string, logger *zap.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("productionpulse"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger}, nil
}

// Notify is an eventlog.Listener. Publish errors are logged and dropped.
func (p *Publisher) Notify(ch eventlog.Change) {
	if p.nc == nil || p.nc.IsClosed() {
		return
	}
	payload, err := eventPayload(ch)
	if err != nil {
		p.logger.Error("Failed to encode change", zap.Error(err))
		return
	}
	if err := p.nc.Publish(subjectFor(p.prefix, ch.Kind), payload); err != nil {
		p.logger.Warn("Failed to publish change",
			zap.String("kind", string(ch.Kind)),
			zap.Error(err))
	}
}

func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

func subjectFor(prefix string, kind eventlog.ChangeKind) string {
	if prefix == "" {
		return string(kind)
	}
	return prefix + "." + string(kind)
}

func eventPayload(ch eventlog.Change) ([]byte, error) {
	return json.Marshal(Event{
		Seq:        ch.Seq,
		Kind:       string(ch.Kind),
		At:         ch.At,
		MachineID:  ch.State.Machine.ID,
		Status:     ch.State.Machine.Status,
		DemoMode:   ch.State.DemoMode,
		Production: ch.Production,
		Downtime:   ch.Downtime,
		Session:    ch.Session,
	})
}
