package system

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/api/rest"
	"github.com/KevinKickass/ProductionPulse/internal/api/websocket"
	"github.com/KevinKickass/ProductionPulse/internal/config"
	"github.com/KevinKickass/ProductionPulse/internal/demo"
	"github.com/KevinKickass/ProductionPulse/internal/eventlog"
	"github.com/KevinKickass/ProductionPulse/internal/interfaces"
	"github.com/KevinKickass/ProductionPulse/internal/machine"
	"github.com/KevinKickass/ProductionPulse/internal/metrics"
	"github.com/KevinKickass/ProductionPulse/internal/notify"
	"github.com/KevinKickass/ProductionPulse/internal/seed"
	"github.com/KevinKickass/ProductionPulse/internal/storage"
	"github.com/KevinKickass/ProductionPulse/internal/telemetry"
	"github.com/KevinKickass/ProductionPulse/internal/types"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type LifecycleManager struct {
	config *config.Config
	logger *zap.Logger
	now    func() time.Time

	repo              *storage.Repository
	eventLog          *eventlog.Log
	engine            *metrics.Engine
	machineController *machine.Controller
	simulator         *demo.Simulator
	collector         *telemetry.Collector
	publisher         *notify.Publisher
	wsHub             *websocket.Hub
	hubCancel         context.CancelFunc

	restServer   *rest.Server
	grpcServer   *grpc.Server
	healthServer *health.Server

	stateMu      sync.RWMutex
	currentState SystemState

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// InitialState builds the fresh state used on first start and on reset.
func InitialState(cfg *config.Config, now time.Time) (types.AppState, error) {
	roster, err := seed.Load(cfg.Production.SeedFile)
	if err != nil {
		return types.AppState{}, err
	}
	return seed.InitialState(roster, seed.Defaults{
		DemoMode:          cfg.Demo.EnabledByDefault,
		ProfitPerEmpanada: cfg.Production.ProfitPerEmpanada,
	}, now), nil
}

// NewMetricsEngine builds the engine for the configured locale.
func NewMetricsEngine(cfg *config.Config) (*metrics.Engine, error) {
	loc, err := cfg.Locale.Location()
	if err != nil {
		return nil, err
	}
	return metrics.NewEngine(metrics.Options{
		Location: loc,
		Locale:   metrics.ParseLocale(cfg.Locale.Language),
		Currency: cfg.Locale.Currency,
	})
}

// NewLifecycleManager restores the stored state and wires every listener.
// The store stays owned by the caller.
func NewLifecycleManager(cfg *config.Config, store storage.BlobStore, logger *zap.Logger) (*LifecycleManager, error) {
	lm := &LifecycleManager{
		config:       cfg,
		logger:       logger,
		now:          time.Now,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}

	engine, err := NewMetricsEngine(cfg)
	if err != nil {
		return nil, err
	}
	lm.engine = engine

	lm.collector = telemetry.NewCollector()

	repo, err := storage.NewRepository(store, cfg.Storage.Slot, logger)
	if err != nil {
		return nil, err
	}
	repo.OnFailure(func(op string, err error) {
		lm.collector.ObservePersistenceFailure(op)
	})
	lm.repo = repo

	if err := lm.restore(context.Background()); err != nil {
		return nil, err
	}

	lm.machineController = machine.NewController(logger, lm.eventLog, lm.Now)
	lm.simulator = demo.NewSimulator(lm.eventLog, logger, demo.Options{
		MinDelay: cfg.Demo.MinDelay,
		MaxDelay: cfg.Demo.MaxDelay,
		MaxCount: cfg.Demo.MaxCount,
		Now:      lm.Now,
	})

	lm.wsHub = websocket.NewHub(logger, func(state types.AppState) any {
		return lm.engine.Summary(state, lm.Now())
	})
	lm.wsHub.Prime(lm.eventLog.Snapshot())

	lm.eventLog.Subscribe(lm.collector.Observe)
	lm.eventLog.Subscribe(lm.wsHub.Notify)
	lm.collector.SetStatus(lm.eventLog.Status())

	if cfg.NATS.URL != "" {
		publisher, err := notify.NewPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			// The dashboard works without the bus.
			logger.Warn("NATS unavailable, change publishing disabled",
				zap.String("url", cfg.NATS.URL),
				zap.Error(err))
		} else {
			lm.publisher = publisher
			lm.eventLog.Subscribe(publisher.Notify)
		}
	}

	return lm, nil
}

// restore loads the stored snapshot, falling back to a fresh state when the
// slot is empty or unusable. A demo state without production gets history.
func (lm *LifecycleManager) restore(ctx context.Context) error {
	now := lm.Now()
	fresh, err := InitialState(lm.config, now)
	if err != nil {
		return fmt.Errorf("failed to build initial state: %w", err)
	}

	state, found := lm.repo.Load(ctx, fresh)
	seeded := demo.SeedHistory(&state, nil, now.In(lm.engine.Location()), lm.config.Demo.BackfillHours)
	if seeded {
		lm.logger.Info("Demo history generated",
			zap.Int("production_events", len(state.ProductionEvents)))
	}

	log, err := eventlog.New(state, eventlog.Options{Persister: lm.repo, Logger: lm.logger})
	if err != nil {
		lm.logger.Warn("Stored state violates interval invariants, starting fresh", zap.Error(err))
		lm.collector.ObservePersistenceFailure("load")
		found = false
		if log, err = eventlog.New(fresh, eventlog.Options{Persister: lm.repo, Logger: lm.logger}); err != nil {
			return err
		}
	}
	lm.eventLog = log

	if !found || seeded {
		if err := lm.repo.Save(ctx, log.Snapshot()); err != nil {
			lm.logger.Error("Failed to persist initial state", zap.Error(err))
		}
	}
	return nil
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting ProductionPulse",
		zap.String("storage_backend", lm.config.Storage.Backend),
		zap.String("machine_status", string(lm.eventLog.Status())))

	hubCtx, cancel := context.WithCancel(context.Background())
	lm.hubCancel = cancel
	go lm.wsHub.Run(hubCtx)

	if err := lm.startGRPCServer(); err != nil {
		lm.setError(err)
		return fmt.Errorf("failed to start gRPC: %w", err)
	}

	if err := lm.startRESTServer(); err != nil {
		lm.setError(err)
		return fmt.Errorf("failed to start REST API: %w", err)
	}

	lm.simulator.Start()

	lm.setState(StateRunning)
	lm.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Bool("demo_mode", lm.eventLog.Snapshot().DemoMode))

	return nil
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		if lm.healthServer != nil {
			lm.healthServer.Shutdown()
		}

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown has finished.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	// Stop producing before the transports go away.
	lm.simulator.Stop()

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lm.restServer.Shutdown(ctx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.grpcServer.GracefulStop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		err = fmt.Errorf("shutdown timeout exceeded")
	}

	select {
	case e := <-errChan:
		if err == nil {
			err = e
		}
	default:
	}

	if lm.hubCancel != nil {
		lm.hubCancel()
	}
	if lm.publisher != nil {
		lm.publisher.Close()
	}

	return err
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcServer = grpc.NewServer()
	lm.healthServer = health.NewServer()
	lm.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(lm.grpcServer, lm.healthServer)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.String("address", lis.Addr().String()),
			zap.String("services", "grpc.health.v1.Health"))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.collector.Handler())
	return lm.restServer.Start()
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected system state transition", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.setState(StateError)
}

// ResetState replaces the stored state with a freshly seeded one.
func (lm *LifecycleManager) ResetState(ctx context.Context) error {
	now := lm.Now()
	fresh, err := InitialState(lm.config, now)
	if err != nil {
		return err
	}
	return lm.eventLog.Reset(fresh, now)
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	lm.stateMu.RUnlock()

	return interfaces.SystemStatus{
		State:            state.String(),
		StorageBackend:   lm.config.Storage.Backend,
		StorageSlot:      lm.repo.Slot(),
		DemoSimulator:    lm.eventLog.DemoActive(),
		WebSocketClients: lm.wsHub.GetClientCount(),
		NATSConnected:    lm.publisher != nil,
	}
}

func (lm *LifecycleManager) Config() *config.Config { return lm.config }

func (lm *LifecycleManager) EventLog() *eventlog.Log { return lm.eventLog }

func (lm *LifecycleManager) Metrics() *metrics.Engine { return lm.engine }

func (lm *LifecycleManager) MachineController() *machine.Controller { return lm.machineController }

func (lm *LifecycleManager) Now() time.Time { return lm.now() }
