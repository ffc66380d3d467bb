package demo

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/eventlog"
	"go.uber.org/zap"
)

// Timer is the subset of *time.Timer the simulator needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

// NewRealTimer wraps time.NewTimer.
func NewRealTimer(d time.Duration) Timer {
	return realTimer{t: time.NewTimer(d)}
}

type Options struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	// MaxCount bounds the synthesized count; counts are uniform in [1, MaxCount].
	MaxCount int
	NewTimer func(time.Duration) Timer
	Now      func() time.Time
	Rand     *rand.Rand
}

func (o Options) withDefaults() Options {
	if o.MinDelay <= 0 {
		o.MinDelay = 1500 * time.Millisecond
	}
	if o.MaxDelay <= o.MinDelay {
		o.MaxDelay = o.MinDelay + 2500*time.Millisecond
	}
	if o.MaxCount <= 0 {
		o.MaxCount = 3
	}
	if o.NewTimer == nil {
		o.NewTimer = NewRealTimer
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return o
}

// Simulator synthesizes production while demo mode is on and the machine is
// running. It owns at most one pending timer; any change that makes the log
// ineligible cancels it.
type Simulator struct {
	log    *eventlog.Log
	logger *zap.Logger
	opts   Options

	changes  chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewSimulator subscribes to log changes; call Start to begin scheduling.
func NewSimulator(log *eventlog.Log, logger *zap.Logger, opts Options) *Simulator {
	s := &Simulator{
		log:     log,
		logger:  logger,
		opts:    opts.withDefaults(),
		changes: make(chan struct{}, 1),
	}
	log.Subscribe(s.onChange)
	return s
}

func (s *Simulator) onChange(eventlog.Change) {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.wg.Add(1)

	go s.loop(s.stopChan)

	s.logger.Info("Demo simulator started",
		zap.Duration("min_delay", s.opts.MinDelay),
		zap.Duration("max_delay", s.opts.MaxDelay))
}

// Stop cancels the pending tick and waits for the loop to exit.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Demo simulator stopped")
}

func (s *Simulator) loop(stop <-chan struct{}) {
	defer s.wg.Done()

	var timer Timer
	var fire <-chan time.Time

	cancel := func() {
		if timer != nil {
			timer.Stop()
			timer, fire = nil, nil
		}
	}
	schedule := func() {
		timer = s.opts.NewTimer(s.nextDelay())
		fire = timer.C()
	}

	if s.log.DemoActive() {
		schedule()
	}

	for {
		select {
		case <-stop:
			cancel()
			return

		case <-s.changes:
			active := s.log.DemoActive()
			switch {
			case !active && timer != nil:
				cancel()
				s.logger.Debug("Demo tick cancelled")
			case active && timer == nil:
				schedule()
			}

		case <-fire:
			timer, fire = nil, nil
			s.tick()
			if s.log.DemoActive() {
				schedule()
			}
		}
	}
}

func (s *Simulator) tick() {
	count := 1 + s.opts.Rand.IntN(s.opts.MaxCount)
	ev, recorded, err := s.log.RecordDemoProduction(count, s.opts.Now())
	if err != nil {
		s.logger.Error("Demo production failed", zap.Error(err))
		return
	}
	if recorded {
		s.logger.Debug("Demo production recorded",
			zap.String("event_id", ev.ID),
			zap.Int("count", ev.Count))
	}
}

func (s *Simulator) nextDelay() time.Duration {
	span := int64(s.opts.MaxDelay - s.opts.MinDelay)
	return s.opts.MinDelay + time.Duration(s.opts.Rand.Int64N(span))
}
