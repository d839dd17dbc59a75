// Package tick applies periodic effects to every connected player on a fixed
// base cadence. Effects are independent policies; a failure in one
// (effect, player) application is isolated from every other application and
// from future ticks.
package tick

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"emberfall/server/internal/world"
)

// Effect is one periodic policy. Apply runs once per base tick per connected
// player; effects that want a slower cadence keep a per-player counter and
// return early until it elapses. Forget discards that counter when the
// player disconnects.
type Effect interface {
	Name() string
	Apply(ctx context.Context, playerID int64, out world.Outbound) error
	Forget(playerID int64)
}

// Scheduler drives the registered effects. One goroutine wakes on the base
// interval, snapshots the connected ids and applies each effect in
// registration order to each id.
type Scheduler struct {
	interval time.Duration
	world    *world.Manager
	log      *zap.SugaredLogger

	mu      sync.Mutex
	effects []Effect

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a stopped scheduler with the given base cadence.
func NewScheduler(interval time.Duration, w *world.Manager, log *zap.SugaredLogger) *Scheduler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Scheduler{
		interval: interval,
		world:    w,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Register appends an effect. Registration order is application order.
func (s *Scheduler) Register(e Effect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effects = append(s.effects, e)
}

// Start launches the tick loop.
func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(context.Background())
		}
	}
}

// Stop cancels the sleep and waits for any in-flight iteration to finish.
// Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// Forget drops every effect's per-player state. The connection layer calls
// this on disconnect.
func (s *Scheduler) Forget(playerID int64) {
	s.mu.Lock()
	effects := make([]Effect, len(s.effects))
	copy(effects, s.effects)
	s.mu.Unlock()

	for _, e := range effects {
		e.Forget(playerID)
	}
}

// tick runs one full pass: every effect, every connected player.
func (s *Scheduler) tick(ctx context.Context) {
	ids := s.world.ConnectedIDs()
	if len(ids) == 0 {
		return
	}

	s.mu.Lock()
	effects := make([]Effect, len(s.effects))
	copy(effects, s.effects)
	s.mu.Unlock()

	for _, e := range effects {
		for _, id := range ids {
			s.applyOne(ctx, e, id)
		}
	}
}

// applyOne isolates a single (effect, player) application: errors are
// logged, panics are recovered, and neither aborts the rest of the pass.
func (s *Scheduler) applyOne(ctx context.Context, e Effect, playerID int64) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("effect panicked", "effect", e.Name(), "player", playerID, "panic", r)
		}
	}()

	out, _ := s.world.ResolveOutbound(playerID)
	if err := e.Apply(ctx, playerID, out); err != nil {
		s.log.Warnw("effect failed", "effect", e.Name(), "player", playerID, "error", err)
	}
}
