package tick

import (
	"context"
	"sync"
	"time"

	"emberfall/server/internal/game"
	"emberfall/server/internal/repo"
	"emberfall/server/internal/world"
)

// counterMap is the lazily-created per-player tick counter an effect uses to
// throttle itself below the base cadence.
type counterMap struct {
	mu       sync.Mutex
	counters map[int64]int
}

// bump increments a player's counter and reports whether it reached the
// needed number of base ticks, resetting it when it did.
func (c *counterMap) bump(playerID int64, needed int) bool {
	if needed < 1 {
		needed = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counters == nil {
		c.counters = make(map[int64]int)
	}
	c.counters[playerID]++
	if c.counters[playerID] < needed {
		return false
	}
	delete(c.counters, playerID)
	return true
}

func (c *counterMap) forget(playerID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counters, playerID)
}

func ticksFor(seconds int, base time.Duration) int {
	if seconds <= 0 || base <= 0 {
		return 1
	}
	n := int(time.Duration(seconds) * time.Second / base)
	if n < 1 {
		n = 1
	}
	return n
}

// HungerThirstEffect drains the survival meters. The cadence and the drain
// amount come from the tuning record on every application, so both can be
// adjusted on a live server.
type HungerThirstEffect struct {
	players *repo.PlayerRepo
	tuning  *repo.TuningRepo
	base    time.Duration
	counts  counterMap
}

func NewHungerThirstEffect(players *repo.PlayerRepo, tuning *repo.TuningRepo, base time.Duration) *HungerThirstEffect {
	return &HungerThirstEffect{players: players, tuning: tuning, base: base}
}

func (e *HungerThirstEffect) Name() string { return "hunger-thirst" }

func (e *HungerThirstEffect) Forget(playerID int64) { e.counts.forget(playerID) }

func (e *HungerThirstEffect) Apply(ctx context.Context, playerID int64, out world.Outbound) error {
	cfg, err := e.tuning.Tuning(ctx)
	if err != nil {
		return err
	}
	if !e.counts.bump(playerID, ticksFor(cfg.HungerIntervalSeconds, e.base)) {
		return nil
	}

	stats, err := e.players.Stats(ctx, playerID)
	if err != nil {
		return err
	}
	if stats.Hunger == 0 && stats.Thirst == 0 {
		return nil
	}

	stats.Hunger -= cfg.HungerAmount
	if stats.Hunger < 0 {
		stats.Hunger = 0
	}
	stats.Thirst -= cfg.HungerAmount
	if stats.Thirst < 0 {
		stats.Thirst = 0
	}
	if err := e.players.SetHungerThirst(ctx, playerID, stats.Hunger, stats.Thirst, stats.Hunger == 0, stats.Thirst == 0); err != nil {
		return err
	}

	if out != nil {
		if pkt, err := game.UpdateHungerAndThirst(stats); err == nil {
			out.Send(pkt)
		}
	}
	return nil
}

// MeditationEffect regenerates mana while the player's meditating flag is
// set, clearing the flag once mana is full.
type MeditationEffect struct {
	players *repo.PlayerRepo
	tuning  *repo.TuningRepo
	base    time.Duration
	counts  counterMap
}

func NewMeditationEffect(players *repo.PlayerRepo, tuning *repo.TuningRepo, base time.Duration) *MeditationEffect {
	return &MeditationEffect{players: players, tuning: tuning, base: base}
}

func (e *MeditationEffect) Name() string { return "meditation" }

func (e *MeditationEffect) Forget(playerID int64) { e.counts.forget(playerID) }

func (e *MeditationEffect) Apply(ctx context.Context, playerID int64, out world.Outbound) error {
	meditating, err := e.players.Flag(ctx, playerID, repo.FlagMeditating)
	if err != nil {
		return err
	}
	if !meditating {
		e.counts.forget(playerID)
		return nil
	}

	cfg, err := e.tuning.Tuning(ctx)
	if err != nil {
		return err
	}
	if !e.counts.bump(playerID, ticksFor(cfg.MeditateIntervalSeconds, e.base)) {
		return nil
	}

	stats, err := e.players.Stats(ctx, playerID)
	if err != nil {
		return err
	}
	if stats.Mana >= stats.MaxMana {
		return e.finish(ctx, playerID, out)
	}

	stats.Mana += cfg.MeditateRegen
	if stats.Mana > stats.MaxMana {
		stats.Mana = stats.MaxMana
	}
	if err := e.players.SetMana(ctx, playerID, stats.Mana); err != nil {
		return err
	}

	if out != nil {
		if pkt, err := game.UpdateUserStats(stats); err == nil {
			out.Send(pkt)
		}
	}
	if stats.Mana >= stats.MaxMana {
		return e.finish(ctx, playerID, out)
	}
	return nil
}

// finish clears the meditating flag once the resource is full.
func (e *MeditationEffect) finish(ctx context.Context, playerID int64, out world.Outbound) error {
	if err := e.players.SetFlag(ctx, playerID, repo.FlagMeditating, false); err != nil {
		return err
	}
	if out != nil {
		if pkt, err := game.MeditateToggle(false); err == nil {
			out.Send(pkt)
		}
		if pkt, err := game.ConsoleMsg("You stop meditating: your mind is restored.", 0); err == nil {
			out.Send(pkt)
		}
	}
	return nil
}
