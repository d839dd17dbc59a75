package tick

import (
	"context"
	"sync"
	"testing"
	"time"

	"emberfall/server/internal/repo"
	"emberfall/server/internal/storage"
)

type captureOutbound struct {
	mu   sync.Mutex
	pkts [][]byte
}

func (c *captureOutbound) Send(pkt []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pkts = append(c.pkts, pkt)
}

func (c *captureOutbound) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pkts)
}

func newEffectFixture(t *testing.T, stats repo.Stats) (*repo.PlayerRepo, *repo.TuningRepo, int64) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	players := repo.NewPlayerRepo(store)
	tuning := repo.NewTuningRepo(store)
	id, err := players.Create(context.Background(), "subject", "pw", stats, repo.Position{Map: 1, X: 1, Y: 1, Heading: 1})
	if err != nil {
		t.Fatalf("failed to seed player: %v", err)
	}
	return players, tuning, id
}

func TestHungerThirstDecrementsOnCadence(t *testing.T) {
	ctx := context.Background()
	players, tuning, id := newEffectFixture(t, repo.Stats{Hunger: 100, MaxHunger: 100, Thirst: 50, MaxThirst: 100})
	if err := tuning.Save(ctx, repo.Tuning{HungerIntervalSeconds: 2, HungerAmount: 10, MeditateIntervalSeconds: 1, MeditateRegen: 1}); err != nil {
		t.Fatalf("failed to save tuning: %v", err)
	}

	eff := NewHungerThirstEffect(players, tuning, time.Second)
	out := &captureOutbound{}

	// Interval is 2 base ticks: the first application only counts.
	if err := eff.Apply(ctx, id, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, _ := players.Stats(ctx, id)
	if stats.Hunger != 100 {
		t.Fatalf("expected no drain before cadence, hunger is %d", stats.Hunger)
	}

	if err := eff.Apply(ctx, id, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, _ = players.Stats(ctx, id)
	if stats.Hunger != 90 || stats.Thirst != 40 {
		t.Fatalf("expected drain to (90,40), got (%d,%d)", stats.Hunger, stats.Thirst)
	}
	if out.count() != 1 {
		t.Fatalf("expected one meter update packet, got %d", out.count())
	}
}

func TestHungerThirstLiveTuning(t *testing.T) {
	ctx := context.Background()
	players, tuning, id := newEffectFixture(t, repo.Stats{Hunger: 100, MaxHunger: 100, Thirst: 100, MaxThirst: 100})
	if err := tuning.Save(ctx, repo.Tuning{HungerIntervalSeconds: 1, HungerAmount: 10, MeditateIntervalSeconds: 1, MeditateRegen: 1}); err != nil {
		t.Fatalf("failed to save tuning: %v", err)
	}

	eff := NewHungerThirstEffect(players, tuning, time.Second)
	if err := eff.Apply(ctx, id, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, _ := players.Stats(ctx, id)
	if stats.Hunger != 90 {
		t.Fatalf("expected hunger 90, got %d", stats.Hunger)
	}

	// Retune on the fly; the next application must honor the new amount.
	if err := tuning.Save(ctx, repo.Tuning{HungerIntervalSeconds: 1, HungerAmount: 40, MeditateIntervalSeconds: 1, MeditateRegen: 1}); err != nil {
		t.Fatalf("failed to retune: %v", err)
	}
	if err := eff.Apply(ctx, id, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, _ = players.Stats(ctx, id)
	if stats.Hunger != 50 {
		t.Fatalf("expected hunger 50 after retune, got %d", stats.Hunger)
	}
}

func TestHungerFlagFlipsAtZero(t *testing.T) {
	ctx := context.Background()
	players, tuning, id := newEffectFixture(t, repo.Stats{Hunger: 5, MaxHunger: 100, Thirst: 100, MaxThirst: 100})
	if err := tuning.Save(ctx, repo.Tuning{HungerIntervalSeconds: 1, HungerAmount: 10, MeditateIntervalSeconds: 1, MeditateRegen: 1}); err != nil {
		t.Fatalf("failed to save tuning: %v", err)
	}

	eff := NewHungerThirstEffect(players, tuning, time.Second)
	if err := eff.Apply(ctx, id, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats, _ := players.Stats(ctx, id)
	if stats.Hunger != 0 {
		t.Fatalf("expected hunger floored at 0, got %d", stats.Hunger)
	}
	if hungry, _ := players.Flag(ctx, id, repo.FlagHungry); !hungry {
		t.Fatal("expected hungry flag set at zero")
	}
	if thirsty, _ := players.Flag(ctx, id, repo.FlagThirsty); thirsty {
		t.Fatal("expected thirsty flag still clear")
	}
}

func TestMeditationRegensOnlyWhileFlagSet(t *testing.T) {
	ctx := context.Background()
	players, tuning, id := newEffectFixture(t, repo.Stats{Mana: 10, MaxMana: 100})
	if err := tuning.Save(ctx, repo.Tuning{HungerIntervalSeconds: 1, HungerAmount: 1, MeditateIntervalSeconds: 1, MeditateRegen: 15}); err != nil {
		t.Fatalf("failed to save tuning: %v", err)
	}

	eff := NewMeditationEffect(players, tuning, time.Second)
	if err := eff.Apply(ctx, id, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, _ := players.Stats(ctx, id)
	if stats.Mana != 10 {
		t.Fatalf("expected no regen while not meditating, mana is %d", stats.Mana)
	}

	if err := players.SetFlag(ctx, id, repo.FlagMeditating, true); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}
	if err := eff.Apply(ctx, id, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, _ = players.Stats(ctx, id)
	if stats.Mana != 25 {
		t.Fatalf("expected mana 25, got %d", stats.Mana)
	}
}

func TestMeditationClampsAndClearsFlag(t *testing.T) {
	ctx := context.Background()
	players, tuning, id := newEffectFixture(t, repo.Stats{Mana: 95, MaxMana: 100})
	if err := tuning.Save(ctx, repo.Tuning{HungerIntervalSeconds: 1, HungerAmount: 1, MeditateIntervalSeconds: 1, MeditateRegen: 15}); err != nil {
		t.Fatalf("failed to save tuning: %v", err)
	}
	if err := players.SetFlag(ctx, id, repo.FlagMeditating, true); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	eff := NewMeditationEffect(players, tuning, time.Second)
	out := &captureOutbound{}
	if err := eff.Apply(ctx, id, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats, _ := players.Stats(ctx, id)
	if stats.Mana != 100 {
		t.Fatalf("expected mana clamped at 100, got %d", stats.Mana)
	}
	if meditating, _ := players.Flag(ctx, id, repo.FlagMeditating); meditating {
		t.Fatal("expected meditating flag cleared once full")
	}
	// Stats update, toggle-off and console message.
	if out.count() != 3 {
		t.Fatalf("expected 3 packets, got %d", out.count())
	}
}
