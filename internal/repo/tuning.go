package repo

import (
	"context"

	"emberfall/server/internal/storage"
)

// Tuning holds the live-tunable scheduler numbers. The tick effects re-read
// this record on every application, so an operator can adjust cadence and
// amounts on a running server by editing the config record.
type Tuning struct {
	// HungerIntervalSeconds is how often hunger and thirst tick down.
	HungerIntervalSeconds int
	// HungerAmount is how much each tick removes.
	HungerAmount int
	// MeditateIntervalSeconds is how often meditation grants mana.
	MeditateIntervalSeconds int
	// MeditateRegen is how much mana each grant restores.
	MeditateRegen int
}

// DefaultTuning is used for any field the config record does not override.
var DefaultTuning = Tuning{
	HungerIntervalSeconds:   60,
	HungerAmount:            10,
	MeditateIntervalSeconds: 5,
	MeditateRegen:           15,
}

// TuningRepo reads and writes the server config record.
type TuningRepo struct {
	store *storage.Store
}

func NewTuningRepo(store *storage.Store) *TuningRepo {
	return &TuningRepo{store: store}
}

// Tuning loads the config record, falling back to defaults per field.
func (r *TuningRepo) Tuning(ctx context.Context) (Tuning, error) {
	record, err := r.store.GetRecord(ctx, tuningKey)
	if err != nil {
		return DefaultTuning, err
	}
	return Tuning{
		HungerIntervalSeconds:   atoiOr(record, "hunger_interval", DefaultTuning.HungerIntervalSeconds),
		HungerAmount:            atoiOr(record, "hunger_amount", DefaultTuning.HungerAmount),
		MeditateIntervalSeconds: atoiOr(record, "meditate_interval", DefaultTuning.MeditateIntervalSeconds),
		MeditateRegen:           atoiOr(record, "meditate_regen", DefaultTuning.MeditateRegen),
	}, nil
}

// Save writes the config record.
func (r *TuningRepo) Save(ctx context.Context, t Tuning) error {
	return r.store.SetFields(ctx, tuningKey, map[string]string{
		"hunger_interval":   itoa(t.HungerIntervalSeconds),
		"hunger_amount":     itoa(t.HungerAmount),
		"meditate_interval": itoa(t.MeditateIntervalSeconds),
		"meditate_regen":    itoa(t.MeditateRegen),
	})
}
