package repo

import (
	"context"
	"fmt"
	"strconv"

	"emberfall/server/internal/items"
	"emberfall/server/internal/storage"
)

// Stats is the persisted resource panel of one player. Six current/max pairs
// plus gold, level and experience, exactly what the stats-update packet
// carries.
type Stats struct {
	HP, MaxHP           int
	Mana, MaxMana       int
	Stamina, MaxStamina int
	Hunger, MaxHunger   int
	Thirst, MaxThirst   int
	MinHit, MaxHit      int
	Gold                int
	Level               int
	ELU                 int
	Exp                 int
}

// Position is where a player stands. 1 ≤ X,Y ≤ map dimensions.
type Position struct {
	Map     int
	X, Y    int
	Heading int
}

// Player flag names. Flags are single decimal-text booleans on the player
// record.
const (
	FlagMeditating = "meditating"
	FlagHungry     = "hungry"
	FlagThirsty    = "thirsty"
)

// PlayerRepo reads and writes player records.
type PlayerRepo struct {
	store *storage.Store
}

func NewPlayerRepo(store *storage.Store) *PlayerRepo {
	return &PlayerRepo{store: store}
}

// Create allocates a new player id and persists the initial record. Used by
// seeding and tests; account creation proper lives outside this server.
func (r *PlayerRepo) Create(ctx context.Context, username, password string, stats Stats, pos Position) (int64, error) {
	id, err := r.store.NextID(ctx, "player")
	if err != nil {
		return 0, err
	}
	fields := encodeStats(stats)
	for k, v := range encodePosition(pos) {
		fields[k] = v
	}
	fields["username"] = username
	fields["password"] = password
	if err := r.store.SetFields(ctx, playerKey(id), fields); err != nil {
		return 0, err
	}
	if err := r.store.SetField(ctx, usernameKey(username), "id", strconv.FormatInt(id, 10)); err != nil {
		return 0, err
	}
	return id, nil
}

// VerifyLogin resolves a username and checks its stored secret. It returns
// ErrNotFound for an unknown name and a plain mismatch error otherwise, so
// the handler can keep both replies vague.
func (r *PlayerRepo) VerifyLogin(ctx context.Context, username, password string) (int64, error) {
	raw, ok, err := r.store.GetField(ctx, usernameKey(username), "id")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("user %q has corrupt id %q", username, raw)
	}
	stored, _, err := r.store.GetField(ctx, playerKey(id), "password")
	if err != nil {
		return 0, err
	}
	if stored != password {
		return 0, fmt.Errorf("bad credentials for %q", username)
	}
	return id, nil
}

// Stats loads the full resource panel.
func (r *PlayerRepo) Stats(ctx context.Context, id int64) (Stats, error) {
	record, err := r.store.GetRecord(ctx, playerKey(id))
	if err != nil {
		return Stats{}, err
	}
	if len(record) == 0 {
		return Stats{}, fmt.Errorf("player %d: %w", id, ErrNotFound)
	}
	return decodeStats(record), nil
}

// SaveStats writes the full resource panel back.
func (r *PlayerRepo) SaveStats(ctx context.Context, id int64, stats Stats) error {
	return r.store.SetFields(ctx, playerKey(id), encodeStats(stats))
}

// SetGold writes just the gold field.
func (r *PlayerRepo) SetGold(ctx context.Context, id int64, gold int) error {
	return r.store.SetField(ctx, playerKey(id), "gold", itoa(gold))
}

// SetMana writes just the mana field, leaving concurrent gold writes alone.
func (r *PlayerRepo) SetMana(ctx context.Context, id int64, mana int) error {
	return r.store.SetField(ctx, playerKey(id), "mana", itoa(mana))
}

// SetHungerThirst writes the survival meters and their depletion flags in one
// batch.
func (r *PlayerRepo) SetHungerThirst(ctx context.Context, id int64, hunger, thirst int, hungry, thirsty bool) error {
	return r.store.SetFields(ctx, playerKey(id), map[string]string{
		"hunger":    itoa(hunger),
		"thirst":    itoa(thirst),
		FlagHungry:  encodeBool(hungry),
		FlagThirsty: encodeBool(thirsty),
	})
}

// Position loads where the player last stood.
func (r *PlayerRepo) Position(ctx context.Context, id int64) (Position, error) {
	record, err := r.store.GetRecord(ctx, playerKey(id))
	if err != nil {
		return Position{}, err
	}
	if len(record) == 0 {
		return Position{}, fmt.Errorf("player %d: %w", id, ErrNotFound)
	}
	return decodePosition(record), nil
}

// SavePosition writes the position fields.
func (r *PlayerRepo) SavePosition(ctx context.Context, id int64, pos Position) error {
	return r.store.SetFields(ctx, playerKey(id), encodePosition(pos))
}

// Username resolves the display name of a player id.
func (r *PlayerRepo) Username(ctx context.Context, id int64) (string, error) {
	name, ok, err := r.store.GetField(ctx, playerKey(id), "username")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("player %d: %w", id, ErrNotFound)
	}
	return name, nil
}

// Flag reads one boolean flag.
func (r *PlayerRepo) Flag(ctx context.Context, id int64, name string) (bool, error) {
	raw, _, err := r.store.GetField(ctx, playerKey(id), name)
	if err != nil {
		return false, err
	}
	return raw == "1", nil
}

// SetFlag writes one boolean flag.
func (r *PlayerRepo) SetFlag(ctx context.Context, id int64, name string, value bool) error {
	return r.store.SetField(ctx, playerKey(id), name, encodeBool(value))
}

// Inventory loads the 20-slot inventory array.
func (r *PlayerRepo) Inventory(ctx context.Context, id int64) (items.Slots, error) {
	return r.slots(ctx, id, "inv")
}

// SaveInventory writes the whole inventory array.
func (r *PlayerRepo) SaveInventory(ctx context.Context, id int64, slots items.Slots) error {
	return r.saveSlots(ctx, id, "inv", slots)
}

// Bank loads the 20-slot bank vault.
func (r *PlayerRepo) Bank(ctx context.Context, id int64) (items.Slots, error) {
	return r.slots(ctx, id, "bank")
}

// SaveBank writes the whole bank vault.
func (r *PlayerRepo) SaveBank(ctx context.Context, id int64, slots items.Slots) error {
	return r.saveSlots(ctx, id, "bank", slots)
}

func (r *PlayerRepo) slots(ctx context.Context, id int64, prefix string) (items.Slots, error) {
	record, err := r.store.GetRecord(ctx, playerKey(id))
	if err != nil {
		return items.Slots{}, err
	}
	var slots items.Slots
	for i := 1; i <= items.MaxSlots; i++ {
		itemID := atoiOr(record, fmt.Sprintf("%s:%d:item", prefix, i), 0)
		qty := atoiOr(record, fmt.Sprintf("%s:%d:qty", prefix, i), 0)
		slots.Set(i, items.Slot{ItemID: itemID, Quantity: qty})
	}
	return slots, nil
}

func (r *PlayerRepo) saveSlots(ctx context.Context, id int64, prefix string, slots items.Slots) error {
	fields := make(map[string]string, items.MaxSlots*2)
	for i := 1; i <= items.MaxSlots; i++ {
		slot, _ := slots.Get(i)
		fields[fmt.Sprintf("%s:%d:item", prefix, i)] = itoa(slot.ItemID)
		fields[fmt.Sprintf("%s:%d:qty", prefix, i)] = itoa(slot.Quantity)
	}
	return r.store.SetFields(ctx, playerKey(id), fields)
}

func encodeStats(s Stats) map[string]string {
	return map[string]string{
		"hp": itoa(s.HP), "maxhp": itoa(s.MaxHP),
		"mana": itoa(s.Mana), "maxmana": itoa(s.MaxMana),
		"stamina": itoa(s.Stamina), "maxstamina": itoa(s.MaxStamina),
		"hunger": itoa(s.Hunger), "maxhunger": itoa(s.MaxHunger),
		"thirst": itoa(s.Thirst), "maxthirst": itoa(s.MaxThirst),
		"minhit": itoa(s.MinHit), "maxhit": itoa(s.MaxHit),
		"gold":  itoa(s.Gold),
		"level": itoa(s.Level),
		"elu":   itoa(s.ELU),
		"exp":   itoa(s.Exp),
	}
}

func decodeStats(record map[string]string) Stats {
	return Stats{
		HP: atoiOr(record, "hp", 0), MaxHP: atoiOr(record, "maxhp", 0),
		Mana: atoiOr(record, "mana", 0), MaxMana: atoiOr(record, "maxmana", 0),
		Stamina: atoiOr(record, "stamina", 0), MaxStamina: atoiOr(record, "maxstamina", 0),
		Hunger: atoiOr(record, "hunger", 0), MaxHunger: atoiOr(record, "maxhunger", 0),
		Thirst: atoiOr(record, "thirst", 0), MaxThirst: atoiOr(record, "maxthirst", 0),
		MinHit: atoiOr(record, "minhit", 0), MaxHit: atoiOr(record, "maxhit", 0),
		Gold:  atoiOr(record, "gold", 0),
		Level: atoiOr(record, "level", 1),
		ELU:   atoiOr(record, "elu", 0),
		Exp:   atoiOr(record, "exp", 0),
	}
}

func encodePosition(p Position) map[string]string {
	return map[string]string{
		"map": itoa(p.Map), "x": itoa(p.X), "y": itoa(p.Y), "heading": itoa(p.Heading),
	}
}

func decodePosition(record map[string]string) Position {
	return Position{
		Map:     atoiOr(record, "map", 1),
		X:       atoiOr(record, "x", 1),
		Y:       atoiOr(record, "y", 1),
		Heading: atoiOr(record, "heading", 1),
	}
}
