package repo

import (
	"context"
	"fmt"
	"strconv"

	"emberfall/server/internal/storage"
)

// NPC is one spawned, mutable instance, distinct from its static template.
// Created on spawn, deleted on death.
type NPC struct {
	ID         int64
	TemplateID int
	Name       string
	Map        int
	X, Y       int
	Heading    int
	HP, MaxHP  int
	Grh        int
	Merchant   bool
	Banker     bool
}

// NPCRepo persists spawned NPC instances and a per-map index of their ids.
type NPCRepo struct {
	store *storage.Store
}

func NewNPCRepo(store *storage.Store) *NPCRepo {
	return &NPCRepo{store: store}
}

// Create allocates an instance id and persists the spawn.
func (r *NPCRepo) Create(ctx context.Context, npc NPC) (NPC, error) {
	id, err := r.store.NextID(ctx, "npc")
	if err != nil {
		return NPC{}, err
	}
	npc.ID = id
	if err := r.Save(ctx, npc); err != nil {
		return NPC{}, err
	}
	if err := r.store.SetField(ctx, npcIndexKey(npc.Map), strconv.FormatInt(id, 10), "1"); err != nil {
		return NPC{}, err
	}
	return npc, nil
}

// Get loads one instance.
func (r *NPCRepo) Get(ctx context.Context, id int64) (NPC, error) {
	record, err := r.store.GetRecord(ctx, npcKey(id))
	if err != nil {
		return NPC{}, err
	}
	if len(record) == 0 {
		return NPC{}, fmt.Errorf("npc %d: %w", id, ErrNotFound)
	}
	return NPC{
		ID:         id,
		TemplateID: atoiOr(record, "template", 0),
		Name:       record["name"],
		Map:        atoiOr(record, "map", 1),
		X:          atoiOr(record, "x", 1),
		Y:          atoiOr(record, "y", 1),
		Heading:    atoiOr(record, "heading", 1),
		HP:         atoiOr(record, "hp", 0),
		MaxHP:      atoiOr(record, "maxhp", 0),
		Grh:        atoiOr(record, "grh", 0),
		Merchant:   boolField(record, "merchant"),
		Banker:     boolField(record, "banker"),
	}, nil
}

// Save writes the full instance record.
func (r *NPCRepo) Save(ctx context.Context, npc NPC) error {
	return r.store.SetFields(ctx, npcKey(npc.ID), map[string]string{
		"template": itoa(npc.TemplateID),
		"name":     npc.Name,
		"map":      itoa(npc.Map),
		"x":        itoa(npc.X),
		"y":        itoa(npc.Y),
		"heading":  itoa(npc.Heading),
		"hp":       itoa(npc.HP),
		"maxhp":    itoa(npc.MaxHP),
		"grh":      itoa(npc.Grh),
		"merchant": encodeBool(npc.Merchant),
		"banker":   encodeBool(npc.Banker),
	})
}

// Delete removes a dead instance and its index entry. Deleting an unknown
// instance is a no-op.
func (r *NPCRepo) Delete(ctx context.Context, id int64, mapID int) error {
	if err := r.store.DeleteRecord(ctx, npcKey(id)); err != nil {
		return err
	}
	return r.store.DeleteField(ctx, npcIndexKey(mapID), strconv.FormatInt(id, 10))
}

// ListByMap loads every instance spawned on one map.
func (r *NPCRepo) ListByMap(ctx context.Context, mapID int) ([]NPC, error) {
	index, err := r.store.GetRecord(ctx, npcIndexKey(mapID))
	if err != nil {
		return nil, err
	}
	npcs := make([]NPC, 0, len(index))
	for raw := range index {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		npc, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		npcs = append(npcs, npc)
	}
	return npcs, nil
}
