package repo

import (
	"context"
	"fmt"

	"emberfall/server/internal/storage"
)

// Item is one static catalog entry: name, graphic and the combat/price
// numbers the inventory-slot packet carries. The catalog itself is seeded at
// bootstrap; this server only reads it.
type Item struct {
	ID     int
	Name   string
	Grh    int
	Type   int
	MaxHit int
	MinHit int
	MaxDef int
	MinDef int
	// Price is the merchant unit price in gold. Zero means the item cannot
	// be bought or sold.
	Price int
}

// ItemRepo reads the static item catalog.
type ItemRepo struct {
	store *storage.Store
}

func NewItemRepo(store *storage.Store) *ItemRepo {
	return &ItemRepo{store: store}
}

// Get loads one catalog entry.
func (r *ItemRepo) Get(ctx context.Context, id int) (Item, error) {
	record, err := r.store.GetRecord(ctx, itemKey(id))
	if err != nil {
		return Item{}, err
	}
	if len(record) == 0 {
		return Item{}, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return Item{
		ID:     id,
		Name:   record["name"],
		Grh:    atoiOr(record, "grh", 0),
		Type:   atoiOr(record, "type", 0),
		MaxHit: atoiOr(record, "maxhit", 0),
		MinHit: atoiOr(record, "minhit", 0),
		MaxDef: atoiOr(record, "maxdef", 0),
		MinDef: atoiOr(record, "mindef", 0),
		Price:  atoiOr(record, "price", 0),
	}, nil
}

// Save writes one catalog entry. Used by seeding and tests.
func (r *ItemRepo) Save(ctx context.Context, item Item) error {
	return r.store.SetFields(ctx, itemKey(item.ID), map[string]string{
		"name":   item.Name,
		"grh":    itoa(item.Grh),
		"type":   itoa(item.Type),
		"maxhit": itoa(item.MaxHit),
		"minhit": itoa(item.MinHit),
		"maxdef": itoa(item.MaxDef),
		"mindef": itoa(item.MinDef),
		"price":  itoa(item.Price),
	})
}
