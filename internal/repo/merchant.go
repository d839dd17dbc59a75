package repo

import (
	"context"
	"fmt"

	"emberfall/server/internal/items"
	"emberfall/server/internal/storage"
)

// MerchantRepo persists the stock slot array of trading NPCs, keyed by the
// NPC instance id.
type MerchantRepo struct {
	store *storage.Store
}

func NewMerchantRepo(store *storage.Store) *MerchantRepo {
	return &MerchantRepo{store: store}
}

// Stock loads a merchant's 20-slot stock array.
func (r *MerchantRepo) Stock(ctx context.Context, npcID int64) (items.Slots, error) {
	record, err := r.store.GetRecord(ctx, merchantKey(npcID))
	if err != nil {
		return items.Slots{}, err
	}
	var slots items.Slots
	for i := 1; i <= items.MaxSlots; i++ {
		slots.Set(i, items.Slot{
			ItemID:   atoiOr(record, fmt.Sprintf("%d:item", i), 0),
			Quantity: atoiOr(record, fmt.Sprintf("%d:qty", i), 0),
		})
	}
	return slots, nil
}

// SaveStock writes the whole stock array back.
func (r *MerchantRepo) SaveStock(ctx context.Context, npcID int64, slots items.Slots) error {
	fields := make(map[string]string, items.MaxSlots*2)
	for i := 1; i <= items.MaxSlots; i++ {
		slot, _ := slots.Get(i)
		fields[fmt.Sprintf("%d:item", i)] = itoa(slot.ItemID)
		fields[fmt.Sprintf("%d:qty", i)] = itoa(slot.Quantity)
	}
	return r.store.SetFields(ctx, merchantKey(npcID), fields)
}
