package app

import (
	"context"

	"go.uber.org/zap"

	"emberfall/server/internal/items"
	"emberfall/server/internal/repo"
	"emberfall/server/internal/storage"
)

// seed writes the starter world on first boot: item catalog, town NPCs,
// tuning defaults and one test account. Later boots leave the store alone.
func seed(
	ctx context.Context,
	store *storage.Store,
	players *repo.PlayerRepo,
	npcs *repo.NPCRepo,
	merchants *repo.MerchantRepo,
	catalog *repo.ItemRepo,
	tuning *repo.TuningRepo,
	log *zap.SugaredLogger,
) error {
	if _, done, err := store.GetField(ctx, "config", "seeded"); err != nil {
		return err
	} else if done {
		return nil
	}

	starterItems := []repo.Item{
		{ID: 1, Name: "Apple", Grh: 501, Type: 1, Price: 10},
		{ID: 2, Name: "Waterskin", Grh: 502, Type: 2, Price: 15},
		{ID: 3, Name: "Short Sword", Grh: 510, Type: 3, MinHit: 2, MaxHit: 6, Price: 120},
		{ID: 4, Name: "Wooden Shield", Grh: 511, Type: 4, MinDef: 1, MaxDef: 3, Price: 90},
		{ID: 5, Name: "Torch", Grh: 520, Type: 5, Price: 5},
	}
	for _, item := range starterItems {
		if err := catalog.Save(ctx, item); err != nil {
			return err
		}
	}

	trader, err := npcs.Create(ctx, repo.NPC{
		TemplateID: 1, Name: "Trader Morn", Map: 1, X: 48, Y: 50, Heading: 2,
		HP: 100, MaxHP: 100, Grh: 600, Merchant: true,
	})
	if err != nil {
		return err
	}
	stock := items.Slots{}
	stock.Set(1, items.Slot{ItemID: 1, Quantity: 100})
	stock.Set(2, items.Slot{ItemID: 2, Quantity: 100})
	stock.Set(3, items.Slot{ItemID: 3, Quantity: 10})
	stock.Set(4, items.Slot{ItemID: 4, Quantity: 10})
	stock.Set(5, items.Slot{ItemID: 5, Quantity: 50})
	if err := merchants.SaveStock(ctx, trader.ID, stock); err != nil {
		return err
	}

	if _, err := npcs.Create(ctx, repo.NPC{
		TemplateID: 2, Name: "Banker Hale", Map: 1, X: 52, Y: 50, Heading: 4,
		HP: 100, MaxHP: 100, Grh: 601, Banker: true,
	}); err != nil {
		return err
	}

	if err := tuning.Save(ctx, repo.DefaultTuning); err != nil {
		return err
	}

	if _, err := players.Create(ctx, "tester", "tester", repo.Stats{
		HP: 100, MaxHP: 100,
		Mana: 60, MaxMana: 120,
		Stamina: 80, MaxStamina: 80,
		Hunger: 100, MaxHunger: 100,
		Thirst: 100, MaxThirst: 100,
		MinHit: 1, MaxHit: 3,
		Gold: 500, Level: 1, ELU: 300,
	}, repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}); err != nil {
		return err
	}

	if err := store.SetField(ctx, "config", "seeded", "1"); err != nil {
		return err
	}
	log.Infow("seeded starter world")
	return nil
}
