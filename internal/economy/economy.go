// Package economy implements the multi-step trade and banking mutations.
// Each operation is a debit→credit chain with compensation: when a later
// step fails, the earlier steps are reversed before the failure is reported,
// so the whole operation looks all-or-nothing from outside. Every rejection
// maps to one short, cause-specific reason.
package economy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"emberfall/server/internal/items"
	"emberfall/server/internal/repo"
	"emberfall/server/internal/world"
)

// User-facing rejection reasons. The handler layer sends Error() verbatim.
var (
	ErrInvalidQuantity   = errors.New("quantity must be a positive number")
	ErrInventoryFull     = errors.New("inventory full")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOutOfStock        = errors.New("merchant out of stock")
	ErrNotForSale        = errors.New("that item is not for sale")
	ErrNotEnoughItems    = errors.New("you do not have that many")
	ErrBankFull          = errors.New("bank full")
	ErrBankSlotEmpty     = errors.New("nothing in that vault slot")
)

// Service runs economy transactions against the repositories. The per-player
// stripe lock serializes concurrent mutations on one player; store I/O
// happens only under that stripe, never under the world index lock.
type Service struct {
	players   *repo.PlayerRepo
	merchants *repo.MerchantRepo
	catalog   *repo.ItemRepo
	locks     *world.LockTable
	log       *zap.SugaredLogger
}

func NewService(players *repo.PlayerRepo, merchants *repo.MerchantRepo, catalog *repo.ItemRepo, locks *world.LockTable, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{players: players, merchants: merchants, catalog: catalog, locks: locks, log: log}
}

// Result reports what a successful transaction touched, so the handler can
// push the matching slot and gold updates to the client.
type Result struct {
	Gold             int
	InventoryChanges []items.Change
	BankChanges      []items.Change
	StockChanges     []items.Change
}

// Buy purchases qty from a merchant stock slot.
//
// Chain: verify stock and price → verify funds → debit gold → credit
// inventory → debit stock. An inventory-credit failure refunds the gold; a
// stock-debit failure after the credit refunds the gold and reverses the
// granted slots.
func (s *Service) Buy(ctx context.Context, playerID, npcID int64, slot, qty int) (Result, error) {
	if qty <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	s.locks.Lock(playerID)
	defer s.locks.Unlock(playerID)

	stock, err := s.merchants.Stock(ctx, npcID)
	if err != nil {
		return Result{}, fmt.Errorf("load merchant stock: %w", err)
	}
	offer, ok := stock.Get(slot)
	if !ok || offer.Empty() || offer.Quantity < qty {
		return Result{}, ErrOutOfStock
	}
	item, err := s.catalog.Get(ctx, offer.ItemID)
	if err != nil {
		return Result{}, fmt.Errorf("load item %d: %w", offer.ItemID, err)
	}
	if item.Price <= 0 {
		return Result{}, ErrNotForSale
	}
	total := item.Price * qty

	stats, err := s.players.Stats(ctx, playerID)
	if err != nil {
		return Result{}, fmt.Errorf("load player stats: %w", err)
	}
	if stats.Gold < total {
		return Result{}, ErrInsufficientFunds
	}

	// Debit gold first; every failure below must refund it.
	previousGold := stats.Gold
	if err := s.players.SetGold(ctx, playerID, previousGold-total); err != nil {
		return Result{}, fmt.Errorf("debit gold: %w", err)
	}

	inv, err := s.players.Inventory(ctx, playerID)
	if err != nil {
		s.refundGold(ctx, playerID, previousGold)
		return Result{}, fmt.Errorf("load inventory: %w", err)
	}
	invChanges, err := inv.Add(offer.ItemID, qty)
	if err != nil {
		s.refundGold(ctx, playerID, previousGold)
		return Result{}, ErrInventoryFull
	}
	if err := s.players.SaveInventory(ctx, playerID, inv); err != nil {
		s.refundGold(ctx, playerID, previousGold)
		return Result{}, fmt.Errorf("save inventory: %w", err)
	}

	stockChange, err := stock.Remove(slot, qty)
	if err == nil {
		err = s.merchants.SaveStock(ctx, npcID, stock)
	}
	if err != nil {
		// The buyer already holds the goods: reverse the grant too.
		inv.Revert(invChanges)
		if saveErr := s.players.SaveInventory(ctx, playerID, inv); saveErr != nil {
			s.log.Errorw("buy compensation failed to reverse inventory grant",
				"player", playerID, "error", saveErr)
		}
		s.refundGold(ctx, playerID, previousGold)
		if errors.Is(err, items.ErrNotEnough) || errors.Is(err, items.ErrEmptySlot) {
			return Result{}, ErrOutOfStock
		}
		return Result{}, fmt.Errorf("debit merchant stock: %w", err)
	}

	return Result{
		Gold:             previousGold - total,
		InventoryChanges: invChanges,
		StockChanges:     []items.Change{stockChange},
	}, nil
}

// Sell sells qty from an inventory slot to a merchant for half the unit
// price. A merchant-stock credit failure is logged but not rolled back: the
// seller keeps the payout even when the merchant has no room. That asymmetry
// versus Buy is intentional — stock capacity is a soft limit.
func (s *Service) Sell(ctx context.Context, playerID, npcID int64, slot, qty int) (Result, error) {
	if qty <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	s.locks.Lock(playerID)
	defer s.locks.Unlock(playerID)

	inv, err := s.players.Inventory(ctx, playerID)
	if err != nil {
		return Result{}, fmt.Errorf("load inventory: %w", err)
	}
	held, ok := inv.Get(slot)
	if !ok || held.Empty() || held.Quantity < qty {
		return Result{}, ErrNotEnoughItems
	}
	item, err := s.catalog.Get(ctx, held.ItemID)
	if err != nil {
		return Result{}, fmt.Errorf("load item %d: %w", held.ItemID, err)
	}
	if item.Price <= 0 {
		return Result{}, ErrNotForSale
	}
	payout := (item.Price / 2) * qty

	invChange, err := inv.Remove(slot, qty)
	if err != nil {
		return Result{}, ErrNotEnoughItems
	}
	if err := s.players.SaveInventory(ctx, playerID, inv); err != nil {
		return Result{}, fmt.Errorf("save inventory: %w", err)
	}

	stats, err := s.players.Stats(ctx, playerID)
	if err == nil {
		err = s.players.SetGold(ctx, playerID, stats.Gold+payout)
	}
	if err != nil {
		inv.Revert([]items.Change{invChange})
		if saveErr := s.players.SaveInventory(ctx, playerID, inv); saveErr != nil {
			s.log.Errorw("sell compensation failed to restore inventory",
				"player", playerID, "error", saveErr)
		}
		return Result{}, fmt.Errorf("credit payout: %w", err)
	}

	result := Result{
		Gold:             stats.Gold + payout,
		InventoryChanges: []items.Change{invChange},
	}

	stock, err := s.merchants.Stock(ctx, npcID)
	if err == nil {
		var stockChanges []items.Change
		stockChanges, err = stock.Add(held.ItemID, qty)
		if err == nil {
			if err = s.merchants.SaveStock(ctx, npcID, stock); err == nil {
				result.StockChanges = stockChanges
			}
		}
	}
	if err != nil {
		s.log.Infow("merchant could not absorb sold items; payout stands",
			"player", playerID, "npc", npcID, "item", held.ItemID, "qty", qty, "error", err)
	}

	return result, nil
}

// Deposit moves qty from an inventory slot into the bank vault. A vault
// credit failure rolls back the inventory debit.
func (s *Service) Deposit(ctx context.Context, playerID int64, slot, qty int) (Result, error) {
	if qty <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	s.locks.Lock(playerID)
	defer s.locks.Unlock(playerID)

	inv, err := s.players.Inventory(ctx, playerID)
	if err != nil {
		return Result{}, fmt.Errorf("load inventory: %w", err)
	}
	held, ok := inv.Get(slot)
	if !ok || held.Empty() || held.Quantity < qty {
		return Result{}, ErrNotEnoughItems
	}

	invChange, err := inv.Remove(slot, qty)
	if err != nil {
		return Result{}, ErrNotEnoughItems
	}
	if err := s.players.SaveInventory(ctx, playerID, inv); err != nil {
		return Result{}, fmt.Errorf("save inventory: %w", err)
	}

	bank, err := s.players.Bank(ctx, playerID)
	var bankChanges []items.Change
	if err == nil {
		bankChanges, err = bank.Add(held.ItemID, qty)
		if err == nil {
			err = s.players.SaveBank(ctx, playerID, bank)
		}
	}
	if err != nil {
		inv.Revert([]items.Change{invChange})
		if saveErr := s.players.SaveInventory(ctx, playerID, inv); saveErr != nil {
			s.log.Errorw("deposit compensation failed to restore inventory",
				"player", playerID, "error", saveErr)
		}
		if errors.Is(err, items.ErrNoSpace) {
			return Result{}, ErrBankFull
		}
		return Result{}, fmt.Errorf("credit bank: %w", err)
	}

	return Result{
		InventoryChanges: []items.Change{invChange},
		BankChanges:      bankChanges,
	}, nil
}

// Extract moves qty from a bank vault slot back into the inventory. An
// inventory credit failure rolls back the vault debit.
func (s *Service) Extract(ctx context.Context, playerID int64, slot, qty int) (Result, error) {
	if qty <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	s.locks.Lock(playerID)
	defer s.locks.Unlock(playerID)

	bank, err := s.players.Bank(ctx, playerID)
	if err != nil {
		return Result{}, fmt.Errorf("load bank: %w", err)
	}
	held, ok := bank.Get(slot)
	if !ok || held.Empty() || held.Quantity < qty {
		return Result{}, ErrBankSlotEmpty
	}

	bankChange, err := bank.Remove(slot, qty)
	if err != nil {
		return Result{}, ErrBankSlotEmpty
	}
	if err := s.players.SaveBank(ctx, playerID, bank); err != nil {
		return Result{}, fmt.Errorf("save bank: %w", err)
	}

	inv, err := s.players.Inventory(ctx, playerID)
	var invChanges []items.Change
	if err == nil {
		invChanges, err = inv.Add(held.ItemID, qty)
		if err == nil {
			err = s.players.SaveInventory(ctx, playerID, inv)
		}
	}
	if err != nil {
		bank.Revert([]items.Change{bankChange})
		if saveErr := s.players.SaveBank(ctx, playerID, bank); saveErr != nil {
			s.log.Errorw("extract compensation failed to restore bank",
				"player", playerID, "error", saveErr)
		}
		if errors.Is(err, items.ErrNoSpace) {
			return Result{}, ErrInventoryFull
		}
		return Result{}, fmt.Errorf("credit inventory: %w", err)
	}

	return Result{
		InventoryChanges: invChanges,
		BankChanges:      []items.Change{bankChange},
	}, nil
}

func (s *Service) refundGold(ctx context.Context, playerID int64, gold int) {
	if err := s.players.SetGold(ctx, playerID, gold); err != nil {
		s.log.Errorw("failed to refund gold during compensation",
			"player", playerID, "gold", gold, "error", err)
	}
}
