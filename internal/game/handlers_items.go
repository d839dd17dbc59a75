package game

import (
	"context"

	"emberfall/server/internal/items"
	"emberfall/server/internal/net"
	"emberfall/server/internal/protocol"
	"emberfall/server/internal/repo"
	"emberfall/server/internal/world"
)

func (h *Handlers) handlePickUp(ctx context.Context, _ []byte, sess *net.Session, conn net.Client) {
	id, _ := sess.UserID()
	mapID, info, ok := h.world.FindPlayer(id)
	if !ok {
		return
	}
	ground, ok := h.world.PickUpItem(mapID, info.X, info.Y)
	if !ok {
		h.console(conn, "There is nothing here.", fontInfo)
		return
	}

	h.locks.Lock(id)
	defer h.locks.Unlock(id)

	inv, err := h.players.Inventory(ctx, id)
	if err != nil {
		h.log.Errorw("load inventory", "player", id, "error", err)
		h.redrop(mapID, info.X, info.Y, ground)
		return
	}
	changes, err := inv.Add(ground.ItemID, ground.Quantity)
	if err != nil {
		// put it back where it was
		h.redrop(mapID, info.X, info.Y, ground)
		h.console(conn, "Your inventory is full.", fontWarning)
		return
	}
	if err := h.players.SaveInventory(ctx, id, inv); err != nil {
		h.log.Errorw("save inventory", "player", id, "error", err)
		h.redrop(mapID, info.X, info.Y, ground)
		return
	}
	h.sendInventoryChanges(ctx, conn, changes)

	h.broadcast(mapID, h.build(ObjectDelete(info.X, info.Y)))
	if remaining := h.world.ItemsAt(mapID, info.X, info.Y); len(remaining) > 0 {
		top := remaining[len(remaining)-1]
		h.broadcast(mapID, h.build(ObjectCreate(info.X, info.Y, top.Grh)))
	}
}

func (h *Handlers) handleDrop(ctx context.Context, pkt []byte, sess *net.Session, conn net.Client) {
	v := protocol.NewValidator(protocol.NewReader(pkt))
	slot := v.Slot(items.MaxSlots)
	qty := v.Quantity(maxTradeQuantity)
	if !v.Ok() {
		h.log.Warnw("bad drop packet", "error", v.Err(), "remote", conn.RemoteAddr())
		return
	}
	id, _ := sess.UserID()
	mapID, info, ok := h.world.FindPlayer(id)
	if !ok {
		return
	}

	h.locks.Lock(id)
	defer h.locks.Unlock(id)

	inv, err := h.players.Inventory(ctx, id)
	if err != nil {
		h.log.Errorw("load inventory", "player", id, "error", err)
		return
	}
	held, _ := inv.Get(slot)
	if held.Empty() {
		h.console(conn, "You have nothing in that slot.", fontWarning)
		return
	}
	if qty > held.Quantity {
		h.console(conn, "You do not have that many.", fontWarning)
		return
	}
	item, err := h.catalog.Get(ctx, held.ItemID)
	if err != nil {
		h.log.Errorw("load item", "item", held.ItemID, "error", err)
		return
	}

	// place on the floor before persisting the debit, so a full tile costs
	// the player nothing
	dropped := h.world.DropItem(mapID, info.X, info.Y, items.GroundItem{
		ItemID:   held.ItemID,
		Quantity: qty,
		Grh:      item.Grh,
	})
	if !dropped {
		h.console(conn, "There is no room on the ground.", fontWarning)
		return
	}
	change, err := inv.Remove(slot, qty)
	if err != nil {
		h.log.Errorw("inventory debit after drop", "player", id, "error", err)
		h.reclaim(mapID, info.X, info.Y)
		return
	}
	if err := h.players.SaveInventory(ctx, id, inv); err != nil {
		h.log.Errorw("save inventory", "player", id, "error", err)
		h.reclaim(mapID, info.X, info.Y)
		return
	}
	h.sendInventoryChanges(ctx, conn, []items.Change{change})
	h.broadcast(mapID, h.build(ObjectCreate(info.X, info.Y, item.Grh)))
}

// redrop returns a stack to the tile it was just picked up from. The tile
// can have filled to cap in between; a destroyed stack is worth a log line.
func (h *Handlers) redrop(mapID, x, y int, ground items.GroundItem) {
	if !h.world.DropItem(mapID, x, y, ground) {
		h.log.Errorw("stack lost on full tile during pickup rollback",
			"map", mapID, "x", x, "y", y, "item", ground.ItemID, "quantity", ground.Quantity)
	}
}

// reclaim takes back the stack a refused drop already placed on the floor,
// keeping the inventory the only copy.
func (h *Handlers) reclaim(mapID, x, y int) {
	if _, ok := h.world.PickUpItem(mapID, x, y); !ok {
		h.log.Errorw("drop rollback found empty tile", "map", mapID, "x", x, "y", y)
	}
}

// sendInventoryChanges pushes one slot-update packet per touched slot.
func (h *Handlers) sendInventoryChanges(ctx context.Context, out world.Outbound, changes []items.Change) {
	for _, ch := range changes {
		var item repo.Item
		if !ch.Current.Empty() {
			loaded, err := h.catalog.Get(ctx, ch.Current.ItemID)
			if err != nil {
				h.log.Warnw("slot references unknown item", "item", ch.Current.ItemID)
				continue
			}
			item = loaded
		}
		h.send(out, h.build(ChangeInventorySlot(ch.Slot, ch.Current, item, false)))
	}
}

func (h *Handlers) sendBankChanges(ctx context.Context, out world.Outbound, changes []items.Change) {
	for _, ch := range changes {
		var item repo.Item
		if !ch.Current.Empty() {
			loaded, err := h.catalog.Get(ctx, ch.Current.ItemID)
			if err != nil {
				h.log.Warnw("vault slot references unknown item", "item", ch.Current.ItemID)
				continue
			}
			item = loaded
		}
		h.send(out, h.build(ChangeBankSlot(ch.Slot, ch.Current, item)))
	}
}

func (h *Handlers) sendStockChanges(ctx context.Context, out world.Outbound, changes []items.Change) {
	for _, ch := range changes {
		var item repo.Item
		if !ch.Current.Empty() {
			loaded, err := h.catalog.Get(ctx, ch.Current.ItemID)
			if err != nil {
				h.log.Warnw("stock slot references unknown item", "item", ch.Current.ItemID)
				continue
			}
			item = loaded
		}
		h.send(out, h.build(ChangeNPCInventorySlot(ch.Slot, ch.Current, item)))
	}
}
