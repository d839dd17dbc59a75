package game

import (
	"context"

	"emberfall/server/internal/items"
	"emberfall/server/internal/net"
	"emberfall/server/internal/protocol"
	"emberfall/server/internal/repo"
)

// interactRange is how far, in tiles, a merchant or banker may stand.
const interactRange = 3

// npcNear finds the closest NPC within interactRange matching want.
func (h *Handlers) npcNear(mapID, x, y int, want func(repo.NPC) bool) (repo.NPC, bool) {
	best := repo.NPC{}
	bestDist := interactRange + 1
	for _, npc := range h.world.NPCsInMap(mapID) {
		if !want(npc) {
			continue
		}
		d := chebyshev(x, y, npc.X, npc.Y)
		if d < bestDist {
			best, bestDist = npc, d
		}
	}
	return best, bestDist <= interactRange
}

func chebyshev(x1, y1, x2, y2 int) int {
	dx, dy := x1-x2, y1-y2
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

func (h *Handlers) handleCommerceStart(ctx context.Context, _ []byte, sess *net.Session, conn net.Client) {
	id, _ := sess.UserID()
	mapID, info, ok := h.world.FindPlayer(id)
	if !ok {
		return
	}
	npc, ok := h.npcNear(mapID, info.X, info.Y, func(n repo.NPC) bool { return n.Merchant })
	if !ok {
		h.console(conn, "There is no merchant nearby.", fontWarning)
		return
	}
	stock, err := h.merchants.Stock(ctx, npc.ID)
	if err != nil {
		h.log.Errorw("load stock", "npc", npc.ID, "error", err)
		return
	}
	sess.SetTrading(npc.ID)
	h.send(conn, h.build(CommerceInit(npc.ID)))
	for slot := 1; slot <= items.MaxSlots; slot++ {
		held, _ := stock.Get(slot)
		if held.Empty() {
			continue
		}
		item, err := h.catalog.Get(ctx, held.ItemID)
		if err != nil {
			continue
		}
		h.send(conn, h.build(ChangeNPCInventorySlot(slot, held, item)))
	}
}

func (h *Handlers) handleCommerceEnd(_ context.Context, _ []byte, sess *net.Session, conn net.Client) {
	sess.SetTrading(0)
	h.send(conn, h.build(CommerceEnd()))
}

func (h *Handlers) handleCommerceBuy(ctx context.Context, pkt []byte, sess *net.Session, conn net.Client) {
	npcID, trading := sess.Trading()
	if !trading {
		h.log.Warnw("buy without trade window", "remote", conn.RemoteAddr())
		return
	}
	v := protocol.NewValidator(protocol.NewReader(pkt))
	slot := v.Slot(items.MaxSlots)
	qty := v.Quantity(maxTradeQuantity)
	if !v.Ok() {
		h.log.Warnw("bad buy packet", "error", v.Err(), "remote", conn.RemoteAddr())
		return
	}
	id, _ := sess.UserID()
	res, err := h.trade.Buy(ctx, id, npcID, slot, qty)
	if err != nil {
		h.console(conn, err.Error(), fontWarning)
		return
	}
	h.send(conn, h.build(UpdateGold(res.Gold)))
	h.sendInventoryChanges(ctx, conn, res.InventoryChanges)
	h.sendStockChanges(ctx, conn, res.StockChanges)
}

func (h *Handlers) handleCommerceSell(ctx context.Context, pkt []byte, sess *net.Session, conn net.Client) {
	npcID, trading := sess.Trading()
	if !trading {
		h.log.Warnw("sell without trade window", "remote", conn.RemoteAddr())
		return
	}
	v := protocol.NewValidator(protocol.NewReader(pkt))
	slot := v.Slot(items.MaxSlots)
	qty := v.Quantity(maxTradeQuantity)
	if !v.Ok() {
		h.log.Warnw("bad sell packet", "error", v.Err(), "remote", conn.RemoteAddr())
		return
	}
	id, _ := sess.UserID()
	res, err := h.trade.Sell(ctx, id, npcID, slot, qty)
	if err != nil {
		h.console(conn, err.Error(), fontWarning)
		return
	}
	h.send(conn, h.build(UpdateGold(res.Gold)))
	h.sendInventoryChanges(ctx, conn, res.InventoryChanges)
	h.sendStockChanges(ctx, conn, res.StockChanges)
}

func (h *Handlers) handleBankStart(ctx context.Context, _ []byte, sess *net.Session, conn net.Client) {
	id, _ := sess.UserID()
	mapID, info, ok := h.world.FindPlayer(id)
	if !ok {
		return
	}
	if _, ok := h.npcNear(mapID, info.X, info.Y, func(n repo.NPC) bool { return n.Banker }); !ok {
		h.console(conn, "There is no banker nearby.", fontWarning)
		return
	}
	vault, err := h.players.Bank(ctx, id)
	if err != nil {
		h.log.Errorw("load bank", "player", id, "error", err)
		return
	}
	sess.SetBankOpen(true)
	h.send(conn, h.build(BankInit()))
	for slot := 1; slot <= items.MaxSlots; slot++ {
		held, _ := vault.Get(slot)
		if held.Empty() {
			continue
		}
		item, err := h.catalog.Get(ctx, held.ItemID)
		if err != nil {
			continue
		}
		h.send(conn, h.build(ChangeBankSlot(slot, held, item)))
	}
}

func (h *Handlers) handleBankEnd(_ context.Context, _ []byte, sess *net.Session, conn net.Client) {
	sess.SetBankOpen(false)
	h.send(conn, h.build(BankEnd()))
}

func (h *Handlers) handleBankDeposit(ctx context.Context, pkt []byte, sess *net.Session, conn net.Client) {
	if !sess.BankOpen() {
		h.log.Warnw("deposit without bank window", "remote", conn.RemoteAddr())
		return
	}
	v := protocol.NewValidator(protocol.NewReader(pkt))
	slot := v.Slot(items.MaxSlots)
	qty := v.Quantity(maxTradeQuantity)
	if !v.Ok() {
		h.log.Warnw("bad deposit packet", "error", v.Err(), "remote", conn.RemoteAddr())
		return
	}
	id, _ := sess.UserID()
	res, err := h.trade.Deposit(ctx, id, slot, qty)
	if err != nil {
		h.console(conn, err.Error(), fontWarning)
		return
	}
	h.sendInventoryChanges(ctx, conn, res.InventoryChanges)
	h.sendBankChanges(ctx, conn, res.BankChanges)
}

func (h *Handlers) handleBankExtract(ctx context.Context, pkt []byte, sess *net.Session, conn net.Client) {
	if !sess.BankOpen() {
		h.log.Warnw("extract without bank window", "remote", conn.RemoteAddr())
		return
	}
	v := protocol.NewValidator(protocol.NewReader(pkt))
	slot := v.Slot(items.MaxSlots)
	qty := v.Quantity(maxTradeQuantity)
	if !v.Ok() {
		h.log.Warnw("bad extract packet", "error", v.Err(), "remote", conn.RemoteAddr())
		return
	}
	id, _ := sess.UserID()
	res, err := h.trade.Extract(ctx, id, slot, qty)
	if err != nil {
		h.console(conn, err.Error(), fontWarning)
		return
	}
	h.sendInventoryChanges(ctx, conn, res.InventoryChanges)
	h.sendBankChanges(ctx, conn, res.BankChanges)
}
