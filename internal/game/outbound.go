// Package game wires decoded client packets to world, economy and repository
// operations, and builds the server→client packets those operations emit.
package game

import (
	"emberfall/server/internal/items"
	"emberfall/server/internal/protocol"
	"emberfall/server/internal/repo"
	"emberfall/server/internal/world"
)

// npcCharOffset lifts NPC instance ids out of the player id space inside the
// shared character-index packets.
const npcCharOffset = 100000

// Logged confirms a successful login and carries the player's id.
func Logged(playerID int64) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerLogged).
		Int32(int32(playerID)).
		Bytes()
}

// ConsoleMsg prints one line in the client console.
func ConsoleMsg(text string, font int) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerConsoleMsg).
		String(text).
		Byte(font).
		Bytes()
}

// ChatOverHead shows speech above a character.
func ChatOverHead(charID int64, text string) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerChatOverHead).
		Int32(int32(charID)).
		String(text).
		Bytes()
}

// CharacterCreate introduces a player character to a client.
func CharacterCreate(info world.PlayerInfo) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerCharacterCreate).
		Int32(int32(info.ID)).
		Int16(int16(info.Body)).
		Byte(info.X).
		Byte(info.Y).
		Byte(info.Heading).
		String(info.Name).
		Bytes()
}

// NPCCreate introduces a spawned NPC, in the same character-index space.
func NPCCreate(npc repo.NPC) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerCharacterCreate).
		Int32(int32(npc.ID + npcCharOffset)).
		Int16(int16(npc.Grh)).
		Byte(npc.X).
		Byte(npc.Y).
		Byte(npc.Heading).
		String(npc.Name).
		Bytes()
}

// CharacterRemove erases a character from a client.
func CharacterRemove(charID int64) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerCharacterRemove).
		Int32(int32(charID)).
		Bytes()
}

// CharacterMove animates a character stepping to a new tile.
func CharacterMove(charID int64, x, y, heading int) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerCharacterMove).
		Int32(int32(charID)).
		Byte(x).
		Byte(y).
		Byte(heading).
		Bytes()
}

// PosUpdate forces the client's own position.
func PosUpdate(x, y int) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerPosUpdate).
		Byte(x).
		Byte(y).
		Bytes()
}

// UpdateUserStats refreshes the whole resource panel: six current/max pairs,
// then gold, level and experience.
func UpdateUserStats(stats repo.Stats) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerUpdateUserStats).
		Int16(int16(stats.MaxHP)).Int16(int16(stats.HP)).
		Int16(int16(stats.MaxMana)).Int16(int16(stats.Mana)).
		Int16(int16(stats.MaxStamina)).Int16(int16(stats.Stamina)).
		Int16(int16(stats.MaxHunger)).Int16(int16(stats.Hunger)).
		Int16(int16(stats.MaxThirst)).Int16(int16(stats.Thirst)).
		Int16(int16(stats.MaxHit)).Int16(int16(stats.MinHit)).
		Int32(int32(stats.Gold)).
		Byte(stats.Level).
		Int32(int32(stats.ELU)).
		Int32(int32(stats.Exp)).
		Bytes()
}

// UpdateGold refreshes just the gold counter.
func UpdateGold(gold int) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerUpdateGold).
		Int32(int32(gold)).
		Bytes()
}

// UpdateHungerAndThirst refreshes the survival meters.
func UpdateHungerAndThirst(stats repo.Stats) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerUpdateHungerAndThirst).
		Byte(stats.MaxThirst).
		Byte(stats.Thirst).
		Byte(stats.MaxHunger).
		Byte(stats.Hunger).
		Bytes()
}

// ChangeInventorySlot refreshes one inventory cell with its catalog data.
func ChangeInventorySlot(slot int, held items.Slot, item repo.Item, equipped bool) ([]byte, error) {
	eq := 0
	if equipped {
		eq = 1
	}
	return protocol.NewWriter(protocol.ServerChangeInventorySlot).
		Byte(slot).
		Int16(int16(held.ItemID)).
		String(item.Name).
		Int16(int16(held.Quantity)).
		Byte(eq).
		Int16(int16(item.Grh)).
		Byte(item.Type).
		Int16(int16(item.MaxHit)).
		Int16(int16(item.MinHit)).
		Int16(int16(item.MaxDef)).
		Int16(int16(item.MinDef)).
		Float32(float32(item.Price)).
		Bytes()
}

// ChangeBankSlot refreshes one vault cell.
func ChangeBankSlot(slot int, held items.Slot, item repo.Item) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerChangeBankSlot).
		Byte(slot).
		Int16(int16(held.ItemID)).
		String(item.Name).
		Int16(int16(held.Quantity)).
		Int16(int16(item.Grh)).
		Byte(item.Type).
		Int16(int16(item.MaxHit)).
		Int16(int16(item.MinHit)).
		Int16(int16(item.MaxDef)).
		Int16(int16(item.MinDef)).
		Bytes()
}

// ChangeNPCInventorySlot refreshes one merchant stock cell, buy price
// included.
func ChangeNPCInventorySlot(slot int, held items.Slot, item repo.Item) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerChangeNPCInventorySlot).
		Byte(slot).
		Int16(int16(held.ItemID)).
		String(item.Name).
		Int16(int16(held.Quantity)).
		Float32(float32(item.Price)).
		Int16(int16(item.Grh)).
		Byte(item.Type).
		Int16(int16(item.MaxHit)).
		Int16(int16(item.MinHit)).
		Int16(int16(item.MaxDef)).
		Int16(int16(item.MinDef)).
		Bytes()
}

// ObjectCreate shows a dropped stack on a tile.
func ObjectCreate(x, y, grh int) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerObjectCreate).
		Byte(x).
		Byte(y).
		Int16(int16(grh)).
		Bytes()
}

// ObjectDelete clears a tile's topmost dropped stack.
func ObjectDelete(x, y int) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerObjectDelete).
		Byte(x).
		Byte(y).
		Bytes()
}

// MeditateToggle starts or stops the meditation animation.
func MeditateToggle(on bool) ([]byte, error) {
	v := 0
	if on {
		v = 1
	}
	return protocol.NewWriter(protocol.ServerMeditateToggle).
		Byte(v).
		Bytes()
}

// CommerceInit opens the trade window for one merchant.
func CommerceInit(npcID int64) ([]byte, error) {
	return protocol.NewWriter(protocol.ServerCommerceInit).
		Int32(int32(npcID + npcCharOffset)).
		Bytes()
}

// CommerceEnd closes the trade window.
func CommerceEnd() ([]byte, error) {
	return protocol.NewWriter(protocol.ServerCommerceEnd).Bytes()
}

// BankInit opens the vault window.
func BankInit() ([]byte, error) {
	return protocol.NewWriter(protocol.ServerBankInit).Bytes()
}

// BankEnd closes the vault window.
func BankEnd() ([]byte, error) {
	return protocol.NewWriter(protocol.ServerBankEnd).Bytes()
}
