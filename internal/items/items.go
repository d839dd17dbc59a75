// Package items holds the slot-array model shared by inventories, banks and
// merchant stock.
package items

import "errors"

// MaxSlots is the fixed length of every slot array: player inventory, bank
// vault and merchant stock all hold 20 slots.
const MaxSlots = 20

var (
	// ErrNoSpace reports a credit that found no free or mergeable slot.
	ErrNoSpace = errors.New("no free slot")
	// ErrNotEnough reports a debit larger than the slot's quantity.
	ErrNotEnough = errors.New("not enough quantity")
	// ErrEmptySlot reports an operation against an empty slot.
	ErrEmptySlot = errors.New("slot is empty")
)

// Slot is one storage cell: an item id and how many are stacked, or empty.
type Slot struct {
	ItemID   int
	Quantity int
}

// Empty reports whether the slot holds nothing.
func (s Slot) Empty() bool {
	return s.ItemID == 0 || s.Quantity <= 0
}

// Slots is a fixed-length slot array indexed 1..MaxSlots externally.
type Slots [MaxSlots]Slot

// Get returns the slot at a 1-based index.
func (s *Slots) Get(slot int) (Slot, bool) {
	if slot < 1 || slot > MaxSlots {
		return Slot{}, false
	}
	return s[slot-1], true
}

// Set overwrites the slot at a 1-based index. Quantities at or below zero
// clear the slot.
func (s *Slots) Set(slot int, value Slot) bool {
	if slot < 1 || slot > MaxSlots {
		return false
	}
	if value.Quantity <= 0 {
		value = Slot{}
	}
	s[slot-1] = value
	return true
}

// Change records one slot mutation so a failed multi-step transaction can be
// compensated exactly.
type Change struct {
	Slot     int
	Previous Slot
	Current  Slot
}

// Add credits quantity of an item, merging into an existing stack of the same
// item before taking the first free slot. It returns every touched slot so
// the caller can both notify the client and reverse the grant on a later
// failure. On ErrNoSpace the array is unchanged.
func (s *Slots) Add(itemID, quantity int) ([]Change, error) {
	if itemID <= 0 || quantity <= 0 {
		return nil, ErrEmptySlot
	}
	for i := range s {
		if s[i].ItemID == itemID && s[i].Quantity > 0 {
			prev := s[i]
			s[i].Quantity += quantity
			return []Change{{Slot: i + 1, Previous: prev, Current: s[i]}}, nil
		}
	}
	for i := range s {
		if s[i].Empty() {
			prev := s[i]
			s[i] = Slot{ItemID: itemID, Quantity: quantity}
			return []Change{{Slot: i + 1, Previous: prev, Current: s[i]}}, nil
		}
	}
	return nil, ErrNoSpace
}

// Remove debits quantity from a 1-based slot, clearing it at zero. On error
// the array is unchanged.
func (s *Slots) Remove(slot, quantity int) (Change, error) {
	if quantity <= 0 {
		return Change{}, ErrNotEnough
	}
	current, ok := s.Get(slot)
	if !ok || current.Empty() {
		return Change{}, ErrEmptySlot
	}
	if current.Quantity < quantity {
		return Change{}, ErrNotEnough
	}
	prev := current
	current.Quantity -= quantity
	if current.Quantity == 0 {
		current = Slot{}
	}
	s[slot-1] = current
	return Change{Slot: slot, Previous: prev, Current: current}, nil
}

// Revert undoes a set of changes by restoring each previous value, newest
// first.
func (s *Slots) Revert(changes []Change) {
	for i := len(changes) - 1; i >= 0; i-- {
		s[changes[i].Slot-1] = changes[i].Previous
	}
}

// CountOf sums the quantity of an item across every slot.
func (s *Slots) CountOf(itemID int) int {
	total := 0
	for i := range s {
		if s[i].ItemID == itemID {
			total += s[i].Quantity
		}
	}
	return total
}

// GroundItem is one dropped stack lying on a tile.
type GroundItem struct {
	ID       string
	ItemID   int
	Quantity int
	Grh      int
	// SpawnedBy optionally names the spawner that owns respawning this
	// stack; empty for player drops.
	SpawnedBy string
}
