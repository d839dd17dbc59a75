package world

import "github.com/sasha-s/go-deadlock"

const lockStripes = 64

// LockTable serializes mutations on one player across goroutines. The
// original single-threaded loop got at-most-one economic mutation per player
// for free; on this runtime every economy or movement handler takes the
// player's stripe for the duration of its read-mutate-write cycle.
type LockTable struct {
	stripes [lockStripes]deadlock.Mutex
}

func NewLockTable() *LockTable {
	return &LockTable{}
}

// Lock acquires the stripe owning a player id.
func (t *LockTable) Lock(id int64) {
	t.stripes[uint64(id)%lockStripes].Lock()
}

// Unlock releases the stripe owning a player id.
func (t *LockTable) Unlock(id int64) {
	t.stripes[uint64(id)%lockStripes].Unlock()
}
