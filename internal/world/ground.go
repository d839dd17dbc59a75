package world

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/remeh/sizedwaitgroup"
	"go.uber.org/zap"

	"emberfall/server/internal/items"
	"emberfall/server/internal/repo"
)

// MaxItemsPerTile caps the ground-item list of one tile. Drops beyond the
// cap are silently discarded.
const MaxItemsPerTile = 10

const groundSaveTimeout = 5 * time.Second

// DropItem appends a stack to a tile's ground list and schedules a snapshot
// write. It returns false when the tile is full or the coordinates are
// outside the map; the caller decides whether that refunds anything.
func (m *Manager) DropItem(mapID, x, y int, item items.GroundItem) bool {
	if x < 1 || x > m.width || y < 1 || y > m.height {
		return false
	}
	if item.ItemID <= 0 || item.Quantity <= 0 {
		return false
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	m.mu.Lock()
	state := m.mapLocked(mapID)
	key := tileKey{x, y}
	if len(state.ground[key]) >= MaxItemsPerTile {
		m.mu.Unlock()
		return false
	}
	state.ground[key] = append(state.ground[key], item)
	m.mu.Unlock()

	m.saver.schedule(mapID, m)
	return true
}

// PickUpItem pops the top stack from a tile, if any, and schedules a
// snapshot write.
func (m *Manager) PickUpItem(mapID, x, y int) (items.GroundItem, bool) {
	m.mu.Lock()
	state, ok := m.maps[mapID]
	if !ok {
		m.mu.Unlock()
		return items.GroundItem{}, false
	}
	key := tileKey{x, y}
	list := state.ground[key]
	if len(list) == 0 {
		m.mu.Unlock()
		return items.GroundItem{}, false
	}
	item := list[len(list)-1]
	if len(list) == 1 {
		delete(state.ground, key)
	} else {
		state.ground[key] = list[:len(list)-1]
	}
	m.pruneLocked(mapID)
	m.mu.Unlock()

	m.saver.schedule(mapID, m)
	return item, true
}

// ItemsAt copies the ground list of one tile.
func (m *Manager) ItemsAt(mapID, x, y int) []items.GroundItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.maps[mapID]
	if !ok {
		return nil
	}
	list := state.ground[tileKey{x, y}]
	out := make([]items.GroundItem, len(list))
	copy(out, list)
	return out
}

// GroundTiles snapshots every occupied ground tile of a map, keyed "x,y" the
// way the repository persists them.
func (m *Manager) GroundTiles(mapID int) map[string][]items.GroundItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.maps[mapID]
	if !ok {
		return map[string][]items.GroundItem{}
	}
	tiles := make(map[string][]items.GroundItem, len(state.ground))
	for key, list := range state.ground {
		out := make([]items.GroundItem, len(list))
		copy(out, list)
		tiles[repo.TileKey(key.X, key.Y)] = out
	}
	return tiles
}

// SeedGround loads the persisted snapshot of a map into memory. Called at
// startup for at least the default map, before any connection is accepted.
func (m *Manager) SeedGround(ctx context.Context, mapID int) error {
	if m.ground == nil {
		return nil
	}
	tiles, err := m.ground.LoadSnapshot(ctx, mapID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.mapLocked(mapID)
	for rawKey, list := range tiles {
		x, y, ok := repo.ParseTileKey(rawKey)
		if !ok {
			continue
		}
		if len(list) > MaxItemsPerTile {
			list = list[:MaxItemsPerTile]
		}
		for i := range list {
			if list[i].ID == "" {
				list[i].ID = uuid.NewString()
			}
		}
		state.ground[tileKey{x, y}] = list
	}
	return nil
}

// groundSaver writes ground snapshots in the background, bounded so a drop
// storm cannot spawn unbounded writers. Persistence is fire and forget: the
// in-memory index stays authoritative and a crash loses at most the unsaved
// delta.
type groundSaver struct {
	repo *repo.GroundItemRepo
	log  *zap.SugaredLogger
	swg  sizedwaitgroup.SizedWaitGroup
}

func newGroundSaver(groundRepo *repo.GroundItemRepo, log *zap.SugaredLogger) *groundSaver {
	return &groundSaver{
		repo: groundRepo,
		log:  log,
		swg:  sizedwaitgroup.New(4),
	}
}

func (s *groundSaver) schedule(mapID int, m *Manager) {
	if s == nil || s.repo == nil {
		return
	}
	tiles := m.GroundTiles(mapID)
	s.swg.Add()
	go func() {
		defer s.swg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), groundSaveTimeout)
		defer cancel()
		if err := s.repo.SaveSnapshot(ctx, mapID, tiles); err != nil {
			s.log.Warnw("ground snapshot write failed", "map", mapID, "error", err)
		}
	}()
}

// Wait blocks until every scheduled snapshot write has finished. Shutdown
// calls this so the last deltas reach the store.
func (m *Manager) Wait() {
	m.saver.swg.Wait()
}
