package repo

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"emberfall/server/internal/items"
	"emberfall/server/internal/storage"
)

// GroundItemRepo persists per-map snapshots of dropped items. Each map is one
// record whose fields are "x,y" tile keys and whose values encode the tile's
// item list. Writes replace the whole record; the in-memory index is
// authoritative for serving and a crash loses at most the unsaved delta.
type GroundItemRepo struct {
	store *storage.Store
}

func NewGroundItemRepo(store *storage.Store) *GroundItemRepo {
	return &GroundItemRepo{store: store}
}

// SaveSnapshot replaces the persisted snapshot of one map.
func (r *GroundItemRepo) SaveSnapshot(ctx context.Context, mapID int, tiles map[string][]items.GroundItem) error {
	if err := r.store.DeleteRecord(ctx, groundKey(mapID)); err != nil {
		return err
	}
	if len(tiles) == 0 {
		return nil
	}
	fields := make(map[string]string, len(tiles))
	for key, list := range tiles {
		if len(list) == 0 {
			continue
		}
		fields[key] = encodeTile(list)
	}
	return r.store.SetFields(ctx, groundKey(mapID), fields)
}

// LoadSnapshot reads the persisted snapshot of one map. Tile keys parse as
// "x,y"; malformed entries are skipped rather than failing the load.
func (r *GroundItemRepo) LoadSnapshot(ctx context.Context, mapID int) (map[string][]items.GroundItem, error) {
	record, err := r.store.GetRecord(ctx, groundKey(mapID))
	if err != nil {
		return nil, err
	}
	tiles := make(map[string][]items.GroundItem, len(record))
	for key, raw := range record {
		list := decodeTile(raw)
		if len(list) > 0 {
			tiles[key] = list
		}
	}
	return tiles, nil
}

// TileKey formats the "x,y" field key for one tile.
func TileKey(x, y int) string {
	return fmt.Sprintf("%d,%d", x, y)
}

// ParseTileKey parses an "x,y" field key.
func ParseTileKey(key string) (int, int, bool) {
	parts := strings.SplitN(key, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	x, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	y, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return x, y, true
}

func encodeTile(list []items.GroundItem) string {
	parts := make([]string, 0, len(list))
	for _, item := range list {
		parts = append(parts, fmt.Sprintf("%d:%d:%d", item.ItemID, item.Quantity, item.Grh))
	}
	return strings.Join(parts, "|")
}

func decodeTile(raw string) []items.GroundItem {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "|")
	list := make([]items.GroundItem, 0, len(parts))
	for _, part := range parts {
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			continue
		}
		itemID, err1 := strconv.Atoi(fields[0])
		qty, err2 := strconv.Atoi(fields[1])
		grh, err3 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || err3 != nil || itemID <= 0 || qty <= 0 {
			continue
		}
		list = append(list, items.GroundItem{ItemID: itemID, Quantity: qty, Grh: grh})
	}
	return list
}
