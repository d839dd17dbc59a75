// Package world is the authoritative in-memory view of who and what is
// where. It indexes players, NPCs, tile occupancy, blocking and ground items
// per map, and fans broadcast packets out to the sessions that should see
// them. Persisted entity state lives in the repositories; this package only
// answers spatial queries and routes packets.
package world

import (
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"emberfall/server/internal/items"
	"emberfall/server/internal/repo"
)

// Outbound is anything that can accept a finished packet for one client.
// Send must not block the caller; the connection layer buffers.
type Outbound interface {
	Send(pkt []byte)
}

// TagKind classifies a tile occupant.
type TagKind byte

const (
	KindNone TagKind = iota
	KindPlayer
	KindNPC
)

// Tag identifies the occupant of a tile without scanning entity lists.
type Tag struct {
	Kind TagKind
	ID   int64
}

// PlayerInfo is the in-memory projection of one connected player: enough to
// draw them for others and to route packets. The repositories own the rest.
type PlayerInfo struct {
	ID      int64
	Name    string
	X, Y    int
	Heading int
	Body    int
}

type tileKey struct {
	X, Y int
}

type playerEntry struct {
	info PlayerInfo
	out  Outbound
}

type mapState struct {
	players map[int64]*playerEntry
	npcs    map[int64]repo.NPC
	tiles   map[tileKey]Tag
	blocked map[tileKey]bool
	ground  map[tileKey][]items.GroundItem
}

func newMapState() *mapState {
	return &mapState{
		players: make(map[int64]*playerEntry),
		npcs:    make(map[int64]repo.NPC),
		tiles:   make(map[tileKey]Tag),
		blocked: make(map[tileKey]bool),
		ground:  make(map[tileKey][]items.GroundItem),
	}
}

func (m *mapState) empty() bool {
	return len(m.players) == 0 && len(m.npcs) == 0 && len(m.blocked) == 0 && len(m.ground) == 0
}

// Manager is the spatial index and broadcast fan-out. Every connection
// goroutine and the tick scheduler touch it, so its indices sit behind a
// deadlock-checked RWMutex; store I/O never happens while the lock is held.
type Manager struct {
	mu       deadlock.RWMutex
	maps     map[int]*mapState
	byPlayer map[int64]int // player id → map id, for global resolution

	width, height int

	log    *zap.SugaredLogger
	ground *repo.GroundItemRepo
	saver  *groundSaver
}

// NewManager creates an empty index for maps of the given dimensions.
// groundRepo may be nil in tests that do not exercise persistence.
func NewManager(width, height int, groundRepo *repo.GroundItemRepo, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		maps:     make(map[int]*mapState),
		byPlayer: make(map[int64]int),
		width:    width,
		height:   height,
		log:      log,
		ground:   groundRepo,
		saver:    newGroundSaver(groundRepo, log),
	}
}

// Width returns the horizontal tile count of every map.
func (m *Manager) Width() int { return m.width }

// Height returns the vertical tile count of every map.
func (m *Manager) Height() int { return m.height }

func (m *Manager) mapLocked(mapID int) *mapState {
	state, ok := m.maps[mapID]
	if !ok {
		state = newMapState()
		m.maps[mapID] = state
	}
	return state
}

func (m *Manager) pruneLocked(mapID int) {
	if state, ok := m.maps[mapID]; ok && state.empty() {
		delete(m.maps, mapID)
	}
}

// AddPlayer registers a connected player on a map and claims its tile. A
// player already present under the same id is replaced, which covers a
// reconnect reusing the id.
func (m *Manager) AddPlayer(mapID int, info PlayerInfo, out Outbound) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.mapLocked(mapID)
	if prev, ok := state.players[info.ID]; ok {
		delete(state.tiles, tileKey{prev.info.X, prev.info.Y})
	}
	state.players[info.ID] = &playerEntry{info: info, out: out}
	state.tiles[tileKey{info.X, info.Y}] = Tag{Kind: KindPlayer, ID: info.ID}
	m.byPlayer[info.ID] = mapID
}

// RemovePlayer releases a player's tile and drops it from the map. Removing
// an absent player is a no-op; an emptied map entry is pruned.
func (m *Manager) RemovePlayer(mapID int, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.maps[mapID]
	if !ok {
		return
	}
	entry, ok := state.players[id]
	if !ok {
		return
	}
	key := tileKey{entry.info.X, entry.info.Y}
	if state.tiles[key].Kind == KindPlayer && state.tiles[key].ID == id {
		delete(state.tiles, key)
	}
	delete(state.players, id)
	if m.byPlayer[id] == mapID {
		delete(m.byPlayer, id)
	}
	m.pruneLocked(mapID)
}

// MovePlayer atomically releases the old tile and claims the new one. It
// refuses blocked or occupied destinations and destinations outside the map,
// so occupancy can never go inconsistent mid-move.
func (m *Manager) MovePlayer(mapID int, id int64, x, y, heading int) bool {
	if x < 1 || x > m.width || y < 1 || y > m.height {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.maps[mapID]
	if !ok {
		return false
	}
	entry, ok := state.players[id]
	if !ok {
		return false
	}
	dest := tileKey{x, y}
	if state.blocked[dest] {
		return false
	}
	if occupant, taken := state.tiles[dest]; taken && (occupant.Kind != KindPlayer || occupant.ID != id) {
		return false
	}
	delete(state.tiles, tileKey{entry.info.X, entry.info.Y})
	entry.info.X, entry.info.Y, entry.info.Heading = x, y, heading
	state.tiles[dest] = Tag{Kind: KindPlayer, ID: id}
	return true
}

// Player returns the in-memory projection of one connected player.
func (m *Manager) Player(mapID int, id int64) (PlayerInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.maps[mapID]
	if !ok {
		return PlayerInfo{}, false
	}
	entry, ok := state.players[id]
	if !ok {
		return PlayerInfo{}, false
	}
	return entry.info, true
}

// FindPlayer locates a connected player without knowing their map.
func (m *Manager) FindPlayer(id int64) (int, PlayerInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mapID, ok := m.byPlayer[id]
	if !ok {
		return 0, PlayerInfo{}, false
	}
	state, ok := m.maps[mapID]
	if !ok {
		return 0, PlayerInfo{}, false
	}
	entry, ok := state.players[id]
	if !ok {
		return 0, PlayerInfo{}, false
	}
	return mapID, entry.info, true
}

// PlayersInMap lists connected players on one map, optionally excluding ids.
// Unknown maps yield an empty slice.
func (m *Manager) PlayersInMap(mapID int, excluding ...int64) []PlayerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.maps[mapID]
	if !ok {
		return nil
	}
	skip := make(map[int64]struct{}, len(excluding))
	for _, id := range excluding {
		skip[id] = struct{}{}
	}
	players := make([]PlayerInfo, 0, len(state.players))
	for id, entry := range state.players {
		if _, excluded := skip[id]; excluded {
			continue
		}
		players = append(players, entry.info)
	}
	return players
}

// ConnectedIDs snapshots every connected player id across all maps. The tick
// scheduler iterates this copy so effects never run under the world lock.
func (m *Manager) ConnectedIDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.byPlayer))
	for id := range m.byPlayer {
		ids = append(ids, id)
	}
	return ids
}

// ResolveOutbound finds the output channel of a connected player anywhere.
func (m *Manager) ResolveOutbound(id int64) (Outbound, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolveLocked(id)
}

func (m *Manager) resolveLocked(id int64) (Outbound, bool) {
	mapID, ok := m.byPlayer[id]
	if !ok {
		return nil, false
	}
	state, ok := m.maps[mapID]
	if !ok {
		return nil, false
	}
	entry, ok := state.players[id]
	if !ok || entry.out == nil {
		return nil, false
	}
	return entry.out, true
}

// ResolveOutboundInMap finds an output channel only if the player is on the
// given map, which disambiguates an id reused across logins on other maps.
func (m *Manager) ResolveOutboundInMap(mapID int, id int64) (Outbound, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.maps[mapID]
	if !ok {
		return nil, false
	}
	entry, ok := state.players[id]
	if !ok || entry.out == nil {
		return nil, false
	}
	return entry.out, true
}

// SendTo delivers one packet to one connected player, if present.
func (m *Manager) SendTo(id int64, pkt []byte) {
	out, ok := m.ResolveOutbound(id)
	if !ok {
		return
	}
	out.Send(pkt)
}

// BroadcastToMap delivers one packet to everyone on a map.
func (m *Manager) BroadcastToMap(mapID int, pkt []byte) {
	m.broadcast(mapID, pkt, 0)
}

// BroadcastToMapExcept delivers one packet to everyone on a map but one id.
func (m *Manager) BroadcastToMapExcept(mapID int, except int64, pkt []byte) {
	m.broadcast(mapID, pkt, except)
}

func (m *Manager) broadcast(mapID int, pkt []byte, except int64) {
	m.mu.RLock()
	state, ok := m.maps[mapID]
	var outs []Outbound
	if ok {
		outs = make([]Outbound, 0, len(state.players))
		for id, entry := range state.players {
			if id == except || entry.out == nil {
				continue
			}
			outs = append(outs, entry.out)
		}
	}
	m.mu.RUnlock()

	for _, out := range outs {
		out.Send(pkt)
	}
}

// AddNPC registers a spawned instance and claims its tile.
func (m *Manager) AddNPC(npc repo.NPC) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.mapLocked(npc.Map)
	state.npcs[npc.ID] = npc
	state.tiles[tileKey{npc.X, npc.Y}] = Tag{Kind: KindNPC, ID: npc.ID}
}

// RemoveNPC releases an instance's tile and drops it. No-op when absent.
func (m *Manager) RemoveNPC(mapID int, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.maps[mapID]
	if !ok {
		return
	}
	npc, ok := state.npcs[id]
	if !ok {
		return
	}
	key := tileKey{npc.X, npc.Y}
	if state.tiles[key].Kind == KindNPC && state.tiles[key].ID == id {
		delete(state.tiles, key)
	}
	delete(state.npcs, id)
	m.pruneLocked(mapID)
}

// NPC returns one spawned instance on a map.
func (m *Manager) NPC(mapID int, id int64) (repo.NPC, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.maps[mapID]
	if !ok {
		return repo.NPC{}, false
	}
	npc, ok := state.npcs[id]
	return npc, ok
}

// NPCsInMap lists spawned instances on one map. Unknown maps yield an empty
// slice.
func (m *Manager) NPCsInMap(mapID int) []repo.NPC {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.maps[mapID]
	if !ok {
		return nil
	}
	npcs := make([]repo.NPC, 0, len(state.npcs))
	for _, npc := range state.npcs {
		npcs = append(npcs, npc)
	}
	return npcs
}

// OccupantAt reports the tag holding a tile, if any.
func (m *Manager) OccupantAt(mapID, x, y int) (Tag, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.maps[mapID]
	if !ok {
		return Tag{}, false
	}
	tag, ok := state.tiles[tileKey{x, y}]
	return tag, ok
}

// TileOccupied reports whether anything stands on a tile.
func (m *Manager) TileOccupied(mapID, x, y int) bool {
	_, ok := m.OccupantAt(mapID, x, y)
	return ok
}

// SetBlocked marks a tile as impassable terrain, independent of occupancy.
func (m *Manager) SetBlocked(mapID, x, y int, blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.mapLocked(mapID)
	key := tileKey{x, y}
	if blocked {
		state.blocked[key] = true
	} else {
		delete(state.blocked, key)
		m.pruneLocked(mapID)
	}
}

// Blocked reports whether a tile is impassable terrain.
func (m *Manager) Blocked(mapID, x, y int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.maps[mapID]
	if !ok {
		return false
	}
	return state.blocked[tileKey{x, y}]
}
