package game

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"emberfall/server/internal/economy"
	"emberfall/server/internal/items"
	"emberfall/server/internal/net"
	"emberfall/server/internal/protocol"
	"emberfall/server/internal/repo"
	"emberfall/server/internal/world"
)

// Console fonts the client understands.
const (
	fontInfo    = 1
	fontWarning = 3
)

const defaultBody = 1

// maxTradeQuantity bounds a single buy, sell or bank movement.
const maxTradeQuantity = 10000

// EffectForgetter drops per-player tick state when a player leaves.
type EffectForgetter interface {
	Forget(playerID int64)
}

// Handlers binds the packet handlers to the world, the repositories and the
// economy service. One instance serves every connection.
type Handlers struct {
	world     *world.Manager
	players   *repo.PlayerRepo
	npcs      *repo.NPCRepo
	merchants *repo.MerchantRepo
	catalog   *repo.ItemRepo
	trade     *economy.Service
	locks     *world.LockTable
	forget    EffectForgetter
	log       *zap.SugaredLogger
}

// NewHandlers wires the handler set. forget may be nil when no tick
// scheduler runs, as in tests.
func NewHandlers(
	w *world.Manager,
	players *repo.PlayerRepo,
	npcs *repo.NPCRepo,
	merchants *repo.MerchantRepo,
	catalog *repo.ItemRepo,
	trade *economy.Service,
	locks *world.LockTable,
	forget EffectForgetter,
	log *zap.SugaredLogger,
) *Handlers {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handlers{
		world:     w,
		players:   players,
		npcs:      npcs,
		merchants: merchants,
		catalog:   catalog,
		trade:     trade,
		locks:     locks,
		forget:    forget,
		log:       log,
	}
}

// Register installs every handler on the dispatcher. Everything except login
// requires an authenticated session.
func (h *Handlers) Register(d *net.Dispatcher) {
	d.Register(protocol.ClientLogin, h.handleLogin)
	d.Register(protocol.ClientTalk, d.RequireAuth(h.handleTalk))
	d.Register(protocol.ClientWalk, d.RequireAuth(h.handleWalk))
	d.Register(protocol.ClientRequestPositionUpdate, d.RequireAuth(h.handleRequestPositionUpdate))
	d.Register(protocol.ClientPickUp, d.RequireAuth(h.handlePickUp))
	d.Register(protocol.ClientDrop, d.RequireAuth(h.handleDrop))
	d.Register(protocol.ClientCommerceStart, d.RequireAuth(h.handleCommerceStart))
	d.Register(protocol.ClientCommerceEnd, d.RequireAuth(h.handleCommerceEnd))
	d.Register(protocol.ClientCommerceBuy, d.RequireAuth(h.handleCommerceBuy))
	d.Register(protocol.ClientCommerceSell, d.RequireAuth(h.handleCommerceSell))
	d.Register(protocol.ClientBankStart, d.RequireAuth(h.handleBankStart))
	d.Register(protocol.ClientBankEnd, d.RequireAuth(h.handleBankEnd))
	d.Register(protocol.ClientBankDeposit, d.RequireAuth(h.handleBankDeposit))
	d.Register(protocol.ClientBankExtract, d.RequireAuth(h.handleBankExtract))
	d.Register(protocol.ClientMeditate, d.RequireAuth(h.handleMeditate))
	d.Register(protocol.ClientRequestStats, d.RequireAuth(h.handleRequestStats))
	d.Register(protocol.ClientOnline, d.RequireAuth(h.handleOnline))
	d.Register(protocol.ClientQuit, d.RequireAuth(h.handleQuit))
}

// build logs and swallows a packet the builder could not produce. Builders
// only fail on programming errors, not on player input, so a nil packet is
// rare and the log line is the whole story.
func (h *Handlers) build(pkt []byte, err error) []byte {
	if err != nil {
		h.log.Errorw("build packet", "error", err)
		return nil
	}
	return pkt
}

func (h *Handlers) send(out world.Outbound, pkt []byte) {
	if pkt == nil {
		return
	}
	out.Send(pkt)
}

func (h *Handlers) broadcast(mapID int, pkt []byte) {
	if pkt == nil {
		return
	}
	h.world.BroadcastToMap(mapID, pkt)
}

func (h *Handlers) broadcastExcept(mapID int, except int64, pkt []byte) {
	if pkt == nil {
		return
	}
	h.world.BroadcastToMapExcept(mapID, except, pkt)
}

func (h *Handlers) console(out world.Outbound, text string, font int) {
	h.send(out, h.build(ConsoleMsg(text, font)))
}

func (h *Handlers) handleLogin(ctx context.Context, pkt []byte, sess *net.Session, conn net.Client) {
	if sess.Authenticated() {
		h.log.Warnw("duplicate login attempt", "remote", conn.RemoteAddr())
		return
	}
	r := protocol.NewReader(pkt)
	username := r.UnicodeString()
	password := r.UnicodeString()
	if err := r.Err(); err != nil {
		h.log.Warnw("malformed login", "remote", conn.RemoteAddr(), "error", err)
		conn.Close()
		return
	}

	id, err := h.players.VerifyLogin(ctx, username, password)
	if err != nil {
		h.console(conn, "Invalid username or password.", fontWarning)
		h.log.Infow("login rejected", "username", username, "remote", conn.RemoteAddr())
		return
	}
	if err := sess.Authenticate(id, username); err != nil {
		h.log.Warnw("login on closed session", "username", username)
		return
	}

	stats, err := h.players.Stats(ctx, id)
	if err != nil {
		h.log.Errorw("load stats", "player", id, "error", err)
		conn.Close()
		return
	}
	pos, err := h.players.Position(ctx, id)
	if err != nil {
		h.log.Errorw("load position", "player", id, "error", err)
		conn.Close()
		return
	}
	inv, err := h.players.Inventory(ctx, id)
	if err != nil {
		h.log.Errorw("load inventory", "player", id, "error", err)
		conn.Close()
		return
	}
	// a crash mid-meditation must not leave the flag stuck
	if err := h.players.SetFlag(ctx, id, repo.FlagMeditating, false); err != nil {
		h.log.Errorw("clear meditate flag", "player", id, "error", err)
	}

	// a second login on the same account supersedes the first socket
	if prev, ok := h.world.ResolveOutbound(id); ok {
		h.console(prev, "You have logged in from another connection.", fontWarning)
		if c, ok := prev.(net.Client); ok {
			c.Close()
		}
	}

	x, y := h.freeTileNear(pos.Map, pos.X, pos.Y)
	info := world.PlayerInfo{ID: id, Name: username, X: x, Y: y, Heading: pos.Heading, Body: defaultBody}
	h.world.AddPlayer(pos.Map, info, conn)
	if x != pos.X || y != pos.Y {
		pos.X, pos.Y = x, y
		if err := h.players.SavePosition(ctx, id, pos); err != nil {
			h.log.Errorw("save position", "player", id, "error", err)
		}
	}

	h.send(conn, h.build(Logged(id)))
	h.send(conn, h.build(UpdateUserStats(stats)))
	for slot := 1; slot <= items.MaxSlots; slot++ {
		held, _ := inv.Get(slot)
		if held.Empty() {
			continue
		}
		item, err := h.catalog.Get(ctx, held.ItemID)
		if err != nil {
			h.log.Warnw("inventory references unknown item", "player", id, "item", held.ItemID)
			continue
		}
		h.send(conn, h.build(ChangeInventorySlot(slot, held, item, false)))
	}
	h.send(conn, h.build(PosUpdate(x, y)))

	h.broadcastExcept(pos.Map, id, h.build(CharacterCreate(info)))
	for _, other := range h.world.PlayersInMap(pos.Map, id) {
		h.send(conn, h.build(CharacterCreate(other)))
	}
	for _, npc := range h.world.NPCsInMap(pos.Map) {
		h.send(conn, h.build(NPCCreate(npc)))
	}
	for key, list := range h.world.GroundTiles(pos.Map) {
		if len(list) == 0 {
			continue
		}
		gx, gy, ok := repo.ParseTileKey(key)
		if !ok {
			continue
		}
		h.send(conn, h.build(ObjectCreate(gx, gy, list[len(list)-1].Grh)))
	}
	h.console(conn, "Welcome to Emberfall.", fontInfo)
	h.log.Infow("player logged in", "player", id, "username", username, "map", pos.Map)
}

// freeTileNear returns the requested tile, or the closest walkable free tile
// when it is taken. Falls back to the original tile if the search radius is
// exhausted.
func (h *Handlers) freeTileNear(mapID, x, y int) (int, int) {
	if h.tileFree(mapID, x, y) {
		return x, y
	}
	for radius := 1; radius <= 5; radius++ {
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				cx, cy := x+dx, y+dy
				if cx < 1 || cy < 1 || cx > h.world.Width() || cy > h.world.Height() {
					continue
				}
				if h.tileFree(mapID, cx, cy) {
					return cx, cy
				}
			}
		}
	}
	return x, y
}

func (h *Handlers) tileFree(mapID, x, y int) bool {
	return !h.world.Blocked(mapID, x, y) && !h.world.TileOccupied(mapID, x, y)
}

func (h *Handlers) handleWalk(ctx context.Context, pkt []byte, sess *net.Session, conn net.Client) {
	v := protocol.NewValidator(protocol.NewReader(pkt))
	heading := v.Heading()
	if !v.Ok() {
		h.log.Warnw("bad walk packet", "error", v.Err(), "remote", conn.RemoteAddr())
		return
	}
	id, _ := sess.UserID()
	mapID, info, ok := h.world.FindPlayer(id)
	if !ok {
		return
	}
	nx, ny := step(info.X, info.Y, heading)
	if !h.world.MovePlayer(mapID, id, nx, ny, heading) {
		// refused moves resync the client to where the server has it
		h.send(conn, h.build(PosUpdate(info.X, info.Y)))
		return
	}
	if err := h.players.SavePosition(ctx, id, repo.Position{Map: mapID, X: nx, Y: ny, Heading: heading}); err != nil {
		h.log.Errorw("save position", "player", id, "error", err)
	}
	h.broadcastExcept(mapID, id, h.build(CharacterMove(id, nx, ny, heading)))
}

// step applies one tile of movement for a heading: 1 north, 2 east, 3 south,
// 4 west.
func step(x, y, heading int) (int, int) {
	switch heading {
	case 1:
		return x, y - 1
	case 2:
		return x + 1, y
	case 3:
		return x, y + 1
	case 4:
		return x - 1, y
	}
	return x, y
}

func (h *Handlers) handleTalk(ctx context.Context, pkt []byte, sess *net.Session, conn net.Client) {
	v := protocol.NewValidator(protocol.NewReader(pkt))
	text := v.BoundedString(1, 160)
	if !v.Ok() {
		h.log.Warnw("bad talk packet", "error", v.Err(), "remote", conn.RemoteAddr())
		return
	}
	id, _ := sess.UserID()
	mapID, _, ok := h.world.FindPlayer(id)
	if !ok {
		return
	}
	h.broadcast(mapID, h.build(ChatOverHead(id, text)))
}

func (h *Handlers) handleRequestPositionUpdate(_ context.Context, _ []byte, sess *net.Session, conn net.Client) {
	id, _ := sess.UserID()
	if _, info, ok := h.world.FindPlayer(id); ok {
		h.send(conn, h.build(PosUpdate(info.X, info.Y)))
	}
}

func (h *Handlers) handleRequestStats(ctx context.Context, _ []byte, sess *net.Session, conn net.Client) {
	id, _ := sess.UserID()
	stats, err := h.players.Stats(ctx, id)
	if err != nil {
		h.log.Errorw("load stats", "player", id, "error", err)
		return
	}
	h.send(conn, h.build(UpdateUserStats(stats)))
}

func (h *Handlers) handleMeditate(ctx context.Context, _ []byte, sess *net.Session, conn net.Client) {
	id, _ := sess.UserID()
	stats, err := h.players.Stats(ctx, id)
	if err != nil {
		h.log.Errorw("load stats", "player", id, "error", err)
		return
	}
	meditating, err := h.players.Flag(ctx, id, repo.FlagMeditating)
	if err != nil {
		h.log.Errorw("load flag", "player", id, "error", err)
		return
	}
	if !meditating && stats.Mana >= stats.MaxMana {
		h.console(conn, "Your mind is already at rest.", fontInfo)
		return
	}
	if err := h.players.SetFlag(ctx, id, repo.FlagMeditating, !meditating); err != nil {
		h.log.Errorw("save flag", "player", id, "error", err)
		return
	}
	h.send(conn, h.build(MeditateToggle(!meditating)))
	if meditating {
		h.console(conn, "You stop meditating.", fontInfo)
	} else {
		h.console(conn, "You begin to meditate.", fontInfo)
	}
}

func (h *Handlers) handleOnline(_ context.Context, _ []byte, _ *net.Session, conn net.Client) {
	n := len(h.world.ConnectedIDs())
	h.console(conn, fmt.Sprintf("There are %d players online.", n), fontInfo)
}

func (h *Handlers) handleQuit(_ context.Context, _ []byte, _ *net.Session, conn net.Client) {
	h.console(conn, "Leaving the world...", fontInfo)
	conn.Close()
}

// Disconnect unwinds the game state of a dropped connection. Runs for every
// connection, authenticated or not.
func (h *Handlers) Disconnect(sess *net.Session, conn net.Client) {
	id, wasAuthenticated := sess.Close()
	if !wasAuthenticated {
		return
	}
	ctx := context.Background()
	if h.forget != nil {
		h.forget.Forget(id)
	}
	mapID, _, ok := h.world.FindPlayer(id)
	if !ok {
		return
	}
	// a newer login on the same account owns the world entry now
	if out, resolved := h.world.ResolveOutbound(id); !resolved || out != world.Outbound(conn) {
		return
	}
	h.world.RemovePlayer(mapID, id)
	if err := h.players.SetFlag(ctx, id, repo.FlagMeditating, false); err != nil {
		h.log.Errorw("clear meditate flag", "player", id, "error", err)
	}
	h.broadcast(mapID, h.build(CharacterRemove(id)))
	h.log.Infow("player left", "player", id, "map", mapID)
}
