package game

import (
	"context"
	"sync"
	"testing"

	"emberfall/server/internal/economy"
	"emberfall/server/internal/items"
	"emberfall/server/internal/net"
	"emberfall/server/internal/protocol"
	"emberfall/server/internal/repo"
	"emberfall/server/internal/storage"
	"emberfall/server/internal/world"
)

type fakeClient struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (c *fakeClient) Send(pkt []byte) {
	c.mu.Lock()
	c.sent = append(c.sent, pkt)
	c.mu.Unlock()
}

func (c *fakeClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeClient) RemoteAddr() string { return "test" }

func (c *fakeClient) tags() []protocol.ServerPacket {
	c.mu.Lock()
	defer c.mu.Unlock()
	tags := make([]protocol.ServerPacket, 0, len(c.sent))
	for _, pkt := range c.sent {
		tags = append(tags, protocol.ServerPacket(pkt[0]))
	}
	return tags
}

func (c *fakeClient) has(tag protocol.ServerPacket) bool {
	for _, t := range c.tags() {
		if t == tag {
			return true
		}
	}
	return false
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}

type fixture struct {
	h         *Handlers
	world     *world.Manager
	players   *repo.PlayerRepo
	npcs      *repo.NPCRepo
	merchants *repo.MerchantRepo
	catalog   *repo.ItemRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	players := repo.NewPlayerRepo(store)
	npcs := repo.NewNPCRepo(store)
	merchants := repo.NewMerchantRepo(store)
	catalog := repo.NewItemRepo(store)
	locks := world.NewLockTable()
	w := world.NewManager(100, 100, nil, nil)
	trade := economy.NewService(players, merchants, catalog, locks, nil)

	ctx := context.Background()
	if err := catalog.Save(ctx, repo.Item{ID: 10, Name: "Apple", Grh: 500, Price: 100}); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	return &fixture{
		h:         NewHandlers(w, players, npcs, merchants, catalog, trade, locks, nil, nil),
		world:     w,
		players:   players,
		npcs:      npcs,
		merchants: merchants,
		catalog:   catalog,
	}
}

func loginPacket(t *testing.T, username, password string) []byte {
	t.Helper()
	pkt, err := protocol.NewWriter(protocol.ServerPacket(protocol.ClientLogin)).
		UnicodeString(username).
		UnicodeString(password).
		Bytes()
	if err != nil {
		t.Fatalf("build login packet: %v", err)
	}
	return pkt
}

func (f *fixture) login(t *testing.T, username string, pos repo.Position, gold int) (int64, *net.Session, *fakeClient) {
	t.Helper()
	ctx := context.Background()
	stats := repo.Stats{
		HP: 80, MaxHP: 100,
		Mana: 40, MaxMana: 120,
		Hunger: 100, MaxHunger: 100,
		Thirst: 100, MaxThirst: 100,
		Gold: gold, Level: 1,
	}
	id, err := f.players.Create(ctx, username, "hunter2", stats, pos)
	if err != nil {
		t.Fatalf("create player: %v", err)
	}
	sess := net.NewSession()
	client := &fakeClient{}
	f.h.handleLogin(ctx, loginPacket(t, username, "hunter2"), sess, client)
	if !sess.Authenticated() {
		t.Fatalf("login for %q did not authenticate", username)
	}
	return id, sess, client
}

func walkPacket(heading int) []byte {
	return []byte{byte(protocol.ClientWalk), byte(heading)}
}

func slotQtyPacket(tag protocol.ClientPacket, slot, qty int) []byte {
	return []byte{byte(tag), byte(slot), byte(qty & 0xFF), byte(qty >> 8)}
}

func TestLoginSendsWorldState(t *testing.T) {
	f := newFixture(t)
	id, _, client := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 0)

	if _, _, ok := f.world.FindPlayer(id); !ok {
		t.Fatal("player not placed in the world")
	}
	tags := client.tags()
	if len(tags) == 0 || tags[0] != protocol.ServerLogged {
		t.Fatalf("first packet = %v, want Logged", tags)
	}
	for _, want := range []protocol.ServerPacket{
		protocol.ServerUpdateUserStats,
		protocol.ServerPosUpdate,
		protocol.ServerConsoleMsg,
	} {
		if !client.has(want) {
			t.Fatalf("login never sent %v; got %v", want, tags)
		}
	}
}

func TestLoginBadPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.players.Create(ctx, "bob", "hunter2", repo.Stats{MaxHP: 100}, repo.Position{Map: 1, X: 10, Y: 10, Heading: 1}); err != nil {
		t.Fatalf("create player: %v", err)
	}
	sess := net.NewSession()
	client := &fakeClient{}
	f.h.handleLogin(ctx, loginPacket(t, "bob", "wrong"), sess, client)
	if sess.Authenticated() {
		t.Fatal("bad password must not authenticate")
	}
	if !client.has(protocol.ServerConsoleMsg) {
		t.Fatal("rejection should tell the client why")
	}
}

func TestLoginAnnouncesToNeighbors(t *testing.T) {
	f := newFixture(t)
	_, _, first := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 0)
	first.reset()

	_, _, second := f.login(t, "bob", repo.Position{Map: 1, X: 52, Y: 50, Heading: 3}, 0)
	if !first.has(protocol.ServerCharacterCreate) {
		t.Fatal("existing player never saw the newcomer")
	}
	if !second.has(protocol.ServerCharacterCreate) {
		t.Fatal("newcomer never saw the existing player")
	}
}

func TestWalkMovesAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, sess, client := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 0)
	_, _, other := f.login(t, "bob", repo.Position{Map: 1, X: 60, Y: 60, Heading: 3}, 0)
	other.reset()

	f.h.handleWalk(ctx, walkPacket(2), sess, client)

	_, info, _ := f.world.FindPlayer(id)
	if info.X != 51 || info.Y != 50 {
		t.Fatalf("player at (%d,%d), want (51,50)", info.X, info.Y)
	}
	pos, err := f.players.Position(ctx, id)
	if err != nil || pos.X != 51 {
		t.Fatalf("persisted position = %+v, %v", pos, err)
	}
	if !other.has(protocol.ServerCharacterMove) {
		t.Fatal("move was not broadcast")
	}
}

func TestWalkIntoBlockedTileResyncs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, sess, client := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 0)
	f.world.SetBlocked(1, 51, 50, true)
	client.reset()

	f.h.handleWalk(ctx, walkPacket(2), sess, client)

	_, info, _ := f.world.FindPlayer(id)
	if info.X != 50 || info.Y != 50 {
		t.Fatalf("player moved into a blocked tile: (%d,%d)", info.X, info.Y)
	}
	if !client.has(protocol.ServerPosUpdate) {
		t.Fatal("refused move should resync the client")
	}
}

func TestTalkReachesWholeMap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, sess, client := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 0)
	_, _, other := f.login(t, "bob", repo.Position{Map: 1, X: 60, Y: 60, Heading: 3}, 0)
	client.reset()
	other.reset()

	pkt, err := protocol.NewWriter(protocol.ServerPacket(protocol.ClientTalk)).String("hello there").Bytes()
	if err != nil {
		t.Fatalf("build talk packet: %v", err)
	}
	f.h.handleTalk(ctx, pkt, sess, client)

	if !client.has(protocol.ServerChatOverHead) || !other.has(protocol.ServerChatOverHead) {
		t.Fatal("chat should reach speaker and neighbors")
	}
}

func TestPickUpAndDropRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, sess, client := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 0)
	f.world.DropItem(1, 50, 50, items.GroundItem{ItemID: 10, Quantity: 3, Grh: 500})
	client.reset()

	f.h.handlePickUp(ctx, []byte{byte(protocol.ClientPickUp)}, sess, client)

	inv, _ := f.players.Inventory(ctx, id)
	if got, _ := inv.Get(1); got.ItemID != 10 || got.Quantity != 3 {
		t.Fatalf("inventory slot 1 = %+v, want 3x item 10", got)
	}
	if len(f.world.ItemsAt(1, 50, 50)) != 0 {
		t.Fatal("ground should be empty after pickup")
	}
	if !client.has(protocol.ServerChangeInventorySlot) || !client.has(protocol.ServerObjectDelete) {
		t.Fatalf("pickup packets missing: %v", client.tags())
	}

	client.reset()
	f.h.handleDrop(ctx, slotQtyPacket(protocol.ClientDrop, 1, 3), sess, client)

	inv, _ = f.players.Inventory(ctx, id)
	if got, _ := inv.Get(1); !got.Empty() {
		t.Fatalf("inventory slot 1 = %+v, want empty", got)
	}
	ground := f.world.ItemsAt(1, 50, 50)
	if len(ground) != 1 || ground[0].Quantity != 3 {
		t.Fatalf("ground = %+v, want the dropped stack", ground)
	}
	if !client.has(protocol.ServerObjectCreate) {
		t.Fatal("drop was not announced")
	}
}

func TestPickUpWithFullInventoryPutsItemBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, sess, client := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 0)

	full := items.Slots{}
	for slot := 1; slot <= items.MaxSlots; slot++ {
		full.Set(slot, items.Slot{ItemID: 90 + slot, Quantity: 1})
	}
	if err := f.players.SaveInventory(ctx, id, full); err != nil {
		t.Fatalf("save inventory: %v", err)
	}
	f.world.DropItem(1, 50, 50, items.GroundItem{ItemID: 10, Quantity: 1, Grh: 500})
	client.reset()

	f.h.handlePickUp(ctx, []byte{byte(protocol.ClientPickUp)}, sess, client)

	if len(f.world.ItemsAt(1, 50, 50)) != 1 {
		t.Fatal("item should be back on the ground")
	}
	if !client.has(protocol.ServerConsoleMsg) {
		t.Fatal("player should be told the inventory is full")
	}
}

func TestDropOntoFullTileCostsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, sess, client := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 0)

	inv := items.Slots{}
	inv.Set(1, items.Slot{ItemID: 10, Quantity: 5})
	f.players.SaveInventory(ctx, id, inv)
	for i := 0; i < world.MaxItemsPerTile; i++ {
		f.world.DropItem(1, 50, 50, items.GroundItem{ItemID: 10, Quantity: 1, Grh: 500})
	}
	client.reset()

	f.h.handleDrop(ctx, slotQtyPacket(protocol.ClientDrop, 1, 2), sess, client)

	after, _ := f.players.Inventory(ctx, id)
	if got, _ := after.Get(1); got.Quantity != 5 {
		t.Fatalf("inventory slot 1 quantity = %d, want untouched 5", got.Quantity)
	}
	if client.has(protocol.ServerChangeInventorySlot) {
		t.Fatal("no slot update should be sent for a refused drop")
	}
}

func TestCommerceBuyFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, sess, client := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 1000)

	npc, err := f.npcs.Create(ctx, repo.NPC{Name: "Trader", Map: 1, X: 51, Y: 50, Heading: 4, Merchant: true, Grh: 600})
	if err != nil {
		t.Fatalf("create npc: %v", err)
	}
	f.world.AddNPC(npc)
	stock := items.Slots{}
	stock.Set(1, items.Slot{ItemID: 10, Quantity: 5})
	f.merchants.SaveStock(ctx, npc.ID, stock)
	client.reset()

	f.h.handleCommerceStart(ctx, []byte{byte(protocol.ClientCommerceStart)}, sess, client)
	if _, trading := sess.Trading(); !trading {
		t.Fatal("trade window did not open")
	}
	if !client.has(protocol.ServerCommerceInit) || !client.has(protocol.ServerChangeNPCInventorySlot) {
		t.Fatalf("commerce start packets missing: %v", client.tags())
	}

	client.reset()
	f.h.handleCommerceBuy(ctx, slotQtyPacket(protocol.ClientCommerceBuy, 1, 3), sess, client)

	stats, _ := f.players.Stats(ctx, id)
	if stats.Gold != 700 {
		t.Fatalf("gold = %d, want 700", stats.Gold)
	}
	if !client.has(protocol.ServerUpdateGold) || !client.has(protocol.ServerChangeInventorySlot) {
		t.Fatalf("buy packets missing: %v", client.tags())
	}

	client.reset()
	f.h.handleCommerceEnd(ctx, []byte{byte(protocol.ClientCommerceEnd)}, sess, client)
	if _, trading := sess.Trading(); trading {
		t.Fatal("trade window should be closed")
	}
}

func TestBuyWithoutWindowIsDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, sess, client := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 1000)
	client.reset()

	f.h.handleCommerceBuy(ctx, slotQtyPacket(protocol.ClientCommerceBuy, 1, 1), sess, client)

	if len(client.tags()) != 0 {
		t.Fatalf("expected silence, got %v", client.tags())
	}
	stats, _ := f.players.Stats(ctx, id)
	if stats.Gold != 1000 {
		t.Fatalf("gold = %d, want untouched 1000", stats.Gold)
	}
}

func TestCommerceStartNeedsNearbyMerchant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, sess, client := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 0)

	npc, _ := f.npcs.Create(ctx, repo.NPC{Name: "Trader", Map: 1, X: 90, Y: 90, Heading: 4, Merchant: true})
	f.world.AddNPC(npc)
	client.reset()

	f.h.handleCommerceStart(ctx, []byte{byte(protocol.ClientCommerceStart)}, sess, client)
	if _, trading := sess.Trading(); trading {
		t.Fatal("out-of-range merchant should not open a window")
	}
	if !client.has(protocol.ServerConsoleMsg) {
		t.Fatal("player should be told there is no merchant")
	}
}

func TestBankDepositExtractRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, sess, client := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 0)

	banker, _ := f.npcs.Create(ctx, repo.NPC{Name: "Banker", Map: 1, X: 50, Y: 51, Heading: 1, Banker: true})
	f.world.AddNPC(banker)
	inv := items.Slots{}
	inv.Set(1, items.Slot{ItemID: 10, Quantity: 8})
	f.players.SaveInventory(ctx, id, inv)
	client.reset()

	f.h.handleBankStart(ctx, []byte{byte(protocol.ClientBankStart)}, sess, client)
	if !sess.BankOpen() || !client.has(protocol.ServerBankInit) {
		t.Fatal("bank window did not open")
	}

	f.h.handleBankDeposit(ctx, slotQtyPacket(protocol.ClientBankDeposit, 1, 8), sess, client)
	vault, _ := f.players.Bank(ctx, id)
	if got, _ := vault.Get(1); got.Quantity != 8 {
		t.Fatalf("vault slot 1 = %+v, want 8x item 10", got)
	}

	f.h.handleBankExtract(ctx, slotQtyPacket(protocol.ClientBankExtract, 1, 8), sess, client)
	after, _ := f.players.Inventory(ctx, id)
	if got, _ := after.Get(1); got.Quantity != 8 {
		t.Fatalf("inventory slot 1 = %+v after extract", got)
	}

	f.h.handleBankEnd(ctx, []byte{byte(protocol.ClientBankEnd)}, sess, client)
	if sess.BankOpen() {
		t.Fatal("bank window should be closed")
	}
}

func TestMeditateToggle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, sess, client := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 0)
	client.reset()

	f.h.handleMeditate(ctx, []byte{byte(protocol.ClientMeditate)}, sess, client)
	if on, _ := f.players.Flag(ctx, id, repo.FlagMeditating); !on {
		t.Fatal("meditating flag should be set")
	}
	if !client.has(protocol.ServerMeditateToggle) {
		t.Fatal("toggle packet missing")
	}

	f.h.handleMeditate(ctx, []byte{byte(protocol.ClientMeditate)}, sess, client)
	if on, _ := f.players.Flag(ctx, id, repo.FlagMeditating); on {
		t.Fatal("meditating flag should be cleared")
	}
}

func TestQuitClosesConnection(t *testing.T) {
	f := newFixture(t)
	_, sess, client := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 0)

	f.h.handleQuit(context.Background(), []byte{byte(protocol.ClientQuit)}, sess, client)
	if !client.closed {
		t.Fatal("quit should close the connection")
	}
}

func TestDisconnectRemovesAndAnnounces(t *testing.T) {
	f := newFixture(t)
	id, sess, client := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 0)
	_, _, other := f.login(t, "bob", repo.Position{Map: 1, X: 60, Y: 60, Heading: 3}, 0)
	other.reset()

	f.h.Disconnect(sess, client)

	if _, _, ok := f.world.FindPlayer(id); ok {
		t.Fatal("player should be removed from the world")
	}
	if !other.has(protocol.ServerCharacterRemove) {
		t.Fatal("neighbors should see the removal")
	}
}

func TestDisconnectOfReplacedSocketKeepsNewLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, oldSess, oldClient := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 0)

	newSess := net.NewSession()
	newClient := &fakeClient{}
	f.h.handleLogin(ctx, loginPacket(t, "alice", "hunter2"), newSess, newClient)
	if !newSess.Authenticated() {
		t.Fatal("second login should succeed")
	}

	f.h.Disconnect(oldSess, oldClient)
	if _, _, ok := f.world.FindPlayer(id); !ok {
		t.Fatal("stale socket disconnect must not evict the new login")
	}
}

func TestSecondLoginClosesFirstSocket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, oldClient := f.login(t, "alice", repo.Position{Map: 1, X: 50, Y: 50, Heading: 3}, 0)

	newSess := net.NewSession()
	newClient := &fakeClient{}
	f.h.handleLogin(ctx, loginPacket(t, "alice", "hunter2"), newSess, newClient)
	if !newSess.Authenticated() {
		t.Fatal("second login should succeed")
	}
	if !oldClient.isClosed() {
		t.Fatal("superseded socket must be closed")
	}
	if !oldClient.has(protocol.ServerConsoleMsg) {
		t.Fatal("superseded socket should be told why it was dropped")
	}
	if newClient.isClosed() {
		t.Fatal("new socket must stay open")
	}
}

func TestDropRollbackReclaimsFloorStack(t *testing.T) {
	f := newFixture(t)
	f.world.DropItem(1, 60, 60, items.GroundItem{ItemID: 10, Quantity: 5, Grh: 500})

	f.h.reclaim(1, 60, 60)
	if got := f.world.ItemsAt(1, 60, 60); len(got) != 0 {
		t.Fatalf("expected rollback to take the stack back, got %+v", got)
	}
	// an already-empty tile only logs
	f.h.reclaim(1, 60, 60)
}

func TestPickUpRollbackOnFullTileLosesNoMore(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < world.MaxItemsPerTile; i++ {
		f.world.DropItem(1, 61, 61, items.GroundItem{ItemID: 10, Quantity: 1, Grh: 500})
	}

	f.h.redrop(1, 61, 61, items.GroundItem{ItemID: 10, Quantity: 1, Grh: 500})
	if got := len(f.world.ItemsAt(1, 61, 61)); got != world.MaxItemsPerTile {
		t.Fatalf("expected tile to stay at cap, got %d", got)
	}

	f.world.PickUpItem(1, 61, 61)
	f.h.redrop(1, 61, 61, items.GroundItem{ItemID: 11, Quantity: 2, Grh: 501})
	stacks := f.world.ItemsAt(1, 61, 61)
	if len(stacks) != world.MaxItemsPerTile || stacks[len(stacks)-1].ItemID != 11 {
		t.Fatalf("expected rollback stack back on tile, got %+v", stacks)
	}
}
