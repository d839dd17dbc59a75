// Package app wires the server together and runs it until a signal.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"emberfall/server/internal/config"
	"emberfall/server/internal/economy"
	"emberfall/server/internal/game"
	"emberfall/server/internal/logging"
	servernet "emberfall/server/internal/net"
	"emberfall/server/internal/repo"
	"emberfall/server/internal/storage"
	"emberfall/server/internal/tick"
	"emberfall/server/internal/world"
)

const shutdownTimeout = 10 * time.Second

// Run starts the server and blocks until the context is cancelled or a
// SIGINT/SIGTERM arrives.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	players := repo.NewPlayerRepo(store)
	npcs := repo.NewNPCRepo(store)
	merchants := repo.NewMerchantRepo(store)
	catalog := repo.NewItemRepo(store)
	tuning := repo.NewTuningRepo(store)
	ground := repo.NewGroundItemRepo(store)

	if err := seed(ctx, store, players, npcs, merchants, catalog, tuning, log); err != nil {
		return fmt.Errorf("seed world: %w", err)
	}

	w := world.NewManager(cfg.MapWidth, cfg.MapHeight, ground, log)
	maps, err := spawnNPCs(ctx, npcs, w)
	if err != nil {
		return fmt.Errorf("spawn npcs: %w", err)
	}
	for mapID := range maps {
		if err := w.SeedGround(ctx, mapID); err != nil {
			log.Warnw("load ground items", "map", mapID, "error", err)
		}
	}

	locks := world.NewLockTable()
	trade := economy.NewService(players, merchants, catalog, locks, log)

	sched := tick.NewScheduler(cfg.TickInterval, w, log)
	sched.Register(tick.NewHungerThirstEffect(players, tuning, cfg.TickInterval))
	sched.Register(tick.NewMeditationEffect(players, tuning, cfg.TickInterval))
	sched.Start()
	defer w.Wait()
	defer sched.Stop()

	handlers := game.NewHandlers(w, players, npcs, merchants, catalog, trade, locks, sched, log)
	dispatcher := servernet.NewDispatcher(log)
	handlers.Register(dispatcher)
	ws := servernet.NewServer(dispatcher, log, handlers.Disconnect)

	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: mux}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", cfg.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-runCtx.Done():
		log.Infow("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warnw("http shutdown", "error", err)
		}
	}
	return nil
}

// spawnNPCs loads every persisted NPC into the world and returns the set of
// maps that have content.
func spawnNPCs(ctx context.Context, npcs *repo.NPCRepo, w *world.Manager) (map[int]struct{}, error) {
	maps := map[int]struct{}{1: {}}
	// maps are numbered from 1; stop at the first empty one past the start
	for mapID := 1; mapID <= 1000; mapID++ {
		list, err := npcs.ListByMap(ctx, mapID)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			if mapID > 1 {
				break
			}
			continue
		}
		maps[mapID] = struct{}{}
		for _, npc := range list {
			w.AddNPC(npc)
		}
	}
	return maps, nil
}
