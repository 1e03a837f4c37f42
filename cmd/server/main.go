package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentchat/internal/adminkey"
	"github.com/agentchat/internal/blob"
	"github.com/agentchat/internal/bus"
	"github.com/agentchat/internal/config"
	"github.com/agentchat/internal/handler"
	"github.com/agentchat/internal/logger"
	"github.com/agentchat/internal/presence"
	"github.com/agentchat/internal/ratelimit"
	"github.com/agentchat/internal/repository"
	"github.com/agentchat/internal/retention"
	"github.com/agentchat/internal/startup"
	"github.com/agentchat/internal/storage"
	memorystore "github.com/agentchat/internal/storage/memory"
	redisstore "github.com/agentchat/internal/storage/redis"
	"github.com/agentchat/internal/typing"
	"github.com/agentchat/internal/webhook"
)

func main() {
	logger.SetPrefix("server")
	migrateOnly := flag.Bool("migrate", false, "run database migrations and exit")
	flag.Parse()

	logger.Info("starting chat server")
	cfg := config.Load()

	// без внешнего DATABASE_URL поднимаем встроенный Postgres с данными в database_path
	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if cfg.Database.URL == "" {
		var err error
		embeddedDB, err = startup.StartEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 2

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second)
	defer pool.Close()

	if err := startup.RunMigrations(pool); err != nil {
		logger.Errorf("migrations: %v", err)
		os.Exit(1)
	}
	logger.Info("database connected, migrations applied")
	if *migrateOnly {
		return
	}

	roomRepo := repository.NewRoomRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	fileRepo := repository.NewFileRepository(pool)
	reactRepo := repository.NewReactionRepository(pool)
	pinRepo := repository.NewPinRepository(pool)
	cursorRepo := repository.NewCursorRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	webhookRepo := repository.NewWebhookRepository(pool)
	bookmarkRepo := repository.NewBookmarkRepository(pool)

	backfillRoomAdminKeys(roomRepo, cfg.Database.DataDir)

	var windows storage.WindowStore
	if cfg.Redis.URL != "" {
		redisCtx, redisCancel := context.WithTimeout(context.Background(), 10*time.Second)
		rc, err := redisstore.New(redisCtx, cfg.Redis.URL)
		redisCancel()
		if err != nil {
			logger.Errorf("redis: %v (falling back to in-memory counters)", err)
			windows = memorystore.New()
		} else {
			logger.Info("redis connected for rate limit counters")
			windows = rc
		}
	} else {
		windows = memorystore.New()
	}
	defer windows.Close()

	blobs, err := blob.New(cfg.BlobDir)
	if err != nil {
		logger.Errorf("blob store: %v", err)
		os.Exit(1)
	}

	events := bus.New(cfg.RingCapacityPerRoom, cfg.SubscriberBuffer)
	primeBus(roomRepo, events)

	presenceTracker := presence.NewTracker()
	typingTracker := typing.NewTracker(cfg.TypingTTL, cfg.TypingDedup, windows)
	limiter := ratelimit.New(windows)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	var bgWg sync.WaitGroup

	typingDone := make(chan struct{})
	bgWg.Add(1)
	go func() {
		defer bgWg.Done()
		typingTracker.Run(typingDone)
	}()

	sweeper := retention.NewSweeper(msgRepo, events, cfg.RetentionInterval)
	bgWg.Add(1)
	go func() {
		defer bgWg.Done()
		sweeper.Run(bgCtx)
	}()

	dispatcher := webhook.NewDispatcher(webhookRepo, events)
	bgWg.Add(1)
	go func() {
		defer bgWg.Done()
		dispatcher.Run(bgCtx)
	}()

	router := handler.NewRouter(handler.Deps{
		Rooms:     handler.NewRoomHandler(roomRepo, msgRepo, profileRepo, events, limiter, cfg.RateLimit.RoomsPerHour),
		Messages:  handler.NewMessageHandler(roomRepo, msgRepo, reactRepo, fileRepo, typingTracker, events, limiter, cfg.RateLimit.MessagesPerMinute),
		Threads:   handler.NewThreadHandler(msgRepo),
		Reactions: handler.NewReactionHandler(roomRepo, msgRepo, reactRepo, events),
		Pins:      handler.NewPinHandler(roomRepo, msgRepo, pinRepo, events),
		Cursors:   handler.NewCursorHandler(roomRepo, cursorRepo, events),
		Presence:  handler.NewPresenceHandler(roomRepo, presenceTracker, typingTracker, events),
		Files:     handler.NewFileHandler(roomRepo, msgRepo, fileRepo, blobs, events, limiter, cfg.FileMaxBytes, cfg.RateLimit.UploadsPerMinute),
		Profiles:  handler.NewProfileHandler(profileRepo, events),
		Bookmarks: handler.NewBookmarkHandler(roomRepo, bookmarkRepo),
		Webhooks:  handler.NewWebhookHandler(roomRepo, webhookRepo),
		Stream:    handler.NewStreamHandler(roomRepo, msgRepo, presenceTracker, events, cfg.HeartbeatInterval),
		System:    handler.NewSystemHandler(roomRepo, msgRepo, fileRepo, presenceTracker, limiter, cfg.RateLimit),

		CORSAllowedOrigins: splitOrigins(cfg.CORSAllowedOrigins),
		StaticDir:          staticDirIfPresent(cfg.StaticDir),
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.Addr())
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")

	events.Close()
	close(typingDone)
	bgCancel()
	bgWg.Wait()
	logger.Info("background workers stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// backfillRoomAdminKeys выпускает ключи комнатам, у которых их ещё нет
// (seed-комнаты, базы со старых версий). Открытый текст ключей уходит в файл
// admin_keys_backfill.txt рядом с данными, в лог попадают только имена комнат.
func backfillRoomAdminKeys(rooms *repository.RoomRepository, dataDir string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	keyless, err := rooms.ListWithoutAdminKey(ctx)
	if err != nil {
		logger.Errorf("admin key backfill: %v", err)
		os.Exit(1)
	}
	if len(keyless) == 0 {
		return
	}

	var lines []byte
	for _, room := range keyless {
		key, hash, err := adminkey.Generate()
		if err != nil {
			logger.Errorf("admin key generate: %v", err)
			os.Exit(1)
		}
		if err := rooms.SetAdminKeyHash(ctx, room.ID, hash); err != nil {
			logger.Errorf("admin key store: %v", err)
			os.Exit(1)
		}
		lines = append(lines, []byte(room.Name+"\t"+key+"\n")...)
		logger.Infof("generated admin key %s for room %q", adminkey.MaskKey(key), room.Name)
	}

	path := filepath.Join(dataDir, "admin_keys_backfill.txt")
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		logger.Errorf("admin key backfill dir: %v", err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, lines, 0o600); err != nil {
		logger.Errorf("admin key backfill write: %v", err)
		os.Exit(1)
	}
	logger.Infof("admin keys for %d room(s) written to %s", len(keyless), path)
}

// primeBus выставляет шине high-water каждой комнаты из rooms.last_seq,
// чтобы replay со since_seq после рестарта уходил в БД, а не в пустое кольцо.
func primeBus(rooms *repository.RoomRepository, events *bus.Bus) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	list, err := rooms.List(ctx, true)
	if err != nil {
		logger.Errorf("prime bus: %v", err)
		return
	}
	for _, room := range list {
		events.Prime(room.ID, room.LastSeq)
	}
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func staticDirIfPresent(dir string) string {
	if dir == "" {
		return ""
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		logger.Infof("static dir %s not found, API-only mode", dir)
		return ""
	}
	return dir
}
