package startup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentchat/internal/config"
	"github.com/agentchat/internal/logger"
	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
)

// StartEmbeddedPostgres поднимает встроенный PostgreSQL с данными в cfg.Database.DataDir
// и прописывает DSN в cfg.Database.URL. Используется, когда внешний DATABASE_URL не задан.
func StartEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5433
		user     = "agentchat"
		password = "agentchat_local"
		database = "agentchat"
	)

	dataDir := cfg.Database.DataDir
	if dataDir == "" {
		dataDir = "./data/pg"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "agentchat-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d (data in %s)", port, dataDir)
	return db, nil
}
