package startup

import (
	"fmt"
	"os"
	"path/filepath"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"

	"github.com/teamchat/internal/logger"
)

// EmbeddedPG — параметры встроенного Postgres для режима -dev и интеграционных тестов.
type EmbeddedPG struct {
	Port     uint32
	DataDir  string
	User     string
	Password string
	Database string
}

// DevEmbeddedPG — значения по умолчанию для локального запуска без внешней БД.
func DevEmbeddedPG() EmbeddedPG {
	return EmbeddedPG{
		Port:     5432,
		DataDir:  filepath.Join(".", ".pgdata"),
		User:     "teamchat",
		Password: "teamchat_secret",
		Database: "teamchat",
	}
}

// URL — строка подключения к запущенному экземпляру.
func (e EmbeddedPG) URL() string {
	return fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable", e.User, e.Password, e.Port, e.Database)
}

// StartEmbeddedPostgres поднимает Postgres в DataDir. Остановка — вызовом Stop у результата.
func StartEmbeddedPostgres(e EmbeddedPG) (*embeddedpostgres.EmbeddedPostgres, error) {
	if err := os.MkdirAll(e.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}
	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(e.Port).
			Username(e.User).
			Password(e.Password).
			Database(e.Database).
			DataPath(e.DataDir).
			RuntimePath(filepath.Join(os.TempDir(), fmt.Sprintf("teamchat-pg-runtime-%d", e.Port))),
	)
	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	logger.Infof("embedded PostgreSQL running on port %d", e.Port)
	return db, nil
}
