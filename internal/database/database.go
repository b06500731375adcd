package database

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
)

var defaultCapabilities = []entities.Capability{
	{Codename: entities.CapabilityBorrow, Name: "Can borrow books"},
	{Codename: entities.CapabilityReturn, Name: "Can return books"},
}

// newLogger writes through the standard logger. Lookups that find nothing are
// expected (ISBN uniqueness, borrower links) and are not reported.
func newLogger(level logger.LogLevel) logger.Interface {
	return logger.New(log.New(log.Writer(), "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// sqliteParams makes every sqlite transaction take the write lock up front so
// concurrent writers queue on the busy timeout instead of failing mid-transaction.
const sqliteParams = "_busy_timeout=5000&_foreign_keys=1&_txlock=immediate"

type Database struct {
	DB     *gorm.DB
	Driver config.DatabaseDriver
}

func NewDatabase(cfg config.Database) (*Database, error) {
	level := logger.Warn
	if cfg.LogSQL {
		level = logger.Info
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DatabaseDriverSQLite, "":
		cfg.Driver = config.DatabaseDriverSQLite
		dialector = sqlite.Open(SQLiteDSN(cfg.Path))
	case config.DatabaseDriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("DATABASE_DSN is required for the postgres driver")
		}
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newLogger(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == config.DatabaseDriverSQLite && isMemoryPath(cfg.Path) {
		// Every pooled connection would otherwise get its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	database := &Database{DB: db, Driver: cfg.Driver}

	if err := database.Migrate(); err != nil {
		return nil, err
	}
	if err := database.seedCapabilities(); err != nil {
		return nil, fmt.Errorf("failed to seed capabilities: %w", err)
	}

	target := cfg.Path
	if cfg.Driver == config.DatabaseDriverPostgres {
		target = "postgres"
	}
	log.Printf("Database initialized successfully at %s", target)

	return database, nil
}

// NewSQLite opens (or creates) a sqlite database at path with the default settings.
func NewSQLite(path string) (*Database, error) {
	return NewDatabase(config.Database{Driver: config.DatabaseDriverSQLite, Path: path})
}

func (d *Database) Migrate() error {
	err := d.DB.AutoMigrate(
		&entities.User{},
		&entities.Capability{},
		&entities.UserCapability{},
		&entities.Book{},
		&entities.Borrower{},
		&entities.Borrowing{},
		&entities.AuditEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the underlying connection is alive.
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (d *Database) seedCapabilities() error {
	for _, capability := range defaultCapabilities {
		capability := capability
		result := d.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "codename"}},
			DoNothing: true,
		}).Create(&capability)
		if result.Error != nil {
			return fmt.Errorf("failed to create capability %s: %w", capability.Codename, result.Error)
		}
		if result.RowsAffected > 0 {
			log.Printf("Created capability: %s", capability.Codename)
		}
	}
	return nil
}

// SQLiteDSN appends the connection parameters the application relies on to a
// sqlite path.
func SQLiteDSN(path string) string {
	if path == "" {
		path = config.DefaultDatabasePath
	}
	if strings.Contains(path, "?") {
		return path + "&" + sqliteParams
	}
	return path + "?" + sqliteParams
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}
