package database

import (
	"fmt"
	"strings"
	"time"

	applog "github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/models"
	"github.com/lemarcheluxe/backend/internal/telemetry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB holds the database connection
var DB *gorm.DB

// sqlitePrefix selects the embedded driver, used for local runs and tests
const sqlitePrefix = "sqlite://"

// Initialize opens the database named by databaseURL and stores it in DB.
// URLs starting with sqlite:// open a SQLite file (or :memory:).
func Initialize(databaseURL string, development bool) error {
	gormLogger := logger.Default
	if development {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(databaseURL, sqlitePrefix) {
		dialector = sqlite.Open(strings.TrimPrefix(databaseURL, sqlitePrefix))
	} else {
		dialector = postgres.Open(databaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Use(telemetry.GORMTracingPlugin()); err != nil {
		return fmt.Errorf("failed to register tracing plugin: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	DB = db
	applog.Log.Info("Database connected", zap.String("driver", db.Dialector.Name()))
	return nil
}

// OpenSQLite opens a SQLite database with the settings used in tests.
// An in-memory database is pinned to a single connection so every query sees it.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	return openSQLite(dsn, true)
}

// OpenSQLiteWithForeignKeys opens a named in-memory database that creates
// foreign keys on migrate and enforces them, like Postgres does.
func OpenSQLiteWithForeignKeys(name string) (*gorm.DB, error) {
	return openSQLite("file:"+name+"?mode=memory&_foreign_keys=1", false)
}

func openSQLite(dsn string, skipForeignKeys bool) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: skipForeignKeys,
		TranslateError:                           true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Models lists every table owned by the service, in dependency order
func Models() []interface{} {
	return []interface{}{
		&models.Profile{},
		&models.PasswordReset{},
		&models.Product{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
	}
}

// Migrate runs auto-migration for all models on db
func Migrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		if err := createIndexes(db); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	applog.Log.Info("Database migrations completed")
	return nil
}

// createIndexes adds the Postgres-only indexes AutoMigrate cannot express
func createIndexes(db *gorm.DB) error {
	// pg_trgm backs the ILIKE user and listing search
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS pg_trgm").Error; err != nil {
		applog.WarnWithFields("Could not create pg_trgm extension, search falls back to sequential scans", err)
	}

	statements := []string{
		"CREATE INDEX IF NOT EXISTS idx_profiles_email_trgm ON profiles USING gin (email gin_trgm_ops)",
		"CREATE INDEX IF NOT EXISTS idx_profiles_full_name_trgm ON profiles USING gin (full_name gin_trgm_ops)",
		"CREATE INDEX IF NOT EXISTS idx_products_title_trgm ON products USING gin (title gin_trgm_ops)",
		"CREATE INDEX IF NOT EXISTS idx_products_user_status_created ON products (user_id, status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages (conversation_id, sender_id) WHERE read = false",
		"CREATE INDEX IF NOT EXISTS idx_conversations_product ON conversations (product_id, created_at)",
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			applog.WarnWithFields("Index creation failed", err, zap.String("statement", stmt))
		}
	}
	return nil
}

// Close closes the database connection
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks database connectivity
func Health() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
