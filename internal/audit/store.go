package audit

import (
	"fmt"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AuditRecord is the persisted form of an Event.
type AuditRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	EventType  string    `gorm:"index;not null"`
	Timestamp  time.Time `gorm:"index;not null"`
	UserName   string
	Database   string
	SQLText    string `gorm:"type:text"`
	Operation  string
	Reason     string
	Level      string
	Success    bool
	Approved   bool
	DurationMS int64
	Rows       *int
}

// TableName keeps the table name stable across GORM naming changes.
func (AuditRecord) TableName() string { return "audit_events" }

// Store persists audit events to a PostgreSQL table. It implements Sink;
// failed writes are logged and dropped, never surfaced.
type Store struct {
	db *gorm.DB
}

// StoreConfig holds audit store configuration.
type StoreConfig struct {
	// DSN for the audit database. May point at the same server as the
	// queried database but should use a dedicated role.
	DSN      string
	MaxConns int
	LogLevel logger.LogLevel
}

// NewStore opens the audit database and runs migrations.
func NewStore(cfg StoreConfig) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:      logger.Default.LogMode(cfg.LogLevel),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run audit migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// runMigrations applies the audit schema with gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "001_audit_events",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&AuditRecord{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("audit_events")
			},
		},
	})
	return m.Migrate()
}

// Log persists a redacted event. Best-effort: failures are logged at
// warn level and swallowed.
func (s *Store) Log(event Event) {
	rec := AuditRecord{
		EventType:  string(event.Type),
		Timestamp:  event.Timestamp,
		UserName:   event.User,
		Database:   event.Database,
		SQLText:    Redact(event.SQL),
		Operation:  event.Operation,
		Reason:     Redact(event.Reason),
		Level:      event.Level,
		Success:    event.Success,
		Approved:   event.Approved,
		DurationMS: event.DurationMS,
		Rows:       event.Rows,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		log.Warn().Err(err).Str("auditType", string(event.Type)).Msg("Failed to persist audit event")
	}
}

// Close releases the underlying connections.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
