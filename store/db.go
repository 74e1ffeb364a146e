// Package store persists domain entities to PostgreSQL via GORM. It
// generalizes the teacher's db/postgres.go connection-pool and migration
// pattern from a single RabbitLog table to the full IDP schema, and
// replaces its panic-on-error admin-tool style with ordinary error
// returns, since these repositories are called from long-running worker
// goroutines rather than a one-shot CLI command.
package store

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"idp.evalgo.org/domain"
)

// DB wraps a configured GORM connection to the job store.
type DB struct {
	gorm *gorm.DB
}

// Open connects to dsn and configures the connection pool the same way
// the teacher's PGInfo did: MaxIdleConns 10, MaxOpenConns 100,
// ConnMaxLifetime 1h, overridable via the supplied values.
func Open(dsn string, maxIdleConns, maxOpenConns int, connMaxLifetime time.Duration) (*DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("access underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	return &DB{gorm: gdb}, nil
}

// AutoMigrate creates or updates every table the job store owns,
// generalizing PGMigrations beyond the single RabbitLog model.
func (db *DB) AutoMigrate() error {
	return db.gorm.AutoMigrate(
		&domain.Job{},
		&domain.Rule{},
		&domain.RuleVersion{},
		&domain.Pipeline{},
		&domain.PipelineExecution{},
		&domain.Webhook{},
		&domain.PushLog{},
		&domain.AuditLogEntry{},
	)
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *DB) Jobs() *JobRepository               { return &JobRepository{db: db.gorm} }
func (db *DB) Rules() *RuleRepository             { return &RuleRepository{db: db.gorm} }
func (db *DB) Webhooks() *WebhookRepository       { return &WebhookRepository{db: db.gorm} }
func (db *DB) PushLogs() *PushLogRepository       { return &PushLogRepository{db: db.gorm} }
func (db *DB) Pipelines() *PipelineRepository     { return &PipelineRepository{db: db.gorm} }
func (db *DB) AuditLog() *AuditLogRepository      { return &AuditLogRepository{db: db.gorm} }
