package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/model"
	"github.com/sathwikvintha/release-automation/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.StatusRepository and storage.RunRepository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository opens (and migrates) the SQLite database.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if err := migrations.Up(ctx, db, cfg.Logger); err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// Initialize replaces the status record with every known step IDLE.
func (r *Repository) Initialize(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM step_status`); err != nil {
		return fmt.Errorf("could not clear status record: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO step_status (step, status, updated_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("could not prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for _, step := range model.KnownSteps() {
		if _, err := stmt.ExecContext(ctx, step, model.StepStatusIdle, now); err != nil {
			return fmt.Errorf("could not seed step %s: %w", step, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Initialized status record")
	return nil
}

// Read returns the status record. An empty table returns the default record.
func (r *Repository) Read(ctx context.Context) (model.StatusRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT step, status FROM step_status`)
	if err != nil {
		return nil, fmt.Errorf("could not query status record: %w", err)
	}
	defer rows.Close()

	record := model.StatusRecord{}
	for rows.Next() {
		var step string
		var status model.StepStatus
		if err := rows.Scan(&step, &status); err != nil {
			return nil, fmt.Errorf("could not scan step status: %w", err)
		}
		record[step] = status
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step status: %w", err)
	}

	if len(record) == 0 {
		return model.DefaultStatusRecord(), nil
	}

	return record, nil
}

// Write upserts a single step status. A write on an empty table seeds the
// known steps first so the record keeps the full vocabulary.
func (r *Repository) Write(ctx context.Context, step string, status model.StepStatus) error {
	if err := status.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Unix()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM step_status`).Scan(&count); err != nil {
		return fmt.Errorf("could not count steps: %w", err)
	}
	if count == 0 {
		for _, s := range model.KnownSteps() {
			if _, err := tx.ExecContext(ctx, `INSERT INTO step_status (step, status, updated_at) VALUES (?, ?, ?)`, s, model.StepStatusIdle, now); err != nil {
				return fmt.Errorf("could not seed step %s: %w", s, err)
			}
		}
	}

	query := `
		INSERT INTO step_status (step, status, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(step) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, step, status, now); err != nil {
		return fmt.Errorf("could not write step status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Step %s status set to %s", step, status)
	return nil
}
