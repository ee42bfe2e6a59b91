package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/mintfolio/mintfolio-api/internal/config"
)

// Database represents a database connection
type Database struct {
	db *sqlx.DB
}

// NewDatabase creates a new database connection. The driver comes from
// config: "postgres" for a server deployment, "sqlite" for a local
// single-file one.
func NewDatabase(cfg config.DatabaseConfig) (*Database, error) {
	var db *sqlx.DB
	var err error

	switch cfg.Driver {
	case "postgres":
		connStr := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name,
		)
		db, err = sqlx.Connect("postgres", connStr)
	case "sqlite":
		file := cfg.File
		if file == "" {
			file = "mintfolio.db"
		}
		db, err = sqlx.Connect("sqlite", "file:"+file)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	if cfg.Driver == "postgres" {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	} else {
		// modernc sqlite serializes writers; a single connection avoids
		// SQLITE_BUSY under concurrent handlers.
		db.SetMaxOpenConns(1)
	}

	// Check the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &Database{db: db}
	if err := d.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return d, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// GetDB returns the sqlx.DB instance
func (d *Database) GetDB() *sqlx.DB {
	return d.db
}

// Rebind translates ?-style placeholders to the connected driver's
// bindvar syntax.
func (d *Database) Rebind(query string) string {
	return d.db.Rebind(query)
}

// Transaction executes a function within a transaction
func (d *Database) Transaction(fn func(*sqlx.Tx) error) error {
	tx, err := d.db.Beginx()
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // re-throw panic after rollback
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// ensureSchema creates the tables the service needs. The DDL sticks to
// the subset both postgres and sqlite accept.
func (d *Database) ensureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS market_items (
			token_id BIGINT PRIMARY KEY,
			seller TEXT NOT NULL,
			price BIGINT NOT NULL,
			owner TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS market_events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			token_id BIGINT NOT NULL,
			seller TEXT NOT NULL,
			buyer TEXT NOT NULL,
			price BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			address TEXT PRIMARY KEY,
			balance BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS market_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			address TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
