package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Config holds database configuration
type Config struct {
	Path string
	// ReadOnly opens the database with mode=ro. The geofence table is owned
	// by the external CRUD layer; this service only reads it.
	ReadOnly bool
}

// dsn builds a modernc.org/sqlite connection string
func (c Config) dsn() string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	if c.ReadOnly {
		q.Set("mode", "ro")
	} else {
		q.Add("_pragma", "foreign_keys(1)")
	}
	return "file:" + c.Path + "?" + q.Encode()
}

// Open opens and pings the database. Writable databases get their parent
// directory created.
func Open(cfg Config, logger *logrus.Logger) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("failed to open database: empty path")
	}
	if !cfg.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Path, err)
	}

	logger.WithFields(logrus.Fields{
		"component": "database",
		"path":      cfg.Path,
		"readOnly":  cfg.ReadOnly,
	}).Info("database opened")
	return db, nil
}

// Transaction executes a function within a database transaction
func Transaction(db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
