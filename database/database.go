package database

import (
	"database/sql"
	"fmt"
	"time"

	"marine-scan-pipeline/config"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
)

// Database wraps the MySQL connection used by the registry, the scan
// orchestrator, the analysis runner and the aggregator.
type Database struct {
	db *sql.DB
}

// NewDatabase opens the MySQL connection and waits for it to become
// reachable with exponential backoff.
func NewDatabase(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	waitInterval := 1 * time.Second
	for {
		if err := db.Ping(); err == nil {
			break
		} else {
			log.Warnf("Database connection failed, retrying in %v: %v", waitInterval, err)
		}
		time.Sleep(waitInterval)
		waitInterval *= 2
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Info("Established db connection.")
	return &Database{db: db}, nil
}

// NewFromDB wraps an existing connection. Used by tests with sqlmock.
func NewFromDB(db *sql.DB) *Database {
	return &Database{db: db}
}

// GetDB exposes the underlying connection for components that need it
// directly (e.g. the blob store).
func (d *Database) GetDB() *sql.DB {
	return d.db
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}
