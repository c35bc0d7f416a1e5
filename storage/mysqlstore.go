package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// MySQLStore keeps blobs in the image_blobs table. Tile images are small
// enough that a LONGBLOB column is a perfectly serviceable object store
// for a single-database deployment.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore creates a blob store over an existing connection.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// Upload stores the blob, replacing any previous content under the key.
func (s *MySQLStore) Upload(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO image_blobs (object_key, data)
		VALUES (?, ?) ON DUPLICATE KEY UPDATE data = VALUES(data)`, key, data)
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", key, err)
	}
	return nil
}

// Download retrieves the blob stored under the key.
func (s *MySQLStore) Download(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM image_blobs WHERE object_key = ?`, key).Scan(&data)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", key, err)
	}
	return data, nil
}
