// Package sqlite provides a SQLite-backed metadata store.
//
// SQLite is a lightweight, file-based database suitable for local development
// and single-node deployments. Memory rows live in a plain table keyed by
// memory_id, with secondary indexes on user_id, type and timestamp.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/evermem/evermem-go/pkg/storage"
)

// tableName is the table holding memory rows.
const tableName = "memories"

// Client implements MetadataStore using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB
}

// Config contains configuration for creating a SQLite metadata store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewClient creates a new SQLite metadata store client.
//
// Parameters:
//   - cfg: Configuration containing the database file path
//
// Returns:
//   - *Client: The SQLite client instance
//   - error: Error if the database cannot be opened
func NewClient(cfg *Config) (*Client, error) {
	// Create parent directory if it doesn't exist
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	return &Client{db: db}, nil
}

// EnsureSchema creates the memories table and its indexes if absent.
func (c *Client) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			memory_id TEXT PRIMARY KEY,
			source TEXT,
			content TEXT NOT NULL,
			type TEXT,
			timestamp DATETIME NOT NULL,
			user_id TEXT,
			embedding TEXT
		)
	`, tableName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}

	for _, col := range []string{"user_id", "type", "timestamp"} {
		indexQuery := fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)
		`, tableName, col, tableName, col)
		if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
			return fmt.Errorf("EnsureSchema: %w", err)
		}
	}

	return nil
}

// Insert inserts a memory row.
//
// Inserting an id that already exists returns storage.ErrDuplicateID.
func (c *Client) Insert(ctx context.Context, m *storage.Memory) error {
	embeddingVal, err := encodeEmbedding(m.Embedding)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (memory_id, source, content, type, timestamp, user_id, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, tableName)

	_, err = c.db.ExecContext(ctx, query,
		m.MemoryID,
		m.Source,
		m.Content,
		m.Type,
		m.Timestamp.UTC(),
		nullString(m.UserID),
		embeddingVal,
	)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) &&
			(serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || serr.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return fmt.Errorf("Insert: %s: %w", m.MemoryID, storage.ErrDuplicateID)
		}
		return fmt.Errorf("Insert: %w", err)
	}

	return nil
}

// Update overwrites an existing memory row in place.
//
// Updating an id with no row returns storage.ErrNotFound.
func (c *Client) Update(ctx context.Context, m *storage.Memory) error {
	embeddingVal, err := encodeEmbedding(m.Embedding)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET source = ?, content = ?, type = ?, timestamp = ?, user_id = ?, embedding = ?
		WHERE memory_id = ?
	`, tableName)

	result, err := c.db.ExecContext(ctx, query,
		m.Source,
		m.Content,
		m.Type,
		m.Timestamp.UTC(),
		nullString(m.UserID),
		embeddingVal,
		m.MemoryID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("Update: %s: %w", m.MemoryID, storage.ErrNotFound)
	}

	return nil
}

// Delete removes a memory row. Deleting an absent id is not an error.
func (c *Client) Delete(ctx context.Context, memoryID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE memory_id = ?", tableName)

	if _, err := c.db.ExecContext(ctx, query, memoryID); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	return nil
}

// GetByIDs fetches the rows for the given ids. Ids with no row are simply
// absent from the result; row order is unspecified.
func (c *Client) GetByIDs(ctx context.Context, ids []string) ([]*storage.Memory, error) {
	ids = storage.DedupeIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT memory_id, source, content, type, timestamp, user_id, embedding
		FROM %s
		WHERE memory_id IN (%s)
	`, tableName, placeholders(len(ids)))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetByIDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByIDs: %w", err)
		}
		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByIDs: %w", err)
	}

	return memories, nil
}

// DeleteAllForUser removes every row owned by userID and reports how many
// rows went away. An empty userID targets rows written without user scope.
func (c *Client) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	var (
		query string
		args  []interface{}
	)
	if userID == "" {
		query = fmt.Sprintf("DELETE FROM %s WHERE user_id IS NULL", tableName)
	} else {
		query = fmt.Sprintf("DELETE FROM %s WHERE user_id = ?", tableName)
		args = append(args, userID)
	}

	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("DeleteAllForUser: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteAllForUser: %w", err)
	}

	return int(rowsAffected), nil
}

// Ping verifies the database connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// scanMemory scans a memory row.
func scanMemory(rows *sql.Rows) (*storage.Memory, error) {
	var (
		memory       storage.Memory
		userID       sql.NullString
		embeddingStr sql.NullString
	)

	if err := rows.Scan(
		&memory.MemoryID,
		&memory.Source,
		&memory.Content,
		&memory.Type,
		&memory.Timestamp,
		&userID,
		&embeddingStr,
	); err != nil {
		return nil, err
	}

	memory.UserID = userID.String

	embedding, err := decodeEmbedding(embeddingStr)
	if err != nil {
		return nil, fmt.Errorf("parse embedding: %w", err)
	}
	memory.Embedding = embedding

	return &memory, nil
}
