// Package postgres provides a PostgreSQL-backed metadata store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/evermem/evermem-go/pkg/storage"
)

// tableName is the table holding memory rows.
const tableName = "memories"

// Client is a PostgreSQL metadata store client.
type Client struct {
	db *sql.DB
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewClient creates a new PostgreSQL client.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	return &Client{db: db}, nil
}

// EnsureSchema creates the memories table and its indexes if absent.
func (c *Client) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			memory_id VARCHAR(100) PRIMARY KEY,
			source VARCHAR(50),
			content TEXT NOT NULL,
			type VARCHAR(100),
			timestamp TIMESTAMPTZ NOT NULL,
			user_id VARCHAR(100),
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
func (c *Client) Insert(ctx context.Context, m *storage.Memory) error {
	embeddingVal, err := encodeEmbedding(m.Embedding)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (memory_id, source, content, type, timestamp, user_id, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
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
		var perr *pq.Error
		if errors.As(err, &perr) && perr.Code == "23505" {
			return fmt.Errorf("Insert: %s: %w", m.MemoryID, storage.ErrDuplicateID)
		}
		return fmt.Errorf("Insert: %w", err)
	}

	return nil
}

// Update overwrites an existing memory row in place.
func (c *Client) Update(ctx context.Context, m *storage.Memory) error {
	embeddingVal, err := encodeEmbedding(m.Embedding)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET source = $1, content = $2, type = $3, timestamp = $4, user_id = $5, embedding = $6
		WHERE memory_id = $7
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
	query := fmt.Sprintf("DELETE FROM %s WHERE memory_id = $1", tableName)

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

	query := fmt.Sprintf(`
		SELECT memory_id, source, content, type, timestamp, user_id, embedding
		FROM %s
		WHERE memory_id = ANY($1)
	`, tableName)

	rows, err := c.db.QueryContext(ctx, query, pq.Array(ids))
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
		query = fmt.Sprintf("DELETE FROM %s WHERE user_id = $1", tableName)
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
