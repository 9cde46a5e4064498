package postgres

import (
	"database/sql"
	"encoding/json"
)

// nullString maps empty strings to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// encodeEmbedding serializes an embedding as a JSON string for TEXT storage.
// Empty embeddings are stored as NULL.
func encodeEmbedding(embedding []float32) (interface{}, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// decodeEmbedding parses a JSON-encoded embedding column.
func decodeEmbedding(s sql.NullString) ([]float32, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var embedding []float32
	if err := json.Unmarshal([]byte(s.String), &embedding); err != nil {
		return nil, err
	}
	return embedding, nil
}
