package helper

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// NewPointID returns a random id for a stored chunk.
func NewPointID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate point id: %w", err)
	}
	return id.String(), nil
}

// EnsureDir creates the vector database directory and its parents. An
// existing regular file at path is reported rather than reused.
func EnsureDir(path string) error {
	info, err := os.Stat(path)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("database path %s exists and is not a directory", path)
	case err == nil:
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return nil
}
