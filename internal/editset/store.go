package editset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound marks a load of an editset artifact that does not exist.
var ErrNotFound = errors.New("editset not found")

// Save writes the editset as an indented JSON artifact, creating parent
// directories as needed. The artifact is the durable interchange format
// between proposal, review, filtering and application.
func Save(es *Editset, path string) error {
	data, err := json.MarshalIndent(es, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal editset: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create editset dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write editset: %w", err)
	}
	return nil
}

// Load reads an editset artifact back. Loading a path that does not exist
// reports ErrNotFound so callers can distinguish it from a malformed file.
func Load(path string) (*Editset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read editset: %w", err)
	}
	var es Editset
	if err := json.Unmarshal(data, &es); err != nil {
		return nil, fmt.Errorf("parse editset %s: %w", path, err)
	}
	return &es, nil
}

// SaveFileset persists a file-rename editset with the same artifact
// discipline as Save.
func SaveFileset(fs *FileEditset, path string) error {
	data, err := json.MarshalIndent(fs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal file editset: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create editset dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write file editset: %w", err)
	}
	return nil
}

// LoadFileset reads a file-rename editset artifact back.
func LoadFileset(path string) (*FileEditset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read file editset: %w", err)
	}
	var fs FileEditset
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parse file editset %s: %w", path, err)
	}
	return &fs, nil
}
