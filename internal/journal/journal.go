// Package journal records every non-dry-run application so it can be undone.
// Each entry pairs an editset id with per-file pre/post content checksums;
// pre-image contents live zstd-compressed in a content-addressed pool keyed
// by checksum. Revert restores a pre-image only while the file still carries
// the recorded post-apply checksum, the same optimistic-concurrency stance
// apply itself takes.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"codemod/internal/checksum"
	"codemod/internal/logger"
)

// ErrNotFound is returned when the requested entry id is not in the journal.
var ErrNotFound = errors.New("journal entry not found")

// FileRecord is the snapshot pair for one path touched by an application.
// An empty PreChecksum means the operation created the path; an empty
// PostChecksum means it removed the path (a rename records one of each).
type FileRecord struct {
	Path         string `json:"path"`
	PreChecksum  string `json:"preChecksum,omitempty"`
	PostChecksum string `json:"postChecksum,omitempty"`
}

// Entry is one applied editset.
type Entry struct {
	ID        string       `json:"id"`
	EditsetID string       `json:"editsetId"`
	Operation string       `json:"operation"`
	Files     []FileRecord `json:"files"`
	CreatedAt time.Time    `json:"createdAt"`
}

// RevertResult accounts for a revert run file by file, mirroring apply's
// three outcomes.
type RevertResult struct {
	EntryID  string   `json:"entryId"`
	Restored int      `json:"restored"`
	Skipped  int      `json:"skipped"`
	Errored  int      `json:"errored"`
	Drifted  []string `json:"drifted,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	DryRun   bool     `json:"dryRun,omitempty"`
}

// Journal wraps the sqlite entry index and the blob pool directory.
type Journal struct {
	db      *sql.DB
	blobs   string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	log     *slog.Logger
}

// Open creates or opens the journal database at dbPath with its blob pool at
// blobsDir, creating both locations as needed.
func Open(dbPath, blobsDir string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	if err := os.MkdirAll(blobsDir, 0755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	encoder, _ := zstd.NewWriter(nil)
	decoder, _ := zstd.NewReader(nil)
	j := &Journal{db: db, blobs: blobsDir, encoder: encoder, decoder: decoder, log: logger.ForComponent("journal")}
	if err := j.init(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		editset_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entry_files (
		entry_id TEXT NOT NULL,
		path TEXT NOT NULL,
		pre_checksum TEXT NOT NULL,
		post_checksum TEXT NOT NULL,
		FOREIGN KEY (entry_id) REFERENCES entries(id)
	);

	CREATE INDEX IF NOT EXISTS idx_entry_files_entry ON entry_files(entry_id);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record persists one applied editset. preImages maps each path with a
// non-empty PreChecksum to its content before the application; contents are
// deduplicated in the pool by checksum, so re-recording an unchanged file
// costs nothing.
func (j *Journal) Record(editsetID, operation string, files []FileRecord, preImages map[string][]byte) (*Entry, error) {
	entry := &Entry{
		ID:        uuid.New().String(),
		EditsetID: editsetID,
		Operation: operation,
		Files:     files,
		CreatedAt: time.Now().UTC(),
	}

	for _, f := range files {
		if f.PreChecksum == "" {
			continue
		}
		content, ok := preImages[f.Path]
		if !ok {
			return nil, fmt.Errorf("no pre-image provided for %s", f.Path)
		}
		if got := checksum.Checksum(content); got != f.PreChecksum {
			return nil, fmt.Errorf("pre-image of %s does not match its recorded checksum", f.Path)
		}
		if err := j.saveBlob(f.PreChecksum, content); err != nil {
			return nil, fmt.Errorf("store pre-image of %s: %w", f.Path, err)
		}
	}

	tx, err := j.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO entries (id, editset_id, operation, created_at) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.EditsetID, entry.Operation, entry.CreatedAt); err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, err := tx.Exec(
			`INSERT INTO entry_files (entry_id, path, pre_checksum, post_checksum) VALUES (?, ?, ?, ?)`,
			entry.ID, f.Path, f.PreChecksum, f.PostChecksum); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	j.log.Debug("recorded entry", "id", entry.ID, "editset", editsetID, "files", len(files))
	return entry, nil
}

// List returns entries newest first. limit <= 0 returns all of them.
func (j *Journal) List(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.Query(
		`SELECT id, editset_id, operation, created_at FROM entries ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EditsetID, &e.Operation, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		files, err := j.entryFiles(entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Files = files
	}
	return entries, nil
}

// Get returns the entry with the given id, or ErrNotFound.
func (j *Journal) Get(id string) (*Entry, error) {
	var e Entry
	err := j.db.QueryRow(
		`SELECT id, editset_id, operation, created_at FROM entries WHERE id = ?`, id).
		Scan(&e.ID, &e.EditsetID, &e.Operation, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	files, err := j.entryFiles(e.ID)
	if err != nil {
		return nil, err
	}
	e.Files = files
	return &e, nil
}

func (j *Journal) entryFiles(entryID string) ([]FileRecord, error) {
	rows, err := j.db.Query(
		`SELECT path, pre_checksum, post_checksum FROM entry_files WHERE entry_id = ? ORDER BY path`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.Path, &f.PreChecksum, &f.PostChecksum); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Revert undoes the entry with the given id. Per file: a path the operation
// rewrote is restored from its pre-image only if its current checksum still
// equals the recorded post-apply checksum; a path the operation created is
// removed under the same check; a path the operation removed is restored
// only while nothing has reappeared at it. Any file that fails its check is
// reported as drifted and left alone.
func (j *Journal) Revert(id, root string, dryRun bool) (*RevertResult, error) {
	entry, err := j.Get(id)
	if err != nil {
		return nil, err
	}
	result := &RevertResult{EntryID: entry.ID, Drifted: []string{}, Errors: []string{}, DryRun: dryRun}

	for _, f := range entry.Files {
		abs := filepath.Join(root, filepath.FromSlash(f.Path))
		switch {
		case f.PostChecksum == "":
			// The operation removed this path; bring the pre-image back.
			if _, err := os.Stat(abs); err == nil {
				result.Skipped++
				result.Drifted = append(result.Drifted, fmt.Sprintf("%s: path reappeared since apply", f.Path))
				continue
			}
			j.restore(result, f, abs, dryRun)

		case f.PreChecksum == "":
			// The operation created this path; take it away again.
			current, err := os.ReadFile(abs)
			if err != nil {
				result.Skipped++
				result.Drifted = append(result.Drifted, fmt.Sprintf("%s: already gone", f.Path))
				continue
			}
			if sum := checksum.Checksum(current); sum != f.PostChecksum {
				result.Skipped++
				result.Drifted = append(result.Drifted,
					fmt.Sprintf("%s: content changed since apply (recorded %s, found %s)", f.Path, f.PostChecksum, sum))
				continue
			}
			if !dryRun {
				if err := os.Remove(abs); err != nil {
					result.Errored++
					result.Errors = append(result.Errors, fmt.Sprintf("%s: remove failed: %v", f.Path, err))
					continue
				}
			}
			result.Restored++

		default:
			current, err := os.ReadFile(abs)
			if err != nil {
				result.Errored++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: read failed: %v", f.Path, err))
				continue
			}
			if sum := checksum.Checksum(current); sum != f.PostChecksum {
				result.Skipped++
				result.Drifted = append(result.Drifted,
					fmt.Sprintf("%s: content changed since apply (recorded %s, found %s)", f.Path, f.PostChecksum, sum))
				j.log.Warn("skipping drifted file", "file", f.Path)
				continue
			}
			j.restore(result, f, abs, dryRun)
		}
	}
	return result, nil
}

// restore writes the pre-image blob for f to abs and accounts for the
// outcome.
func (j *Journal) restore(result *RevertResult, f FileRecord, abs string, dryRun bool) {
	content, err := j.loadBlob(f.PreChecksum)
	if err != nil {
		result.Errored++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", f.Path, err))
		return
	}
	if !dryRun {
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			result.Errored++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", f.Path, err))
			return
		}
		if err := os.WriteFile(abs, content, 0644); err != nil {
			result.Errored++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: write failed: %v", f.Path, err))
			return
		}
	}
	result.Restored++
}

// saveBlob stores content by checksum. Content-addressable: an existing blob
// is never rewritten.
func (j *Journal) saveBlob(sum string, content []byte) error {
	path := filepath.Join(j.blobs, sum)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, j.encoder.EncodeAll(content, nil), 0644)
}

// loadBlob reads and decompresses the blob for sum, verifying the content
// still matches its address.
func (j *Journal) loadBlob(sum string) ([]byte, error) {
	compressed, err := os.ReadFile(filepath.Join(j.blobs, sum))
	if err != nil {
		return nil, fmt.Errorf("pre-image blob %s missing: %w", sum, err)
	}
	content, err := j.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress blob %s: %w", sum, err)
	}
	if got := checksum.Checksum(content); got != sum {
		return nil, fmt.Errorf("blob %s fails its checksum (got %s)", sum, got)
	}
	return content, nil
}
