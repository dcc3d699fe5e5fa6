package editset

import (
	"fmt"
	"os"
	"path/filepath"

	"codemod/internal/checksum"
)

// VerifyResult reports whether every file in the editset still matches its
// discovery-time checksum.
type VerifyResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// Verify confirms, for every distinct file the editset references, that the
// file still exists and its current checksum equals the one recorded at
// discovery time. File paths are resolved against root. Issues are collected,
// not short-circuited, so the caller sees every stale file at once.
func Verify(es *Editset, root string) *VerifyResult {
	result := &VerifyResult{Valid: true, Issues: []string{}}

	for _, file := range es.Files() {
		recorded, _ := es.checksumForFile(file)
		content, err := os.ReadFile(resolve(root, file))
		if err != nil {
			result.Issues = append(result.Issues, fmt.Sprintf("%s: file missing or unreadable: %v", file, err))
			continue
		}
		if current := checksum.Checksum(content); current != recorded {
			result.Issues = append(result.Issues,
				fmt.Sprintf("%s: content changed since proposal (recorded %s, found %s)", file, recorded, current))
		}
	}

	// An edit whose file carries no reference has no recorded checksum, so
	// the drift contract cannot be honored for it.
	for _, file := range editOnlyFiles(es) {
		result.Issues = append(result.Issues, fmt.Sprintf("%s: edits present but no reference records a checksum", file))
	}

	result.Valid = len(result.Issues) == 0
	return result
}

// editOnlyFiles returns files that appear in the edit list but have no ref.
func editOnlyFiles(es *Editset) []string {
	refFiles := make(map[string]bool)
	for _, ref := range es.Refs {
		refFiles[ref.File] = true
	}
	seen := make(map[string]bool)
	var out []string
	for _, e := range es.Edits {
		if !refFiles[e.File] && !seen[e.File] {
			seen[e.File] = true
			out = append(out, e.File)
		}
	}
	return out
}

func resolve(root, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(root, file)
}
