package editset

import (
	"fmt"
	"os"
	"sort"

	"codemod/internal/checksum"
	"codemod/internal/logger"
)

// ApplyResult accounts for every edit in the set across the three outcomes:
// applied, skipped by drift, errored. Drift is a normal reported outcome, not
// an error; the caller decides whether partial application is acceptable.
type ApplyResult struct {
	Applied int      `json:"applied"`
	Skipped int      `json:"skipped"`
	Errored int      `json:"errored"`
	Drifted []string `json:"drifted"`
	Errors  []string `json:"errors"`
	DryRun  bool     `json:"dryRun"`
}

// Apply writes the editset's edits to disk. Edits are grouped by file; a
// file whose current checksum no longer matches the checksum recorded by its
// references has all of its edits skipped and the drift reported. Surviving
// files have their edits spliced in descending-offset order and are written
// back in a single whole-file write. Under dryRun the same accounting is
// produced but nothing is written.
//
// Failures are file-scoped: one file's drift or write error never blocks
// another file in the same editset, and nothing already written is rolled
// back.
func Apply(es *Editset, root string, dryRun bool) *ApplyResult {
	log := logger.ForComponent("editset")
	result := &ApplyResult{Drifted: []string{}, Errors: []string{}, DryRun: dryRun}

	byFile := make(map[string][]Edit)
	var files []string
	for _, e := range es.Edits {
		if _, ok := byFile[e.File]; !ok {
			files = append(files, e.File)
		}
		byFile[e.File] = append(byFile[e.File], e)
	}
	sort.Strings(files)

	for _, file := range files {
		edits := byFile[file]
		// Re-establish the descending-offset invariant rather than trust
		// the serialized order.
		sort.SliceStable(edits, func(i, j int) bool { return edits[i].Offset > edits[j].Offset })

		recorded, ok := es.checksumForFile(file)
		if !ok {
			result.Errored += len(edits)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: edits present but no reference records a checksum", file))
			continue
		}

		path := resolve(root, file)
		content, err := os.ReadFile(path)
		if err != nil {
			result.Errored += len(edits)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: read failed: %v", file, err))
			continue
		}
		if current := checksum.Checksum(content); current != recorded {
			result.Skipped += len(edits)
			result.Drifted = append(result.Drifted,
				fmt.Sprintf("%s: content changed since proposal (recorded %s, found %s)", file, recorded, current))
			log.Warn("skipping drifted file", "file", file)
			continue
		}

		patched, err := splice(content, edits)
		if err != nil {
			result.Errored += len(edits)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", file, err))
			continue
		}

		if !dryRun {
			if err := writeFilePreservingMode(path, patched); err != nil {
				result.Errored += len(edits)
				result.Errors = append(result.Errors, fmt.Sprintf("%s: write failed: %v", file, err))
				continue
			}
		}
		result.Applied += len(edits)
		log.Debug("applied edits", "file", file, "count", len(edits), "dryRun", dryRun)
	}

	return result
}

// splice applies the descending-offset edits to content and returns the new
// bytes. Offsets were computed against the checksummed content, so a span
// falling outside it means the edit list is malformed.
func splice(content []byte, edits []Edit) ([]byte, error) {
	for _, e := range edits {
		if e.Offset < 0 || e.Offset+e.Length > len(content) {
			return nil, fmt.Errorf("edit span %d..%d outside file of %d bytes", e.Offset, e.Offset+e.Length, len(content))
		}
		patched := make([]byte, 0, len(content)-e.Length+len(e.Replacement))
		patched = append(patched, content[:e.Offset]...)
		patched = append(patched, e.Replacement...)
		patched = append(patched, content[e.Offset+e.Length:]...)
		content = patched
	}
	return content, nil
}

func writeFilePreservingMode(path string, content []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode()
	}
	return os.WriteFile(path, content, mode)
}
