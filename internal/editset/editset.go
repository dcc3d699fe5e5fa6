// Package editset defines the durable change proposal produced by discovery
// backends and the lifecycle operations that filter, verify and apply it.
// An editset bundles the reviewable reference locations with the byte-level
// edits that realize them; it is written to disk between proposal and
// application so a human or agent can inspect it before any file changes.
package editset

import (
	"fmt"
	"sort"
	"time"
)

// Position is a 1-indexed line/column pair.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range spans from Start to End, end-exclusive.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Reference is one discovered occurrence of a symbol or pattern match. Its
// RefID is derived from (file, range) alone, so repeated discovery over an
// unchanged file yields identical ids and selections survive re-runs.
type Reference struct {
	RefID    string `json:"refId"`
	File     string `json:"file"`
	Range    Range  `json:"range"`
	Preview  string `json:"preview"`
	Checksum string `json:"checksum"`
	Selected bool   `json:"selected"`
}

// Edit is one byte-level mutation: remove Length bytes at Offset, insert
// Replacement. Within a file, edits are kept in descending-offset order so
// sequential application never invalidates a later edit's offset.
type Edit struct {
	File        string `json:"file"`
	Offset      int    `json:"offset"`
	Length      int    `json:"length"`
	Replacement string `json:"replacement"`
}

// Editset is the top-level proposal. From/To carry identifier renames;
// Pattern/Replacement carry structural and text replacements.
type Editset struct {
	ID          string      `json:"id"`
	Operation   string      `json:"operation"`
	From        string      `json:"from,omitempty"`
	To          string      `json:"to,omitempty"`
	Pattern     string      `json:"pattern,omitempty"`
	Replacement string      `json:"replacement,omitempty"`
	Refs        []Reference `json:"refs"`
	Edits       []Edit      `json:"edits"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// NewID builds a human-readable editset id from the operation tag and a
// timestamp. Ids are not globally unique; the collision risk of two proposals
// in the same second is accepted.
func NewID(operation string, now time.Time) string {
	return fmt.Sprintf("%s-%s", operation, now.UTC().Format("20060102T150405"))
}

// Files returns the distinct files referenced by the editset, sorted.
func (es *Editset) Files() []string {
	seen := make(map[string]bool)
	var files []string
	for _, ref := range es.Refs {
		if !seen[ref.File] {
			seen[ref.File] = true
			files = append(files, ref.File)
		}
	}
	sort.Strings(files)
	return files
}

// SelectedRefs returns the refs currently marked selected.
func (es *Editset) SelectedRefs() []Reference {
	var out []Reference
	for _, ref := range es.Refs {
		if ref.Selected {
			out = append(out, ref)
		}
	}
	return out
}

// checksumForFile returns the file checksum recorded at discovery time, as
// carried by that file's references.
func (es *Editset) checksumForFile(file string) (string, bool) {
	for _, ref := range es.Refs {
		if ref.File == file {
			return ref.Checksum, true
		}
	}
	return "", false
}

// SortEdits establishes the canonical edit order: files ascending, offsets
// descending within a file. Every backend runs its edit list through this
// before handing an editset to the caller.
func SortEdits(edits []Edit) {
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].File != edits[j].File {
			return edits[i].File < edits[j].File
		}
		return edits[i].Offset > edits[j].Offset
	})
}

// DedupeEdits drops edits that target the exact same (file, offset, length)
// span, keeping the first. Two discovery paths can reach one occurrence, for
// example a destructured name found both as a parameter and as a property.
func DedupeEdits(edits []Edit) []Edit {
	type span struct {
		file           string
		offset, length int
	}
	seen := make(map[span]bool)
	out := edits[:0]
	for _, e := range edits {
		key := span{e.File, e.Offset, e.Length}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
