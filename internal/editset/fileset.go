package editset

import (
	"time"

	"codemod/internal/conflict"
)

// FileOp is one proposed rename of a single file. Checksum records the
// file's content at proposal time so apply can detect drift the same way
// content edits do.
type FileOp struct {
	OpID     string `json:"opId"`
	OldPath  string `json:"oldPath"`
	NewPath  string `json:"newPath"`
	Checksum string `json:"checksum"`
	Selected bool   `json:"selected"`
}

// PendingEdit describes a follow-on content change a batch of file
// renames implies but does not carry out, such as rewriting import
// paths that mention a renamed file. Edits is empty until a discovery
// pass populates it.
type PendingEdit struct {
	Description string `json:"description"`
	Pattern     string `json:"pattern"`
	Edits       []Edit `json:"edits"`
}

// FileEditset is the durable artifact of a batch file-rename proposal.
// It mirrors Editset's lifecycle: propose, review, filter, apply.
type FileEditset struct {
	ID           string          `json:"id"`
	Operation    string          `json:"operation"`
	Match        string          `json:"match"`
	Replace      string          `json:"replace"`
	Glob         string          `json:"glob,omitempty"`
	Ops          []FileOp        `json:"ops"`
	Conflicts    []conflict.Path `json:"conflicts,omitempty"`
	PendingEdits []PendingEdit   `json:"pendingEdits,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// SelectedOps returns the ops still marked for application.
func (fs *FileEditset) SelectedOps() []FileOp {
	var out []FileOp
	for _, op := range fs.Ops {
		if op.Selected {
			out = append(out, op)
		}
	}
	return out
}

// HasConflicts reports whether any proposed op was flagged at proposal
// time.
func (fs *FileEditset) HasConflicts() bool {
	return len(fs.Conflicts) > 0
}

// FileApplyResult accounts for a file-rename application run with the
// same three outcomes content application uses.
type FileApplyResult struct {
	Applied int      `json:"applied"`
	Skipped int      `json:"skipped"`
	Errored int      `json:"errored"`
	Drifted []string `json:"drifted,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	DryRun  bool     `json:"dryRun,omitempty"`
}
