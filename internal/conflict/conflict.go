// Package conflict defines the pre-flight collision reports produced before a
// rename mutates anything. Reports are structured data handed back to the
// caller, never errors: collisions surface at proposal time, drift at apply
// time, and in both cases the caller decides whether to proceed.
package conflict

// Reason classifies why a proposed rename collides.
type Reason string

const (
	// TargetExists: the rename target name/path is already taken by a
	// distinct symbol or file.
	TargetExists Reason = "target_exists"
	// SamePath: old and new are identical, so the rename is a no-op.
	SamePath Reason = "same_path"
	// DuplicateTarget: two operations within one batch would land on the
	// same target.
	DuplicateTarget Reason = "duplicate_target"
)

// Location points at the pre-existing symbol a rename would collide with.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Name   string `json:"name"`
}

// Symbol is a single identifier-level collision.
type Symbol struct {
	OldName  string    `json:"oldName"`
	NewName  string    `json:"newName"`
	Reason   Reason    `json:"reason"`
	Existing *Location `json:"existingSymbol,omitempty"`
}

// Path is a single filename-level collision.
type Path struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
	Reason  Reason `json:"reason"`
}

// SafeRename is a rename that cleared the pre-flight check.
type SafeRename struct {
	OldName string `json:"oldName"`
	NewName string `json:"newName"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

// Report separates colliding renames from safe ones.
type Report struct {
	Conflicts []Symbol     `json:"conflicts"`
	Safe      []SafeRename `json:"safe"`
}

// HasConflicts reports whether anything in the batch collides.
func (r *Report) HasConflicts() bool {
	return len(r.Conflicts) > 0
}
