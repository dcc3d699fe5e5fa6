package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// digestLen is the number of hex characters kept from the sha256 digest.
// Long enough to make accidental collisions irrelevant for drift detection,
// short enough to stay readable in editset JSON and CLI output.
const digestLen = 16

// Checksum returns a truncated content digest used for drift detection.
// It is not a cryptographic integrity guarantee.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:digestLen]
}

// RefID derives a stable identifier for a source range. The same file and
// range always produce the same id, regardless of discovery order, so that
// a ref selected in one run can be re-selected in the next.
func RefID(file string, startLine, startCol, endLine, endCol int) string {
	fingerprint := fmt.Sprintf("%s:%d:%d:%d:%d", file, startLine, startCol, endLine, endCol)
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:])[:digestLen]
}

// OpID derives a stable identifier for a file rename, keyed on both paths.
func OpID(oldPath, newPath string) string {
	sum := sha256.Sum256([]byte(oldPath + " -> " + newPath))
	return hex.EncodeToString(sum[:])[:digestLen]
}

// SymbolKey derives an opaque identity token for a declaration site from
// its file, position and name.
func SymbolKey(file string, line, col int, name string) string {
	fingerprint := fmt.Sprintf("%s:%d:%d:%s", file, line, col, name)
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:])[:digestLen]
}
