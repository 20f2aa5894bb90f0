package fragment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// NewID derives a stable deterministic fragment id from its defining
// inputs: same code at the same location always yields the same id.
func NewID(filePath, content string, startLine, endLine int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d:%s", filePath, startLine, endLine, content)))
	return hex.EncodeToString(h[:])[:16]
}

// Checksum computes a SHA-256 content digest truncated to 16 hex characters,
// the format of FileModificationRecord.Checksum. The indexing pipeline does
// not call it: the records it writes carry an empty checksum, and
// incremental indexing compares mtimes only.
func Checksum(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])[:16]
}
