package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// GenerateID derives a chunk's content-addressable ID from
// (collectionID, relPath, contentHash, startByte), truncated to 16 hex
// characters in the teacher's own truncation convention
// (internal/chunk/code_chunker.go's generateChunkID). Unlike the teacher's
// derivation — sha256(filePath + ":" + contentHash) — this folds in the
// collection ID (so the same file in two indexed collections never
// collides) and the chunk's starting byte offset (so splitting one chunk
// into two at the same content hash still yields distinct IDs).
func GenerateID(collectionID, relPath, contentHash string, startByte int) string {
	h := sha256.New()
	h.Write([]byte(collectionID))
	h.Write([]byte{0})
	h.Write([]byte(relPath))
	h.Write([]byte{0})
	h.Write([]byte(contentHash))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(startByte)))
	sum := hex.EncodeToString(h.Sum(nil))
	return sum[:16]
}

// HashContent returns the hex sha256 of raw bytes, used both for
// ContentHash and as an input to GenerateID.
func HashContent(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
