package index

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/mcpcontext/browser/internal/config"
)

// ResolveCollection maps a filesystem path given by a tool caller to the
// (collectionID, rootPath) pair the coordinator keys its per-collection slot
// on. rootPath is the nearest enclosing git/.ctxbrowser.yaml root (falling
// back to the given path itself); collectionID is a deterministic hash of
// that root so the same repository always resolves to the same collection
// regardless of which subdirectory a caller passes in.
func ResolveCollection(path string) (collectionID, rootPath string, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", err
	}
	root, err := config.FindProjectRoot(abs)
	if err != nil {
		return "", "", err
	}
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:])[:16], root, nil
}
