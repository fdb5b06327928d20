package chunk

import "bytes"

// binaryProbeBytes is the prefix length checked for a NUL byte to classify
// content as binary. The teacher's scanner.DetectContentType checks the
// first 512 bytes; SPEC_FULL.md requires checking the first 8 KiB, so the
// threshold is widened here (DESIGN.md Open Question 6).
const binaryProbeBytes = 8192

// IsBinaryContent reports whether content looks binary (contains a NUL
// byte in its first 8 KiB), mirroring the common git/ripgrep heuristic.
func IsBinaryContent(content []byte) bool {
	probe := content
	if len(probe) > binaryProbeBytes {
		probe = probe[:binaryProbeBytes]
	}
	return bytes.IndexByte(probe, 0) >= 0
}
