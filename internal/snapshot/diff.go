package snapshot

import (
	"sort"
	"time"
)

// Diff is the result of comparing two manifests: three disjoint sets of
// project-relative paths, each sorted for deterministic processing order.
type Diff struct {
	Added    []string
	Modified []string
	Removed  []string
}

// IsEmpty reports whether the diff contains no changes at all.
func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Removed) == 0
}

// Compare computes the diff between a previous and current manifest. It is a
// pure function of its two arguments: same inputs, same output, every time
// (spec's "the diff is a function of (previous_manifest, filesystem_contents,
// ignore_rules) alone" — ignore_rules have already been applied by whoever
// built `cur`).
//
// A path present in both manifests is Modified when its content hash,
// size, or mtime differs; unchanged entries are omitted entirely.
func Compare(prev, cur *Manifest) Diff {
	var d Diff

	for path, curEntry := range cur.Entries {
		prevEntry, existed := prev.Entries[path]
		if !existed {
			d.Added = append(d.Added, path)
			continue
		}
		if entryChanged(prevEntry, curEntry) {
			d.Modified = append(d.Modified, path)
		}
	}

	for path := range prev.Entries {
		if _, stillPresent := cur.Entries[path]; !stillPresent {
			d.Removed = append(d.Removed, path)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Modified)
	sort.Strings(d.Removed)

	return d
}

func entryChanged(prev, cur Entry) bool {
	if prev.ContentHash != cur.ContentHash {
		return true
	}
	if prev.Size != cur.Size {
		return true
	}
	// Truncate to second precision: filesystem mtime resolution varies and
	// the metadata store persists timestamps with second precision.
	return !prev.ModTime.Truncate(time.Second).Equal(cur.ModTime.Truncate(time.Second))
}
