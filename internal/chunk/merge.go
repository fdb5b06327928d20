package chunk

// MergeTinyFragments folds any chunk under minMergeBytes into the chunk that
// follows it, and folds a final undersized chunk into the one before it.
// This is a supplement: the teacher emits undersized trailing fragments
// as-is; SPEC_FULL.md requires merging them so a one-line trailer never
// scores as its own weak search hit.
//
// chunks must already be in file order (the orchestrator produces them in
// AST traversal / line-window order).
func MergeTinyFragments(chunks []*Chunk, minMergeBytes int) []*Chunk {
	if len(chunks) <= 1 || minMergeBytes <= 0 {
		return chunks
	}

	out := make([]*Chunk, 0, len(chunks))
	var pending *Chunk

	for _, c := range chunks {
		if pending != nil {
			c = mergeChunkInto(pending, c)
			pending = nil
		}
		if len(c.RawContent) < minMergeBytes {
			pending = c
			continue
		}
		out = append(out, c)
	}

	if pending != nil {
		if len(out) > 0 {
			out[len(out)-1] = mergeChunkInto(out[len(out)-1], pending)
		} else {
			out = append(out, pending)
		}
	}

	return out
}

func mergeChunkInto(a, b *Chunk) *Chunk {
	out := *b
	out.RawContent = a.RawContent + "\n" + b.RawContent
	out.Content = a.Content + "\n" + b.Content
	out.StartLine = a.StartLine
	out.StartByte = a.StartByte
	out.Symbols = append(append([]*Symbol{}, a.Symbols...), b.Symbols...)
	out.ContentHash = HashContent([]byte(out.RawContent))
	return &out
}
