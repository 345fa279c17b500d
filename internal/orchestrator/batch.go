package orchestrator

import "github.com/archivetools/indexd/internal/storage"

// partition splits ids into consecutive chunks of at most size elements,
// preserving order. The final chunk may be shorter.
func partition(ids []storage.ContentID, size int) [][]storage.ContentID {
	if len(ids) == 0 {
		return nil
	}
	chunks := make([][]storage.ContentID, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
