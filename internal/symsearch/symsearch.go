// Package symsearch maintains a Bleve index over ctags symbol names.
//
// The index lives beside the SQL rows and answers the symbol search
// operation: substring match over names, results ordered by content id
// ascending with keyset pagination.
package symsearch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Entry is one indexed symbol occurrence. ContentID is the hex form of the
// content fingerprint so that lexicographic ordering matches byte ordering.
type Entry struct {
	ContentID string
	ToolID    int64
	Name      string
	Kind      string
	Line      int64
	Lang      string
}

// Index wraps a Bleve index of symbol entries.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// maxHexID is the upper bound for content-id range clauses; content ids are
// fixed-length hex, so a string of 'f's is >= every valid id.
var maxHexID = strings.Repeat("f", 40)

// validateIndexIntegrity checks if a Bleve index is valid before opening.
// Returns nil if valid, an error describing the corruption if not.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // index doesn't exist, will be created
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

// buildMapping defines the symbol document mapping. Symbol names are
// indexed twice: the stored original and a lowercased keyword field the
// wildcard query runs against.
func buildMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	contentID := bleve.NewKeywordFieldMapping()
	contentID.Store = true
	doc.AddFieldMappingsAt("content_id", contentID)

	toolID := bleve.NewKeywordFieldMapping()
	toolID.Store = true
	doc.AddFieldMappingsAt("tool_id", toolID)

	name := bleve.NewKeywordFieldMapping()
	name.Store = true
	name.Index = false
	doc.AddFieldMappingsAt("name", name)

	nameFold := bleve.NewKeywordFieldMapping()
	nameFold.Store = false
	doc.AddFieldMappingsAt("name_fold", nameFold)

	kind := bleve.NewKeywordFieldMapping()
	kind.Store = true
	kind.Index = false
	doc.AddFieldMappingsAt("kind", kind)

	lang := bleve.NewKeywordFieldMapping()
	lang.Store = true
	lang.Index = false
	doc.AddFieldMappingsAt("lang", lang)

	line := bleve.NewNumericFieldMapping()
	line.Store = true
	line.Index = false
	doc.AddFieldMappingsAt("line", line)

	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = keyword.Name
	m.DefaultMapping = doc
	return m
}

// Open opens or creates a symbol index at path. An empty path creates an
// in-memory index for testing. A corrupted on-disk index is cleared and
// rebuilt empty; symbols are re-indexed by subsequent adds.
func Open(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(buildMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory symbol index: %w", err)
		}
		return &Index{index: idx}, nil
	}

	if validErr := validateIndexIntegrity(path); validErr != nil {
		slog.Warn("symbol_index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("symbol index corrupted at %s and cannot remove: %w", path, err)
		}
		slog.Info("symbol_index_cleared", slog.String("path", path))
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open symbol index: %w", err)
	}

	return &Index{index: idx, path: path}, nil
}

// docID is deterministic per element so that re-adding an identical entry
// overwrites its own document instead of duplicating it.
func docID(e Entry) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d\x00%s", e.Name, e.Kind, e.Line, e.Lang)))
	return fmt.Sprintf("%s:%d:%s", e.ContentID, e.ToolID, hex.EncodeToString(sum[:8]))
}

// Add indexes symbol entries. Idempotent per entry.
func (ix *Index) Add(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return fmt.Errorf("symbol index is closed")
	}

	batch := ix.index.NewBatch()
	for _, e := range entries {
		doc := map[string]interface{}{
			"content_id": e.ContentID,
			"tool_id":    strconv.FormatInt(e.ToolID, 10),
			"name":       e.Name,
			"name_fold":  strings.ToLower(e.Name),
			"kind":       e.Kind,
			"lang":       e.Lang,
			"line":       float64(e.Line),
		}
		if err := batch.Index(docID(e), doc); err != nil {
			return fmt.Errorf("failed to batch symbol %s: %w", e.Name, err)
		}
	}
	return ix.index.Batch(batch)
}

// DeleteKey removes every symbol document for one (content, tool) key.
// Used when a conflict-update add replaces the stored element set.
func (ix *Index) DeleteKey(contentID string, toolID int64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return fmt.Errorf("symbol index is closed")
	}

	cq := bleve.NewTermQuery(contentID)
	cq.SetField("content_id")
	tq := bleve.NewTermQuery(strconv.FormatInt(toolID, 10))
	tq.SetField("tool_id")
	q := bleve.NewConjunctionQuery(cq, tq)

	for {
		req := bleve.NewSearchRequestOptions(q, 1000, 0, false)
		res, err := ix.index.Search(req)
		if err != nil {
			return fmt.Errorf("failed to find symbols for deletion: %w", err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := ix.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := ix.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete symbols: %w", err)
		}
	}
}

// escapeWildcard neutralizes wildcard metacharacters in the search term so
// user input is matched literally.
func escapeWildcard(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)
	return r.Replace(term)
}

// Search returns entries whose symbol name contains term
// (case-insensitive), ordered by content id ascending. When lastSeen is
// non-empty only content ids strictly greater are returned. limit caps the
// number of entries; no match yields an empty slice.
func (ix *Index) Search(ctx context.Context, term string, limit int, lastSeen string) ([]Entry, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, fmt.Errorf("symbol index is closed")
	}
	if limit <= 0 {
		return nil, nil
	}

	wq := bleve.NewWildcardQuery("*" + escapeWildcard(strings.ToLower(term)) + "*")
	wq.SetField("name_fold")

	var q query.Query = wq
	if lastSeen != "" {
		falseVal := false
		trueVal := true
		rq := bleve.NewTermRangeInclusiveQuery(lastSeen, maxHexID, &falseVal, &trueVal)
		rq.SetField("content_id")
		q = bleve.NewConjunctionQuery(wq, rq)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.SortBy([]string{"content_id", "_id"})
	req.Fields = []string{"content_id", "tool_id", "name", "kind", "lang", "line"}

	res, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("symbol search failed: %w", err)
	}

	entries := make([]Entry, 0, len(res.Hits))
	for _, hit := range res.Hits {
		e := Entry{
			ContentID: stringField(hit.Fields, "content_id"),
			Name:      stringField(hit.Fields, "name"),
			Kind:      stringField(hit.Fields, "kind"),
			Lang:      stringField(hit.Fields, "lang"),
		}
		if v, err := strconv.ParseInt(stringField(hit.Fields, "tool_id"), 10, 64); err == nil {
			e.ToolID = v
		}
		if v, ok := hit.Fields["line"].(float64); ok {
			e.Line = int64(v)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

// Close releases the underlying index. Safe to call multiple times.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	return ix.index.Close()
}
