package storage

import (
	"context"
	"fmt"

	"github.com/archivetools/indexd/internal/symsearch"
)

// CtagsMissing returns, in input order, the ids with no ctags rows under
// the paired tool id.
func (s *Store) CtagsMissing(ctx context.Context, keys []Key) ([]ContentID, error) {
	return s.missing(ctx, "content_ctags", keys)
}

// CtagsGet returns stored symbol rows for the given ids, one entry per
// symbol, entries for the same content grouped together, full tool
// embedded. Unknown ids are silently omitted.
func (s *Store) CtagsGet(ctx context.Context, ids []ContentID) ([]*CtagsEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("storage is closed")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.content_id, c.name, c.kind, c.line, c.lang, c.tool_id,
		       t.name, t.version, t.configuration
		FROM content_ctags c
		JOIN tools t ON t.id = c.tool_id
		WHERE c.content_id IN (`+inPlaceholders(len(ids))+`)
		ORDER BY c.content_id, c.tool_id, c.name, c.line
	`, idArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("ctags get failed: %w", err)
	}
	defer rows.Close()

	var out []*CtagsEntry
	for rows.Next() {
		var (
			hexID, toolName, toolVersion, cfg string
			entry                             CtagsEntry
		)
		if err := rows.Scan(&hexID, &entry.Name, &entry.Kind, &entry.Line, &entry.Lang,
			&entry.ToolID, &toolName, &toolVersion, &cfg); err != nil {
			return nil, fmt.Errorf("ctags scan failed: %w", err)
		}
		if entry.ID, err = ParseContentID(hexID); err != nil {
			return nil, err
		}
		info, err := toolInfoFromRow(entry.ToolID, toolName, toolVersion, cfg)
		if err != nil {
			return nil, err
		}
		entry.Tool = &info
		out = append(out, &entry)
	}
	return out, rows.Err()
}

// CtagsAdd inserts symbol rows. Multi-valued kind: by default new elements
// merge into the existing set (structurally identical elements suppressed,
// existing elements retained); under conflictUpdate the stored set for each
// touched (content, tool) key is replaced by the incoming one.
func (s *Store) CtagsAdd(ctx context.Context, entries []*CtagsEntry, conflictUpdate bool) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("storage is closed")
	}

	keys := distinctKeys(ctagsKeys(entries))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if conflictUpdate {
		del, err := tx.PrepareContext(ctx,
			`DELETE FROM content_ctags WHERE content_id = ? AND tool_id = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare ctags delete: %w", err)
		}
		defer del.Close()
		for _, key := range keys {
			if _, err := del.ExecContext(ctx, key.ID.String(), key.ToolID); err != nil {
				return fmt.Errorf("failed to replace ctags for %s: %w", key.ID, err)
			}
		}
	}

	ins, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO content_ctags (content_id, name, kind, line, lang, tool_id)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare ctags insert: %w", err)
	}
	defer ins.Close()

	for _, e := range entries {
		if _, err := ins.ExecContext(ctx, e.ID.String(), e.Name, e.Kind, e.Line, e.Lang, e.ToolID); err != nil {
			return fmt.Errorf("failed to add ctags for %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	// Mirror the change into the symbol index. Deterministic doc ids make
	// the merge path idempotent; the replace path clears the key first.
	if conflictUpdate {
		for _, key := range keys {
			if err := s.symbols.DeleteKey(key.ID.String(), key.ToolID); err != nil {
				return err
			}
		}
	}
	return s.symbols.Add(symsearchEntries(entries))
}

// CtagsSearch matches symbol names by substring, ordered by content id
// ascending, paginated by lastSeen (exclusive). Tool info is resolved from
// the database and embedded in each row.
func (s *Store) CtagsSearch(ctx context.Context, term string, limit int, lastSeen *ContentID) ([]*CtagsEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("storage is closed")
	}

	var cursor string
	if lastSeen != nil {
		cursor = lastSeen.String()
	}

	found, err := s.symbols.Search(ctx, term, limit, cursor)
	if err != nil {
		return nil, err
	}

	out := make([]*CtagsEntry, 0, len(found))
	for _, f := range found {
		id, err := ParseContentID(f.ContentID)
		if err != nil {
			return nil, err
		}
		info, err := s.toolByID(ctx, f.ToolID)
		if err != nil {
			return nil, err
		}
		out = append(out, &CtagsEntry{
			ID:     id,
			Name:   f.Name,
			Kind:   f.Kind,
			Line:   f.Line,
			Lang:   f.Lang,
			ToolID: f.ToolID,
			Tool:   &info,
		})
	}
	return out, nil
}

func ctagsKeys(entries []*CtagsEntry) []Key {
	keys := make([]Key, len(entries))
	for i, e := range entries {
		keys[i] = Key{ID: e.ID, ToolID: e.ToolID}
	}
	return keys
}

// distinctKeys deduplicates keys preserving first-seen order.
func distinctKeys(keys []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func symsearchEntries(entries []*CtagsEntry) []symsearch.Entry {
	out := make([]symsearch.Entry, len(entries))
	for i, e := range entries {
		out[i] = symsearch.Entry{
			ContentID: e.ID.String(),
			ToolID:    e.ToolID,
			Name:      e.Name,
			Kind:      e.Kind,
			Line:      e.Line,
			Lang:      e.Lang,
		}
	}
	return out
}
