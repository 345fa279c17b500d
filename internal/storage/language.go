package storage

import (
	"context"
	"fmt"
)

// LanguageMissing returns, in input order, the ids with no language row
// under the paired tool id.
func (s *Store) LanguageMissing(ctx context.Context, keys []Key) ([]ContentID, error) {
	return s.missing(ctx, "content_language", keys)
}

// LanguageGet returns stored language rows for the given ids, full tool
// embedded. Unknown ids are silently omitted.
func (s *Store) LanguageGet(ctx context.Context, ids []ContentID) ([]*LanguageEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("storage is closed")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.content_id, c.lang, c.tool_id,
		       t.name, t.version, t.configuration
		FROM content_language c
		JOIN tools t ON t.id = c.tool_id
		WHERE c.content_id IN (`+inPlaceholders(len(ids))+`)
		ORDER BY c.content_id, c.tool_id
	`, idArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("language get failed: %w", err)
	}
	defer rows.Close()

	var out []*LanguageEntry
	for rows.Next() {
		var (
			hexID, name, version, cfg string
			entry                     LanguageEntry
		)
		if err := rows.Scan(&hexID, &entry.Lang, &entry.ToolID, &name, &version, &cfg); err != nil {
			return nil, fmt.Errorf("language scan failed: %w", err)
		}
		if entry.ID, err = ParseContentID(hexID); err != nil {
			return nil, err
		}
		info, err := toolInfoFromRow(entry.ToolID, name, version, cfg)
		if err != nil {
			return nil, err
		}
		entry.Tool = &info
		out = append(out, &entry)
	}
	return out, rows.Err()
}

// LanguageAdd inserts language rows with scalar conflict semantics: drop
// the new value by default, replace the stored one under conflictUpdate.
func (s *Store) LanguageAdd(ctx context.Context, entries []*LanguageEntry, conflictUpdate bool) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("storage is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO content_language (content_id, lang, tool_id)
		VALUES (?, ?, ?)
		ON CONFLICT (content_id, tool_id) DO NOTHING`
	if conflictUpdate {
		query = `
		INSERT INTO content_language (content_id, lang, tool_id)
		VALUES (?, ?, ?)
		ON CONFLICT (content_id, tool_id) DO UPDATE SET
			lang = excluded.lang`
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare language upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID.String(), e.Lang, e.ToolID); err != nil {
			return fmt.Errorf("failed to add language for %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}
