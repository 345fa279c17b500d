package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// MetadataMissing returns, in input order, the ids with no translated
// metadata row under the paired tool id.
func (s *Store) MetadataMissing(ctx context.Context, keys []Key) ([]ContentID, error) {
	return s.missing(ctx, "content_metadata", keys)
}

// MetadataGet returns stored translated-metadata rows for the given ids,
// full tool embedded. Unknown ids are silently omitted.
func (s *Store) MetadataGet(ctx context.Context, ids []ContentID) ([]*MetadataEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("storage is closed")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.content_id, c.metadata, c.tool_id,
		       t.name, t.version, t.configuration
		FROM content_metadata c
		JOIN tools t ON t.id = c.tool_id
		WHERE c.content_id IN (`+inPlaceholders(len(ids))+`)
		ORDER BY c.content_id, c.tool_id
	`, idArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("metadata get failed: %w", err)
	}
	defer rows.Close()

	var out []*MetadataEntry
	for rows.Next() {
		var (
			hexID, doc, name, version, cfg string
			entry                          MetadataEntry
		)
		if err := rows.Scan(&hexID, &doc, &entry.ToolID, &name, &version, &cfg); err != nil {
			return nil, fmt.Errorf("metadata scan failed: %w", err)
		}
		if entry.ID, err = ParseContentID(hexID); err != nil {
			return nil, err
		}
		entry.Metadata = json.RawMessage(doc)
		info, err := toolInfoFromRow(entry.ToolID, name, version, cfg)
		if err != nil {
			return nil, err
		}
		entry.Tool = &info
		out = append(out, &entry)
	}
	return out, rows.Err()
}

// MetadataAdd inserts translated-metadata rows with scalar conflict
// semantics: drop the new document by default, replace the stored one under
// conflictUpdate.
func (s *Store) MetadataAdd(ctx context.Context, entries []*MetadataEntry, conflictUpdate bool) error {
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
		INSERT INTO content_metadata (content_id, metadata, tool_id)
		VALUES (?, ?, ?)
		ON CONFLICT (content_id, tool_id) DO NOTHING`
	if conflictUpdate {
		query = `
		INSERT INTO content_metadata (content_id, metadata, tool_id)
		VALUES (?, ?, ?)
		ON CONFLICT (content_id, tool_id) DO UPDATE SET
			metadata = excluded.metadata`
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare metadata upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID.String(), string(e.Metadata), e.ToolID); err != nil {
			return fmt.Errorf("failed to add metadata for %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}
