package storage

import (
	"context"
	"fmt"
)

// MimetypeMissing returns, in input order, the ids with no mimetype row
// under the paired tool id.
func (s *Store) MimetypeMissing(ctx context.Context, keys []Key) ([]ContentID, error) {
	return s.missing(ctx, "content_mimetype", keys)
}

// MimetypeGet returns stored mimetype rows for the given ids, full tool
// embedded. Unknown ids are silently omitted.
func (s *Store) MimetypeGet(ctx context.Context, ids []ContentID) ([]*MimetypeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("storage is closed")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.content_id, c.mimetype, c.encoding, c.tool_id,
		       t.name, t.version, t.configuration
		FROM content_mimetype c
		JOIN tools t ON t.id = c.tool_id
		WHERE c.content_id IN (`+inPlaceholders(len(ids))+`)
		ORDER BY c.content_id, c.tool_id
	`, idArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("mimetype get failed: %w", err)
	}
	defer rows.Close()

	var out []*MimetypeEntry
	for rows.Next() {
		var (
			hexID, name, version, cfg string
			entry                     MimetypeEntry
		)
		if err := rows.Scan(&hexID, &entry.Mimetype, &entry.Encoding, &entry.ToolID,
			&name, &version, &cfg); err != nil {
			return nil, fmt.Errorf("mimetype scan failed: %w", err)
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

// MimetypeAdd inserts mimetype rows. Scalar kind: with conflictUpdate the
// new value replaces the old one entirely, without it the existing row wins
// and the new value is dropped. Both cases resolve inside a single upsert
// statement, never a read-modify-write.
func (s *Store) MimetypeAdd(ctx context.Context, entries []*MimetypeEntry, conflictUpdate bool) error {
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
		INSERT INTO content_mimetype (content_id, mimetype, encoding, tool_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (content_id, tool_id) DO NOTHING`
	if conflictUpdate {
		query = `
		INSERT INTO content_mimetype (content_id, mimetype, encoding, tool_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (content_id, tool_id) DO UPDATE SET
			mimetype = excluded.mimetype,
			encoding = excluded.encoding`
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare mimetype upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID.String(), e.Mimetype, e.Encoding, e.ToolID); err != nil {
			return fmt.Errorf("failed to add mimetype for %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}
