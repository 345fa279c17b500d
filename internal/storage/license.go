package storage

import (
	"context"
	"fmt"
)

// LicenseMissing returns, in input order, the ids with no license rows
// under the paired tool id.
func (s *Store) LicenseMissing(ctx context.Context, keys []Key) ([]ContentID, error) {
	return s.missing(ctx, "content_license", keys)
}

// LicenseGet returns stored license rows for the given ids, one entry per
// license identifier, entries for the same content grouped together, full
// tool embedded. Unknown ids are silently omitted.
func (s *Store) LicenseGet(ctx context.Context, ids []ContentID) ([]*LicenseEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("storage is closed")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.content_id, c.license, c.tool_id,
		       t.name, t.version, t.configuration
		FROM content_license c
		JOIN tools t ON t.id = c.tool_id
		WHERE c.content_id IN (`+inPlaceholders(len(ids))+`)
		ORDER BY c.content_id, c.tool_id, c.license
	`, idArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("license get failed: %w", err)
	}
	defer rows.Close()

	var out []*LicenseEntry
	for rows.Next() {
		var (
			hexID, name, version, cfg string
			entry                     LicenseEntry
		)
		if err := rows.Scan(&hexID, &entry.License, &entry.ToolID, &name, &version, &cfg); err != nil {
			return nil, fmt.Errorf("license scan failed: %w", err)
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

// LicenseAdd inserts license rows. Multi-valued kind: merge by default,
// full per-key replace under conflictUpdate.
func (s *Store) LicenseAdd(ctx context.Context, entries []*LicenseEntry, conflictUpdate bool) error {
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

	if conflictUpdate {
		keys := make([]Key, len(entries))
		for i, e := range entries {
			keys[i] = Key{ID: e.ID, ToolID: e.ToolID}
		}
		del, err := tx.PrepareContext(ctx,
			`DELETE FROM content_license WHERE content_id = ? AND tool_id = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare license delete: %w", err)
		}
		defer del.Close()
		for _, key := range distinctKeys(keys) {
			if _, err := del.ExecContext(ctx, key.ID.String(), key.ToolID); err != nil {
				return fmt.Errorf("failed to replace licenses for %s: %w", key.ID, err)
			}
		}
	}

	ins, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO content_license (content_id, license, tool_id)
		VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare license insert: %w", err)
	}
	defer ins.Close()

	for _, e := range entries {
		if _, err := ins.ExecContext(ctx, e.ID.String(), e.License, e.ToolID); err != nil {
			return fmt.Errorf("failed to add license for %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}
