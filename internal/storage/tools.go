package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// configJSON renders the configuration blob in canonical form (sorted keys,
// nil normalized to an empty object so nil and {} compare equal).
func configJSON(t Tool) (string, error) {
	cfg := t.Configuration
	if cfg == nil {
		cfg = map[string]any{}
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("tool configuration not marshalable: %w", err)
	}
	return string(raw), nil
}

// identityKey is the cache key over the full tool identity tuple.
func identityKey(t Tool) string {
	return t.Name + "\x00" + t.Version + "\x00" + t.Fingerprint()
}

// Register get-or-creates every tool and returns infos aligned with the
// input. Concurrent registration of the same tool from multiple callers is
// resolved by the uniqueness constraint: the loser's insert is a no-op and
// the follow-up read returns the winner's id.
func (s *Store) Register(ctx context.Context, tools []Tool) ([]ToolInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("storage is closed")
	}

	out := make([]ToolInfo, len(tools))
	for i, tool := range tools {
		key := identityKey(tool)
		if info, ok := s.toolCache.Get(key); ok {
			out[i] = info
			continue
		}

		info, err := s.registerOne(ctx, tool)
		if err != nil {
			return nil, err
		}
		s.toolCache.Add(key, info)
		s.toolIDCache.Add(info.ID, info)
		out[i] = info
	}
	return out, nil
}

func (s *Store) registerOne(ctx context.Context, tool Tool) (ToolInfo, error) {
	cfg, err := configJSON(tool)
	if err != nil {
		return ToolInfo{}, err
	}
	fingerprint := tool.Fingerprint()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tools (name, version, configuration, fingerprint)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name, version, fingerprint) DO NOTHING
	`, tool.Name, tool.Version, cfg, fingerprint)
	if err != nil {
		return ToolInfo{}, fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM tools WHERE name = ? AND version = ? AND fingerprint = ?
	`, tool.Name, tool.Version, fingerprint).Scan(&id)
	if err != nil {
		return ToolInfo{}, fmt.Errorf("failed to read back tool %s: %w", tool.Name, err)
	}

	return ToolInfo{ID: id, Tool: tool}, nil
}

// Lookup returns the registered tool, or nil when never registered.
func (s *Store) Lookup(ctx context.Context, tool Tool) (*ToolInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("storage is closed")
	}

	key := identityKey(tool)
	if info, ok := s.toolCache.Get(key); ok {
		return &info, nil
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM tools WHERE name = ? AND version = ? AND fingerprint = ?
	`, tool.Name, tool.Version, tool.Fingerprint()).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up tool %s: %w", tool.Name, err)
	}

	info := ToolInfo{ID: id, Tool: tool}
	s.toolCache.Add(key, info)
	s.toolIDCache.Add(id, info)
	return &info, nil
}

// Tools returns every registered tool, ordered by name then version.
func (s *Store) Tools(ctx context.Context) ([]ToolInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("storage is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, version, configuration FROM tools
		ORDER BY name, version, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	defer rows.Close()

	var out []ToolInfo
	for rows.Next() {
		var (
			id                 int64
			name, version, cfg string
		)
		if err := rows.Scan(&id, &name, &version, &cfg); err != nil {
			return nil, fmt.Errorf("failed to scan tool row: %w", err)
		}
		info, err := toolInfoFromRow(id, name, version, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// toolByID resolves a registered tool from its numeric id, caching the
// result. Used to embed full tools in returned rows.
func (s *Store) toolByID(ctx context.Context, id int64) (ToolInfo, error) {
	if info, ok := s.toolIDCache.Get(id); ok {
		return info, nil
	}

	var (
		name, version, cfg string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, version, configuration FROM tools WHERE id = ?
	`, id).Scan(&name, &version, &cfg)
	if err != nil {
		return ToolInfo{}, fmt.Errorf("failed to resolve tool id %d: %w", id, err)
	}

	info, err := toolInfoFromRow(id, name, version, cfg)
	if err != nil {
		return ToolInfo{}, err
	}
	s.toolIDCache.Add(id, info)
	return info, nil
}

// toolInfoFromRow rebuilds a ToolInfo from its stored columns.
func toolInfoFromRow(id int64, name, version, cfg string) (ToolInfo, error) {
	var configuration map[string]any
	if err := json.Unmarshal([]byte(cfg), &configuration); err != nil {
		return ToolInfo{}, fmt.Errorf("corrupt configuration for tool id %d: %w", id, err)
	}
	return ToolInfo{
		ID: id,
		Tool: Tool{
			Name:          name,
			Version:       version,
			Configuration: configuration,
		},
	}, nil
}
