package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ctag(id ContentID, toolID int64, name string, line int64) *CtagsEntry {
	return &CtagsEntry{ID: id, Name: name, Kind: "function", Line: line, Lang: "Go", ToolID: toolID}
}

func ctagNames(entries []*CtagsEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

func TestCtagsAdd_DefaultPolicyMergesElements(t *testing.T) {
	// Given: existing set {A, B} at key K
	s := newTestStore(t)
	ctx := context.Background()
	tool := registerTool(t, s, "ctags")
	key := tid(0x01)

	require.NoError(t, s.CtagsAdd(ctx, []*CtagsEntry{
		ctag(key, tool.ID, "alpha", 1),
		ctag(key, tool.ID, "beta", 2),
	}, false))

	// When: adding {B, C} with the default policy
	require.NoError(t, s.CtagsAdd(ctx, []*CtagsEntry{
		ctag(key, tool.ID, "beta", 2),
		ctag(key, tool.ID, "gamma", 3),
	}, false))

	// Then: the union {A, B, C} is stored, B not duplicated
	got, err := s.CtagsGet(ctx, []ContentID{key})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta", "gamma"}, ctagNames(got))
}

func TestCtagsAdd_ConflictUpdateReplacesWholeSet(t *testing.T) {
	// Given: existing set {A, B} at key K
	s := newTestStore(t)
	ctx := context.Background()
	tool := registerTool(t, s, "ctags")
	key := tid(0x02)

	require.NoError(t, s.CtagsAdd(ctx, []*CtagsEntry{
		ctag(key, tool.ID, "alpha", 1),
		ctag(key, tool.ID, "beta", 2),
	}, false))

	// When: adding {B, C} with conflict update
	require.NoError(t, s.CtagsAdd(ctx, []*CtagsEntry{
		ctag(key, tool.ID, "beta", 2),
		ctag(key, tool.ID, "gamma", 3),
	}, true))

	// Then: the stored set is exactly {B, C} (replace, not union)
	got, err := s.CtagsGet(ctx, []ContentID{key})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"beta", "gamma"}, ctagNames(got))
}

func TestCtagsAdd_ReplaceIsScopedToKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tool := registerTool(t, s, "ctags")

	require.NoError(t, s.CtagsAdd(ctx, []*CtagsEntry{
		ctag(tid(0x01), tool.ID, "keepme", 1),
		ctag(tid(0x02), tool.ID, "replaceme", 2),
	}, false))

	require.NoError(t, s.CtagsAdd(ctx, []*CtagsEntry{
		ctag(tid(0x02), tool.ID, "fresh", 9),
	}, true))

	got, err := s.CtagsGet(ctx, []ContentID{tid(0x01), tid(0x02)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"keepme", "fresh"}, ctagNames(got))
}

func TestCtagsGet_GroupsByContentID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tool := registerTool(t, s, "ctags")

	require.NoError(t, s.CtagsAdd(ctx, []*CtagsEntry{
		ctag(tid(0x02), tool.ID, "second", 1),
		ctag(tid(0x01), tool.ID, "first_a", 1),
		ctag(tid(0x02), tool.ID, "second_b", 2),
		ctag(tid(0x01), tool.ID, "first_b", 2),
	}, false))

	got, err := s.CtagsGet(ctx, []ContentID{tid(0x01), tid(0x02)})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, tid(0x01), got[0].ID)
	assert.Equal(t, tid(0x01), got[1].ID)
	assert.Equal(t, tid(0x02), got[2].ID)
	assert.Equal(t, tid(0x02), got[3].ID)
	require.NotNil(t, got[0].Tool)
	assert.Equal(t, "ctags", got[0].Tool.Name)
}

func TestLicenseAdd_MergeAndReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tool := registerTool(t, s, "nomos")
	key := tid(0x03)

	lic := func(name string) *LicenseEntry {
		return &LicenseEntry{ID: key, License: name, ToolID: tool.ID}
	}

	require.NoError(t, s.LicenseAdd(ctx, []*LicenseEntry{lic("GPL-3.0"), lic("MIT")}, false))
	require.NoError(t, s.LicenseAdd(ctx, []*LicenseEntry{lic("MIT"), lic("Apache-2.0")}, false))

	got, err := s.LicenseGet(ctx, []ContentID{key})
	require.NoError(t, err)
	names := make([]string, len(got))
	for i, e := range got {
		names[i] = e.License
	}
	assert.ElementsMatch(t, []string{"GPL-3.0", "MIT", "Apache-2.0"}, names)

	require.NoError(t, s.LicenseAdd(ctx, []*LicenseEntry{lic("BSD-3-Clause")}, true))
	got, err = s.LicenseGet(ctx, []ContentID{key})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BSD-3-Clause", got[0].License)
}

func TestLicenseMissing_IsExact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tool := registerTool(t, s, "nomos")

	require.NoError(t, s.LicenseAdd(ctx, []*LicenseEntry{
		{ID: tid(0x01), License: "MIT", ToolID: tool.ID},
	}, false))

	got, err := s.LicenseMissing(ctx, []Key{
		{ID: tid(0x01), ToolID: tool.ID},
		{ID: tid(0x02), ToolID: tool.ID},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tid(0x02), got[0])
}

func TestCtagsSearch_PaginatesByContentID(t *testing.T) {
	// Given: a matching symbol in three contents
	s := newTestStore(t)
	ctx := context.Background()
	tool := registerTool(t, s, "ctags")

	require.NoError(t, s.CtagsAdd(ctx, []*CtagsEntry{
		ctag(tid(0x10), tool.ID, "requestHandler", 1),
		ctag(tid(0x20), tool.ID, "responseHandler", 2),
		ctag(tid(0x30), tool.ID, "errorHandler", 3),
		ctag(tid(0x40), tool.ID, "unrelated", 4),
	}, false))

	// When: searching the first page
	page1, err := s.CtagsSearch(ctx, "handler", 2, nil)
	require.NoError(t, err)

	// Then: two results ordered by content id, tools embedded
	require.Len(t, page1, 2)
	assert.Equal(t, tid(0x10), page1[0].ID)
	assert.Equal(t, tid(0x20), page1[1].ID)
	require.NotNil(t, page1[0].Tool)
	assert.Equal(t, "ctags", page1[0].Tool.Name)

	// When: continuing from the last seen id
	cursor := page1[1].ID
	page2, err := s.CtagsSearch(ctx, "handler", 2, &cursor)
	require.NoError(t, err)

	// Then: only strictly greater ids are returned
	require.Len(t, page2, 1)
	assert.Equal(t, tid(0x30), page2[0].ID)
}

func TestCtagsSearch_NoMatchReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tool := registerTool(t, s, "ctags")
	require.NoError(t, s.CtagsAdd(ctx, []*CtagsEntry{
		ctag(tid(0x01), tool.ID, "main", 1),
	}, false))

	got, err := s.CtagsSearch(ctx, "missing", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCtagsSearch_ReflectsReplace(t *testing.T) {
	// Given: a symbol later replaced under conflict update
	s := newTestStore(t)
	ctx := context.Background()
	tool := registerTool(t, s, "ctags")
	key := tid(0x05)

	require.NoError(t, s.CtagsAdd(ctx, []*CtagsEntry{ctag(key, tool.ID, "oldname", 1)}, false))
	require.NoError(t, s.CtagsAdd(ctx, []*CtagsEntry{ctag(key, tool.ID, "newname", 1)}, true))

	// Then: the search index tracked the replacement
	gone, err := s.CtagsSearch(ctx, "oldname", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, gone)

	found, err := s.CtagsSearch(ctx, "newname", 10, nil)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
