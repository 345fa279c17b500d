package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// tid builds a content id with a marker byte for readable tests.
func tid(b byte) ContentID {
	var id ContentID
	id[0] = b
	return id
}

func testTool(name string) Tool {
	return Tool{
		Name:    name,
		Version: "1.0.0",
		Configuration: map[string]any{
			"debian-package": name,
			"flags":          []any{"--json"},
		},
	}
}

func registerTool(t *testing.T, s *Store, name string) ToolInfo {
	t.Helper()
	infos, err := s.Register(context.Background(), []Tool{testTool(name)})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	return infos[0]
}

func TestContentID_HexRoundTrip(t *testing.T) {
	id := tid(0xab)
	parsed, err := ParseContentID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseContentID("abc")
	assert.Error(t, err, "short input must be rejected")
	_, err = ParseContentID("zz" + id.String()[2:])
	assert.Error(t, err, "non-hex input must be rejected")
}

func TestContentID_CompareIsByteLexicographic(t *testing.T) {
	assert.Negative(t, tid(0x01).Compare(tid(0x02)))
	assert.Positive(t, tid(0x10).Compare(tid(0x02)))
	assert.Zero(t, tid(0x05).Compare(tid(0x05)))
}

func TestRegister_SameToolTwiceReturnsSameID(t *testing.T) {
	// Given: a store
	s := newTestStore(t)
	ctx := context.Background()

	// When: registering an identical tool twice
	first, err := s.Register(ctx, []Tool{testTool("file")})
	require.NoError(t, err)
	second, err := s.Register(ctx, []Tool{testTool("file")})
	require.NoError(t, err)

	// Then: the same id comes back both times
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestRegister_DistinctConfigurationsGetDistinctIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testTool("file")
	b := testTool("file")
	b.Configuration["flags"] = []any{"--mime"}

	infos, err := s.Register(ctx, []Tool{a, b})
	require.NoError(t, err)
	assert.NotEqual(t, infos[0].ID, infos[1].ID)
}

func TestRegister_NilAndEmptyConfigurationAreEqual(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := Tool{Name: "nomos", Version: "3.1"}
	b := Tool{Name: "nomos", Version: "3.1", Configuration: map[string]any{}}

	infos, err := s.Register(ctx, []Tool{a, b})
	require.NoError(t, err)
	assert.Equal(t, infos[0].ID, infos[1].ID)
}

func TestRegister_ConcurrentSameToolSingleID(t *testing.T) {
	// Given: many goroutines registering the same tool
	s := newTestStore(t)
	ctx := context.Background()

	const n = 16
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			infos, err := s.Register(ctx, []Tool{testTool("ctags")})
			if err == nil && len(infos) == 1 {
				ids[i] = infos[0].ID
			}
		}(i)
	}
	wg.Wait()

	// Then: every registration observed the same id
	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestLookup_AbsentToolReturnsNilNotError(t *testing.T) {
	s := newTestStore(t)

	info, err := s.Lookup(context.Background(), testTool("never-registered"))
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestLookup_FindsRegisteredTool(t *testing.T) {
	s := newTestStore(t)
	registered := registerTool(t, s, "pygments")

	info, err := s.Lookup(context.Background(), testTool("pygments"))
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, registered.ID, info.ID)
}

func TestMimetypeMissing_IsExactAndOrderPreserving(t *testing.T) {
	// Given: a stored record for k1 only
	s := newTestStore(t)
	ctx := context.Background()
	tool := registerTool(t, s, "file")

	require.NoError(t, s.MimetypeAdd(ctx, []*MimetypeEntry{
		{ID: tid(0x01), Mimetype: "text/plain", Encoding: "utf-8", ToolID: tool.ID},
	}, false))

	// When: asking for [k2, k1, k3]
	got, err := s.MimetypeMissing(ctx, []Key{
		{ID: tid(0x02), ToolID: tool.ID},
		{ID: tid(0x01), ToolID: tool.ID},
		{ID: tid(0x03), ToolID: tool.ID},
	})
	require.NoError(t, err)

	// Then: exactly the absent ids come back, input order preserved
	require.Len(t, got, 2)
	assert.Equal(t, tid(0x02), got[0])
	assert.Equal(t, tid(0x03), got[1])
}

func TestMissing_DistinguishesTools(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t1 := registerTool(t, s, "file")
	t2 := registerTool(t, s, "magic")

	require.NoError(t, s.MimetypeAdd(ctx, []*MimetypeEntry{
		{ID: tid(0x01), Mimetype: "text/plain", Encoding: "utf-8", ToolID: t1.ID},
	}, false))

	got, err := s.MimetypeMissing(ctx, []Key{{ID: tid(0x01), ToolID: t2.ID}})
	require.NoError(t, err)
	assert.Len(t, got, 1, "record under another tool must not satisfy the check")
}

func TestScalarAdd_PolicyAsymmetry(t *testing.T) {
	// Given: an existing scalar record R1 at key K
	s := newTestStore(t)
	ctx := context.Background()
	tool := registerTool(t, s, "file")
	key := tid(0x0a)

	r1 := &MimetypeEntry{ID: key, Mimetype: "text/plain", Encoding: "utf-8", ToolID: tool.ID}
	require.NoError(t, s.MimetypeAdd(ctx, []*MimetypeEntry{r1}, false))

	r2 := &MimetypeEntry{ID: key, Mimetype: "application/json", Encoding: "us-ascii", ToolID: tool.ID}

	// When: adding R2 with the default policy
	require.NoError(t, s.MimetypeAdd(ctx, []*MimetypeEntry{r2}, false))

	// Then: the existing record wins
	got, err := s.MimetypeGet(ctx, []ContentID{key})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "text/plain", got[0].Mimetype)

	// When: adding R2 with conflict update
	require.NoError(t, s.MimetypeAdd(ctx, []*MimetypeEntry{r2}, true))

	// Then: the new record replaced it entirely
	got, err = s.MimetypeGet(ctx, []ContentID{key})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "application/json", got[0].Mimetype)
	assert.Equal(t, "us-ascii", got[0].Encoding)
}

func TestLanguageAdd_PolicyAsymmetry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tool := registerTool(t, s, "pygments")
	key := tid(0x0b)

	require.NoError(t, s.LanguageAdd(ctx, []*LanguageEntry{
		{ID: key, Lang: "python", ToolID: tool.ID},
	}, false))
	require.NoError(t, s.LanguageAdd(ctx, []*LanguageEntry{
		{ID: key, Lang: "go", ToolID: tool.ID},
	}, false))

	got, err := s.LanguageGet(ctx, []ContentID{key})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "python", got[0].Lang, "default policy drops the new value")

	require.NoError(t, s.LanguageAdd(ctx, []*LanguageEntry{
		{ID: key, Lang: "go", ToolID: tool.ID},
	}, true))
	got, err = s.LanguageGet(ctx, []ContentID{key})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "go", got[0].Lang, "update policy replaces the value")
}

func TestMetadataAdd_ReaddIdenticalIsNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tool := registerTool(t, s, "translator")
	key := tid(0x0c)
	doc := []byte(`{"name":"leftpad","version":"0.0.3"}`)

	entry := &MetadataEntry{ID: key, Metadata: doc, ToolID: tool.ID}
	require.NoError(t, s.MetadataAdd(ctx, []*MetadataEntry{entry}, false))
	require.NoError(t, s.MetadataAdd(ctx, []*MetadataEntry{entry}, true))
	require.NoError(t, s.MetadataAdd(ctx, []*MetadataEntry{entry}, false))

	got, err := s.MetadataGet(ctx, []ContentID{key})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, string(doc), string(got[0].Metadata))
}

func TestGet_EmbedsFullToolAndOmitsUnknownIDs(t *testing.T) {
	// Given: one stored record
	s := newTestStore(t)
	ctx := context.Background()
	tool := registerTool(t, s, "file")

	require.NoError(t, s.MimetypeAdd(ctx, []*MimetypeEntry{
		{ID: tid(0x01), Mimetype: "text/plain", Encoding: "utf-8", ToolID: tool.ID},
	}, false))

	// When: requesting a known and an unknown id
	got, err := s.MimetypeGet(ctx, []ContentID{tid(0x01), tid(0x7f)})
	require.NoError(t, err)

	// Then: the unknown id is silently omitted, the tool fully resolved
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Tool)
	assert.Equal(t, "file", got[0].Tool.Name)
	assert.Equal(t, "1.0.0", got[0].Tool.Version)
	assert.Equal(t, "file", got[0].Tool.Configuration["debian-package"])
}

func TestOpen_SecondOpenerFailsWhileLocked(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = s1.Close() }()

	_, err = Open(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}

func TestOpen_ReopenAfterCloseSeesData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := Open(dir)
	require.NoError(t, err)
	infos, err := s1.Register(ctx, []Tool{testTool("file")})
	require.NoError(t, err)
	require.NoError(t, s1.MimetypeAdd(ctx, []*MimetypeEntry{
		{ID: tid(0x01), Mimetype: "text/x-go", Encoding: "utf-8", ToolID: infos[0].ID},
	}, false))
	require.NoError(t, s1.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	got, err := s2.MimetypeGet(ctx, []ContentID{tid(0x01)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "text/x-go", got[0].Mimetype)
}
