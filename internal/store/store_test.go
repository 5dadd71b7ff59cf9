package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// saveTestModule stores a module named name with one HEAD and one TAIL site
// on Shop.price.
func saveTestModule(t *testing.T, s *Store, name string) (*Module, []*Site) {
	t.Helper()
	sites := []*Site{
		{SiteID: name + "-head", Kind: "HEAD", Target: "Shop", Member: "price", Line: 3, Callbacks: []string{"audit", "guard"}},
		{SiteID: name + "-tail", Kind: "TAIL", Target: "Shop", Member: "price", Line: 7, Callbacks: []string{"discount"}},
	}
	m := &Module{
		Name:       name,
		SourceHash: SourceHash([]byte("def price(): pass")),
		WovenHash:  WovenHash(sites),
		Targets:    []string{"Shop"},
		WovenAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveModule(m, sites))
	return m, sites
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"metadata", "modules", "sites", "traces"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())

	v, err := s.Meta("schema_version")
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
}

func TestMeta_MissingAndUpsert(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.Meta("nope")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMeta("frozen", "false"))
	require.NoError(t, s.SetMeta("frozen", "true"))
	v, err = s.Meta("frozen")
	require.NoError(t, err)
	assert.Equal(t, "true", v)
}

// =============================================================================
// Modules & Sites
// =============================================================================

func TestSaveModule_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m, sites := saveTestModule(t, s, "shop")

	assert.Positive(t, m.ID)
	for _, site := range sites {
		assert.Positive(t, site.ID)
		assert.Equal(t, m.ID, site.ModuleID)
	}

	got, err := s.ModuleByName("shop")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, m.SourceHash, got.SourceHash)
	assert.Equal(t, m.WovenHash, got.WovenHash)
	assert.Equal(t, []string{"Shop"}, got.Targets)
	assert.Equal(t, 2, got.SiteCount)
	assert.True(t, m.WovenAt.Equal(got.WovenAt))

	stored, err := s.SitesByModule("shop")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "HEAD", stored[0].Kind)
	assert.Equal(t, []string{"audit", "guard"}, stored[0].Callbacks)
	assert.Equal(t, 3, stored[0].Line)
	assert.Equal(t, "TAIL", stored[1].Kind)
}

func TestSaveModule_ReplacesSites(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	first, _ := saveTestModule(t, s, "shop")

	m := &Module{Name: "shop", SourceHash: "new", WovenHash: "new", Targets: []string{"Shop"}}
	sites := []*Site{{SiteID: "p1", Kind: "PARAMETER", Target: "Shop", Member: "price", Discriminator: "qty"}}
	require.NoError(t, s.SaveModule(m, sites))
	assert.Equal(t, first.ID, m.ID, "module row is reused by name")

	stored, err := s.SitesByModule("shop")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "qty", stored[0].Discriminator)

	got, err := s.ModuleByName("shop")
	require.NoError(t, err)
	assert.Equal(t, "new", got.SourceHash)
	assert.Equal(t, 1, got.SiteCount)
}

func TestModuleByName_Missing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m, err := s.ModuleByName("ghost")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestModules_OrderedByName(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	saveTestModule(t, s, "zoo")
	saveTestModule(t, s, "app")

	mods, err := s.Modules()
	require.NoError(t, err)
	require.Len(t, mods, 2)
	assert.Equal(t, "app", mods[0].Name)
	assert.Equal(t, "zoo", mods[1].Name)
}

func TestSitesByTarget(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	saveTestModule(t, s, "shop")

	sites, err := s.SitesByTarget("Shop", "")
	require.NoError(t, err)
	assert.Len(t, sites, 2)

	sites, err = s.SitesByTarget("Shop", "missing")
	require.NoError(t, err)
	assert.Empty(t, sites)
}

func TestDeleteModule_RemovesSitesAndTraces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, sites := saveTestModule(t, s, "shop")
	ctx := context.Background()

	require.NoError(t, s.RecordTrace(ctx, dispatch.Trace{
		ID: "t1", Target: "Shop", Member: "price", Kind: model.Head, Site: sites[0].SiteID, Callback: "audit", At: time.Now(),
	}))
	require.NoError(t, s.RecordTrace(ctx, dispatch.Trace{
		ID: "t2", Target: "Other", Member: "run", Kind: model.Head, Site: "elsewhere", Callback: "x", At: time.Now(),
	}))

	require.NoError(t, s.DeleteModule("shop"))

	m, err := s.ModuleByName("shop")
	require.NoError(t, err)
	assert.Nil(t, m)
	stored, err := s.SitesByModule("shop")
	require.NoError(t, err)
	assert.Empty(t, stored)

	traces, err := s.Traces(TraceFilter{})
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, "elsewhere", traces[0].SiteID)

	require.NoError(t, s.DeleteModule("shop"), "deleting a missing module is a no-op")
}

// =============================================================================
// Traces
// =============================================================================

func TestRecordTrace_Filter(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Second)

	for i, tr := range []dispatch.Trace{
		{ID: "a", Target: "Shop", Member: "price", Kind: model.Head, Site: "s1", Callback: "audit", At: at},
		{ID: "a", Target: "Shop", Member: "price", Kind: model.Tail, Site: "s2", Callback: "discount", Cancelled: true, At: at},
		{ID: "b", Target: "Cart", Member: "total", Kind: model.Invoke, Site: "s3", Callback: "tax", At: at},
	} {
		require.NoError(t, s.RecordTrace(ctx, tr), "trace %d", i)
	}

	all, err := s.Traces(TraceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "audit", all[0].Callback)
	assert.True(t, all[0].RecordedAt.Equal(at))

	shop, err := s.Traces(TraceFilter{Target: "Shop", Member: "price"})
	require.NoError(t, err)
	require.Len(t, shop, 2)
	assert.True(t, shop[1].Cancelled)
	assert.Equal(t, "TAIL", shop[1].Kind)

	bySite, err := s.Traces(TraceFilter{SiteID: "s3"})
	require.NoError(t, err)
	require.Len(t, bySite, 1)
	assert.Equal(t, "b", bySite[0].TraceID)

	limited, err := s.Traces(TraceFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// =============================================================================
// Hashing
// =============================================================================

func TestWovenHash_IgnoresOrderAndLines(t *testing.T) {
	t.Parallel()
	a := []*Site{
		{SiteID: "1", Kind: "HEAD", Target: "T", Member: "m", Line: 1, Callbacks: []string{"x"}},
		{SiteID: "2", Kind: "TAIL", Target: "T", Member: "m", Line: 5, Callbacks: []string{"y"}},
	}
	b := []*Site{
		{SiteID: "2", Kind: "TAIL", Target: "T", Member: "m", Line: 9, Callbacks: []string{"y"}},
		{SiteID: "1", Kind: "HEAD", Target: "T", Member: "m", Line: 2, Callbacks: []string{"x"}},
	}
	assert.Equal(t, WovenHash(a), WovenHash(b))

	b[0].Callbacks = []string{"y", "z"}
	assert.NotEqual(t, WovenHash(a), WovenHash(b))
}

func TestSourceHash_Stable(t *testing.T) {
	t.Parallel()
	h := SourceHash([]byte("x = 1"))
	assert.Len(t, h, 16)
	assert.Equal(t, h, SourceHash([]byte("x = 1")))
	assert.NotEqual(t, h, SourceHash([]byte("x = 2")))
}
