package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/mixweave/internal/store"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	got := findRepoRoot(root)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	deep := filepath.Join(root, "sub", "deep")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}

	got := findRepoRoot(deep)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NoGitAncestor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findRepoRoot(dir)
	assert.Equal(t, dir, got)
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.Error(t, validateFormat("yaml"))
}

func TestParseCallArgs(t *testing.T) {
	t.Parallel()
	args, kwargs, err := parseCallArgs(
		[]string{"3", "2.5", "true", "hero", "[1, 2]"},
		[]string{"scale=3", "mode=A"},
	)
	require.NoError(t, err)
	assert.Equal(t, []any{3, 2.5, true, "hero", []any{1, 2}}, args)
	assert.Equal(t, map[string]any{"scale": 3, "mode": "A"}, kwargs)

	_, _, err = parseCallArgs(nil, []string{"novalue"})
	assert.Error(t, err)
	_, _, err = parseCallArgs([]string{"[1, 2"}, nil)
	assert.Error(t, err)
}

func testCommand() *cobra.Command {
	c := &cobra.Command{Use: "test"}
	f := c.Flags()
	f.String("db", "", "")
	f.String("format", "json", "")
	f.String("log-level", "warn", "")
	f.Bool("trace", false, "")
	f.StringSlice("decl", nil, "")
	f.Int("parallelism", 0, "")
	return c
}

// The config tests touch the process environment, working directory and
// flagConfig, so they do not run in parallel.

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	flagConfig = ""

	c, err := loadConfig(testCommand())
	require.NoError(t, err)
	assert.Equal(t, "json", c.Format)
	assert.Equal(t, "warn", c.LogLevel)
	assert.False(t, c.Trace)
	assert.Empty(t, c.Decl)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\ntrace: true\ndecl: [a.yaml, b.yaml]\nparallelism: 4\n"), 0o644))
	flagConfig = path
	t.Cleanup(func() { flagConfig = "" })
	t.Setenv("MIXWEAVE_LOG_LEVEL", "debug")

	c, err := loadConfig(testCommand())
	require.NoError(t, err)
	assert.Equal(t, "debug", c.LogLevel)
	assert.True(t, c.Trace)
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, c.Decl)
	assert.Equal(t, 4, c.Parallelism)
}

func TestLoadConfig_FlagWins(t *testing.T) {
	t.Chdir(t.TempDir())
	flagConfig = ""
	t.Setenv("MIXWEAVE_FORMAT", "text")

	cmd := testCommand()
	require.NoError(t, cmd.Flags().Set("format", "json"))
	c, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "json", c.Format)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	flagConfig = filepath.Join(t.TempDir(), "nope.yaml")
	t.Cleanup(func() { flagConfig = "" })

	_, err := loadConfig(testCommand())
	assert.Error(t, err)
}

func TestResolveDBPath(t *testing.T) {
	t.Cleanup(func() { cfg = nil })

	cfg = &config{}
	assert.Equal(t, filepath.Join("/repo", ".mixweave", "mixweave.db"), resolveDBPath("/repo"))

	cfg = &config{DB: "data/w.db"}
	assert.Equal(t, filepath.Join("/repo", "data", "w.db"), resolveDBPath("/repo"))

	cfg = &config{DB: "/abs/w.db"}
	assert.Equal(t, "/abs/w.db", resolveDBPath("/repo"))
}

func TestOutputResultText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := outputResultText(&buf, CLIResult{Command: "sites", Results: []CLISite{{
		ID: "abc", Kind: "HEAD", Target: "game", Member: "heal", Line: 3, Callbacks: []string{"a", "b"},
	}}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "CALLBACKS")
	assert.Contains(t, buf.String(), "a,b")

	buf.Reset()
	err = outputResultText(&buf, CLIResult{Results: CLIRun{Module: "game", Call: "heal", Repr: "0", Stdout: "hi\n"}})
	require.NoError(t, err)
	assert.Equal(t, "hi\nheal -> 0\n", buf.String())

	buf.Reset()
	err = outputResultText(&buf, CLIResult{Results: []CLITrace{{TraceID: "t1", Kind: "TAIL", Callback: "cb", RecordedAt: time.Now()}}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "t1")

	assert.Error(t, outputResultText(&buf, CLIResult{Results: 42}))
}

func TestJSONValue(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []any{int64(1)}, jsonValue([]any{int64(1)}))
	assert.Nil(t, jsonValue(func() {}))
}

func TestDropModules(t *testing.T) {
	t.Parallel()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "drop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())

	sites := []*store.Site{{SiteID: "s1", Kind: "HEAD", Target: "game", Member: "heal", Line: 2, Callbacks: []string{"cb"}}}
	for _, name := range []string{"game", "shop"} {
		require.NoError(t, s.SaveModule(&store.Module{Name: name, Targets: []string{name}, WovenAt: time.Now().UTC()}, sites))
	}

	dropped, err := dropModules(s, []string{"game"})
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, "game", dropped[0].Name)
	assert.Equal(t, 1, dropped[0].SiteCount)

	m, err := s.ModuleByName("game")
	require.NoError(t, err)
	assert.Nil(t, m)
	left, err := s.SitesByModule("game")
	require.NoError(t, err)
	assert.Empty(t, left)

	mods, err := s.Modules()
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, "shop", mods[0].Name)

	_, err = dropModules(s, []string{"game"})
	assert.Error(t, err)
}
