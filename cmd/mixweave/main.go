package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jward/mixweave"
	"github.com/jward/mixweave/internal/logging"
	"github.com/jward/mixweave/internal/store"
)

var flagConfig string

// cfg is resolved from flags, environment and the config file before every
// command runs.
var cfg *config

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "mixweave",
	Short:         "Declarative code injection for Python-like programs",
	Long:          "mixweave weaves injectors declared in YAML files into Python-like modules, runs the woven code and records the woven sites and dispatch traces in SQLite.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := validateFormat(c.Format); err != nil {
			return err
		}
		cfg = c
		return nil
	},
	// No Run; prints help by default.
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default: mixweave.yaml in the working directory, if present)")
	pf.String("db", "", "database path (default: .mixweave/mixweave.db relative to repo root)")
	pf.String("format", "json", "output format: json|text")
	pf.String("log-level", "warn", "log level: debug|info|warn|error")
	pf.Bool("log-dev", false, "human-readable console logs")
	pf.Bool("trace", false, "log and record every callback invocation")
	pf.String("dump-dir", "", "write woven sources to this directory")
	pf.StringSlice("decl", nil, "declaration file(s) to register before weaving")
	pf.String("scripts-dir", "", "directory action_file paths resolve against (default: the declaration file's directory)")
	pf.Int("parallelism", 0, "modules woven concurrently (0: one worker per module)")

	rootCmd.AddCommand(weaveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sitesCmd)
	rootCmd.AddCommand(tracesCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(demoCmd)
}

// newLogger builds the logger the configuration asks for.
func newLogger() (*zap.Logger, error) {
	return logging.New(cfg.LogLevel, cfg.LogDev)
}

// newEngine builds an Engine from the configuration and registers every
// declaration file. withStore controls whether the SQLite store is opened.
func newEngine(withStore bool, extra ...mixweave.Option) (*mixweave.Engine, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	opts := []mixweave.Option{
		mixweave.WithLogger(logger),
		mixweave.WithTrace(cfg.Trace),
		mixweave.WithParallelism(cfg.Parallelism),
	}
	if cfg.DumpDir != "" {
		opts = append(opts, mixweave.WithDumpDir(cfg.DumpDir))
	}
	scriptsDir := cfg.ScriptsDir
	if scriptsDir == "" && len(cfg.Decl) > 0 {
		scriptsDir = filepath.Dir(cfg.Decl[0])
	}
	if scriptsDir != "" {
		opts = append(opts, mixweave.WithScriptsDir(scriptsDir))
	}
	if withStore {
		dbPath, err := ensureDBPath()
		if err != nil {
			return nil, err
		}
		opts = append(opts, mixweave.WithStore(dbPath))
	}
	opts = append(opts, extra...)

	e, err := mixweave.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	for _, path := range cfg.Decl {
		if err := e.LoadDeclarationFile(path); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

// ensureDBPath resolves the database path and creates its directory.
func ensureDBPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd))
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	return dbPath, nil
}

// openStore opens an existing database for the inspection commands.
func openStore() (*store.Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd))
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'mixweave weave' first)", dbPath)
	}
	return store.NewStore(dbPath)
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the configured database path or the default.
func resolveDBPath(repoRoot string) string {
	if cfg != nil && cfg.DB != "" {
		if filepath.IsAbs(cfg.DB) {
			return cfg.DB
		}
		return filepath.Join(repoRoot, cfg.DB)
	}
	return filepath.Join(repoRoot, ".mixweave", "mixweave.db")
}
