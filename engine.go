package mixweave

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jward/mixweave/internal/decl"
	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/pyfront"
	"github.com/jward/mixweave/internal/registry"
	"github.com/jward/mixweave/internal/script"
	"github.com/jward/mixweave/internal/store"
	"github.com/jward/mixweave/internal/weaver"
)

// traceBatch is how many traces are buffered before a SQLite commit.
const traceBatch = 64

// Engine orchestrates the mixweave pipeline: registration, weaving on first
// load, persistence of woven modules and execution.
type Engine struct {
	logger  *zap.Logger
	reg     *registry.Registry
	weaver  *weaver.Weaver
	runtime *dispatch.Runtime
	scripts *script.Engine

	dbPath      string
	store       *store.Store
	traces      *store.TraceBuffer
	trace       bool
	dumpDir     string
	parallelism int
	stdout      io.Writer
	scriptsDir  string
	scriptsFS   fs.FS

	mu      sync.Mutex
	modules map[string]*loadOnce
}

type loadOnce struct {
	sync.Once
	mod *Module
	err error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by every pipeline stage.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithStore persists woven modules, sites and traces in a SQLite database
// at dbPath.
func WithStore(dbPath string) Option {
	return func(e *Engine) { e.dbPath = dbPath }
}

// WithTrace enables one debug line per callback invocation. With a store
// configured, every invocation is also recorded in the traces table.
func WithTrace(on bool) Option {
	return func(e *Engine) { e.trace = on }
}

// WithDumpDir writes the woven source of every loaded module to
// dir/<module>.py.
func WithDumpDir(dir string) Option {
	return func(e *Engine) { e.dumpDir = dir }
}

// WithParallelism bounds how many modules LoadAll weaves at once. Values
// below 1 mean one worker per module.
func WithParallelism(n int) Option {
	return func(e *Engine) { e.parallelism = n }
}

// WithStdout redirects print in loaded modules.
func WithStdout(w io.Writer) Option {
	return func(e *Engine) { e.stdout = w }
}

// WithScriptsDir sets the directory action_file paths in declaration files
// resolve against.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) { e.scriptsDir = dir }
}

// WithScriptsFS loads action_file scripts from fsys instead of from disk.
// This enables embedding scripts via go:embed.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) { e.scriptsFS = fsys }
}

// New creates an Engine. The store, when configured, is opened and
// migrated here.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:  zap.NewNop(),
		reg:     registry.New(),
		stdout:  os.Stdout,
		modules: make(map[string]*loadOnce),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.dbPath != "" {
		s, err := store.NewStore(e.dbPath)
		if err != nil {
			return nil, fmt.Errorf("mixweave: create store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("mixweave: migrate: %w", err)
		}
		e.store = s
	}

	rtOpts := []dispatch.Option{dispatch.WithLogger(e.logger), dispatch.WithTrace(e.trace)}
	if e.store != nil && e.trace {
		e.traces = store.NewTraceBuffer(e.store, traceBatch)
		rtOpts = append(rtOpts, dispatch.WithSink(e.traces))
	}
	e.runtime = dispatch.NewRuntime(rtOpts...)
	e.weaver = weaver.New(e.reg, weaver.WithLogger(e.logger))

	scriptOpts := []script.Option{script.WithLogger(e.logger)}
	if e.scriptsFS != nil {
		scriptOpts = append(scriptOpts, script.WithFS(e.scriptsFS))
	} else if e.scriptsDir != "" {
		scriptOpts = append(scriptOpts, script.WithDir(e.scriptsDir))
	}
	e.scripts = script.New(scriptOpts...)
	return e, nil
}

// Close flushes buffered traces and releases the database.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	var err error
	if e.traces != nil {
		err = e.traces.Flush()
	}
	return multierr.Append(err, e.store.Close())
}

// Flush commits buffered traces. It is a no-op without a store.
func (e *Engine) Flush() error {
	if e.traces == nil {
		return nil
	}
	return e.traces.Flush()
}

// Store returns the underlying Store, or nil when none is configured.
func (e *Engine) Store() *Store {
	return e.store
}

// Register declares one injector. It fails with ErrRegistrationAfterFreeze
// once the first module has been woven or Freeze was called.
func (e *Engine) Register(inj Injector) (*Injector, error) {
	return e.reg.Register(inj)
}

// RegisterGroup declares injectors that share the identity and priority of
// g.
func (e *Engine) RegisterGroup(g Group, injs ...Injector) error {
	return e.reg.RegisterGroup(g, injs...)
}

// AddMember declares a method or attribute added to a class of a module
// once its class statement runs. Like Register it fails after Freeze.
func (e *Engine) AddMember(m Member) (*Member, error) {
	return e.reg.AddMember(m)
}

// AddGroupMembers declares members that share the identity and priority of
// g.
func (e *Engine) AddGroupMembers(g Group, ms ...Member) error {
	return e.reg.AddGroupMembers(g, ms...)
}

// Freeze closes registration. Weaving freezes the registry implicitly.
func (e *Engine) Freeze() {
	e.reg.Freeze()
}

// Injectors reports how many injectors are registered.
func (e *Engine) Injectors() int {
	return e.reg.Len()
}

// LoadDeclarations registers the injectors of a YAML declaration document.
// Every invalid injector is reported; nothing is registered unless all are
// valid.
func (e *Engine) LoadDeclarations(data []byte) error {
	if err := decl.Load(e, e.scripts, data); err != nil {
		return fmt.Errorf("mixweave: declarations: %w", err)
	}
	return nil
}

// LoadDeclarationFile is LoadDeclarations for a file on disk.
func (e *Engine) LoadDeclarationFile(path string) error {
	f, err := decl.ParseFile(path)
	if err != nil {
		return fmt.Errorf("mixweave: declarations: %w", err)
	}
	batches, err := f.Build(e.scripts)
	if err != nil {
		return fmt.Errorf("mixweave: declarations %s: %w", path, err)
	}
	if err := decl.Register(e, batches); err != nil {
		return fmt.Errorf("mixweave: declarations %s: %w", path, err)
	}
	return nil
}

// Load parses src as module name, weaves it and prepares it for execution.
// A module is woven at most once per Engine: later loads of the same name
// return the first result whatever src they pass.
//
// When some targets fail to weave, Load returns the module with every other
// target woven together with the aggregated error.
func (e *Engine) Load(ctx context.Context, name string, src []byte) (*Module, error) {
	e.mu.Lock()
	o, ok := e.modules[name]
	if !ok {
		o = &loadOnce{}
		e.modules[name] = o
	}
	e.mu.Unlock()

	o.Do(func() { o.mod, o.err = e.load(ctx, name, src) })
	return o.mod, o.err
}

// LoadFile loads the module at path, named after the file without its
// extension.
func (e *Engine) LoadFile(ctx context.Context, path string) (*Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mixweave: read %s: %w", path, err)
	}
	return e.Load(ctx, ModuleName(path), src)
}

// ModuleName derives a module name from a file path.
func ModuleName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func (e *Engine) load(ctx context.Context, name string, src []byte) (*Module, error) {
	t, err := pyfront.Parse(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("mixweave: parse %s: %w", name, err)
	}

	res, weaveErr := e.weaver.Weave(name, t)
	if res == nil {
		return nil, fmt.Errorf("mixweave: weave %s: %w", name, weaveErr)
	}
	m := newModule(res, e.runtime, e.reg.ClassMembers(name), e.logger, e.stdout)

	var errs error
	if weaveErr != nil {
		errs = multierr.Append(errs, fmt.Errorf("mixweave: weave %s: %w", name, weaveErr))
	}
	if err := e.persist(name, src, res.Woven, res.Sites); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := e.dump(name, m.Source()); err != nil {
		errs = multierr.Append(errs, err)
	}

	e.logger.Debug("loaded module",
		zap.String("module", name),
		zap.Int("members", len(e.reg.ClassMembers(name))),
		zap.Strings("woven", res.Woven),
		zap.Int("sites", len(res.Sites)))
	return m, errs
}

// persist records the woven module and its sites. Unchanged modules are
// rewritten as well so woven_at tracks the latest load.
func (e *Engine) persist(name string, src []byte, woven []string, sites []*Site) error {
	if e.store == nil {
		return nil
	}
	rows := make([]*store.Site, len(sites))
	for i, s := range sites {
		callbacks := make([]string, len(s.Entries))
		for j, entry := range s.Entries {
			callbacks[j] = entry.Callback.Name
		}
		rows[i] = &store.Site{
			SiteID:        s.ID,
			Kind:          string(s.Kind),
			Target:        s.Target,
			Member:        s.Member,
			Discriminator: s.Discriminator,
			Ordinal:       s.Ordinal,
			Line:          s.Line,
			Callbacks:     callbacks,
		}
	}
	mod := &store.Module{
		Name:       name,
		SourceHash: store.SourceHash(src),
		WovenHash:  store.WovenHash(rows),
		Targets:    woven,
		WovenAt:    time.Now().UTC(),
	}

	prev, err := e.store.ModuleByName(name)
	if err != nil {
		return fmt.Errorf("mixweave: persist %s: %w", name, err)
	}
	if prev != nil && prev.SourceHash == mod.SourceHash && prev.WovenHash != mod.WovenHash {
		e.logger.Info("injectors changed since last weave",
			zap.String("module", name),
			zap.String("previous", prev.WovenHash),
			zap.String("current", mod.WovenHash))
	}

	if err := e.store.SaveModule(mod, rows); err != nil {
		return fmt.Errorf("mixweave: persist %s: %w", name, err)
	}
	return nil
}

func (e *Engine) dump(name, src string) error {
	if e.dumpDir == "" {
		return nil
	}
	if err := os.MkdirAll(e.dumpDir, 0o755); err != nil {
		return fmt.Errorf("mixweave: dump %s: %w", name, err)
	}
	path := filepath.Join(e.dumpDir, name+".py")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		return fmt.Errorf("mixweave: dump %s: %w", name, err)
	}
	e.logger.Debug("dumped woven module", zap.String("module", name), zap.String("path", path))
	return nil
}
