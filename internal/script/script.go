// Package script embeds Risor so declarations can carry guards and
// callbacks as source text instead of compiled Go.
package script

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/jward/mixweave/internal/condition"
	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/model"
)

// Extension is the file extension of script files and importable modules.
const Extension = ".risor"

// Engine evaluates Risor guards and actions against dispatch contexts.
type Engine struct {
	logger     *zap.Logger
	scriptsDir string
	fsys       fs.FS
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger behind the log builtins.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithFS loads script files from fsys instead of from disk. Import
// statements inside scripts resolve against the same filesystem.
func WithFS(fsys fs.FS) Option {
	return func(e *Engine) { e.fsys = fsys }
}

// WithDir sets the directory relative script paths resolve against.
func WithDir(dir string) Option {
	return func(e *Engine) { e.scriptsDir = dir }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Load reads a script file. With an fs.FS configured the path is relative
// to its root; otherwise relative paths resolve against the scripts
// directory.
func (e *Engine) Load(path string) (string, error) {
	if e.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(e.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("script: loading %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(e.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("script: loading %s: %w", fullPath, err)
	}
	return string(data), nil
}

// Expr is a Risor expression used as an injector guard. The dispatch
// context is visible as globals (value, args, self, locals and so on).
type Expr struct {
	engine *Engine
	Source string
}

var _ condition.Condition = (*Expr)(nil)

// Condition wraps src as a guard.
func (e *Engine) Condition(src string) *Expr {
	return &Expr{engine: e, Source: src}
}

// Eval runs the expression and reports its truthiness.
func (x *Expr) Eval(ctx context.Context, vars condition.Vars) (bool, error) {
	res, err := x.engine.eval(ctx, x.Source, "<when>", x.engine.contextGlobals(vars))
	if err != nil {
		return false, err
	}
	return res.IsTruthy(), nil
}

func (x *Expr) String() string { return x.Source }

// Action builds a callback of kind that runs src once per dispatch. Besides
// the context globals the script sees the control builtins cancel,
// set_value, set_return_value, call_args, set_call_args and call_original.
func (e *Engine) Action(name string, kind model.Kind, src string) dispatch.Callback {
	return dispatch.Generic(name, kind, func(ctx context.Context, ci *dispatch.Info) error {
		ctl := &control{ci: ci}
		globals := e.contextGlobals(ci.Vars())
		for k, v := range ctl.builtins() {
			globals[k] = v
		}
		_, err := e.eval(ctx, src, name, globals)
		if ctl.err != nil {
			return ctl.err
		}
		return err
	})
}

// ActionFile loads path and builds an Action from it.
func (e *Engine) ActionFile(name string, kind model.Kind, path string) (dispatch.Callback, error) {
	src, err := e.Load(path)
	if err != nil {
		return dispatch.Callback{}, err
	}
	return e.Action(name, kind, src), nil
}

// Method builds a class member that runs src on every call. The script sees
// self as a map of the instance attributes, plus args, kwargs and the log
// builtins; its result is the return value of the call.
func (e *Engine) Method(name, src string) dispatch.MethodFunc {
	return func(ctx context.Context, self any, args []any, kwargs map[string]any) (any, error) {
		if kwargs == nil {
			kwargs = map[string]any{}
		}
		vars := condition.Vars{"member": name, "self": self, "args": args, "kwargs": kwargs}
		res, err := e.eval(ctx, src, name, e.contextGlobals(vars))
		if err != nil {
			return nil, err
		}
		return fromObject(res), nil
	}
}

// MethodFile loads path and builds a Method from it.
func (e *Engine) MethodFile(name, path string) (dispatch.MethodFunc, error) {
	src, err := e.Load(path)
	if err != nil {
		return nil, err
	}
	return e.Method(name, src), nil
}

func (e *Engine) eval(ctx context.Context, source, label string, globals map[string]any) (object.Object, error) {
	opts := make([]risor.Option, 0, len(globals)+1)
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := e.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	res, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("script: %s: %w", label, err)
	}
	return res, nil
}

// buildImporter returns an importer for the configured script source, or
// nil when scripts are inline only.
func (e *Engine) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}
	sort.Strings(globalNames)

	if e.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    e.fsys,
			Extensions:  []string{Extension},
		})
	}
	if e.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   e.scriptsDir,
			Extensions:  []string{Extension},
		})
	}
	return nil
}

// contextGlobals converts the dispatch view into Risor globals plus the log
// builtins.
func (e *Engine) contextGlobals(vars condition.Vars) map[string]any {
	globals := make(map[string]any, len(vars)+4)
	for k, v := range vars {
		globals[k] = toObject(v)
	}
	for k, v := range e.logBuiltins(vars) {
		globals[k] = v
	}
	return globals
}
