// Package interp executes woven module trees. Hook nodes left by the weaver
// call into the dispatch runtime; everything else evaluates with Python
// semantics over a small value model.
package interp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/tree"
)

// MaxDepth bounds nested function calls.
const MaxDepth = 256

// Module is one executable module. Calls into a Module are serialized.
type Module struct {
	Name string

	tree    *tree.Tree
	table   dispatch.Table
	rt      *dispatch.Runtime
	logger  *zap.Logger
	stdout  io.Writer
	globals *frame
	builtin map[string]any
	classes map[string]*Class
	members []ClassMember

	mu       sync.Mutex
	executed bool
	depth    int
}

// Option configures a Module.
type Option func(*Module)

// WithStdout redirects print.
func WithStdout(w io.Writer) Option {
	return func(m *Module) { m.stdout = w }
}

// WithLogger sets the logger for execution diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(m *Module) { m.logger = l }
}

// ClassMember is a method or attribute added to a module-level class as soon
// as its class statement runs.
type ClassMember struct {
	Class string
	Name  string
	// Method implements the member; nil binds Value as a class attribute.
	Method dispatch.MethodFunc
	Value  any
}

// WithMembers adds members to the module's classes. Later members replace
// earlier ones of the same name.
func WithMembers(ms ...ClassMember) Option {
	return func(m *Module) { m.members = append(m.members, ms...) }
}

// New prepares t for execution. Hooks in t resolve their sites in table and
// dispatch through rt.
func New(name string, t *tree.Tree, table dispatch.Table, rt *dispatch.Runtime, opts ...Option) *Module {
	if rt == nil {
		rt = dispatch.NewRuntime()
	}
	m := &Module{
		Name:   name,
		tree:   t,
		table:  table,
		rt:     rt,
		logger: zap.NewNop(),
		stdout: os.Stdout,
	}
	for _, o := range opts {
		o(m)
	}
	m.classes = builtinClasses()
	m.builtin = m.builtins()
	m.globals = &frame{module: m, vars: map[string]any{"__name__": name}}
	return m
}

// Exec runs the module body once. Later calls are no-ops.
func (m *Module) Exec(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exec(ctx)
}

func (m *Module) exec(ctx context.Context) error {
	if m.executed {
		return nil
	}
	m.executed = true
	_, err := m.execBlock(ctx, m.globals, m.tree.Body(m.tree.Root))
	if err != nil {
		return fmt.Errorf("interp: module %s: %w", m.Name, err)
	}
	return nil
}

// Global returns a module-level binding.
func (m *Module) Global(name string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.globals.vars[name]
	return v, ok
}

// Call invokes the module-level callable name. Arguments are converted with
// FromGo.
func (m *Module) Call(ctx context.Context, name string, args ...any) (any, error) {
	return m.CallKw(ctx, name, args, nil)
}

// CallKw is Call with keyword arguments.
func (m *Module) CallKw(ctx context.Context, name string, args []any, kwargs map[string]any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.exec(ctx); err != nil {
		return nil, err
	}
	fn, ok := m.globals.vars[name]
	if !ok {
		return nil, fmt.Errorf("interp: %s has no attribute %q", m.Name, name)
	}
	return m.call(ctx, fn, convertArgs(args), convertKwargs(kwargs))
}

// CallMethod invokes method on recv, an instance created by this module.
func (m *Module) CallMethod(ctx context.Context, recv any, method string, args ...any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.exec(ctx); err != nil {
		return nil, err
	}
	fn, err := m.getattr(recv, method)
	if err != nil {
		return nil, err
	}
	return m.call(ctx, fn, convertArgs(args), nil)
}

// GetAttr reads an attribute of a program value.
func (m *Module) GetAttr(v any, name string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getattr(v, name)
}

func convertArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = FromGo(a)
	}
	return out
}

func convertKwargs(kwargs map[string]any) map[string]any {
	if len(kwargs) == 0 {
		return nil
	}
	out := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		out[k] = FromGo(v)
	}
	return out
}

// frame is one activation: the module body, a class body or a function call.
type frame struct {
	module *Module
	vars   map[string]any
	parent *frame

	fn        *Function
	self      any
	classBody bool

	ret    any
	curExc *Exception
	gen    *List
}

func (f *frame) lookup(name string) (any, bool) {
	for cur := f; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	if v, ok := f.module.globals.vars[name]; ok {
		return v, true
	}
	v, ok := f.module.builtin[name]
	return v, ok
}

// errStopGenerator ends a generator early. It is never catchable by
// program code.
var errStopGenerator = errors.New("interp: generator stopped")

// flow is how a statement completed.
type flow uint8

const (
	flowNormal flow = iota
	flowReturn
	flowBreak
	flowContinue
)
