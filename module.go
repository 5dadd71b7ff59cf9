package mixweave

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/interp"
	"github.com/jward/mixweave/internal/pyfront"
	"github.com/jward/mixweave/internal/tree"
	"github.com/jward/mixweave/internal/weaver"
)

// Module is a woven, executable module. The module body runs on the first
// call into it. Calls are serialized per module.
type Module struct {
	Name string
	// Woven lists the targets that were instrumented.
	Woven []string
	// Sites lists the dispatch sites in weaving order.
	Sites []*Site

	tree *tree.Tree
	mod  *interp.Module
}

func newModule(res *weaver.Result, rt *dispatch.Runtime, members []*Member, logger *zap.Logger, stdout io.Writer) *Module {
	cms := make([]interp.ClassMember, len(members))
	for i, m := range members {
		cms[i] = interp.ClassMember{Class: m.Class(), Name: m.Name, Method: m.Method, Value: m.Value}
	}
	return &Module{
		Name:  res.Module,
		Woven: res.Woven,
		Sites: res.Sites,
		tree:  res.Tree,
		mod: interp.New(res.Module, res.Tree, res.Table, rt,
			interp.WithLogger(logger), interp.WithStdout(stdout), interp.WithMembers(cms...)),
	}
}

// Exec runs the module body. Later calls are no-ops.
func (m *Module) Exec(ctx context.Context) error {
	return m.mod.Exec(ctx)
}

// Call invokes a module-level function or class.
func (m *Module) Call(ctx context.Context, name string, args ...any) (any, error) {
	return m.mod.Call(ctx, name, args...)
}

// CallKw is Call with keyword arguments.
func (m *Module) CallKw(ctx context.Context, name string, args []any, kwargs map[string]any) (any, error) {
	return m.mod.CallKw(ctx, name, args, kwargs)
}

// CallMethod invokes method on an instance created by this module.
func (m *Module) CallMethod(ctx context.Context, recv any, method string, args ...any) (any, error) {
	return m.mod.CallMethod(ctx, recv, method, args...)
}

// GetAttr reads an attribute of a value created by this module.
func (m *Module) GetAttr(v any, name string) (any, error) {
	return m.mod.GetAttr(v, name)
}

// Global returns a module-level binding.
func (m *Module) Global(name string) (any, bool) {
	return m.mod.Global(name)
}

// Source renders the woven module as Python-like source with every hook
// visible.
func (m *Module) Source() string {
	return pyfront.Render(m.tree)
}
