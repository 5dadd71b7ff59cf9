// Package weaver rewrites a module tree so every point selected by a
// registered injector calls into the dispatch layer, and emits the dispatch
// table those points use.
package weaver

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/handlers"
	"github.com/jward/mixweave/internal/location"
	"github.com/jward/mixweave/internal/model"
	"github.com/jward/mixweave/internal/registry"
	"github.com/jward/mixweave/internal/tree"
)

// Result is a woven module.
type Result struct {
	Module string
	Tree   *tree.Tree
	Table  dispatch.Table
	// Sites lists the table entries in weaving order.
	Sites []*dispatch.Site
	// Woven lists the targets that were instrumented.
	Woven []string
}

// Weaver weaves modules against one registry. Each module is woven at most
// once; later requests return the first result.
type Weaver struct {
	reg    *registry.Registry
	logger *zap.Logger

	mu   sync.Mutex
	done map[string]*once
}

type once struct {
	sync.Once
	res *Result
	err error
}

// Option configures a Weaver.
type Option func(*Weaver)

// WithLogger sets the logger for count warnings and weaving summaries.
func WithLogger(l *zap.Logger) Option {
	return func(w *Weaver) { w.logger = l }
}

// New creates a Weaver over reg.
func New(reg *registry.Registry, opts ...Option) *Weaver {
	w := &Weaver{reg: reg, logger: zap.NewNop(), done: make(map[string]*once)}
	for _, o := range opts {
		o(w)
	}
	return w
}

// SiteID derives the stable identifier of a woven point.
func SiteID(target, member string, kind model.Kind, discriminator string, ordinal int) string {
	key := strings.Join([]string{target, member, string(kind), discriminator, strconv.Itoa(ordinal)}, "\x00")
	return fmt.Sprintf("%016x", xxh3.HashString(key))
}

// Weave instruments t, the tree of module, for every registered target that
// lives in it. The registry is frozen first. t itself is never modified.
//
// Targets fail independently: the returned Result holds every target that
// wove successfully, and the error aggregates the failures of the others.
func (w *Weaver) Weave(module string, t *tree.Tree) (*Result, error) {
	w.mu.Lock()
	o, ok := w.done[module]
	if !ok {
		o = &once{}
		w.done[module] = o
	}
	w.mu.Unlock()

	o.Do(func() { o.res, o.err = w.weave(module, t) })
	return o.res, o.err
}

func (w *Weaver) weave(module string, t *tree.Tree) (*Result, error) {
	w.reg.Freeze()
	res := &Result{Module: module, Tree: t.Clone(), Table: dispatch.Table{}}
	var errs error
	for _, target := range w.targets(module, t) {
		next := res.Tree.Clone()
		sites, err := w.weaveTarget(module, target, next)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("weaver: target %s: %w", target, err))
			continue
		}
		res.Tree = next
		res.Woven = append(res.Woven, target)
		for _, s := range sites {
			res.Table[s.ID] = s
			res.Sites = append(res.Sites, s)
		}
		w.logger.Debug("woven target",
			zap.String("module", module),
			zap.String("target", target),
			zap.Int("sites", len(sites)))
	}
	return res, errs
}

// targets lists the registry targets living in module: the module itself and
// module.Class for each module-level class.
func (w *Weaver) targets(module string, t *tree.Tree) []string {
	own := map[string]bool{module: true}
	for _, c := range t.Classes(t.Root) {
		own[module+"."+c] = true
	}
	var out []string
	for _, target := range w.reg.Targets() {
		if own[target] {
			out = append(out, target)
		}
	}
	return out
}

// memberNode finds the body a (target, member) pair addresses.
func memberNode(module, target, member string, t *tree.Tree) (tree.NodeID, bool) {
	if target == module && member == "" {
		return t.Root, true
	}
	class := ""
	if target != module {
		class = strings.TrimPrefix(target, module+".")
	}
	for _, m := range t.Members(t.Root) {
		if m.Class == class && m.Name == member {
			return m.Node, true
		}
	}
	return tree.None, false
}

// planned is one site before instrumentation.
type planned struct {
	site  *dispatch.Site
	cand  location.Candidate
	scope *handlers.Scope
}

type groupKey struct {
	member string
	kind   model.Kind
	disc   string
}

type group struct {
	key     groupKey
	scope   *handlers.Scope
	cands   map[tree.NodeID]location.Candidate
	entries map[tree.NodeID][]dispatch.Entry
}

// weaveTarget plans every site of target against t, enforces counts, and
// only then rewrites t.
func (w *Weaver) weaveTarget(module, target string, t *tree.Tree) ([]*dispatch.Site, error) {
	var groups []*group
	index := map[groupKey]*group{}

	for _, member := range w.reg.Members(target) {
		var scope *handlers.Scope
		if node, ok := memberNode(module, target, member, t); ok {
			scope = handlers.NewScope(t, node)
		}
		for _, kind := range model.Kinds {
			for _, spec := range w.reg.Query(target, member, kind) {
				var found []location.Candidate
				if scope != nil {
					var err error
					found, err = selectCandidates(scope, spec.At)
					if err != nil {
						return nil, fmt.Errorf("%s %s: %w", member, spec.At, err)
					}
				}
				if err := checkCount(w.logger, spec, len(found)); err != nil {
					return nil, err
				}
				if len(found) == 0 {
					continue
				}
				key := groupKey{member: member, kind: kind, disc: spec.At.Discriminator()}
				g, ok := index[key]
				if !ok {
					g = &group{key: key, scope: scope, cands: map[tree.NodeID]location.Candidate{}, entries: map[tree.NodeID][]dispatch.Entry{}}
					index[key] = g
					groups = append(groups, g)
				}
				for _, c := range found {
					g.cands[c.Node] = c
					g.entries[c.Node] = append(g.entries[c.Node], dispatch.Entry{
						Group:    spec.Group,
						Callback: spec.Callback,
						When:     spec.When,
					})
				}
			}
		}
	}

	var plan []planned
	for _, g := range groups {
		ordered := make([]location.Candidate, 0, len(g.cands))
		for _, c := range g.cands {
			ordered = append(ordered, c)
		}
		sort.Slice(ordered, func(i, j int) bool {
			if ordered[i].Pos == ordered[j].Pos {
				return ordered[i].Node < ordered[j].Node
			}
			return ordered[i].Pos.Less(ordered[j].Pos)
		})
		for i, c := range ordered {
			site := &dispatch.Site{
				ID:            SiteID(target, g.key.member, g.key.kind, g.key.disc, i),
				Kind:          g.key.kind,
				Target:        target,
				Member:        g.key.member,
				Discriminator: g.key.disc,
				Ordinal:       i,
				Line:          c.Line,
				Entries:       g.entries[c.Node],
			}
			plan = append(plan, planned{site: site, cand: c, scope: g.scope})
		}
	}

	if err := instrument(plan); err != nil {
		return nil, err
	}
	sites := make([]*dispatch.Site, len(plan))
	for i, p := range plan {
		sites[i] = p.site
	}
	return sites, nil
}

// selectCandidates runs find then the location pipeline for at.
func selectCandidates(scope *handlers.Scope, at model.At) ([]location.Candidate, error) {
	h, err := handlers.For(at.Kind)
	if err != nil {
		return nil, err
	}
	found, err := h.Find(scope, at)
	if err != nil {
		return nil, err
	}
	return location.Apply(found, at.Location, anchorResolver(scope)), nil
}

// anchorResolver resolves an anchor to the first position it selects in the
// same scope. Anchors that fail to resolve select nothing.
func anchorResolver(scope *handlers.Scope) location.AnchorFunc {
	return func(at model.At) (tree.Pos, bool) {
		found, err := selectCandidates(scope, at)
		if err != nil || len(found) == 0 {
			return tree.Pos{}, false
		}
		return found[0].Pos, true
	}
}

// instrument rewrites the tree kind by kind in handlers.Order. Within a
// kind, later positions go first so statement hooks prepended at entry end
// up in parameter order.
func instrument(plan []planned) error {
	for _, kind := range handlers.Order {
		var batch []planned
		for _, p := range plan {
			if p.site.Kind == kind {
				batch = append(batch, p)
			}
		}
		sort.SliceStable(batch, func(i, j int) bool { return batch[j].cand.Pos.Less(batch[i].cand.Pos) })
		h, err := handlers.For(kind)
		if err != nil {
			return err
		}
		for _, p := range batch {
			if err := h.Instrument(p.scope, p.cand, p.site); err != nil {
				return fmt.Errorf("%s %s: %w", p.site.Member, p.site.Kind, err)
			}
		}
	}
	return nil
}
