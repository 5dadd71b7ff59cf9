// Package decl reads injector declarations from YAML. A declaration file
// names its targets and injection points and carries the callbacks as Risor
// scripts, so injectors can be added without compiling Go.
//
//	groups:
//	  - name: balance
//	    priority: 500
//	    injectors:
//	      - target: game.Player
//	        member: heal
//	        at: {kind: PARAMETER, name: value}
//	        when: {path: value, op: LT, right: 0}
//	        action: set_value(0)
//	    members:
//	      - target: game.Player
//	        name: mixin_greet
//	        action: sprintf("Hello from mixin! health=%d", self.health)
package decl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/jward/mixweave/internal/condition"
	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/model"
	"github.com/jward/mixweave/internal/registry"
	"github.com/jward/mixweave/internal/script"
	"github.com/jward/mixweave/internal/selector"
)

// File is one declaration document.
type File struct {
	Groups    []Group    `yaml:"groups"`
	Injectors []Injector `yaml:"injectors"`
	Members   []Member   `yaml:"members"`
}

// Group is a named set of injectors sharing identity and priority.
type Group struct {
	Name      string     `yaml:"name"`
	Priority  int        `yaml:"priority"`
	Injectors []Injector `yaml:"injectors"`
	Members   []Member   `yaml:"members"`
}

// Member adds a method or attribute to a class. A member with an action is
// a method; otherwise it is an attribute holding Value.
type Member struct {
	Target     string `yaml:"target"`
	Name       string `yaml:"name"`
	Priority   *int   `yaml:"priority"`
	Value      any    `yaml:"value"`
	Action     string `yaml:"action"`
	ActionFile string `yaml:"action_file"`
}

// Injector declares one injector.
type Injector struct {
	Name       string `yaml:"name"`
	Target     string `yaml:"target"`
	Member     string `yaml:"member"`
	At         At     `yaml:"at"`
	Priority   *int   `yaml:"priority"`
	Require    *int   `yaml:"require"`
	Expect     *int   `yaml:"expect"`
	Policy     string `yaml:"policy"`
	When       *When  `yaml:"when"`
	Action     string `yaml:"action"`
	ActionFile string `yaml:"action_file"`
}

// At is an injection point.
type At struct {
	Kind     string    `yaml:"kind"`
	Name     any       `yaml:"name"`
	Selector *Selector `yaml:"selector"`
	Location *Location `yaml:"location"`
}

// Selector is a structural call selector.
type Selector struct {
	Func     string         `yaml:"func"`
	Args     []Arg          `yaml:"args"`
	ArgsMode string         `yaml:"args_mode"`
	Kwargs   map[string]Arg `yaml:"kwargs"`
	KwMode   string         `yaml:"kwargs_mode"`
	StarStar string         `yaml:"starstar"`
	Escalate bool           `yaml:"escalate"`
}

// Arg is an argument pattern. Exactly one of Const, Name or Attr may be
// set; none means any argument. Kind forces the pattern kind, which is the
// only way to match a None literal.
type Arg struct {
	Kind  string `yaml:"kind"`
	Const any    `yaml:"const"`
	Name  string `yaml:"name"`
	Attr  string `yaml:"attr"`
}

// Location narrows candidates.
type Location struct {
	Slice *struct {
		From        *At  `yaml:"from"`
		To          *At  `yaml:"to"`
		IncludeFrom bool `yaml:"include_from"`
		IncludeTo   bool `yaml:"include_to"`
	} `yaml:"slice"`
	Near *struct {
		Anchor      At  `yaml:"anchor"`
		MaxDistance int `yaml:"max_distance"`
	} `yaml:"near"`
	Anchor *struct {
		Anchor    At   `yaml:"anchor"`
		Offset    int  `yaml:"offset"`
		Inclusive bool `yaml:"inclusive"`
	} `yaml:"anchor"`
	Line *struct {
		Line    int `yaml:"line"`
		EndLine int `yaml:"end_line"`
	} `yaml:"line"`
	Occurrence string `yaml:"occurrence"`
	Ordinal    *int   `yaml:"ordinal"`
}

// When is a guard: a comparison, a boolean combination, or a Risor
// expression.
type When struct {
	Path  string `yaml:"path"`
	Op    string `yaml:"op"`
	Right any    `yaml:"right"`
	And   []When `yaml:"and"`
	Or    []When `yaml:"or"`
	Not   *When  `yaml:"not"`
	Expr  string `yaml:"expr"`
}

// Parse decodes a declaration document. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decl: %w", err)
	}
	return &f, nil
}

// ParseFile reads and decodes path.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("decl: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w (in %s)", err, path)
	}
	return f, nil
}

// Batch is a set of specs registered together, under Group when it is
// non-nil.
type Batch struct {
	Group   *registry.Group
	Specs   []registry.Spec
	Members []registry.Member
}

// Registrar is the registration front door specs are submitted to.
type Registrar interface {
	Register(spec registry.Spec) (*registry.Spec, error)
	RegisterGroup(g registry.Group, specs ...registry.Spec) error
	AddMember(m registry.Member) (*registry.Member, error)
	AddGroupMembers(g registry.Group, members ...registry.Member) error
}

// Build converts f into registry specs, compiling actions and expression
// guards with eng. Every invalid injector is reported.
func (f *File) Build(eng *script.Engine) ([]Batch, error) {
	var (
		out  []Batch
		errs error
	)
	if len(f.Injectors) > 0 || len(f.Members) > 0 {
		b := Batch{}
		for i, inj := range f.Injectors {
			s, err := inj.spec(eng, "", i)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			b.Specs = append(b.Specs, s)
		}
		for _, mem := range f.Members {
			m, err := mem.member(eng, "")
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			b.Members = append(b.Members, m)
		}
		out = append(out, b)
	}
	for _, g := range f.Groups {
		if g.Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("decl: group without a name"))
			continue
		}
		b := Batch{Group: &registry.Group{Name: g.Name, Priority: g.Priority}}
		for i, inj := range g.Injectors {
			s, err := inj.spec(eng, g.Name, i)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			b.Specs = append(b.Specs, s)
		}
		for _, mem := range g.Members {
			m, err := mem.member(eng, g.Name)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			b.Members = append(b.Members, m)
		}
		out = append(out, b)
	}
	return out, errs
}

// Register submits batches to r in file order.
func Register(r Registrar, batches []Batch) error {
	for _, b := range batches {
		if b.Group != nil {
			if err := r.RegisterGroup(*b.Group, b.Specs...); err != nil {
				return err
			}
			if err := r.AddGroupMembers(*b.Group, b.Members...); err != nil {
				return err
			}
			continue
		}
		for _, s := range b.Specs {
			if _, err := r.Register(s); err != nil {
				return err
			}
		}
		for _, m := range b.Members {
			if _, err := r.AddMember(m); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load parses data, builds it and registers the result.
func Load(r Registrar, eng *script.Engine, data []byte) error {
	f, err := Parse(data)
	if err != nil {
		return err
	}
	batches, err := f.Build(eng)
	if err != nil {
		return err
	}
	return Register(r, batches)
}

func (inj Injector) spec(eng *script.Engine, group string, i int) (registry.Spec, error) {
	where := fmt.Sprintf("decl: injector %s.%s", inj.Target, inj.Member)
	if group != "" {
		where = fmt.Sprintf("decl: group %s: injector %s.%s", group, inj.Target, inj.Member)
	}

	at, err := inj.At.model()
	if err != nil {
		return registry.Spec{}, fmt.Errorf("%s: %w", where, err)
	}
	policy, err := model.ParsePolicy(inj.Policy)
	if err != nil {
		return registry.Spec{}, fmt.Errorf("%s: %w", where, err)
	}

	name := inj.Name
	if name == "" {
		name = fmt.Sprintf("%s.%s:%s#%d", inj.Target, inj.Member, at.Kind, i)
		if group != "" {
			name = group + "/" + name
		}
	}

	var cb dispatch.Callback
	switch {
	case inj.Action != "" && inj.ActionFile != "":
		return registry.Spec{}, fmt.Errorf("%s: action and action_file are exclusive", where)
	case inj.Action != "":
		cb = eng.Action(name, at.Kind, inj.Action)
	case inj.ActionFile != "":
		if cb, err = eng.ActionFile(name, at.Kind, inj.ActionFile); err != nil {
			return registry.Spec{}, fmt.Errorf("%s: %w", where, err)
		}
	default:
		return registry.Spec{}, fmt.Errorf("%s: no action", where)
	}

	priority := registry.DefaultPriority
	if inj.Priority != nil {
		priority = *inj.Priority
	}

	s := registry.Spec{
		Target:   inj.Target,
		Member:   inj.Member,
		At:       at,
		Callback: cb,
		Priority: priority,
		Require:  inj.Require,
		Expect:   inj.Expect,
		Policy:   policy,
	}
	if inj.When != nil {
		cond, err := inj.When.condition(eng)
		if err != nil {
			return registry.Spec{}, fmt.Errorf("%s: %w", where, err)
		}
		s.When = cond
	}
	return s, nil
}

func (mem Member) member(eng *script.Engine, group string) (registry.Member, error) {
	where := fmt.Sprintf("decl: member %s.%s", mem.Target, mem.Name)
	if group != "" {
		where = fmt.Sprintf("decl: group %s: member %s.%s", group, mem.Target, mem.Name)
	}
	if mem.Name == "" {
		return registry.Member{}, fmt.Errorf("%s: no name", where)
	}
	if _, class, ok := strings.Cut(mem.Target, "."); !ok || class == "" {
		return registry.Member{}, fmt.Errorf("%s: target must be module.Class", where)
	}

	m := registry.Member{Target: mem.Target, Name: mem.Name, Priority: registry.DefaultPriority}
	if mem.Priority != nil {
		m.Priority = *mem.Priority
	}
	label := mem.Target + "." + mem.Name
	switch {
	case mem.Action != "" && mem.ActionFile != "":
		return registry.Member{}, fmt.Errorf("%s: action and action_file are exclusive", where)
	case (mem.Action != "" || mem.ActionFile != "") && mem.Value != nil:
		return registry.Member{}, fmt.Errorf("%s: value and action are exclusive", where)
	case mem.Action != "":
		m.Method = eng.Method(label, mem.Action)
	case mem.ActionFile != "":
		fn, err := eng.MethodFile(label, mem.ActionFile)
		if err != nil {
			return registry.Member{}, fmt.Errorf("%s: %w", where, err)
		}
		m.Method = fn
	default:
		m.Value = mem.Value
	}
	return m, nil
}

func (a At) model() (model.At, error) {
	kind, err := model.ParseKind(a.Kind)
	if err != nil {
		return model.At{}, err
	}
	out := model.At{Kind: kind, Name: a.Name}
	if a.Selector != nil {
		sel, err := a.Selector.model()
		if err != nil {
			return model.At{}, err
		}
		out.Selector = sel
	}
	if a.Location != nil {
		loc, err := a.Location.model()
		if err != nil {
			return model.At{}, err
		}
		out.Location = loc
	}
	return out, nil
}

func (s *Selector) model() (*selector.CallSelector, error) {
	out := &selector.CallSelector{
		ArgsMode: selector.Prefix,
		StarStar: selector.Fail,
		Escalate: s.Escalate,
	}
	if s.Func != "" {
		out.Func = selector.Func(s.Func)
	}
	switch m := upper(s.ArgsMode); m {
	case "":
	case string(selector.Prefix), string(selector.ExactArgs):
		out.ArgsMode = selector.ArgsMode(m)
	default:
		return nil, fmt.Errorf("unknown args_mode %q", s.ArgsMode)
	}
	switch p := upper(s.StarStar); p {
	case "":
	case string(selector.Fail), string(selector.Ignore), string(selector.AssumeMatch):
		out.StarStar = selector.StarStarPolicy(p)
	default:
		return nil, fmt.Errorf("unknown starstar policy %q", s.StarStar)
	}
	for _, a := range s.Args {
		arg, err := a.model()
		if err != nil {
			return nil, err
		}
		out.Args = append(out.Args, arg)
	}
	if s.Kwargs != nil || s.KwMode != "" {
		kw := &selector.Keywords{Mode: selector.Subset, Items: map[string]selector.Arg{}}
		switch m := upper(s.KwMode); m {
		case "":
		case string(selector.Subset), string(selector.ExactKw):
			kw.Mode = selector.KwMode(m)
		default:
			return nil, fmt.Errorf("unknown kwargs_mode %q", s.KwMode)
		}
		for k, a := range s.Kwargs {
			arg, err := a.model()
			if err != nil {
				return nil, err
			}
			kw.Items[k] = arg
		}
		out.Kwargs = kw
	}
	return out, nil
}

func (a Arg) model() (selector.Arg, error) {
	kind := upper(a.Kind)
	if kind == "" {
		switch {
		case a.Const != nil:
			kind = string(selector.ArgConst)
		case a.Name != "":
			kind = string(selector.ArgName)
		case a.Attr != "":
			kind = string(selector.ArgAttr)
		default:
			kind = string(selector.ArgAny)
		}
	}
	switch selector.ArgKind(kind) {
	case selector.ArgAny:
		return selector.Any(), nil
	case selector.ArgConst:
		return selector.Const(a.Const), nil
	case selector.ArgName:
		return selector.Name(a.Name), nil
	case selector.ArgAttr:
		return selector.Attr(a.Attr), nil
	}
	return selector.Arg{}, fmt.Errorf("unknown argument pattern kind %q", a.Kind)
}

func (l *Location) model() (*model.Location, error) {
	out := &model.Location{Ordinal: l.Ordinal}
	switch o := model.Occurrence(upper(l.Occurrence)); o {
	case "":
	case model.All, model.First, model.Last:
		out.Occurrence = o
	default:
		return nil, fmt.Errorf("unknown occurrence %q", l.Occurrence)
	}
	if l.Slice != nil {
		sl := &model.Slice{IncludeFrom: l.Slice.IncludeFrom, IncludeTo: l.Slice.IncludeTo}
		if l.Slice.From != nil {
			at, err := l.Slice.From.model()
			if err != nil {
				return nil, fmt.Errorf("slice from: %w", err)
			}
			sl.From = &at
		}
		if l.Slice.To != nil {
			at, err := l.Slice.To.model()
			if err != nil {
				return nil, fmt.Errorf("slice to: %w", err)
			}
			sl.To = &at
		}
		out.Slice = sl
	}
	if l.Near != nil {
		at, err := l.Near.Anchor.model()
		if err != nil {
			return nil, fmt.Errorf("near: %w", err)
		}
		out.Near = &model.Near{Anchor: at, MaxDistance: l.Near.MaxDistance}
	}
	if l.Anchor != nil {
		at, err := l.Anchor.Anchor.model()
		if err != nil {
			return nil, fmt.Errorf("anchor: %w", err)
		}
		out.Anchor = &model.Anchor{Anchor: at, Offset: l.Anchor.Offset, Inclusive: l.Anchor.Inclusive}
	}
	if l.Line != nil {
		out.Line = &model.Line{Line: l.Line.Line, EndLine: l.Line.EndLine}
	}
	return out, nil
}

func (w *When) condition(eng *script.Engine) (condition.Condition, error) {
	if w.Expr != "" {
		return eng.Condition(w.Expr), nil
	}
	return w.tree()
}

func (w *When) tree() (*condition.When, error) {
	switch {
	case len(w.And) > 0 || len(w.Or) > 0:
		terms := w.And
		op := condition.AndOp
		if len(w.Or) > 0 {
			if len(w.And) > 0 {
				return nil, fmt.Errorf("when: and/or are exclusive")
			}
			terms, op = w.Or, condition.OrOp
		}
		out := &condition.When{Op: op}
		for i := range terms {
			t, err := terms[i].tree()
			if err != nil {
				return nil, err
			}
			out.Terms = append(out.Terms, t)
		}
		return out, nil
	case w.Not != nil:
		t, err := w.Not.tree()
		if err != nil {
			return nil, err
		}
		return condition.Not(t), nil
	case w.Expr != "":
		return nil, fmt.Errorf("when: expr cannot be nested")
	}
	op, err := condition.ParseOp(w.Op)
	if err != nil {
		return nil, fmt.Errorf("when: %w", err)
	}
	return condition.Compare(w.Path, op, w.Right), nil
}

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
