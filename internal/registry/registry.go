// Package registry stores injector declarations. Registration happens before
// weaving; Freeze sorts every declaration once and turns the registry
// read-only for the rest of the process.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jward/mixweave/internal/condition"
	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/model"
)

// ErrRegistrationAfterFreeze is returned by Register and AddMember once
// Freeze ran.
var ErrRegistrationAfterFreeze = errors.New("registry: registration after freeze")

// DefaultPriority is the priority declaration files use when none is given.
const DefaultPriority = 100

// Spec declares one injector. Specs are immutable once registered.
type Spec struct {
	Group         string
	GroupPriority int
	Target        string
	// Member is the function or method name; empty addresses the module body.
	Member   string
	At       model.At
	Callback dispatch.Callback
	Priority int
	Require  *int
	Expect   *int
	Policy   model.Policy
	When     condition.Condition

	index int
}

// Index is the registration order of the spec.
func (s *Spec) Index() int { return s.index }

// Key is the (target, member, kind, discriminator) lookup key.
func (s *Spec) Key() Key {
	return Key{Target: s.Target, Member: s.Member, Kind: s.At.Kind, Discriminator: s.At.Discriminator()}
}

// Key addresses specs sharing one injection point declaration.
type Key struct {
	Target        string
	Member        string
	Kind          model.Kind
	Discriminator string
}

// Count is a convenience for Spec.Require and Spec.Expect.
func Count(n int) *int { return &n }

// Group is a named set of injectors sharing identity and priority.
type Group struct {
	Name     string
	Priority int
}

// Registry is an ordered, freezable collection of specs.
type Registry struct {
	mu      sync.RWMutex
	specs   []*Spec
	members []*Member
	frozen  bool
	next    int
}

// New returns an empty, unfrozen registry.
func New() *Registry {
	return &Registry{}
}

// Register validates spec and appends it with the next registration index.
func (r *Registry) Register(spec Spec) (*Spec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return nil, ErrRegistrationAfterFreeze
	}
	if err := validate(&spec); err != nil {
		return nil, err
	}
	if spec.Policy == "" {
		spec.Policy = model.PolicyError
	}
	spec.index = r.next
	r.next++
	s := spec
	r.specs = append(r.specs, &s)
	return &s, nil
}

// RegisterGroup registers specs that inherit g's identity and priority.
func (r *Registry) RegisterGroup(g Group, specs ...Spec) error {
	for _, s := range specs {
		s.Group = g.Name
		s.GroupPriority = g.Priority
		if _, err := r.Register(s); err != nil {
			return fmt.Errorf("registry: group %s: %w", g.Name, err)
		}
	}
	return nil
}

func validate(s *Spec) error {
	if s.Target == "" {
		return fmt.Errorf("registry: spec has no target")
	}
	if _, err := model.ParseKind(string(s.At.Kind)); err != nil {
		return fmt.Errorf("registry: %s.%s: %w", s.Target, s.Member, err)
	}
	if !s.Callback.Valid() {
		return fmt.Errorf("registry: %s.%s %s: missing callback", s.Target, s.Member, s.At)
	}
	if s.Callback.Kind != s.At.Kind {
		return fmt.Errorf("registry: %s.%s: %s callback %q cannot serve %s", s.Target, s.Member, s.Callback.Kind, s.Callback.Name, s.At.Kind)
	}
	if s.At.Selector != nil && s.At.Kind != model.Invoke {
		return fmt.Errorf("registry: %s.%s: selectors only apply to INVOKE, got %s", s.Target, s.Member, s.At.Kind)
	}
	if s.At.Kind == model.Parameter && s.At.Path() == "" {
		return fmt.Errorf("registry: %s.%s: PARAMETER needs a parameter name", s.Target, s.Member)
	}
	if s.At.Kind == model.Attribute && s.At.Path() == "" {
		return fmt.Errorf("registry: %s.%s: ATTRIBUTE needs an attribute path", s.Target, s.Member)
	}
	if s.At.Kind == model.Invoke && s.At.Discriminator() == "" {
		return fmt.Errorf("registry: %s.%s: INVOKE needs a call path or selector function", s.Target, s.Member)
	}
	return nil
}

// Freeze sorts the specs by (group priority, priority, group, callback name,
// registration index), sorts class members the same way by name, and blocks
// further registration. Calling it again is a no-op.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return
	}
	sort.SliceStable(r.specs, func(i, j int) bool { return less(r.specs[i], r.specs[j]) })
	sortMembers(r.members)
	r.frozen = true
}

func less(a, b *Spec) bool {
	switch {
	case a.GroupPriority != b.GroupPriority:
		return a.GroupPriority < b.GroupPriority
	case a.Priority != b.Priority:
		return a.Priority < b.Priority
	case a.Group != b.Group:
		return a.Group < b.Group
	case a.Callback.Name != b.Callback.Name:
		return a.Callback.Name < b.Callback.Name
	}
	return a.index < b.index
}

// Frozen reports whether Freeze ran.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Query returns the specs for (target, member, kind) in registry order.
// Before Freeze the order is registration order.
func (r *Registry) Query(target, member string, kind model.Kind) []*Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Spec
	for _, s := range r.specs {
		if s.Target == target && s.Member == member && s.At.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// ForTarget returns every spec of target in registry order.
func (r *Registry) ForTarget(target string) []*Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Spec
	for _, s := range r.specs {
		if s.Target == target {
			out = append(out, s)
		}
	}
	return out
}

// Targets lists the distinct targets in first-seen registry order.
func (r *Registry) Targets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, s := range r.specs {
		if !seen[s.Target] {
			seen[s.Target] = true
			out = append(out, s.Target)
		}
	}
	return out
}

// Members lists the distinct members of target in first-seen registry order.
func (r *Registry) Members(target string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range r.ForTarget(target) {
		if !seen[s.Member] {
			seen[s.Member] = true
			out = append(out, s.Member)
		}
	}
	return out
}

// Len is the number of registered specs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}
