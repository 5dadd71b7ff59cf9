package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jward/mixweave/internal/dispatch"
)

// Member adds a method or a plain attribute to a class once the class is
// defined. Target is "module.Class".
type Member struct {
	Group         string
	GroupPriority int
	Priority      int
	Target        string
	Name          string
	// Method implements the member; nil declares an attribute holding Value.
	Method dispatch.MethodFunc
	Value  any

	index int
}

// Index is the registration order of the member.
func (m *Member) Index() int { return m.index }

// Class is the class part of Target.
func (m *Member) Class() string {
	_, class, _ := strings.Cut(m.Target, ".")
	return class
}

// Module is the module part of Target.
func (m *Member) Module() string {
	module, _, _ := strings.Cut(m.Target, ".")
	return module
}

// AddMember validates m and appends it with the next registration index.
func (r *Registry) AddMember(m Member) (*Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return nil, ErrRegistrationAfterFreeze
	}
	module, class, ok := strings.Cut(m.Target, ".")
	if !ok || module == "" || class == "" || strings.Contains(class, ".") {
		return nil, fmt.Errorf("registry: member %q: target %q is not module.Class", m.Name, m.Target)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("registry: member of %s has no name", m.Target)
	}
	m.index = r.next
	r.next++
	mm := m
	r.members = append(r.members, &mm)
	return &mm, nil
}

// AddGroupMembers adds members that inherit g's identity and priority.
func (r *Registry) AddGroupMembers(g Group, members ...Member) error {
	for _, m := range members {
		m.Group = g.Name
		m.GroupPriority = g.Priority
		if _, err := r.AddMember(m); err != nil {
			return fmt.Errorf("registry: group %s: %w", g.Name, err)
		}
	}
	return nil
}

func sortMembers(ms []*Member) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		switch {
		case a.GroupPriority != b.GroupPriority:
			return a.GroupPriority < b.GroupPriority
		case a.Priority != b.Priority:
			return a.Priority < b.Priority
		case a.Group != b.Group:
			return a.Group < b.Group
		case a.Name != b.Name:
			return a.Name < b.Name
		}
		return a.index < b.index
	})
}

// ClassMembers returns the members targeting classes of module in registry
// order. When two members share a class and a name, the later one wins.
func (r *Registry) ClassMembers(module string) []*Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Member
	for _, m := range r.members {
		if m.Module() == module {
			out = append(out, m)
		}
	}
	return out
}

// MemberCount is the number of registered class members.
func (r *Registry) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
