package interp

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/tree"
)

// Values manipulated by the evaluator: nil (None), bool, int64, float64,
// string, *List, *Dict, *Object, *Class, *Function, *BoundMethod, *Builtin,
// *HostMethod and *Exception.

// List is a mutable sequence.
type List struct {
	Items []any
}

// NewList wraps items.
func NewList(items ...any) *List { return &List{Items: items} }

func (l *List) Len() int { return len(l.Items) }

func (l *List) At(i int) (any, bool) {
	if i < 0 || i >= len(l.Items) {
		return nil, false
	}
	return l.Items[i], true
}

func (l *List) Contains(v any) bool {
	for _, x := range l.Items {
		if Equal(x, v) {
			return true
		}
	}
	return false
}

func (l *List) Equal(other any) bool { return Equal(l, FromGo(other)) }

// Dict is an insertion-ordered mapping. Keys are None, bool, numbers,
// strings or reference values.
type Dict struct {
	keys []any
	m    map[any]any
}

// NewDict returns an empty dict.
func NewDict() *Dict { return &Dict{m: make(map[any]any)} }

func dictKey(k any) any {
	if f, ok := k.(float64); ok && f == math.Trunc(f) && !math.IsInf(f, 0) {
		return int64(f)
	}
	return k
}

func (d *Dict) Get(k any) (any, bool) {
	v, ok := d.m[dictKey(k)]
	return v, ok
}

func (d *Dict) Set(k, v any) {
	k = dictKey(k)
	if _, ok := d.m[k]; !ok {
		d.keys = append(d.keys, k)
	}
	d.m[k] = v
}

func (d *Dict) Delete(k any) bool {
	k = dictKey(k)
	if _, ok := d.m[k]; !ok {
		return false
	}
	delete(d.m, k)
	for i, x := range d.keys {
		if x == k {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []any { return append([]any(nil), d.keys...) }

func (d *Dict) Len() int { return len(d.keys) }

func (d *Dict) Contains(v any) bool {
	_, ok := d.Get(v)
	return ok
}

// Attr lets condition paths such as kwargs.retries read string keys.
func (d *Dict) Attr(name string) (any, bool) { return d.Get(name) }

func (d *Dict) Equal(other any) bool { return Equal(d, FromGo(other)) }

// Class is a user or builtin class.
type Class struct {
	Name    string
	Bases   []*Class
	Attrs   map[string]any
	isError bool
}

func newClass(name string, bases ...*Class) *Class {
	c := &Class{Name: name, Bases: bases, Attrs: make(map[string]any)}
	for _, b := range bases {
		if b.isError {
			c.isError = true
		}
	}
	return c
}

// Lookup finds name on the class or its bases, depth first.
func (c *Class) Lookup(name string) (any, bool) {
	if v, ok := c.Attrs[name]; ok {
		return v, true
	}
	for _, b := range c.Bases {
		if v, ok := b.Lookup(name); ok {
			return v, true
		}
	}
	return nil, false
}

// Subclass reports whether c is name or derives from it.
func (c *Class) Subclass(name string) bool {
	if c.Name == name {
		return true
	}
	for _, b := range c.Bases {
		if b.Subclass(name) {
			return true
		}
	}
	return false
}

func (c *Class) derives(o *Class) bool {
	if c == o {
		return true
	}
	for _, b := range c.Bases {
		if b.derives(o) {
			return true
		}
	}
	return false
}

func (c *Class) Attr(name string) (any, bool) {
	if name == "__name__" {
		return c.Name, true
	}
	return c.Lookup(name)
}

// Object is an instance of a user class.
type Object struct {
	Class *Class
	Attrs map[string]any
}

func (o *Object) Attr(name string) (any, bool) {
	if v, ok := o.Attrs[name]; ok {
		return v, true
	}
	v, ok := o.Class.Lookup(name)
	if !ok {
		return nil, false
	}
	switch f := v.(type) {
	case *Function:
		return &BoundMethod{Self: o, Fn: f}, true
	case *HostMethod:
		return f.bind(o), true
	}
	return v, true
}

func (o *Object) IsInstance(class string) bool {
	return class == "object" || o.Class.Subclass(class)
}

func (o *Object) ClassName() string { return o.Class.Name }

// Function is a function or method defined by the program.
type Function struct {
	Name     string
	Node     tree.NodeID
	Class    *Class
	Defaults map[string]any
	closure  *frame
	module   *Module
}

// BoundMethod is a function bound to its receiver.
type BoundMethod struct {
	Self any
	Fn   *Function
}

// Builtin is a host function.
type Builtin struct {
	Name string
	Fn   func(ctx context.Context, args []any, kwargs map[string]any) (any, error)
}

// HostMethod is a class member implemented in Go.
type HostMethod struct {
	Name string
	Fn   dispatch.MethodFunc
}

func (h *HostMethod) invoke(ctx context.Context, self any, args []any, kwargs map[string]any) (any, error) {
	out, err := h.Fn(ctx, self, args, kwargs)
	if err != nil {
		return nil, err
	}
	return FromGo(out), nil
}

func (h *HostMethod) bind(self any) *Builtin {
	return &Builtin{Name: h.Name, Fn: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return h.invoke(ctx, self, args, kwargs)
	}}
}

// Exception is a raised or raisable program exception.
type Exception struct {
	Class *Class
	Args  []any
	Attrs map[string]any
}

func (e *Exception) Error() string {
	msg := e.Message()
	if msg == "" {
		return e.Class.Name
	}
	return e.Class.Name + ": " + msg
}

// Message is the str() of the exception.
func (e *Exception) Message() string {
	switch len(e.Args) {
	case 0:
		return ""
	case 1:
		return Str(e.Args[0])
	}
	return Repr(NewList(e.Args...))
}

func (e *Exception) Attr(name string) (any, bool) {
	switch name {
	case "args":
		return NewList(e.Args...), true
	case "message":
		return e.Message(), true
	}
	if v, ok := e.Attrs[name]; ok {
		return v, true
	}
	return e.Class.Lookup(name)
}

func (e *Exception) IsInstance(class string) bool {
	return class == "object" || e.Class.Subclass(class)
}

func (e *Exception) ClassName() string { return e.Class.Name }

// Truthy follows Python truth testing.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case *List:
		return len(x.Items) > 0
	case *Dict:
		return x.Len() > 0
	}
	return true
}

// Equal is Python ==: numbers compare by value, containers element-wise,
// everything else by identity.
func Equal(a, b any) bool {
	if af, ok := numeric(a); ok {
		bf, ok := numeric(b)
		return ok && af == bf
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case *List:
		y, ok := b.(*List)
		if !ok || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !Equal(x.Items[i], y.Items[i]) {
				return false
			}
		}
		return true
	case *Dict:
		y, ok := b.(*Dict)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, k := range x.keys {
			yv, ok := y.Get(k)
			if !ok || !Equal(x.m[k], yv) {
				return false
			}
		}
		return true
	}
	return isRef(a) && isRef(b) && a == b
}

func isRef(v any) bool {
	switch v.(type) {
	case *Object, *Class, *Function, *BoundMethod, *Builtin, *HostMethod, *Exception:
		return true
	}
	return false
}

// numeric widens int64 and float64; bools are not numbers here.
func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// FromGo normalizes values handed in by host code: Go ints become int64,
// slices become *List and string-keyed maps become *Dict.
func FromGo(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case float32:
		return float64(x)
	case []any:
		items := make([]any, len(x))
		for i, e := range x {
			items[i] = FromGo(e)
		}
		return NewList(items...)
	case []string:
		items := make([]any, len(x))
		for i, e := range x {
			items[i] = e
		}
		return NewList(items...)
	case map[string]any:
		d := NewDict()
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			d.Set(k, FromGo(x[k]))
		}
		return d
	}
	return v
}

// ToGo converts containers into plain Go values for host code.
func ToGo(v any) any {
	switch x := v.(type) {
	case *List:
		out := make([]any, len(x.Items))
		for i, e := range x.Items {
			out[i] = ToGo(e)
		}
		return out
	case *Dict:
		out := make(map[string]any, x.Len())
		for _, k := range x.keys {
			out[Str(k)] = ToGo(x.m[k])
		}
		return out
	}
	return v
}

// Str is Python str().
func Str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case *Exception:
		return x.Message()
	}
	return Repr(v)
}

// Repr is Python repr().
func Repr(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case string:
		return "'" + strings.ReplaceAll(x, "'", `\'`) + "'"
	case *List:
		parts := make([]string, len(x.Items))
		for i, e := range x.Items {
			parts[i] = Repr(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Dict:
		parts := make([]string, 0, x.Len())
		for _, k := range x.keys {
			parts = append(parts, Repr(k)+": "+Repr(x.m[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Object:
		return "<" + x.Class.Name + " object>"
	case *Class:
		return "<class '" + x.Name + "'>"
	case *Function:
		return "<function " + x.Name + ">"
	case *BoundMethod:
		return "<bound method " + x.Fn.Name + ">"
	case *Builtin:
		return "<built-in function " + x.Name + ">"
	case *HostMethod:
		return "<method " + x.Name + ">"
	case *Exception:
		return x.Class.Name + "(" + strings.TrimSuffix(strings.TrimPrefix(Repr(NewList(x.Args...)), "["), "]") + ")"
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	case f == math.Trunc(f) && math.Abs(f) < 1e16:
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// TypeName is the Python type name of v.
func TypeName(v any) string {
	switch x := v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case *List:
		return "list"
	case *Dict:
		return "dict"
	case *Object:
		return x.Class.Name
	case *Exception:
		return x.Class.Name
	case *Class:
		return "type"
	case *Function, *BoundMethod, *Builtin, *HostMethod:
		return "function"
	}
	return fmt.Sprintf("%T", v)
}
