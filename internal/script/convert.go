package script

import (
	"fmt"
	"sort"

	"github.com/risor-io/risor/object"

	"github.com/jward/mixweave/internal/interp"
)

// toObject converts a dispatch value into a Risor object. Interpreter
// instances become maps of their attributes; exceptions become maps with
// type, message and args keys.
func toObject(v any) object.Object {
	switch x := v.(type) {
	case nil:
		return object.Nil
	case object.Object:
		return x
	case bool:
		return object.NewBool(x)
	case int:
		return object.NewInt(int64(x))
	case int64:
		return object.NewInt(x)
	case int32:
		return object.NewInt(int64(x))
	case float64:
		return object.NewFloat(x)
	case float32:
		return object.NewFloat(float64(x))
	case string:
		return object.NewString(x)
	case []any:
		return listObject(x)
	case map[string]any:
		return mapObject(x)
	case *interp.List:
		return listObject(x.Items)
	case *interp.Dict:
		m := make(map[string]object.Object, x.Len())
		for _, k := range x.Keys() {
			val, _ := x.Get(k)
			m[interp.Str(k)] = toObject(val)
		}
		return object.NewMap(m)
	case *interp.Object:
		m := make(map[string]object.Object, len(x.Attrs)+1)
		for k, val := range x.Attrs {
			m[k] = toObject(val)
		}
		m["__class__"] = object.NewString(x.ClassName())
		return object.NewMap(m)
	case *interp.Exception:
		return object.NewMap(map[string]object.Object{
			"type":    object.NewString(x.ClassName()),
			"message": object.NewString(x.Message()),
			"args":    listObject(x.Args),
		})
	case error:
		return object.NewMap(map[string]object.Object{
			"type":    object.NewString(fmt.Sprintf("%T", x)),
			"message": object.NewString(x.Error()),
			"args":    object.NewList([]object.Object{}),
		})
	}
	return object.NewString(interp.Str(v))
}

func listObject(items []any) object.Object {
	out := make([]object.Object, len(items))
	for i, it := range items {
		out[i] = toObject(it)
	}
	return object.NewList(out)
}

func mapObject(m map[string]any) object.Object {
	out := make(map[string]object.Object, len(m))
	for k, v := range m {
		out[k] = toObject(v)
	}
	return object.NewMap(out)
}

// fromObject converts a Risor object back into a plain Go value the
// interpreter accepts.
func fromObject(obj object.Object) any {
	switch x := obj.(type) {
	case nil:
		return nil
	case *object.NilType:
		return nil
	case *object.Bool:
		return x.Value()
	case *object.Int:
		return x.Value()
	case *object.Float:
		return x.Value()
	case *object.String:
		return x.Value()
	case *object.List:
		items := x.Value()
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = fromObject(it)
		}
		return out
	case *object.Map:
		src := x.Value()
		out := make(map[string]any, len(src))
		for k, v := range src {
			out[k] = fromObject(v)
		}
		return out
	}
	return obj.Interface()
}

// argsFrom converts a Risor list argument into positional arguments. Nil
// means keep the current arguments.
func argsFrom(obj object.Object) ([]any, error) {
	switch x := obj.(type) {
	case *object.NilType:
		return nil, nil
	case *object.List:
		out := fromObject(x).([]any)
		return out, nil
	}
	return nil, fmt.Errorf("expected list, got %s", obj.Type())
}

func kwargsFrom(obj object.Object) (map[string]any, error) {
	switch x := obj.(type) {
	case *object.NilType:
		return nil, nil
	case *object.Map:
		return fromObject(x).(map[string]any), nil
	}
	return nil, fmt.Errorf("expected map, got %s", obj.Type())
}

// fieldsFrom converts an optional map of log fields into sorted key/value
// pairs.
func fieldsFrom(obj object.Object) ([]string, map[string]any) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, nil
	}
	vals := fromObject(m).(map[string]any)
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, vals
}
