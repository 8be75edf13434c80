// Package state converts runtime values held in an execution state bag
// into plain data that any checkpoint codec can encode.
//
// Futures and response wrappers become snapshot maps keyed by
// KeyStatus, collections are rebuilt as map[string]any and []any with
// normalized elements, and pointers are unwrapped. Normalize never blocks:
// a pending future is recorded as pending, not awaited.
package state

import (
	"fmt"
	"reflect"
	"sort"
)

// Snapshot map keys.
const (
	KeyStatus        = "status"
	KeyResult        = "result"
	KeyExceptionType = "exceptionType"
	KeyMessage       = "message"
	KeyMetadata      = "metadata"
)

// NormalizeState applies Normalize to every value in bag. A nil bag
// yields an empty map.
func NormalizeState(bag map[string]any) map[string]any {
	out := make(map[string]any, len(bag))
	for k, v := range bag {
		out[k] = Normalize(v)
	}
	return out
}

// Normalize returns a serializable form of v.
//
//   - nil and nil pointers become nil.
//   - Async and Annotated handles become snapshot maps.
//   - Maps become map[string]any with keys formatted by fmt.Sprint.
//     Maps whose values are struct{} are sets and become a []any of keys
//     sorted by their string form.
//   - Slices become []any. Byte slices are copied as []byte.
//   - Arrays keep their type when every normalized element still fits the
//     element type, otherwise they become []any.
//   - Pointers are dereferenced.
//   - Signed integers become int64, unsigned integers uint64 and floats
//     float64. Named string and bool types become string and bool. Every
//     backend then hands back the same scalar types.
//
// Everything else is returned unchanged.
func Normalize(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil
	}
	if a, ok := v.(Async); ok {
		return snapshot(a)
	}

	switch rv.Kind() {
	case reflect.Map:
		if isSet(rv.Type()) {
			return normalizeSet(rv)
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if rv.IsNil() {
				return []byte(nil)
			}
			return append([]byte(nil), rv.Bytes()...)
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Array:
		return normalizeArray(rv)
	case reflect.Pointer:
		return Normalize(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	default:
		return v
	}
}

func snapshot(a Async) map[string]any {
	status := a.Status()
	out := map[string]any{KeyStatus: string(status)}

	switch status {
	case StatusCompleted:
		out[KeyResult] = Normalize(a.Value())
	case StatusError:
		if err := a.Err(); err != nil {
			out[KeyExceptionType] = TypeName(err)
			out[KeyMessage] = err.Error()
		}
	default:
		out[KeyStatus] = string(StatusPending)
	}

	if an, ok := a.(Annotated); ok {
		if md := an.Metadata(); len(md) > 0 {
			out[KeyMetadata] = NormalizeState(md)
		}
	}
	return out
}

func isSet(t reflect.Type) bool {
	elem := t.Elem()
	return elem.Kind() == reflect.Struct && elem.NumField() == 0
}

func normalizeSet(rv reflect.Value) []any {
	type member struct {
		key string
		val any
	}
	members := make([]member, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key().Interface()
		members = append(members, member{key: fmt.Sprint(k), val: Normalize(k)})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].key < members[j].key })

	out := make([]any, len(members))
	for i, m := range members {
		out[i] = m.val
	}
	return out
}

func normalizeArray(rv reflect.Value) any {
	elemType := rv.Type().Elem()
	items := make([]any, rv.Len())
	typed := true
	for i := range items {
		items[i] = Normalize(rv.Index(i).Interface())
		if items[i] == nil {
			typed = typed && nillable(elemType)
			continue
		}
		if !reflect.TypeOf(items[i]).AssignableTo(elemType) {
			typed = false
		}
	}
	if !typed {
		return items
	}

	out := reflect.New(rv.Type()).Elem()
	for i, item := range items {
		if item == nil {
			continue
		}
		out.Index(i).Set(reflect.ValueOf(item))
	}
	return out.Interface()
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	default:
		return false
	}
}

// TypeName returns the package-qualified name of err's dynamic type, with
// pointer indirections stripped ("errors.errorString",
// "github.com/acme/llm.RateLimitError").
func TypeName(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}
