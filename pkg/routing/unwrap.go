package routing

import "reflect"

// Unwrapper reduces an operation's declared result type to the effective
// entity type. An operation returning []Order routes by Order.
type Unwrapper interface {
	// Unwrap returns the wrapped type and true when t is a wrapper, or t
	// and false when it is already an entity type.
	Unwrap(t reflect.Type) (reflect.Type, bool)
}

// ElementTyper lets wrapper structs (result pages, envelopes) expose the
// entity type they carry, since Go generics are erased from reflect's view.
type ElementTyper interface {
	ElementType() reflect.Type
}

var elementTyperType = reflect.TypeOf((*ElementTyper)(nil)).Elem()

// DefaultUnwrapper peels pointers, slices, arrays, and maps, and honors the
// ElementTyper interface on wrapper structs.
type DefaultUnwrapper struct{}

// Unwrap performs a single unwrap step.
func (DefaultUnwrapper) Unwrap(t reflect.Type) (reflect.Type, bool) {
	if t == nil {
		return nil, false
	}
	if t.Kind() != reflect.Pointer {
		if reflect.PointerTo(t).Implements(elementTyperType) {
			return reflect.New(t).Interface().(ElementTyper).ElementType(), true
		}
		if t.Implements(elementTyperType) {
			return reflect.Zero(t).Interface().(ElementTyper).ElementType(), true
		}
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return t.Elem(), true
	default:
		return t, false
	}
}

// maxUnwrapDepth bounds repeated unwrapping so a misbehaving custom
// Unwrapper cannot loop forever.
const maxUnwrapDepth = 8

// effectiveEntityType applies u until a non-wrapper type remains.
func effectiveEntityType(u Unwrapper, t reflect.Type) reflect.Type {
	for i := 0; i < maxUnwrapDepth && t != nil; i++ {
		inner, ok := u.Unwrap(t)
		if !ok {
			break
		}
		t = inner
	}
	return t
}
