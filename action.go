package xcaller

import (
	"fmt"
	"reflect"
)

var anyType = reflect.TypeFor[any]()

// Action is a named, typed event identity. Two actions are equal iff their
// names and payload types are equal, so Action values compare with == and
// can be used as map keys.
type Action struct {
	name string
	typ  reflect.Type
}

// NewAction declares an action whose payloads are of type T.
//
//	var Connected = xcaller.NewAction[*Response]("connected")
func NewAction[T any](name string) Action {
	return Action{name: name, typ: reflect.TypeFor[T]()}
}

// ActionOf declares an action with a payload type known only at runtime.
// A nil type declares an action accepting any payload.
func ActionOf(name string, typ reflect.Type) Action {
	if typ == nil {
		typ = anyType
	}
	return Action{name: name, typ: typ}
}

// Exception is fired with the failure whenever a callback returns an error or panics.
var Exception = NewAction[error]("exception")

// Name returns the action name patterns are matched against.
func (a Action) Name() string { return a.name }

// Type returns the declared payload type.
func (a Action) Type() reflect.Type { return a.typ }

// IsZero reports whether a is the absent action.
func (a Action) IsZero() bool { return a.typ == nil }

// Matches implements Selector: an action selects exactly itself.
func (a Action) Matches(fired Action) bool {
	return !a.IsZero() && a == fired
}

func (a Action) String() string {
	if a.IsZero() {
		return "<none>"
	}
	return fmt.Sprintf("%s(%s)", a.name, a.typ)
}

// Accepts reports whether payload passes a registration's type filter.
// A nil filter or the empty interface accepts everything, nil included.
// Any other filter needs a non-nil payload whose dynamic type is assignable
// to it: the exact type, or an interface the payload implements.
func Accepts(filter reflect.Type, payload any) bool {
	if filter == nil || filter == anyType {
		return true
	}
	if payload == nil {
		return false
	}
	return reflect.TypeOf(payload).AssignableTo(filter)
}
