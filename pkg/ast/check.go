package ast

import (
	"errors"
	"fmt"
)

// Static errors shared by the interpreter and the compiler.
var (
	ErrUnbound          = errors.New("unbound identifier")
	ErrRecurOutsideLoop = errors.New("recur outside loop")
	ErrRecurNotTail     = errors.New("recur not in tail position")
	ErrRecurArity       = errors.New("recur arity does not match loop")
)

// scope is a name list, innermost last.
type scope []string

func (s scope) has(name string) bool {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == name {
			return true
		}
	}
	return false
}

func (s scope) with(bs []Binding) scope {
	out := make(scope, len(s), len(s)+len(bs))
	copy(out, s)
	for _, b := range bs {
		out = append(out, b.Name)
	}
	return out
}

// position tracks whether an expression's value is the result of the
// innermost loop body, and that loop's arity (-1 outside any loop).
type position struct {
	tail  bool
	arity int
}

// Check reports the first static error in fn: an identifier with no
// binding, or a recur that is outside a loop, not in tail position of the
// innermost loop body, or passes the wrong number of values.
func Check(fn *Function) error {
	return check(fn.Body, scope(fn.Params), position{arity: -1})
}

func check(e Expr, sc scope, pos position) error {
	inner := position{arity: pos.arity}
	switch e := e.(type) {
	case *Integer:
		return nil
	case *Ident:
		if !sc.has(e.Name) {
			return fmt.Errorf("%w: %s", ErrUnbound, e.Name)
		}
		return nil
	case *If:
		if err := check(e.Cond, sc, inner); err != nil {
			return err
		}
		if err := check(e.Then, sc, pos); err != nil {
			return err
		}
		return check(e.Else, sc, pos)
	case *Let:
		for _, b := range e.Bindings {
			if err := check(b.Value, sc, inner); err != nil {
				return err
			}
		}
		return check(e.Body, sc.with(e.Bindings), pos)
	case *Loop:
		for _, b := range e.Bindings {
			if err := check(b.Value, sc, inner); err != nil {
				return err
			}
		}
		return check(e.Body, sc.with(e.Bindings), position{tail: true, arity: len(e.Bindings)})
	case *Recur:
		switch {
		case pos.arity < 0:
			return fmt.Errorf("%w: %s", ErrRecurOutsideLoop, e)
		case !pos.tail:
			return fmt.Errorf("%w: %s", ErrRecurNotTail, e)
		case len(e.Args) != pos.arity:
			return fmt.Errorf("%w: %s has %d values, loop binds %d", ErrRecurArity, e, len(e.Args), pos.arity)
		}
		for _, a := range e.Args {
			if err := check(a, sc, inner); err != nil {
				return err
			}
		}
		return nil
	case *Unary:
		return check(e.Operand, sc, inner)
	case *Binary:
		if err := check(e.Left, sc, inner); err != nil {
			return err
		}
		return check(e.Right, sc, inner)
	}
	return fmt.Errorf("unknown expression %T", e)
}
