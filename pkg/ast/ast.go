// Package ast defines the simplang expression tree.
package ast

import (
	"fmt"
	"strings"
)

// Op is a unary or binary operator.
type Op int

const (
	Not Op = iota
	Negate
	Less
	Plus
	Times
	And
	Or
	Equals
)

var opNames = [...]string{
	Not:    "!",
	Negate: "-",
	Less:   "<",
	Plus:   "+",
	Times:  "*",
	And:    "&&",
	Or:     "||",
	Equals: "==",
}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return "?"
	}
	return opNames[op]
}

// BinaryOp maps an operator token to a binary operator.
func BinaryOp(tok string) (Op, bool) {
	for op := Less; op <= Equals; op++ {
		if opNames[op] == tok {
			return op, true
		}
	}
	return 0, false
}

// Expr is any expression node.
type Expr interface {
	fmt.Stringer
	expr()
}

type (
	// Integer is a literal.
	Integer struct {
		Value int64
	}

	// Ident references a bound name.
	Ident struct {
		Name string
	}

	// If tests Cond for non-zero.
	If struct {
		Cond, Then, Else Expr
	}

	// Let evaluates its bindings in the enclosing scope, then Body with
	// them bound.
	Let struct {
		Bindings []Binding
		Body     Expr
	}

	// Loop binds like Let; a Recur in tail position of Body rebinds and
	// repeats.
	Loop struct {
		Bindings []Binding
		Body     Expr
	}

	// Recur restarts the innermost Loop with new values.
	Recur struct {
		Args []Expr
	}

	Unary struct {
		Op      Op
		Operand Expr
	}

	Binary struct {
		Op          Op
		Left, Right Expr
	}
)

// Binding is one name = value pair of a Let or Loop.
type Binding struct {
	Name  string
	Value Expr
}

func (*Integer) expr() {}
func (*Ident) expr()   {}
func (*If) expr()      {}
func (*Let) expr()     {}
func (*Loop) expr()    {}
func (*Recur) expr()   {}
func (*Unary) expr()   {}
func (*Binary) expr()  {}

func (e *Integer) String() string { return fmt.Sprintf("%d", e.Value) }
func (e *Ident) String() string   { return e.Name }

func (e *If) String() string {
	return fmt.Sprintf("if %s then %s else %s end", e.Cond, e.Then, e.Else)
}

func (e *Let) String() string  { return "let " + bindings(e.Bindings) + " in " + e.Body.String() + " end" }
func (e *Loop) String() string { return "loop " + bindings(e.Bindings) + " in " + e.Body.String() + " end" }

func bindings(bs []Binding) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = b.Name + " = " + b.Value.String()
	}
	return strings.Join(parts, " and ")
}

func (e *Recur) String() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return "recur(" + strings.Join(parts, " ") + ")"
}

func (e *Unary) String() string {
	return e.Op.String() + e.Operand.String()
}

func (e *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

// Function is a whole program: named parameters and a body.
type Function struct {
	Params []string
	Body   Expr
}

func (f *Function) String() string {
	if len(f.Params) == 0 {
		return f.Body.String()
	}
	return "fun " + strings.Join(f.Params, " ") + " = " + f.Body.String()
}
