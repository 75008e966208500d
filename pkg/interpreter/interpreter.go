// Package interpreter evaluates simplang programs directly on the tree.
// It is the reference the compiled bytecode is checked against.
package interpreter

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/simplang/simplang/pkg/ast"
)

var log = commonlog.GetLogger("simplang.interpreter")

var (
	ErrUnbound          = ast.ErrUnbound
	ErrRecurOutsideLoop = ast.ErrRecurOutsideLoop
	ErrRecurNotTail     = ast.ErrRecurNotTail
	ErrRecurArity       = ast.ErrRecurArity
	ErrArity            = errors.New("wrong number of arguments")
	ErrGasExhausted     = errors.New("gas exhausted")
)

// Env is an immutable list of bindings; the innermost binding of a name
// shadows outer ones.
type Env struct {
	name  string
	value int64
	next  *Env
}

// Bind returns a new environment with name bound in front of e.
func (e *Env) Bind(name string, value int64) *Env {
	return &Env{name: name, value: value, next: e}
}

// Lookup finds the innermost binding of name.
func (e *Env) Lookup(name string) (int64, bool) {
	for ; e != nil; e = e.next {
		if e.name == name {
			return e.value, true
		}
	}
	return 0, false
}

// Interpreter is the tree-walking evaluator
type Interpreter struct {
	// Gas is the remaining budget; one unit per evaluated node
	Gas int64
	// MaxGas is the starting gas amount (0 = unlimited)
	MaxGas int64

	// Steps counts evaluated nodes since the last Reset
	Steps int64

	// Debug logs every evaluated node
	Debug bool
}

// New creates an interpreter with unlimited gas
func New() *Interpreter {
	return &Interpreter{}
}

// Reset refills gas and clears the step counter
func (i *Interpreter) Reset() {
	i.Gas = i.MaxGas
	i.Steps = 0
}

// Call checks fn, binds its parameters to args and evaluates the body.
func (i *Interpreter) Call(fn *ast.Function, args []int64) (int64, error) {
	if len(args) != len(fn.Params) {
		return 0, fmt.Errorf("%w: want %d, got %d", ErrArity, len(fn.Params), len(args))
	}
	if err := ast.Check(fn); err != nil {
		return 0, err
	}
	var env *Env
	for k, p := range fn.Params {
		env = env.Bind(p, args[k])
	}
	i.Reset()
	v, _, err := i.eval(fn.Body, env)
	if err != nil {
		return 0, err
	}
	log.Debugf("result %d after %d steps", v, i.Steps)
	return v, nil
}

// Eval evaluates a checked expression in env.
func (i *Interpreter) Eval(e ast.Expr, env *Env) (int64, error) {
	v, again, err := i.eval(e, env)
	if err != nil {
		return 0, err
	}
	if again != nil {
		return 0, fmt.Errorf("%w: %s", ErrRecurOutsideLoop, e)
	}
	return v, nil
}

func (i *Interpreter) consumeGas() error {
	i.Steps++
	if i.MaxGas == 0 {
		return nil
	}
	if i.Gas <= 0 {
		return ErrGasExhausted
	}
	i.Gas--
	return nil
}

// eval returns either a value or, for a recur in tail position, the
// values to restart the innermost loop with.
func (i *Interpreter) eval(e ast.Expr, env *Env) (int64, []int64, error) {
	if err := i.consumeGas(); err != nil {
		return 0, nil, err
	}
	if i.Debug {
		log.Debugf("eval %s", e)
	}
	switch e := e.(type) {
	case *ast.Integer:
		return e.Value, nil, nil

	case *ast.Ident:
		v, ok := env.Lookup(e.Name)
		if !ok {
			return 0, nil, fmt.Errorf("%w: %s", ErrUnbound, e.Name)
		}
		return v, nil, nil

	case *ast.If:
		c, err := i.Eval(e.Cond, env)
		if err != nil {
			return 0, nil, err
		}
		if c != 0 {
			return i.eval(e.Then, env)
		}
		return i.eval(e.Else, env)

	case *ast.Let:
		inner, err := i.bind(e.Bindings, env)
		if err != nil {
			return 0, nil, err
		}
		return i.eval(e.Body, inner)

	case *ast.Loop:
		inner, err := i.bind(e.Bindings, env)
		if err != nil {
			return 0, nil, err
		}
		for {
			v, again, err := i.eval(e.Body, inner)
			if err != nil || again == nil {
				return v, nil, err
			}
			if len(again) != len(e.Bindings) {
				return 0, nil, fmt.Errorf("%w: %d values, loop binds %d", ErrRecurArity, len(again), len(e.Bindings))
			}
			inner = env
			for k, b := range e.Bindings {
				inner = inner.Bind(b.Name, again[k])
			}
		}

	case *ast.Recur:
		vals := make([]int64, len(e.Args))
		for k, a := range e.Args {
			v, err := i.Eval(a, env)
			if err != nil {
				return 0, nil, err
			}
			vals[k] = v
		}
		return 0, vals, nil

	case *ast.Unary:
		x, err := i.Eval(e.Operand, env)
		if err != nil {
			return 0, nil, err
		}
		if e.Op == ast.Negate {
			return -x, nil, nil
		}
		return boolWord(x == 0), nil, nil

	case *ast.Binary:
		return i.binary(e, env)
	}
	return 0, nil, fmt.Errorf("unknown expression %T", e)
}

// bind evaluates every value in env, then binds them all.
func (i *Interpreter) bind(bs []ast.Binding, env *Env) (*Env, error) {
	vals := make([]int64, len(bs))
	for k, b := range bs {
		v, err := i.Eval(b.Value, env)
		if err != nil {
			return nil, err
		}
		vals[k] = v
	}
	for k, b := range bs {
		env = env.Bind(b.Name, vals[k])
	}
	return env, nil
}

func (i *Interpreter) binary(e *ast.Binary, env *Env) (int64, []int64, error) {
	l, err := i.Eval(e.Left, env)
	if err != nil {
		return 0, nil, err
	}
	switch e.Op {
	case ast.And:
		if l == 0 {
			return 0, nil, nil
		}
	case ast.Or:
		if l != 0 {
			return 1, nil, nil
		}
	}
	r, err := i.Eval(e.Right, env)
	if err != nil {
		return 0, nil, err
	}
	switch e.Op {
	case ast.Plus:
		return l + r, nil, nil
	case ast.Times:
		return l * r, nil, nil
	case ast.Less:
		return boolWord(l < r), nil, nil
	case ast.Equals:
		return boolWord(l == r), nil, nil
	case ast.And, ast.Or:
		return boolWord(r != 0), nil, nil
	}
	return 0, nil, fmt.Errorf("unknown operator %s", e.Op)
}

func boolWord(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
