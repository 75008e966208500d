// Package compiler translates simplang functions into VM bytecode.
//
// Parameters live in the caller's region at slots -argc..-1, matching how
// the host pushes arguments. Every other value gets a slot allocated
// upward from 0 and released in stack order once it is dead.
package compiler

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/simplang/simplang/pkg/ast"
	"github.com/simplang/simplang/pkg/vm"
)

var log = commonlog.GetLogger("simplang.compiler")

// variable is one entry of the lexical scope chain.
type variable struct {
	name string
	slot int32
	next *variable
}

func (v *variable) lookup(name string) (int32, bool) {
	for ; v != nil; v = v.next {
		if v.name == name {
			return v.slot, true
		}
	}
	return 0, false
}

// loop is the target of a recur.
type loop struct {
	head  int32
	slots []int32
}

// compiler holds code generation state for one function.
type compiler struct {
	code  []vm.Instruction
	scope *variable
	loops []loop
	next  int32 // first free local slot
	high  int32 // most local slots in use at once
}

// Compile checks fn and generates its bytecode. The program expects its
// arguments pushed by the host and halts with the function's value.
func Compile(fn *ast.Function) ([]vm.Instruction, error) {
	if err := ast.Check(fn); err != nil {
		return nil, err
	}
	c := &compiler{}
	argc := int32(len(fn.Params))
	for k, p := range fn.Params {
		c.scope = &variable{name: p, slot: int32(k) - argc, next: c.scope}
	}
	dst := c.alloc()
	if err := c.expr(fn.Body, dst); err != nil {
		return nil, err
	}
	c.emit(vm.Must(vm.NewSlots(vm.OpReturn, dst, 0, 0)))
	log.Debugf("compiled %d instructions, %d locals", len(c.code), c.high)
	return c.code, nil
}

func (c *compiler) alloc() int32 {
	s := c.next
	c.next++
	if c.next > c.high {
		c.high = c.next
	}
	return s
}

// release frees every slot from s upward.
func (c *compiler) release(s int32) { c.next = s }

func (c *compiler) pc() int32 { return int32(len(c.code)) }

func (c *compiler) emit(ins vm.Instruction) int32 {
	c.code = append(c.code, ins)
	return int32(len(c.code) - 1)
}

func (c *compiler) op(op vm.Opcode, a, b, cc int32) int32 {
	return c.emit(vm.Must(vm.NewSlots(op, a, b, cc)))
}

// patch points the jump at pc to target.
func (c *compiler) patch(at, target int32) {
	s := c.code[at].Args.(vm.Slots)
	if c.code[at].Op == vm.OpJump {
		s.A = target
	} else {
		s.B = target
	}
	c.code[at].Args = s
}

// expr generates code leaving the value of e in slot dst.
func (c *compiler) expr(e ast.Expr, dst int32) error {
	switch e := e.(type) {
	case *ast.Integer:
		c.emit(vm.NewSet(dst, e.Value))

	case *ast.Ident:
		slot, ok := c.scope.lookup(e.Name)
		if !ok {
			return fmt.Errorf("%w: %s", ast.ErrUnbound, e.Name)
		}
		c.op(vm.OpMove, dst, slot, 0)

	case *ast.If:
		if err := c.expr(e.Cond, dst); err != nil {
			return err
		}
		toElse := c.op(vm.OpJumpIfZero, dst, 0, 0)
		if err := c.expr(e.Then, dst); err != nil {
			return err
		}
		toEnd := c.op(vm.OpJump, 0, 0, 0)
		c.patch(toElse, c.pc())
		if err := c.expr(e.Else, dst); err != nil {
			return err
		}
		c.patch(toEnd, c.pc())

	case *ast.Let:
		base := c.next
		outer := c.scope
		if _, err := c.bind(e.Bindings); err != nil {
			return err
		}
		err := c.expr(e.Body, dst)
		c.scope = outer
		c.release(base)
		return err

	case *ast.Loop:
		base := c.next
		outer := c.scope
		slots, err := c.bind(e.Bindings)
		if err != nil {
			return err
		}
		c.loops = append(c.loops, loop{head: c.pc(), slots: slots})
		err = c.expr(e.Body, dst)
		c.loops = c.loops[:len(c.loops)-1]
		c.scope = outer
		c.release(base)
		return err

	case *ast.Recur:
		if len(c.loops) == 0 {
			return fmt.Errorf("%w: %s", ast.ErrRecurOutsideLoop, e)
		}
		target := c.loops[len(c.loops)-1]
		if len(e.Args) != len(target.slots) {
			return fmt.Errorf("%w: %s", ast.ErrRecurArity, e)
		}
		base := c.next
		temps := make([]int32, len(e.Args))
		for k, a := range e.Args {
			temps[k] = c.alloc()
			if err := c.expr(a, temps[k]); err != nil {
				return err
			}
		}
		for k, slot := range target.slots {
			c.op(vm.OpMove, slot, temps[k], 0)
		}
		c.op(vm.OpJump, target.head, 0, 0)
		c.release(base)

	case *ast.Unary:
		if err := c.expr(e.Operand, dst); err != nil {
			return err
		}
		if e.Op == ast.Negate {
			c.op(vm.OpNegate, dst, dst, 0)
		} else {
			c.op(vm.OpNot, dst, dst, 0)
		}

	case *ast.Binary:
		return c.binary(e, dst)

	default:
		return fmt.Errorf("unknown expression %T", e)
	}
	return nil
}

// bind evaluates each value into a fresh slot in the current scope, then
// brings all the names into scope.
func (c *compiler) bind(bs []ast.Binding) ([]int32, error) {
	slots := make([]int32, len(bs))
	for k, b := range bs {
		slots[k] = c.alloc()
		if err := c.expr(b.Value, slots[k]); err != nil {
			return nil, err
		}
	}
	for k, b := range bs {
		c.scope = &variable{name: b.Name, slot: slots[k], next: c.scope}
	}
	return slots, nil
}

var arith = map[ast.Op]vm.Opcode{
	ast.Plus:   vm.OpAdd,
	ast.Times:  vm.OpMultiply,
	ast.Less:   vm.OpLessThan,
	ast.Equals: vm.OpEquals,
}

func (c *compiler) binary(e *ast.Binary, dst int32) error {
	if err := c.expr(e.Left, dst); err != nil {
		return err
	}
	switch e.Op {
	case ast.And:
		// dst is already 0 when the left side is false.
		toEnd := c.op(vm.OpJumpIfZero, dst, 0, 0)
		if err := c.normalized(e.Right, dst); err != nil {
			return err
		}
		c.patch(toEnd, c.pc())
		return nil

	case ast.Or:
		t := c.alloc()
		c.op(vm.OpNot, t, dst, 0)
		c.op(vm.OpNot, dst, t, 0)
		toEnd := c.op(vm.OpJumpIfZero, t, 0, 0)
		c.release(t)
		if err := c.normalized(e.Right, dst); err != nil {
			return err
		}
		c.patch(toEnd, c.pc())
		return nil
	}

	op, ok := arith[e.Op]
	if !ok {
		return fmt.Errorf("unknown operator %s", e.Op)
	}
	t := c.alloc()
	if err := c.expr(e.Right, t); err != nil {
		return err
	}
	c.op(op, dst, dst, t)
	c.release(t)
	return nil
}

// normalized leaves 1 in dst when e is non-zero and 0 otherwise.
func (c *compiler) normalized(e ast.Expr, dst int32) error {
	if err := c.expr(e, dst); err != nil {
		return err
	}
	c.op(vm.OpNot, dst, dst, 0)
	c.op(vm.OpNot, dst, dst, 0)
	return nil
}
