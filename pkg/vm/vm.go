package vm

import (
	"context"
	"fmt"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("simplang.vm")

// Default capacities.
const (
	DefaultStackSize     = 1 << 16
	DefaultCallStackSize = 1024
)

// ctxPollInterval is how many instructions run between context checks.
const ctxPollInterval = 1024

// VM executes a loaded program on a Machine.
type VM struct {
	*Machine

	Code []Instruction
	PC   int32

	// Execution limits: when MaxGas > 0 every instruction consumes one
	// unit of Gas.
	Gas    int64
	MaxGas int64

	// Steps counts executed instructions since the last Reset.
	Steps int64

	// Debug logs every instruction at debug level.
	Debug bool

	Halted bool
	Result int64
}

// New creates a VM with the given capacities.
func New(stackSize, callStackSize int) *VM {
	return &VM{Machine: NewMachine(stackSize, callStackSize)}
}

// Reset clears machine state and rewinds to pc 0. The program stays loaded.
func (vm *VM) Reset() {
	vm.Machine.Reset()
	vm.PC = 0
	vm.Steps = 0
	vm.Halted = false
	vm.Result = 0
	if vm.MaxGas > 0 {
		vm.Gas = vm.MaxGas
	}
}

// Load installs a program and rewinds to pc 0.
func (vm *VM) Load(code []Instruction) {
	vm.Code = code
	vm.PC = 0
	vm.Halted = false
}

// PushArgs writes the top-level arguments into slots 0..len(args)-1 and
// advances the frame past them, exactly as a Call would.
func (vm *VM) PushArgs(args []int64) error {
	for i, a := range args {
		if err := vm.Put(int32(i), a); err != nil {
			return err
		}
	}
	return vm.Enter(int64(len(args)))
}

func (vm *VM) fault(err error) error {
	f := &Fault{PC: vm.PC, Err: err}
	if vm.PC >= 0 && int(vm.PC) < len(vm.Code) {
		f.Instruction = vm.Code[vm.PC].String()
	}
	return f
}

// Step executes one instruction. After a Fault the VM must be Reset.
func (vm *VM) Step() error {
	if vm.Halted {
		return nil
	}
	if vm.PC < 0 || int(vm.PC) >= len(vm.Code) {
		return vm.fault(fmt.Errorf("%w: %d of %d", ErrPCOutOfRange, vm.PC, len(vm.Code)))
	}

	if vm.MaxGas > 0 {
		if vm.Gas <= 0 {
			return vm.fault(ErrGasExhausted)
		}
		vm.Gas--
	}
	vm.Steps++

	ins := vm.Code[vm.PC]
	if vm.Debug {
		log.Debugf("%s", vm.trace(ins))
	}
	if err := vm.exec(ins); err != nil {
		return vm.fault(err)
	}
	return nil
}

// exec applies one instruction's effect, including the pc update.
func (vm *VM) exec(ins Instruction) error {
	if ins.Op == OpSet {
		imm, ok := ins.Args.(Imm)
		if !ok {
			return ErrMalformed
		}
		if err := vm.Put(imm.Slot, imm.Value); err != nil {
			return err
		}
		vm.PC++
		return nil
	}

	s, ok := ins.Args.(Slots)
	if !ok {
		return ErrMalformed
	}

	switch ins.Op {
	case OpMove:
		return vm.unary(s, func(x int64) int64 { return x })

	case OpNegate:
		return vm.unary(s, func(x int64) int64 { return -x })

	case OpNot:
		return vm.unary(s, func(x int64) int64 { return boolWord(x == 0) })

	case OpAdd:
		return vm.binary(s, func(x, y int64) int64 { return x + y })

	case OpMultiply:
		return vm.binary(s, func(x, y int64) int64 { return x * y })

	case OpLessThan:
		return vm.binary(s, func(x, y int64) int64 { return boolWord(x < y) })

	case OpEquals:
		return vm.binary(s, func(x, y int64) int64 { return boolWord(x == y) })

	case OpJump:
		vm.PC = s.A
		return nil

	case OpJumpIfZero:
		cond, err := vm.Get(s.A)
		if err != nil {
			return err
		}
		if cond == 0 {
			vm.PC = s.B
		} else {
			vm.PC++
		}
		return nil

	case OpCall:
		// The saved pc is the Call itself; Return reads the frame size and
		// result slot back from it.
		if err := vm.PushCall(vm.PC); err != nil {
			return err
		}
		if err := vm.Enter(int64(s.B)); err != nil {
			return err
		}
		vm.PC = s.A
		return nil

	case OpReturn:
		return vm.ret(s.A)
	}

	return fmt.Errorf("%w: opcode %d", ErrMalformed, ins.Op)
}

func (vm *VM) unary(s Slots, f func(int64) int64) error {
	x, err := vm.Get(s.B)
	if err != nil {
		return err
	}
	if err := vm.Put(s.A, f(x)); err != nil {
		return err
	}
	vm.PC++
	return nil
}

func (vm *VM) binary(s Slots, f func(int64, int64) int64) error {
	x, err := vm.Get(s.B)
	if err != nil {
		return err
	}
	y, err := vm.Get(s.C)
	if err != nil {
		return err
	}
	if err := vm.Put(s.A, f(x, y)); err != nil {
		return err
	}
	vm.PC++
	return nil
}

func (vm *VM) ret(src int32) error {
	result, err := vm.Get(src)
	if err != nil {
		return err
	}
	if vm.Depth() == 0 {
		vm.Halted = true
		vm.Result = result
		return nil
	}

	saved, err := vm.PopCall()
	if err != nil {
		return err
	}
	if saved < 0 || int(saved) >= len(vm.Code) || vm.Code[saved].Op != OpCall {
		return fmt.Errorf("%w: saved pc %d", ErrBadReturnAddress, saved)
	}
	call, ok := vm.Code[saved].Args.(Slots)
	if !ok {
		return fmt.Errorf("%w: saved pc %d", ErrBadReturnAddress, saved)
	}
	if err := vm.Leave(int64(call.B)); err != nil {
		return err
	}
	if err := vm.Put(call.C, result); err != nil {
		return err
	}
	vm.PC = saved + 1
	return nil
}

func boolWord(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Run executes until the top-level Return or a fault.
func (vm *VM) Run() (int64, error) {
	return vm.RunContext(context.Background())
}

// RunContext is Run with cancellation, checked every ctxPollInterval
// instructions.
func (vm *VM) RunContext(ctx context.Context) (int64, error) {
	var n int
	for !vm.Halted {
		if n++; n == ctxPollInterval {
			n = 0
			if err := ctx.Err(); err != nil {
				return 0, vm.fault(err)
			}
		}
		if err := vm.Step(); err != nil {
			return 0, err
		}
	}
	return vm.Result, nil
}

// Options configures Exec.
type Options struct {
	StackSize     int
	CallStackSize int
	Gas           int64
	Debug         bool
}

// Exec runs prog with args on a fresh VM and returns the program's result.
func Exec(ctx context.Context, prog []Instruction, args []int64, opts Options) (int64, error) {
	if opts.StackSize <= 0 {
		opts.StackSize = DefaultStackSize
	}
	if opts.CallStackSize <= 0 {
		opts.CallStackSize = DefaultCallStackSize
	}
	vm := New(opts.StackSize, opts.CallStackSize)
	vm.Debug = opts.Debug
	if opts.Gas > 0 {
		vm.MaxGas = opts.Gas
		vm.Gas = opts.Gas
	}
	vm.Load(prog)
	log.Debugf("running %d instructions, %d slots, %d frames", len(prog), vm.StackSize(), vm.CallStackSize())
	if err := vm.PushArgs(args); err != nil {
		return 0, fmt.Errorf("pushing arguments: %w", err)
	}
	result, err := vm.RunContext(ctx)
	if err != nil {
		return 0, err
	}
	log.Debugf("halted after %d steps with %d", vm.Steps, result)
	return result, nil
}
