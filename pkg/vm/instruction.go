package vm

import (
	"fmt"
	"strings"
)

// Operands is the payload of an instruction. It is implemented only by Imm
// and Slots; which one an instruction carries is decided by its opcode.
type Operands interface {
	operands()
}

// Imm is the immediate form used by Set.
type Imm struct {
	Slot  int32
	Value int64
}

// Slots is the slot-triple form used by every opcode except Set. Field
// meaning is opcode specific; unused trailing fields are zero.
type Slots struct {
	A, B, C int32
}

func (Imm) operands()   {}
func (Slots) operands() {}

// Instruction is one decoded instruction.
type Instruction struct {
	Op   Opcode
	Args Operands
}

// NewSet builds a Set instruction.
func NewSet(slot int32, value int64) Instruction {
	return Instruction{Op: OpSet, Args: Imm{Slot: slot, Value: value}}
}

// NewSlots builds a slot-triple instruction. It returns ErrMalformed for Set
// or an unknown opcode.
func NewSlots(op Opcode, a, b, c int32) (Instruction, error) {
	if !op.Valid() || op.Immediate() {
		return Instruction{}, fmt.Errorf("%w: %s does not take slot operands", ErrMalformed, op)
	}
	return Instruction{Op: op, Args: Slots{A: a, B: b, C: c}}, nil
}

// Must panics if err is non-nil. It is meant for building fixed programs.
func Must(ins Instruction, err error) Instruction {
	if err != nil {
		panic(err)
	}
	return ins
}

// Validate checks that the payload shape matches the opcode and that
// fields beyond the opcode's arity are zero.
func (ins Instruction) Validate() error {
	if !ins.Op.Valid() {
		return fmt.Errorf("%w: opcode %d", ErrMalformed, ins.Op)
	}
	switch args := ins.Args.(type) {
	case Imm:
		if !ins.Op.Immediate() {
			return fmt.Errorf("%w: %s with immediate operands", ErrMalformed, ins.Op)
		}
	case Slots:
		if ins.Op.Immediate() {
			return fmt.Errorf("%w: %s with slot operands", ErrMalformed, ins.Op)
		}
		fields := [3]int32{args.A, args.B, args.C}
		for i := ins.Op.Arity(); i < 3; i++ {
			if fields[i] != 0 {
				return fmt.Errorf("%w: %s has a non-zero unused field", ErrMalformed, ins.Op)
			}
		}
	default:
		return fmt.Errorf("%w: %s without operands", ErrMalformed, ins.Op)
	}
	return nil
}

// String renders the canonical text form accepted by the loader.
func (ins Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(ins.Op.String())
	switch args := ins.Args.(type) {
	case Imm:
		fmt.Fprintf(&sb, " $%d %d", args.Slot, args.Value)
	case Slots:
		fields := [3]int32{args.A, args.B, args.C}
		for i := 0; i < ins.Op.Arity(); i++ {
			sb.WriteByte(' ')
			if opTable[ins.Op].slot[i] {
				sb.WriteByte('$')
			}
			fmt.Fprintf(&sb, "%d", fields[i])
		}
	default:
		sb.WriteString(" ?")
	}
	return sb.String()
}
