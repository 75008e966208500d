package vm

import (
	"errors"
	"fmt"
)

// Load errors.
var (
	ErrUnknownMnemonic = errors.New("unknown mnemonic")
	ErrBadNumeral      = errors.New("malformed numeral")
	ErrTruncated       = errors.New("truncated instruction")
	ErrEmptyLine       = errors.New("empty line")
	ErrTrailing        = errors.New("unexpected trailing content")
	ErrBadImage        = errors.New("bad program image")
)

// Run-time faults.
var (
	ErrSlotOutOfRange    = errors.New("slot out of range")
	ErrFrameOutOfRange   = errors.New("stack pointer out of range")
	ErrCallStackOverflow = errors.New("call stack overflow")
	ErrCallStackEmpty    = errors.New("call stack empty")
	ErrBadReturnAddress  = errors.New("return address is not a Call")
	ErrPCOutOfRange      = errors.New("program counter out of range")
	ErrMalformed         = errors.New("malformed instruction")
	ErrGasExhausted      = errors.New("gas exhausted")
)

// LoadError reports the line that stopped a load.
type LoadError struct {
	Line int // 1-based
	Text string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Fault is a fatal run-time error. The machine must not be resumed after one.
type Fault struct {
	PC          int32
	Instruction string // canonical text, empty if pc was out of range
	Err         error
}

func (f *Fault) Error() string {
	if f.Instruction == "" {
		return fmt.Sprintf("pc %d: %v", f.PC, f.Err)
	}
	return fmt.Sprintf("pc %d (%s): %v", f.PC, f.Instruction, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }
