package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	imageMagic   = "simvm"
	imageVersion = 1
)

// image is the on-disk form of a loaded program.
type image struct {
	Magic        string      `cbor:"1,keyasint"`
	Version      uint        `cbor:"2,keyasint"`
	Instructions []imageInst `cbor:"3,keyasint"`
}

// imageInst flattens both operand shapes; the opcode decides which fields
// are meaningful.
type imageInst struct {
	Op  uint8 `cbor:"1,keyasint"`
	A   int32 `cbor:"2,keyasint,omitempty"`
	B   int32 `cbor:"3,keyasint,omitempty"`
	C   int32 `cbor:"4,keyasint,omitempty"`
	Imm int64 `cbor:"5,keyasint,omitempty"`
}

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

// MarshalImage serializes a program to canonical CBOR.
func MarshalImage(prog []Instruction) ([]byte, error) {
	img := image{
		Magic:        imageMagic,
		Version:      imageVersion,
		Instructions: make([]imageInst, len(prog)),
	}
	for i, ins := range prog {
		if err := ins.Validate(); err != nil {
			return nil, fmt.Errorf("pc %d: %w", i, err)
		}
		w := imageInst{Op: uint8(ins.Op)}
		switch args := ins.Args.(type) {
		case Imm:
			w.A, w.Imm = args.Slot, args.Value
		case Slots:
			w.A, w.B, w.C = args.A, args.B, args.C
		}
		img.Instructions[i] = w
	}
	return imageEncMode.Marshal(img)
}

// UnmarshalImage decodes and validates a program image.
func UnmarshalImage(data []byte) ([]Instruction, error) {
	var img image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if img.Magic != imageMagic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadImage, img.Magic)
	}
	if img.Version != imageVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadImage, img.Version)
	}

	prog := make([]Instruction, len(img.Instructions))
	for i, w := range img.Instructions {
		op := Opcode(w.Op)
		var ins Instruction
		switch {
		case !op.Valid():
			return nil, fmt.Errorf("%w: pc %d: opcode %d", ErrBadImage, i, w.Op)
		case op.Immediate():
			if w.B != 0 || w.C != 0 {
				return nil, fmt.Errorf("%w: pc %d: Set with slot fields", ErrBadImage, i)
			}
			ins = NewSet(w.A, w.Imm)
		default:
			if w.Imm != 0 {
				return nil, fmt.Errorf("%w: pc %d: %s with immediate", ErrBadImage, i, op)
			}
			ins = Instruction{Op: op, Args: Slots{A: w.A, B: w.B, C: w.C}}
		}
		if err := ins.Validate(); err != nil {
			return nil, fmt.Errorf("%w: pc %d: %v", ErrBadImage, i, err)
		}
		prog[i] = ins
	}
	return prog, nil
}

// IsImage reports whether data looks like a binary image rather than
// program text: text starts with printable characters.
func IsImage(data []byte) bool {
	for i := 0; i < len(data) && i < 10; i++ {
		c := data[i]
		if c == '\n' || c == '\r' || c == '\t' || c == ' ' {
			continue
		}
		if c >= 0x20 && c <= 0x7E {
			continue
		}
		return true
	}
	return false
}
