// Package vm implements the simplang bytecode virtual machine: a flat value
// stack addressed relative to a single frame cursor, a separate stack of
// saved program counters, and a line-oriented textual instruction format.
package vm

// Opcode identifies one of the twelve instructions.
type Opcode uint8

// Opcodes, in table order. The numeric values are part of the image format.
const (
	OpMove       Opcode = iota // dst src        dst := src
	OpSet                      // slot value     slot := value (immediate form)
	OpAdd                      // dst a b        dst := a + b
	OpMultiply                 // dst a b        dst := a * b
	OpNegate                   // dst src        dst := -src
	OpNot                      // dst src        dst := src == 0
	OpJump                     // target         pc := target
	OpJumpIfZero               // cond target    if cond == 0: pc := target
	OpCall                     // entry size res call entry with a frame of size slots
	OpReturn                   // src            return src to the caller
	OpLessThan                 // dst a b        dst := a < b
	OpEquals                   // dst a b        dst := a == b

	numOpcodes
)

// opInfo describes the textual shape of an opcode.
type opInfo struct {
	name  string
	nargs int     // declared argument count; -1 marks the immediate form
	slot  [3]bool // which positional fields are slots (printed with '$')
	doc   string
}

var opTable = [numOpcodes]opInfo{
	OpMove:       {"Move", 2, [3]bool{true, true}, "dst := src"},
	OpSet:        {"Set", -1, [3]bool{true}, "slot := immediate 64-bit value"},
	OpAdd:        {"Add", 3, [3]bool{true, true, true}, "dst := src1 + src2 (wrapping)"},
	OpMultiply:   {"Multiply", 3, [3]bool{true, true, true}, "dst := src1 * src2 (wrapping)"},
	OpNegate:     {"Negate", 2, [3]bool{true, true}, "dst := -src"},
	OpNot:        {"Not", 2, [3]bool{true, true}, "dst := 1 if src == 0, else 0"},
	OpJump:       {"Jump", 1, [3]bool{}, "pc := target"},
	OpJumpIfZero: {"JumpIfZero", 2, [3]bool{true}, "if cond == 0 then pc := target"},
	OpCall:       {"Call", 3, [3]bool{false, false, true}, "push pc, advance frame by frameSize, pc := entry; the callee's result lands in resultSlot"},
	OpReturn:     {"Return", 1, [3]bool{true}, "return slot value to the caller, or halt with it at top level"},
	OpLessThan:   {"LessThan", 3, [3]bool{true, true, true}, "dst := 1 if src1 < src2, else 0"},
	OpEquals:     {"Equals", 3, [3]bool{true, true, true}, "dst := 1 if src1 == src2, else 0"},
}

var fieldNames = [numOpcodes][3]string{
	OpMove:       {"dst", "src"},
	OpSet:        {"slot", "value"},
	OpAdd:        {"dst", "src1", "src2"},
	OpMultiply:   {"dst", "src1", "src2"},
	OpNegate:     {"dst", "src"},
	OpNot:        {"dst", "src"},
	OpJump:       {"target"},
	OpJumpIfZero: {"cond", "target"},
	OpCall:       {"entry", "frameSize", "resultSlot"},
	OpReturn:     {"valueSlot"},
	OpLessThan:   {"dst", "src1", "src2"},
	OpEquals:     {"dst", "src1", "src2"},
}

// Valid reports whether op is one of the twelve opcodes.
func (op Opcode) Valid() bool {
	return op < numOpcodes
}

// String returns the mnemonic.
func (op Opcode) String() string {
	if !op.Valid() {
		return "?"
	}
	return opTable[op].name
}

// Immediate reports whether op uses the (slot, value) encoding.
func (op Opcode) Immediate() bool {
	return op == OpSet
}

// Arity returns the number of positional arguments op takes in text form.
func (op Opcode) Arity() int {
	if op.Immediate() {
		return 2
	}
	if !op.Valid() {
		return 0
	}
	return opTable[op].nargs
}

// Fields returns the names of op's positional arguments.
func (op Opcode) Fields() []string {
	if !op.Valid() {
		return nil
	}
	return fieldNames[op][:op.Arity()]
}

// Doc returns a one-line description of op's effect.
func (op Opcode) Doc() string {
	if !op.Valid() {
		return ""
	}
	return opTable[op].doc
}

// Opcodes returns every opcode in table order.
func Opcodes() []Opcode {
	ops := make([]Opcode, numOpcodes)
	for i := range ops {
		ops[i] = Opcode(i)
	}
	return ops
}

// Lookup finds the opcode for a mnemonic. Matching is exact and
// case-sensitive.
func Lookup(name string) (Opcode, bool) {
	for i, info := range opTable {
		if len(info.name) == len(name) && info.name == name {
			return Opcode(i), true
		}
	}
	return 0, false
}
