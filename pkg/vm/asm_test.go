package vm

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestLoadEveryOpcode(t *testing.T) {
	tests := []struct {
		line string
		want Instruction
	}{
		{"Move $1 $-2", Instruction{OpMove, Slots{1, -2, 0}}},
		{"Set $3 -9000000000", Instruction{OpSet, Imm{3, -9000000000}}},
		{"Add $0 $1 $2", Instruction{OpAdd, Slots{0, 1, 2}}},
		{"Multiply $-1 $-2 $-3", Instruction{OpMultiply, Slots{-1, -2, -3}}},
		{"Negate $4 $5", Instruction{OpNegate, Slots{4, 5, 0}}},
		{"Not $4 $-5", Instruction{OpNot, Slots{4, -5, 0}}},
		{"Jump 12", Instruction{OpJump, Slots{12, 0, 0}}},
		{"JumpIfZero $2 7", Instruction{OpJumpIfZero, Slots{2, 7, 0}}},
		{"Call 10 3 $-1", Instruction{OpCall, Slots{10, 3, -1}}},
		{"Return $-4", Instruction{OpReturn, Slots{-4, 0, 0}}},
		{"LessThan $0 $1 $2", Instruction{OpLessThan, Slots{0, 1, 2}}},
		{"Equals $9 $8 $7", Instruction{OpEquals, Slots{9, 8, 7}}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			prog, err := LoadString(tt.line + "\n")
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			if len(prog) != 1 {
				t.Fatalf("Expected 1 instruction, got %d", len(prog))
			}
			if !reflect.DeepEqual(prog[0], tt.want) {
				t.Errorf("Expected %#v, got %#v", tt.want, prog[0])
			}
			if prog[0].String() != tt.line {
				t.Errorf("Canonical form %q, want %q", prog[0].String(), tt.line)
			}
			if err := prog[0].Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestLoadSyntaxVariants(t *testing.T) {
	want := Instruction{OpAdd, Slots{2, 0, -1}}
	lines := []string{
		"Add $2 $0 $-1",
		"Add 2 0 -1",
		"Add $2, $0, $-1",
		"Add\t$2,$0,$-1",
		"17 Add $2 $0 $-1",
		"  3\tAdd $2 $0 $-1",
		"Add $2 $0 $-1   \t",
		"Add $2 $0 $-1\r",
		"Add $2$0$-1",
		"Add 2$0,$-1",
	}
	for _, line := range lines {
		prog, err := LoadString(line)
		if err != nil {
			t.Errorf("%q: %v", line, err)
			continue
		}
		if !reflect.DeepEqual(prog[0], want) {
			t.Errorf("%q: got %#v", line, prog[0])
		}
	}
}

func TestLoadAdjacentSigils(t *testing.T) {
	prog, err := LoadString("Move $0$1\nJumpIfZero $-3$12")
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	want := []Instruction{
		{OpMove, Slots{0, 1, 0}},
		{OpJumpIfZero, Slots{-3, 12, 0}},
	}
	if !reflect.DeepEqual(prog, want) {
		t.Errorf("got %#v, want %#v", prog, want)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   error
		line   int
	}{
		{"unknown mnemonic", "Set $0 1\nFrobnicate $0\n", ErrUnknownMnemonic, 2},
		{"case sensitive", "add $0 $1 $2\n", ErrUnknownMnemonic, 1},
		{"prefix only", "Jum 3\n", ErrUnknownMnemonic, 1},
		{"longer name", "Returns $0\n", ErrUnknownMnemonic, 1},
		{"bad numeral", "Add $0 $x $1\n", ErrBadNumeral, 1},
		{"numeral suffix", "Return $5x\n", ErrBadNumeral, 1},
		{"lone minus", "Jump -\n", ErrBadNumeral, 1},
		{"field overflow", "Jump 2147483648\n", ErrBadNumeral, 1},
		{"immediate overflow", "Set $0 9223372036854775808\n", ErrBadNumeral, 1},
		{"missing arg", "Add $0 $1\n", ErrTruncated, 1},
		{"set missing value", "Set $0\n", ErrTruncated, 1},
		{"mnemonic only", "Return\n", ErrTruncated, 1},
		{"number only", "42\n", ErrTruncated, 1},
		{"blank line", "Set $0 1\n\nReturn $0\n", ErrEmptyLine, 2},
		{"extra args", "Return $0 $1\n", ErrTrailing, 1},
		{"extra adjacent arg", "Return $0$1\n", ErrTrailing, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadString(tt.source)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("Expected *LoadError, got %T", err)
			}
			if le.Line != tt.line {
				t.Errorf("Expected line %d, got %d", tt.line, le.Line)
			}
		})
	}
}

func TestLoadEmpty(t *testing.T) {
	prog, err := LoadString("")
	if err != nil {
		t.Fatal(err)
	}
	if len(prog) != 0 {
		t.Errorf("Expected empty program, got %d instructions", len(prog))
	}
}

func TestFormatRoundTrip(t *testing.T) {
	prog, err := LoadString(factorialProgram)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Format(&buf, prog); err != nil {
		t.Fatal(err)
	}
	if buf.String() != factorialProgram {
		t.Errorf("Format changed the text:\n%s", buf.String())
	}
	again, err := LoadString(buf.String())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(prog, again) {
		t.Error("Format/Load is not the identity")
	}
}

func TestDisassembleIsLoadable(t *testing.T) {
	prog, err := LoadString(factorialProgram)
	if err != nil {
		t.Fatal(err)
	}
	text := Disassemble(prog)
	if !strings.HasPrefix(text, "   0  Move $0 $-1\n") {
		t.Errorf("Unexpected disassembly:\n%s", text)
	}
	again, err := LoadString(text)
	if err != nil {
		t.Fatalf("Disassembly does not load: %v", err)
	}
	if !reflect.DeepEqual(prog, again) {
		t.Error("Disassemble/Load is not the identity")
	}
}

func TestLookup(t *testing.T) {
	for _, op := range Opcodes() {
		got, ok := Lookup(op.String())
		if !ok || got != op {
			t.Errorf("Lookup(%q) = %v, %v", op.String(), got, ok)
		}
		if len(op.Fields()) != op.Arity() {
			t.Errorf("%s: %d field names for arity %d", op, len(op.Fields()), op.Arity())
		}
		if op.Doc() == "" {
			t.Errorf("%s has no description", op)
		}
	}
	if _, ok := Lookup("JumpIfZer"); ok {
		t.Error("Lookup matched a prefix")
	}
}

func TestNewSlots(t *testing.T) {
	if _, err := NewSlots(OpSet, 1, 2, 0); !errors.Is(err, ErrMalformed) {
		t.Errorf("NewSlots(Set) should fail, got %v", err)
	}
	if _, err := NewSlots(Opcode(200), 0, 0, 0); !errors.Is(err, ErrMalformed) {
		t.Errorf("NewSlots(200) should fail, got %v", err)
	}
	ins := Must(NewSlots(OpJump, 4, 0, 0))
	if ins.String() != "Jump 4" {
		t.Errorf("Got %q", ins.String())
	}
	bad := Instruction{OpJump, Slots{4, 1, 0}}
	if err := bad.Validate(); !errors.Is(err, ErrMalformed) {
		t.Errorf("Validate should reject a non-zero unused field, got %v", err)
	}
}
