package vm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

// Helper to load and run a bytecode program on a fresh VM
func runProgram(t *testing.T, source string, args ...int64) (int64, *VM) {
	t.Helper()
	prog, err := LoadString(source)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	vm := New(4096, 64)
	vm.Load(prog)
	if err := vm.PushArgs(args); err != nil {
		t.Fatalf("PushArgs error: %v", err)
	}
	result, err := vm.Run()
	if err != nil {
		t.Fatalf("Runtime error: %v", err)
	}
	return result, vm
}

// Helper to run a program that is expected to fault
func runFault(t *testing.T, source string, args ...int64) *Fault {
	t.Helper()
	prog, err := LoadString(source)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	vm := New(64, 4)
	vm.Load(prog)
	if err := vm.PushArgs(args); err != nil {
		t.Fatalf("PushArgs error: %v", err)
	}
	_, err = vm.Run()
	if err == nil {
		t.Fatal("Expected a fault, got none")
	}
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("Expected *Fault, got %T: %v", err, err)
	}
	return f
}

const factorialProgram = `Move $0 $-1
Call 3 1 $1
Return $1
Set $0 2
LessThan $1 $-1 $0
JumpIfZero $1 8
Set $0 1
Return $0
Set $0 -1
Add $0 $-1 $0
Call 3 1 $1
Multiply $2 $-1 $1
Return $2
`

func TestAddScenario(t *testing.T) {
	result, vm := runProgram(t, "Set $0 5\nSet $1 7\nAdd $2 $0 $1\nReturn $2\n")
	if result != 12 {
		t.Errorf("Expected 12, got %d", result)
	}
	if !vm.Halted {
		t.Error("VM should be halted")
	}
	if vm.Steps != 4 {
		t.Errorf("Expected 4 steps, got %d", vm.Steps)
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		a, b     int64
		expected int64
	}{
		{"add", "Add", 2, 3, 5},
		{"add negative", "Add", -7, 3, -4},
		{"add wraps", "Add", math.MaxInt64, 1, math.MinInt64},
		{"add wraps down", "Add", math.MinInt64, -1, math.MaxInt64},
		{"multiply", "Multiply", 6, 7, 42},
		{"multiply negative", "Multiply", -6, 7, -42},
		{"multiply wraps", "Multiply", math.MaxInt64, 2, -2},
		{"less", "LessThan", 3, 5, 1},
		{"not less", "LessThan", 5, 3, 0},
		{"less equal", "LessThan", 5, 5, 0},
		{"less extremes", "LessThan", math.MinInt64, math.MaxInt64, 1},
		{"equals", "Equals", 5, 5, 1},
		{"not equals", "Equals", 5, -5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := fmt.Sprintf("%s $2 $0 $1\nReturn $2\n", tt.op)
			// Arguments land at -2 and -1; copy them down first.
			src = "Move $0 $-2\nMove $1 $-1\n" + src
			result, _ := runProgram(t, src, tt.a, tt.b)
			if result != tt.expected {
				t.Errorf("%s(%d, %d): expected %d, got %d", tt.op, tt.a, tt.b, tt.expected, result)
			}
		})
	}
}

func TestUnaryOps(t *testing.T) {
	tests := []struct {
		op       string
		in       int64
		expected int64
	}{
		{"Negate", 5, -5},
		{"Negate", -5, 5},
		{"Negate", math.MinInt64, math.MinInt64},
		{"Not", 0, 1},
		{"Not", 1, 0},
		{"Not", -9, 0},
		{"Move", 42, 42},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %d", tt.op, tt.in), func(t *testing.T) {
			result, _ := runProgram(t, fmt.Sprintf("%s $0 $-1\nReturn $0\n", tt.op), tt.in)
			if result != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestComparisonsAreBoolean(t *testing.T) {
	values := []int64{math.MinInt64, -3, -1, 0, 1, 2, 99, math.MaxInt64}
	for _, a := range values {
		for _, b := range values {
			for _, op := range []string{"LessThan", "Equals"} {
				src := fmt.Sprintf("%s $0 $-2 $-1\nReturn $0\n", op)
				result, _ := runProgram(t, src, a, b)
				if result != 0 && result != 1 {
					t.Fatalf("%s(%d, %d) = %d, want 0 or 1", op, a, b, result)
				}
			}
		}
	}
}

func TestJumps(t *testing.T) {
	// Sum 1..n with a JumpIfZero loop: $0 = i, $1 = acc, $2 = scratch.
	src := `Move $0 $-1
Set $1 0
Set $3 -1
JumpIfZero $0 8
Add $1 $1 $0
Add $0 $0 $3
Jump 3
Return $1
Return $1
`
	tests := []struct {
		n, expected int64
	}{
		{0, 0},
		{1, 1},
		{10, 55},
		{100, 5050},
	}
	for _, tt := range tests {
		result, _ := runProgram(t, src, tt.n)
		if result != tt.expected {
			t.Errorf("sum(%d): expected %d, got %d", tt.n, tt.expected, result)
		}
	}
}

func TestRecursiveFactorial(t *testing.T) {
	tests := []struct {
		n, expected int64
	}{
		{0, 1},
		{1, 1},
		{5, 120},
		{10, 3628800},
		{20, 2432902008176640000},
	}
	for _, tt := range tests {
		result, vm := runProgram(t, factorialProgram, tt.n)
		if result != tt.expected {
			t.Errorf("fact(%d): expected %d, got %d", tt.n, tt.expected, result)
		}
		if vm.Depth() != 0 {
			t.Errorf("fact(%d): call stack not empty: %d", tt.n, vm.Depth())
		}
		if vm.SP() != 1 {
			t.Errorf("fact(%d): expected sp 1 after run, got %d", tt.n, vm.SP())
		}
	}
}

func TestNestedCallsDifferentFrameSizes(t *testing.T) {
	// main keeps 77 live in $0, passes (6, 7) in a frame of 3. f multiplies,
	// calls g with a frame of 1 to negate, and reads main's 77 at $-3.
	src := `Set $0 77
Set $1 6
Set $2 7
Call 6 3 $3
Add $4 $0 $3
Return $4
Multiply $0 $-2 $-1
Call 10 1 $1
Add $2 $1 $-3
Return $2
Negate $0 $-1
Return $0
`
	result, vm := runProgram(t, src)
	if result != 112 {
		t.Errorf("Expected 112, got %d", result)
	}
	if vm.SP() != 0 {
		t.Errorf("Expected sp 0, got %d", vm.SP())
	}
}

func TestCallReturnRestoresFrame(t *testing.T) {
	for frameSize := 1; frameSize <= 8; frameSize++ {
		for argc := 1; argc <= frameSize; argc++ {
			t.Run(fmt.Sprintf("frame=%d argc=%d", frameSize, argc), func(t *testing.T) {
				var sb strings.Builder
				// Arguments go in the top argc slots of the region handed over.
				base := frameSize - argc
				for i := 0; i < argc; i++ {
					fmt.Fprintf(&sb, "Set $%d %d\n", base+i, 10*(i+1))
				}
				callPC := argc
				entry := callPC + 2
				fmt.Fprintf(&sb, "Call %d %d $%d\n", entry, frameSize, frameSize)
				fmt.Fprintf(&sb, "Return $%d\n", frameSize)
				// Callee returns its first argument plus its last.
				fmt.Fprintf(&sb, "Add $0 $%d $-1\nReturn $0\n", -argc)

				prog, err := LoadString(sb.String())
				if err != nil {
					t.Fatalf("Load error: %v", err)
				}
				vm := New(256, 8)
				vm.Load(prog)
				spBefore := vm.SP()
				for vm.PC != int32(callPC+1) {
					if err := vm.Step(); err != nil {
						t.Fatalf("Step error: %v", err)
					}
					if vm.PC == int32(entry) && vm.SP() != spBefore+frameSize {
						t.Fatalf("Callee frame at %d, want %d", vm.SP(), spBefore+frameSize)
					}
				}
				if vm.SP() != spBefore {
					t.Errorf("sp after return = %d, want %d", vm.SP(), spBefore)
				}
				got, err := vm.Get(int32(frameSize))
				if err != nil {
					t.Fatal(err)
				}
				want := int64(10 + 10*argc)
				if got != want {
					t.Errorf("result slot = %d, want %d", got, want)
				}
			})
		}
	}
}

func TestReturnHaltsOnce(t *testing.T) {
	// Anything after the top-level Return must never run.
	result, vm := runProgram(t, "Set $0 3\nReturn $0\nSet $0 4\nJump 99\n")
	if result != 3 {
		t.Errorf("Expected 3, got %d", result)
	}
	pc, steps := vm.PC, vm.Steps
	if err := vm.Step(); err != nil {
		t.Fatalf("Step after halt: %v", err)
	}
	if vm.PC != pc || vm.Steps != steps {
		t.Error("VM executed past the halting Return")
	}
	again, err := vm.Run()
	if err != nil || again != 3 {
		t.Errorf("Run after halt = %d, %v", again, err)
	}
}

func TestGasBudget(t *testing.T) {
	prog, err := LoadString("Jump 0\nReturn $0\n")
	if err != nil {
		t.Fatal(err)
	}
	for _, gas := range []int64{1, 10, 1000} {
		vm := New(16, 4)
		vm.MaxGas = gas
		vm.Gas = gas
		vm.Load(prog)
		_, err := vm.Run()
		if !errors.Is(err, ErrGasExhausted) {
			t.Fatalf("gas %d: expected ErrGasExhausted, got %v", gas, err)
		}
		if vm.Steps != gas {
			t.Errorf("gas %d: executed %d steps", gas, vm.Steps)
		}
	}
}

func TestRunContextCancel(t *testing.T) {
	prog, err := LoadString("Jump 0\n")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	vm := New(16, 4)
	vm.Load(prog)
	_, err = vm.RunContext(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestFaults(t *testing.T) {
	tests := []struct {
		name   string
		source string
		args   []int64
		want   error
		pc     int32
	}{
		{"negative slot", "Move $0 $-1\nReturn $0\n", nil, ErrSlotOutOfRange, 0},
		{"slot past end", "Set $64 1\nReturn $0\n", nil, ErrSlotOutOfRange, 0},
		{"return slot", "Return $-5\n", []int64{1}, ErrSlotOutOfRange, 0},
		{"frame past end", "Call 0 65 $0\n", nil, ErrFrameOutOfRange, 0},
		{"call stack overflow", "Call 0 1 $0\n", nil, ErrCallStackOverflow, 0},
		{"pc past end", "Set $0 1\n", nil, ErrPCOutOfRange, 1},
		{"jump out", "Jump 7\n", nil, ErrPCOutOfRange, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := runFault(t, tt.source, tt.args...)
			if !errors.Is(f, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, f)
			}
			if f.PC != tt.pc {
				t.Errorf("Expected fault at pc %d, got %d", tt.pc, f.PC)
			}
		})
	}
}

func TestBadReturnAddress(t *testing.T) {
	vm := New(16, 4)
	vm.Load([]Instruction{
		NewSet(0, 1),
		Must(NewSlots(OpReturn, 0, 0, 0)),
	})
	// Fake a pending return to a non-Call instruction.
	if err := vm.PushCall(0); err != nil {
		t.Fatal(err)
	}
	vm.PC = 1
	_, err := vm.Run()
	if !errors.Is(err, ErrBadReturnAddress) {
		t.Fatalf("Expected ErrBadReturnAddress, got %v", err)
	}
}

func TestMalformedInstruction(t *testing.T) {
	vm := New(16, 4)
	vm.Load([]Instruction{{Op: OpAdd, Args: Imm{Slot: 0, Value: 1}}})
	_, err := vm.Run()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("Expected ErrMalformed, got %v", err)
	}
}

func TestFaultMessage(t *testing.T) {
	f := runFault(t, "Set $0 1\nAdd $1 $0 $99\n")
	msg := f.Error()
	if !strings.Contains(msg, "pc 1") || !strings.Contains(msg, "Add $1 $0 $99") {
		t.Errorf("Fault message lacks location: %q", msg)
	}
}

func TestExec(t *testing.T) {
	prog, err := LoadString(factorialProgram)
	if err != nil {
		t.Fatal(err)
	}
	result, err := Exec(context.Background(), prog, []int64{6}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result != 720 {
		t.Errorf("Expected 720, got %d", result)
	}

	_, err = Exec(context.Background(), prog, []int64{6}, Options{Gas: 5})
	if !errors.Is(err, ErrGasExhausted) {
		t.Errorf("Expected ErrGasExhausted, got %v", err)
	}
}

func TestResetRerun(t *testing.T) {
	prog, err := LoadString(factorialProgram)
	if err != nil {
		t.Fatal(err)
	}
	vm := New(256, 32)
	vm.Load(prog)
	for _, n := range []int64{3, 4, 5} {
		vm.Reset()
		if err := vm.PushArgs([]int64{n}); err != nil {
			t.Fatal(err)
		}
		result, err := vm.Run()
		if err != nil {
			t.Fatal(err)
		}
		want := map[int64]int64{3: 6, 4: 24, 5: 120}[n]
		if result != want {
			t.Errorf("fact(%d) = %d, want %d", n, result, want)
		}
	}
}

func TestTrace(t *testing.T) {
	prog, err := LoadString("Set $0 5\nAdd $1 $0 $-1\nReturn $1\n")
	if err != nil {
		t.Fatal(err)
	}
	vm := New(4, 2)
	vm.Load(prog)
	if err := vm.PushArgs([]int64{7}); err != nil {
		t.Fatal(err)
	}
	if got, want := vm.trace(vm.Code[vm.PC]), "pc=0 Set $0 5 sp=1 depth=0 frame=[0 0 0]"; got != want {
		t.Errorf("trace = %q, want %q", got, want)
	}
	if err := vm.Step(); err != nil {
		t.Fatal(err)
	}
	if got, want := vm.trace(vm.Code[vm.PC]), "pc=1 Add $1 $0 $-1 sp=1 depth=0 frame=[5 0 0]"; got != want {
		t.Errorf("trace = %q, want %q", got, want)
	}
}
