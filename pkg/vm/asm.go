package vm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Text format, one instruction per line:
//
//	[digits] mnemonic (sep arg)*
//	sep := (',' | ' ' | '\t')* '$'?
//	arg := '-'? digits
//
// The leading digits are an ignored line-number annotation. Set takes a
// slot and a 64-bit immediate; every other opcode takes its declared number
// of 32-bit fields.

// Load decodes a program from r. There is no error recovery: the first bad
// line aborts the load.
func Load(r io.Reader) ([]Instruction, error) {
	var prog []Instruction
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSuffix(sc.Text(), "\r")
		ins, err := parseLine(line)
		if err != nil {
			return nil, &LoadError{Line: lineNum, Text: line, Err: err}
		}
		prog = append(prog, ins)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading program: %w", err)
	}
	log.Debugf("loaded %d instructions", len(prog))
	return prog, nil
}

// LoadString decodes a program from text.
func LoadString(source string) ([]Instruction, error) {
	return Load(strings.NewReader(source))
}

// LoadFile decodes a program from a text file.
func LoadFile(path string) ([]Instruction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	prog, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

func isLineNumberChar(c byte) bool {
	return c >= '0' && c <= '9' || c == ' ' || c == '\t'
}

func isSep(c byte) bool {
	return c == ',' || c == ' ' || c == '\t'
}

func parseLine(line string) (Instruction, error) {
	if strings.TrimSpace(line) == "" {
		return Instruction{}, ErrEmptyLine
	}

	p := 0
	for p < len(line) && isLineNumberChar(line[p]) {
		p++
	}
	if p == len(line) {
		return Instruction{}, fmt.Errorf("%w: missing mnemonic", ErrTruncated)
	}
	start := p
	for p < len(line) && !isSep(line[p]) {
		p++
	}
	name := line[start:p]
	op, ok := Lookup(name)
	if !ok {
		return Instruction{}, fmt.Errorf("%w %q", ErrUnknownMnemonic, name)
	}

	var ins Instruction
	if op.Immediate() {
		slot, err := parseArg(line, &p, 32)
		if err != nil {
			return Instruction{}, err
		}
		value, err := parseArg(line, &p, 64)
		if err != nil {
			return Instruction{}, err
		}
		ins = NewSet(int32(slot), value)
	} else {
		var fields [3]int32
		for i := 0; i < op.Arity(); i++ {
			v, err := parseArg(line, &p, 32)
			if err != nil {
				return Instruction{}, err
			}
			fields[i] = int32(v)
		}
		ins = Instruction{Op: op, Args: Slots{A: fields[0], B: fields[1], C: fields[2]}}
	}

	if rest := strings.Trim(line[p:], " \t"); rest != "" {
		return Instruction{}, fmt.Errorf("%w %q", ErrTrailing, rest)
	}
	return ins, nil
}

// parseArg reads one sep+arg starting at *p and advances *p past it.
func parseArg(line string, p *int, bits int) (int64, error) {
	i := *p
	for i < len(line) && isSep(line[i]) {
		i++
	}
	if i < len(line) && line[i] == '$' {
		i++
	}
	if i == len(line) {
		return 0, fmt.Errorf("%w: missing argument", ErrTruncated)
	}
	start := i
	if line[i] == '-' {
		i++
	}
	digits := i
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == digits || (i < len(line) && !isSep(line[i]) && line[i] != '$') {
		end := i
		for end < len(line) && !isSep(line[end]) {
			end++
		}
		return 0, fmt.Errorf("%w %q", ErrBadNumeral, line[start:end])
	}
	v, err := strconv.ParseInt(line[start:i], 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w %q: out of range", ErrBadNumeral, line[start:i])
	}
	*p = i
	return v, nil
}

// Format writes prog in canonical text form, one instruction per line.
func Format(w io.Writer, prog []Instruction) error {
	bw := bufio.NewWriter(w)
	for _, ins := range prog {
		if _, err := fmt.Fprintln(bw, ins.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Disassemble renders prog with each line prefixed by its pc. The output
// is itself loadable: the prefix is read as a line-number annotation.
func Disassemble(prog []Instruction) string {
	var sb strings.Builder
	for pc, ins := range prog {
		fmt.Fprintf(&sb, "%4d  %s\n", pc, ins)
	}
	return sb.String()
}
