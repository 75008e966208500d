// Package suite runs .tests files against simplang programs.
//
// A .tests file holds records separated by blank lines. A record is a line
// of space-separated integer arguments followed by a line with the
// expected result. The program for name.tests is name.sl (source) or
// name.vm (bytecode text) in the examples directory.
package suite

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrBadTests  = errors.New("malformed tests file")
	ErrNoProgram = errors.New("no program for tests file")
)

// Case is one record of a .tests file.
type Case struct {
	Line     int // line of the arguments
	Args     []int64
	Expected int64
}

// Kind says how a suite's program is stored.
type Kind int

const (
	Source Kind = iota
	Bytecode
)

func (k Kind) String() string {
	if k == Bytecode {
		return "bytecode"
	}
	return "source"
}

// Suite pairs a .tests file with its program.
type Suite struct {
	Name    string
	Tests   string // path of the .tests file
	Program string // path of the .sl or .vm file
	Kind    Kind
	Cases   []Case
}

// ParseTests reads the records of a .tests file.
func ParseTests(r io.Reader) ([]Case, error) {
	sc := bufio.NewScanner(r)
	line := 0
	// next returns the numbers on the next non-blank line, or nil at EOF.
	next := func() ([]int64, error) {
		for sc.Scan() {
			line++
			fields := strings.Fields(sc.Text())
			if len(fields) == 0 {
				continue
			}
			nums := make([]int64, len(fields))
			for i, f := range fields {
				n, err := strconv.ParseInt(f, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %q is not an integer", ErrBadTests, line, f)
				}
				nums[i] = n
			}
			return nums, nil
		}
		return nil, sc.Err()
	}

	var cases []Case
	for {
		args, err := next()
		if err != nil {
			return nil, err
		}
		if args == nil {
			return cases, nil
		}
		c := Case{Line: line, Args: args}
		want, err := next()
		if err != nil {
			return nil, err
		}
		if len(want) != 1 {
			return nil, fmt.Errorf("%w: line %d: want one expected result after arguments", ErrBadTests, c.Line)
		}
		c.Expected = want[0]
		cases = append(cases, c)
	}
}

// Load reads one .tests file and locates its program in examplesDir.
func Load(testsPath, examplesDir string) (*Suite, error) {
	f, err := os.Open(testsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cases, err := ParseTests(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", testsPath, err)
	}

	name := strings.TrimSuffix(filepath.Base(testsPath), ".tests")
	s := &Suite{Name: name, Tests: testsPath, Cases: cases}
	for _, cand := range []struct {
		ext  string
		kind Kind
	}{{".sl", Source}, {".vm", Bytecode}} {
		p := filepath.Join(examplesDir, name+cand.ext)
		if _, err := os.Stat(p); err == nil {
			s.Program, s.Kind = p, cand.kind
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (looked in %s)", ErrNoProgram, testsPath, examplesDir)
}

// Discover loads every .tests file in testsDir. A relative examplesDir is
// resolved against testsDir.
func Discover(testsDir, examplesDir string) ([]*Suite, error) {
	if !filepath.IsAbs(examplesDir) {
		examplesDir = filepath.Join(testsDir, examplesDir)
	}
	matches, err := filepath.Glob(filepath.Join(testsDir, "*.tests"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var suites []*Suite
	for _, m := range matches {
		s, err := Load(m, examplesDir)
		if err != nil {
			return nil, err
		}
		log.Debugf("suite %s: %d cases, %s %s", s.Name, len(s.Cases), s.Kind, s.Program)
		suites = append(suites, s)
	}
	return suites, nil
}
