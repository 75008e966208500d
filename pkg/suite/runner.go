package suite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/simplang/simplang/pkg/ast"
	"github.com/simplang/simplang/pkg/compiler"
	"github.com/simplang/simplang/pkg/interpreter"
	"github.com/simplang/simplang/pkg/parser"
	"github.com/simplang/simplang/pkg/vm"
)

var log = commonlog.GetLogger("simplang.suite")

// Engine selects what executes source programs. Bytecode programs always
// run on the VM.
type Engine string

const (
	EngineInterp Engine = "interp"
	EngineVM     Engine = "vm"
	EngineBoth   Engine = "both"
)

var ErrMismatch = errors.New("interpreter and vm disagree")

// ParseEngine validates an engine name.
func ParseEngine(s string) (Engine, error) {
	switch e := Engine(s); e {
	case EngineInterp, EngineVM, EngineBoth:
		return e, nil
	}
	return "", fmt.Errorf("unknown engine %q (want interp, vm or both)", s)
}

// Runner executes suites.
type Runner struct {
	Engine        Engine
	Jobs          int // concurrent cases; <= 0 means one
	StackSize     int
	CallStackSize int
	Gas           int64 // per case, 0 = unlimited
}

// Failure is one case that did not produce its expected result.
type Failure struct {
	Suite    string
	Line     int
	Args     []int64
	Expected int64
	Got      int64
	Err      error
}

func (f Failure) String() string {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = fmt.Sprint(a)
	}
	if f.Err != nil {
		return fmt.Sprintf("Failure on %s:%d with [%s]: expected %d, got error: %v",
			f.Suite, f.Line, strings.Join(args, " "), f.Expected, f.Err)
	}
	return fmt.Sprintf("Failure on %s:%d with [%s]: expected %d, got %d",
		f.Suite, f.Line, strings.Join(args, " "), f.Expected, f.Got)
}

// Report collects the outcome of a run.
type Report struct {
	Suites   int
	Cases    int
	Failures []Failure
}

// OK reports whether every case passed.
func (r *Report) OK() bool { return len(r.Failures) == 0 }

func (r *Report) String() string {
	return fmt.Sprintf("Ran %d tests - %d failures", r.Cases, len(r.Failures))
}

// program is a suite's code prepared for every engine it runs on.
type program struct {
	fn   *ast.Function
	code []vm.Instruction
	err  error
}

func (r *Runner) prepare(s *Suite) program {
	if s.Kind == Bytecode {
		code, err := vm.LoadFile(s.Program)
		return program{code: code, err: err}
	}
	fn, err := parser.ParseFile(s.Program)
	if err != nil {
		return program{err: err}
	}
	p := program{fn: fn}
	if r.Engine != EngineInterp {
		p.code, p.err = compiler.Compile(fn)
	}
	return p
}

// Run executes every case of suites concurrently. The error is non-nil only
// when ctx ends the run early; case failures are in the report.
func (r *Runner) Run(ctx context.Context, suites []*Suite) (*Report, error) {
	jobs := r.Jobs
	if jobs <= 0 {
		jobs = 1
	}
	report := &Report{Suites: len(suites)}

	type slot struct {
		suite *Suite
		c     Case
		prog  *program
		fail  *Failure
	}
	var work []*slot
	for _, s := range suites {
		p := r.prepare(s)
		log.Infof("%s: %d cases", s.Name, len(s.Cases))
		for _, c := range s.Cases {
			work = append(work, &slot{suite: s, c: c, prog: &p})
		}
	}
	report.Cases = len(work)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for _, w := range work {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			got, err := r.runCase(gctx, w.prog, w.c.Args)
			if err == nil && got == w.c.Expected {
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.fail = &Failure{
				Suite:    w.suite.Name,
				Line:     w.c.Line,
				Args:     w.c.Args,
				Expected: w.c.Expected,
				Got:      got,
				Err:      err,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	for _, w := range work {
		if w.fail != nil {
			log.Errorf("%s", w.fail)
			report.Failures = append(report.Failures, *w.fail)
		}
	}
	log.Infof("%s", report)
	return report, nil
}

func (r *Runner) runCase(ctx context.Context, p *program, args []int64) (int64, error) {
	if p.err != nil {
		return 0, p.err
	}
	if p.fn == nil {
		return r.runVM(ctx, p.code, args)
	}
	switch r.Engine {
	case EngineInterp:
		return r.runInterp(p.fn, args)
	case EngineVM:
		return r.runVM(ctx, p.code, args)
	}
	want, err := r.runInterp(p.fn, args)
	if err != nil {
		return 0, fmt.Errorf("interpreter: %w", err)
	}
	got, err := r.runVM(ctx, p.code, args)
	if err != nil {
		return 0, fmt.Errorf("vm: %w", err)
	}
	if got != want {
		return got, fmt.Errorf("%w: interpreter %d, vm %d", ErrMismatch, want, got)
	}
	return got, nil
}

func (r *Runner) runInterp(fn *ast.Function, args []int64) (int64, error) {
	interp := interpreter.New()
	interp.MaxGas = r.Gas
	return interp.Call(fn, args)
}

func (r *Runner) runVM(ctx context.Context, code []vm.Instruction, args []int64) (int64, error) {
	return vm.Exec(ctx, code, args, vm.Options{
		StackSize:     r.StackSize,
		CallStackSize: r.CallStackSize,
		Gas:           r.Gas,
	})
}
