// simplang runs programs written in the simplang expression language.
//
// A program is `fun a b = expr`; its parameters are bound from the integer
// ARGS on the command line. Without a file it starts an interactive REPL.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/simplang/simplang/pkg/ast"
	"github.com/simplang/simplang/pkg/compiler"
	"github.com/simplang/simplang/pkg/config"
	"github.com/simplang/simplang/pkg/interpreter"
	"github.com/simplang/simplang/pkg/parser"
	"github.com/simplang/simplang/pkg/scanner"
	"github.com/simplang/simplang/pkg/suite"
	"github.com/simplang/simplang/pkg/vm"

	_ "github.com/tliron/commonlog/simple"
)

var (
	flagTokens  = flag.Bool("tokens", false, "Print the token stream and exit")
	flagAST     = flag.Bool("ast", false, "Print the parsed program and exit")
	flagAsm     = flag.Bool("S", false, "Print the compiled bytecode and exit")
	flagVM      = flag.Bool("vm", false, "Run on the VM instead of the interpreter")
	flagGas     = flag.Int64("gas", -1, "Gas limit (0 = unlimited, -1 = from config)")
	flagDebug   = flag.Bool("debug", false, "Trace evaluation")
	flagQuiet   = flag.Bool("quiet", false, "Quiet mode (no banner)")
	flagTest    = flag.String("test", "", "Run the .tests files in this directory")
	flagEngine  = flag.String("engine", "", "Suite engine: interp, vm or both (default: from config)")
	flagJobs    = flag.Int("jobs", 0, "Concurrent suite cases (0 = from config)")
	flagVerbose = flag.Int("v", 0, "Log verbosity (default: from config)")
)

var cfg *config.Config

func main() {
	flag.Parse()

	var err error
	cfg, err = config.FindAndLoad(".")
	if err != nil {
		fatal(err)
	}
	if *flagGas >= 0 {
		cfg.VM.Gas = *flagGas
	}
	if isSet(flag.CommandLine, "v") {
		cfg.Log.Verbosity = *flagVerbose
	}
	if *flagDebug && cfg.Log.Verbosity < 2 {
		cfg.Log.Verbosity = 2
	}
	commonlog.Configure(cfg.Log.Verbosity, cfg.LogFile())

	if *flagTest != "" {
		os.Exit(runSuites(*flagTest))
	}

	args := flag.Args()
	if len(args) == 0 {
		runREPL()
		return
	}

	if err := runFile(args[0], args[1:]); err != nil {
		fatal(err)
	}
}

func runFile(filename string, rawArgs []string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	source := string(data)

	if *flagTokens {
		toks, err := scanner.New(filename, source).All()
		for _, tok := range toks {
			fmt.Println(tok)
		}
		return err
	}

	fn, err := parser.ParseNamed(filename, source)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	if *flagAST {
		fmt.Println(fn)
		return nil
	}
	if *flagAsm {
		code, err := compiler.Compile(fn)
		if err != nil {
			return err
		}
		return vm.Format(os.Stdout, code)
	}

	args := make([]int64, len(rawArgs))
	for i, a := range rawArgs {
		if args[i], err = strconv.ParseInt(a, 10, 64); err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
	}

	result, err := evaluate(fn, args, *flagVM)
	if err != nil {
		return fmt.Errorf("runtime error in %s: %w", filename, err)
	}
	fmt.Println(result)
	return nil
}

func evaluate(fn *ast.Function, args []int64, onVM bool) (int64, error) {
	if !onVM {
		interp := interpreter.New()
		interp.MaxGas = cfg.VM.Gas
		interp.Debug = *flagDebug
		return interp.Call(fn, args)
	}
	code, err := compiler.Compile(fn)
	if err != nil {
		return 0, err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return vm.Exec(ctx, code, args, vm.Options{
		StackSize:     cfg.VM.StackSize,
		CallStackSize: cfg.VM.CallStackSize,
		Gas:           cfg.VM.Gas,
		Debug:         *flagDebug,
	})
}

func runSuites(dir string) int {
	engine := cfg.Suite.Engine
	if *flagEngine != "" {
		engine = *flagEngine
	}
	e, err := suite.ParseEngine(engine)
	if err != nil {
		fatal(err)
	}
	jobs := cfg.Suite.Jobs
	if *flagJobs > 0 {
		jobs = *flagJobs
	}

	suites, err := suite.Discover(dir, cfg.Suite.Examples)
	if err != nil {
		fatal(err)
	}
	r := &suite.Runner{
		Engine:        e,
		Jobs:          jobs,
		StackSize:     cfg.VM.StackSize,
		CallStackSize: cfg.VM.CallStackSize,
		Gas:           cfg.VM.Gas,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	report, err := r.Run(ctx, suites)
	if err != nil {
		fatal(err)
	}
	for _, f := range report.Failures {
		fmt.Println(f)
	}
	fmt.Println(report)
	if !report.OK() {
		return 1
	}
	return 0
}

// --- REPL ---

type replState struct {
	onVM     bool
	showCode bool
}

func runREPL() {
	if !*flagQuiet {
		printBanner()
	}

	st := &replState{onVM: *flagVM}
	reader := bufio.NewReader(os.Stdin)
	buffer := ""

	for {
		if buffer == "" {
			fmt.Print("sl> ")
		} else {
			fmt.Print("..> ")
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			break
		}
		line = strings.TrimRight(line, "\r\n")

		if buffer == "" {
			if handled := handleCommand(st, line); handled {
				continue
			}
		}

		buffer += line + "\n"
		if depth(buffer) <= 0 {
			if strings.TrimSpace(buffer) != "" {
				executeREPL(st, buffer)
			}
			buffer = ""
		}
	}
}

// depth counts open parentheses and if/let/loop blocks. Input that does
// not scan counts as complete so the error gets reported.
func depth(source string) int {
	toks, err := scanner.New("", source).All()
	if err != nil {
		return 0
	}
	d := 0
	for _, tok := range toks {
		switch tok.Text {
		case "(", "if", "let", "loop":
			d++
		case ")", "end":
			d--
		}
	}
	return d
}

func handleCommand(st *replState, line string) bool {
	trimmed := strings.TrimSpace(line)

	switch {
	case trimmed == "":
		return true

	case trimmed == ":help" || trimmed == ":h" || trimmed == ":?":
		printHelp()
		return true

	case trimmed == ":quit" || trimmed == ":q" || trimmed == ":exit":
		fmt.Println("Goodbye!")
		os.Exit(0)

	case trimmed == ":vm":
		st.onVM = !st.onVM
		fmt.Printf("Run on VM: %v\n", st.onVM)
		return true

	case trimmed == ":code":
		st.showCode = !st.showCode
		fmt.Printf("Show bytecode: %v\n", st.showCode)
		return true

	case trimmed == ":gas" || strings.HasPrefix(trimmed, ":gas "):
		parts := strings.Fields(trimmed)
		if len(parts) < 2 {
			fmt.Printf("Gas limit: %d\n", cfg.VM.Gas)
			return true
		}
		gas, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || gas < 0 {
			fmt.Println("Usage: :gas <n>")
			return true
		}
		cfg.VM.Gas = gas
		fmt.Printf("Gas limit set to %d\n", gas)
		return true
	}

	return false
}

func executeREPL(st *replState, source string) {
	fn, err := parser.Parse(source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Parse error: %v\n", err)
		return
	}
	if len(fn.Params) > 0 {
		fmt.Fprintln(os.Stderr, "Error: the REPL evaluates closed expressions only")
		return
	}
	if st.showCode {
		if code, err := compiler.Compile(fn); err == nil {
			fmt.Print(vm.Disassemble(code))
		}
	}
	result, err := evaluate(fn, nil, st.onVM)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Printf("  => %d\n", result)
}

func printBanner() {
	fmt.Print(`simplang - type :help for commands, :quit to exit
`)
}

func printHelp() {
	fmt.Print(`
Commands:
  :help, :h, :?    Show this help
  :quit, :q        Exit
  :vm              Toggle running on the VM
  :code            Toggle printing compiled bytecode
  :gas <n>         Set gas limit (0 = unlimited)

Language:
  1 + 2 * 3                          Arithmetic (+ * unary -)
  a < b, a == b, !a, a && b, a || b  Comparisons and logic (0 or 1)
  if c then a else b end
  let x = 1 and y = 2 in x + y end
  loop i = 0 and s = 0 in if i < 10 then recur(i + 1 s + i) else s end end
`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// isSet reports whether the named flag was given on the command line.
func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
