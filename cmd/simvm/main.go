// simvm loads and runs simplang bytecode.
//
// FILE is either bytecode text or a binary image written with -o. Integer
// ARGS are pushed as the program's arguments and the result is printed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/simplang/simplang/pkg/config"
	"github.com/simplang/simplang/pkg/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("simvm")

func main() {
	configPath := flag.String("config", "", "Config file (default: nearest "+config.FileName+")")
	stack := flag.Int("stack", 0, "Value stack slots (0 = from config)")
	calls := flag.Int("calls", 0, "Call stack depth (0 = from config)")
	gas := flag.Int64("gas", -1, "Instruction budget (0 = unlimited, -1 = from config)")
	debug := flag.Bool("debug", false, "Trace every instruction")
	disasm := flag.Bool("disasm", false, "Disassemble instead of run")
	output := flag.String("o", "", "Write a binary image to this file instead of running")
	selftest := flag.Bool("selftest", false, "Exercise the value stack and exit")
	verbosity := flag.Int("v", 0, "Log verbosity (default: from config)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] FILE [ARGS...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if *stack > 0 {
		cfg.VM.StackSize = *stack
	}
	if *calls > 0 {
		cfg.VM.CallStackSize = *calls
	}
	if *gas >= 0 {
		cfg.VM.Gas = *gas
	}
	if isSet(flag.CommandLine, "v") {
		cfg.Log.Verbosity = *verbosity
	}
	if *debug && cfg.Log.Verbosity < 2 {
		cfg.Log.Verbosity = 2
	}
	commonlog.Configure(cfg.Log.Verbosity, cfg.LogFile())

	if *selftest {
		m := vm.NewMachine(cfg.VM.StackSize, cfg.VM.CallStackSize)
		if err := m.Churn(1024, 32); err != nil {
			fatal(err)
		}
		fmt.Println("ok")
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	prog, err := loadProgram(args[0])
	if err != nil {
		fatal(err)
	}

	if *disasm {
		fmt.Print(vm.Disassemble(prog))
		return
	}

	if *output != "" {
		data, err := vm.MarshalImage(prog)
		if err != nil {
			fatal(err)
		}
		if err := os.WriteFile(*output, data, 0644); err != nil {
			fatal(err)
		}
		log.Infof("wrote %d instructions to %s", len(prog), *output)
		return
	}

	values, err := parseArgs(args[1:])
	if err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := vm.Exec(ctx, prog, values, vm.Options{
		StackSize:     cfg.VM.StackSize,
		CallStackSize: cfg.VM.CallStackSize,
		Gas:           cfg.VM.Gas,
		Debug:         *debug,
	})
	if err != nil {
		fatal(fmt.Errorf("runtime error: %w", err))
	}
	fmt.Println(result)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FindAndLoad(".")
}

// loadProgram reads bytecode text or a binary image.
func loadProgram(path string) ([]vm.Instruction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if vm.IsImage(data) {
		prog, err := vm.UnmarshalImage(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return prog, nil
	}
	prog, err := vm.LoadString(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

func parseArgs(args []string) ([]int64, error) {
	values := make([]int64, len(args))
	for i, a := range args {
		v, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		values[i] = v
	}
	return values, nil
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
