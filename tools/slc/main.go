// slc compiles simplang source files to bytecode.
// Output: name.vm (bytecode text) or, with -image, name.svmi (binary image).
//
// Usage: go run ./tools/slc -o build examples/fact.sl
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/simplang/simplang/pkg/compiler"
	"github.com/simplang/simplang/pkg/parser"
	"github.com/simplang/simplang/pkg/vm"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	outDir := flag.String("o", ".", "Output directory")
	image := flag.Bool("image", false, "Write binary images instead of bytecode text")
	disasm := flag.Bool("disasm", false, "Print disassembly")
	verbosity := flag.Int("v", 0, "Log verbosity")
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: slc [-o outdir] [-image] [-disasm] <file.sl>...")
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, path := range flag.Args() {
		if err := compileFile(path, *outDir, *image, *disasm); err != nil {
			fmt.Fprintf(os.Stderr, "Error compiling %s: %v\n", path, err)
			os.Exit(1)
		}
	}
}

func compileFile(path, outDir string, image, showDisasm bool) error {
	fn, err := parser.ParseFile(path)
	if err != nil {
		return err
	}
	code, err := compiler.Compile(fn)
	if err != nil {
		return err
	}

	baseName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if showDisasm {
		fmt.Printf("=== %s: %d instructions ===\n", baseName, len(code))
		fmt.Print(vm.Disassemble(code))
	}

	var data []byte
	ext := ".vm"
	if image {
		ext = ".svmi"
		if data, err = vm.MarshalImage(code); err != nil {
			return err
		}
	} else {
		var buf bytes.Buffer
		if err := vm.Format(&buf, code); err != nil {
			return err
		}
		data = buf.Bytes()
	}

	outPath := filepath.Join(outDir, baseName+ext)
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	fmt.Printf("%s: %d instructions -> %s\n", baseName, len(code), outPath)
	return nil
}
