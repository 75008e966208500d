// simlsp is a language server for simplang bytecode and source files.
// It speaks LSP over stdio.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/simplang/simplang/pkg/lsp"

	_ "github.com/tliron/commonlog/simple"
)

const version = "0.1.0"

func main() {
	verbosity := flag.Int("v", 1, "Log verbosity")
	logFile := flag.String("log", "", "Log file (default: stderr)")
	flag.Parse()

	var path *string
	if *logFile != "" {
		path = logFile
	}
	commonlog.Configure(*verbosity, path)

	if err := lsp.New(version).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
