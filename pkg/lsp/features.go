package lsp

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/simplang/simplang/pkg/ast"
	"github.com/simplang/simplang/pkg/parser"
	"github.com/simplang/simplang/pkg/vm"
)

func isBytecode(uri protocol.DocumentUri) bool {
	return !strings.HasSuffix(string(uri), ".sl")
}

// Diagnose checks a document and returns at most one diagnostic, placed on
// the first line that fails. Documents ending in .sl are parsed as source;
// everything else is loaded as bytecode text.
func Diagnose(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	var (
		line, col int // zero-based
		err       error
	)
	if isBytecode(uri) {
		_, err = vm.LoadString(text)
		var lerr *vm.LoadError
		if errors.As(err, &lerr) {
			line = lerr.Line - 1
			err = fmt.Errorf("%w: %q", lerr.Err, lerr.Text)
		}
	} else {
		line, col, err = checkSource(text)
	}
	if err == nil {
		return []protocol.Diagnostic{}
	}

	end := len(lineAt(text, line))
	if col > end {
		col = end
	}
	severity := protocol.DiagnosticSeverityError
	source := lspName
	return []protocol.Diagnostic{{
		Range: protocol.Range{
			Start: protocol.Position{Line: uint32(max(line, 0)), Character: uint32(col)},
			End:   protocol.Position{Line: uint32(max(line, 0)), Character: uint32(end)},
		},
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	}}
}

func checkSource(text string) (int, int, error) {
	fn, err := parser.Parse(text)
	if err != nil {
		var pos lexer.Position
		var perr participle.Error
		var lerr *lexer.Error
		switch {
		case errors.As(err, &perr):
			pos = perr.Position()
			err = errors.New(perr.Message())
		case errors.As(err, &lerr):
			pos = lerr.Pos
			err = errors.New(lerr.Msg)
		}
		return max(pos.Line-1, 0), max(pos.Column-1, 0), err
	}
	return 0, 0, ast.Check(fn)
}

func lineAt(text string, n int) string {
	lines := strings.Split(text, "\n")
	if n < 0 || n >= len(lines) {
		return ""
	}
	return strings.TrimSuffix(lines[n], "\r")
}

// Hover describes the opcode named word.
func Hover(word string) *protocol.Hover {
	op, ok := vm.Lookup(word)
	if !ok {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**", op)
	for _, f := range op.Fields() {
		fmt.Fprintf(&sb, " `%s`", f)
	}
	sb.WriteString("\n\n")
	sb.WriteString(op.Doc())
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: sb.String(),
		},
	}
}

// HoverAt describes the opcode under pos. Source files have no opcodes.
func HoverAt(uri protocol.DocumentUri, text string, pos protocol.Position) *protocol.Hover {
	if !isBytecode(uri) {
		return nil
	}
	return Hover(extractWord(text, pos))
}

// Complete offers the mnemonics starting with prefix.
func Complete(prefix string) []protocol.CompletionItem {
	items := []protocol.CompletionItem{}
	kind := protocol.CompletionItemKindKeyword
	for _, op := range vm.Opcodes() {
		name := op.String()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		detail := strings.Join(op.Fields(), " ")
		doc := op.Doc()
		items = append(items, protocol.CompletionItem{
			Label:         name,
			Kind:          &kind,
			Detail:        &detail,
			Documentation: doc,
		})
	}
	return items
}

func isWordChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// extractPrefix returns the word fragment before the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	line := lineAt(text, int(pos.Line))
	col := min(int(pos.Character), len(line))
	start := col
	for start > 0 && isWordChar(rune(line[start-1])) {
		start--
	}
	return line[start:col]
}

// extractWord returns the whole word under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line := lineAt(text, int(pos.Line))
	col := min(int(pos.Character), len(line))
	start, end := col, col
	for start > 0 && isWordChar(rune(line[start-1])) {
		start--
	}
	for end < len(line) && isWordChar(rune(line[end])) {
		end++
	}
	return line[start:end]
}
