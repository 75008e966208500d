// Package parser provides simplang parsing using Participle v2.
// Grammar is defined as Go structs with tags; operator precedence is
// encoded by nesting one struct per precedence level.
package parser

import (
	"fmt"
	"os"

	"github.com/alecthomas/participle/v2"

	"github.com/simplang/simplang/pkg/ast"
	"github.com/simplang/simplang/pkg/scanner"
)

// Program: [fun ident* =] expr
type Program struct {
	Params []string `( "fun" @Ident* "=" )?`
	Body   *Expr    `@@`
}

// Precedence levels, lowest first. Each level is left-associative.

type Expr struct {
	Left  *AndExpr   `@@`
	Right []*AndExpr `( "||" @@ )*`
}

type AndExpr struct {
	Left  *EqExpr   `@@`
	Right []*EqExpr `( "&&" @@ )*`
}

type EqExpr struct {
	Left  *LessExpr   `@@`
	Right []*LessExpr `( "==" @@ )*`
}

type LessExpr struct {
	Left  *AddExpr   `@@`
	Right []*AddExpr `( "<" @@ )*`
}

type AddExpr struct {
	Left  *MulExpr   `@@`
	Right []*MulExpr `( "+" @@ )*`
}

type MulExpr struct {
	Left  *Unary   `@@`
	Right []*Unary `( "*" @@ )*`
}

// Unary: ("!" | "-") unary | primary
type Unary struct {
	Op      string   `  ( @( "!" | "-" )`
	Operand *Unary   `    @@ )`
	Primary *Primary `| @@`
}

type Primary struct {
	Int   *int64  `  @Integer`
	If    *If     `| @@`
	Let   *Let    `| @@`
	Loop  *Loop   `| @@`
	Recur *Recur  `| @@`
	Ident *string `| @Ident`
	Paren *Expr   `| "(" @@ ")"`
}

// If: if expr then expr else expr end
type If struct {
	Cond *Expr `"if" @@`
	Then *Expr `"then" @@`
	Else *Expr `"else" @@ "end"`
}

// Binding: ident = expr
type Binding struct {
	Name  string `@Ident "="`
	Value *Expr  `@@`
}

// Let: let binding (and binding)* in expr end
type Let struct {
	Bindings []*Binding `"let" @@ ( "and" @@ )*`
	Body     *Expr      `"in" @@ "end"`
}

// Loop: loop binding (and binding)* in expr end
type Loop struct {
	Bindings []*Binding `"loop" @@ ( "and" @@ )*`
	Body     *Expr      `"in" @@ "end"`
}

// Recur: recur ( expr* )
type Recur struct {
	Args []*Expr `"recur" "(" @@* ")"`
}

// Parser is the simplang parser
var Parser = participle.MustBuild[Program](
	participle.Lexer(scanner.Definition),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Parse parses simplang source code into a function tree
func Parse(source string) (*ast.Function, error) {
	return ParseNamed("", source)
}

// ParseNamed parses source, using name in error positions
func ParseNamed(name, source string) (*ast.Function, error) {
	prog, err := Parser.ParseString(name, source)
	if err != nil {
		return nil, err
	}
	return prog.ToAST(), nil
}

// ParseFile parses a simplang source file
func ParseFile(filename string) (*ast.Function, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return ParseNamed(filename, string(data))
}

// ToAST converts the parse tree to an ast.Function
func (p *Program) ToAST() *ast.Function {
	return &ast.Function{Params: p.Params, Body: p.Body.ToAST()}
}

// ToAST folds a precedence level into left-associative binary nodes
func (e *Expr) ToAST() ast.Expr {
	left := e.Left.ToAST()
	for _, r := range e.Right {
		left = &ast.Binary{Op: ast.Or, Left: left, Right: r.ToAST()}
	}
	return left
}

func (e *AndExpr) ToAST() ast.Expr {
	left := e.Left.ToAST()
	for _, r := range e.Right {
		left = &ast.Binary{Op: ast.And, Left: left, Right: r.ToAST()}
	}
	return left
}

func (e *EqExpr) ToAST() ast.Expr {
	left := e.Left.ToAST()
	for _, r := range e.Right {
		left = &ast.Binary{Op: ast.Equals, Left: left, Right: r.ToAST()}
	}
	return left
}

func (e *LessExpr) ToAST() ast.Expr {
	left := e.Left.ToAST()
	for _, r := range e.Right {
		left = &ast.Binary{Op: ast.Less, Left: left, Right: r.ToAST()}
	}
	return left
}

func (e *AddExpr) ToAST() ast.Expr {
	left := e.Left.ToAST()
	for _, r := range e.Right {
		left = &ast.Binary{Op: ast.Plus, Left: left, Right: r.ToAST()}
	}
	return left
}

func (e *MulExpr) ToAST() ast.Expr {
	left := e.Left.ToAST()
	for _, r := range e.Right {
		left = &ast.Binary{Op: ast.Times, Left: left, Right: r.ToAST()}
	}
	return left
}

func (u *Unary) ToAST() ast.Expr {
	if u.Primary != nil {
		return u.Primary.ToAST()
	}
	op := ast.Not
	if u.Op == "-" {
		op = ast.Negate
	}
	return &ast.Unary{Op: op, Operand: u.Operand.ToAST()}
}

func (p *Primary) ToAST() ast.Expr {
	switch {
	case p.Int != nil:
		return &ast.Integer{Value: *p.Int}
	case p.If != nil:
		return &ast.If{Cond: p.If.Cond.ToAST(), Then: p.If.Then.ToAST(), Else: p.If.Else.ToAST()}
	case p.Let != nil:
		return &ast.Let{Bindings: toBindings(p.Let.Bindings), Body: p.Let.Body.ToAST()}
	case p.Loop != nil:
		return &ast.Loop{Bindings: toBindings(p.Loop.Bindings), Body: p.Loop.Body.ToAST()}
	case p.Recur != nil:
		args := make([]ast.Expr, len(p.Recur.Args))
		for i, a := range p.Recur.Args {
			args[i] = a.ToAST()
		}
		return &ast.Recur{Args: args}
	case p.Ident != nil:
		return &ast.Ident{Name: *p.Ident}
	case p.Paren != nil:
		return p.Paren.ToAST()
	}
	return nil
}

func toBindings(bs []*Binding) []ast.Binding {
	out := make([]ast.Binding, len(bs))
	for i, b := range bs {
		out[i] = ast.Binding{Name: b.Name, Value: b.Value.ToAST()}
	}
	return out
}
