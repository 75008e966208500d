package parser

import (
	"reflect"
	"testing"

	"github.com/simplang/simplang/pkg/ast"
)

func mustParse(t *testing.T, src string) *ast.Function {
	t.Helper()
	fn, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return fn
}

func TestPrecedence(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"1 * 2 + 3", "((1 * 2) + 3)"},
		{"1 + 2 + 3", "((1 + 2) + 3)"},
		{"a < b + 1", "(a < (b + 1))"},
		{"a == b < c", "(a == (b < c))"},
		{"a && b == c", "(a && (b == c))"},
		{"a || b && c", "(a || (b && c))"},
		{"a || b || c", "((a || b) || c)"},
		{"-a * b", "(-a * b)"},
		{"!a == b", "(!a == b)"},
		{"--a", "--a"},
		{"(1 + 2) * 3", "((1 + 2) * 3)"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := mustParse(t, tt.src).String(); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestForms(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"if x then 1 else 2 end", "if x then 1 else 2 end"},
		{"let x = 1 in x end", "let x = 1 in x end"},
		{"let x = 1 and y = x in (x + y) end", "let x = 1 and y = x in (x + y) end"},
		{"loop i = 0 and s = 0 in if i < n then recur(i + 1 s + i) else s end end",
			"loop i = 0 and s = 0 in if (i < n) then recur((i + 1) (s + i)) else s end end"},
		{"recur()", "recur()"},
		{"fun a b = a + b", "fun a b = (a + b)"},
		{"fun = 7", "7"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := mustParse(t, tt.src).String(); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTree(t *testing.T) {
	fn := mustParse(t, "fun n = let x = -n in x < 3 end")
	want := &ast.Function{
		Params: []string{"n"},
		Body: &ast.Let{
			Bindings: []ast.Binding{{Name: "x", Value: &ast.Unary{Op: ast.Negate, Operand: &ast.Ident{Name: "n"}}}},
			Body:     &ast.Binary{Op: ast.Less, Left: &ast.Ident{Name: "x"}, Right: &ast.Integer{Value: 3}},
		},
	}
	if !reflect.DeepEqual(fn, want) {
		t.Errorf("got %s, want %s", fn, want)
	}
}

// Printed trees parse back to the same tree.
func TestReparse(t *testing.T) {
	sources := []string{
		"fun n = loop i = 1 and acc = 1 in if n < i then acc else recur(i + 1 acc * i) end end",
		"fun a b = !(a < b) && -a == b || 0",
		"let x = if 1 then 2 else 3 end in x * x end",
	}
	for _, src := range sources {
		first := mustParse(t, src)
		second := mustParse(t, first.String())
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%q: reparse differs:\n%s\n%s", src, first, second)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		"",
		"1 +",
		"if 1 then 2 end",
		"let in 1 end",
		"let x = 1 in x",
		"(1 + 2",
		"1 2",
		"a & b",
		"fun 1 = 2",
		"99999999999999999999",
	} {
		if _, err := Parse(src); err == nil {
			t.Errorf("Parse(%q) should fail", src)
		}
	}
}
