package tools

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExprCall(t *testing.T) {
	node, err := ParseExpr(`load_url("example.com", question='what is it?')`)
	require.NoError(t, err)

	call, ok := node.(*Call)
	require.True(t, ok, "expected *Call, got %T", node)
	assert.Equal(t, &Name{ID: "load_url"}, call.Func)
	require.Len(t, call.Args, 1)
	assert.Equal(t, &Constant{Value: "example.com"}, call.Args[0])
	require.Len(t, call.Keywords, 1)
	assert.Equal(t, "question", call.Keywords[0].Arg)
	assert.Equal(t, &Constant{Value: "what is it?"}, call.Keywords[0].Value)
}

func TestParseExprKinds(t *testing.T) {
	tests := []struct {
		src  string
		kind string
	}{
		{"42", "Constant"},
		{"'text'", "Constant"},
		{"None", "Constant"},
		{"x", "Name"},
		{"1 + 2", "BinOp"},
		{"-1", "UnaryOp"},
		{"a and b", "BoolOp"},
		{"1 < 2 < 3", "Compare"},
		{"math.pi", "Attribute"},
		{"a[0]", "Subscript"},
		{"[1, 2]", "List"},
		{"1, 2", "Tuple"},
		{"(1, 2)", "Tuple"},
		{"f()()", "Call"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			node, err := ParseExpr(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, node.Kind())
		})
	}
}

func TestParseExprLiterals(t *testing.T) {
	tests := []struct {
		src  string
		want any
	}{
		{"0x1f", big.NewInt(31)},
		{"0o17", big.NewInt(15)},
		{"0b101", big.NewInt(5)},
		{"1_000", big.NewInt(1000)},
		{"2.5", 2.5},
		{"1e3", 1000.0},
		{".5", 0.5},
		{"True", true},
		{"False", false},
		{`"a\nb"`, "a\nb"},
		{`r"a\nb"`, `a\nb`},
		{`'''x'''`, "x"},
		{`"a" "b"`, "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			node, err := ParseExpr(tt.src)
			require.NoError(t, err)
			c, ok := node.(*Constant)
			require.True(t, ok, "expected *Constant, got %T", node)
			assert.Equal(t, tt.want, c.Value)
		})
	}
}

func TestParseExprPrecedence(t *testing.T) {
	node, err := ParseExpr("1 + 2 * 3")
	require.NoError(t, err)
	bin := node.(*BinOp)
	assert.Equal(t, "Add", bin.Op)
	assert.Equal(t, "Mult", bin.Right.(*BinOp).Op)

	// power binds tighter than unary minus
	node, err = ParseExpr("-2 ** 2")
	require.NoError(t, err)
	unary := node.(*UnaryOp)
	assert.Equal(t, "USub", unary.Op)
	assert.Equal(t, "Pow", unary.Operand.(*BinOp).Op)

	// power is right associative
	node, err = ParseExpr("2 ** 3 ** 2")
	require.NoError(t, err)
	bin = node.(*BinOp)
	assert.IsType(t, &Constant{}, bin.Left)
	assert.Equal(t, "Pow", bin.Right.(*BinOp).Op)
}

func TestParseExprNestedList(t *testing.T) {
	node, err := ParseExpr("[(1, 2)]")
	require.NoError(t, err)
	list := node.(*List)
	require.Len(t, list.Elts, 1)
	assert.Equal(t, "Tuple", list.Elts[0].Kind())
}

func TestParseExprErrors(t *testing.T) {
	tests := []struct {
		src string
		msg string
	}{
		{"f(", "'(' was never closed (<unknown>, line 1)"},
		{"1)", "unmatched ')' (<unknown>, line 1)"},
		{"f(a=1, 2)", "positional argument follows keyword argument (<unknown>, line 1)"},
		{"01", "leading zeros in decimal integer literals are not permitted; use an 0o prefix for octal integers (<unknown>, line 1)"},
		{"1 +", "invalid syntax (<unknown>, line 1)"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := ParseExpr(tt.src)
			require.Error(t, err)
			var syntaxErr *SyntaxError
			require.ErrorAs(t, err, &syntaxErr)
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestParseExprIgnoresSurroundingWhitespace(t *testing.T) {
	node, err := ParseExpr("  calculator(query=\"2+2\")\n")
	require.NoError(t, err)
	assert.Equal(t, "Call", node.Kind())
}
