package tools

import (
	"context"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"abbas/model"
)

const calculatorDescription = `A simple calculator. Supports math functions like "sqrt", "cos", etc. Use every time the user asks a math question.`

// Limits on calculator values. Literals above maxLiteral are rejected,
// integer results wider than maxIntBits count as overflow, and results
// longer than maxIntDigits cannot be printed.
var maxLiteral = new(big.Int).Lsh(big.NewInt(1), 128)

const (
	maxIntBits   = 1 << 20
	maxIntDigits = 4300
)

var (
	errZeroDivision = errors.New("division by zero")
	errOverflow     = errors.New("math range error")
	errDomain       = errors.New("math domain error")
)

func calculatorDefinition() Definition {
	return Definition{
		Name:        "calculator",
		Params:      []Param{{Name: "query", Kind: "str"}},
		Description: calculatorDescription,
		Mode:        Sync,
		Invoke: func(_ context.Context, args model.Arguments) (any, error) {
			query, _ := args.Get("query")
			return calculatorTool(query)
		},
	}
}

func calculatorTool(query any) (any, error) {
	if query == nil || query == "" {
		return "", nil
	}
	s, ok := query.(string)
	if !ok {
		return nil, errors.New("Query must be str")
	}
	return Calculate(s)
}

// Calculate evaluates an arithmetic expression. Division by zero and
// overflow anywhere in the expression yield inf.
func Calculate(query string) (string, error) {
	node, err := ParseExpr(query)
	if err != nil {
		return "", err
	}
	if err := validateArithmetic(node); err != nil {
		return "", err
	}

	value, err := evalArithmetic(node)
	if errors.Is(err, errZeroDivision) || errors.Is(err, errOverflow) {
		return "inf", nil
	}
	if err != nil {
		return "", err
	}
	return formatNumber(value)
}

var allowedOps = map[string]bool{
	"Add": true, "Sub": true, "Mult": true, "Div": true, "FloorDiv": true, "Mod": true, "Pow": true,
	"LShift": true, "RShift": true, "BitOr": true, "BitXor": true, "BitAnd": true,
	"UAdd": true, "USub": true, "Invert": true,
	"Eq": true, "NotEq": true, "Lt": true, "LtE": true, "Gt": true, "GtE": true,
}

func disallowed(kind string) error {
	return errors.Errorf("Disallowed operation: %s", kind)
}

func checkOp(op string) error {
	if !allowedOps[op] {
		return disallowed(op)
	}
	return nil
}

// validateArithmetic walks the tree depth first, in field order, rejecting
// anything that is not plain arithmetic over numbers and math names.
func validateArithmetic(node Node) error {
	switch n := node.(type) {
	case *Constant:
		switch v := n.Value.(type) {
		case bool:
			return nil
		case *big.Int:
			if v.Cmp(maxLiteral) > 0 {
				return errors.Errorf("Disallowed value: %s", v.String())
			}
			return nil
		case float64:
			if v > 0x1p128 {
				return errors.Errorf("Disallowed value: %s", FormatFloat(v))
			}
			return nil
		case nil:
			return errors.New("Disallowed value: None")
		default:
			return errors.Errorf("Disallowed value: %v", v)
		}
	case *Name:
		if _, ok := mathNames[n.ID]; !ok {
			return errors.Errorf("Disallowed function: %s", n.ID)
		}
		return nil
	case *BinOp:
		if err := validateArithmetic(n.Left); err != nil {
			return err
		}
		if err := checkOp(n.Op); err != nil {
			return err
		}
		return validateArithmetic(n.Right)
	case *UnaryOp:
		if err := checkOp(n.Op); err != nil {
			return err
		}
		return validateArithmetic(n.Operand)
	case *Compare:
		if err := validateArithmetic(n.Left); err != nil {
			return err
		}
		for _, op := range n.Ops {
			if err := checkOp(op); err != nil {
				return err
			}
		}
		for _, c := range n.Comparators {
			if err := validateArithmetic(c); err != nil {
				return err
			}
		}
		return nil
	case *Call:
		if _, ok := n.Func.(*Name); !ok {
			return errors.Errorf("Disallowed func type: %s", n.Func.Kind())
		}
		if err := validateArithmetic(n.Func); err != nil {
			return err
		}
		for _, arg := range n.Args {
			if err := validateArithmetic(arg); err != nil {
				return err
			}
		}
		if len(n.Keywords) > 0 {
			return disallowed(n.Keywords[0].Kind())
		}
		return nil
	}
	return disallowed(node.Kind())
}

// mathFunc is a callable exposed to calculator expressions.
type mathFunc struct {
	name string
	call func(args []any) (any, error)
}

func (f *mathFunc) String() string {
	return "<built-in function " + f.name + ">"
}

func evalArithmetic(node Node) (any, error) {
	switch n := node.(type) {
	case *Constant:
		if v, ok := n.Value.(*big.Int); ok {
			return new(big.Int).Set(v), nil
		}
		return n.Value, nil
	case *Name:
		return mathNames[n.ID], nil
	case *UnaryOp:
		v, err := evalArithmetic(n.Operand)
		if err != nil {
			return nil, err
		}
		return unaryOp(n.Op, v)
	case *BinOp:
		left, err := evalArithmetic(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := evalArithmetic(n.Right)
		if err != nil {
			return nil, err
		}
		return binaryOp(n.Op, left, right)
	case *Compare:
		left, err := evalArithmetic(n.Left)
		if err != nil {
			return nil, err
		}
		for i, op := range n.Ops {
			right, err := evalArithmetic(n.Comparators[i])
			if err != nil {
				return nil, err
			}
			ok, err := compare(op, left, right)
			if err != nil || !ok {
				return false, err
			}
			left = right
		}
		return true, nil
	case *Call:
		callee, err := evalArithmetic(n.Func)
		if err != nil {
			return nil, err
		}
		fn, ok := callee.(*mathFunc)
		if !ok {
			return nil, errors.Errorf("'%s' object is not callable", typeName(callee))
		}
		args := make([]any, len(n.Args))
		for i, arg := range n.Args {
			if args[i], err = evalArithmetic(arg); err != nil {
				return nil, err
			}
		}
		return fn.call(args)
	}
	return nil, disallowed(node.Kind())
}

func typeName(v any) string {
	switch v.(type) {
	case bool:
		return "bool"
	case *big.Int:
		return "int"
	case float64:
		return "float"
	case *mathFunc:
		return "builtin_function_or_method"
	}
	return "object"
}

func isInt(v any) bool {
	switch v.(type) {
	case bool, *big.Int:
		return true
	}
	return false
}

func toInt(v any) *big.Int {
	switch val := v.(type) {
	case bool:
		if val {
			return big.NewInt(1)
		}
		return big.NewInt(0)
	case *big.Int:
		return val
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case bool, *big.Int:
		f, _ := new(big.Float).SetInt(toInt(val)).Float64()
		if math.IsInf(f, 0) {
			return 0, errors.Wrap(errOverflow, "int too large to convert to float")
		}
		return f, nil
	}
	return 0, errors.Errorf("must be real number, not %s", typeName(v))
}

func isNumber(v any) bool {
	switch v.(type) {
	case bool, *big.Int, float64:
		return true
	}
	return false
}

var opSymbols = map[string]string{
	"Add": "+", "Sub": "-", "Mult": "*", "Div": "/", "FloorDiv": "//", "Mod": "%", "Pow": "** or pow()",
	"LShift": "<<", "RShift": ">>", "BitOr": "|", "BitXor": "^", "BitAnd": "&",
	"Eq": "==", "NotEq": "!=", "Lt": "<", "LtE": "<=", "Gt": ">", "GtE": ">=",
}

func unsupported(op string, a, b any) error {
	return errors.Errorf("unsupported operand type(s) for %s: '%s' and '%s'", opSymbols[op], typeName(a), typeName(b))
}

func unaryOp(op string, v any) (any, error) {
	if !isNumber(v) {
		return nil, errors.Errorf("bad operand type for unary %s: '%s'",
			map[string]string{"UAdd": "+", "USub": "-", "Invert": "~"}[op], typeName(v))
	}
	switch op {
	case "UAdd":
		if isInt(v) {
			return new(big.Int).Set(toInt(v)), nil
		}
		return v, nil
	case "USub":
		if isInt(v) {
			return new(big.Int).Neg(toInt(v)), nil
		}
		return -v.(float64), nil
	case "Invert":
		if !isInt(v) {
			return nil, errors.Errorf("bad operand type for unary ~: '%s'", typeName(v))
		}
		return new(big.Int).Not(toInt(v)), nil
	}
	return nil, disallowed(op)
}

func binaryOp(op string, a, b any) (any, error) {
	if !isNumber(a) || !isNumber(b) {
		return nil, unsupported(op, a, b)
	}
	if isInt(a) && isInt(b) {
		return intOp(op, a, b)
	}
	switch op {
	case "LShift", "RShift", "BitOr", "BitXor", "BitAnd":
		return nil, unsupported(op, a, b)
	}
	x, err := toFloat(a)
	if err != nil {
		return nil, err
	}
	y, err := toFloat(b)
	if err != nil {
		return nil, err
	}
	return floatOp(op, x, y)
}

func intOp(op string, a, b any) (any, error) {
	x, y := toInt(a), toInt(b)
	_, aBool := a.(bool)
	_, bBool := b.(bool)
	bothBool := aBool && bBool

	switch op {
	case "Add":
		return new(big.Int).Add(x, y), nil
	case "Sub":
		return new(big.Int).Sub(x, y), nil
	case "Mult":
		if x.BitLen()+y.BitLen() > maxIntBits {
			return nil, errOverflow
		}
		return new(big.Int).Mul(x, y), nil
	case "Div":
		if y.Sign() == 0 {
			return nil, errZeroDivision
		}
		f, _ := new(big.Rat).SetFrac(x, y).Float64()
		if math.IsInf(f, 0) {
			return nil, errors.Wrap(errOverflow, "integer division result too large for a float")
		}
		return f, nil
	case "FloorDiv", "Mod":
		if y.Sign() == 0 {
			return nil, errZeroDivision
		}
		q, r := new(big.Int).QuoRem(x, y, new(big.Int))
		if r.Sign() != 0 && r.Sign() != y.Sign() {
			q.Sub(q, big.NewInt(1))
			r.Add(r, y)
		}
		if op == "FloorDiv" {
			return q, nil
		}
		return r, nil
	case "Pow":
		if y.Sign() < 0 {
			if x.Sign() == 0 {
				return nil, errZeroDivision
			}
			fx, err := toFloat(x)
			if err != nil {
				return nil, err
			}
			fy, err := toFloat(y)
			if err != nil {
				return nil, err
			}
			return floatOp("Pow", fx, fy)
		}
		if x.CmpAbs(big.NewInt(1)) <= 0 {
			return new(big.Int).Exp(x, y, nil), nil
		}
		if !y.IsInt64() || y.Int64() > maxIntBits || int64(x.BitLen())*y.Int64() > maxIntBits {
			return nil, errOverflow
		}
		return new(big.Int).Exp(x, y, nil), nil
	case "LShift", "RShift":
		if y.Sign() < 0 {
			return nil, errors.New("negative shift count")
		}
		if op == "RShift" {
			if !y.IsInt64() || y.Int64() > int64(x.BitLen()) {
				if x.Sign() < 0 {
					return big.NewInt(-1), nil
				}
				return big.NewInt(0), nil
			}
			return new(big.Int).Rsh(x, uint(y.Int64())), nil
		}
		if x.Sign() == 0 {
			return big.NewInt(0), nil
		}
		if !y.IsInt64() || int64(x.BitLen())+y.Int64() > maxIntBits {
			return nil, errOverflow
		}
		return new(big.Int).Lsh(x, uint(y.Int64())), nil
	case "BitOr", "BitXor", "BitAnd":
		var z *big.Int
		switch op {
		case "BitOr":
			z = new(big.Int).Or(x, y)
		case "BitXor":
			z = new(big.Int).Xor(x, y)
		default:
			z = new(big.Int).And(x, y)
		}
		if bothBool {
			return z.Sign() != 0, nil
		}
		return z, nil
	}
	return nil, disallowed(op)
}

func floatOp(op string, x, y float64) (any, error) {
	switch op {
	case "Add":
		return x + y, nil
	case "Sub":
		return x - y, nil
	case "Mult":
		return x * y, nil
	case "Div":
		if y == 0 {
			return nil, errZeroDivision
		}
		return x / y, nil
	case "FloorDiv":
		if y == 0 {
			return nil, errZeroDivision
		}
		return math.Floor(x / y), nil
	case "Mod":
		if y == 0 {
			return nil, errZeroDivision
		}
		r := math.Mod(x, y)
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		if r == 0 {
			r = math.Copysign(0, y)
		}
		return r, nil
	case "Pow":
		if x == 0 && y < 0 {
			return nil, errZeroDivision
		}
		if x < 0 && y != math.Trunc(y) && !math.IsInf(y, 0) {
			return nil, errors.New("complex results are not supported")
		}
		r := math.Pow(x, y)
		if math.IsInf(r, 0) && !math.IsInf(x, 0) && !math.IsInf(y, 0) {
			return nil, errors.Wrap(errOverflow, "Numerical result out of range")
		}
		return r, nil
	}
	return nil, disallowed(op)
}

func compare(op string, a, b any) (bool, error) {
	if !isNumber(a) || !isNumber(b) {
		switch op {
		case "Eq":
			return a == b, nil
		case "NotEq":
			return a != b, nil
		}
		return false, errors.Errorf("'%s' not supported between instances of '%s' and '%s'", opSymbols[op], typeName(a), typeName(b))
	}

	var c int
	if isInt(a) && isInt(b) {
		c = toInt(a).Cmp(toInt(b))
	} else {
		fa, fb := asBigFloat(a), asBigFloat(b)
		if fa == nil || fb == nil {
			return op == "NotEq", nil
		}
		c = fa.Cmp(fb)
	}

	switch op {
	case "Eq":
		return c == 0, nil
	case "NotEq":
		return c != 0, nil
	case "Lt":
		return c < 0, nil
	case "LtE":
		return c <= 0, nil
	case "Gt":
		return c > 0, nil
	case "GtE":
		return c >= 0, nil
	}
	return false, disallowed(op)
}

// asBigFloat converts exactly; nil means NaN.
func asBigFloat(v any) *big.Float {
	if f, ok := v.(float64); ok {
		if math.IsNaN(f) {
			return nil
		}
		return big.NewFloat(f)
	}
	return new(big.Float).SetInt(toInt(v))
}

// FormatFloat renders f the way Python's repr does: shortest round-trip
// digits, positional between 1e-4 and 1e16, and always with a fraction or
// exponent.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}

	exp := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, expPart, _ := strings.Cut(exp, "e")
	e, _ := strconv.Atoi(expPart)
	if e < -4 || e >= 16 {
		return mantissa + "e" + expPart[:1] + leftPad(strings.TrimLeft(expPart[1:], "0"), 2)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func leftPad(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func formatNumber(v any) (string, error) {
	switch val := v.(type) {
	case *big.Int:
		s := val.String()
		digits := len(strings.TrimPrefix(s, "-"))
		if digits > maxIntDigits {
			return "", errors.Errorf("Exceeds the limit (%d digits) for integer string conversion: value has %d digits", maxIntDigits, digits)
		}
		return s, nil
	case float64:
		return FormatFloat(val), nil
	default:
		return Stringify(val), nil
	}
}
