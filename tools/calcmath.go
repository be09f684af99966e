package tools

import (
	"math"
	"math/big"

	"github.com/pkg/errors"
)

// mathNames are the names a calculator expression may reference.
var mathNames = map[string]any{
	"pi":  math.Pi,
	"e":   math.E,
	"tau": 2 * math.Pi,
	"inf": math.Inf(1),
	"nan": math.NaN(),

	"sqrt": floatFunc("sqrt", func(x float64) (float64, error) {
		if x < 0 {
			return 0, errDomain
		}
		return math.Sqrt(x), nil
	}),
	"cbrt":  floatFunc("cbrt", plain(math.Cbrt)),
	"exp":   floatFunc("exp", ranged(math.Exp)),
	"exp2":  floatFunc("exp2", ranged(math.Exp2)),
	"expm1": floatFunc("expm1", ranged(math.Expm1)),
	"log": &mathFunc{name: "log", call: func(args []any) (any, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, errors.Errorf("log expected 1 or 2 arguments, got %d", len(args))
		}
		x, err := logOf(args[0])
		if err != nil {
			return nil, err
		}
		if len(args) == 1 {
			return x, nil
		}
		base, err := logOf(args[1])
		if err != nil {
			return nil, err
		}
		if base == 0 {
			return nil, errZeroDivision
		}
		return x / base, nil
	}},
	"log10": floatFunc("log10", positive(math.Log10)),
	"log2":  floatFunc("log2", positive(math.Log2)),
	"log1p": floatFunc("log1p", func(x float64) (float64, error) {
		if x <= -1 {
			return 0, errDomain
		}
		return math.Log1p(x), nil
	}),
	"sin":   floatFunc("sin", finite(math.Sin)),
	"cos":   floatFunc("cos", finite(math.Cos)),
	"tan":   floatFunc("tan", finite(math.Tan)),
	"asin":  floatFunc("asin", unit(math.Asin)),
	"acos":  floatFunc("acos", unit(math.Acos)),
	"atan":  floatFunc("atan", plain(math.Atan)),
	"sinh":  floatFunc("sinh", ranged(math.Sinh)),
	"cosh":  floatFunc("cosh", ranged(math.Cosh)),
	"tanh":  floatFunc("tanh", plain(math.Tanh)),
	"asinh": floatFunc("asinh", plain(math.Asinh)),
	"acosh": floatFunc("acosh", func(x float64) (float64, error) {
		if x < 1 {
			return 0, errDomain
		}
		return math.Acosh(x), nil
	}),
	"atanh": floatFunc("atanh", func(x float64) (float64, error) {
		if x <= -1 || x >= 1 {
			return 0, errDomain
		}
		return math.Atanh(x), nil
	}),
	"fabs":    floatFunc("fabs", plain(math.Abs)),
	"degrees": floatFunc("degrees", plain(func(x float64) float64 { return x * 180 / math.Pi })),
	"radians": floatFunc("radians", plain(func(x float64) float64 { return x * math.Pi / 180 })),
	"erf":     floatFunc("erf", plain(math.Erf)),
	"erfc":    floatFunc("erfc", plain(math.Erfc)),
	"gamma": floatFunc("gamma", func(x float64) (float64, error) {
		if x <= 0 && x == math.Trunc(x) || math.IsInf(x, -1) {
			return 0, errDomain
		}
		return ranged(math.Gamma)(x)
	}),
	"lgamma": floatFunc("lgamma", func(x float64) (float64, error) {
		if x <= 0 && x == math.Trunc(x) {
			return 0, errDomain
		}
		v, _ := math.Lgamma(x)
		return v, nil
	}),

	"atan2":     floatFunc2("atan2", func(y, x float64) (float64, error) { return math.Atan2(y, x), nil }),
	"pow":       floatFunc2("pow", mathPow),
	"copysign":  floatFunc2("copysign", func(x, y float64) (float64, error) { return math.Copysign(x, y), nil }),
	"remainder": floatFunc2("remainder", nonzero(math.Remainder)),
	"fmod":      floatFunc2("fmod", nonzero(math.Mod)),
	"hypot": &mathFunc{name: "hypot", call: func(args []any) (any, error) {
		total := 0.0
		for _, arg := range args {
			x, err := toFloat(arg)
			if err != nil {
				return nil, err
			}
			total = math.Hypot(total, x)
		}
		return total, nil
	}},

	"isfinite": predicate("isfinite", func(x float64) bool { return !math.IsInf(x, 0) && !math.IsNaN(x) }),
	"isinf":    predicate("isinf", func(x float64) bool { return math.IsInf(x, 0) }),
	"isnan":    predicate("isnan", math.IsNaN),

	"floor": roundFunc("floor", math.Floor),
	"ceil":  roundFunc("ceil", math.Ceil),
	"trunc": roundFunc("trunc", math.Trunc),

	"abs": &mathFunc{name: "abs", call: func(args []any) (any, error) {
		if err := arity("abs", args, 1); err != nil {
			return nil, err
		}
		if f, ok := args[0].(float64); ok {
			return math.Abs(f), nil
		}
		if !isInt(args[0]) {
			return nil, errors.Errorf("bad operand type for abs(): '%s'", typeName(args[0]))
		}
		return new(big.Int).Abs(toInt(args[0])), nil
	}},
	"isqrt": intFunc("isqrt", 1, func(n []*big.Int) (any, error) {
		if n[0].Sign() < 0 {
			return nil, errors.New("isqrt() argument must be nonnegative")
		}
		return new(big.Int).Sqrt(n[0]), nil
	}),
	"factorial": intFunc("factorial", 1, func(n []*big.Int) (any, error) {
		if n[0].Sign() < 0 {
			return nil, errors.New("factorial() not defined for negative values")
		}
		if !n[0].IsInt64() || n[0].Int64() > 20000 {
			return nil, errOverflow
		}
		return new(big.Int).MulRange(1, n[0].Int64()), nil
	}),
	"comb": intFunc("comb", 2, func(n []*big.Int) (any, error) {
		if n[0].Sign() < 0 || n[1].Sign() < 0 {
			return nil, errors.New("n and k must be non-negative integers")
		}
		if !n[0].IsInt64() || !n[1].IsInt64() || n[0].Int64() > 20000 {
			return nil, errOverflow
		}
		if n[1].Cmp(n[0]) > 0 {
			return big.NewInt(0), nil
		}
		return new(big.Int).Binomial(n[0].Int64(), n[1].Int64()), nil
	}),
	"perm": intFunc("perm", 2, func(n []*big.Int) (any, error) {
		if n[0].Sign() < 0 || n[1].Sign() < 0 {
			return nil, errors.New("n and k must be non-negative integers")
		}
		if !n[0].IsInt64() || !n[1].IsInt64() || n[0].Int64() > 20000 {
			return nil, errOverflow
		}
		if n[1].Cmp(n[0]) > 0 {
			return big.NewInt(0), nil
		}
		return new(big.Int).MulRange(n[0].Int64()-n[1].Int64()+1, n[0].Int64()), nil
	}),
	"gcd": intFunc("gcd", -1, func(n []*big.Int) (any, error) {
		z := big.NewInt(0)
		for _, v := range n {
			z.GCD(nil, nil, new(big.Int).Abs(z), new(big.Int).Abs(v))
		}
		return z, nil
	}),
	"lcm": intFunc("lcm", -1, func(n []*big.Int) (any, error) {
		z := big.NewInt(1)
		for _, v := range n {
			if v.Sign() == 0 {
				return big.NewInt(0), nil
			}
			g := new(big.Int).GCD(nil, nil, z, new(big.Int).Abs(v))
			z.Mul(z, new(big.Int).Quo(new(big.Int).Abs(v), g))
		}
		return z, nil
	}),
}

func arity(name string, args []any, n int) error {
	if len(args) == n {
		return nil
	}
	if n == 1 {
		return errors.Errorf("%s() takes exactly one argument (%d given)", name, len(args))
	}
	return errors.Errorf("%s expected %d arguments, got %d", name, n, len(args))
}

func floatFunc(name string, fn func(float64) (float64, error)) *mathFunc {
	return &mathFunc{name: name, call: func(args []any) (any, error) {
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		x, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		return fn(x)
	}}
}

func floatFunc2(name string, fn func(float64, float64) (float64, error)) *mathFunc {
	return &mathFunc{name: name, call: func(args []any) (any, error) {
		if err := arity(name, args, 2); err != nil {
			return nil, err
		}
		x, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		y, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		return fn(x, y)
	}}
}

// intFunc wraps an integer function; n < 0 accepts any number of arguments.
func intFunc(name string, n int, fn func([]*big.Int) (any, error)) *mathFunc {
	return &mathFunc{name: name, call: func(args []any) (any, error) {
		if n >= 0 {
			if err := arity(name, args, n); err != nil {
				return nil, err
			}
		}
		ints := make([]*big.Int, len(args))
		for i, arg := range args {
			if !isInt(arg) {
				return nil, errors.Errorf("'%s' object cannot be interpreted as an integer", typeName(arg))
			}
			ints[i] = toInt(arg)
		}
		return fn(ints)
	}}
}

func predicate(name string, fn func(float64) bool) *mathFunc {
	return &mathFunc{name: name, call: func(args []any) (any, error) {
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		x, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		return fn(x), nil
	}}
}

// roundFunc rounds floats to integers and passes integers through.
func roundFunc(name string, fn func(float64) float64) *mathFunc {
	return &mathFunc{name: name, call: func(args []any) (any, error) {
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		if isInt(args[0]) {
			return new(big.Int).Set(toInt(args[0])), nil
		}
		x, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		if math.IsNaN(x) {
			return nil, errors.New("cannot convert float NaN to integer")
		}
		if math.IsInf(x, 0) {
			return nil, errors.Wrap(errOverflow, "cannot convert float infinity to integer")
		}
		z, _ := big.NewFloat(fn(x)).Int(nil)
		return z, nil
	}}
}

func plain(fn func(float64) float64) func(float64) (float64, error) {
	return func(x float64) (float64, error) {
		return fn(x), nil
	}
}

// ranged reports overflow when a finite input produces an infinite result.
func ranged(fn func(float64) float64) func(float64) (float64, error) {
	return func(x float64) (float64, error) {
		r := fn(x)
		if math.IsInf(r, 0) && !math.IsInf(x, 0) {
			return 0, errOverflow
		}
		return r, nil
	}
}

func positive(fn func(float64) float64) func(float64) (float64, error) {
	return func(x float64) (float64, error) {
		if x <= 0 {
			return 0, errDomain
		}
		return fn(x), nil
	}
}

func finite(fn func(float64) float64) func(float64) (float64, error) {
	return func(x float64) (float64, error) {
		if math.IsInf(x, 0) {
			return 0, errDomain
		}
		return fn(x), nil
	}
}

func unit(fn func(float64) float64) func(float64) (float64, error) {
	return func(x float64) (float64, error) {
		if x < -1 || x > 1 {
			return 0, errDomain
		}
		return fn(x), nil
	}
}

func nonzero(fn func(float64, float64) float64) func(float64, float64) (float64, error) {
	return func(x, y float64) (float64, error) {
		if y == 0 || math.IsInf(x, 0) {
			return 0, errDomain
		}
		return fn(x, y), nil
	}
}

func mathPow(x, y float64) (float64, error) {
	if x == 0 && y < 0 {
		return 0, errDomain
	}
	if x < 0 && y != math.Trunc(y) && !math.IsInf(y, 0) {
		return 0, errDomain
	}
	r := math.Pow(x, y)
	if math.IsInf(r, 0) && !math.IsInf(x, 0) && !math.IsInf(y, 0) {
		return 0, errOverflow
	}
	return r, nil
}

// logOf accepts integers too large for a float, like Python's math.log.
func logOf(v any) (float64, error) {
	if isInt(v) {
		n := toInt(v)
		if n.Sign() <= 0 {
			return 0, errDomain
		}
		if n.BitLen() > 1000 {
			shift := n.BitLen() - 64
			top, _ := new(big.Float).SetInt(new(big.Int).Rsh(n, uint(shift))).Float64()
			return math.Log(top) + float64(shift)*math.Ln2, nil
		}
	}
	x, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if x <= 0 {
		return 0, errDomain
	}
	return math.Log(x), nil
}
