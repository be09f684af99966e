package tools

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abbas/model"
)

type countingScheduler struct {
	mu      sync.Mutex
	calls   int
	running bool
}

func (s *countingScheduler) Go(fn func()) bool {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	go fn()
	return true
}

func (s *countingScheduler) Running() bool {
	return s.running
}

type recordingObserver struct {
	mu     sync.Mutex
	names  []string
	failed []bool
}

func (o *recordingObserver) ObserveToolCall(name string, failed bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
	o.failed = append(o.failed, failed)
}

func newTestExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()

	r := NewRegistry()
	require.NoError(t, r.Register(calculatorDefinition()))
	require.NoError(t, r.Register(Definition{
		Name:   "echo",
		Params: []Param{{Name: "text", Kind: "str"}, {Name: "suffix", Kind: "Optional[str]", Optional: true}},
		Mode:   Async,
		Invoke: func(_ context.Context, args model.Arguments) (any, error) {
			text, _ := args.Get("text")
			suffix, _ := args.Get("suffix")
			if suffix == nil {
				suffix = ""
			}
			return text.(string) + suffix.(string), nil
		},
	}))
	require.NoError(t, r.Register(Definition{
		Name: "explode",
		Invoke: func(context.Context, model.Arguments) (any, error) {
			panic("kaboom")
		},
	}))
	require.NoError(t, r.Register(Definition{
		Name: "fail",
		Invoke: func(context.Context, model.Arguments) (any, error) {
			return nil, errors.New("first line\nsecond line")
		},
	}))

	pool := NewWorkerPool(2, 4)
	t.Cleanup(pool.Close)

	ids := 0
	opts = append([]Option{WithIDs(func() string {
		ids++
		return "call-" + string(rune('0'+ids))
	})}, opts...)
	return NewExecutor(r, pool, opts...)
}

func TestParseAndRun(t *testing.T) {
	e := newTestExecutor(t)

	tc := e.ParseAndRun(context.Background(), `Let me check. <|start_tool|>calculator(query="2+2")<|end_tool|>`, nil)
	require.NotNil(t, tc)
	assert.Equal(t, "call-1", tc.ID)
	assert.Equal(t, "calculator", tc.Name)
	assert.Equal(t, `calculator(query="2+2")`, tc.Expression)
	assert.Equal(t, model.Arguments{{Name: "query", Value: "2+2"}}, tc.Arguments)
	assert.Equal(t, "4", tc.Result)
	assert.Equal(t, tc.Expression, tc.CallExpression())
}

func TestParseAndRunWithoutEndMarker(t *testing.T) {
	e := newTestExecutor(t)

	tc := e.ParseAndRun(context.Background(), `<|start_tool|>calculator("3*3")`, nil)
	require.NotNil(t, tc)
	assert.Equal(t, "9", tc.Result)
	assert.Equal(t, model.Arguments{{Name: "query", Value: "3*3"}}, tc.Arguments)
}

func TestParseAndRunNoCall(t *testing.T) {
	e := newTestExecutor(t)

	assert.Nil(t, e.ParseAndRun(context.Background(), "just text", nil))
	assert.Nil(t, e.ParseAndRun(context.Background(), "empty <|start_tool|><|end_tool|>", nil))
}

func TestParseAndRunErrors(t *testing.T) {
	tests := []struct {
		body   string
		name   string
		result string
	}{
		{"calculator", "calculator", "Error: Invalid body: Name"},
		{"1 + 1", "1 + 1", "Error: Invalid body: BinOp"},
		{"tools.calculator()", "tools.calculator()", "Error: Invalid body.func: Attribute"},
		{"missing()", "missing", "Error: Unknown tool: missing"},
		{"calculator(x)", "calculator", "Error: Invalid body.args: Name"},
		{`calculator(query=calculator(query="1"))`, "calculator", "Error: Invalid body.keywords: Call"},
		{`calculator(calculator("1"))`, "calculator", "Error: Invalid body.args: Call"},
		{"calculator(", "calculator(", "Error: '(' was never closed (<unknown>, line 1)"},
		{`calculator("1", "2")`, "calculator", "Error: calculator() takes 1 positional argument but 2 were given"},
		{"calculator()", "calculator", "Error: calculator() missing 1 required positional argument: 'query'"},
		{`calculator(q="1")`, "calculator", "Error: calculator() got an unexpected keyword argument 'q'"},
		{`calculator(query="sqrt(-1)")`, "calculator", "Error: math domain error"},
		{"explode()", "explode", "Error: tool panicked: kaboom"},
		{"fail()", "fail", "Error: second line"},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			e := newTestExecutor(t)
			tc := e.ParseAndRun(context.Background(), StartMarker+tt.body+EndMarker, nil)
			require.NotNil(t, tc)
			assert.Equal(t, tt.name, tc.Name)
			assert.Equal(t, tt.body, tc.Expression)
			assert.Equal(t, tt.result, tc.Result)
		})
	}
}

func TestFormattedCallParsesBack(t *testing.T) {
	r := NewRegistry()
	var got model.Arguments
	require.NoError(t, r.Register(Definition{
		Name: "record",
		Params: []Param{
			{Name: "a", Kind: "int"},
			{Name: "b", Kind: "str"},
			{Name: "c", Kind: "Optional[float]", Optional: true},
			{Name: "d", Kind: "Optional[bool]", Optional: true},
		},
		Invoke: func(_ context.Context, args model.Arguments) (any, error) {
			got = args
			return "ok", nil
		},
	}))
	pool := NewWorkerPool(1, 1)
	t.Cleanup(pool.Close)
	e := NewExecutor(r, pool)

	tests := []struct {
		name string
		args model.Arguments
	}{
		{"int and string", model.Arguments{{Name: "a", Value: int64(1)}, {Name: "b", Value: "x"}}},
		{"quoted string", model.Arguments{{Name: "a", Value: int64(42)}, {Name: "b", Value: "say \"hi\"\n"}}},
		{"float and bool", model.Arguments{{Name: "a", Value: int64(7)}, {Name: "b", Value: ""}, {Name: "c", Value: 2.5}, {Name: "d", Value: true}}},
		{"infinity", model.Arguments{{Name: "a", Value: int64(0)}, {Name: "b", Value: "y"}, {Name: "c", Value: math.Inf(1)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			expr := model.FormatCall("record", tt.args)

			tc := e.ParseAndRun(context.Background(), StartMarker+expr+EndMarker, nil)
			require.NotNil(t, tc)
			assert.Equal(t, "ok", tc.Result)
			assert.Equal(t, expr, tc.Expression)
			assert.Equal(t, tt.args, tc.Arguments)
			assert.Equal(t, tt.args, got)
		})
	}
}

func TestParseAndRunAsyncDispatch(t *testing.T) {
	e := newTestExecutor(t)
	body := StartMarker + `echo("hi", suffix="!")` + EndMarker

	running := &countingScheduler{running: true}
	tc := e.ParseAndRun(context.Background(), body, running)
	require.NotNil(t, tc)
	assert.Equal(t, "hi!", tc.Result)
	assert.Equal(t, 1, running.calls)

	// a stopped scheduler is bypassed for a private one
	stopped := &countingScheduler{}
	tc = e.ParseAndRun(context.Background(), body, stopped)
	require.NotNil(t, tc)
	assert.Equal(t, "hi!", tc.Result)
	assert.Equal(t, 0, stopped.calls)

	tc = e.ParseAndRun(context.Background(), body, nil)
	require.NotNil(t, tc)
	assert.Equal(t, "hi!", tc.Result)
}

func TestParseAndRunSyncIgnoresScheduler(t *testing.T) {
	e := newTestExecutor(t)
	sched := &countingScheduler{running: true}

	tc := e.ParseAndRun(context.Background(), StartMarker+`calculator("1+1")`+EndMarker, sched)
	require.NotNil(t, tc)
	assert.Equal(t, "2", tc.Result)
	assert.Equal(t, 0, sched.calls)
}

func TestRunFromArguments(t *testing.T) {
	e := newTestExecutor(t)

	tc := e.Run(context.Background(), "echo", map[string]any{"text": "a", "suffix": "b"}, nil)
	assert.Equal(t, `echo(text="a", suffix="b")`, tc.Expression)
	assert.Equal(t, "ab", tc.Result)

	tc = e.Run(context.Background(), "nope", nil, nil)
	assert.Equal(t, "nope()", tc.Expression)
	assert.Equal(t, "Error: Unknown tool: nope", tc.Result)

	tc = e.Run(context.Background(), "echo", map[string]any{"other": 1}, nil)
	assert.Equal(t, "Error: echo() got an unexpected keyword argument 'other'", tc.Result)
}

func TestExecutorObserver(t *testing.T) {
	obs := &recordingObserver{}
	e := newTestExecutor(t, WithObserver(obs))

	e.ParseAndRun(context.Background(), StartMarker+`calculator("1")`+EndMarker, nil)
	e.ParseAndRun(context.Background(), StartMarker+`missing()`+EndMarker, nil)

	assert.Equal(t, []string{"calculator", "missing"}, obs.names)
	assert.Equal(t, []bool{false, true}, obs.failed)
}

func TestExtractCall(t *testing.T) {
	body, idx := ExtractCall("abc<|start_tool|>f()<|end_tool|>tail")
	assert.Equal(t, "f()", body)
	assert.Equal(t, 3, idx)

	body, idx = ExtractCall("none")
	assert.Equal(t, "", body)
	assert.Equal(t, -1, idx)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "True", Stringify(true))
	assert.Equal(t, "2.0", Stringify(2.0))
	assert.Equal(t, "7", Stringify(7))
	assert.Equal(t, "x", Stringify("x"))
}

func TestSummarizeResult(t *testing.T) {
	assert.Equal(t, "single", SummarizeResult("single"))
	assert.Equal(t, "first... (Truncated 8 characters)", SummarizeResult("first\nabc\ndefgh"))
}
