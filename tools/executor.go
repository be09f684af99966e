package tools

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"abbas/config"
	"abbas/model"
)

// Tool-call delimiters embedded in model output.
const (
	StartMarker = "<|start_tool|>"
	EndMarker   = "<|end_tool|>"
)

// Observer is notified after every tool invocation.
type Observer interface {
	ObserveToolCall(name string, failed bool, elapsed time.Duration)
}

// Executor validates and runs tool calls against a registry.
type Executor struct {
	registry *Registry
	pool     *WorkerPool
	observer Observer
	newID    func() string
}

// Option configures an Executor.
type Option func(*Executor)

// WithObserver reports every invocation to o.
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

// WithIDs overrides ToolCall id generation.
func WithIDs(newID func() string) Option {
	return func(e *Executor) {
		e.newID = newID
	}
}

// NewExecutor creates an executor dispatching sync tools onto pool.
func NewExecutor(registry *Registry, pool *WorkerPool, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		pool:     pool,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Registry() *Registry {
	return e.registry
}

// ExtractCall returns the call body following the start marker, up to the
// end marker or the end of text. index is the position of the start
// marker, or -1 when there is none.
func ExtractCall(text string) (body string, index int) {
	index = strings.Index(text, StartMarker)
	if index == -1 {
		return "", -1
	}
	rest := text[index+len(StartMarker):]
	if end := strings.Index(rest, EndMarker); end != -1 {
		rest = rest[:end]
	}
	return rest, index
}

// ParseAndRun finds a tool call in text and executes it. It returns nil
// when text holds no call or an empty one. Validation and execution
// failures are reported in the Result as "Error: ..." rather than returned.
func (e *Executor) ParseAndRun(ctx context.Context, text string, sched Scheduler) *model.ToolCall {
	body, index := ExtractCall(text)
	if index == -1 || body == "" {
		return nil
	}

	tc := &model.ToolCall{
		ID:         e.newID(),
		Name:       body,
		Expression: body,
	}

	start := time.Now()
	def, args, err := e.validate(body, tc)
	var value any
	if err == nil {
		value, err = e.invoke(ctx, def, args, sched)
	}
	e.finish(tc, value, err, time.Since(start))
	return tc
}

// Run executes a tool from already decoded arguments, bypassing the text
// grammar. The expression is rendered from name and arguments.
func (e *Executor) Run(ctx context.Context, name string, arguments map[string]any, sched Scheduler) *model.ToolCall {
	tc := &model.ToolCall{
		ID:   e.newID(),
		Name: name,
	}

	start := time.Now()
	var value any
	def, ok := e.registry.Get(name)
	err := errors.Errorf("Unknown tool: %s", name)
	if ok {
		var args model.Arguments
		args, err = bindMap(def, arguments)
		tc.Arguments = args
		if err == nil {
			value, err = e.invoke(ctx, def, args, sched)
		}
	}
	tc.Expression = model.FormatCall(name, tc.Arguments)
	e.finish(tc, value, err, time.Since(start))
	return tc
}

func (e *Executor) finish(tc *model.ToolCall, value any, err error, elapsed time.Duration) {
	if err != nil {
		tc.Result = "Error: " + lastLine(err.Error())
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Tools] %s failed: %+v", tc.Expression, err)
		}
	} else {
		tc.Result = Stringify(value)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Tools] %s ==> %s", tc.Expression, SummarizeResult(tc.Result))
	}
	if e.observer != nil {
		e.observer.ObserveToolCall(tc.Name, err != nil, elapsed)
	}
}

// validate parses body and checks it is a call of a registered tool with
// literal arguments. tc.Name and tc.Arguments are filled in as soon as
// they are known.
func (e *Executor) validate(body string, tc *model.ToolCall) (Definition, model.Arguments, error) {
	node, err := ParseExpr(body)
	if err != nil {
		return Definition{}, nil, errors.WithStack(err)
	}

	call, ok := node.(*Call)
	if !ok {
		return Definition{}, nil, errors.Errorf("Invalid body: %s", node.Kind())
	}
	fn, ok := call.Func.(*Name)
	if !ok {
		return Definition{}, nil, errors.Errorf("Invalid body.func: %s", call.Func.Kind())
	}
	tc.Name = fn.ID

	def, ok := e.registry.Get(fn.ID)
	if !ok {
		return Definition{}, nil, errors.Errorf("Unknown tool: %s", fn.ID)
	}
	for _, arg := range call.Args {
		if _, ok := arg.(*Constant); !ok {
			return Definition{}, nil, errors.Errorf("Invalid body.args: %s", arg.Kind())
		}
	}
	for _, kw := range call.Keywords {
		if _, ok := kw.Value.(*Constant); !ok {
			return Definition{}, nil, errors.Errorf("Invalid body.keywords: %s", kw.Value.Kind())
		}
	}

	args, err := bindCall(def, call)
	tc.Arguments = args
	return def, args, err
}

// invoke dispatches a validated call and waits for its result. Sync tools
// go to the worker pool. Async tools go to sched when it is running,
// otherwise to a private scheduler that lives only for this call.
func (e *Executor) invoke(ctx context.Context, def Definition, args model.Arguments, sched Scheduler) (any, error) {
	task := func(ctx context.Context) (any, error) {
		return def.Invoke(ctx, args)
	}

	var (
		future *Future
		err    error
	)
	switch {
	case def.Mode == Sync && e.pool != nil:
		future, err = e.pool.Submit(ctx, task)
	case def.Mode == Async && sched != nil && sched.Running():
		future, err = schedule(ctx, sched, task)
	default:
		private := &privateScheduler{}
		defer private.wait()
		future, err = schedule(ctx, private, task)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dispatch %s", def.Name)
	}
	return future.Wait(ctx)
}

func bindCall(def Definition, call *Call) (model.Arguments, error) {
	values := make(map[string]any, len(def.Params))

	if len(call.Args) > len(def.Params) {
		return nil, errors.Errorf("%s() takes %d positional argument%s but %d were given",
			def.Name, len(def.Params), plural(len(def.Params)), len(call.Args))
	}
	for i, arg := range call.Args {
		values[def.Params[i].Name] = constantValue(arg.(*Constant).Value)
	}
	for _, kw := range call.Keywords {
		if !def.hasParam(kw.Arg) {
			return nil, errors.Errorf("%s() got an unexpected keyword argument '%s'", def.Name, kw.Arg)
		}
		if _, dup := values[kw.Arg]; dup {
			return nil, errors.Errorf("%s() got multiple values for argument '%s'", def.Name, kw.Arg)
		}
		values[kw.Arg] = constantValue(kw.Value.(*Constant).Value)
	}
	return orderArguments(def, values)
}

func bindMap(def Definition, arguments map[string]any) (model.Arguments, error) {
	for name := range arguments {
		if !def.hasParam(name) {
			return nil, errors.Errorf("%s() got an unexpected keyword argument '%s'", def.Name, name)
		}
	}
	return orderArguments(def, arguments)
}

func orderArguments(def Definition, values map[string]any) (model.Arguments, error) {
	var missing []string
	args := make(model.Arguments, 0, len(values))
	for _, p := range def.Params {
		v, ok := values[p.Name]
		if !ok {
			if !p.Optional {
				missing = append(missing, "'"+p.Name+"'")
			}
			continue
		}
		args = append(args, model.Argument{Name: p.Name, Value: v})
	}
	if len(missing) > 0 {
		return args, errors.Errorf("%s() missing %d required positional argument%s: %s",
			def.Name, len(missing), plural(len(missing)), joinNames(missing))
	}
	return args, nil
}

func (d Definition) hasParam(name string) bool {
	for _, p := range d.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func joinNames(names []string) string {
	switch len(names) {
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}
	return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// constantValue narrows integer literals to int64 when they fit.
func constantValue(v any) any {
	if n, ok := v.(*big.Int); ok && n.IsInt64() {
		return n.Int64()
	}
	return v
}

// Stringify converts a tool's return value into its result text.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "True"
		}
		return "False"
	case float64:
		return FormatFloat(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// SummarizeResult keeps the first line of a result and reports how many
// characters were cut.
func SummarizeResult(result string) string {
	first, rest, found := strings.Cut(result, "\n")
	if !found {
		return result
	}
	truncated := 0
	for _, line := range strings.Split(rest, "\n") {
		truncated += utf8.RuneCountInString(line)
	}
	return fmt.Sprintf("%s... (Truncated %d characters)", first, truncated)
}

func lastLine(msg string) string {
	if i := strings.LastIndex(msg, "\n"); i != -1 {
		return msg[i+1:]
	}
	return msg
}
