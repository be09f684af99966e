// Package responder drives a reply to completion: build the prompt, call
// the model, run any tool call the model makes and go around again with
// the result in context.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"abbas/config"
	"abbas/model"
	"abbas/prompt"
	"abbas/tools"
)

// MaxDepth is the number of tool rounds allowed before a reply is given up.
const MaxDepth = 2

// ErrRecursionLimit is matched by every *RecursionError.
var ErrRecursionLimit = errors.New("recursion depth reached while calling tool")

// RecursionError is returned when the model keeps calling tools past
// MaxDepth.
type RecursionError struct {
	Depth int
}

func (e *RecursionError) Error() string {
	return fmt.Sprintf("Recursion depth reached while calling tool (depth %d)", e.Depth)
}

func (e *RecursionError) Unwrap() error {
	return ErrRecursionLimit
}

// Metrics receives per-round measurements.
type Metrics interface {
	ObserveRound(promptTokens int)
	ObserveInferenceError(kind model.ErrorKind)
	ObserveRecursionLimit()
}

// Config wires a Responder.
type Config struct {
	Client   model.InferenceClient
	Builder  *prompt.Builder
	Source   prompt.Source
	Executor *tools.Executor

	// Optional
	Tokenizer model.Tokenizer
	Scheduler tools.Scheduler
	IDs       *model.IDGenerator
	Metrics   Metrics
}

// Responder generates replies to conversations.
type Responder struct {
	client    model.InferenceClient
	builder   *prompt.Builder
	source    prompt.Source
	executor  *tools.Executor
	tokenizer model.Tokenizer
	sched     tools.Scheduler
	ids       *model.IDGenerator
	metrics   Metrics
}

func New(cfg Config) *Responder {
	r := &Responder{
		client:    cfg.Client,
		builder:   cfg.Builder,
		source:    cfg.Source,
		executor:  cfg.Executor,
		tokenizer: cfg.Tokenizer,
		sched:     cfg.Scheduler,
		ids:       cfg.IDs,
		metrics:   cfg.Metrics,
	}
	if r.source == nil {
		r.source = prompt.Static{}
	}
	if r.ids == nil {
		r.ids = model.NewIDGenerator()
	}
	return r
}

// Result is a finished reply.
type Result struct {
	// Input is the payload of the final round.
	Input model.PromptInput
	Text  string
	// Messages are the tool-call messages created on the way, newest first.
	Messages     []model.Message
	Rounds       int
	UsedToolCall bool
}

// Generate produces the next assistant reply to messages, which are
// ordered newest first. messages is not modified. Tool-call messages made
// along the way are returned in the Result; nothing is returned on error.
func (r *Responder) Generate(ctx context.Context, messages []model.Message) (*Result, error) {
	working := append([]model.Message(nil), messages...)
	var synthetic []model.Message

	for depth := 0; ; depth++ {
		if depth > MaxDepth {
			if r.metrics != nil {
				r.metrics.ObserveRecursionLimit()
			}
			return nil, &RecursionError{Depth: depth}
		}

		in, text, err := r.round(ctx, working, depth)
		if err != nil {
			return nil, err
		}

		_, index := tools.ExtractCall(text)
		if index == -1 {
			return r.result(in, text, synthetic, depth), nil
		}

		tc := r.executor.ParseAndRun(ctx, text, r.sched)
		if tc == nil || tc.Result == "" {
			// nothing to feed back; drop the dangling call
			return r.result(in, text[:index], synthetic, depth), nil
		}

		call := r.toolMessage(working, *tc)
		working = append([]model.Message{call}, working...)
		synthetic = append([]model.Message{call}, synthetic...)
	}
}

func (r *Responder) round(ctx context.Context, working []model.Message, depth int) (model.PromptInput, string, error) {
	system, contexts := r.source.Load()
	in, _ := r.builder.Build(working, system, contexts)

	tokens := 0
	if r.tokenizer != nil {
		tokens = r.tokenizer.Count(in.Render())
	}
	if r.metrics != nil {
		r.metrics.ObserveRound(tokens)
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Responder] Round %d: %d prompt tokens, temperature %.4f", depth, tokens, in.Temperature)
	}

	start := time.Now()
	output, err := r.client.Complete(ctx, in)
	if err != nil {
		ierr := asInferenceError(err, in)
		if r.metrics != nil {
			r.metrics.ObserveInferenceError(ierr.Kind)
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Responder] Inference failed after %v: %v", time.Since(start), ierr)
		}
		return in, "", ierr
	}

	return in, strings.Join(RepairStartMarker(output), ""), nil
}

func (r *Responder) toolMessage(working []model.Message, tc model.ToolCall) model.Message {
	m := model.Message{
		Sender:    model.SenderAssistant,
		ToolCalls: []model.ToolCall{tc},
	}
	if len(working) > 0 {
		parent := working[0].ID
		m.Parent = &parent
		r.ids.Observe(parent)
	}
	m.ID = r.ids.Next()
	return m
}

func (r *Responder) result(in model.PromptInput, text string, synthetic []model.Message, depth int) *Result {
	return &Result{
		Input:        in,
		Text:         text,
		Messages:     synthetic,
		Rounds:       depth + 1,
		UsedToolCall: len(synthetic) > 0,
	}
}

// asInferenceError classifies err, keeping the provider's classification
// when there is one.
func asInferenceError(err error, in model.PromptInput) *model.InferenceError {
	var ierr *model.InferenceError
	if errors.As(err, &ierr) {
		if ierr.Input == (model.PromptInput{}) {
			ierr.Input = in
		}
		return ierr
	}
	return &model.InferenceError{
		Kind:    model.ProviderError,
		Message: err.Error(),
		Input:   in,
		Err:     err,
	}
}
