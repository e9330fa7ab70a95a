package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/xeipuuv/gojsonschema"
)

// Executor runs one tool-dispatch round. Argument validation happens before
// execution; independent calls run concurrently under a worker ceiling; the
// aggregated results keep the original request order.
type Executor struct {
	registry    *Registry
	maxWorkers  int
	callTimeout time.Duration
	log         zerolog.Logger
}

// ExecutorOption configures the Executor.
type ExecutorOption func(*Executor)

// WithMaxWorkers sets the per-round concurrency ceiling.
func WithMaxWorkers(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxWorkers = n
		}
	}
}

// WithCallTimeout sets the per-invocation timeout.
func WithCallTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// NewExecutor creates a tool executor over the given registry.
func NewExecutor(registry *Registry, log zerolog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:    registry,
		maxWorkers:  4,
		callTimeout: 15 * time.Second,
		log:         log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteRound runs all calls of one dispatch round and returns results in
// the same order as the calls, regardless of completion order.
func (e *Executor) ExecuteRound(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))

	p := pool.New().WithMaxGoroutines(e.maxWorkers)
	for i, call := range calls {
		p.Go(func() {
			results[i] = e.execute(ctx, call)
		})
	}
	p.Wait()

	return results
}

func (e *Executor) execute(ctx context.Context, call Call) Result {
	res := Result{CallID: call.ID, Name: call.Name}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		res.Error = fmt.Sprintf("unknown tool: %s", call.Name)
		return res
	}

	if err := validateArgs(tool, call.Arguments); err != nil {
		e.log.Warn().Err(err).Str("tool", call.Name).Msg("tool argument validation failed")
		res.Error = err.Error()
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	start := time.Now()
	output, err := e.invoke(callCtx, tool, call.Arguments)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			res.TimedOut = true
			res.Error = fmt.Sprintf("tool %s timed out after %s", call.Name, e.callTimeout)
		} else {
			res.Error = err.Error()
		}
		e.log.Warn().Err(err).Str("tool", call.Name).Dur("duration", time.Since(start)).Msg("tool invocation failed")
		return res
	}

	e.log.Debug().Str("tool", call.Name).Dur("duration", time.Since(start)).Msg("tool invocation completed")
	res.Output = output
	return res
}

// invoke runs the tool and converts a panic into an invocation error so a
// misbehaving tool never takes the dispatch round down with it.
func (e *Executor) invoke(ctx context.Context, tool Tool, args map[string]any) (output map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("tool %s panicked: %v", tool.Name(), r)
		}
	}()
	return tool.Invoke(ctx, args)
}

// validateArgs checks the call arguments against the tool's declared schema.
func validateArgs(tool Tool, args map[string]any) error {
	schemaLoader := gojsonschema.NewBytesLoader(tool.InputSchema())
	docLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("validate arguments for %s: %w", tool.Name(), err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("invalid arguments for %s: %s", tool.Name(), strings.Join(msgs, "; "))
	}
	return nil
}
