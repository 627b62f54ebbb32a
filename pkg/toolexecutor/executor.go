package toolexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harun/ouro/internal/observability"
	"github.com/harun/ouro/pkg/events"
	"github.com/harun/ouro/pkg/llm"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

const (
	// maxResultChars bounds a single tool result before it enters the
	// transcript.
	maxResultChars = 15000
	// maxAuditChars bounds the result preview written to the audit log.
	maxAuditChars = 2000
	// maxParallel caps the worker pool for a parallel batch.
	maxParallel = 8
)

// Result is the outcome of a single tool call, paired back to its call ID.
type Result struct {
	CallID  string
	Name    string
	Content string
	IsError bool
	Elapsed time.Duration
}

// Engine dispatches model-requested tool calls against the registry.
type Engine struct {
	registry *Registry
	env      *Env
	sticky   *StickyLane
	logger   zerolog.Logger
}

// NewEngine creates a dispatch engine over the given registry.
func NewEngine(registry *Registry, env *Env, logger zerolog.Logger) *Engine {
	if env == nil {
		env = &Env{}
	}
	return &Engine{
		registry: registry,
		env:      env,
		sticky:   NewStickyLane(logger),
		logger:   logger.With().Str("component", "tool_engine").Logger(),
	}
}

// Registry exposes the engine's registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// OnStickyReset installs the teardown invoked when the sticky lane resets
// after a stateful timeout. Wire the session's Close here so the reset
// discards wedged browser state along with the worker goroutine.
func (e *Engine) OnStickyReset(fn func()) {
	e.sticky.SetOnReset(fn)
}

// Close shuts down the sticky lane.
func (e *Engine) Close() {
	e.sticky.Close()
}

// Dispatch executes a batch of tool calls and returns one result per call,
// in the same order as the input. The batch runs in parallel only when it
// has more than one call and every call targets a read-only tool; any
// default or stateful call forces the whole batch serial.
func (e *Engine) Dispatch(ctx context.Context, calls []llm.ToolCall) []Result {
	if len(calls) == 0 {
		return nil
	}

	if e.parallelEligible(calls) {
		return e.dispatchParallel(ctx, calls)
	}

	results := make([]Result, len(calls))
	for i, call := range calls {
		results[i] = e.execute(ctx, call)
	}
	return results
}

func (e *Engine) parallelEligible(calls []llm.ToolCall) bool {
	if len(calls) < 2 {
		return false
	}
	for _, call := range calls {
		if e.registry.ClassOf(call.Name) != ClassReadOnly {
			return false
		}
	}
	return true
}

func (e *Engine) dispatchParallel(ctx context.Context, calls []llm.ToolCall) []Result {
	workers := len(calls)
	if workers > maxParallel {
		workers = maxParallel
	}

	type indexed struct {
		idx  int
		call llm.ToolCall
	}
	jobs := make(chan indexed)
	results := make([]Result, len(calls))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results[job.idx] = e.execute(ctx, job.call)
			}
		}()
	}

	for i, call := range calls {
		jobs <- indexed{idx: i, call: call}
	}
	close(jobs)
	wg.Wait()

	return results
}

// execute runs one tool call end to end: lookup, argument recovery, schema
// validation, timeout-bounded execution, result normalization, audit.
func (e *Engine) execute(ctx context.Context, call llm.ToolCall) Result {
	start := time.Now()

	def := e.registry.Get(call.Name)
	if def == nil {
		return e.finish(call, start, "error",
			fmt.Sprintf("⚠️ TOOL_ERROR (%s): unknown tool", call.Name), nil)
	}

	args, argErr := parseArguments(call.Arguments)
	if argErr != nil {
		return e.finish(call, start, "error",
			fmt.Sprintf("⚠️ TOOL_ARG_ERROR: %v", argErr), nil)
	}

	if schema := e.registry.schema(call.Name); schema != nil {
		if verr := validateArgs(schema, args); verr != nil {
			return e.finish(call, start, "error",
				fmt.Sprintf("⚠️ TOOL_ARG_ERROR: %v", verr), args)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()

	output, err := e.run(callCtx, def, args)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			e.emitToolEvent(events.TypeToolTimeout, call.Name, def.Timeout, err)
			msg := fmt.Sprintf("⚠️ TOOL_TIMEOUT (%s): no result after %s", call.Name, def.Timeout)
			if def.Class == ClassStateful {
				msg += ". Session state has been reset."
			}
			return e.finish(call, start, "timeout", msg, args)
		}
		e.emitToolEvent(events.TypeToolError, call.Name, def.Timeout, err)
		return e.finish(call, start, "error",
			fmt.Sprintf("⚠️ TOOL_ERROR (%s): %v", call.Name, err), args)
	}

	return e.finish(call, start, "success", output, args)
}

// run executes the handler on the appropriate lane for the tool's class.
func (e *Engine) run(ctx context.Context, def *Definition, args map[string]interface{}) (string, error) {
	if def.Class == ClassStateful {
		return e.sticky.Submit(ctx, func(ctx context.Context) (string, error) {
			return def.Handler(ctx, e.env, args)
		})
	}

	type handlerResult struct {
		output string
		err    error
	}
	done := make(chan handlerResult, 1)
	go func() {
		out, err := def.Handler(ctx, e.env, args)
		done <- handlerResult{output: out, err: err}
	}()

	select {
	case res := <-done:
		return res.output, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// finish normalizes the result, records metrics, and writes the audit line.
func (e *Engine) finish(call llm.ToolCall, start time.Time, status, content string, args map[string]interface{}) Result {
	elapsed := time.Since(start)
	observability.RecordToolExecution(call.Name, status, elapsed)

	if len(content) > maxResultChars {
		content = events.TruncateForLog(content, maxResultChars)
	}

	if e.env.Sink != nil {
		e.env.Sink.Audit(events.AuditRecord{
			Tool:          call.Name,
			TaskID:        e.env.TaskID,
			Args:          events.SanitizeArgs(args),
			ResultPreview: events.TruncateForLog(content, maxAuditChars),
		})
	}

	isError := strings.HasPrefix(content, "⚠️")
	logEvent := e.logger.Debug()
	if isError {
		logEvent = e.logger.Warn()
	}
	logEvent.
		Str("tool", call.Name).
		Str("status", status).
		Dur("elapsed", elapsed).
		Msg("tool call finished")

	return Result{
		CallID:  call.ID,
		Name:    call.Name,
		Content: content,
		IsError: isError,
		Elapsed: elapsed,
	}
}

func (e *Engine) emitToolEvent(eventType events.Type, tool string, timeout time.Duration, err error) {
	if e.env.Sink == nil {
		return
	}
	fields := map[string]interface{}{
		"tool":    tool,
		"timeout": timeout.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	e.env.Sink.Emit(events.Event{
		Type:   eventType,
		TaskID: e.env.TaskID,
		Fields: fields,
	})
}

// parseArguments decodes the raw argument payload from the model. Models
// occasionally double-encode arguments as a JSON string, so one level of
// string unwrapping is attempted before giving up.
func parseArguments(raw string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]interface{}{}, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &args); err == nil {
		return args, nil
	}

	var inner string
	if err := json.Unmarshal([]byte(trimmed), &inner); err == nil {
		if err := json.Unmarshal([]byte(inner), &args); err == nil {
			return args, nil
		}
	}

	return nil, fmt.Errorf("arguments are not a JSON object: %s", events.TruncateForLog(trimmed, 200))
}

func validateArgs(schema *gojsonschema.Schema, args map[string]interface{}) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}
