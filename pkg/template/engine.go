package template

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/getmockd/mocklane/pkg/logging"
	"github.com/getmockd/mocklane/pkg/mock"
)

// DefaultExpressionTimeout bounds a single expression evaluation.
const DefaultExpressionTimeout = 50 * time.Millisecond

// Evaluator runs one expression against a template context.
type Evaluator interface {
	Eval(expression string, ctx *Context) (any, error)
}

// Engine renders {{ ... }} placeholders. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	eval      Evaluator
	timeout   time.Duration
	onTimeout func()
	log       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluator replaces the expression evaluator.
func WithEvaluator(ev Evaluator) Option {
	return func(e *Engine) {
		if ev != nil {
			e.eval = ev
		}
	}
}

// WithTimeout sets the expression timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithTimeoutHook registers a callback invoked each time an expression times out.
func WithTimeoutHook(fn func()) Option {
	return func(e *Engine) {
		e.onTimeout = fn
	}
}

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// New creates a template engine backed by the expr-lang evaluator.
func New(opts ...Option) *Engine {
	e := &Engine{
		eval:    NewExprEvaluator(),
		timeout: DefaultExpressionTimeout,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// templateRegex matches {{ ... }} placeholders, shortest first.
var templateRegex = regexp.MustCompile(`(?s)\{\{(.*?)\}\}`)

// Render substitutes every placeholder in template. Failures never abort the
// render: a placeholder that cannot be resolved becomes "".
func (e *Engine) Render(template string, ctx *Context) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return templateRegex.ReplaceAllStringFunc(template, func(match string) string {
		inner := match[2 : len(match)-2]
		return e.evaluate(strings.TrimSpace(inner), ctx)
	})
}

// RenderValue renders strings and returns every other value unchanged.
func (e *Engine) RenderValue(v any, ctx *Context) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return e.Render(s, ctx)
}

// RenderHeaders renders header values. Keys are never templated and unset
// entries are dropped.
func (e *Engine) RenderHeaders(headers []mock.KeyValue, ctx *Context) []mock.KeyValue {
	out := make([]mock.KeyValue, 0, len(headers))
	for _, h := range headers {
		if !h.IsSet() {
			continue
		}
		out = append(out, mock.KeyValue{Key: h.Key, Value: e.Render(h.Value, ctx)})
	}
	return out
}

// evaluate resolves one placeholder body.
func (e *Engine) evaluate(body string, ctx *Context) string {
	switch {
	case body == "uuid":
		return uuid.NewString()
	case strings.HasPrefix(body, "="):
		return e.evalExpression(strings.TrimSpace(body[1:]), ctx)
	case strings.HasPrefix(body, "js:"):
		return e.evalExpression(strings.TrimSpace(body[3:]), ctx)
	default:
		v, ok := ctx.Lookup(body)
		if !ok {
			return ""
		}
		return FormatValue(v)
	}
}

// evalExpression runs the evaluator on a helper goroutine and gives up after
// the timeout. An abandoned evaluation keeps running until expr's own limits
// stop it; its result is discarded.
func (e *Engine) evalExpression(src string, ctx *Context) string {
	if src == "" {
		return ""
	}

	done := make(chan string, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- ""
			}
		}()
		v, err := e.eval.Eval(src, ctx)
		if err != nil {
			e.log.Debug("expression failed", "expression", src, "error", err)
			done <- ""
			return
		}
		done <- FormatValue(v)
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out
	case <-timer.C:
		e.log.Warn("expression timed out", "expression", src, "timeout", e.timeout)
		if e.onTimeout != nil {
			e.onTimeout()
		}
		return ""
	}
}

// FormatValue converts an evaluation result to its rendered text.
// nil renders as "", maps and slices as compact JSON.
func FormatValue(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
