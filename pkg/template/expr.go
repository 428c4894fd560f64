package template

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// exprEnv is the environment expressions see. Only request data and the
// helper functions are reachable; expr exposes no I/O of its own.
type exprEnv struct {
	Method    string            `expr:"method"`
	Path      string            `expr:"path"`
	URL       string            `expr:"url"`
	Headers   map[string]string `expr:"headers"`
	Query     map[string]string `expr:"query"`
	Body      string            `expr:"body"`
	BodyJSON  any               `expr:"bodyJson"`
	Timestamp string            `expr:"timestamp"`
	IsoNow    string            `expr:"isoNow"`
	EpochMs   int64             `expr:"epochMs"`
	UUID      string            `expr:"uuid"`
	Helpers   exprHelpers       `expr:"helpers"`
}

// exprHelpers is the helpers namespace: helpers.upper(s), helpers.json(v), ...
type exprHelpers struct {
	Upper     func(any) string   `expr:"upper"`
	Lower     func(any) string   `expr:"lower"`
	Base64    func(any) string   `expr:"base64"`
	JSON      func(any) string   `expr:"json"`
	Stringify func(any) string   `expr:"stringify"`
	ParseJSON func(any) any      `expr:"parseJson"`
	Parse     func(any) any      `expr:"parse"`
	RandomInt func(any, any) any `expr:"randomInt"`
}

var helpers = exprHelpers{
	Upper:     func(v any) string { return funcUpper(FormatValue(v)) },
	Lower:     func(v any) string { return funcLower(FormatValue(v)) },
	Base64:    func(v any) string { return funcBase64(FormatValue(v)) },
	JSON:      funcStringify,
	Stringify: funcStringify,
	ParseJSON: func(v any) any { return funcParseJSON(FormatValue(v)) },
	Parse:     func(v any) any { return funcParseJSON(FormatValue(v)) },
	RandomInt: func(lo, hi any) any {
		l, ok1 := toInt(lo)
		h, ok2 := toInt(hi)
		if !ok1 || !ok2 {
			return nil
		}
		return funcRandomInt(l, h)
	},
}

func envFor(ctx *Context) exprEnv {
	if ctx == nil {
		return exprEnv{Helpers: helpers}
	}
	return exprEnv{
		Method:    ctx.Method,
		Path:      ctx.Path,
		URL:       ctx.URL,
		Headers:   ctx.Headers,
		Query:     ctx.Query,
		Body:      ctx.Body,
		BodyJSON:  ctx.BodyJSON,
		Timestamp: ctx.Timestamp,
		IsoNow:    ctx.Timestamp,
		EpochMs:   ctx.EpochMs,
		UUID:      ctx.UUID,
		Helpers:   helpers,
	}
}

// maxCachedPrograms caps the compile cache; it is reset when full.
const maxCachedPrograms = 1024

type compiled struct {
	program *vm.Program
	err     error
}

// ExprEvaluator evaluates expr-lang expressions with a compile cache.
type ExprEvaluator struct {
	mu       sync.RWMutex
	programs map[string]compiled
	options  []expr.Option
}

// NewExprEvaluator creates an evaluator exposing the template helper functions.
func NewExprEvaluator() *ExprEvaluator {
	opts := []expr.Option{expr.Env(exprEnv{})}
	opts = append(opts, helperOptions()...)
	return &ExprEvaluator{
		programs: make(map[string]compiled),
		options:  opts,
	}
}

// Eval compiles (or reuses) the program for expression and runs it.
func (x *ExprEvaluator) Eval(expression string, ctx *Context) (any, error) {
	program, err := x.compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, err)
	}
	result, err := expr.Run(program, envFor(ctx))
	if err != nil {
		return nil, fmt.Errorf("eval %q: %w", expression, err)
	}
	return result, nil
}

func (x *ExprEvaluator) compile(expression string) (*vm.Program, error) {
	x.mu.RLock()
	c, ok := x.programs[expression]
	x.mu.RUnlock()
	if ok {
		return c.program, c.err
	}

	program, err := expr.Compile(expression, x.options...)

	x.mu.Lock()
	if len(x.programs) >= maxCachedPrograms {
		x.programs = make(map[string]compiled)
	}
	x.programs[expression] = compiled{program: program, err: err}
	x.mu.Unlock()

	return program, err
}
