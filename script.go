package tfsm

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
)

// ScriptContext is the live view of automaton state exposed to a
// compiled guard or action during one evaluation: the last-seen string
// value of every input, the typed current value of every variable, the
// output map being written to, and the instant the current state was
// entered.
type ScriptContext struct {
	Inputs  map[string]string
	Vars    map[string]*Variable
	Outputs map[string]string
	Since   time.Time
	Now     time.Time
}

func (c *ScriptContext) valueOf(name string) string {
	if s, ok := c.Inputs[name]; ok {
		return s
	}
	if v, ok := c.Vars[name]; ok {
		return v.Value().String()
	}
	return ""
}

func (c *ScriptContext) defined(name string) bool {
	if _, ok := c.Inputs[name]; ok {
		return true
	}
	_, ok := c.Vars[name]
	return ok
}

func (c *ScriptContext) elapsedMs() int64 {
	return c.Now.Sub(c.Since).Milliseconds()
}

// ScriptHost compiles guard and action sources into reusable tengo
// templates and evaluates them against a ScriptContext. A template is
// compiled once per distinct (source, variable-name-set) pair and then
// Clone()d for every evaluation, so repeated firings never pay
// compilation cost again — the cache is content-addressed and owned by
// this component rather than kept behind a package-global singleton.
type ScriptHost struct {
	mu    sync.Mutex
	cache map[string]*tengo.Compiled
}

// NewScriptHost builds an empty host.
func NewScriptHost() *ScriptHost {
	return &ScriptHost{cache: make(map[string]*tengo.Compiled)}
}

// CompiledGuard is a guard expression compiled against a known set of
// variable names. Evaluation failures are reported to the caller, which
// per policy treats the transition as not triggered.
type CompiledGuard struct {
	host     *ScriptHost
	source   string
	wrapped  string
	varNames []string
}

// CompileGuard compiles source (a boolean expression) against the given
// variable names. A compile failure is fatal to the caller — per policy,
// construction of the owning Transition must abort.
func (h *ScriptHost) CompileGuard(source string, varNames []string) (*CompiledGuard, error) {
	wrapped := "__guard_result := (" + source + ")"
	if _, err := h.template(wrapped, varNames); err != nil {
		return nil, newScriptCompileError(source, err)
	}
	return &CompiledGuard{host: h, source: source, wrapped: wrapped, varNames: varNames}, nil
}

// Eval runs the guard against ctx and returns its boolean result.
func (g *CompiledGuard) Eval(ctx *ScriptContext) (bool, error) {
	if g == nil {
		return true, nil
	}
	clone, err := g.host.run(g.wrapped, g.varNames, ctx)
	if err != nil {
		return false, newScriptRuntimeError(g.source, err)
	}
	result := clone.Get("__guard_result")
	if result == nil {
		return false, nil
	}
	return result.Bool(), nil
}

// CompiledAction is an entry-action procedure compiled against a known
// set of variable names. Running it may mutate variables (pulled back
// into the owning Variable, coerced to its declared type) and write
// outputs (pulled back verbatim).
type CompiledAction struct {
	host     *ScriptHost
	source   string
	varNames []string
}

// CompileAction compiles an entry-action source. An empty/blank source
// compiles to a nil *CompiledAction (no-op action).
func (h *ScriptHost) CompileAction(source string, varNames []string) (*CompiledAction, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil
	}
	if _, err := h.template(source, varNames); err != nil {
		return nil, newScriptCompileError(source, err)
	}
	return &CompiledAction{host: h, source: source, varNames: varNames}, nil
}

// Run executes the action against ctx, then pulls every named variable
// and every output back into ctx. Errors are ScriptRuntimeErrors; per
// policy the caller logs and continues without undoing the state change
// already in effect.
func (a *CompiledAction) Run(ctx *ScriptContext) error {
	if a == nil {
		return nil
	}
	clone, err := a.host.run(a.source, a.varNames, ctx)
	if err != nil {
		return newScriptRuntimeError(a.source, err)
	}
	for _, name := range a.varNames {
		v, ok := ctx.Vars[name]
		if !ok {
			continue
		}
		pullBackVariable(v, clone.Get(name))
	}
	if outVar := clone.Get("outputs"); outVar != nil {
		if m, ok := outVar.Object().(*tengo.Map); ok {
			for k, obj := range m.Value {
				ctx.Outputs[k] = tengoObjectToString(obj)
			}
		}
	}
	return nil
}

// template returns the cached compiled template for (source, varNames),
// compiling and caching it on first use.
func (h *ScriptHost) template(source string, varNames []string) (*tengo.Compiled, error) {
	key := cacheKey(source, varNames)

	h.mu.Lock()
	if c, ok := h.cache[key]; ok {
		h.mu.Unlock()
		return c, nil
	}
	h.mu.Unlock()

	script := tengo.NewScript([]byte(source))
	script.SetImports(stdlib.GetModuleMap("math", "text"))

	for _, decl := range []string{"inputs", "vars", "outputs"} {
		if err := script.Add(decl, map[string]interface{}{}); err != nil {
			return nil, errors.Wrapf(err, "declare %s", decl)
		}
	}
	if err := script.Add("since", int64(0)); err != nil {
		return nil, errors.Wrap(err, "declare since")
	}
	for _, name := range varNames {
		if err := script.Add(name, nil); err != nil {
			return nil, errors.Wrapf(err, "declare variable alias %s", name)
		}
	}
	for _, name := range []string{"valueof", "defined", "atoi", "elapsed", "output"} {
		if err := script.Add(name, &tengo.UserFunction{Name: name}); err != nil {
			return nil, errors.Wrapf(err, "declare builtin %s", name)
		}
	}

	compiled, err := script.Compile()
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.cache[key] = compiled
	h.mu.Unlock()
	return compiled, nil
}

// run clones the cached template, binds it to ctx, and runs it.
func (h *ScriptHost) run(source string, varNames []string, ctx *ScriptContext) (*tengo.Compiled, error) {
	tmpl, err := h.template(source, varNames)
	if err != nil {
		return nil, err
	}
	clone := tmpl.Clone()

	inputsMap := make(map[string]interface{}, len(ctx.Inputs))
	for k, v := range ctx.Inputs {
		inputsMap[k] = v
	}
	varsMap := make(map[string]interface{}, len(ctx.Vars))
	for k, v := range ctx.Vars {
		varsMap[k] = valueToInterface(v.Value())
	}
	outputsMap := make(map[string]interface{}, len(ctx.Outputs))
	for k, v := range ctx.Outputs {
		outputsMap[k] = v
	}

	if err := clone.Set("inputs", inputsMap); err != nil {
		return nil, err
	}
	if err := clone.Set("vars", varsMap); err != nil {
		return nil, err
	}
	if err := clone.Set("outputs", outputsMap); err != nil {
		return nil, err
	}
	if err := clone.Set("since", ctx.Since.UnixMilli()); err != nil {
		return nil, err
	}
	for _, name := range varNames {
		if v, ok := ctx.Vars[name]; ok {
			if err := clone.Set(name, valueToInterface(v.Value())); err != nil {
				return nil, err
			}
		}
	}

	builtins := map[string]*tengo.UserFunction{
		"valueof": {Name: "valueof", Value: func(args ...tengo.Object) (tengo.Object, error) {
			name, err := stringArg(args, 0)
			if err != nil {
				return nil, err
			}
			return &tengo.String{Value: ctx.valueOf(name)}, nil
		}},
		"defined": {Name: "defined", Value: func(args ...tengo.Object) (tengo.Object, error) {
			name, err := stringArg(args, 0)
			if err != nil {
				return nil, err
			}
			return boolObject(ctx.defined(name)), nil
		}},
		"atoi": {Name: "atoi", Value: func(args ...tengo.Object) (tengo.Object, error) {
			s, err := stringArg(args, 0)
			if err != nil {
				return nil, err
			}
			n, convErr := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if convErr != nil {
				n = 0
			}
			return &tengo.Int{Value: n}, nil
		}},
		"elapsed": {Name: "elapsed", Value: func(args ...tengo.Object) (tengo.Object, error) {
			return &tengo.Int{Value: ctx.elapsedMs()}, nil
		}},
		"output": {Name: "output", Value: func(args ...tengo.Object) (tengo.Object, error) {
			name, err := stringArg(args, 0)
			if err != nil {
				return nil, err
			}
			val := ""
			if len(args) > 1 {
				val = tengoObjectToString(args[1])
			}
			ctx.Outputs[name] = val
			return tengo.TrueValue, nil
		}},
	}
	for name, fn := range builtins {
		if err := clone.Set(name, fn); err != nil {
			return nil, err
		}
	}

	if err := clone.Run(); err != nil {
		return nil, err
	}
	return clone, nil
}

func cacheKey(source string, varNames []string) string {
	names := append([]string(nil), varNames...)
	sort.Strings(names)
	return source + "\x00" + strings.Join(names, ",")
}

func stringArg(args []tengo.Object, i int) (string, error) {
	if i >= len(args) {
		return "", errors.Newf("expected at least %d argument(s)", i+1)
	}
	return tengoObjectToString(args[i]), nil
}

func boolObject(b bool) tengo.Object {
	if b {
		return tengo.TrueValue
	}
	return tengo.FalseValue
}

func tengoObjectToString(obj tengo.Object) string {
	if obj == nil {
		return ""
	}
	if s, ok := obj.(*tengo.String); ok {
		return s.Value
	}
	return obj.String()
}

func valueToInterface(v Value) interface{} {
	switch v.Type() {
	case TypeInt:
		return v.Int()
	case TypeFloat:
		return v.Float()
	case TypeBool:
		return v.Bool()
	default:
		return v.String()
	}
}

func pullBackVariable(v *Variable, g *tengo.Variable) {
	if v == nil || g == nil {
		return
	}
	switch v.DeclaredType() {
	case TypeInt:
		v.Set(IntValue(int64(g.Int())))
	case TypeFloat:
		v.Set(FloatValue(g.Float()))
	case TypeBool:
		v.Set(BoolValue(g.Bool()))
	default:
		v.Set(StringValue(g.String()))
	}
}
