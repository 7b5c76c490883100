package tfsm

import (
	"errors"
	"testing"
	"time"
)

func TestCompileGuardSyntaxErrorIsFatal(t *testing.T) {
	host := NewScriptHost()
	_, err := host.CompileGuard("((", nil)
	if err == nil {
		t.Fatal("expected a compile error for malformed guard source")
	}
	var compileErr *ScriptCompileError
	if !errors.As(err, &compileErr) {
		t.Errorf("error = %v, want a *ScriptCompileError", err)
	}
}

func TestGuardEvalUsesValueof(t *testing.T) {
	host := NewScriptHost()
	guard, err := host.CompileGuard(`valueof("enable") == "1"`, nil)
	if err != nil {
		t.Fatalf("CompileGuard error: %v", err)
	}
	ctx := &ScriptContext{Inputs: map[string]string{"enable": "1"}, Vars: map[string]*Variable{}, Outputs: map[string]string{}}
	ok, err := guard.Eval(ctx)
	if err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if !ok {
		t.Error("guard should be true when enable == 1")
	}
}

func TestGuardEvalUsesElapsed(t *testing.T) {
	host := NewScriptHost()
	guard, err := host.CompileGuard("elapsed() < 100", nil)
	if err != nil {
		t.Fatalf("CompileGuard error: %v", err)
	}
	since := time.Unix(0, 0)
	ctx := &ScriptContext{
		Inputs: map[string]string{}, Vars: map[string]*Variable{}, Outputs: map[string]string{},
		Since: since, Now: since.Add(10 * time.Millisecond),
	}
	ok, err := guard.Eval(ctx)
	if err != nil || !ok {
		t.Errorf("elapsed() < 100 at 10ms: ok=%v err=%v, want ok=true err=nil", ok, err)
	}

	ctx.Now = since.Add(200 * time.Millisecond)
	ok, err = guard.Eval(ctx)
	if err != nil || ok {
		t.Errorf("elapsed() < 100 at 200ms: ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestGuardEvalUsesDefinedAndAtoi(t *testing.T) {
	host := NewScriptHost()
	guard, err := host.CompileGuard(`defined("n") && atoi(valueof("n")) > 10`, nil)
	if err != nil {
		t.Fatalf("CompileGuard error: %v", err)
	}
	ctx := &ScriptContext{Inputs: map[string]string{"n": "42"}, Vars: map[string]*Variable{}, Outputs: map[string]string{}}
	ok, err := guard.Eval(ctx)
	if err != nil || !ok {
		t.Errorf("ok=%v err=%v, want ok=true err=nil", ok, err)
	}
}

func TestCompileActionBlankSourceIsNoOp(t *testing.T) {
	host := NewScriptHost()
	action, err := host.CompileAction("   ", nil)
	if err != nil {
		t.Fatalf("CompileAction error: %v", err)
	}
	if action != nil {
		t.Fatal("blank source should compile to a nil action")
	}
	if err := action.Run(nil); err != nil {
		t.Errorf("Run on nil action should be a no-op, got error: %v", err)
	}
}

func TestCompiledActionMutatesAliasedVariable(t *testing.T) {
	host := NewScriptHost()
	action, err := host.CompileAction("count = count + 1", []string{"count"})
	if err != nil {
		t.Fatalf("CompileAction error: %v", err)
	}
	count := NewVariable("count", TypeInt, IntValue(5))
	ctx := &ScriptContext{
		Inputs: map[string]string{}, Vars: map[string]*Variable{"count": count}, Outputs: map[string]string{},
	}
	if err := action.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if count.Value().Int() != 6 {
		t.Errorf("count after run = %d, want 6", count.Value().Int())
	}
}

func TestCompiledActionWritesOutput(t *testing.T) {
	host := NewScriptHost()
	action, err := host.CompileAction(`output("status", "on")`, nil)
	if err != nil {
		t.Fatalf("CompileAction error: %v", err)
	}
	ctx := &ScriptContext{Inputs: map[string]string{}, Vars: map[string]*Variable{}, Outputs: map[string]string{}}
	if err := action.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if ctx.Outputs["status"] != "on" {
		t.Errorf(`Outputs["status"] = %q, want "on"`, ctx.Outputs["status"])
	}
}

func TestCompiledActionPullsBackDeclaredType(t *testing.T) {
	host := NewScriptHost()
	action, err := host.CompileAction(`ratio = ratio + 0.5`, []string{"ratio"})
	if err != nil {
		t.Fatalf("CompileAction error: %v", err)
	}
	ratio := NewVariable("ratio", TypeFloat, FloatValue(1.0))
	ctx := &ScriptContext{
		Inputs: map[string]string{}, Vars: map[string]*Variable{"ratio": ratio}, Outputs: map[string]string{},
	}
	if err := action.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if ratio.Value().Type() != TypeFloat {
		t.Fatalf("declared type should stay Float after pull-back, got %v", ratio.Value().Type())
	}
	if ratio.Value().Float() != 1.5 {
		t.Errorf("ratio after run = %v, want 1.5", ratio.Value().Float())
	}
}
