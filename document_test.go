package tfsm

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTempDoc(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp doc: %v", err)
	}
	return path
}

func TestLoadDocumentBasic(t *testing.T) {
	path := writeTempDoc(t, `{
		"name": "tof",
		"inputs": ["in"],
		"outputs": [],
		"variables": [{"name":"timeout","type":"int","init":5000}],
		"states": [{"id":"IDLE","initial":true},{"id":"ACTIVE"}],
		"transitions": [
			{"from":"IDLE","to":"ACTIVE","trigger":"in","guard":"valueof(\"in\")==\"1\"","delay_ms":null}
		]
	}`)

	doc, warn, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument error: %v", err)
	}
	if warn != nil {
		t.Fatalf("unexpected warning: %v (all=%v)", warn, warn.All)
	}
	if doc.Name != "tof" {
		t.Errorf("Name = %q, want %q", doc.Name, "tof")
	}
	if len(doc.States) != 2 || len(doc.Transitions) != 1 || len(doc.Variables) != 1 {
		t.Fatalf("doc shape = %+v", doc)
	}
	if doc.Transitions[0].Delay.Kind != DelayImmediate {
		t.Errorf("delay kind = %v, want DelayImmediate", doc.Transitions[0].Delay.Kind)
	}
}

func TestLoadDocumentLegacyIDFallback(t *testing.T) {
	path := writeTempDoc(t, `{"id":"legacy-name","inputs":[],"outputs":[],"states":[{"id":"S"}]}`)
	doc, _, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument error: %v", err)
	}
	if doc.Name != "legacy-name" {
		t.Errorf("Name = %q, want fallback to legacy id %q", doc.Name, "legacy-name")
	}
}

func TestLoadDocumentGuardWithoutTriggerWarning(t *testing.T) {
	path := writeTempDoc(t, `{
		"name":"d","inputs":[],"outputs":[],
		"states":[{"id":"A","initial":true},{"id":"B"}],
		"transitions":[{"from":"A","to":"B","guard":"true"}]
	}`)
	_, warn, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument error: %v", err)
	}
	if warn == nil || warn.Code != WarnGuardWithoutTrigger {
		t.Fatalf("warn = %v, want WarnGuardWithoutTrigger", warn)
	}
}

func TestLoadDocumentUnknownTriggerWarning(t *testing.T) {
	path := writeTempDoc(t, `{
		"name":"d","inputs":["bar"],"outputs":[],
		"states":[{"id":"A","initial":true},{"id":"B"}],
		"transitions":[{"from":"A","to":"B","trigger":"foo"}]
	}`)
	_, warn, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument error: %v", err)
	}
	if warn == nil || warn.Code != WarnUnknownTrigger {
		t.Fatalf("warn = %v, want WarnUnknownTrigger", warn)
	}
	want := "Unknown trigger `foo` in transition A->B"
	if warn.Message != want {
		t.Errorf("Message = %q, want %q", warn.Message, want)
	}
}

func TestLoadDocumentUnknownSymbolWarning(t *testing.T) {
	path := writeTempDoc(t, `{
		"name":"d","inputs":["in"],"outputs":[],
		"states":[{"id":"A","initial":true},{"id":"B"}],
		"transitions":[{"from":"A","to":"B","trigger":"in","guard":"valueof(\"ghost\")==\"1\""}]
	}`)
	_, warn, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument error: %v", err)
	}
	if warn == nil || warn.Code != WarnUnknownSymbol {
		t.Fatalf("warn = %v, want WarnUnknownSymbol", warn)
	}
}

func TestLoadDocumentMalformedJSONIsHardError(t *testing.T) {
	path := writeTempDoc(t, `{"name": not json`)
	_, _, err := LoadDocument(path)
	if err == nil {
		t.Fatal("expected a hard error for malformed JSON")
	}
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Errorf("error = %v, want a *LoadError", err)
	}
}

func TestLoadDocumentMissingFileIsHardError(t *testing.T) {
	_, _, err := LoadDocument(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected a hard error for a missing file")
	}
}

func TestDecodeDelayJSONVariants(t *testing.T) {
	cases := []struct {
		raw  string
		kind DelayKind
	}{
		{`null`, DelayImmediate},
		{``, DelayImmediate},
		{`1500`, DelayFixed},
		{`"timeout"`, DelayFromVariable},
	}
	for _, c := range cases {
		d, err := decodeDelayJSON([]byte(c.raw))
		if err != nil {
			t.Errorf("decodeDelayJSON(%q) error: %v", c.raw, err)
			continue
		}
		if d.Kind != c.kind {
			t.Errorf("decodeDelayJSON(%q).Kind = %v, want %v", c.raw, d.Kind, c.kind)
		}
	}

	if _, err := decodeDelayJSON([]byte(`{"bad":true}`)); err == nil {
		t.Error("expected an error decoding an object as delay_ms")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	doc := &Document{
		Name:    "roundtrip",
		Inputs:  []string{"in"},
		Outputs: []string{"out"},
		Variables: []VariableDesc{
			{Name: "timeout", Type: TypeInt, Init: IntValue(5000)},
		},
		States: []StateDesc{
			{ID: "IDLE", Initial: true},
			{ID: "ACTIVE"},
		},
		Transitions: []TransitionDesc{
			{From: "IDLE", To: "ACTIVE", Trigger: "in", Guard: `valueof("in")=="1"`, Delay: ImmediateDelay()},
			{From: "ACTIVE", To: "IDLE", Delay: VariableDelay("timeout")},
		},
	}

	path := filepath.Join(t.TempDir(), "out.json")
	if err := SaveDocument(doc, path, true); err != nil {
		t.Fatalf("SaveDocument error: %v", err)
	}

	reloaded, warn, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if warn != nil {
		t.Fatalf("unexpected warning on reload: %v", warn)
	}
	if reloaded.Name != doc.Name {
		t.Errorf("Name = %q, want %q", reloaded.Name, doc.Name)
	}
	if len(reloaded.Transitions) != 2 {
		t.Fatalf("Transitions = %+v", reloaded.Transitions)
	}
	if reloaded.Transitions[1].Delay.Kind != DelayFromVariable || reloaded.Transitions[1].Delay.VarName != "timeout" {
		t.Errorf("Transitions[1].Delay = %+v, want FromVariable(timeout)", reloaded.Transitions[1].Delay)
	}
	if reloaded.Variables[0].Init.Int() != 5000 {
		t.Errorf("Variables[0].Init = %v, want 5000", reloaded.Variables[0].Init)
	}
}

func TestExtractValueofSymbols(t *testing.T) {
	syms := extractValueofSymbols(`valueof("a") == "1" && valueof("b") != "0"`)
	if len(syms) != 2 || syms[0] != "a" || syms[1] != "b" {
		t.Errorf("syms = %v, want [a b]", syms)
	}
	if len(extractValueofSymbols("")) != 0 {
		t.Error("empty guard should yield no symbols")
	}
}
