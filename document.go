package tfsm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// VariableDesc is the persisted description of one variable.
type VariableDesc struct {
	Name string
	Type ValueType
	Init Value
}

// StateDesc is the persisted description of one state.
type StateDesc struct {
	ID      StateID
	Initial bool
	OnEnter string
}

// TransitionDesc is the persisted description of one transition.
type TransitionDesc struct {
	From    StateID
	To      StateID
	Trigger string
	Guard   string
	Delay   Delay
}

// Document is the in-memory form of one FSM, as loaded from or destined
// for a JSON file. It is purely a data-transfer object: it knows nothing
// about script compilation or state indices, which are the runtime
// driver's concern (see §4.9).
type Document struct {
	Name        string
	Comment     string
	Inputs      []string
	Outputs     []string
	Variables   []VariableDesc
	States      []StateDesc
	Transitions []TransitionDesc
}

// documentJSON is the wire shape decoded straight off disk, kept
// separate from Document so that polymorphic/legacy fields (delay_ms,
// the legacy "id" key) are resolved exactly once, in LoadDocument.
type documentJSON struct {
	Name        string               `json:"name,omitempty"`
	ID          string               `json:"id,omitempty"`
	Comment     string               `json:"comment,omitempty"`
	Inputs      []string             `json:"inputs,omitempty"`
	Outputs     []string             `json:"outputs,omitempty"`
	Variables   []variableDescJSON   `json:"variables,omitempty"`
	States      []stateDescJSON      `json:"states,omitempty"`
	Transitions []transitionDescJSON `json:"transitions,omitempty"`
}

type variableDescJSON struct {
	Name string          `json:"name"`
	Type string          `json:"type"`
	Init json.RawMessage `json:"init,omitempty"`
}

type stateDescJSON struct {
	ID      string `json:"id"`
	Initial bool   `json:"initial,omitempty"`
	OnEnter string `json:"onEnter,omitempty"`
}

type transitionDescJSON struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Trigger string          `json:"trigger,omitempty"`
	Guard   string          `json:"guard,omitempty"`
	DelayMs json.RawMessage `json:"delay_ms,omitempty"`
}

// LoadDocument reads path, decodes it, and statically validates it.
// A validation finding is returned as a non-fatal *LoadWarning alongside
// a valid Document; anything else wrong with the file is a fatal
// *LoadError.
func LoadDocument(path string) (*Document, *LoadWarning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, newLoadError(path, err)
	}
	return parseDocument(data, path)
}

func parseDocument(data []byte, path string) (*Document, *LoadWarning, error) {
	var raw documentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, newLoadError(path, err)
	}

	doc := &Document{
		Name:    raw.Name,
		Comment: raw.Comment,
		Inputs:  append([]string(nil), raw.Inputs...),
		Outputs: append([]string(nil), raw.Outputs...),
	}
	if doc.Name == "" {
		doc.Name = raw.ID
	}

	for _, v := range raw.Variables {
		typ, err := parseValueTypeJSON(v.Type)
		if err != nil {
			return nil, nil, newLoadError(path, errors.Wrapf(err, "variable %q", v.Name))
		}
		init, err := decodeInitValue(typ, v.Init)
		if err != nil {
			return nil, nil, newLoadError(path, errors.Wrapf(err, "variable %q init", v.Name))
		}
		doc.Variables = append(doc.Variables, VariableDesc{Name: v.Name, Type: typ, Init: init})
	}

	for _, s := range raw.States {
		doc.States = append(doc.States, StateDesc{ID: StateID(s.ID), Initial: s.Initial, OnEnter: s.OnEnter})
	}

	for _, t := range raw.Transitions {
		delay, err := decodeDelayJSON(t.DelayMs)
		if err != nil {
			return nil, nil, newLoadError(path, errors.Wrapf(err, "transition %s->%s", t.From, t.To))
		}
		doc.Transitions = append(doc.Transitions, TransitionDesc{
			From:    StateID(t.From),
			To:      StateID(t.To),
			Trigger: t.Trigger,
			Guard:   t.Guard,
			Delay:   delay,
		})
	}

	warn := validateDocument(doc)
	return doc, warn, nil
}

// SaveDocument serializes doc to path. When pretty, the output uses
// 4-space indentation; fields at their default/empty value (initial,
// guard, trigger, comment, onEnter, ...) are elided via the struct tags
// on the wire DTOs.
func SaveDocument(doc *Document, path string, pretty bool) error {
	raw := documentJSON{
		Name:    doc.Name,
		Comment: doc.Comment,
		Inputs:  doc.Inputs,
		Outputs: doc.Outputs,
	}
	for _, v := range doc.Variables {
		initJSON, err := v.Init.MarshalJSON()
		if err != nil {
			return errors.Wrapf(err, "marshal variable %q init", v.Name)
		}
		raw.Variables = append(raw.Variables, variableDescJSON{
			Name: v.Name,
			Type: v.Type.String(),
			Init: initJSON,
		})
	}
	for _, s := range doc.States {
		raw.States = append(raw.States, stateDescJSON{ID: string(s.ID), Initial: s.Initial, OnEnter: s.OnEnter})
	}
	for _, t := range doc.Transitions {
		delayJSON, err := encodeDelayJSON(t.Delay)
		if err != nil {
			return errors.Wrapf(err, "marshal transition %s->%s delay", t.From, t.To)
		}
		raw.Transitions = append(raw.Transitions, transitionDescJSON{
			From:    string(t.From),
			To:      string(t.To),
			Trigger: t.Trigger,
			Guard:   t.Guard,
			DelayMs: delayJSON,
		})
	}

	var data []byte
	var err error
	if pretty {
		data, err = json.MarshalIndent(raw, "", "    ")
	} else {
		data, err = json.Marshal(raw)
	}
	if err != nil {
		return errors.Wrapf(err, "marshal document")
	}
	if pretty {
		data = append(data, '\n')
	}
	return os.WriteFile(path, data, 0o644)
}

func decodeInitValue(typ ValueType, raw json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		switch typ {
		case TypeInt:
			return IntValue(0), nil
		case TypeFloat:
			return FloatValue(0), nil
		case TypeBool:
			return BoolValue(false), nil
		default:
			return StringValue(""), nil
		}
	}
	switch typ {
	case TypeInt:
		var n int64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return Value{}, err
		}
		return IntValue(n), nil
	case TypeFloat:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil
	case TypeBool:
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	default:
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return StringValue(strings.Trim(string(trimmed), `"`)), nil
		}
		return StringValue(s), nil
	}
}

// decodeDelayJSON maps the polymorphic delay_ms field: absent/null ->
// Immediate, a non-negative JSON integer -> Fixed, a JSON string ->
// FromVariable.
// Anything else is a schema error.
func decodeDelayJSON(raw json.RawMessage) (Delay, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ImmediateDelay(), nil
	}
	var n int64
	if err := json.Unmarshal(trimmed, &n); err == nil {
		if n < 0 {
			return Delay{}, errors.Newf("delay_ms must be non-negative, got %d", n)
		}
		return FixedDelay(uint32(n)), nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return VariableDelay(s), nil
	}
	return Delay{}, errors.Newf("invalid delay_ms value %s", string(trimmed))
}

func encodeDelayJSON(d Delay) (json.RawMessage, error) {
	switch d.Kind {
	case DelayFixed:
		return json.Marshal(d.FixedMs)
	case DelayFromVariable:
		return json.Marshal(d.VarName)
	default: // DelayImmediate: elided by the omitempty tag on DelayMs.
		return nil, nil
	}
}

var valueofPattern = regexp.MustCompile(`valueof\("([^"]*)"\)`)

func extractValueofSymbols(guard string) []string {
	if guard == "" {
		return nil
	}
	matches := valueofPattern.FindAllStringSubmatch(guard, -1)
	syms := make([]string, 0, len(matches))
	for _, m := range matches {
		syms = append(syms, m[1])
	}
	return syms
}

// validateDocument runs the three static checks from §4.2 over every
// transition in document order, recording every finding but returning
// only the first as the primary warning (All carries every finding,
// the first included).
func validateDocument(doc *Document) *LoadWarning {
	inputSet := toSet(doc.Inputs)
	varSet := make(map[string]bool, len(doc.Variables))
	for _, v := range doc.Variables {
		varSet[v.Name] = true
	}

	var all []string
	var first *LoadWarning
	record := func(code WarningCode, msg string) {
		all = append(all, msg)
		if first == nil {
			first = &LoadWarning{Code: code, Message: msg}
		}
	}

	for _, t := range doc.Transitions {
		if t.Guard != "" && t.Trigger == "" {
			record(WarnGuardWithoutTrigger, fmt.Sprintf("guard without trigger in transition %s->%s", t.From, t.To))
		}
		if t.Trigger != "" && !inputSet[t.Trigger] {
			record(WarnUnknownTrigger, fmt.Sprintf("Unknown trigger `%s` in transition %s->%s", t.Trigger, t.From, t.To))
		}
		for _, sym := range extractValueofSymbols(t.Guard) {
			if !inputSet[sym] && !varSet[sym] {
				record(WarnUnknownSymbol, fmt.Sprintf("unknown symbol `%s` in guard of transition %s->%s", sym, t.From, t.To))
			}
		}
	}

	if first == nil {
		return nil
	}
	first.All = all
	return first
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
