package tfsm

import "time"

// DelayKind discriminates the three forms a Transition's delay may take.
type DelayKind int

const (
	// DelayImmediate fires as soon as the transition becomes eligible,
	// armed at a 1ms floor so every firing still funnels through the
	// scheduler (see the "immediate 1ms floor" design note).
	DelayImmediate DelayKind = iota
	// DelayFixed fires a fixed number of milliseconds after arming.
	DelayFixed
	// DelayFromVariable fires after the current integer value of a named
	// variable, resolved fresh at each arming.
	DelayFromVariable
)

// Delay describes when an armed Transition should fire.
type Delay struct {
	Kind     DelayKind
	FixedMs  uint32
	VarName  string
}

// ImmediateDelay returns the Immediate delay.
func ImmediateDelay() Delay { return Delay{Kind: DelayImmediate} }

// FixedDelay returns a delay fixed at ms milliseconds.
func FixedDelay(ms uint32) Delay { return Delay{Kind: DelayFixed, FixedMs: ms} }

// VariableDelay returns a delay resolved from the named variable.
func VariableDelay(name string) Delay { return Delay{Kind: DelayFromVariable, VarName: name} }

// Resolve computes the concrete duration to arm a transition carrying
// this delay, given the live variable map. A FromVariable delay whose
// variable is missing or non-numeric resolves to the 1ms floor, same as
// Immediate.
func (d Delay) Resolve(vars map[string]*Variable) time.Duration {
	switch d.Kind {
	case DelayFixed:
		return time.Duration(d.FixedMs) * time.Millisecond
	case DelayFromVariable:
		v, ok := vars[d.VarName]
		if !ok {
			return time.Millisecond
		}
		n := v.Value().Int()
		if n <= 0 {
			return time.Millisecond
		}
		return time.Duration(n) * time.Millisecond
	default: // DelayImmediate
		return time.Millisecond
	}
}

// Transition is an immutable description of one edge: an optional
// trigger name ("" matches only the internal tick event), an optional
// compiled guard, a delay, and source/destination state indices.
type Transition struct {
	Trigger string
	Guard   *CompiledGuard
	Delay   Delay
	Src     int
	Dst     int
}

// NewTransition constructs a Transition. The guard is expected to have
// already been compiled (compilation failures are fatal at construction
// time, per the script host's contract).
func NewTransition(trigger string, guard *CompiledGuard, delay Delay, src, dst int) *Transition {
	return &Transition{Trigger: trigger, Guard: guard, Delay: delay, Src: src, Dst: dst}
}

// IsTriggered reports whether this transition should be considered a
// candidate for the given incoming trigger name. An empty incomingTrigger
// represents the internal "tick" event raised after a timer fires or
// after a state change; it matches only transitions whose own Trigger is
// also empty. evalErr, if non-nil, signals a ScriptRuntimeError from
// guard evaluation — per policy the transition is treated as not
// triggered.
func (t *Transition) IsTriggered(incomingTrigger string, ctx *ScriptContext) (ok bool, evalErr error) {
	if incomingTrigger != t.Trigger {
		return false, nil
	}
	if t.Guard == nil {
		return true, nil
	}
	result, err := t.Guard.Eval(ctx)
	if err != nil {
		return false, err
	}
	return result, nil
}
