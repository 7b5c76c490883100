package tfsm

// State is a named vertex in the automaton with an optional entry
// action. States are value-like: they carry their compiled action
// closure by reference but nothing about a State changes once built.
type State struct {
	ID      StateID
	enter   *CompiledAction
	Comment string
}

// NewState builds a State with no entry action.
func NewState(id StateID) *State {
	return &State{ID: id}
}

// WithEnterAction attaches a compiled entry action to the state.
func (s *State) WithEnterAction(action *CompiledAction) *State {
	s.enter = action
	return s
}

// OnEnter runs the state's entry action against ctx, if one is set. The
// action may write outputs and mutate variables through ctx; errors are
// never fatal to the caller — see Automaton.fireTransition.
func (s *State) OnEnter(ctx *ScriptContext) error {
	if s.enter == nil {
		return nil
	}
	return s.enter.Run(ctx)
}
