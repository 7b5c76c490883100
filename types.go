// Package tfsm implements a timed finite-state-machine interpreter: a
// Moore-style automaton with delayed transitions, scripted guards and
// entry actions, and a datagram channel for external monitoring and
// control.
package tfsm

import "log/slog"

// StateID identifies a state within one FSM document. Unique within the
// document; resolved to a stable integer index at automaton construction.
type StateID string

// ValueType is the declared type of a Variable or Value.
type ValueType int

const (
	TypeInt ValueType = iota
	TypeFloat
	TypeString
	TypeBool
)

func (t ValueType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Logger is the default logger used by components that are not given an
// explicit one.
var Logger = slog.Default()
