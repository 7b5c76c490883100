package tfsm

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// WarningCode classifies a non-fatal document-validation finding.
type WarningCode int

const (
	// WarnGuardWithoutTrigger: a transition has a guard but an empty trigger.
	WarnGuardWithoutTrigger WarningCode = iota
	// WarnUnknownTrigger: a transition's trigger is not a declared input.
	WarnUnknownTrigger
	// WarnUnknownSymbol: a guard references valueof("X") for an undeclared X.
	WarnUnknownSymbol
)

func (c WarningCode) String() string {
	switch c {
	case WarnGuardWithoutTrigger:
		return "guard-without-trigger"
	case WarnUnknownTrigger:
		return "unknown-trigger"
	case WarnUnknownSymbol:
		return "unknown-symbol"
	default:
		return "unknown"
	}
}

// LoadWarning is returned alongside a successfully loaded Document. Only
// the first finding encountered during validation is reported as the
// primary Message/Code; every finding (in encounter order) is retained
// in All so a caller that wants full diagnostics can log them.
type LoadWarning struct {
	Code    WarningCode
	Message string
	All     []string
}

func (w *LoadWarning) Error() string { return w.Message }

// LoadError is a fatal document-loading failure: the file could not be
// read, the JSON could not be parsed, or the parsed JSON could not be
// mapped onto the document DTO.
type LoadError struct {
	Path string
	err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s", e.Path, e.err)
}

func (e *LoadError) Unwrap() error { return e.err }

func newLoadError(path string, err error) *LoadError {
	return &LoadError{Path: path, err: errors.Wrapf(err, "load %s", path)}
}

// ScriptCompileError is raised when a guard or action source fails to
// compile. It is fatal at automaton-construction time.
type ScriptCompileError struct {
	Source string
	err    error
}

func (e *ScriptCompileError) Error() string {
	return fmt.Sprintf("compile script %q: %s", truncate(e.Source, 40), e.err)
}

func (e *ScriptCompileError) Unwrap() error { return e.err }

func newScriptCompileError(source string, err error) *ScriptCompileError {
	return &ScriptCompileError{Source: source, err: errors.Wrap(err, "script compile")}
}

// ScriptRuntimeError is raised when a compiled guard or action throws at
// evaluation time. It is always recoverable: the caller treats the
// guard as false, or for actions, logs and continues.
type ScriptRuntimeError struct {
	Source string
	err    error
}

func (e *ScriptRuntimeError) Error() string {
	return fmt.Sprintf("evaluate script %q: %s", truncate(e.Source, 40), e.err)
}

func (e *ScriptRuntimeError) Unwrap() error { return e.err }

func newScriptRuntimeError(source string, err error) *ScriptRuntimeError {
	return &ScriptRuntimeError{Source: source, err: errors.Wrap(err, "script runtime")}
}

// TransportError wraps a recoverable channel-level failure. The failure is
// logged and the channel remains installed; no health state is tracked.
type TransportError struct {
	err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %s", e.err) }
func (e *TransportError) Unwrap() error { return e.err }

func newTransportError(err error) *TransportError {
	return &TransportError{err: errors.Wrap(err, "transport")}
}

// ProtocolError wraps an unparseable or unknown peer message. The driver
// drops the datagram silently except for diagnostic logging.
type ProtocolError struct {
	err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol: %s", e.err) }
func (e *ProtocolError) Unwrap() error { return e.err }

func newProtocolError(err error) *ProtocolError {
	return &ProtocolError{err: errors.Wrap(err, "protocol")}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
