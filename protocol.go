package tfsm

import "encoding/json"

// PeerMessage is one datagram sent from the external peer to the engine.
// DecodePeerMessage copies Name and Value from the datagram whatever the
// Type; fields absent from the datagram are left empty.
type PeerMessage struct {
	Type  string
	Name  string
	Value string
}

// DecodePeerMessage parses one inbound datagram. Malformed JSON is
// reported as a *ProtocolError; an unrecognized type is not an error —
// callers should check Type and ignore anything they don't recognize.
func DecodePeerMessage(data []byte) (*PeerMessage, error) {
	var raw struct {
		Type  string `json:"type"`
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newProtocolError(err)
	}
	return &PeerMessage{Type: raw.Type, Name: raw.Name, Value: raw.Value}, nil
}

// Dispatch applies the message to automaton per its Type, returning true
// if the message was one of the known kinds ("inject", "setVar",
// "shutdown"). Unknown types are ignored and reported as false so the
// caller can log them at debug level without treating them as errors.
func (m *PeerMessage) Dispatch(automaton *Automaton) bool {
	switch m.Type {
	case "inject":
		automaton.InjectInput(m.Name, m.Value)
		return true
	case "setVar":
		automaton.SetVariable(m.Name, m.Value)
		return true
	case "shutdown":
		automaton.RequestStop()
		return true
	default:
		return false
	}
}
