// Package msg defines the Message tuple that flows through the
// dispatcher (spec.md §3 "Message") and the small enumeration of type
// tags it carries.
package msg

import "github.com/shacorun/shaco/addr"

type Type uint8

const (
	TEXT Type = iota
	SOCKET
	REMOTE
	TIMEOUT

	// UserBase is the first type tag available to application-defined
	// codes; classes below it are reserved for the runtime itself.
	UserBase Type = 16
)

func (t Type) String() string {
	switch t {
	case TEXT:
		return "TEXT"
	case SOCKET:
		return "SOCKET"
	case REMOTE:
		return "REMOTE"
	case TIMEOUT:
		return "TIMEOUT"
	default:
		return "USER"
	}
}

// Message is the unit of delivery between contexts: source and
// destination handles, a sender-chosen session id (echoed in replies),
// a type tag, and a payload whose ownership transfers to the dispatcher
// on Push and to the recipient callback at delivery (spec.md §3).
//
// Payload carries raw bytes (TEXT, user codes, and the bytes decoded
// off a harbor frame); Event and Remote carry the two struct-typed
// payloads the glossary calls out explicitly — SOCKET ("event struct")
// and REMOTE ("envelope describing a remote-bound send") — exactly one
// of the three is populated, selected by Type.
type Message struct {
	Source  addr.Handle
	Dest    addr.Handle
	Session int32
	Type    Type
	Payload []byte
	Event   *SocketEvent
	Remote  *Remote
}

// Remote describes a REMOTE-typed envelope: a local send whose real
// destination and type are one level down, to be unwrapped by the
// harbor and re-sent across the wire (spec.md §4.5 "Outbound path").
type Remote struct {
	Dest addr.Handle
	Type Type
	Body []byte
}

// SocketEvent is the payload of a SOCKET-typed message, produced by the
// reactor and consumed by the harbor (spec.md §4.5 "_dosock").
type SocketEvent struct {
	Kind EventKind
	Sock int32
	Data []byte
	Err  error
}

type EventKind uint8

const (
	EvData EventKind = iota
	EvSockErr
)
