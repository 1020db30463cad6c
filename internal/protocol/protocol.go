// Package protocol defines the message vocabulary exchanged between the
// service bridge goroutine and the session goroutine. Commands travel from
// the session to the bridge over a bounded channel; events travel back over
// an unbounded queue. Neither side shares mutable state with the other.
package protocol

import "strings"

// Direction tells whether a port consumes or produces data.
type Direction uint8

const (
	// DirectionInput receives data.
	DirectionInput Direction = iota
	// DirectionOutput sends data.
	DirectionOutput
)

func (d Direction) String() string {
	if d == DirectionOutput {
		return "output"
	}
	return "input"
}

// ParseDirection maps the registry's "port.direction" property to a
// Direction. The second return value is false for anything other than
// "in" or "out"; callers drop such ports entirely.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "in":
		return DirectionInput, true
	case "out":
		return DirectionOutput, true
	default:
		return DirectionInput, false
	}
}

// MediaType is the kind of media a port carries.
type MediaType uint8

const (
	MediaAudio MediaType = iota
	MediaMidi
	MediaVideo
	MediaUnknown
)

func (m MediaType) String() string {
	switch m {
	case MediaAudio:
		return "audio"
	case MediaMidi:
		return "midi"
	case MediaVideo:
		return "video"
	default:
		return "unknown"
	}
}

// MediaTypeFromDSP derives a media type from a port's DSP format property.
// An empty format yields MediaUnknown; the mirror may later refine it from
// the owning node's media class.
func MediaTypeFromDSP(format string) MediaType {
	switch {
	case strings.Contains(format, "midi"):
		return MediaMidi
	case strings.Contains(format, "video"):
		return MediaVideo
	case strings.Contains(format, "audio"), strings.Contains(format, "32 bit float"):
		return MediaAudio
	default:
		return MediaUnknown
	}
}

// LinkState is the lifecycle state of a link as reported by the service.
type LinkState uint8

const (
	LinkActive LinkState = iota
	LinkPaused
	LinkError
)

func (s LinkState) String() string {
	switch s {
	case LinkPaused:
		return "paused"
	case LinkError:
		return "error"
	default:
		return "active"
	}
}

// ParseLinkState maps the registry's link state property to a LinkState.
// Unrecognized values are treated as active.
func ParseLinkState(s string) LinkState {
	switch s {
	case "paused":
		return LinkPaused
	case "error":
		return LinkError
	default:
		return LinkActive
	}
}

// Command is a request from the session to the bridge. The command channel
// is bounded; sends may block if the bridge has stalled.
type Command interface {
	isCommand()
}

// CreateLink asks the bridge to create a link between two ports.
type CreateLink struct {
	OutputPortID uint32
	InputPortID  uint32
}

// DeleteLink asks the bridge to destroy a link by its registry id.
type DeleteLink struct {
	LinkID uint32
}

// Quit asks the bridge to exit its run loop at the next poll tick.
type Quit struct{}

func (CreateLink) isCommand() {}
func (DeleteLink) isCommand() {}
func (Quit) isCommand()       {}

// Event is a notification from the bridge to the session. Events are
// applied strictly in arrival order.
type Event interface {
	isEvent()
}

// Connected reports that the bridge established its service connection.
type Connected struct{}

// Disconnected reports an unrecoverable connection failure; the bridge
// goroutine ends after emitting it.
type Disconnected struct {
	Reason string
}

// Error reports a non-fatal command failure. The failed operation is not
// retried.
type Error struct {
	Message string
}

// NodeAdded reports a new node in the registry. Optional properties are
// empty strings when the notification did not carry them.
type NodeAdded struct {
	ID              uint32
	Name            string
	MediaClass      string
	Description     string
	ApplicationName string
}

// PortAdded reports a new port. NodeID is a soft reference: the owning
// node may not have been observed yet, or may have defaulted to 0 when the
// notification property was unparsable.
type PortAdded struct {
	ID        uint32
	NodeID    uint32
	Name      string
	Alias     string
	Direction Direction
	MediaType MediaType
	Channel   string
}

// LinkAdded reports a new link. Endpoint ids are soft references.
type LinkAdded struct {
	ID           uint32
	OutputNodeID uint32
	OutputPortID uint32
	InputNodeID  uint32
	InputPortID  uint32
	State        LinkState
}

// NodeRemoved, PortRemoved and LinkRemoved are all three broadcast for
// every registry removal, because the removal notification carries only an
// id with no type. Consumers treat removal of an unknown id as a no-op.
type NodeRemoved struct {
	ID uint32
}

type PortRemoved struct {
	ID uint32
}

type LinkRemoved struct {
	ID uint32
}

// LinkStateChanged reports a state transition on an existing link.
type LinkStateChanged struct {
	ID    uint32
	State LinkState
}

func (Connected) isEvent()        {}
func (Disconnected) isEvent()     {}
func (Error) isEvent()            {}
func (NodeAdded) isEvent()        {}
func (PortAdded) isEvent()        {}
func (LinkAdded) isEvent()        {}
func (NodeRemoved) isEvent()      {}
func (PortRemoved) isEvent()      {}
func (LinkRemoved) isEvent()      {}
func (LinkStateChanged) isEvent() {}
