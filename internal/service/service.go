// Package service provides the connection to the external routing graph
// service. The Conn interface is what the bridge programs against; the
// socket.io implementation in this package owns the wire protocol. Nothing
// outside this package knows how the service is reached.
package service

// Registry property keys carried on global-added notifications. Values are
// strings; numeric properties are parsed by the consumer and default to 0
// when missing or unparsable.
const (
	PropNodeName        = "node.name"
	PropNodeID          = "node.id"
	PropNodeDescription = "node.description"
	PropMediaClass      = "media.class"
	PropAppName         = "application.name"
	PropPortName        = "port.name"
	PropPortAlias       = "port.alias"
	PropPortDirection   = "port.direction"
	PropFormatDSP       = "format.dsp"
	PropAudioChannel    = "audio.channel"
	PropLinkOutputNode  = "link.output.node"
	PropLinkOutputPort  = "link.output.port"
	PropLinkInputNode   = "link.input.node"
	PropLinkInputPort   = "link.input.port"
	PropLinkState       = "link.state"
	PropObjectLinger    = "object.linger"
)

// ObjectType classifies a registry global.
type ObjectType string

const (
	ObjectNode  ObjectType = "node"
	ObjectPort  ObjectType = "port"
	ObjectLink  ObjectType = "link"
	ObjectOther ObjectType = "other"
)

// Global is one add notification from the service registry.
type Global struct {
	ID    uint32
	Type  ObjectType
	Props map[string]string
}

// Prop returns the named property or the empty string.
func (g Global) Prop(key string) string {
	return g.Props[key]
}

// LinkHandle keeps a created link object alive on the client side.
// Releasing a handle does not retract an already persisted link; links are
// created with the linger property so the service keeps them regardless of
// handle lifetime.
type LinkHandle interface {
	Release()
}

// Conn is a live connection to the graph service. Callback registration
// must happen before notifications are requested via Sync; callbacks are
// invoked from the connection's receive path and must not block.
type Conn interface {
	// OnGlobalAdded registers the callback for registry add notifications.
	OnGlobalAdded(fn func(Global))

	// OnGlobalRemoved registers the callback for registry removals. The
	// notification carries only the id; the entity type is not known.
	OnGlobalRemoved(fn func(id uint32))

	// OnLinkStateChanged registers the callback for link state
	// transitions. The state arrives as the service's string form.
	OnLinkStateChanged(fn func(id uint32, state string))

	// OnClosed registers the callback invoked once when the connection is
	// lost for any reason other than a local Close.
	OnClosed(fn func(reason string))

	// Sync asks the registry to replay all current globals and begin
	// streaming changes.
	Sync() error

	// CreateLink creates a link object in the live graph from the given
	// properties and returns a handle keeping it alive.
	CreateLink(props map[string]string) (LinkHandle, error)

	// DestroyGlobal asks the service to remove a registry object by id.
	DestroyGlobal(id uint32) error

	// Close tears the connection down. Registered callbacks stop firing.
	Close() error
}
