// Package mirror holds the session's private snapshot of the routing graph
// as observed through bridge events.
//
// The Graph is owned exclusively by the session goroutine. It is mutated
// only by applying one event at a time, strictly in arrival order, and is
// never shared across goroutines, so it needs no locking. All ids are
// assigned by the external service; the mirror never invents one.
//
// Removal is idempotent by design: the registry's removal notification
// carries no entity type, so the bridge broadcasts a removal for all three
// kinds and the mirror silently ignores the two that do not apply.
package mirror

import (
	"strings"

	"github.com/vk/patchgridgo/internal/protocol"
)

// Node is an addressable source or sink in the graph, such as an
// application stream or a device.
type Node struct {
	ID              uint32
	Name            string
	MediaClass      string
	Description     string
	ApplicationName string
}

// DisplayName returns the most human-readable name available.
func (n *Node) DisplayName() string {
	if n.Description != "" {
		return n.Description
	}
	if n.ApplicationName != "" {
		return n.ApplicationName
	}
	return n.Name
}

// Port is a directional endpoint on a node. NodeID is a soft reference:
// the owning node may not exist in the mirror due to event ordering.
type Port struct {
	ID        uint32
	NodeID    uint32
	Name      string
	Alias     string
	Direction protocol.Direction
	MediaType protocol.MediaType
	Channel   string
}

// DisplayName returns the port alias if present, otherwise its name.
func (p *Port) DisplayName() string {
	if p.Alias != "" {
		return p.Alias
	}
	return p.Name
}

// Link connects one output port to one input port. Endpoint ids are soft
// references subject to the same ordering caveat as Port.NodeID.
type Link struct {
	ID           uint32
	OutputNodeID uint32
	OutputPortID uint32
	InputNodeID  uint32
	InputPortID  uint32
	State        protocol.LinkState
}

// Graph is the in-memory mirror of the registry's nodes, ports and links.
type Graph struct {
	nodes map[uint32]*Node
	ports map[uint32]*Port
	links map[uint32]*Link
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[uint32]*Node),
		ports: make(map[uint32]*Port),
		links: make(map[uint32]*Link),
	}
}

// ApplyNodeAdded inserts or replaces the node described by the event.
func (g *Graph) ApplyNodeAdded(ev protocol.NodeAdded) *Node {
	n := &Node{
		ID:              ev.ID,
		Name:            ev.Name,
		MediaClass:      ev.MediaClass,
		Description:     ev.Description,
		ApplicationName: ev.ApplicationName,
	}
	g.nodes[n.ID] = n
	return n
}

// RemoveNode deletes a node. Removing an unknown id is a no-op.
func (g *Graph) RemoveNode(id uint32) {
	delete(g.nodes, id)
}

// ApplyPortAdded inserts or replaces the port described by the event. A
// port arriving with an unknown media type is refined from the owning
// node's media class when that node is already present.
func (g *Graph) ApplyPortAdded(ev protocol.PortAdded) *Port {
	p := &Port{
		ID:        ev.ID,
		NodeID:    ev.NodeID,
		Name:      ev.Name,
		Alias:     ev.Alias,
		Direction: ev.Direction,
		MediaType: ev.MediaType,
		Channel:   ev.Channel,
	}
	if p.MediaType == protocol.MediaUnknown {
		p.MediaType = g.mediaTypeFromNode(ev.NodeID, p.MediaType)
	}
	g.ports[p.ID] = p
	return p
}

// mediaTypeFromNode inspects the owning node's media class for a media
// kind. The fallback is returned when the node is absent or its class
// matches nothing.
func (g *Graph) mediaTypeFromNode(nodeID uint32, fallback protocol.MediaType) protocol.MediaType {
	n, ok := g.nodes[nodeID]
	if !ok || n.MediaClass == "" {
		return fallback
	}
	class := strings.ToLower(n.MediaClass)
	switch {
	case strings.Contains(class, "video"):
		return protocol.MediaVideo
	case strings.Contains(class, "midi"):
		return protocol.MediaMidi
	case strings.Contains(class, "audio"), strings.Contains(class, "stream"):
		return protocol.MediaAudio
	default:
		return fallback
	}
}

// RemovePort deletes a port. Removing an unknown id is a no-op.
func (g *Graph) RemovePort(id uint32) {
	delete(g.ports, id)
}

// ApplyLinkAdded inserts or replaces the link described by the event.
func (g *Graph) ApplyLinkAdded(ev protocol.LinkAdded) *Link {
	l := &Link{
		ID:           ev.ID,
		OutputNodeID: ev.OutputNodeID,
		OutputPortID: ev.OutputPortID,
		InputNodeID:  ev.InputNodeID,
		InputPortID:  ev.InputPortID,
		State:        ev.State,
	}
	g.links[l.ID] = l
	return l
}

// ApplyLinkStateChanged updates the state of an existing link. It returns
// false when the link is unknown.
func (g *Graph) ApplyLinkStateChanged(ev protocol.LinkStateChanged) bool {
	l, ok := g.links[ev.ID]
	if !ok {
		return false
	}
	l.State = ev.State
	return true
}

// RemoveLink deletes a link. Removing an unknown id is a no-op.
func (g *Graph) RemoveLink(id uint32) {
	delete(g.links, id)
}

// Node looks up a node by id.
func (g *Graph) Node(id uint32) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Port looks up a port by id.
func (g *Graph) Port(id uint32) (*Port, bool) {
	p, ok := g.ports[id]
	return p, ok
}

// Link looks up a link by id.
func (g *Graph) Link(id uint32) (*Link, bool) {
	l, ok := g.links[id]
	return l, ok
}

// PortOwner returns the node owning the given port, if both are known.
func (g *Graph) PortOwner(portID uint32) (*Node, bool) {
	p, ok := g.ports[portID]
	if !ok {
		return nil, false
	}
	n, ok := g.nodes[p.NodeID]
	return n, ok
}

// PortsOfNode returns all ports owned by a node.
func (g *Graph) PortsOfNode(nodeID uint32) []*Port {
	var out []*Port
	for _, p := range g.ports {
		if p.NodeID == nodeID {
			out = append(out, p)
		}
	}
	return out
}

// OutputPorts returns all output ports in no particular order.
func (g *Graph) OutputPorts() []*Port {
	return g.portsByDirection(protocol.DirectionOutput)
}

// InputPorts returns all input ports in no particular order.
func (g *Graph) InputPorts() []*Port {
	return g.portsByDirection(protocol.DirectionInput)
}

func (g *Graph) portsByDirection(dir protocol.Direction) []*Port {
	var out []*Port
	for _, p := range g.ports {
		if p.Direction == dir {
			out = append(out, p)
		}
	}
	return out
}

// FindPort returns the first port matching direction, port name and owning
// node name. Iteration order is arbitrary, so duplicates resolve to an
// unspecified winner.
func (g *Graph) FindPort(dir protocol.Direction, nodeName, portName string) (*Port, bool) {
	for _, p := range g.ports {
		if p.Direction != dir || p.Name != portName {
			continue
		}
		if n, ok := g.nodes[p.NodeID]; ok && n.Name == nodeName {
			return p, true
		}
	}
	return nil, false
}

// LinkExists reports whether any link connects the given port pair.
func (g *Graph) LinkExists(outputPortID, inputPortID uint32) bool {
	_, ok := g.FindLink(outputPortID, inputPortID)
	return ok
}

// FindLink returns the link connecting the given port pair, if any.
func (g *Graph) FindLink(outputPortID, inputPortID uint32) (*Link, bool) {
	for _, l := range g.links {
		if l.OutputPortID == outputPortID && l.InputPortID == inputPortID {
			return l, true
		}
	}
	return nil, false
}

// Links returns all links in no particular order.
func (g *Graph) Links() []*Link {
	out := make([]*Link, 0, len(g.links))
	for _, l := range g.links {
		out = append(out, l)
	}
	return out
}

// NodeCount reports the number of known nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// PortCount reports the number of known ports.
func (g *Graph) PortCount() int { return len(g.ports) }

// LinkCount reports the number of known links.
func (g *Graph) LinkCount() int { return len(g.links) }
