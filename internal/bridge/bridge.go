// Package bridge owns the connection to the external graph service on its
// own goroutine. Registry notifications become protocol events; commands
// from the session are polled off a bounded channel and executed against
// the live graph.
//
// The bridge goroutine is the only holder of the service connection and of
// the handles for links it created. No other goroutine touches either.
// Command execution is polled rather than receive-blocking so it
// interleaves with the connection's own traffic; the poll interval bounds
// worst-case command latency.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/vk/patchgridgo/internal/ctxlog"
	"github.com/vk/patchgridgo/internal/protocol"
	"github.com/vk/patchgridgo/internal/service"
)

// CommandQueueCap bounds the command channel. A full channel applies
// backpressure on the session if the bridge stalls.
const CommandQueueCap = 64

const defaultPollInterval = 50 * time.Millisecond

// DialFunc establishes the service connection. Production wiring passes
// service.Dial; tests inject a fake.
type DialFunc func(ctx context.Context) (service.Conn, error)

// Bridge runs the service side of the control plane.
type Bridge struct {
	dial      DialFunc
	commands  chan protocol.Command
	events    *eventQueue
	done      chan struct{}
	pollEvery time.Duration
}

// New returns a bridge ready to be started.
func New(dial DialFunc) *Bridge {
	return &Bridge{
		dial:      dial,
		commands:  make(chan protocol.Command, CommandQueueCap),
		events:    newEventQueue(),
		done:      make(chan struct{}),
		pollEvery: defaultPollInterval,
	}
}

// Commands is the send side for the session. Sends block once the channel
// holds CommandQueueCap unexecuted commands.
func (b *Bridge) Commands() chan<- protocol.Command {
	return b.commands
}

// Events is the receive side for the session. The channel is closed when
// the bridge goroutine ends.
func (b *Bridge) Events() <-chan protocol.Event {
	return b.events.Out()
}

// Start launches the bridge goroutine.
func (b *Bridge) Start(ctx context.Context) {
	go b.run(ctx)
}

// Shutdown requests the run loop to quit and blocks until it has ended.
// Safe to call when the bridge already died on a connection failure.
func (b *Bridge) Shutdown() {
	select {
	case b.commands <- protocol.Quit{}:
	case <-b.done:
	}
	<-b.done
}

func (b *Bridge) run(ctx context.Context) {
	defer close(b.done)
	defer b.events.Close()

	logger := ctxlog.FromContext(ctx)

	conn, err := b.dial(ctx)
	if err != nil {
		logger.Error("Graph service connection failed", "error", err)
		b.events.Push(protocol.Disconnected{Reason: err.Error()})
		return
	}

	// Buffered so the connection's receive path never blocks on it.
	lost := make(chan string, 1)
	conn.OnClosed(func(reason string) {
		select {
		case lost <- reason:
		default:
		}
	})
	conn.OnGlobalAdded(func(g service.Global) {
		b.handleGlobalAdded(logger, g)
	})
	conn.OnGlobalRemoved(func(id uint32) {
		// The removal notification has no entity type, so broadcast all
		// three removals; the session no-ops the two that don't apply.
		b.events.Push(protocol.NodeRemoved{ID: id})
		b.events.Push(protocol.PortRemoved{ID: id})
		b.events.Push(protocol.LinkRemoved{ID: id})
	})
	conn.OnLinkStateChanged(func(id uint32, state string) {
		b.events.Push(protocol.LinkStateChanged{ID: id, State: protocol.ParseLinkState(state)})
	})

	b.events.Push(protocol.Connected{})

	if err := conn.Sync(); err != nil {
		logger.Error("Registry sync failed", "error", err)
		b.events.Push(protocol.Disconnected{Reason: err.Error()})
		conn.Close()
		return
	}

	// Handles for links this bridge created. They keep the client-side
	// objects alive until shutdown; releasing them does not retract a
	// lingering link.
	var createdLinks []service.LinkHandle

	ticker := time.NewTicker(b.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case reason := <-lost:
			logger.Warn("Graph service connection lost", "reason", reason)
			conn.Close()
			b.events.Push(protocol.Disconnected{Reason: reason})
			return
		case <-ticker.C:
			if quit := b.drainCommands(logger, conn, &createdLinks); quit {
				for _, h := range createdLinks {
					h.Release()
				}
				conn.Close()
				return
			}
		}
	}
}

// drainCommands executes every currently queued command in FIFO order.
// It returns true when a Quit was seen.
func (b *Bridge) drainCommands(logger *slog.Logger, conn service.Conn, createdLinks *[]service.LinkHandle) bool {
	for {
		select {
		case cmd := <-b.commands:
			switch c := cmd.(type) {
			case protocol.CreateLink:
				h, err := conn.CreateLink(linkProps(c.OutputPortID, c.InputPortID))
				if err != nil {
					logger.Error("Failed to create link", "error", err)
					b.events.Push(protocol.Error{
						Message: fmt.Sprintf("Failed to create connection: %v", err),
					})
					continue
				}
				*createdLinks = append(*createdLinks, h)
			case protocol.DeleteLink:
				if err := conn.DestroyGlobal(c.LinkID); err != nil {
					logger.Error("Failed to delete link", "link_id", c.LinkID, "error", err)
					b.events.Push(protocol.Error{
						Message: fmt.Sprintf("Failed to delete connection: %v", err),
					})
				}
			case protocol.Quit:
				logger.Debug("Bridge quit requested")
				return true
			}
		default:
			return false
		}
	}
}

// linkProps builds the creation properties for a link. The linger property
// makes the service keep the link independent of handle lifetime.
func linkProps(outputPortID, inputPortID uint32) map[string]string {
	return map[string]string{
		service.PropLinkOutputPort: strconv.FormatUint(uint64(outputPortID), 10),
		service.PropLinkInputPort:  strconv.FormatUint(uint64(inputPortID), 10),
		service.PropObjectLinger:   "true",
	}
}

// handleGlobalAdded translates one registry add notification into an
// event. Properties are parsed defensively: missing numeric fields
// default to 0, a port with an unusable direction is dropped entirely.
func (b *Bridge) handleGlobalAdded(logger *slog.Logger, g service.Global) {
	switch g.Type {
	case service.ObjectNode:
		b.events.Push(protocol.NodeAdded{
			ID:              g.ID,
			Name:            propOr(g, service.PropNodeName, "Unknown"),
			MediaClass:      g.Prop(service.PropMediaClass),
			Description:     g.Prop(service.PropNodeDescription),
			ApplicationName: g.Prop(service.PropAppName),
		})
	case service.ObjectPort:
		dir, ok := protocol.ParseDirection(g.Prop(service.PropPortDirection))
		if !ok {
			logger.Debug("Dropping port with unusable direction", "id", g.ID,
				"direction", g.Prop(service.PropPortDirection))
			return
		}
		b.events.Push(protocol.PortAdded{
			ID:        g.ID,
			NodeID:    numericProp(g, service.PropNodeID),
			Name:      propOr(g, service.PropPortName, "Unknown"),
			Alias:     g.Prop(service.PropPortAlias),
			Direction: dir,
			MediaType: protocol.MediaTypeFromDSP(g.Prop(service.PropFormatDSP)),
			Channel:   g.Prop(service.PropAudioChannel),
		})
	case service.ObjectLink:
		b.events.Push(protocol.LinkAdded{
			ID:           g.ID,
			OutputNodeID: numericProp(g, service.PropLinkOutputNode),
			OutputPortID: numericProp(g, service.PropLinkOutputPort),
			InputNodeID:  numericProp(g, service.PropLinkInputNode),
			InputPortID:  numericProp(g, service.PropLinkInputPort),
			State:        protocol.ParseLinkState(g.Prop(service.PropLinkState)),
		})
	default:
		// Other registry object kinds are not mirrored.
	}
}

func propOr(g service.Global, key, fallback string) string {
	if v := g.Prop(key); v != "" {
		return v
	}
	return fallback
}

// numericProp parses a numeric property, defaulting to 0 when it is
// missing or unparsable.
func numericProp(g service.Global, key string) uint32 {
	n, err := strconv.ParseUint(g.Prop(key), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}
