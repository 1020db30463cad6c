// Package session is the consumer side of the control plane. It owns the
// graph mirror, the pending link tracker and the preset store, applies
// bridge events strictly in arrival order, and translates manual and
// preset-driven intent into commands for the bridge.
//
// Everything in this package runs on the session goroutine. The only
// piece other goroutines may touch is Stats, which reads atomic counters.
package session

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/vk/patchgridgo/internal/mirror"
	"github.com/vk/patchgridgo/internal/pending"
	"github.com/vk/patchgridgo/internal/preset"
	"github.com/vk/patchgridgo/internal/protocol"
)

// Notifier receives user-facing status text. The surrounding application
// decides how to present it.
type Notifier func(message string)

// Config wires a session together.
type Config struct {
	Logger   *slog.Logger
	Store    *preset.Store
	Commands chan<- protocol.Command

	// Notify is optional; nil discards announcements.
	Notify Notifier

	// AutoConnect gates preset evaluation on graph changes. Activation
	// and one-shot preset loads work regardless.
	AutoConnect bool

	// OnActiveChanged is optional; it fires after the active preset
	// changes, with "" for deactivation. The app layer persists it.
	OnActiveChanged func(name string)
}

// Stats is a snapshot of mirror counts and preset state safe to read from
// any goroutine.
type Stats struct {
	Nodes        int
	Ports        int
	Links        int
	Connected    bool
	ActivePreset string
}

// Session orchestrates the mirror, tracker and presets.
type Session struct {
	logger   *slog.Logger
	graph    *mirror.Graph
	tracker  *pending.Tracker
	store    *preset.Store
	commands chan<- protocol.Command

	notify          Notifier
	autoConnect     bool
	onActiveChanged func(string)

	nodeCount atomic.Int64
	portCount atomic.Int64
	linkCount atomic.Int64
	connected atomic.Bool

	// activePreset shadows the store's active name. The store itself is
	// session-owned and must never be read from other goroutines; Stats
	// readers get this copy instead.
	activePreset atomic.Value
}

// New returns a session over an empty mirror.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notify := cfg.Notify
	if notify == nil {
		notify = func(string) {}
	}
	s := &Session{
		logger:          logger,
		graph:           mirror.New(),
		tracker:         pending.New(),
		store:           cfg.Store,
		commands:        cfg.Commands,
		notify:          notify,
		autoConnect:     cfg.AutoConnect,
		onActiveChanged: cfg.OnActiveChanged,
	}
	s.syncActivePreset()
	return s
}

// syncActivePreset refreshes the cross-goroutine copy of the active
// preset name. Called on the session goroutine after any operation that
// can change the store's activation state.
func (s *Session) syncActivePreset() {
	s.activePreset.Store(s.store.ActiveName())
}

// Run drains the event channel until it closes. This is the session
// goroutine's main loop.
func (s *Session) Run(events <-chan protocol.Event) {
	for ev := range events {
		s.HandleEvent(ev)
	}
	s.logger.Debug("Event channel closed, session loop ending")
}

// HandleEvent applies one event to the mirror and runs the follow-up
// policy it triggers.
func (s *Session) HandleEvent(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.Connected:
		s.connected.Store(true)
		s.notify("Connected to graph service")
	case protocol.Disconnected:
		s.connected.Store(false)
		s.notify(fmt.Sprintf("Disconnected: %s", e.Reason))
	case protocol.Error:
		s.logger.Error("Graph service error", "message", e.Message)
		s.notify(fmt.Sprintf("Error: %s", e.Message))
	case protocol.NodeAdded:
		s.graph.ApplyNodeAdded(e)
	case protocol.NodeRemoved:
		s.graph.RemoveNode(e.ID)
	case protocol.PortAdded:
		s.graph.ApplyPortAdded(e)
		// A new port may complete a rule of the active preset.
		if s.autoConnect {
			s.autoConnectActive()
		}
	case protocol.PortRemoved:
		s.graph.RemovePort(e.ID)
	case protocol.LinkAdded:
		s.graph.ApplyLinkAdded(e)
		s.tracker.Remove(pending.Pair{OutputPortID: e.OutputPortID, InputPortID: e.InputPortID})
	case protocol.LinkRemoved:
		// Clean up a pending entry whose link vanished before the
		// session acted on its confirmation.
		if l, ok := s.graph.Link(e.ID); ok {
			s.tracker.Remove(pending.Pair{OutputPortID: l.OutputPortID, InputPortID: l.InputPortID})
		}
		s.graph.RemoveLink(e.ID)
	case protocol.LinkStateChanged:
		s.graph.ApplyLinkStateChanged(e)
	}
	s.nodeCount.Store(int64(s.graph.NodeCount()))
	s.portCount.Store(int64(s.graph.PortCount()))
	s.linkCount.Store(int64(s.graph.LinkCount()))
}

// Stats returns mirror counts. Safe from any goroutine.
func (s *Session) Stats() Stats {
	return Stats{
		Nodes:        int(s.nodeCount.Load()),
		Ports:        int(s.portCount.Load()),
		Links:        int(s.linkCount.Load()),
		Connected:    s.connected.Load(),
		ActivePreset: s.activePreset.Load().(string),
	}
}

// Graph exposes the mirror for callers running on the session goroutine.
func (s *Session) Graph() *mirror.Graph {
	return s.graph
}

// requestLink is the single create path: it refuses pairs already in
// flight, marks the pair pending before anything is sent, then enqueues
// the command. A pair whose link was already confirmed may be requested
// again; only preset evaluation filters against existing links.
func (s *Session) requestLink(outputPortID, inputPortID uint32) bool {
	pair := pending.Pair{OutputPortID: outputPortID, InputPortID: inputPortID}
	if !s.tracker.Add(pair) {
		return false
	}
	s.commands <- protocol.CreateLink{OutputPortID: outputPortID, InputPortID: inputPortID}
	return true
}

// ConnectSelected connects the selected output ports to the selected
// input ports and returns the number of requests issued.
//
// Strategies, in priority order:
//  1. one output, many inputs: fan the output out to every input
//  2. many outputs, one input: fan every output in to that input
//  3. otherwise: pairwise by list position, extras ignored
func (s *Session) ConnectSelected(outputs, inputs []uint32) int {
	if len(outputs) == 0 {
		s.notify("No output ports selected")
		return 0
	}
	if len(inputs) == 0 {
		s.notify("No input ports selected")
		return 0
	}

	count := 0
	switch {
	case len(outputs) == 1:
		for _, in := range inputs {
			if s.requestLink(outputs[0], in) {
				count++
			}
		}
	case len(inputs) == 1:
		for _, out := range outputs {
			if s.requestLink(out, inputs[0]) {
				count++
			}
		}
	default:
		pairs := min(len(outputs), len(inputs))
		for i := 0; i < pairs; i++ {
			if s.requestLink(outputs[i], inputs[i]) {
				count++
			}
		}
	}

	if count > 1 {
		s.notify(fmt.Sprintf("Created %d connections", count))
	}
	return count
}

// DeleteLink requests removal of a link. Fire and forget: the mirror
// keeps the link until the confirming LinkRemoved event arrives.
func (s *Session) DeleteLink(linkID uint32) {
	s.commands <- protocol.DeleteLink{LinkID: linkID}
}

// autoConnectActive evaluates the active preset and announces the batch.
func (s *Session) autoConnectActive() int {
	pairs := preset.Evaluate(s.store.ActiveRules(), s.graph, s.tracker)
	for _, pair := range pairs {
		s.logger.Debug("Auto-connecting ports",
			"output_port", pair.OutputPortID, "input_port", pair.InputPortID)
		s.commands <- protocol.CreateLink{
			OutputPortID: pair.OutputPortID,
			InputPortID:  pair.InputPortID,
		}
	}
	switch n := len(pairs); {
	case n == 1:
		s.notify("Auto-connected 1 port")
	case n > 1:
		s.notify(fmt.Sprintf("Auto-connected %d ports", n))
	}
	return len(pairs)
}

// ActivatePreset makes a preset the auto-connecting one and immediately
// tries to establish its connections.
func (s *Session) ActivatePreset(name string) error {
	if !s.store.Activate(name) {
		return fmt.Errorf("preset %q not found", name)
	}
	s.syncActivePreset()
	if s.onActiveChanged != nil {
		s.onActiveChanged(name)
	}
	s.autoConnectActive()
	s.notify(fmt.Sprintf("Activated preset %q", name))
	return nil
}

// DeactivatePreset clears the active preset.
func (s *Session) DeactivatePreset() {
	name := s.store.ActiveName()
	if name == "" {
		s.notify("No preset is currently active")
		return
	}
	s.store.Deactivate()
	s.syncActivePreset()
	if s.onActiveChanged != nil {
		s.onActiveChanged("")
	}
	s.notify(fmt.Sprintf("Deactivated preset %q", name))
}

// ReevaluateActive re-runs preset matching against the current mirror.
// The app layer calls this after the preset store reloaded from disk; a
// reload can also drop the active preset, so the snapshot is refreshed.
func (s *Session) ReevaluateActive() {
	s.syncActivePreset()
	if s.autoConnect && s.store.ActiveName() != "" {
		s.autoConnectActive()
	}
}

// SavePreset snapshots the current links into a named preset. Links whose
// endpoints or owning nodes cannot all be resolved are left out. The
// count of saved rules is returned; zero means nothing was written.
func (s *Session) SavePreset(name string) (int, error) {
	var rules []preset.Rule
	for _, l := range s.graph.Links() {
		out, ok := s.graph.Port(l.OutputPortID)
		if !ok {
			continue
		}
		in, ok := s.graph.Port(l.InputPortID)
		if !ok {
			continue
		}
		outNode, ok := s.graph.Node(out.NodeID)
		if !ok {
			continue
		}
		inNode, ok := s.graph.Node(in.NodeID)
		if !ok {
			continue
		}
		rules = append(rules, preset.Rule{
			OutputNode: outNode.Name,
			OutputPort: out.Name,
			InputNode:  inNode.Name,
			InputPort:  in.Name,
		})
	}

	if len(rules) == 0 {
		s.notify("No connections to save")
		return 0, nil
	}

	if err := s.store.Save(&preset.Preset{Name: name, Rules: rules}); err != nil {
		s.notify(fmt.Sprintf("Failed to save preset: %v", err))
		return 0, err
	}
	s.notify(fmt.Sprintf("Saved preset %q with %d connections", name, len(rules)))
	return len(rules), nil
}

// LoadPreset applies a preset once, without activating it. It returns how
// many creations were requested and how many rules were skipped because
// they were unresolvable, already connected or already in flight.
func (s *Session) LoadPreset(name string) (created, skipped int, err error) {
	p, ok := s.store.Get(name)
	if !ok {
		return 0, 0, fmt.Errorf("preset %q not found", name)
	}

	for _, r := range p.Rules {
		out, ok := s.graph.FindPort(protocol.DirectionOutput, r.OutputNode, r.OutputPort)
		if !ok {
			skipped++
			continue
		}
		in, ok := s.graph.FindPort(protocol.DirectionInput, r.InputNode, r.InputPort)
		if !ok {
			skipped++
			continue
		}
		if s.graph.LinkExists(out.ID, in.ID) {
			skipped++
			continue
		}
		if s.requestLink(out.ID, in.ID) {
			created++
		} else {
			skipped++
		}
	}

	switch {
	case created > 0 && skipped == 0:
		s.notify(fmt.Sprintf("Loaded preset %q: %d connections", name, created))
	case created > 0:
		s.notify(fmt.Sprintf("Loaded preset %q: %d created, %d skipped", name, created, skipped))
	case skipped > 0:
		s.notify(fmt.Sprintf("Preset %q: all %d connections already exist or unavailable", name, skipped))
	}
	return created, skipped, nil
}
