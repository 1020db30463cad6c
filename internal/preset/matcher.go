package preset

import (
	"github.com/vk/patchgridgo/internal/mirror"
	"github.com/vk/patchgridgo/internal/pending"
	"github.com/vk/patchgridgo/internal/protocol"
)

// Evaluate resolves rules against the mirror and returns the pairs whose
// creation should be requested now, marking each as pending as it is
// chosen. A rule contributes a pair only when both endpoints resolve, no
// link already connects them, and the pair is not in flight. Marking
// through the tracker also collapses duplicate rules within one batch.
//
// Endpoint resolution takes the first port matching direction, port name
// and owning-node name; with identically named ports the winner is
// arbitrary.
func Evaluate(rules []Rule, g *mirror.Graph, tracker *pending.Tracker) []pending.Pair {
	var pairs []pending.Pair
	for _, r := range rules {
		out, ok := g.FindPort(protocol.DirectionOutput, r.OutputNode, r.OutputPort)
		if !ok {
			continue
		}
		in, ok := g.FindPort(protocol.DirectionInput, r.InputNode, r.InputPort)
		if !ok {
			continue
		}
		pair := pending.Pair{OutputPortID: out.ID, InputPortID: in.ID}
		if g.LinkExists(pair.OutputPortID, pair.InputPortID) {
			continue
		}
		if !tracker.Add(pair) {
			continue
		}
		pairs = append(pairs, pair)
	}
	return pairs
}
