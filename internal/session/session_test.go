package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/patchgridgo/internal/preset"
	"github.com/vk/patchgridgo/internal/protocol"
)

type harness struct {
	session  *Session
	store    *preset.Store
	commands chan protocol.Command
	notices  []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    preset.NewStore(t.TempDir()),
		commands: make(chan protocol.Command, 64),
	}
	require.NoError(t, h.store.Load(context.Background()))
	h.session = New(Config{
		Store:       h.store,
		Commands:    h.commands,
		Notify:      func(msg string) { h.notices = append(h.notices, msg) },
		AutoConnect: true,
	})
	return h
}

// drain collects every command currently queued.
func (h *harness) drain() []protocol.Command {
	var out []protocol.Command
	for {
		select {
		case cmd := <-h.commands:
			out = append(out, cmd)
		default:
			return out
		}
	}
}

// populate builds a small graph: node 1 with output ports 10..10+outs-1,
// node 2 with input ports 20..20+ins-1.
func (h *harness) populate(outs, ins int) {
	h.session.HandleEvent(protocol.NodeAdded{ID: 1, Name: "source", MediaClass: "Audio/Source"})
	h.session.HandleEvent(protocol.NodeAdded{ID: 2, Name: "sink", MediaClass: "Audio/Sink"})
	for i := 0; i < outs; i++ {
		h.session.HandleEvent(protocol.PortAdded{
			ID:        uint32(10 + i),
			NodeID:    1,
			Name:      fmt.Sprintf("capture_%d", i+1),
			Direction: protocol.DirectionOutput,
			MediaType: protocol.MediaAudio,
		})
	}
	for i := 0; i < ins; i++ {
		h.session.HandleEvent(protocol.PortAdded{
			ID:        uint32(20 + i),
			NodeID:    2,
			Name:      fmt.Sprintf("playback_%d", i+1),
			Direction: protocol.DirectionInput,
			MediaType: protocol.MediaAudio,
		})
	}
}

func createCommands(cmds []protocol.Command) []protocol.CreateLink {
	var creates []protocol.CreateLink
	for _, cmd := range cmds {
		if c, ok := cmd.(protocol.CreateLink); ok {
			creates = append(creates, c)
		}
	}
	return creates
}

func TestConnectSelected_FanOut(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	h.populate(1, 3)

	// --- Act ---
	count := h.session.ConnectSelected([]uint32{10}, []uint32{20, 21, 22})

	// --- Assert ---
	assert.Equal(t, 3, count)
	creates := createCommands(h.drain())
	require.Len(t, creates, 3)
	for i, c := range creates {
		assert.Equal(t, uint32(10), c.OutputPortID)
		assert.Equal(t, uint32(20+i), c.InputPortID)
	}
}

func TestConnectSelected_FanIn(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	h.populate(3, 1)

	// --- Act ---
	count := h.session.ConnectSelected([]uint32{10, 11, 12}, []uint32{20})

	// --- Assert ---
	assert.Equal(t, 3, count)
	creates := createCommands(h.drain())
	require.Len(t, creates, 3)
	for i, c := range creates {
		assert.Equal(t, uint32(10+i), c.OutputPortID)
		assert.Equal(t, uint32(20), c.InputPortID)
	}
}

func TestConnectSelected_Pairwise(t *testing.T) {
	testCases := []struct {
		name string
		outs []uint32
		ins  []uint32
		want int
	}{
		{name: "equal lengths", outs: []uint32{10, 11, 12}, ins: []uint32{20, 21, 22}, want: 3},
		{name: "extra outputs ignored", outs: []uint32{10, 11, 12}, ins: []uint32{20, 21}, want: 2},
		{name: "extra inputs ignored", outs: []uint32{10, 11}, ins: []uint32{20, 21, 22}, want: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			h := newHarness(t)
			h.populate(3, 3)

			// --- Act ---
			count := h.session.ConnectSelected(tc.outs, tc.ins)

			// --- Assert ---
			assert.Equal(t, tc.want, count)
			creates := createCommands(h.drain())
			require.Len(t, creates, tc.want)
			for i, c := range creates {
				assert.Equal(t, tc.outs[i], c.OutputPortID)
				assert.Equal(t, tc.ins[i], c.InputPortID)
			}
		})
	}
}

func TestConnectSelected_EmptySelection(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	h.populate(1, 1)

	// --- Act & Assert ---
	assert.Zero(t, h.session.ConnectSelected(nil, []uint32{20}))
	assert.Zero(t, h.session.ConnectSelected([]uint32{10}, nil))
	assert.Empty(t, h.drain())
	assert.Contains(t, h.notices, "No output ports selected")
	assert.Contains(t, h.notices, "No input ports selected")
}

func TestRequestDedup_WhileInFlight(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	h.populate(1, 1)

	// --- Act ---
	first := h.session.ConnectSelected([]uint32{10}, []uint32{20})
	second := h.session.ConnectSelected([]uint32{10}, []uint32{20})

	// --- Assert ---
	assert.Equal(t, 1, first)
	assert.Zero(t, second, "in-flight pair must not be requested again")
	assert.Len(t, createCommands(h.drain()), 1)
}

func TestRequestDedup_ClearsAfterConfirmation(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	h.populate(1, 1)
	require.Equal(t, 1, h.session.ConnectSelected([]uint32{10}, []uint32{20}))
	h.drain()

	// Confirmation clears the in-flight entry.
	h.session.HandleEvent(protocol.LinkAdded{
		ID: 100, OutputNodeID: 1, OutputPortID: 10, InputNodeID: 2, InputPortID: 20,
	})

	// --- Act ---
	count := h.session.ConnectSelected([]uint32{10}, []uint32{20})

	// --- Assert ---
	assert.Equal(t, 1, count, "a confirmed pair may be requested again")
	assert.Len(t, createCommands(h.drain()), 1)
}

func TestLinkRemoved_ClearsPendingEntry(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	h.populate(1, 1)
	require.Equal(t, 1, h.session.ConnectSelected([]uint32{10}, []uint32{20}))
	h.drain()
	h.session.HandleEvent(protocol.LinkAdded{
		ID: 100, OutputNodeID: 1, OutputPortID: 10, InputNodeID: 2, InputPortID: 20,
	})

	// --- Act ---
	// The untyped removal broadcast delivers all three removal kinds.
	h.session.HandleEvent(protocol.NodeRemoved{ID: 100})
	h.session.HandleEvent(protocol.PortRemoved{ID: 100})
	h.session.HandleEvent(protocol.LinkRemoved{ID: 100})
	h.session.HandleEvent(protocol.LinkRemoved{ID: 100})

	// --- Assert ---
	assert.Zero(t, h.session.Graph().LinkCount())
	assert.Equal(t, 1, h.session.ConnectSelected([]uint32{10}, []uint32{20}))
}

func TestAutoConnect_OnPortAdded(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	require.NoError(t, h.store.Save(&preset.Preset{
		Name: "studio",
		Rules: []preset.Rule{{
			OutputNode: "source", OutputPort: "capture_1",
			InputNode: "sink", InputPort: "playback_1",
		}},
	}))
	require.True(t, h.store.Activate("studio"))

	// --- Act ---
	// The rule resolves only once the last port appears.
	h.populate(1, 1)

	// --- Assert ---
	creates := createCommands(h.drain())
	require.Len(t, creates, 1)
	assert.Equal(t, uint32(10), creates[0].OutputPortID)
	assert.Equal(t, uint32(20), creates[0].InputPortID)
	assert.Contains(t, h.notices, "Auto-connected 1 port")
}

func TestAutoConnect_Disabled(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	h.session.autoConnect = false
	require.NoError(t, h.store.Save(&preset.Preset{
		Name: "studio",
		Rules: []preset.Rule{{
			OutputNode: "source", OutputPort: "capture_1",
			InputNode: "sink", InputPort: "playback_1",
		}},
	}))
	require.True(t, h.store.Activate("studio"))

	// --- Act ---
	h.populate(1, 1)

	// --- Assert ---
	assert.Empty(t, createCommands(h.drain()))
}

func TestActivatePreset(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	h.populate(1, 1)
	require.NoError(t, h.store.Save(&preset.Preset{
		Name: "studio",
		Rules: []preset.Rule{{
			OutputNode: "source", OutputPort: "capture_1",
			InputNode: "sink", InputPort: "playback_1",
		}},
	}))
	var persisted []string
	h.session.onActiveChanged = func(name string) { persisted = append(persisted, name) }

	// --- Act ---
	err := h.session.ActivatePreset("studio")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "studio", h.store.ActiveName())
	assert.Equal(t, []string{"studio"}, persisted)
	assert.Len(t, createCommands(h.drain()), 1, "activation evaluates immediately")

	// --- Act (deactivate) ---
	h.session.DeactivatePreset()

	// --- Assert ---
	assert.Empty(t, h.store.ActiveName())
	assert.Equal(t, []string{"studio", ""}, persisted)
}

func TestActivatePreset_Unknown(t *testing.T) {
	h := newHarness(t)
	assert.Error(t, h.session.ActivatePreset("does-not-exist"))
}

func TestSavePreset_SnapshotsLinks(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	h.populate(2, 2)
	h.session.HandleEvent(protocol.LinkAdded{
		ID: 100, OutputNodeID: 1, OutputPortID: 10, InputNodeID: 2, InputPortID: 20,
	})
	h.session.HandleEvent(protocol.LinkAdded{
		ID: 101, OutputNodeID: 1, OutputPortID: 11, InputNodeID: 2, InputPortID: 21,
	})

	// --- Act ---
	saved, err := h.session.SavePreset("current")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 2, saved)
	p, ok := h.store.Get("current")
	require.True(t, ok)
	require.Len(t, p.Rules, 2)
	assert.Contains(t, p.Rules, preset.Rule{
		OutputNode: "source", OutputPort: "capture_1",
		InputNode: "sink", InputPort: "playback_1",
	})
}

func TestSavePreset_EmptyGraph(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)

	// --- Act ---
	saved, err := h.session.SavePreset("empty")

	// --- Assert ---
	require.NoError(t, err)
	assert.Zero(t, saved)
	_, ok := h.store.Get("empty")
	assert.False(t, ok, "empty snapshot must not be persisted")
	assert.Contains(t, h.notices, "No connections to save")
}

func TestLoadPreset_CountsCreatedAndSkipped(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	h.populate(2, 2)
	h.session.HandleEvent(protocol.LinkAdded{
		ID: 100, OutputNodeID: 1, OutputPortID: 10, InputNodeID: 2, InputPortID: 20,
	})
	require.NoError(t, h.store.Save(&preset.Preset{
		Name: "studio",
		Rules: []preset.Rule{
			{OutputNode: "source", OutputPort: "capture_1", InputNode: "sink", InputPort: "playback_1"},
			{OutputNode: "source", OutputPort: "capture_2", InputNode: "sink", InputPort: "playback_2"},
			{OutputNode: "source", OutputPort: "missing", InputNode: "sink", InputPort: "playback_1"},
		},
	}))
	h.drain()

	// --- Act ---
	created, skipped, err := h.session.LoadPreset("studio")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 1, created, "only the unconnected resolvable rule creates")
	assert.Equal(t, 2, skipped)
	creates := createCommands(h.drain())
	require.Len(t, creates, 1)
	assert.Equal(t, uint32(11), creates[0].OutputPortID)
	assert.Equal(t, uint32(21), creates[0].InputPortID)
}

func TestLoadPreset_Unknown(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.session.LoadPreset("does-not-exist")
	assert.Error(t, err)
}

func TestDeleteLink_SendsCommand(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)

	// --- Act ---
	h.session.DeleteLink(100)

	// --- Assert ---
	cmds := h.drain()
	require.Len(t, cmds, 1)
	assert.Equal(t, protocol.DeleteLink{LinkID: 100}, cmds[0])
}

func TestStats_TracksConnectionAndCounts(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)

	// --- Act ---
	h.session.HandleEvent(protocol.Connected{})
	h.populate(2, 1)
	h.session.HandleEvent(protocol.LinkAdded{
		ID: 100, OutputNodeID: 1, OutputPortID: 10, InputNodeID: 2, InputPortID: 20,
	})

	// --- Assert ---
	stats := h.session.Stats()
	assert.True(t, stats.Connected)
	assert.Equal(t, 2, stats.Nodes)
	assert.Equal(t, 3, stats.Ports)
	assert.Equal(t, 1, stats.Links)

	// --- Act (disconnect) ---
	h.session.HandleEvent(protocol.Disconnected{Reason: "transport error"})

	// --- Assert ---
	assert.False(t, h.session.Stats().Connected)
	assert.Contains(t, h.notices, "Disconnected: transport error")
}

func TestStats_ActivePresetFollowsActivation(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	h.populate(1, 1)
	require.NoError(t, h.store.Save(&preset.Preset{
		Name: "studio",
		Rules: []preset.Rule{{
			OutputNode: "source", OutputPort: "capture_1",
			InputNode: "sink", InputPort: "playback_1",
		}},
	}))
	assert.Empty(t, h.session.Stats().ActivePreset)

	// --- Act & Assert ---
	require.NoError(t, h.session.ActivatePreset("studio"))
	assert.Equal(t, "studio", h.session.Stats().ActivePreset)

	h.session.DeactivatePreset()
	assert.Empty(t, h.session.Stats().ActivePreset)
}

func TestStats_ReadableWhilePresetsChange(t *testing.T) {
	// --- Arrange ---
	// Stats is the only session surface other goroutines may touch; it
	// must stay readable while the session goroutine churns activation
	// state and reloads the store from disk.
	h := newHarness(t)
	h.populate(1, 1)
	require.NoError(t, h.store.Save(&preset.Preset{
		Name: "studio",
		Rules: []preset.Rule{{
			OutputNode: "source", OutputPort: "capture_1",
			InputNode: "sink", InputPort: "playback_1",
		}},
	}))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				_ = h.session.Stats()
			}
		}
	}()

	// --- Act ---
	for i := 0; i < 100; i++ {
		require.NoError(t, h.session.ActivatePreset("studio"))
		h.drain()
		h.session.DeactivatePreset()
		require.NoError(t, h.store.Load(context.Background()))
		h.session.ReevaluateActive()
	}
	close(done)
	wg.Wait()

	// --- Assert ---
	assert.Empty(t, h.session.Stats().ActivePreset)
}

func TestRun_DrainsUntilChannelCloses(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t)
	events := make(chan protocol.Event, 4)
	events <- protocol.Connected{}
	events <- protocol.NodeAdded{ID: 1, Name: "source"}
	close(events)

	// --- Act ---
	h.session.Run(events)

	// --- Assert ---
	stats := h.session.Stats()
	assert.True(t, stats.Connected)
	assert.Equal(t, 1, stats.Nodes)
}
