package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirection(t *testing.T) {
	t.Parallel()

	dir, ok := ParseDirection("in")
	require.True(t, ok)
	assert.Equal(t, DirectionInput, dir)

	dir, ok = ParseDirection("out")
	require.True(t, ok)
	assert.Equal(t, DirectionOutput, dir)

	for _, bad := range []string{"", "input", "output", "IN", "both"} {
		_, ok := ParseDirection(bad)
		assert.False(t, ok, "direction %q should not parse", bad)
	}
}

func TestMediaTypeFromDSP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		format string
		want   MediaType
	}{
		{"32 bit float mono audio", MediaAudio},
		{"32 bit float", MediaAudio},
		{"8 bit raw midi", MediaMidi},
		{"32 bit float RGBA video", MediaVideo},
		{"", MediaUnknown},
		{"something else", MediaUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.format, func(t *testing.T) {
			assert.Equal(t, tc.want, MediaTypeFromDSP(tc.format))
		})
	}
}

func TestEnumStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "input", DirectionInput.String())
	assert.Equal(t, "output", DirectionOutput.String())
	assert.Equal(t, "audio", MediaAudio.String())
	assert.Equal(t, "midi", MediaMidi.String())
	assert.Equal(t, "video", MediaVideo.String())
	assert.Equal(t, "unknown", MediaUnknown.String())
	assert.Equal(t, "active", LinkActive.String())
	assert.Equal(t, "paused", LinkPaused.String())
	assert.Equal(t, "error", LinkError.String())
}

func TestParseLinkState(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LinkPaused, ParseLinkState("paused"))
	assert.Equal(t, LinkError, ParseLinkState("error"))
	assert.Equal(t, LinkActive, ParseLinkState("active"))
	assert.Equal(t, LinkActive, ParseLinkState("anything"))
}
