package sse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(chunks ...string) []string {
	var p Parser
	var frames []string
	for _, c := range chunks {
		frames = append(frames, p.Feed(c)...)
	}
	return append(frames, p.Flush()...)
}

func TestFeedSingleChunk(t *testing.T) {
	frames, rest := Feed("", "data:Hello\ndata: world\n")
	require.Equal(t, []string{"Hello", " world"}, frames)
	assert.Empty(t, rest)
}

func TestFeedFrameSplitAcrossChunks(t *testing.T) {
	frames, rest := Feed("", "data:Hel")
	require.Empty(t, frames)
	require.Equal(t, "data:Hel", rest)

	frames, rest = Feed(rest, "lo\n")
	require.Equal(t, []string{"Hello"}, frames)
	assert.Empty(t, rest)
}

func TestFeedSplitMidMarker(t *testing.T) {
	// The marker itself can straddle a chunk boundary.
	assert.Equal(t, []string{"hello"}, collect("da", "ta:hello\n"))
}

func TestFeedMultipleFramesOneChunk(t *testing.T) {
	frames, rest := Feed("", "data:a\ndata:b\ndata:c\n")
	assert.Equal(t, []string{"a", "b", "c"}, frames)
	assert.Empty(t, rest)
}

func TestFeedIgnoresNonDataLines(t *testing.T) {
	frames, _ := Feed("", "event:ping\ndata:x\nid:7\n: comment\n")
	assert.Equal(t, []string{"x"}, frames)
}

func TestFeedDropsWhitespaceOnlyFrames(t *testing.T) {
	frames, _ := Feed("", "data:   \ndata:\ndata:ok\n")
	assert.Equal(t, []string{"ok"}, frames)
}

func TestFeedToleratesCRLF(t *testing.T) {
	frames, _ := Feed("", "data:one\r\ndata:two\r\n")
	assert.Equal(t, []string{"one", "two"}, frames)
}

func TestFlushEmitsTrailingFragment(t *testing.T) {
	// A stream may end mid-line; a recognizable fragment is
	// best-effort content.
	assert.Equal(t, []string{"tail"}, collect("data:head\ndata:tail"))

	// But a fragment without the marker is dropped.
	assert.Equal(t, []string{"head"}, collect("data:head\nda"))
}

func TestFlushEmpty(t *testing.T) {
	assert.Nil(t, Flush(""))
	assert.Nil(t, Flush("   "))
}

// Chunk boundaries must never change the decoded output: every
// split of the input produces the same frames as one chunk.
func TestChunkingInvariance(t *testing.T) {
	input := "data:He\ndata:llo,\nevent:noise\ndata: stream\ndata:!\n"
	want := collect(input)
	require.NotEmpty(t, want)

	for cut1 := 0; cut1 <= len(input); cut1++ {
		for cut2 := cut1; cut2 <= len(input); cut2 += 3 {
			got := collect(input[:cut1], input[cut1:cut2], input[cut2:])
			require.Equalf(t, want, got, "cuts at %d,%d", cut1, cut2)
		}
	}
}

func TestChunkingInvarianceBytewise(t *testing.T) {
	input := "data:a\ndata:b\ndata:final"
	want := collect(input)

	var pieces []string
	for _, r := range input {
		pieces = append(pieces, string(r))
	}
	assert.Equal(t, want, collect(pieces...))
}

func TestParserReusableAcrossFlush(t *testing.T) {
	var p Parser
	p.Feed("data:x\ndata:y")
	require.Equal(t, []string{"y"}, p.Flush())

	// Buffer is reset after Flush.
	assert.Empty(t, p.Feed("data:z"))
	assert.Equal(t, []string{"z"}, p.Flush())
}

func TestLongFrame(t *testing.T) {
	payload := strings.Repeat("x", 1<<16)
	frames, _ := Feed("", "data:"+payload+"\n")
	require.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0])
}
