package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_SingleFrame(t *testing.T) {
	p := NewParser()

	frames := p.Feed("id: 7\nevent: tx.updated\ndata: {\"a\":1}\n\n")
	require.Len(t, frames, 1)
	assert.Equal(t, "7", frames[0].ID)
	assert.Equal(t, "tx.updated", frames[0].Event)
	assert.Equal(t, `{"a":1}`, frames[0].Data)
	assert.Empty(t, p.Rest())
}

func TestParser_MultipleFramesInOneChunk(t *testing.T) {
	p := NewParser()

	frames := p.Feed("event: a\ndata: 1\n\nevent: b\ndata: 2\n\n")
	require.Len(t, frames, 2)
	assert.Equal(t, "a", frames[0].Event)
	assert.Equal(t, "1", frames[0].Data)
	assert.Equal(t, "b", frames[1].Event)
	assert.Equal(t, "2", frames[1].Data)
}

func TestParser_MultiDataLinesJoined(t *testing.T) {
	p := NewParser()

	frames := p.Feed("data: line one\ndata: line two\ndata: line three\n\n")
	require.Len(t, frames, 1)
	assert.Equal(t, "line one\nline two\nline three", frames[0].Data)
}

func TestParser_CommentLinesIgnored(t *testing.T) {
	p := NewParser()

	frames := p.Feed(": keep-alive\ndata: x\n: another comment\n\n")
	require.Len(t, frames, 1)
	assert.Equal(t, "x", frames[0].Data)
}

func TestParser_CommentOnlyBlockYieldsNothing(t *testing.T) {
	p := NewParser()

	frames := p.Feed(": ping\n\n")
	assert.Empty(t, frames)
}

func TestParser_UnknownFieldOnlyBlockYieldsNothing(t *testing.T) {
	p := NewParser()

	frames := p.Feed("retry: 3000\n\n")
	assert.Empty(t, frames)
}

func TestParser_CRLFNormalized(t *testing.T) {
	p := NewParser()

	frames := p.Feed("event: a\r\ndata: 1\r\n\r\n")
	require.Len(t, frames, 1)
	assert.Equal(t, "a", frames[0].Event)
	assert.Equal(t, "1", frames[0].Data)
}

func TestParser_BareCRNormalized(t *testing.T) {
	p := NewParser()

	frames := p.Feed("event: a\rdata: 1\r\r")
	require.Len(t, frames, 1)
	assert.Equal(t, "a", frames[0].Event)
}

func TestParser_NoSpaceAfterColon(t *testing.T) {
	p := NewParser()

	frames := p.Feed("data:tight\n\n")
	require.Len(t, frames, 1)
	assert.Equal(t, "tight", frames[0].Data)
}

func TestParser_OnlyFirstSpaceConsumed(t *testing.T) {
	p := NewParser()

	frames := p.Feed("data:  padded\n\n")
	require.Len(t, frames, 1)
	assert.Equal(t, " padded", frames[0].Data)
}

// Feeding the same logical frame split at every possible byte boundary must
// produce the identical frame as feeding it whole. The CRLF variant guards
// against a "\r\n" pair split across two chunks being read as two newlines,
// which would fabricate a frame boundary mid-frame.
func TestParser_SplitToleranceAllBoundaries(t *testing.T) {
	inputs := map[string]string{
		"lf":   "id: 42\nevent: tx.updated\ndata: {\"unit\":\"EUR\"}\ndata: more\n\n",
		"crlf": "id: 42\r\nevent: tx.updated\r\ndata: x\r\ndata: y\r\n\r\n",
	}

	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			whole := NewParser().Feed(raw)
			require.Len(t, whole, 1)

			for cut := 1; cut < len(raw); cut++ {
				p := NewParser()
				frames := p.Feed(raw[:cut])
				frames = append(frames, p.Feed(raw[cut:])...)
				require.Len(t, frames, 1, "cut at %d", cut)
				assert.Equal(t, whole[0], frames[0], "cut at %d", cut)
			}
		})
	}
}

func TestParser_CRLFSplitBetweenCRAndLF(t *testing.T) {
	p := NewParser()

	frames := p.Feed("data: x\r")
	assert.Empty(t, frames)
	frames = append(frames, p.Feed("\ndata: y\r\n\r\n")...)

	require.Len(t, frames, 1)
	assert.Equal(t, "x\ny", frames[0].Data)
}

func TestParser_ThreeWaySplit(t *testing.T) {
	p := NewParser()

	var frames []Frame
	frames = append(frames, p.Feed("eve")...)
	frames = append(frames, p.Feed("nt: a\nda")...)
	frames = append(frames, p.Feed("ta: 1\n\n")...)

	require.Len(t, frames, 1)
	assert.Equal(t, "a", frames[0].Event)
	assert.Equal(t, "1", frames[0].Data)
}

func TestParser_PartialFrameStaysBuffered(t *testing.T) {
	p := NewParser()

	frames := p.Feed("event: a\ndata: 1\n")
	assert.Empty(t, frames)
	assert.Equal(t, "event: a\ndata: 1\n", p.Rest())

	frames = p.Feed("\n")
	require.Len(t, frames, 1)
	assert.Empty(t, p.Rest())
}
