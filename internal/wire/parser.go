// Package wire implements framing for the engine's text event stream.
//
// The stream is a sequence of frames separated by blank lines. Within a
// frame, each line is "field: value"; recognized fields are "id", "event",
// and "data". Lines starting with ":" are comments. Multiple "data" lines
// in one frame are joined with a newline. The parser holds no domain
// knowledge - frame payloads are decoded elsewhere.
package wire

import "strings"

// Frame is one decoded stream frame. Any field may be empty.
type Frame struct {
	ID    string
	Event string
	Data  string
}

// Parser is a stateful frame scanner. Feed it chunks as they arrive off the
// connection; input split at arbitrary byte boundaries yields the same
// frames as input fed whole. Not safe for concurrent use.
type Parser struct {
	buf strings.Builder

	// sawCR is set when the previous chunk ended in "\r". A "\r\n" pair
	// split across reads must count as one newline, not two.
	sawCR bool
}

// NewParser creates an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends a chunk to the internal buffer and returns every complete
// frame now available. A frame is complete once its terminating blank line
// has arrived; a trailing partial frame stays buffered for the next chunk.
func (p *Parser) Feed(chunk string) []Frame {
	// A "\r" is taken as a newline the moment it arrives; if its matching
	// "\n" lands at the head of the next chunk, drop it so a CRLF split
	// across reads does not count as two newlines.
	if p.sawCR && strings.HasPrefix(chunk, "\n") {
		chunk = chunk[1:]
		p.sawCR = false
	}
	if chunk != "" {
		p.sawCR = strings.HasSuffix(chunk, "\r")
	}

	p.buf.WriteString(chunk)

	// Normalize CRLF and bare CR before scanning so a frame boundary is
	// always "\n\n" regardless of what the transport produced.
	text := strings.ReplaceAll(p.buf.String(), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var frames []Frame
	for {
		boundary := strings.Index(text, "\n\n")
		if boundary < 0 {
			break
		}
		block := text[:boundary]
		text = text[boundary+2:]

		if f, ok := parseBlock(block); ok {
			frames = append(frames, f)
		}
	}

	// Re-buffer the residue. A chunk may end mid-line or mid-frame; the
	// unconsumed tail is never dropped.
	p.buf.Reset()
	p.buf.WriteString(text)

	return frames
}

// Rest returns the unconsumed buffered input. Useful for tests and for
// diagnostics when a connection closes mid-frame.
func (p *Parser) Rest() string {
	return p.buf.String()
}

// parseBlock decodes one blank-line-delimited block into a frame.
// Returns false if the block contains no recognized field at all.
func parseBlock(block string) (Frame, bool) {
	var f Frame
	var dataLines []string
	seen := false

	for _, line := range strings.Split(block, "\n") {
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value := splitLine(line)
		switch field {
		case "id":
			f.ID = value
			seen = true
		case "event":
			f.Event = value
			seen = true
		case "data":
			dataLines = append(dataLines, value)
			seen = true
		}
	}

	if !seen {
		return Frame{}, false
	}

	f.Data = strings.Join(dataLines, "\n")
	return f, true
}

// splitLine splits "field: value" at the first colon. One space after the
// colon is consumed if present; a line with no colon is a field with an
// empty value.
func splitLine(line string) (string, string) {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return line, ""
	}
	field := line[:colon]
	value := line[colon+1:]
	value = strings.TrimPrefix(value, " ")
	return field, value
}
