// Package sse decodes a raw text-event-stream body into discrete
// frames. The backend emits one `data:<text>` line per frame with no
// terminator sentinel; end of the stream is end of the reply.
package sse

import "strings"

// marker is the line prefix identifying a data frame. Lines without
// it are ignored.
const marker = "data:"

// Feed consumes one raw chunk and returns the complete frames it
// finished, together with the new buffer to carry into the next call.
// It is a pure function of (buffer, chunk): the trailing line of the
// combined input may still be incomplete and is re-buffered rather
// than emitted.
func Feed(buffer, chunk string) (frames []string, rest string) {
	data := buffer + chunk

	lines := strings.Split(data, "\n")
	rest = lines[len(lines)-1]

	for _, line := range lines[:len(lines)-1] {
		if frame, ok := decodeLine(line); ok {
			frames = append(frames, frame)
		}
	}
	return frames, rest
}

// Flush drains the buffer at end of stream. Any remaining complete
// lines become frames; a trailing fragment that already carries the
// marker prefix is emitted as best-effort content, since the stream
// terminator is the only end-of-reply signal the protocol has.
func Flush(buffer string) []string {
	if strings.TrimSpace(buffer) == "" {
		return nil
	}

	var frames []string
	for _, line := range strings.Split(buffer, "\n") {
		if frame, ok := decodeLine(line); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

// decodeLine strips the marker prefix from a single line. Frames
// whose content is only whitespace are dropped, matching the
// backend's keep-alive padding behavior.
func decodeLine(line string) (string, bool) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, marker) {
		return "", false
	}
	frame := line[len(marker):]
	if strings.TrimSpace(frame) == "" {
		return "", false
	}
	return frame, true
}

// Parser holds the carry-over buffer for a stream read loop. It is a
// thin stateful wrapper over Feed/Flush for callers that read a body
// chunk by chunk.
type Parser struct {
	buffer string
}

// Feed consumes one chunk and returns any completed frames.
func (p *Parser) Feed(chunk string) []string {
	frames, rest := Feed(p.buffer, chunk)
	p.buffer = rest
	return frames
}

// Flush drains the remaining buffer at end of stream.
func (p *Parser) Flush() []string {
	frames := Flush(p.buffer)
	p.buffer = ""
	return frames
}
