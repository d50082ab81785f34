package translator

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/tidwall/gjson"
)

// EventKind tags the items handed off from the upstream reader.
type EventKind int

const (
	// EventData carries one unwrapped JSON payload.
	EventData EventKind = iota
	// EventEnd marks normal end of stream.
	EventEnd
	// EventError carries a read failure; the consumer turns it into a
	// final error frame instead of truncating silently.
	EventError
)

// Event is one hand-off item from the background reader.
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
}

var dataPrefix = []byte("data: ")

// ReadFrames bridges the blocking upstream SSE body into a channel of
// tagged events. A background goroutine owns the read loop and the body;
// it unwraps each frame's "response" envelope before hand-off. The channel
// is bounded so an abandoned consumer applies backpressure, and ctx
// cancellation releases the reader.
func ReadFrames(ctx context.Context, body io.ReadCloser) <-chan Event {
	ch := make(chan Event, 16)

	go func() {
		defer close(ch)
		defer body.Close()

		send := func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

		for scanner.Scan() {
			line := scanner.Bytes()
			if !bytes.HasPrefix(line, dataPrefix) {
				continue
			}
			payload := bytes.TrimPrefix(line, dataPrefix)
			if !gjson.ValidBytes(payload) {
				continue
			}
			payload = UnwrapResponse(payload)

			// The scanner reuses its buffer across lines.
			out := make([]byte, len(payload))
			copy(out, payload)
			if !send(Event{Kind: EventData, Data: out}) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			send(Event{Kind: EventError, Err: err})
			return
		}
		send(Event{Kind: EventEnd})
	}()

	return ch
}

// UnwrapResponse strips the Code Assist {"response": ...} envelope when
// present, returning the inner object untouched otherwise.
func UnwrapResponse(payload []byte) []byte {
	if inner := gjson.GetBytes(payload, "response"); inner.Exists() {
		return []byte(inner.Raw)
	}
	return payload
}
