package session

import (
	"encoding/json"
	"strings"
	"sync"
)

const (
	// DoneFrame is the terminal frame of a successful session.
	DoneFrame = "DONE"
	// ErrorMarker starts the terminal frame of a failed session.
	ErrorMarker = "❌ Error: "
	// EmptyPromptWarning is sent before the error frame when the prompt is blank.
	EmptyPromptWarning = "⚠ Empty prompt provided."

	inputRequestType = "input_request"
	userInputType    = "user_input"
)

type frameKind string

const (
	frameLog          frameKind = "log"
	frameOutput       frameKind = "output"
	frameInputRequest frameKind = "input_request"
	frameDone         frameKind = "done"
	frameError        frameKind = "error"
)

type frame struct {
	kind frameKind
	data []byte
}

// structuredMessage is the JSON shape of input requests and structured replies.
type structuredMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func inputRequestFrame(question string) frame {
	data, _ := json.Marshal(structuredMessage{Type: inputRequestType, Content: question})
	return frame{kind: frameInputRequest, data: data}
}

// parseReply extracts the answer from an inbound message: the content of a
// {"type":"user_input"} object, otherwise the raw text.
func parseReply(raw []byte) string {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var msg structuredMessage
		if err := json.Unmarshal([]byte(trimmed), &msg); err == nil && msg.Type == userInputType {
			return msg.Content
		}
	}
	return string(raw)
}

// outbox is an unbounded FIFO of frames. Producers never block; after close
// further pushes are dropped.
type outbox struct {
	mu     sync.Mutex
	frames []frame
	closed bool
	notify chan struct{}
}

func newOutbox() *outbox {
	return &outbox{notify: make(chan struct{}, 1)}
}

func (o *outbox) push(f frame) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.frames = append(o.frames, f)
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return true
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// drain returns queued frames and whether the outbox is closed.
func (o *outbox) drain() ([]frame, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	frames := o.frames
	o.frames = nil
	return frames, o.closed
}
