package server

import (
	"bytes"
	"sync"

	"github.com/gorilla/websocket"
)

// controlMessage is a JSON frame sent to the stream client alongside the
// binary output frames.
type controlMessage struct {
	Type    string `json:"type"`
	Lines   uint32 `json:"lines,omitempty"`
	Message string `json:"message,omitempty"`
}

// clientMessage is a JSON frame received from the stream client.
type clientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// streamRenderer adapts a WebSocket connection to the flow.Renderer the
// engine writes into. Output segments travel as binary frames; scrollback
// trims travel as control frames the client applies to its own buffer.
// The mutex serializes engine writes with control frames, since a gorilla
// connection supports one concurrent writer.
type streamRenderer struct {
	mu    sync.Mutex
	conn  *websocket.Conn
	lines uint32
}

func (r *streamRenderer) Write(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return err
	}
	r.lines += uint32(bytes.Count(p, []byte{'\n'}))
	return nil
}

func (r *streamRenderer) EvictOldest(lines uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.conn.WriteJSON(controlMessage{Type: "trim", Lines: lines}); err != nil {
		return err
	}
	if r.lines > lines {
		r.lines -= lines
	} else {
		r.lines = 0
	}
	return nil
}

func (r *streamRenderer) LineCount() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines
}

// control sends a JSON control frame, serialized with output frames.
func (r *streamRenderer) control(msg controlMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn.WriteJSON(msg)
}
