package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ttyflow/backend/internal/flow"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin policy is enforced by the CORS middleware on the REST surface;
	// the stream endpoint accepts the same origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream upgrades the connection, attaches a WebSocket renderer to
// the session's flow engine, and pumps client input back into the PTY.
// One stream per session at a time; a second attach attempt gets 409.
func (s *Server) handleStream(c *gin.Context) {
	sessionID := c.Param("id")

	if _, err := s.sessions.Get(sessionID); err != nil {
		sessionError(c, err)
		return
	}

	done, err := s.sessions.Done(sessionID)
	if err != nil {
		sessionError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	renderer := &streamRenderer{conn: conn}
	eng, err := s.sessions.Attach(sessionID, renderer, s.cfg.Engine.Flow(),
		flow.WithLogger(s.log.Logger.Named("flow")),
		flow.WithObserver(s.metrics.Observer()),
	)
	if err != nil {
		renderer.control(controlMessage{Type: "error", Message: err.Error()})
		conn.Close()
		return
	}

	s.metrics.StreamsActive.Inc()
	s.log.Info("stream attached", zap.String("session_id", sessionID))

	defer func() {
		s.sessions.Detach(sessionID)
		conn.Close()
		s.metrics.StreamsActive.Dec()
		s.log.Info("stream detached", zap.String("session_id", sessionID))
	}()

	// Tell the client when the shell exits so it can stop rendering; the
	// read loop below then unblocks on the closed connection.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-done:
			// Give the last flush a frame to land before signaling exit.
			time.Sleep(s.cfg.Engine.Flow().Throttle.Debounce)
			renderer.control(controlMessage{Type: "exit"})
			conn.Close()
		case <-stop:
		}
	}()

	s.readLoop(sessionID, conn, renderer, eng)
}

// readLoop consumes client frames until the connection closes. Binary
// frames are raw terminal input; text frames carry JSON commands.
func (s *Server) readLoop(sessionID string, conn *websocket.Conn, renderer *streamRenderer, eng *flow.Engine) {
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("stream read ended", zap.String("session_id", sessionID), zap.Error(err))
			}
			return
		}

		if msgType == websocket.BinaryMessage {
			if err := s.sessions.Write(sessionID, payload); err != nil {
				return
			}
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			renderer.control(controlMessage{Type: "error", Message: "malformed message"})
			continue
		}

		switch msg.Type {
		case "input":
			if err := s.sessions.Write(sessionID, []byte(msg.Data)); err != nil {
				return
			}
		case "resize":
			if msg.Cols > 0 && msg.Rows > 0 {
				if err := s.sessions.Resize(sessionID, msg.Cols, msg.Rows); err != nil {
					s.log.Warn("resize failed", zap.String("session_id", sessionID), zap.Error(err))
				}
			}
		case "ping":
			renderer.control(controlMessage{Type: "pong"})
		default:
			renderer.control(controlMessage{Type: "error", Message: "unknown message type"})
		}

		if eng.State() == flow.StateDisposed {
			return
		}
	}
}
