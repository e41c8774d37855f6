package bridge

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// wsConn adapts a websocket connection to Conn. Sends go through a
// buffered channel drained by a single writer goroutine, so Send is
// safe from any goroutine. A full buffer is backpressure, not a dead
// connection, and is reported as ErrSendBufferFull.
type wsConn struct {
	writeCh chan Message
	cancel  context.CancelFunc
}

func (c *wsConn) Send(msg Message) error {
	select {
	case c.writeCh <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *wsConn) Close() error {
	c.cancel()
	return nil
}

// ServeWS upgrades an HTTP request to a websocket and attaches it to
// the given session. The token must match the one issued at
// registration; a bad token is refused before the upgrade. Blocks
// until the connection drops or the request context ends.
func (b *Bridge) ServeWS(w http.ResponseWriter, r *http.Request, sessionID, token string) {
	s, ok := b.Session(sessionID)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	if token != s.Token {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	adapted := &wsConn{writeCh: make(chan Message, 32), cancel: cancel}
	if err := b.Attach(sessionID, token, adapted); err != nil {
		b.logf("session %s: attach failed: %v", sessionID, err)
		return
	}
	defer b.Detach(sessionID, adapted)

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case out := <-adapted.writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			cancel()
			<-writerDone
			return
		}
		b.HandleMessage(ctx, sessionID, adapted, msg)
	}
}
