package bridge

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsTestServer serves the bridge at /bridge/{session}?token=... the
// way the host package routes it.
func wsTestServer(t *testing.T, b *Bridge) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimPrefix(r.URL.Path, "/bridge/")
		b.ServeWS(w, r, sessionID, r.URL.Query().Get("token"))
	}))
	t.Cleanup(server.Close)
	return server
}

func dialWS(t *testing.T, server *httptest.Server, sessionID, token string) (*websocket.Conn, *http.Response) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/bridge/" + sessionID + "?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, resp
	}
	t.Cleanup(func() { conn.Close() })
	return conn, resp
}

func TestServeWS_CallRoundTrip(t *testing.T) {
	b := New(&stubRouter{}, nil)
	s := b.Register("status-card", []string{"weather"})
	server := wsTestServer(t, b)

	conn, _ := dialWS(t, server, s.ID, s.Token)
	if conn == nil {
		t.Fatal("dial failed")
	}

	if err := conn.WriteJSON(Message{Type: TypeReady}); err != nil {
		t.Fatalf("WriteJSON(ready) error = %v", err)
	}
	if err := conn.WriteJSON(Message{
		Type: TypeServiceCall, ID: "c1", Service: "weather", Procedure: "forecast",
	}); err != nil {
		t.Fatalf("WriteJSON(call) error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var response Message
	if err := conn.ReadJSON(&response); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if response.Type != TypeServiceResponse || response.ID != "c1" {
		t.Errorf("response = %+v, want service-response c1", response)
	}
	if response.Error != "" {
		t.Errorf("Error = %q, want success", response.Error)
	}
	if !s.Ready() {
		t.Error("ready frame did not mark the session")
	}
}

func TestServeWS_BadTokenRefusedBeforeUpgrade(t *testing.T) {
	b := New(&stubRouter{}, nil)
	s := b.Register("status-card", nil)
	server := wsTestServer(t, b)

	conn, resp := dialWS(t, server, s.ID, "forged")
	if conn != nil {
		t.Fatal("dial with a forged token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %v, want 403", resp)
	}
}

func TestServeWS_UnknownSessionRefused(t *testing.T) {
	b := New(&stubRouter{}, nil)
	server := wsTestServer(t, b)

	conn, resp := dialWS(t, server, "ghost", "any")
	if conn != nil {
		t.Fatal("dial for an unknown session succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %v, want 404", resp)
	}
}

func TestWSConn_FullBufferIsNotClosed(t *testing.T) {
	c := &wsConn{writeCh: make(chan Message, 1)}

	if err := c.Send(Message{ID: "a"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	err := c.Send(Message{ID: "b"})
	if !errors.Is(err, ErrSendBufferFull) {
		t.Fatalf("error = %v, want ErrSendBufferFull", err)
	}
	if errors.Is(err, ErrConnectionClosed) {
		t.Error("backpressure reported as a closed connection")
	}
}

func TestServeWS_DisconnectDetachesSession(t *testing.T) {
	b := New(&stubRouter{}, nil)
	s := b.Register("status-card", nil)
	server := wsTestServer(t, b)

	conn, _ := dialWS(t, server, s.ID, s.Token)
	if conn == nil {
		t.Fatal("dial failed")
	}
	conn.Close()

	// the read loop notices the drop and detaches; a new attach must
	// succeed shortly after
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := b.Attach(s.ID, s.Token, &memConn{}); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("session never detached after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
