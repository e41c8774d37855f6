package host

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weftwork/weft/bridge"
	"github.com/weftwork/weft/mount"
	"github.com/weftwork/weft/service"
)

type okRouter struct{}

func (okRouter) CallProcedure(_ context.Context, _, _ string, _ any, _ service.CallOptions) (service.Result, error) {
	return service.Result{Success: true, Data: "pong"}, nil
}

func newTestHost(t *testing.T) (*Server, *bridge.Bridge, *httptest.Server) {
	t.Helper()
	b := bridge.New(okRouter{}, nil)
	s := New(b, nil)
	server := httptest.NewServer(s.Router())
	t.Cleanup(server.Close)
	return s, b, server
}

func TestFrameDocumentRoundTrip(t *testing.T) {
	s, _, server := newTestHost(t)

	handle := &mount.MountedWidget{
		ID:       "mount-1-1700000000000",
		Widget:   "status-card",
		Mode:     mount.ModeSandboxed,
		Document: "<!DOCTYPE html>\n<html><body>widget</body></html>",
	}
	if err := s.Publish(handle); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	resp, err := http.Get(server.URL + "/widgets/" + handle.ID + "/frame.html")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	// the frame's content must be sandboxed by policy even when the
	// hosting page's iframe carries no sandbox attribute
	if csp := resp.Header.Get("Content-Security-Policy"); csp != "sandbox allow-scripts; frame-ancestors 'self'" {
		t.Errorf("Content-Security-Policy = %q, want script-only sandbox", csp)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != handle.Document {
		t.Errorf("body = %q, want the published document", body)
	}

	s.Withdraw(handle.ID)
	resp2, err := http.Get(server.URL + "/widgets/" + handle.ID + "/frame.html")
	if err != nil {
		t.Fatalf("GET after withdraw error = %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("status after withdraw = %d, want 404", resp2.StatusCode)
	}
}

func TestFrameDocument_ExtraSandboxTokens(t *testing.T) {
	s, _, server := newTestHost(t)

	handle := &mount.MountedWidget{
		ID:       "mount-3-1700000000001",
		Widget:   "status-card",
		Mode:     mount.ModeSandboxed,
		Document: "<!DOCTYPE html>\n<html><body>widget</body></html>",
		Sandbox:  []string{"allow-scripts", "allow-forms"},
	}
	if err := s.Publish(handle); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	resp, err := http.Get(server.URL + "/widgets/" + handle.ID + "/frame.html")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if csp := resp.Header.Get("Content-Security-Policy"); csp != "sandbox allow-scripts allow-forms; frame-ancestors 'self'" {
		t.Errorf("Content-Security-Policy = %q, want the published token list", csp)
	}
}

func TestPublish_RejectsEmbeddedMount(t *testing.T) {
	s, _, _ := newTestHost(t)

	handle := &mount.MountedWidget{ID: "mount-2-1", Mode: mount.ModeEmbedded}
	if err := s.Publish(handle); err == nil {
		t.Fatal("Publish() accepted an embedded mount")
	}
}

func TestBridgeRoute_WebsocketCall(t *testing.T) {
	_, b, server := newTestHost(t)
	session := b.Register("status-card", []string{"weather"})

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/bridge/" + session.ID + "?token=" + session.Token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(bridge.Message{
		Type: bridge.TypeServiceCall, ID: "c1", Service: "weather", Procedure: "forecast",
	}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var response bridge.Message
	if err := conn.ReadJSON(&response); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if response.ID != "c1" || response.Error != "" {
		t.Errorf("response = %+v, want successful c1", response)
	}
}

func TestBridgeRoute_BadTokenRefused(t *testing.T) {
	_, b, server := newTestHost(t)
	session := b.Register("status-card", nil)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/bridge/" + session.ID + "?token=forged"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Dial() with a forged token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %v, want 403", resp)
	}
}
