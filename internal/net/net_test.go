package net

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"emberfall/server/internal/protocol"
)

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return ws
}

func TestDispatchRoutesByTag(t *testing.T) {
	got := make(chan []byte, 1)
	d := NewDispatcher(nil)
	d.Register(protocol.ClientTalk, func(_ context.Context, pkt []byte, _ *Session, _ Client) {
		got <- pkt
	})
	ts := httptest.NewServer(NewServer(d, nil, nil))
	defer ts.Close()

	ws := dial(t, ts)
	defer ws.Close()

	pkt := []byte{byte(protocol.ClientTalk), 0x01, 0x02}
	if err := ws.WriteMessage(websocket.BinaryMessage, pkt); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case p := <-got:
		if len(p) != 3 || p[0] != byte(protocol.ClientTalk) {
			t.Fatalf("handler received %v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestRequireAuthDropsUntilLogin(t *testing.T) {
	walked := make(chan struct{}, 4)
	d := NewDispatcher(nil)
	d.Register(protocol.ClientLogin, func(_ context.Context, _ []byte, sess *Session, _ Client) {
		if err := sess.Authenticate(7, "tester"); err != nil {
			t.Errorf("authenticate: %v", err)
		}
	})
	d.Register(protocol.ClientWalk, d.RequireAuth(func(_ context.Context, _ []byte, _ *Session, _ Client) {
		walked <- struct{}{}
	}))
	ts := httptest.NewServer(NewServer(d, nil, nil))
	defer ts.Close()

	ws := dial(t, ts)
	defer ws.Close()

	ws.WriteMessage(websocket.BinaryMessage, []byte{byte(protocol.ClientWalk), 1})
	ws.WriteMessage(websocket.BinaryMessage, []byte{byte(protocol.ClientLogin)})
	ws.WriteMessage(websocket.BinaryMessage, []byte{byte(protocol.ClientWalk), 1})

	select {
	case <-walked:
	case <-time.After(2 * time.Second):
		t.Fatal("post-login walk never dispatched")
	}
	select {
	case <-walked:
		t.Fatal("pre-login walk should have been dropped")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnknownTagAndPanicDoNotKillConnection(t *testing.T) {
	got := make(chan byte, 4)
	d := NewDispatcher(nil)
	d.Register(protocol.ClientTalk, func(_ context.Context, pkt []byte, _ *Session, _ Client) {
		got <- pkt[0]
	})
	d.Register(protocol.ClientWalk, func(_ context.Context, _ []byte, _ *Session, _ Client) {
		panic("boom")
	})
	ts := httptest.NewServer(NewServer(d, nil, nil))
	defer ts.Close()

	ws := dial(t, ts)
	defer ws.Close()

	ws.WriteMessage(websocket.BinaryMessage, []byte{0xFE})
	ws.WriteMessage(websocket.BinaryMessage, []byte{byte(protocol.ClientWalk), 1})
	ws.WriteMessage(websocket.TextMessage, []byte("ignored"))
	ws.WriteMessage(websocket.BinaryMessage, []byte{byte(protocol.ClientTalk)})

	select {
	case tag := <-got:
		if tag != byte(protocol.ClientTalk) {
			t.Fatalf("got tag %d", tag)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connection died before the final packet")
	}
}

func TestDisconnectCallbackSeesSession(t *testing.T) {
	gone := make(chan int64, 1)
	d := NewDispatcher(nil)
	d.Register(protocol.ClientLogin, func(_ context.Context, _ []byte, sess *Session, _ Client) {
		sess.Authenticate(42, "tester")
	})
	ts := httptest.NewServer(NewServer(d, nil, func(sess *Session, _ Client) {
		id, ok := sess.Close()
		if ok {
			gone <- id
		}
	}))
	defer ts.Close()

	ws := dial(t, ts)
	ws.WriteMessage(websocket.BinaryMessage, []byte{byte(protocol.ClientLogin)})
	time.Sleep(100 * time.Millisecond)
	ws.Close()

	select {
	case id := <-gone:
		if id != 42 {
			t.Fatalf("disconnect saw player %d, want 42", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback never ran")
	}
}

func TestSessionTransitions(t *testing.T) {
	s := NewSession()
	if s.Authenticated() {
		t.Fatal("fresh session should be unauthenticated")
	}
	if err := s.Authenticate(7, "alice"); err != nil {
		t.Fatalf("first authenticate: %v", err)
	}
	if err := s.Authenticate(8, "bob"); err != ErrBadTransition {
		t.Fatalf("second authenticate = %v, want ErrBadTransition", err)
	}
	if id, ok := s.UserID(); !ok || id != 7 {
		t.Fatalf("UserID = %d,%v", id, ok)
	}
	s.SetTrading(31)
	s.SetBankOpen(true)

	id, was := s.Close()
	if !was || id != 7 {
		t.Fatalf("Close = %d,%v", id, was)
	}
	if _, was := s.Close(); was {
		t.Fatal("second Close should not report a bound player")
	}
	if _, open := s.Trading(); open {
		t.Fatal("trade window should be cleared on close")
	}
	if s.BankOpen() {
		t.Fatal("bank window should be cleared on close")
	}
	if err := s.Authenticate(9, "carol"); err != ErrBadTransition {
		t.Fatal("closed session must refuse authentication")
	}
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	d := NewDispatcher(nil)
	ts := httptest.NewServer(NewServer(d, nil, nil))
	defer ts.Close()

	ws := dial(t, ts)
	defer ws.Close()

	big := make([]byte, MaxPacketSize+1)
	big[0] = byte(protocol.ClientTalk)
	ws.WriteMessage(websocket.BinaryMessage, big)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("server should drop the connection on an oversized frame")
	}
}

var _ http.Handler = (*Server)(nil)
