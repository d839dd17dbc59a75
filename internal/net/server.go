package net

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server accepts websocket upgrades and runs one read loop per client.
type Server struct {
	upgrader   websocket.Upgrader
	dispatcher *Dispatcher
	log        *zap.SugaredLogger

	// onDisconnect runs after the read loop ends, before the socket is torn
	// down, so game state for the player can be unwound.
	onDisconnect func(sess *Session, conn Client)
}

// NewServer wires a dispatcher to a websocket endpoint. onDisconnect may be
// nil when no cleanup is needed.
func NewServer(d *Dispatcher, log *zap.SugaredLogger, onDisconnect func(*Session, Client)) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  MaxPacketSize,
			WriteBufferSize: MaxPacketSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		dispatcher:   d,
		log:          log,
		onDisconnect: onDisconnect,
	}
}

// ServeHTTP upgrades the request and drives the connection until it drops.
// Packets from one client are handled strictly in arrival order.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(MaxPacketSize)

	conn := NewConn(ws, s.log)
	sess := NewSession()
	s.log.Infow("client connected", "remote", conn.RemoteAddr())

	ctx := r.Context()
	for {
		pkt, err := conn.Receive()
		if err != nil {
			break
		}
		s.dispatcher.Dispatch(ctx, pkt, sess, conn)
	}

	if s.onDisconnect != nil {
		s.onDisconnect(sess, conn)
	}
	conn.Close()
	s.log.Infow("client disconnected", "remote", conn.RemoteAddr())
}
