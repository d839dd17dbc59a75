package net

import (
	"context"

	"go.uber.org/zap"

	"emberfall/server/internal/protocol"
)

// MaxPacketSize bounds what a client may send in one frame. Anything larger
// is discarded before dispatch.
const MaxPacketSize = 1024

const previewBytes = 16

// HandlerFunc processes one inbound packet. The dispatcher guarantees the
// packet is non-empty and within size bounds before a handler runs.
type HandlerFunc func(ctx context.Context, pkt []byte, sess *Session, conn Client)

// Dispatcher routes packets to handlers by their leading tag byte. Unknown
// tags fall through to a diagnostic no-op so a misbehaving or newer client
// cannot crash the server, only fill the log.
type Dispatcher struct {
	handlers [256]HandlerFunc
	log      *zap.SugaredLogger
}

// NewDispatcher builds an empty routing table.
func NewDispatcher(log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Dispatcher{log: log}
}

// Register installs a handler for one client tag, replacing any previous one.
func (d *Dispatcher) Register(tag protocol.ClientPacket, h HandlerFunc) {
	d.handlers[byte(tag)] = h
}

// RequireAuth wraps a handler so it only runs for authenticated sessions.
// Packets from unauthenticated clients are logged and dropped.
func (d *Dispatcher) RequireAuth(h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, pkt []byte, sess *Session, conn Client) {
		if !sess.Authenticated() {
			d.log.Warnw("packet before login, dropping",
				"tag", protocol.ClientPacket(pkt[0]).String(),
				"remote", conn.RemoteAddr())
			return
		}
		h(ctx, pkt, sess, conn)
	}
}

// Dispatch routes one packet. Handler panics are recovered here so a single
// bad packet cannot take down the read loop.
func (d *Dispatcher) Dispatch(ctx context.Context, pkt []byte, sess *Session, conn Client) {
	if len(pkt) == 0 {
		d.log.Warnw("empty packet, dropping", "remote", conn.RemoteAddr())
		return
	}
	if len(pkt) > MaxPacketSize {
		d.log.Warnw("oversized packet, dropping",
			"size", len(pkt), "remote", conn.RemoteAddr())
		return
	}
	h := d.handlers[pkt[0]]
	if h == nil {
		d.unknown(pkt, conn)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorw("handler panic",
				"tag", protocol.ClientPacket(pkt[0]).String(),
				"remote", conn.RemoteAddr(),
				"panic", r)
		}
	}()
	h(ctx, pkt, sess, conn)
}

func (d *Dispatcher) unknown(pkt []byte, conn Client) {
	preview := pkt
	if len(preview) > previewBytes {
		preview = preview[:previewBytes]
	}
	d.log.Warnw("unhandled packet",
		"tag", pkt[0],
		"size", len(pkt),
		"preview", preview,
		"remote", conn.RemoteAddr())
}
