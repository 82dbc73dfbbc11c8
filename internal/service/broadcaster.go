package service

import (
	"context"

	"codementor/internal/model"

	"goa.design/clue/log"
)

// Conn is a client connection as seen by the coordinator. Implementations must
// not block in Send. Closed must report true before the transport posts
// HandleClose for the connection.
type Conn interface {
	ID() string
	Send(msg model.Outbound) error
	Close() error
	Closed() bool
}

func sameConn(a, b Conn) bool {
	return a != nil && b != nil && a.ID() == b.ID()
}

// send delivers msg to conn, logging and swallowing failures so one broken
// connection never stops a fan-out.
func send(ctx context.Context, conn Conn, msg model.Outbound) {
	if conn == nil {
		return
	}
	if err := conn.Send(msg); err != nil {
		log.Error(ctx, err, log.KV{K: "conn", V: conn.ID()}, log.KV{K: "type", V: msg.OutboundType()})
	}
}

func toMentor(ctx context.Context, s *Session, msg model.Outbound) {
	send(ctx, s.mentor, msg)
}

func toLearners(ctx context.Context, s *Session, msg model.Outbound) {
	for _, l := range s.learners.All() {
		send(ctx, l.conn, msg)
	}
}

func toEveryone(ctx context.Context, s *Session, msg model.Outbound) {
	toMentor(ctx, s, msg)
	toLearners(ctx, s, msg)
}
