package ws

import (
	"context"
	"net/http"
	"time"

	"codementor/internal/ident"
	"codementor/internal/model"
	"codementor/internal/service"

	"github.com/gorilla/websocket"
	"goa.design/clue/log"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Dispatcher receives frames and close events. Both methods run on the loop.
type Dispatcher interface {
	HandleMessage(ctx context.Context, conn service.Conn, raw []byte)
	HandleClose(ctx context.Context, conn service.Conn)
}

// Options tunes per-connection limits
type Options struct {
	MaxMessageBytes   int64
	MessagesPerSecond float64
	Burst             int
	SendBuffer        int
	CheckOrigin       func(r *http.Request) bool
}

// Handler upgrades HTTP requests and pumps frames between the socket and
// the coordinator loop.
type Handler struct {
	hub      *Hub
	loop     service.Loop
	dispatch Dispatcher
	opts     Options
	upgrader websocket.Upgrader
	logCtx   context.Context
}

// NewHandler creates a new WebSocket handler
func NewHandler(logCtx context.Context, hub *Hub, loop service.Loop, dispatch Dispatcher, opts Options) *Handler {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 64 * 1024
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = 40
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Handler{
		hub:      hub,
		loop:     loop,
		dispatch: dispatch,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logCtx: logCtx,
	}
}

// ServeHTTP handles GET /ws
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error(h.logCtx, err, log.KV{K: "msg", V: "websocket upgrade"})
		return
	}

	conn := NewConnection(ident.NewConnID(), h.opts.SendBuffer)
	h.hub.Register(conn)
	ctx := log.With(h.logCtx, log.KV{K: "conn", V: conn.ID()}, log.KV{K: "remote", V: r.RemoteAddr})
	log.Info(ctx, log.KV{K: "msg", V: "client connected"})

	go h.writePump(ctx, wsConn, conn)
	go h.readPump(ctx, wsConn, conn)
}

func (h *Handler) readPump(ctx context.Context, wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		conn.Close()
		h.loop.Post(func(loopCtx context.Context) {
			h.dispatch.HandleClose(loopCtx, conn)
		})
		wsConn.Close()
		log.Info(ctx, log.KV{K: "msg", V: "client disconnected"})
	}()

	limiter := rate.NewLimiter(rate.Limit(h.opts.MessagesPerSecond), h.opts.Burst)
	wsConn.SetReadLimit(h.opts.MaxMessageBytes)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error(ctx, err, log.KV{K: "msg", V: "websocket read"})
			}
			return
		}
		if !limiter.Allow() {
			conn.Send(model.ErrorMsg{Message: "Rate limit exceeded"})
			continue
		}
		h.loop.Post(func(loopCtx context.Context) {
			h.dispatch.HandleMessage(loopCtx, conn, data)
		})
	}
}

func (h *Handler) writePump(ctx context.Context, wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message := <-conn.send:
			if err := writeFrame(wsConn, message); err != nil {
				return
			}

		case <-conn.Done():
			// Flush what was queued before Close, e.g. a kick notice.
			for {
				select {
				case message := <-conn.send:
					if err := writeFrame(wsConn, message); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			wsConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug(ctx, log.KV{K: "msg", V: "ping failed"}, log.KV{K: "err", V: err.Error()})
				return
			}
		}
	}
}

func writeFrame(wsConn *websocket.Conn, message []byte) error {
	wsConn.SetWriteDeadline(time.Now().Add(writeWait))
	w, err := wsConn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	w.Write(message)
	return w.Close()
}
