package events

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BaSui01/localpilot/automation"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// HandlerOption configures the websocket handler.
type HandlerOption func(*handler)

// WithOriginPatterns allows cross-origin browser clients (host patterns as
// accepted by websocket.AcceptOptions).
func WithOriginPatterns(patterns ...string) HandlerOption {
	return func(h *handler) { h.origins = append(h.origins, patterns...) }
}

// WithPingInterval overrides the keepalive interval.
func WithPingInterval(d time.Duration) HandlerOption {
	return func(h *handler) {
		if d > 0 {
			h.ping = d
		}
	}
}

type handler struct {
	hub     *Hub
	logger  *zap.Logger
	origins []string
	ping    time.Duration
}

// Handler streams hub events to a websocket client as JSON messages.
// ?run_id= limits the stream to one run. Client messages are ignored.
func Handler(hub *Hub, logger *zap.Logger, opts ...HandlerOption) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{hub: hub, logger: logger.With(zap.String("component", "events_ws")), ping: pingInterval}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	runID := r.URL.Query().Get("run_id")
	sub := h.hub.Subscribe(ForRun(runID))
	defer sub.Close()

	// CloseRead 丢弃客户端消息，连接断开时取消 ctx
	ctx := conn.CloseRead(r.Context())
	h.logger.Debug("event stream opened", zap.String("remote", r.RemoteAddr), zap.String("run_id", runID))

	err = h.stream(ctx, conn, sub)
	switch {
	case err == nil:
		conn.Close(websocket.StatusGoingAway, "event hub closed")
	case errors.Is(err, context.Canceled), websocket.CloseStatus(err) != -1:
		h.logger.Debug("event stream closed by client")
	default:
		h.logger.Warn("event stream failed", zap.Error(err))
	}
}

func (h *handler) stream(ctx context.Context, conn *websocket.Conn, sub *Subscription) error {
	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		case e, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := writeEvent(ctx, conn, e); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, e automation.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}
