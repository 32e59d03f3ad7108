package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/auth"
	"github.com/fathima-sithara/chat-relay/internal/config"
	"github.com/fathima-sithara/chat-relay/internal/gateway"
	"github.com/fathima-sithara/chat-relay/internal/metrics"
)

// SubjectLocal is the fiber locals key holding the verified token subject of
// an upgraded request.
const SubjectLocal = auth.SubjectLocal

// Dispatcher receives the decoded client frames of every session.
type Dispatcher interface {
	Dispatch(ctx context.Context, in gateway.Inbound)
	Disconnect(ctx context.Context, connID string)
}

type Options struct {
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
	SendBuffer     int
	RatePerSecond  int
	Burst          int
}

func OptionsFromConfig(c *config.Config) Options {
	return Options{
		PingInterval:   c.PingInterval,
		WriteDeadline:  c.WriteDeadline,
		MaxMessageSize: c.WS.MaxMessageSizeBytes,
		SendBuffer:     c.WS.SendBuffer,
		RatePerSecond:  c.WS.RatePerSecond,
		Burst:          c.WS.Burst,
	}
}

type Handler struct {
	hub        *Hub
	dispatcher Dispatcher
	opts       Options
	logger     *zap.Logger
}

func NewHandler(hub *Hub, dispatcher Dispatcher, opts Options, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, dispatcher: dispatcher, opts: opts, logger: logger}
}

// Serve is the fiber websocket handler. Mount it with websocket.New.
func (h *Handler) Serve(c *websocket.Conn) {
	subject, _ := c.Locals(SubjectLocal).(string)
	h.serve(c, subject)
}

// serve runs one session until the client goes away or the session is closed.
// It returns only after the writer has stopped touching the connection.
func (h *Handler) serve(c conn, subject string) {
	s := newSession(uuid.NewString(), subject, c, h.opts)
	h.hub.add(s)
	metrics.Connections.Inc()
	h.logger.Debug("session opened", zap.String("conn_id", s.ID), zap.String("subject", subject))

	ctx, cancel := context.WithCancel(context.Background())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := s.writePump(h.opts); err != nil {
			h.logger.Debug("write pump stopped", zap.String("conn_id", s.ID), zap.Error(err))
		}
	}()

	h.readLoop(ctx, s)

	s.Close()
	<-writerDone
	cancel()

	h.hub.remove(s.ID)
	h.dispatcher.Disconnect(context.Background(), s.ID)
	metrics.Connections.Dec()
	h.logger.Debug("session closed", zap.String("conn_id", s.ID))
}

func (h *Handler) readLoop(ctx context.Context, s *Session) {
	pongWait := 2 * h.opts.PingInterval
	s.conn.SetReadLimit(h.opts.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Debug("read failed", zap.String("conn_id", s.ID), zap.Error(err))
			}
			return
		}
		if s.closed() {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt != websocket.TextMessage {
			continue
		}

		var env gateway.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			metrics.InboundRejected.WithLabelValues("malformed").Inc()
			h.reply(s, "", "malformed frame")
			continue
		}
		if !s.limiter.Allow() {
			metrics.InboundRejected.WithLabelValues("rate_limited").Inc()
			h.reply(s, env.Type, "rate limit exceeded")
			continue
		}

		h.dispatcher.Dispatch(ctx, gateway.Inbound{
			ConnID:  s.ID,
			Subject: s.Subject,
			Type:    env.Type,
			Payload: env.Payload,
		})
	}
}

func (h *Handler) reply(s *Session, event, msg string) {
	frame, err := gateway.Encode(gateway.EventError, gateway.ErrorEvent{Event: event, Error: msg})
	if err != nil {
		return
	}
	_ = s.enqueue(frame)
}
