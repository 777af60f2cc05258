package onebot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kailas-cloud/saucebot/internal/domain/message"
	"github.com/kailas-cloud/saucebot/internal/metrics"
)

const (
	defaultQueueSize        = 64
	defaultWriteTimeout     = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// Handler reacts to one inbound message, optionally with a reply.
type Handler interface {
	Handle(ctx context.Context, ev message.Event) (message.Action, bool)
}

// Config holds OneBot connection settings.
type Config struct {
	URL               string
	AccessToken       string
	OutboundQueueSize int
	WriteTimeout      time.Duration
	HandshakeTimeout  time.Duration
}

// Client is a OneBot forward WebSocket client. Each inbound message is handled
// in its own goroutine; replies go through a bounded queue drained by a single
// writer, which is the only goroutine writing data frames.
type Client struct {
	cfg       Config
	dialer    *websocket.Dialer
	logger    *zap.Logger
	connected atomic.Bool
}

// New creates a OneBot client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.OutboundQueueSize <= 0 {
		cfg.OutboundQueueSize = defaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Client{
		cfg:    cfg,
		dialer: &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: cfg.HandshakeTimeout},
		logger: logger,
	}
}

// Connected reports whether a session is currently open.
func (c *Client) Connected() bool { return c.connected.Load() }

// Run dials the bridge and serves one session until the connection drops or
// ctx is canceled. In-flight handlers are canceled and awaited before it returns.
func (c *Client) Run(ctx context.Context, h Handler) error {
	header := http.Header{}
	if c.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial onebot: %w", err)
	}

	c.connected.Store(true)
	defer c.connected.Store(false)
	c.logger.Info("Connected to OneBot", zap.String("url", c.cfg.URL))

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outbox := make(chan []byte, c.cfg.OutboundQueueSize)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(sessCtx, cancel, conn, outbox)
	}()

	var handlers sync.WaitGroup
	readErr := c.readLoop(sessCtx, conn, h, outbox, &handlers)

	cancel()
	handlers.Wait()
	<-writerDone

	// Replies still queued are lost with the session.
	for range len(outbox) {
		<-outbox
		metrics.OutboundQueueDepth.Dec()
		metrics.OutboundTotal.WithLabelValues("dropped").Inc()
	}

	if ctx.Err() != nil {
		c.logger.Info("OneBot session closed")
		return ctx.Err()
	}
	c.logger.Warn("OneBot connection lost", zap.Error(readErr))
	return readErr
}

func (c *Client) readLoop(
	ctx context.Context, conn *websocket.Conn, h Handler, outbox chan<- []byte, handlers *sync.WaitGroup,
) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		d, err := decodeFrame(data)
		if err != nil {
			c.logger.Warn("Skipping undecodable frame", zap.ByteString("frame", truncate(data)), zap.Error(err))
			continue
		}
		if d.response != nil {
			c.logResponse(d.response)
			continue
		}
		if d.event == nil {
			continue
		}

		ev := *d.event
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			c.dispatch(ctx, h, ev, outbox)
		}()
	}
}

func (c *Client) dispatch(ctx context.Context, h Handler, ev message.Event, outbox chan<- []byte) {
	act, ok := h.Handle(ctx, ev)
	if !ok {
		return
	}

	data, echo, err := encodeAction(act)
	if err != nil {
		c.logger.Error("Failed to encode reply", zap.Int64("message_id", ev.MessageID), zap.Error(err))
		metrics.OutboundTotal.WithLabelValues("error").Inc()
		return
	}

	select {
	case outbox <- data:
		metrics.OutboundQueueDepth.Inc()
		c.logger.Debug("Reply queued", zap.Int64("reply_to", act.ReplyTo), zap.String("echo", echo))
	case <-ctx.Done():
		metrics.OutboundTotal.WithLabelValues("dropped").Inc()
		c.logger.Warn("Reply dropped, session closing", zap.Int64("reply_to", act.ReplyTo))
	}
}

func (c *Client) writeLoop(
	ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, outbox <-chan []byte,
) {
	defer func() { _ = conn.Close() }()

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		case data := <-outbox:
			metrics.OutboundQueueDepth.Dec()
			if err := c.write(conn, data); err != nil {
				metrics.OutboundTotal.WithLabelValues("error").Inc()
				c.logger.Error("Failed to send reply", zap.Error(err))
				cancel()
				return
			}
			metrics.OutboundTotal.WithLabelValues("sent").Inc()
		}
	}
}

func (c *Client) write(conn *websocket.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Client) logResponse(r *apiResponse) {
	if r.failed() {
		c.logger.Warn("OneBot action failed",
			zap.String("echo", r.Echo),
			zap.String("status", r.Status),
			zap.Int("retcode", r.RetCode),
			zap.String("wording", r.Wording),
		)
		return
	}
	c.logger.Debug("OneBot action ok", zap.String("echo", r.Echo))
}

// IsClosed reports whether err is a normal end of a session.
func IsClosed(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return false
}

func truncate(b []byte) []byte {
	const limit = 512
	if len(b) > limit {
		return b[:limit]
	}
	return b
}
