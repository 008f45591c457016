package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/roomcoord/internal/coordinator"
	"github.com/cwrk-planet/roomcoord/internal/domain"
	"github.com/cwrk-planet/roomcoord/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Engine: то, что транспорт требует от движка комнат.
type Engine interface {
	Connect(connID, bubbleID string) error
	Disconnect(ctx context.Context, connID string)
	Dispatch(ctx context.Context, connID string, req coordinator.Request) error
}

type Options struct {
	PingEvery      time.Duration
	SendBuffer     int
	ReadLimit      int64
	AllowedOrigins []string
	RateBurst      int
	RateEvery      time.Duration
}

func (o *Options) setDefaults() {
	if o.PingEvery <= 0 {
		o.PingEvery = 15 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 20
	}
	if o.RateEvery <= 0 {
		o.RateEvery = 100 * time.Millisecond
	}
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	engine   Engine
	opts     Options
}

func NewServer(hub *Hub, engine Engine, opts Options) *Server {
	opts.setDefaults()
	policy := newOriginPolicy(opts.AllowedOrigins)

	return &Server{
		hub:    hub,
		engine: engine,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
	}
}

// HandleWS: GET /ws?token=<bubbleId>. Соединение получает свой id
// событием connected и дальше общается кадрами {type, payload}.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	bubbleID := strings.TrimSpace(r.URL.Query().Get("token"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader уже ответил клиенту
		slog.Warn("ws upgrade failed", slog.Any("err", err))
		return
	}

	c := newWsConn(uuid.NewString(), conn, s.opts.SendBuffer)
	s.hub.Add(c)
	if err := s.engine.Connect(c.id, bubbleID); err != nil {
		slog.Error("ws register failed", logger.Conn(c.id), slog.Any("err", err))
		s.hub.Remove(c)
		_ = c.Close()
		return
	}
	s.hub.Notify(c.id, domain.Event{Type: domain.EventConnected, Payload: domain.UserPayload{UserID: c.id}})
	slog.Debug("ws connected", logger.Conn(c.id), slog.String("remote", r.RemoteAddr))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop(c)
	}()
	s.readLoop(r.Context(), c)

	s.hub.Remove(c)
	_ = c.Close()
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.engine.Disconnect(ctx, c.id)
	slog.Debug("ws disconnected", logger.Conn(c.id))
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	limiter := rate.NewLimiter(rate.Every(s.opts.RateEvery), s.opts.RateBurst)

	c.conn.SetReadLimit(s.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.opts.PingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.opts.PingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read failed", logger.Conn(c.id), slog.Any("err", err))
			}
			return
		}

		op, req, err := decodeRequest(data)
		if err == nil && !limiter.Allow() {
			err = domain.ErrRateLimited
		}
		if err != nil {
			s.hub.Notify(c.id, domain.ErrorEvent(op, err))
			continue
		}
		// ошибка уже доставлена клиенту как app_error
		_ = s.engine.Dispatch(ctx, c.id, req)
	}
}

func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.opts.PingEvery)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("ws write failed", logger.Conn(c.id), slog.Any("err", err))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

type wsConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newWsConn(id string, c *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		id:     id,
		conn:   c,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

// enqueue не блокируется; false: буфер переполнен.
func (c *wsConn) enqueue(data []byte) bool {
	select {
	case <-c.closed:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
