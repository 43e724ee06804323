package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lounge/internal/app/orch"
	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 32
)

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	RateLimit    int
	RateInterval time.Duration
}

// Controller upgrades HTTP requests to websocket connections and pumps
// frames between them and the orchestrator.
type Controller struct {
	Orch    *orch.Orchestrator
	Hub     *Hub
	Limiter *RateLimiter
	opts    Options
}

func NewController(o *orch.Orchestrator, hub *Hub, opts Options) *Controller {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 30 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 64 << 10
	}
	return &Controller{
		Orch:    o,
		Hub:     hub,
		Limiter: NewRateLimiter(opts.RateLimit, opts.RateInterval, nil),
		opts:    opts,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal serves one websocket. ctx bounds the connection's lifetime
// beyond the HTTP handler.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	client := orch.Client{
		Conn:  domain.ConnectionID(uuid.NewString()),
		Token: c.GetString("client_token"),
	}
	conn := newWsConn(client.Conn, ws, sendBuffer)
	ctl.Hub.Register(client.Conn, conn)
	log.Info().Str("module", "signal").Str("conn", string(client.Conn)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once
	done := func() {
		once.Do(func() {
			cancel()
			ctl.Hub.Unregister(client.Conn, conn)
			ctl.Limiter.Forget(client.Conn)
			conn.Close()
			ctl.Orch.Disconnect(context.WithoutCancel(ctx), client)
		})
	}

	ctl.Orch.Connect(ctx, client)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, client, conn, done)
}

func (ctl *Controller) pongWait() time.Duration {
	return ctl.opts.PingPeriod * 10 / 9
}

// writePump only closes the socket when it stops. Cleanup belongs to
// readPump, which is the only goroutine feeding events into the core, so
// Disconnect can never race an in-flight Join.
func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump channel closed")
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("ping failed")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, client orch.Client, c *WsConn, done func()) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(client.Conn)).Msg("readPump closing")
		done()
	}()

	c.ws.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	c.ws.SetPongHandler(func(string) error {
		if err := ctl.Orch.Presence.Heartbeat(ctx, client.Conn); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("conn", string(client.Conn)).Msg("pong heartbeat")
		}
		return c.ws.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(client.Conn)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		ctl.handleFrame(ctx, client, data)
	}
}

func (ctl *Controller) handleFrame(ctx context.Context, client orch.Client, data []byte) {
	if !ctl.Limiter.Allow(client.Conn) {
		ctl.reject(client.Conn, "rate_limited", "too many events")
		return
	}
	ev, err := decodeEvent(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(client.Conn)).Msg("bad frame")
		ctl.reject(client.Conn, "bad_request", err.Error())
		return
	}
	ctl.Orch.Handle(ctx, client, ev)
}

func (ctl *Controller) reject(conn domain.ConnectionID, code, msg string) {
	_ = ctl.Hub.SendTo(conn, core.ErrorEnvelope(code, msg))
}
