package signal

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lounge/internal/app"
	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

// Hub tracks live connections and implements core.Notifier over them.
type Hub struct {
	policy app.Policy

	mu    sync.RWMutex
	conns map[domain.ConnectionID]core.SignalConnection
}

var _ core.Notifier = (*Hub)(nil)

func NewHub(policy app.Policy) *Hub {
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	return &Hub{policy: policy, conns: make(map[domain.ConnectionID]core.SignalConnection)}
}

func (h *Hub) Register(id domain.ConnectionID, c core.SignalConnection) {
	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()
}

// Unregister removes id only if it still maps to c.
func (h *Hub) Unregister(id domain.ConnectionID, c core.SignalConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.conns[id]; ok && cur == c {
		delete(h.conns, id)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) Broadcast(msg core.Outbound) {
	frame, err := encode(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	targets := make(map[domain.ConnectionID]core.SignalConnection, len(h.conns))
	for id, c := range h.conns {
		targets[id] = c
	}
	h.mu.RUnlock()

	for id, c := range targets {
		h.deliver(id, c, frame, false)
	}
}

func (h *Hub) SendTo(id domain.ConnectionID, msg core.Outbound) error {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return core.ErrNotConnected
	}
	frame, err := encode(msg)
	if err != nil {
		return err
	}
	return h.deliver(id, c, frame, true)
}

func (h *Hub) deliver(id domain.ConnectionID, c core.SignalConnection, frame core.Frame, directed bool) error {
	err := c.TrySend(frame)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConnClosed):
		return core.ErrNotConnected
	case errors.Is(err, core.ErrBackpressure):
		switch h.policy.OnBackPressure(id, directed) {
		case app.CloseConnection:
			log.Warn().Str("module", "signal").Str("conn", string(id)).Msg("backpressure, closing connection")
			c.Close()
		case app.DropFrame:
			log.Debug().Str("module", "signal").Str("conn", string(id)).Msg("backpressure, frame dropped")
		}
	}
	return err
}

func encode(msg core.Outbound) (core.Frame, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", msg.Type).Msg("encode outbound")
		return nil, err
	}
	return b, nil
}
