package app

import "github.com/dkeye/Lounge/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	CloseConnection
)

// Policy decides what happens when a connection's send buffer is full.
// directed is true for sends addressed to that connection alone.
type Policy interface {
	OnBackPressure(conn domain.ConnectionID, directed bool) BackpressureAction
}

// SimplePolicy drops broadcast frames and closes connections that cannot
// take a frame meant only for them.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ domain.ConnectionID, directed bool) BackpressureAction {
	if directed {
		return CloseConnection
	}
	return DropFrame
}
