package core

import "errors"

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
	ErrNotConnected = errors.New("connection not found")
	ErrBackpressure = errors.New("backpressure")
)
