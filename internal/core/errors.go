package core

import "errors"

var (
	// Packet decoding errors
	ErrPacketTooShort = errors.New("tunstack: packet too short")
	ErrBadChecksum    = errors.New("tunstack: checksum mismatch")

	// Pipeline errors
	ErrStackStopped = errors.New("tunstack: stack stopped")

	// Connection errors
	ErrConnectionClosed = errors.New("tunstack: connection closed")

	// Configuration errors
	ErrConfigInvalid = errors.New("tunstack: invalid configuration")
)
