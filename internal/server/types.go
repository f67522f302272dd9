// Package server defines the frame types exchanged with the connection
// adapter and utility helpers reused across session and transport logic.
package server

import (
	"errors"
	"strings"
)

// FrameType distinguishes inbound text frames from everything else.
type FrameType int

const (
	FrameText FrameType = iota
	FrameBinary
)

// String returns the frame type name.
func (t FrameType) String() string {
	switch t {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Frame is one inbound message read from a client channel.
type Frame struct {
	Type FrameType
	Data []byte
}

// binaryFrameReason is sent in the close frame when a client sends binary data.
const binaryFrameReason = "only text messages are allowed"

// ErrBinaryFrame marks a session closed for sending a non-text frame.
var ErrBinaryFrame = errors.New(binaryFrameReason)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
