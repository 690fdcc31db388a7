package handshake

import "github.com/keato/btc-observer/internal/protocol"

// ConnectionInfo is created before the state machine starts and lives
// for the duration of one handshake. Version is nil before AwaitVersion
// completes and is set exactly once, never overwritten afterward.
type ConnectionInfo struct {
	PublicAddress string
	Version       *protocol.VersionMessage
}
