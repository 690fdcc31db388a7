package handshake

import (
	"time"

	"github.com/keato/btc-observer/internal/protocol"
)

// Config carries everything one handshake needs: the peer to dial, the
// identity we present, and the timeouts/policy applied along the way.
// It is read-only for the lifetime of a Machine.
type Config struct {
	// RemoteAddress is the peer's "host:port", the source of truth for
	// dialing.
	RemoteAddress string
	// UserAgent is this client's advertised user agent string, must be
	// <=256 bytes of UTF-8.
	UserAgent string
	// StartHeight is the chain tip height advertised in our version
	// message. Defaults to 0 when a caller has no chain to report.
	StartHeight int32
	// StrictVerify, when true, runs VerifyVersion against the peer's
	// decoded version message and fails the handshake on any semantic
	// violation. Defaults to true.
	StrictVerify bool
	// Magic selects the network (mainnet/testnet) magic constant used
	// for every header this handshake sends and validates.
	Magic uint32
	// ConnectTimeout bounds the TCP dial in Connecting.
	ConnectTimeout time.Duration
	// IOTimeout bounds each read or write in SendVersion, AwaitVersion,
	// SendVerAck, and AwaitVerAck.
	IOTimeout time.Duration
}

// DefaultConfig returns a Config for remoteAddress/userAgent with the
// defaults named in the wire-protocol section: mainnet magic, strict
// verification, a 10s connect timeout, and a 30s per-operation I/O
// timeout.
func DefaultConfig(remoteAddress, userAgent string) Config {
	return Config{
		RemoteAddress:  remoteAddress,
		UserAgent:      userAgent,
		StartHeight:    0,
		StrictVerify:   true,
		Magic:          protocol.MagicMainnet,
		ConnectTimeout: 10 * time.Second,
		IOTimeout:      30 * time.Second,
	}
}
