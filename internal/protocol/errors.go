// Package protocol implements the Bitcoin P2P wire codec: the 24-byte
// message header, the version payload, CompactSize varints, the 16-byte
// IPv4-mapped-IPv6 address form, and the double-SHA-256 payload checksum.
package protocol

import "errors"

// ErrIncomplete is returned by decoders when the supplied buffer does not
// yet hold a full value. It is not a protocol error: callers read more
// bytes from the wire and retry the decode. No bytes are consumed when
// ErrIncomplete is returned.
var ErrIncomplete = errors.New("protocol: incomplete buffer")

// ErrShortBuffer is returned by CompactSize decoding when the buffer is
// too small to hold the width indicated by the discriminator byte.
var ErrShortBuffer = errors.New("protocol: short buffer")

// ErrInvalidMagic is returned when a header's magic is neither the
// mainnet nor the testnet network constant.
var ErrInvalidMagic = errors.New("protocol: invalid magic")

// ErrUnknownCommand is returned when a 12-byte command field does not
// match any member of the closed Command enum.
var ErrUnknownCommand = errors.New("protocol: unknown command")

// ErrBadLength is returned when a fixed-size field is decoded from a
// buffer of the wrong length (e.g. a 16-byte IP address).
var ErrBadLength = errors.New("protocol: bad length")

// ErrInvalidEncoding is returned when a length-prefixed string is not
// valid UTF-8.
var ErrInvalidEncoding = errors.New("protocol: invalid encoding")

// The following sentinels are returned by VerifyVersion's semantic checks
// against a decoded version message. They are wrapped with %w alongside
// field-specific detail, so callers should match with errors.Is.
var (
	ErrUnsupportedVersion  = errors.New("protocol: unsupported version")
	ErrUnsupportedServices = errors.New("protocol: unsupported services")
	ErrTimestampSkew       = errors.New("protocol: timestamp skew too large")
	ErrInvalidAddress      = errors.New("protocol: invalid address")
	ErrInvalidPort         = errors.New("protocol: invalid port")
	ErrUserAgentTooLong    = errors.New("protocol: user agent too long")
	ErrInvalidStartHeight  = errors.New("protocol: invalid start height")
)
