package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

// ProtocolVersion is the protocol version this client advertises in
// outbound version messages.
const ProtocolVersion int32 = 70015

// ServiceNodeNetwork is the NODE_NETWORK service bit: the node serves
// full blocks.
const ServiceNodeNetwork uint64 = 0x01

// minSupportedVersion/maxSupportedVersion bound VerifyVersion's version
// check.
const (
	minSupportedVersion int32 = 70001
	maxSupportedVersion int32 = 70015
)

// maxTimestampSkew is the allowed drift between a peer's advertised
// timestamp and local time, in seconds.
const maxTimestampSkew = 5400

// maxUserAgentLen is the maximum accepted user agent length in bytes.
const maxUserAgentLen = 256

// fixedVersionPrefixLength is the number of bytes in a version payload
// before the CompactSize-prefixed user agent: 4+8+8 + (8+16+2) + (8+16+2)
// + 8 = 80.
const fixedVersionPrefixLength = 80

// VersionMessage is the payload of the first message exchanged during the
// handshake. All numeric fields are little-endian on the wire except the
// two addr_*_port fields, which are big-endian per the real Bitcoin wire
// protocol (see DESIGN.md Open Question resolution).
type VersionMessage struct {
	Version             int32
	Services            uint64
	Timestamp           int64
	AddrRecvServices    uint64
	AddrRecvIP          BitcoinIpAddr
	AddrRecvPort        uint16
	AddrTransServices   uint64
	AddrTransIP         BitcoinIpAddr
	AddrTransPort       uint16
	Nonce               uint64
	UserAgent           string
	StartHeight         int32
	Relay               bool
}

// NewOutboundVersion builds the VersionMessage this client sends to open
// a handshake, per spec.md §4.E's outbound construction defaults.
func NewOutboundVersion(userAgent string, startHeight int32) (*VersionMessage, error) {
	nonce, err := randomNonce()
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return &VersionMessage{
		Version:           ProtocolVersion,
		Services:          ServiceNodeNetwork,
		Timestamp:         time.Now().Unix(),
		AddrRecvServices:  ServiceNodeNetwork,
		AddrRecvIP:        BitcoinIpAddr{},
		AddrRecvPort:      0,
		AddrTransServices: ServiceNodeNetwork,
		AddrTransIP:       BitcoinIpAddr{},
		AddrTransPort:     0,
		Nonce:             nonce,
		UserAgent:         userAgent,
		StartHeight:       startHeight,
		Relay:             false,
	}, nil
}

func randomNonce() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// EncodeVersion serializes v to its wire form.
func EncodeVersion(v *VersionMessage) ([]byte, error) {
	userAgentBytes := []byte(v.UserAgent)
	uaLen := CompactSize(len(userAgentBytes)).Encode()

	buf := make([]byte, 0, fixedVersionPrefixLength+len(uaLen)+len(userAgentBytes)+5)
	var scratch [8]byte

	putI32 := func(n int32) {
		binary.LittleEndian.PutUint32(scratch[:4], uint32(n))
		buf = append(buf, scratch[:4]...)
	}
	putU64 := func(n uint64) {
		binary.LittleEndian.PutUint64(scratch[:8], n)
		buf = append(buf, scratch[:8]...)
	}
	putI64 := func(n int64) {
		binary.LittleEndian.PutUint64(scratch[:8], uint64(n))
		buf = append(buf, scratch[:8]...)
	}
	putPortBE := func(p uint16) {
		binary.BigEndian.PutUint16(scratch[:2], p)
		buf = append(buf, scratch[:2]...)
	}

	putI32(v.Version)
	putU64(v.Services)
	putI64(v.Timestamp)

	putU64(v.AddrRecvServices)
	recvIP := v.AddrRecvIP.Encode()
	buf = append(buf, recvIP[:]...)
	putPortBE(v.AddrRecvPort)

	putU64(v.AddrTransServices)
	transIP := v.AddrTransIP.Encode()
	buf = append(buf, transIP[:]...)
	putPortBE(v.AddrTransPort)

	putU64(v.Nonce)

	buf = append(buf, uaLen...)
	buf = append(buf, userAgentBytes...)

	putI32(v.StartHeight)
	if v.Relay {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	return buf, nil
}

// DecodeVersion parses a VersionMessage from the front of buf, returning
// the message and the number of bytes consumed. Returns ErrIncomplete
// without consuming anything if buf does not yet hold a complete message.
func DecodeVersion(buf []byte) (*VersionMessage, int, error) {
	if len(buf) < fixedVersionPrefixLength {
		return nil, 0, ErrIncomplete
	}

	v := &VersionMessage{}
	off := 0

	v.Version = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	v.Services = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	v.Timestamp = int64(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8

	v.AddrRecvServices = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	recvIP, err := DecodeBitcoinIpAddr(buf[off : off+16])
	if err != nil {
		return nil, 0, err
	}
	v.AddrRecvIP = recvIP
	off += 16
	v.AddrRecvPort = binary.BigEndian.Uint16(buf[off : off+2])
	off += 2

	v.AddrTransServices = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	transIP, err := DecodeBitcoinIpAddr(buf[off : off+16])
	if err != nil {
		return nil, 0, err
	}
	v.AddrTransIP = transIP
	off += 16
	v.AddrTransPort = binary.BigEndian.Uint16(buf[off : off+2])
	off += 2

	v.Nonce = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8

	uaLen, uaLenSize, err := DecodeCompactSize(buf[off:])
	if err != nil {
		if errors.Is(err, ErrShortBuffer) {
			return nil, 0, ErrIncomplete
		}
		return nil, 0, err
	}
	off += uaLenSize

	if uaLen > CompactSize(len(buf[off:])) {
		return nil, 0, ErrIncomplete
	}
	if len(buf[off:])-int(uaLen) < 4+1 {
		return nil, 0, ErrIncomplete
	}

	userAgentBytes := buf[off : off+int(uaLen)]
	if !utf8.Valid(userAgentBytes) {
		return nil, 0, ErrInvalidEncoding
	}
	v.UserAgent = string(userAgentBytes)
	off += int(uaLen)

	v.StartHeight = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	v.Relay = buf[off] != 0
	off++

	return v, off, nil
}

// VerifyVersion applies the optional semantic-verification pass of
// spec.md §4.E against a decoded VersionMessage, relative to now.
func VerifyVersion(v *VersionMessage, now time.Time) error {
	if v.Version < minSupportedVersion || v.Version > maxSupportedVersion {
		return fmt.Errorf("%w: version %d not in [%d, %d]", ErrUnsupportedVersion, v.Version, minSupportedVersion, maxSupportedVersion)
	}
	if v.Services&ServiceNodeNetwork == 0 {
		return fmt.Errorf("%w: services %#x missing NODE_NETWORK", ErrUnsupportedServices, v.Services)
	}
	skew := now.Unix() - v.Timestamp
	if int64(math.Abs(float64(skew))) > maxTimestampSkew {
		return fmt.Errorf("%w: timestamp skew %ds exceeds %ds", ErrTimestampSkew, skew, maxTimestampSkew)
	}
	if v.AddrRecvIP.IsUnspecifiedOrLoopback() || v.AddrTransIP.IsUnspecifiedOrLoopback() {
		return fmt.Errorf("%w: unspecified or loopback address", ErrInvalidAddress)
	}
	if v.AddrRecvPort == 0 || v.AddrTransPort == 0 {
		return fmt.Errorf("%w: zero port", ErrInvalidPort)
	}
	if len(v.UserAgent) > maxUserAgentLen {
		return fmt.Errorf("%w: user agent length %d exceeds %d", ErrUserAgentTooLong, len(v.UserAgent), maxUserAgentLen)
	}
	if v.StartHeight < 0 {
		return fmt.Errorf("%w: negative start height %d", ErrInvalidStartHeight, v.StartHeight)
	}
	return nil
}
