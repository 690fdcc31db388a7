package protocol

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg"
)

const headerLength = 24

// HeaderLength is the fixed wire size of a HeaderMessage, exported so
// callers can size read buffers without hand-duplicating the constant.
const HeaderLength = headerLength

// Network magic constants, sourced from btcsuite's chaincfg network
// parameters rather than duplicated by hand: chaincfg.MainNetParams.Net
// and chaincfg.TestNet3Params.Net are bit-for-bit the values the Bitcoin
// wire protocol calls magic.
var (
	MagicMainnet = uint32(chaincfg.MainNetParams.Net)
	MagicTestnet = uint32(chaincfg.TestNet3Params.Net)
)

// HeaderMessage is the 24-byte wire header that precedes every payload.
type HeaderMessage struct {
	Magic         uint32
	Command       Command
	PayloadLength uint32
	Checksum      [4]byte
}

// NewHeader builds a header for command carrying payload, computing its
// checksum and length.
func NewHeader(magic uint32, command Command, payload []byte) HeaderMessage {
	return HeaderMessage{
		Magic:         magic,
		Command:       command,
		PayloadLength: uint32(len(payload)),
		Checksum:      Checksum(payload),
	}
}

// NewVerAckHeader builds the fixed empty-payload verack header.
func NewVerAckHeader(magic uint32) HeaderMessage {
	return HeaderMessage{
		Magic:         magic,
		Command:       CmdVerAck,
		PayloadLength: 0,
		Checksum:      VerackChecksum,
	}
}

// isValidMagic reports whether magic is a recognized network constant.
func isValidMagic(magic uint32) bool {
	return magic == MagicMainnet || magic == MagicTestnet
}

// Encode serializes h to its 24-byte wire form. Fails with ErrInvalidMagic
// if h.Magic is neither the mainnet nor testnet constant.
func (h HeaderMessage) Encode() ([]byte, error) {
	if !isValidMagic(h.Magic) {
		return nil, ErrInvalidMagic
	}
	cmdBytes, err := h.Command.Encode()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, headerLength)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	copy(buf[4:16], cmdBytes[:])
	binary.LittleEndian.PutUint32(buf[16:20], h.PayloadLength)
	copy(buf[20:24], h.Checksum[:])
	return buf, nil
}

// DecodeHeader reads a HeaderMessage from the front of buf, returning the
// header and the number of bytes consumed (always 24 on success).
// Returns ErrIncomplete without consuming anything if buf holds fewer
// than 24 bytes. Returns ErrInvalidMagic if the magic field does not
// match a recognized network, and ErrUnknownCommand if the command field
// does not decode to a member of the closed enum.
func DecodeHeader(buf []byte) (*HeaderMessage, int, error) {
	if len(buf) < headerLength {
		return nil, 0, ErrIncomplete
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if !isValidMagic(magic) {
		return nil, 0, ErrInvalidMagic
	}
	var cmdBytes [12]byte
	copy(cmdBytes[:], buf[4:16])
	command, err := DecodeCommand(cmdBytes)
	if err != nil {
		return nil, 0, err
	}
	payloadLength := binary.LittleEndian.Uint32(buf[16:20])
	var checksum [4]byte
	copy(checksum[:], buf[20:24])

	h := &HeaderMessage{
		Magic:         magic,
		Command:       command,
		PayloadLength: payloadLength,
		Checksum:      checksum,
	}
	return h, headerLength, nil
}
