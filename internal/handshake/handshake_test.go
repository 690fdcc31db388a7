package handshake

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/keato/btc-observer/internal/protocol"
)

// rawHeader builds 24 header bytes directly, bypassing HeaderMessage.Encode's
// magic validation, so tests can simulate a peer sending a malformed frame.
func rawHeader(magic uint32, command string, payloadLen uint32, checksum [4]byte) []byte {
	buf := make([]byte, protocol.HeaderLength)
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	copy(buf[4:16], command)
	binary.LittleEndian.PutUint32(buf[16:20], payloadLen)
	copy(buf[20:24], checksum[:])
	return buf
}

func peerVersionFrame(t *testing.T) (header, payload []byte) {
	t.Helper()
	v, err := protocol.NewOutboundVersion("/fakepeer:1.0/", 0)
	if err != nil {
		t.Fatalf("building fake peer version: %v", err)
	}
	v.AddrRecvIP = protocol.BitcoinIpAddrFromNetIP(net.ParseIP("203.0.113.7"))
	v.AddrRecvPort = 8333
	v.AddrTransIP = protocol.BitcoinIpAddrFromNetIP(net.ParseIP("198.51.100.2"))
	v.AddrTransPort = 8333
	payload, err = protocol.EncodeVersion(v)
	if err != nil {
		t.Fatalf("encoding fake peer version: %v", err)
	}
	h := protocol.NewHeader(protocol.MagicMainnet, protocol.CmdVersion, payload)
	header, err = h.Encode()
	if err != nil {
		t.Fatalf("encoding fake peer header: %v", err)
	}
	return header, payload
}

func readClientVersion(t *testing.T, conn net.Conn) {
	t.Helper()
	headerBuf := make([]byte, protocol.HeaderLength)
	if _, err := io.ReadFull(conn, headerBuf); err != nil {
		t.Fatalf("reading client version header: %v", err)
	}
	h, _, err := protocol.DecodeHeader(headerBuf)
	if err != nil {
		t.Fatalf("decoding client version header: %v", err)
	}
	payload := make([]byte, h.PayloadLength)
	if _, err := io.ReadFull(conn, payload); err != nil {
		t.Fatalf("reading client version payload: %v", err)
	}
}

func readClientVerAck(t *testing.T, conn net.Conn) {
	t.Helper()
	headerBuf := make([]byte, protocol.HeaderLength)
	if _, err := io.ReadFull(conn, headerBuf); err != nil {
		t.Fatalf("reading client verack: %v", err)
	}
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return l
}

func TestHandshakeHappyPath(t *testing.T) {
	l := listen(t)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		readClientVersion(t, conn)
		header, payload := peerVersionFrame(t)
		conn.Write(header)
		conn.Write(payload)

		readClientVerAck(t, conn)

		ackHeader, _ := protocol.NewVerAckHeader(protocol.MagicMainnet).Encode()
		conn.Write(ackHeader)
	}()

	cfg := DefaultConfig(l.Addr().String(), "/btc-observer:1.0/")
	m := NewMachine(&cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, info, err := m.Connect(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conn.Close()

	if info.Version == nil {
		t.Fatal("expected ConnectionInfo.Version to be populated")
	}
	if m.State() != "Established" {
		t.Fatalf("state = %s, want Established", m.State())
	}
}

func TestHandshakeWrongMagic(t *testing.T) {
	l := listen(t)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		readClientVersion(t, conn)
		header := rawHeader(0x12345678, "version", 0, protocol.Checksum(nil))
		conn.Write(header)
	}()

	cfg := DefaultConfig(l.Addr().String(), "/btc-observer:1.0/")
	m := NewMachine(&cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := m.Connect(ctx)
	var herr *Error
	if !errors.As(err, &herr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if herr.Kind != ErrorKindInvalidResponse {
		t.Fatalf("kind = %v, want InvalidResponse", herr.Kind)
	}
}

func TestHandshakeBadChecksum(t *testing.T) {
	l := listen(t)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		readClientVersion(t, conn)
		_, payload := peerVersionFrame(t)
		header := rawHeader(protocol.MagicMainnet, "version", uint32(len(payload)), [4]byte{0, 0, 0, 0})
		conn.Write(header)
		conn.Write(payload)
	}()

	cfg := DefaultConfig(l.Addr().String(), "/btc-observer:1.0/")
	m := NewMachine(&cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := m.Connect(ctx)
	var herr *Error
	if !errors.As(err, &herr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if herr.Kind != ErrorKindInvalidResponse {
		t.Fatalf("kind = %v, want InvalidResponse", herr.Kind)
	}
}

func TestHandshakePeerDropsAfterVersion(t *testing.T) {
	l := listen(t)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		readClientVersion(t, conn)
		header, payload := peerVersionFrame(t)
		conn.Write(header)
		conn.Write(payload)
		readClientVerAck(t, conn)
		conn.Close()
	}()

	cfg := DefaultConfig(l.Addr().String(), "/btc-observer:1.0/")
	cfg.IOTimeout = 2 * time.Second
	m := NewMachine(&cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _, err := m.Connect(ctx)
	var herr *Error
	if !errors.As(err, &herr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if herr.Kind != ErrorKindProtocolError {
		t.Fatalf("kind = %v, want ProtocolError", herr.Kind)
	}
}

func TestHandshakeAwaitVersionWrongCommand(t *testing.T) {
	l := listen(t)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		readClientVersion(t, conn)
		ackHeader, _ := protocol.NewVerAckHeader(protocol.MagicMainnet).Encode()
		conn.Write(ackHeader)
	}()

	cfg := DefaultConfig(l.Addr().String(), "/btc-observer:1.0/")
	m := NewMachine(&cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := m.Connect(ctx)
	var herr *Error
	if !errors.As(err, &herr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if herr.Kind != ErrorKindInvalidResponse {
		t.Fatalf("kind = %v, want InvalidResponse", herr.Kind)
	}
}

func TestHandshakeConnectionRefused(t *testing.T) {
	l := listen(t)
	addr := l.Addr().String()
	l.Close() // nothing listening anymore

	cfg := DefaultConfig(addr, "/btc-observer:1.0/")
	m := NewMachine(&cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := m.Connect(ctx)
	var herr *Error
	if !errors.As(err, &herr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if herr.Kind != ErrorKindConnectionFailed {
		t.Fatalf("kind = %v, want ConnectionFailed", herr.Kind)
	}
}

func TestMachineAdvanceIsIdempotentAtTerminal(t *testing.T) {
	l := listen(t)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		readClientVersion(t, conn)
		header, payload := peerVersionFrame(t)
		conn.Write(header)
		conn.Write(payload)
		readClientVerAck(t, conn)
		ackHeader, _ := protocol.NewVerAckHeader(protocol.MagicMainnet).Encode()
		conn.Write(ackHeader)
	}()

	cfg := DefaultConfig(l.Addr().String(), "/btc-observer:1.0/")
	m := NewMachine(&cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := m.Connect(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conn.Close()

	done, err := m.Advance(ctx)
	if !done || err != nil {
		t.Fatalf("advancing past Established: done=%v err=%v", done, err)
	}
}
