package handshake

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/keato/btc-observer/internal/protocol"
)

// maxVerAckAttempts bounds the retry loop in AwaitVerAck: reads that end
// in EOF before a full header arrives are retried this many times before
// surfacing as a protocol error. A read that times out is not retried.
const maxVerAckAttempts = 3

// state is the sealed set of handshake states. Each implementation owns
// whatever TCP connection it holds outright; advance consumes the
// receiver by value and returns the next state, so a connection is
// never reachable from two states at once.
type state interface {
	advance(ctx context.Context) (state, error)
	name() string
}

type disconnectedState struct {
	cfg  *Config
	info *ConnectionInfo
}

func (s disconnectedState) name() string { return "Disconnected" }

func (s disconnectedState) advance(ctx context.Context) (state, error) {
	return connectingState{cfg: s.cfg, info: s.info}, nil
}

type connectingState struct {
	cfg  *Config
	info *ConnectionInfo
}

func (s connectingState) name() string { return "Connecting" }

func (s connectingState) advance(ctx context.Context) (state, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(dialCtx, "tcp", s.cfg.RemoteAddress)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled()
		}
		if dialCtx.Err() != nil {
			return nil, timeoutErr("connect to " + s.cfg.RemoteAddress + " timed out")
		}
		return nil, connectionFailed("dial "+s.cfg.RemoteAddress, err)
	}
	return sendVersionState{conn: conn, cfg: s.cfg, info: s.info}, nil
}

type sendVersionState struct {
	conn net.Conn
	cfg  *Config
	info *ConnectionInfo
}

func (s sendVersionState) name() string { return "SendVersion" }

func (s sendVersionState) advance(ctx context.Context) (state, error) {
	v, err := protocol.NewOutboundVersion(s.cfg.UserAgent, s.cfg.StartHeight)
	if err != nil {
		s.conn.Close()
		return nil, protocolError("building version message", err)
	}
	if ip, port, ok := splitHostPort(s.cfg.RemoteAddress); ok {
		v.AddrRecvIP = protocol.BitcoinIpAddrFromNetIP(ip)
		v.AddrRecvPort = port
	}

	payload, err := protocol.EncodeVersion(v)
	if err != nil {
		s.conn.Close()
		return nil, protocolError("encoding version message", err)
	}
	header := protocol.NewHeader(s.cfg.Magic, protocol.CmdVersion, payload)
	headerBytes, err := header.Encode()
	if err != nil {
		s.conn.Close()
		return nil, protocolError("encoding version header", err)
	}

	if err := writeFrame(ctx, s.conn, headerBytes, payload, s.cfg.IOTimeout); err != nil {
		s.conn.Close()
		if kerr := classifyIOError(ctx, err); kerr != nil {
			return nil, kerr
		}
		return nil, connectionFailed("writing version frame", err)
	}

	return awaitVersionState{conn: s.conn, cfg: s.cfg, info: s.info}, nil
}

type awaitVersionState struct {
	conn net.Conn
	cfg  *Config
	info *ConnectionInfo
}

func (s awaitVersionState) name() string { return "AwaitVersion" }

func (s awaitVersionState) advance(ctx context.Context) (state, error) {
	headerBuf := make([]byte, protocol.HeaderLength)
	if err := readFull(ctx, s.conn, headerBuf, s.cfg.IOTimeout); err != nil {
		s.conn.Close()
		if kerr := classifyIOError(ctx, err); kerr != nil {
			return nil, kerr
		}
		return nil, protocolError("reading version header", err)
	}

	header, _, err := protocol.DecodeHeader(headerBuf)
	if err != nil {
		s.conn.Close()
		return nil, invalidResponse("decoding version header", err)
	}
	if header.Command != protocol.CmdVersion {
		s.conn.Close()
		return nil, invalidResponse("expected version, got "+string(header.Command), nil)
	}

	payload := make([]byte, header.PayloadLength)
	if err := readFull(ctx, s.conn, payload, s.cfg.IOTimeout); err != nil {
		s.conn.Close()
		if kerr := classifyIOError(ctx, err); kerr != nil {
			return nil, kerr
		}
		return nil, protocolError("reading version payload", err)
	}
	if protocol.Checksum(payload) != header.Checksum {
		s.conn.Close()
		return nil, invalidResponse("bad checksum on version payload", nil)
	}

	v, _, err := protocol.DecodeVersion(payload)
	if err != nil {
		s.conn.Close()
		return nil, invalidResponse("decoding version payload", err)
	}
	if s.cfg.StrictVerify {
		if err := protocol.VerifyVersion(v, time.Now()); err != nil {
			s.conn.Close()
			return nil, invalidResponse("verifying version payload", err)
		}
	}

	s.info.Version = v
	return sendVerAckState{conn: s.conn, cfg: s.cfg, info: s.info}, nil
}

type sendVerAckState struct {
	conn net.Conn
	cfg  *Config
	info *ConnectionInfo
}

func (s sendVerAckState) name() string { return "SendVerAck" }

func (s sendVerAckState) advance(ctx context.Context) (state, error) {
	header := protocol.NewVerAckHeader(s.cfg.Magic)
	headerBytes, err := header.Encode()
	if err != nil {
		s.conn.Close()
		return nil, protocolError("encoding verack header", err)
	}
	if err := writeFrame(ctx, s.conn, headerBytes, nil, s.cfg.IOTimeout); err != nil {
		s.conn.Close()
		if kerr := classifyIOError(ctx, err); kerr != nil {
			return nil, kerr
		}
		return nil, connectionFailed("writing verack", err)
	}
	return awaitVerAckState{conn: s.conn, cfg: s.cfg, info: s.info}, nil
}

type awaitVerAckState struct {
	conn net.Conn
	cfg  *Config
	info *ConnectionInfo
}

func (s awaitVerAckState) name() string { return "AwaitVerAck" }

func (s awaitVerAckState) advance(ctx context.Context) (state, error) {
	headerBuf := make([]byte, protocol.HeaderLength)

	var lastErr error
	for attempt := 0; attempt < maxVerAckAttempts; attempt++ {
		err := readFull(ctx, s.conn, headerBuf, s.cfg.IOTimeout)
		if err == nil {
			header, _, derr := protocol.DecodeHeader(headerBuf)
			if derr != nil {
				s.conn.Close()
				return nil, invalidResponse("decoding verack header", derr)
			}
			if header.Command != protocol.CmdVerAck {
				s.conn.Close()
				return nil, protocolError("expected verack, got "+string(header.Command), nil)
			}
			return establishedState{conn: s.conn, info: s.info}, nil
		}

		if kerr := classifyIOError(ctx, err); kerr != nil {
			s.conn.Close()
			return nil, kerr
		}
		if !isPeerClosed(err) {
			s.conn.Close()
			return nil, protocolError("reading verack header", err)
		}
		lastErr = err
	}

	s.conn.Close()
	return nil, protocolError("expected verack after retries", lastErr)
}

type establishedState struct {
	conn net.Conn
	info *ConnectionInfo
}

func (s establishedState) name() string { return "Established" }

func (s establishedState) advance(ctx context.Context) (state, error) {
	return s, nil
}

type failedState struct {
	err *Error
}

func (s failedState) name() string { return "Failed" }

func (s failedState) advance(ctx context.Context) (state, error) {
	return s, s.err
}

// splitHostPort parses "host:port" into a resolved IP and numeric port.
// Returns ok=false when the host does not parse as a literal IP or
// resolve via a straightforward lookup; callers fall back to an
// unspecified address rather than failing the handshake over a
// cosmetic field.
func splitHostPort(addr string) (net.IP, uint16, bool) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, 0, false
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, 0, false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil, 0, false
		}
		ip = ips[0]
	}
	return ip, uint16(port), true
}
