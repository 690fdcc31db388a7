// Package peerclient is the thin outer façade spec.md describes as
// living outside THE CORE: it drives handshake.Machine against a
// sequence of candidate addresses and stops at the first success.
package peerclient

import (
	"context"
	"errors"
	"iter"
	"net"
	"time"

	"github.com/keato/btc-observer/internal/config"
	"github.com/keato/btc-observer/internal/handshake"
	"github.com/keato/btc-observer/internal/logger"
	"github.com/keato/btc-observer/internal/metrics"
	"github.com/keato/btc-observer/internal/peerstore"
)

// ErrNoCandidates is returned when the candidate sequence yields nothing
// to dial.
var ErrNoCandidates = errors.New("peerclient: no candidates offered")

// Client drives handshakes against discovered peers and records the
// outcome of every attempt.
type Client struct {
	cfg   config.HandshakeConfig
	store *peerstore.Store
}

// New builds a Client. store may be nil, in which case attempts are not
// persisted (useful for tests and for running without Postgres
// configured).
func New(cfg config.HandshakeConfig, store *peerstore.Store) *Client {
	return &Client{cfg: cfg, store: store}
}

// Connect runs one handshake.Machine per candidate in turn — sequential,
// since spec.md's required behavior is only "first success wins", not
// parallel fan-out (see DESIGN.md for why sequential was chosen here).
// It returns the first Established connection, or the last attempt's
// error if every candidate fails; errors of earlier attempts are not
// returned.
func (c *Client) Connect(ctx context.Context, candidates iter.Seq[string]) (net.Conn, *handshake.ConnectionInfo, error) {
	var lastErr error
	tried := false

	for addr := range candidates {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		tried = true

		plog := logger.PeerLogger(addr)
		start := time.Now()

		hcfg := c.cfg.ToHandshakeConfig(addr)
		m := handshake.NewMachine(&hcfg)

		metrics.PeerConnectionAttempts.Inc()
		conn, info, err := m.Connect(ctx)
		metrics.HandshakeDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			lastErr = err
			plog.Warn().Err(err).Msg("handshake failed")
			var herr *handshake.Error
			kind := "unknown"
			if errors.As(err, &herr) {
				kind = herr.Kind.String()
			}
			metrics.PeerHandshakeFailures.WithLabelValues(kind).Inc()
			if c.store != nil {
				if serr := c.store.RecordFailure(addr, err); serr != nil {
					metrics.DBErrors.WithLabelValues("record_failure").Inc()
					plog.Error().Err(serr).Msg("recording handshake failure")
				}
			}
			continue
		}

		plog.Info().Str("user_agent", info.Version.UserAgent).Msg("handshake established")
		metrics.PeersEstablished.Inc()
		if c.store != nil {
			if serr := c.store.RecordSuccess(addr, info.Version); serr != nil {
				metrics.DBErrors.WithLabelValues("record_success").Inc()
				plog.Error().Err(serr).Msg("recording handshake success")
			}
		}
		return conn, info, nil
	}

	if !tried {
		return nil, nil, ErrNoCandidates
	}
	return nil, nil, lastErr
}
