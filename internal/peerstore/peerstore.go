// Package peerstore persists one row per observed peer — address,
// negotiated version, and last handshake outcome — the durable form of
// spec.md's "outer multi-peer driver holds a mutex-guarded list of
// successful connections". Grounded on the teacher's database package:
// same Postgres-via-lib/pq shape, trimmed to connection-level columns
// (no transaction/block/propagation tables, since this repo never
// relays or parses those message types).
package peerstore

import (
	"database/sql"
	"fmt"

	"github.com/keato/btc-observer/internal/config"
	"github.com/keato/btc-observer/internal/protocol"
	_ "github.com/lib/pq"
)

// Store wraps the Postgres connection holding the peers table.
type Store struct {
	conn *sql.DB
}

// Open connects to Postgres per cfg and verifies it is reachable.
func Open(cfg config.PeerstoreConfig) (*Store, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
	)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

// DB exposes the underlying *sql.DB, for callers (metrics.SeedFromDB)
// that need raw query access.
func (s *Store) DB() *sql.DB {
	return s.conn
}

// Schema is the DDL for the peers table, applied once at deployment
// time the same way the teacher expected its schema to be applied out
// of band.
const Schema = `
CREATE TABLE IF NOT EXISTS peers (
	address           TEXT PRIMARY KEY,
	first_seen_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_attempt_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	protocol_version  INTEGER,
	user_agent        TEXT,
	services          BIGINT,
	attempt_count     INTEGER NOT NULL DEFAULT 1,
	last_result       TEXT NOT NULL,
	last_error        TEXT
)`

// RecordSuccess upserts a peer row reflecting an established handshake.
func (s *Store) RecordSuccess(addr string, v *protocol.VersionMessage) error {
	_, err := s.conn.Exec(
		`INSERT INTO peers (address, first_seen_at, last_attempt_at, protocol_version, user_agent, services, attempt_count, last_result, last_error)
		 VALUES ($1, NOW(), NOW(), $2, $3, $4, 1, 'established', NULL)
		 ON CONFLICT (address) DO UPDATE SET
		     last_attempt_at  = NOW(),
		     protocol_version = $2,
		     user_agent       = $3,
		     services         = $4,
		     attempt_count    = peers.attempt_count + 1,
		     last_result      = 'established',
		     last_error       = NULL`,
		addr, v.Version, v.UserAgent, v.Services,
	)
	return err
}

// RecordFailure upserts a peer row reflecting a failed handshake attempt.
func (s *Store) RecordFailure(addr string, cause error) error {
	_, err := s.conn.Exec(
		`INSERT INTO peers (address, first_seen_at, last_attempt_at, attempt_count, last_result, last_error)
		 VALUES ($1, NOW(), NOW(), 1, 'failed', $2)
		 ON CONFLICT (address) DO UPDATE SET
		     last_attempt_at = NOW(),
		     attempt_count   = peers.attempt_count + 1,
		     last_result     = 'failed',
		     last_error      = $2`,
		addr, cause.Error(),
	)
	return err
}
