package handshake

import (
	"context"
	"net"
)

// Machine drives one handshake attempt against a single peer. It is not
// safe for concurrent use: Advance and Connect must be called from one
// goroutine at a time, matching the single-threaded-per-handshake
// scheduling model.
type Machine struct {
	current state
}

// NewMachine builds a Machine in the Disconnected state for cfg. cfg is
// not copied; callers must not mutate it after NewMachine.
func NewMachine(cfg *Config) *Machine {
	info := &ConnectionInfo{PublicAddress: cfg.RemoteAddress}
	return &Machine{current: disconnectedState{cfg: cfg, info: info}}
}

// State returns the name of the current state, useful for logging.
func (m *Machine) State() string { return m.current.name() }

// Advance performs exactly one transition. It returns true once the
// machine has reached a terminal state (Established or Failed). On a
// transition into Failed, the returned error is the same *Error now
// available from the machine's terminal state.
func (m *Machine) Advance(ctx context.Context) (bool, error) {
	if _, ok := m.current.(establishedState); ok {
		return true, nil
	}
	if f, ok := m.current.(failedState); ok {
		return true, f.err
	}

	next, err := m.current.advance(ctx)
	if err != nil {
		herr, ok := err.(*Error)
		if !ok {
			herr = protocolError(err.Error(), err)
		}
		m.current = failedState{err: herr}
		return true, herr
	}
	m.current = next

	switch m.current.(type) {
	case establishedState, failedState:
		return true, nil
	default:
		return false, nil
	}
}

// Connect drives the machine from Disconnected to a terminal state,
// returning the live connection and populated ConnectionInfo on success.
// On failure it returns the typed *Error; the connection has already
// been closed.
func (m *Machine) Connect(ctx context.Context) (net.Conn, *ConnectionInfo, error) {
	for {
		done, err := m.Advance(ctx)
		if err != nil {
			return nil, nil, err
		}
		if done {
			break
		}
	}

	est, ok := m.current.(establishedState)
	if !ok {
		f := m.current.(failedState)
		return nil, nil, f.err
	}
	return est.conn, est.info, nil
}
