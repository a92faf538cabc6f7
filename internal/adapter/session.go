package adapter

import (
	"github.com/google/uuid"

	"github.com/bpriyal/s2sGeoAdapter/internal/monitoring"
)

// Session is the external speech/AI session the adapter forwards context
// into. The real websocket transport lives outside this module; LogSession
// stands in for it.
type Session interface {
	SendContext(instruction string) error
	Close() error
}

// LogSession is a session that logs each instruction instead of sending it
// anywhere. It carries a session id the way a live connection would.
type LogSession struct {
	id string
}

// NewLogSession returns a LogSession with a fresh session id.
func NewLogSession() *LogSession {
	return &LogSession{id: uuid.New().String()}
}

// ID returns the session id.
func (s *LogSession) ID() string { return s.id }

// SendContext logs the instruction.
func (s *LogSession) SendContext(instruction string) error {
	monitoring.Logf("session %s: context update: %s", s.id, instruction)
	return nil
}

// Close logs the teardown.
func (s *LogSession) Close() error {
	monitoring.Logf("session %s: closed", s.id)
	return nil
}
