package coordinator

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// envelope is the JSON wrapper every message sent over a dashboard session
// takes, whether a config push, a world_state snapshot, or a control ack.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"-"`
}

// MarshalJSON flattens envelope so Payload's own fields sit alongside
// "type" at the top level, matching the {type:"config", config:{...}}
// shape the dashboard's control channel expects rather than a nested
// {type, payload} wrapper.
func (e envelope) MarshalJSON() ([]byte, error) {
	return marshalEnvelope(e.Type, e.Payload)
}

// session is one connected dashboard WebSocket client. Sends are
// serialized through a dedicated mutex since gorilla/websocket
// connections are not safe for concurrent writes.
type session struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func newSession(conn *websocket.Conn) *session {
	return &session{id: uuid.NewString(), conn: conn}
}

func (s *session) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *session) close() {
	_ = s.conn.Close()
}

// sessionSet tracks the coordinator's currently attached dashboard
// sessions. Broadcast is best-effort fan-out: a session whose send fails
// is evicted from the set, per the no-retry backpressure policy.
type sessionSet struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionSet() *sessionSet {
	return &sessionSet{sessions: make(map[string]*session)}
}

func (s *sessionSet) add(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

func (s *sessionSet) remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *sessionSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// broadcast fans msg out to every attached session, evicting any whose
// send fails. Never returns an error: a send failure is not surfaced
// anywhere else, matching the "evict, don't propagate" error model.
func (s *sessionSet) broadcast(msg envelope) {
	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()

	var dead []string
	for _, sess := range targets {
		if err := sess.send(msg); err != nil {
			dead = append(dead, sess.id)
		}
	}
	if len(dead) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range dead {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
}
