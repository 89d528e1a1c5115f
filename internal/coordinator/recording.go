package coordinator

import (
	"fmt"
	"sync"

	"github.com/fdwnet/coordinator/internal/codec"
	"github.com/google/uuid"
)

// recordingState tracks the stub after-action-review recording surface.
// Per the source this is derived from, start/stop never touch disk: they
// only hand back a deterministic-looking session id and the paths a real
// recorder would have written. recordTelemetry/recordEvent are no-ops
// whether or not a session is active, so the coordinator can call them unconditionally
// from the hot paths without branching on recording state itself.
type recordingState struct {
	mu        sync.Mutex
	active    bool
	sessionID string
}

func newRecordingState() *recordingState {
	return &recordingState{}
}

// recordingFiles is the pair of synthetic log paths a session "produces".
type recordingFiles struct {
	WorldState string `json:"world_state"`
	Events     string `json:"events"`
}

func sessionFiles(sessionID string) recordingFiles {
	dir := fmt.Sprintf("/tmp/aar/%s", sessionID)
	return recordingFiles{
		WorldState: dir + "/world_state.jsonl",
		Events:     dir + "/events.jsonl",
	}
}

// start begins a new recording session, returning its id and file paths.
// Starting while already active restarts under a fresh id, matching the
// source's start-always-succeeds behavior.
func (r *recordingState) start() (string, recordingFiles) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = "REC-" + uuid.NewString()
	r.active = true
	return r.sessionID, sessionFiles(r.sessionID)
}

// stop ends the active session, if any, returning its id and whether one
// was actually active.
func (r *recordingState) stop() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return "", false
	}
	id := r.sessionID
	r.active = false
	return id, true
}

// status reports whether a recording session is currently active and, if
// so, its id.
func (r *recordingState) status() (active bool, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.sessionID
}

// recordTelemetry and recordEvent are intentionally no-ops: the stub
// never performs I/O, per spec.md §9's explicit instruction not to infer
// real recording semantics from the source. They exist as call sites so a
// future real recorder can be dropped in without touching the hot paths.
func (r *recordingState) recordTelemetry(nowMs int64, pkt *codec.TelemetryPacket) {}
func (r *recordingState) recordEvent(nowMs int64, name string)                    {}
