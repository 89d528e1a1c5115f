package coordinator

import (
	"net/http"

	"github.com/fdwnet/coordinator/internal/httputil"
)

// ServeMux builds the coordinator's HTTP surface: the WebSocket control
// channel and the REST endpoints specified at the boundary in §6. Static
// asset serving and the operator frontend itself are the external
// collaborator this package stops short of.
func (c *Coordinator) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", c.ServeWS)
	mux.HandleFunc("/api/health", c.handleHealth)
	mux.HandleFunc("/api/status", c.handleStatus)
	mux.HandleFunc("/api/recording/start", c.handleRecordingStart)
	mux.HandleFunc("/api/recording/stop", c.handleRecordingStop)
	mux.HandleFunc("/api/sim/add", c.handleSimAdd)
	mux.HandleFunc("/api/sim/remove", c.handleSimRemove)
	mux.HandleFunc("/api/aar/list", c.handleAARList)
	mux.HandleFunc("/api/replay/start", c.handleReplayStart)
	mux.HandleFunc("/api/replay/stop", c.handleReplayStop)
	return mux
}

type healthResponse struct {
	Status       string `json:"status"`
	ServerTimeMs int64  `json:"server_time_ms"`
	Version      string `json:"version"`
}

func (c *Coordinator) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, healthResponse{
		Status:       "ok",
		ServerTimeMs: c.clock.Now().UnixMilli(),
		Version:      c.version,
	})
}

type statusResponse struct {
	Status        string        `json:"status"`
	System        string        `json:"system"`
	Version       string        `json:"version"`
	UptimeMs      int64         `json:"uptime_ms"`
	PlayersOnline int           `json:"players_online"`
	PlayersTotal  int           `json:"players_total"`
	WsClients     int           `json:"ws_clients"`
	Recording     recordingInfo `json:"recording"`
	Config        any           `json:"config"`
}

type recordingInfo struct {
	Active    bool   `json:"active"`
	SessionID string `json:"session_id,omitempty"`
}

func (c *Coordinator) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	total, online := c.reg.Count()
	active, sessionID := c.recording.status()
	httputil.WriteJSONOK(w, statusResponse{
		Status:        "ok",
		System:        "fdw-coordinator",
		Version:       c.version,
		UptimeMs:      c.clock.Now().Sub(c.startedAt).Milliseconds(),
		PlayersOnline: online,
		PlayersTotal:  total,
		WsClients:     c.sessions.len(),
		Recording:     recordingInfo{Active: active, SessionID: sessionID},
		Config:        c.cfg.Snapshot(),
	})
}

type recordingResponse struct {
	SessionID string         `json:"session_id"`
	Files     recordingFiles `json:"files,omitempty"`
	Active    bool           `json:"active"`
}

// handleRecordingStart and handleRecordingStop mirror the "action" WS
// messages of the same name: stub session bookkeeping only, no I/O, per
// spec.md §9.
func (c *Coordinator) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	id, files := c.recording.start()
	c.rebroadcastConfig()
	c.rebroadcastWorldState()
	httputil.WriteJSONOK(w, recordingResponse{SessionID: id, Files: files, Active: true})
}

func (c *Coordinator) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	id, _ := c.recording.stop()
	c.rebroadcastConfig()
	c.rebroadcastWorldState()
	httputil.WriteJSONOK(w, recordingResponse{SessionID: id, Active: false})
}

type simPlayerResponse struct {
	PlayerID uint8 `json:"player_id"`
	OK       bool  `json:"ok"`
}

func (c *Coordinator) handleSimAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	id, ok := c.reg.AddSimPlayer()
	if !ok {
		httputil.BadRequest(w, "no free player id")
		return
	}
	c.rebroadcastConfig()
	c.rebroadcastWorldState()
	httputil.WriteJSONOK(w, simPlayerResponse{PlayerID: id, OK: true})
}

func (c *Coordinator) handleSimRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	id, ok := c.reg.RemoveSimPlayer()
	if !ok {
		httputil.BadRequest(w, "no removable player")
		return
	}
	c.rebroadcastConfig()
	c.rebroadcastWorldState()
	httputil.WriteJSONOK(w, simPlayerResponse{PlayerID: id, OK: true})
}

// handleAARList and the replay endpoints mirror the recording stub: the
// after-action-review surface isn't enabled, so list returns a "not
// enabled" 200 and replay returns 501, per §6.
func (c *Coordinator) handleAARList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"status": "not enabled", "sessions": []string{}})
}

func (c *Coordinator) handleReplayStart(w http.ResponseWriter, r *http.Request) {
	c.handleReplayStub(w, r)
}

func (c *Coordinator) handleReplayStop(w http.ResponseWriter, r *http.Request) {
	c.handleReplayStub(w, r)
}

func (c *Coordinator) handleReplayStub(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusNotImplemented, map[string]string{"status": "not enabled"})
}
