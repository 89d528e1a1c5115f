package coordinator

import (
	"encoding/json"
	"net/http"

	"github.com/fdwnet/coordinator/internal/config"
	"github.com/fdwnet/coordinator/internal/monitoring"
	"github.com/gorilla/websocket"
)

// upgrader is shared across every /ws connection. Origin checking is left
// permissive: the dashboard is served from the same coordinator process
// and is not a public-internet-facing surface, matching the rest of the
// external HTTP/WS framework this package treats as a boundary.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// configMessage is the `{type:"config", config:{...}}` payload sent on
// connect and after every control-channel mutation, per §6.
type configMessage struct {
	Type   string          `json:"type"`
	Config config.Snapshot `json:"config"`
}

// controlMessage is the inbound shape for both recognized control-channel
// message kinds; Values/Name are interpreted according to Type.
type controlMessage struct {
	Type   string         `json:"type"`
	Values map[string]any `json:"values"`
	Name   string         `json:"name"`
}

// ServeWS upgrades r into a dashboard WebSocket session: it sends the
// initial config + world_state pair, then services inbound set_config and
// action messages until the connection closes.
func (c *Coordinator) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("coordinator: ws upgrade failed: %v", err)
		return
	}
	sess := newSession(conn)
	c.sessions.add(sess)
	defer func() {
		c.sessions.remove(sess.id)
		sess.close()
	}()

	now := c.clock.Now().UnixMilli()
	if err := sess.send(configMessage{Type: "config", Config: c.cfg.Snapshot()}); err != nil {
		return
	}
	if err := sess.send(envelope{Type: "world_state", Payload: c.reg.WorldStateMessage(now)}); err != nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleControlMessage(sess, raw)
	}
}

// handleControlMessage decodes one inbound WS frame and dispatches it.
// Malformed JSON and unrecognized message types/actions are logged and
// ignored, never surfaced to the sender as an error frame.
func (c *Coordinator) handleControlMessage(sess *session, raw []byte) {
	var msg controlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		monitoring.Logf("coordinator: dropping malformed control message: %v", err)
		return
	}

	switch msg.Type {
	case "set_config":
		c.applySetConfig(msg.Values)
		c.rebroadcastConfig()
	case "action":
		if c.applyAction(msg.Name) {
			c.rebroadcastConfig()
			c.rebroadcastWorldState()
		}
	default:
		monitoring.Logf("coordinator: ignoring unknown control message type %q", msg.Type)
	}
}

// applySetConfig merges values into the live config, then propagates the
// arena/speed/boundary/noise fields that the simulator also tracks so the
// next simulation tick picks them up immediately rather than waiting for
// its own Configure call.
func (c *Coordinator) applySetConfig(values map[string]any) {
	c.cfg.Update(values)
	snap := c.cfg.Snapshot()
	c.world.Configure(simulatorConfigFrom(snap))
}

// applyAction executes one named dashboard action, returning whether it
// did anything (and so warrants a rebroadcast). Unknown names are logged
// and ignored.
func (c *Coordinator) applyAction(name string) bool {
	switch name {
	case "randomize_positions":
		c.world.RandomizePositions()
	case "reset_world":
		c.world.Reset()
	case "pause_sim":
		c.cfg.Update(map[string]any{"sim_paused": true})
		c.world.SetPaused(true)
	case "resume_sim":
		c.cfg.Update(map[string]any{"sim_paused": false})
		c.world.SetPaused(false)
	case "add_sim_player":
		if _, ok := c.reg.AddSimPlayer(); !ok {
			monitoring.Logf("coordinator: add_sim_player: no free player id")
		}
	case "remove_sim_player":
		if _, ok := c.reg.RemoveSimPlayer(); !ok {
			monitoring.Logf("coordinator: remove_sim_player: nothing removable")
		}
	case "start_recording":
		c.recording.start()
	case "stop_recording":
		c.recording.stop()
	default:
		monitoring.Logf("coordinator: ignoring unknown action %q", name)
		return false
	}
	return true
}

func (c *Coordinator) rebroadcastConfig() {
	c.sessions.broadcast(envelope{Type: "config", Payload: configPayload{Config: c.cfg.Snapshot()}})
}

func (c *Coordinator) rebroadcastWorldState() {
	now := c.clock.Now().UnixMilli()
	c.sessions.broadcast(envelope{Type: "world_state", Payload: c.reg.WorldStateMessage(now)})
}

// configPayload is the envelope-flattened form of configMessage: envelope's
// MarshalJSON already emits "type", so only "config" needs to come from
// the payload here.
type configPayload struct {
	Config config.Snapshot `json:"config"`
}
