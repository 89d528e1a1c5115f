package coordinator

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fdwnet/coordinator/internal/codec"
	"github.com/fdwnet/coordinator/internal/config"
	"github.com/fdwnet/coordinator/internal/timeutil"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	snap := config.Default()
	snap.DefaultPlayerIDs = []uint8{1, 2}
	clk := timeutil.NewMockClock(time.Unix(0, 0))
	c, err := New(Options{
		Host:    "127.0.0.1",
		UDPPort: 0,
		Config:  snap,
		Seed:    7,
		Clock:   clk,
		Version: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.udp.Close() })
	return c
}

func TestTwoFacingPlayersAlertOnAfterOneTick(t *testing.T) {
	c := newTestCoordinator(t)

	c.reg.IngestTelemetry(telemetryAt(1, 0, 0, 0, 90), "a:1", 1000)
	c.reg.IngestTelemetry(telemetryAt(2, 5, 0, 180, 90), "b:1", 1000)

	c.alertTick()

	p1, _ := c.reg.Get(1)
	p2, _ := c.reg.Get(2)
	require.True(t, p1.Online)
	require.True(t, p1.AlertOn, "player 1 faces player 2 head on")
	require.True(t, p2.AlertOn, "player 2 faces player 1 head on")
}

func TestAlertHoldsThenExpires(t *testing.T) {
	c := newTestCoordinator(t)
	c.cfg.Update(map[string]any{"alert_hold_ms": 250.0})

	c.reg.IngestTelemetry(telemetryAt(1, 0, 0, 0, 90), "a:1", 0)
	c.reg.IngestTelemetry(telemetryAt(2, 5, 0, 180, 90), "b:1", 0)
	c.alertTick()
	p1, _ := c.reg.Get(1)
	require.True(t, p1.AlertOn)

	// Move player 2 just past max_range_m (15 m) but inside the 1.2x off
	// margin (18 m); within the hold window player 1 should still read
	// alert_on with intensity held at >= 64.
	clk := c.clock.(*timeutil.MockClock)
	clk.Advance(100 * time.Millisecond)
	c.reg.IngestTelemetry(telemetryAt(2, 16, 0, 180, 90), "b:1", 100)
	c.alertTick()
	p1, _ = c.reg.Get(1)
	require.True(t, p1.AlertOn, "still within hold window")
	require.GreaterOrEqual(t, p1.AlertIntensity, uint8(64))

	clk.Advance(300 * time.Millisecond)
	c.alertTick()
	p1, _ = c.reg.Get(1)
	require.False(t, p1.AlertOn, "hold window expired")
}

func TestApplySetConfigClampsValues(t *testing.T) {
	c := newTestCoordinator(t)
	c.applySetConfig(map[string]any{"arena_width_m": 5000.0, "sim_speed_mps": 99.0})
	snap := c.cfg.Snapshot()
	require.Equal(t, 1000.0, snap.ArenaWidthM, "clamped to max")
	require.Equal(t, 5.0, snap.SimSpeedMps, "clamped to max")
}

func TestApplyActionRandomizeAndReset(t *testing.T) {
	c := newTestCoordinator(t)
	require.True(t, c.applyAction("randomize_positions"))
	require.True(t, c.applyAction("reset_world"))
	require.False(t, c.applyAction("not_a_real_action"))
}

func TestApplyActionPauseResume(t *testing.T) {
	c := newTestCoordinator(t)
	require.True(t, c.applyAction("pause_sim"))
	require.True(t, c.cfg.Snapshot().SimPaused)
	require.True(t, c.world.Paused())

	require.True(t, c.applyAction("resume_sim"))
	require.False(t, c.cfg.Snapshot().SimPaused)
	require.False(t, c.world.Paused())
}

func TestApplyActionAddRemoveSimPlayer(t *testing.T) {
	c := newTestCoordinator(t)
	before, _ := c.reg.Count()
	require.True(t, c.applyAction("add_sim_player"))
	after, _ := c.reg.Count()
	require.Equal(t, before+1, after)

	require.True(t, c.applyAction("remove_sim_player"))
}

func TestHandleControlMessageUnknownTypeIgnored(t *testing.T) {
	c := newTestCoordinator(t)
	// Must not panic and must not mutate config.
	before := c.cfg.Snapshot()
	c.handleControlMessage(nil, []byte(`{"type":"unknown_thing"}`))
	require.Equal(t, before, c.cfg.Snapshot())
}

func TestHandleControlMessageMalformedJSONIgnored(t *testing.T) {
	c := newTestCoordinator(t)
	before := c.cfg.Snapshot()
	c.handleControlMessage(nil, []byte(`{not json`))
	require.Equal(t, before, c.cfg.Snapshot())
}

func TestHealthEndpoint(t *testing.T) {
	c := newTestCoordinator(t)
	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()
	c.handleHealth(rec, req)
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestStatusEndpointReportsPlayerCounts(t *testing.T) {
	c := newTestCoordinator(t)
	c.reg.IngestTelemetry(telemetryAt(1, 0, 0, 0, 90), "a:1", 0)

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()
	c.handleStatus(rec, req)
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), `"players_total":2`)
}

func TestRecordingStartStopStubEndpoints(t *testing.T) {
	c := newTestCoordinator(t)

	req := httptest.NewRequest("POST", "/api/recording/start", nil)
	rec := httptest.NewRecorder()
	c.handleRecordingStart(rec, req)
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), `"session_id":"REC-`)

	req = httptest.NewRequest("POST", "/api/recording/stop", nil)
	rec = httptest.NewRecorder()
	c.handleRecordingStop(rec, req)
	require.Equal(t, 200, rec.Code)
}

func TestReplayEndpointsReturnNotImplemented(t *testing.T) {
	c := newTestCoordinator(t)
	req := httptest.NewRequest("POST", "/api/replay/start", nil)
	rec := httptest.NewRecorder()
	c.handleReplayStart(rec, req)
	require.Equal(t, 501, rec.Code)
}

func TestAARListReturnsNotEnabledWith200(t *testing.T) {
	c := newTestCoordinator(t)
	req := httptest.NewRequest("GET", "/api/aar/list", nil)
	rec := httptest.NewRecorder()
	c.handleAARList(rec, req)
	require.Equal(t, 200, rec.Code)
}

func TestSimAddRemoveEndpoints(t *testing.T) {
	c := newTestCoordinator(t)

	req := httptest.NewRequest("POST", "/api/sim/add", nil)
	rec := httptest.NewRecorder()
	c.handleSimAdd(rec, req)
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok":true`)

	req = httptest.NewRequest("POST", "/api/sim/remove", nil)
	rec = httptest.NewRecorder()
	c.handleSimRemove(rec, req)
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok":true`)
}

func TestSimAddEndpointRejectsWrongMethod(t *testing.T) {
	c := newTestCoordinator(t)
	req := httptest.NewRequest("GET", "/api/sim/add", nil)
	rec := httptest.NewRecorder()
	c.handleSimAdd(rec, req)
	require.Equal(t, 405, rec.Code)
}

func TestSimRemoveEndpointReturnsBadRequestWhenNothingRemovable(t *testing.T) {
	c := newTestCoordinator(t)
	// Default players 1 and 2 only become "real" (non-removable) once they
	// have a known UDP peer address.
	c.reg.IngestTelemetry(telemetryAt(1, 0, 0, 0, 90), "a:1", 0)
	c.reg.IngestTelemetry(telemetryAt(2, 0, 0, 0, 90), "b:1", 0)

	req := httptest.NewRequest("POST", "/api/sim/remove", nil)
	rec := httptest.NewRecorder()
	c.handleSimRemove(rec, req)
	require.Equal(t, 400, rec.Code)
}

func TestSimAddEndpointReturnsBadRequestWhenIDSpaceExhausted(t *testing.T) {
	c := newTestCoordinator(t)
	// Default players occupy ids 1 and 2; exhaust the remaining 3..255.
	for i := 0; i < 253; i++ {
		_, ok := c.reg.AddSimPlayer()
		require.True(t, ok)
	}

	req := httptest.NewRequest("POST", "/api/sim/add", nil)
	rec := httptest.NewRecorder()
	c.handleSimAdd(rec, req)
	require.Equal(t, 400, rec.Code)
}

// telemetryAt builds a decoded telemetry packet for a player at (x, y)
// facing yawDeg, with the given quality, ready to feed IngestTelemetry
// directly without going through the wire codec.
func telemetryAt(id uint8, x, y, yawDeg, quality float64) *codec.TelemetryPacket {
	return &codec.TelemetryPacket{
		PlayerID:   id,
		Seq:        1,
		YawDeg:     yawDeg,
		Quality:    uint8(quality),
		PosXCm:     int32(x * 100),
		PosYCm:     int32(y * 100),
		PosQuality: 90,
	}
}
