package registry

import (
	"testing"

	"github.com/fdwnet/coordinator/internal/codec"
	"github.com/fdwnet/coordinator/internal/config"
	"github.com/fdwnet/coordinator/internal/simulator"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *config.Config) {
	t.Helper()
	snap := config.Default()
	snap.DefaultPlayerIDs = nil
	cfg := config.New(snap)
	world := simulator.New(simulator.Config{
		ArenaWidthM: 50, ArenaHeightM: 30, SpeedMps: 0.4,
		UpdateHz: 10, Boundary: simulator.Bounce, SteeringStd: 0.35, TrailSeconds: 8,
	}, 42)
	return New(cfg, world), cfg
}

func TestIngestTelemetryUpdatesPoseAndPosition(t *testing.T) {
	r, _ := newTestRegistry(t)
	pkt := &codec.TelemetryPacket{
		PlayerID: 5, Seq: 1, TimestampMs: 1000,
		YawDeg: 10, PitchDeg: 1, RollDeg: -1, Quality: 90,
		PosXCm: 500, PosYCm: 200, PosQuality: 80, BatteryMv: 4000,
	}
	r.IngestTelemetry(pkt, "1.2.3.4:9000", 1000)

	p, ok := r.Get(5)
	require.True(t, ok)
	require.True(t, p.Online)
	require.Equal(t, "1.2.3.4:9000", p.Addr)
	require.NotNil(t, p.RealXM)
	require.Equal(t, 5.0, *p.RealXM)
	require.Equal(t, 2.0, *p.RealYM)
	require.NotNil(t, p.ConnectedSinceMs)
	require.Equal(t, int64(1000), *p.ConnectedSinceMs)
}

func TestIngestTelemetrySeqDropAccounting(t *testing.T) {
	r, _ := newTestRegistry(t)
	pkt := &codec.TelemetryPacket{PlayerID: 1, Seq: 10, TimestampMs: 0, Quality: 50}
	r.IngestTelemetry(pkt, "a:1", 1000)

	pkt2 := &codec.TelemetryPacket{PlayerID: 1, Seq: 15, TimestampMs: 0, Quality: 50}
	r.IngestTelemetry(pkt2, "a:1", 1100)

	p, _ := r.Get(1)
	require.EqualValues(t, 4, p.SeqDropCount, "seq jumped 10->15: delta 5, drop = delta-1 = 4")
}

func TestIngestTelemetryBackwardSeqTreatedAsReorder(t *testing.T) {
	r, _ := newTestRegistry(t)
	pkt := &codec.TelemetryPacket{PlayerID: 1, Seq: 100, TimestampMs: 0, Quality: 50}
	r.IngestTelemetry(pkt, "a:1", 1000)

	// seq moves backward: delta = (90-100) & 0xFFFF = 65526, which lands in
	// the upper half and must be ignored as a reorder, not counted as loss.
	pkt2 := &codec.TelemetryPacket{PlayerID: 1, Seq: 90, TimestampMs: 0, Quality: 50}
	r.IngestTelemetry(pkt2, "a:1", 1100)

	p, _ := r.Get(1)
	require.EqualValues(t, 0, p.SeqDropCount)
}

func TestIngestTelemetryPacketRateEMA(t *testing.T) {
	r, _ := newTestRegistry(t)
	pkt := &codec.TelemetryPacket{PlayerID: 1, Seq: 1, TimestampMs: 0, Quality: 50}
	r.IngestTelemetry(pkt, "a:1", 1000)
	p, _ := r.Get(1)
	require.Equal(t, 0.0, p.PacketRateHz, "no rate until a second sample exists")

	pkt2 := &codec.TelemetryPacket{PlayerID: 1, Seq: 2, TimestampMs: 0, Quality: 50}
	r.IngestTelemetry(pkt2, "a:1", 1100) // dt=100ms -> instant rate 10hz
	p, _ = r.Get(1)
	require.InDelta(t, 10.0, p.PacketRateHz, 1e-9, "first sample seeds the EMA directly")

	pkt3 := &codec.TelemetryPacket{PlayerID: 1, Seq: 3, TimestampMs: 0, Quality: 50}
	r.IngestTelemetry(pkt3, "a:1", 1300) // dt=200ms -> instant rate 5hz
	p, _ = r.Get(1)
	require.InDelta(t, 9.0, p.PacketRateHz, 1e-9, "0.8*10 + 0.2*5 = 9")
}

func TestLiveness(t *testing.T) {
	r, cfg := newTestRegistry(t)
	cfg.Update(map[string]any{"offline_timeout_ms": 2000.0})

	pkt := &codec.TelemetryPacket{PlayerID: 1, Seq: 1, TimestampMs: 0, Quality: 50}
	r.IngestTelemetry(pkt, "a:1", 1000)

	r.UpdateOnlineFlags(2500)
	p, _ := r.Get(1)
	require.True(t, p.Online, "last seen 1500ms ago, within 2000ms timeout")

	r.UpdateOnlineFlags(3500)
	p, _ = r.Get(1)
	require.False(t, p.Online, "last seen 2500ms ago, past 2000ms timeout")
	require.Nil(t, p.ConnectedSinceMs, "going offline must clear connected_since_ms")
}

func TestDisplayPositionFlipsOnPosQualityThreshold(t *testing.T) {
	r, cfg := newTestRegistry(t)
	cfg.Update(map[string]any{"pos_quality_threshold": 50.0})

	pkt := &codec.TelemetryPacket{PlayerID: 1, Seq: 1, TimestampMs: 0, Quality: 50, PosXCm: 100, PosYCm: 100, PosQuality: 10}
	r.IngestTelemetry(pkt, "a:1", 1000)
	p, _ := r.Get(1)
	_, source := r.DisplayPosition(p)
	require.Equal(t, "sim", source, "pos_quality 10 < threshold 50")

	pkt2 := &codec.TelemetryPacket{PlayerID: 1, Seq: 2, TimestampMs: 0, Quality: 50, PosXCm: 100, PosYCm: 100, PosQuality: 60}
	r.IngestTelemetry(pkt2, "a:1", 1100)
	p, _ = r.Get(1)
	_, source = r.DisplayPosition(p)
	require.Equal(t, "real", source, "pos_quality 60 >= threshold 50")
}

func TestAlertHysteresisFullCycle(t *testing.T) {
	r, cfg := newTestRegistry(t)
	cfg.Update(map[string]any{"alert_hold_ms": 250.0})
	r.EnsurePlayer(1)

	changed := r.UpdateAlertHysteresis(1, 1000, true, true, 200)
	require.True(t, changed)
	p, _ := r.Get(1)
	require.True(t, p.AlertOn)
	require.EqualValues(t, 200, p.AlertIntensity)

	// Loses direct lock-on but stays within the off-margin and hold window.
	r.UpdateAlertHysteresis(1, 1100, false, true, 0)
	p, _ = r.Get(1)
	require.True(t, p.AlertOn, "should hold within alert_hold_ms")
	require.GreaterOrEqual(t, p.AlertIntensity, uint8(64))

	// Hold window expires.
	r.UpdateAlertHysteresis(1, 1400, false, true, 0)
	p, _ = r.Get(1)
	require.False(t, p.AlertOn, "hold window should have expired by now")
	require.EqualValues(t, 0, p.AlertIntensity)
}

func TestAlertHysteresisInsideOffFalseForcesOff(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.EnsurePlayer(1)
	r.UpdateAlertHysteresis(1, 1000, true, true, 200)
	r.UpdateAlertHysteresis(1, 1050, false, false, 0)
	p, _ := r.Get(1)
	require.False(t, p.AlertOn, "inside_off=false must force OFF even within the hold window")
}

func TestAddRemoveSimPlayer(t *testing.T) {
	r, _ := newTestRegistry(t)
	id, ok := r.AddSimPlayer()
	require.True(t, ok)
	require.EqualValues(t, 1, id, "default_player_ids are empty in this test config, so id 1 is free")

	id2, ok := r.AddSimPlayer()
	require.True(t, ok)
	require.EqualValues(t, 2, id2)

	removed, ok := r.RemoveSimPlayer()
	require.True(t, ok)
	require.EqualValues(t, 2, removed, "remove must take the highest unaddressed id")
}

func TestRemoveSimPlayerNeverEvictsRealPeer(t *testing.T) {
	r, _ := newTestRegistry(t)
	pkt := &codec.TelemetryPacket{PlayerID: 9, Seq: 1, TimestampMs: 0, Quality: 50}
	r.IngestTelemetry(pkt, "1.1.1.1:9", 1000) // gives player 9 a real addr

	r.EnsurePlayer(3) // no addr, purely synthetic

	removed, ok := r.RemoveSimPlayer()
	require.True(t, ok)
	require.EqualValues(t, 3, removed)

	_, stillOk := r.RemoveSimPlayer()
	require.False(t, stillOk, "player 9 has an addr and must never be removed")
}

func TestWorldStateMessageAscendingOrder(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.EnsurePlayer(5)
	r.EnsurePlayer(1)
	r.EnsurePlayer(3)

	ws := r.WorldStateMessage(1000)
	require.Equal(t, "world_state", ws.Type)
	require.Len(t, ws.Players, 3)
	require.EqualValues(t, 1, ws.Players[0].ID)
	require.EqualValues(t, 3, ws.Players[1].ID)
	require.EqualValues(t, 5, ws.Players[2].ID)
}

func TestWorldStateMessageGPSAbsentWhenNil(t *testing.T) {
	r, _ := newTestRegistry(t)
	pkt := &codec.TelemetryPacket{PlayerID: 1, Seq: 1, TimestampMs: 0, Quality: 50}
	r.IngestTelemetry(pkt, "a:1", 1000)

	ws := r.WorldStateMessage(1000)
	require.Nil(t, ws.Players[0].GPSLatDeg)
}
