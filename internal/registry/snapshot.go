package registry

import (
	"math"
	"sort"

	"github.com/fdwnet/coordinator/internal/config"
)

// PlayerSnapshot is one player's public view, as serialized into the
// world_state broadcast.
type PlayerSnapshot struct {
	ID               uint8        `json:"id"`
	XM               float64      `json:"x_m"`
	YM               float64      `json:"y_m"`
	YawDeg           float64      `json:"yaw_deg"`
	PitchDeg         float64      `json:"pitch_deg"`
	RollDeg          float64      `json:"roll_deg"`
	Quality          uint8        `json:"quality"`
	Online           bool         `json:"online"`
	Alert            bool         `json:"alert"`
	AlertIntensity   uint8        `json:"alert_intensity"`
	PosSource        string       `json:"pos_source"`
	PosQuality       uint8        `json:"pos_quality"`
	GPSLatDeg        *float64     `json:"gps_lat_deg"`
	GPSLonDeg        *float64     `json:"gps_lon_deg"`
	GPSAltM          *float64     `json:"gps_alt_m"`
	GPSQuality       uint8        `json:"gps_quality"`
	BatteryMv        uint16       `json:"battery_mv"`
	BatteryV         *float64     `json:"battery_v"`
	PacketRateHz     float64      `json:"packet_rate_hz"`
	SeqDropCount     uint64       `json:"seq_drop_count"`
	ConnectedSinceMs *int64       `json:"connected_since_ms"`
	Addr             *string      `json:"addr"`
	Trail            [][2]float64 `json:"trail"`
	LastSeenMsAgo    *int64       `json:"last_seen_ms_ago"`
}

// Arena is the snapshot's arena-size sub-object.
type Arena struct {
	WidthM  float64 `json:"width_m"`
	HeightM float64 `json:"height_m"`
}

// WorldState is the full `world_state` broadcast payload.
type WorldState struct {
	Type    string           `json:"type"`
	TsMs    int64            `json:"ts_ms"`
	Arena   Arena            `json:"arena"`
	Config  config.Snapshot  `json:"config"`
	Players []PlayerSnapshot `json:"players"`
}

// WorldStateMessage builds the full broadcast snapshot: every registered
// player's public view, display position resolved, trail pulled from the
// simulator, in ascending id order.
func (r *Registry) WorldStateMessage(nowMs int64) WorldState {
	r.mu.Lock()
	ids := make([]uint8, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	cfg := r.cfg.Snapshot()
	players := make([]PlayerSnapshot, 0, len(ids))
	for _, id := range ids {
		r.mu.Lock()
		p := r.players[id]
		pos, source := r.displayPositionLocked(p)
		r.mu.Unlock()

		sim := r.world.EnsurePlayer(id)
		trail := make([][2]float64, 0, len(sim.Trail()))
		for _, pt := range sim.Trail() {
			trail = append(trail, [2]float64{round3(pt.X), round3(pt.Y)})
		}

		var lastSeenAgo *int64
		if p.LastSeenMs != nil {
			ago := nowMs - *p.LastSeenMs
			if ago < 0 {
				ago = 0
			}
			lastSeenAgo = &ago
		}

		var addr *string
		if p.Addr != "" {
			addr = &p.Addr
		}

		var batteryV *float64
		if p.BatteryMv > 0 {
			v := round2(float64(p.BatteryMv) / 1000)
			batteryV = &v
		}

		players = append(players, PlayerSnapshot{
			ID:               id,
			XM:               round3(pos.X),
			YM:               round3(pos.Y),
			YawDeg:           round2(p.YawDeg),
			PitchDeg:         round2(p.PitchDeg),
			RollDeg:          round2(p.RollDeg),
			Quality:          p.Quality,
			Online:           p.Online,
			Alert:            p.AlertOn,
			AlertIntensity:   p.AlertIntensity,
			PosSource:        source,
			PosQuality:       p.PosQuality,
			GPSLatDeg:        round7Ptr(p.GPSLatDeg),
			GPSLonDeg:        round7Ptr(p.GPSLonDeg),
			GPSAltM:          round2Ptr(p.GPSAltM),
			GPSQuality:       p.GPSQuality,
			BatteryMv:        p.BatteryMv,
			BatteryV:         batteryV,
			PacketRateHz:     round2(p.PacketRateHz),
			SeqDropCount:     p.SeqDropCount,
			ConnectedSinceMs: p.ConnectedSinceMs,
			Addr:             addr,
			Trail:            trail,
			LastSeenMsAgo:    lastSeenAgo,
		})
	}

	return WorldState{
		Type:    "world_state",
		TsMs:    nowMs,
		Arena:   Arena{WidthM: cfg.ArenaWidthM, HeightM: cfg.ArenaHeightM},
		Config:  cfg,
		Players: players,
	}
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round7(v float64) float64 { return math.Round(v*1e7) / 1e7 }

func round2Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round2(*v)
	return &r
}

func round7Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round7(*v)
	return &r
}
