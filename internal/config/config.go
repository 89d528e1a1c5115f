// Package config holds the coordinator's single mutable configuration
// record: every tunable the control plane can update at runtime, each with
// a clamping range applied on write.
package config

import "sync"

// BoundaryBehavior selects the simulator's edge policy.
type BoundaryBehavior string

const (
	BoundaryBounce BoundaryBehavior = "bounce"
	BoundaryWrap   BoundaryBehavior = "wrap"
)

// Snapshot is an immutable copy of the configuration, safe to serialize or
// hand to the simulator without holding Config's lock.
type Snapshot struct {
	ArenaWidthM           float64          `json:"arena_width_m"`
	ArenaHeightM          float64          `json:"arena_height_m"`
	TickHz                float64          `json:"tick_hz"`
	WsHz                  float64          `json:"ws_hz"`
	WorldUpdateHz         float64          `json:"world_update_hz"`
	MaxRangeM             float64          `json:"max_range_m"`
	ConeHalfAngleDeg      float64          `json:"cone_half_angle_deg"`
	QualityThreshold      int              `json:"quality_threshold"`
	PosQualityThreshold   int              `json:"pos_quality_threshold"`
	OfflineTimeoutMs      int64            `json:"offline_timeout_ms"`
	AlertHoldMs           int64            `json:"alert_hold_ms"`
	UseSimPositions       bool             `json:"use_sim_positions"`
	SimSpeedMps           float64          `json:"sim_speed_mps"`
	BoundaryBehavior      BoundaryBehavior `json:"boundary_behavior"`
	SimNoise              float64          `json:"sim_noise"`
	SimPaused             bool             `json:"sim_paused"`
	DefaultPlayerIDs      []uint8          `json:"default_player_ids"`
	TrailSeconds          float64          `json:"trail_seconds"`
	SimPlayersEmulateReal bool             `json:"sim_players_emulate_real"`
}

// Default returns the configuration's documented startup defaults.
func Default() Snapshot {
	return Snapshot{
		ArenaWidthM:           50,
		ArenaHeightM:          30,
		TickHz:                20,
		WsHz:                  10,
		WorldUpdateHz:         10,
		MaxRangeM:             15,
		ConeHalfAngleDeg:      6,
		QualityThreshold:      35,
		PosQualityThreshold:   50,
		OfflineTimeoutMs:      2000,
		AlertHoldMs:           250,
		UseSimPositions:       true,
		SimSpeedMps:           0.4,
		BoundaryBehavior:      BoundaryBounce,
		SimNoise:              0.35,
		SimPaused:             false,
		DefaultPlayerIDs:      []uint8{1, 2},
		TrailSeconds:          8.0,
		SimPlayersEmulateReal: false,
	}
}

// Config is the coordinator's live, mutable configuration. All reads and
// writes go through the RWMutex; Snapshot gives callers (the simulator, the
// broadcast tick, the HTTP status handler) a private copy to work from.
type Config struct {
	mu   sync.RWMutex
	snap Snapshot
}

// New creates a Config seeded with the given initial values.
func New(initial Snapshot) *Config {
	return &Config{snap: initial}
}

// Snapshot returns a copy of the current configuration.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Update merges values into the configuration. Unrecognized keys and
// values of the wrong type are ignored silently, matching the control
// channel's "unknown keys are silently ignored" contract. Every accepted
// value is clamped to its documented range before being stored (the rate,
// timeout, hold, noise and trail fields instead ignore out-of-range
// values). Returns, for logging, every recognized key present in values;
// a key is listed even when its value was of the wrong type or rejected.
func (c *Config) Update(values map[string]any) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var applied []string
	apply := func(key string) bool {
		_, ok := values[key]
		if ok {
			applied = append(applied, key)
		}
		return ok
	}

	if apply("arena_width_m") {
		if v, ok := asFloat(values["arena_width_m"]); ok {
			c.snap.ArenaWidthM = clampF(v, 5, 1000)
		}
	}
	if apply("arena_height_m") {
		if v, ok := asFloat(values["arena_height_m"]); ok {
			c.snap.ArenaHeightM = clampF(v, 5, 1000)
		}
	}
	if apply("tick_hz") {
		if v, ok := asFloat(values["tick_hz"]); ok && v > 0 {
			c.snap.TickHz = v
		}
	}
	if apply("ws_hz") {
		if v, ok := asFloat(values["ws_hz"]); ok && v > 0 {
			c.snap.WsHz = v
		}
	}
	if apply("world_update_hz") {
		if v, ok := asFloat(values["world_update_hz"]); ok && v > 0.1 {
			c.snap.WorldUpdateHz = v
		}
	}
	if apply("max_range_m") {
		if v, ok := asFloat(values["max_range_m"]); ok {
			c.snap.MaxRangeM = clampF(v, 1, 200)
		}
	}
	if apply("cone_half_angle_deg") {
		if v, ok := asFloat(values["cone_half_angle_deg"]); ok {
			c.snap.ConeHalfAngleDeg = clampF(v, 1, 90)
		}
	}
	if apply("quality_threshold") {
		if v, ok := asInt(values["quality_threshold"]); ok {
			c.snap.QualityThreshold = clampI(v, 0, 100)
		}
	}
	if apply("pos_quality_threshold") {
		if v, ok := asInt(values["pos_quality_threshold"]); ok {
			c.snap.PosQualityThreshold = clampI(v, 0, 100)
		}
	}
	if apply("offline_timeout_ms") {
		if v, ok := asInt64(values["offline_timeout_ms"]); ok && v >= 0 {
			c.snap.OfflineTimeoutMs = v
		}
	}
	if apply("alert_hold_ms") {
		if v, ok := asInt64(values["alert_hold_ms"]); ok && v >= 0 {
			c.snap.AlertHoldMs = v
		}
	}
	if apply("use_sim_positions") {
		if v, ok := values["use_sim_positions"].(bool); ok {
			c.snap.UseSimPositions = v
		}
	}
	if apply("sim_speed_mps") {
		if v, ok := asFloat(values["sim_speed_mps"]); ok {
			c.snap.SimSpeedMps = clampF(v, 0, 5)
		}
	}
	if apply("boundary_behavior") {
		if v, ok := values["boundary_behavior"].(string); ok {
			switch BoundaryBehavior(v) {
			case BoundaryBounce, BoundaryWrap:
				c.snap.BoundaryBehavior = BoundaryBehavior(v)
			}
		}
	}
	if apply("sim_noise") {
		if v, ok := asFloat(values["sim_noise"]); ok && v >= 0 {
			c.snap.SimNoise = v
		}
	}
	if apply("sim_paused") {
		if v, ok := values["sim_paused"].(bool); ok {
			c.snap.SimPaused = v
		}
	}
	if apply("trail_seconds") {
		if v, ok := asFloat(values["trail_seconds"]); ok && v >= 0 {
			c.snap.TrailSeconds = v
		}
	}
	if apply("sim_players_emulate_real") {
		if v, ok := values["sim_players_emulate_real"].(bool); ok {
			c.snap.SimPlayersEmulateReal = v
		}
	}
	if apply("default_player_ids") {
		if ids, ok := asPlayerIDs(values["default_player_ids"]); ok {
			c.snap.DefaultPlayerIDs = ids
		}
	}

	return applied
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func asPlayerIDs(v any) ([]uint8, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	ids := make([]uint8, 0, len(raw))
	for _, item := range raw {
		n, ok := asInt(item)
		if !ok || n < 0 || n > 255 {
			continue
		}
		ids = append(ids, uint8(n))
	}
	return ids, true
}
