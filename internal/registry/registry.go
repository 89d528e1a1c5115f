// Package registry implements the authoritative per-player fused state: the
// UDP ingest path's sequence/rate bookkeeping, liveness, real-vs-simulated
// position selection, and the alert hysteresis state machine.
package registry

import (
	"sort"
	"sync"

	"github.com/fdwnet/coordinator/internal/codec"
	"github.com/fdwnet/coordinator/internal/config"
	"github.com/fdwnet/coordinator/internal/geometry"
	"github.com/fdwnet/coordinator/internal/simulator"
)

// PlayerState is one player's fully fused state: latest pose, liveness,
// rate/loss stats, and alert hysteresis. It has no notion of "real" vs
// "simulated" display position by itself — that's computed on demand by
// DisplayPosition/LogicPosition, since a player can flip between the two as
// telemetry quality changes.
type PlayerState struct {
	PlayerID uint8

	Seq         uint16
	TimestampMs uint32
	YawDeg      float64
	PitchDeg    float64
	RollDeg     float64
	Quality     uint8
	BatteryMv   uint16
	Flags       uint8

	RealXM     *float64
	RealYM     *float64
	PosQuality uint8

	GPSLatDeg  *float64
	GPSLonDeg  *float64
	GPSAltM    *float64
	GPSQuality uint8

	LastSeenMs       *int64
	Online           bool
	ConnectedSinceMs *int64
	Addr             string // empty means no known UDP peer (purely synthetic)
	PacketRateHz     float64
	SeqDropCount     uint64

	AlertOn          bool
	AlertIntensity   uint8
	AlertHoldUntilMs int64
}

// LogicPlayer is the per-player view fed to the alert evaluator: identity,
// pose, liveness, and the position to reason about geometrically (nil when
// no usable position exists).
type LogicPlayer struct {
	PlayerID uint8
	YawDeg   float64
	Quality  uint8
	Online   bool
	Position *geometry.Vec2
	Addr     string
}

// Registry is the single authoritative store of player state. The
// coordinator owns one Registry and one simulator.World; the Registry holds
// a non-owning handle to the World so it can fall back to simulated
// positions, but World never reaches back into Registry.
type Registry struct {
	mu      sync.Mutex
	cfg     *config.Config
	world   *simulator.World
	players map[uint8]*PlayerState
}

// New creates a Registry wired to cfg and world, pre-populating the
// configured default player ids.
func New(cfg *config.Config, world *simulator.World) *Registry {
	r := &Registry{
		cfg:     cfg,
		world:   world,
		players: make(map[uint8]*PlayerState),
	}
	for _, id := range cfg.Snapshot().DefaultPlayerIDs {
		r.ensureLocked(id)
	}
	return r
}

// EnsurePlayer returns the player's state, creating it (and its matching
// simulator slot) if this is the first time id has been seen. Idempotent.
func (r *Registry) EnsurePlayer(id uint8) *PlayerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(id)
}

func (r *Registry) ensureLocked(id uint8) *PlayerState {
	p, ok := r.players[id]
	if !ok {
		p = &PlayerState{PlayerID: id}
		r.players[id] = p
	}
	r.world.EnsurePlayer(id)
	return p
}

// NextAvailablePlayerID returns the smallest id in 1..=255 not currently
// registered, or ok == false when every id is taken.
func (r *Registry) NextAvailablePlayerID() (id uint8, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextAvailableLocked()
}

func (r *Registry) nextAvailableLocked() (uint8, bool) {
	for candidate := 1; candidate <= 255; candidate++ {
		if _, taken := r.players[uint8(candidate)]; !taken {
			return uint8(candidate), true
		}
	}
	return 0, false
}

// AddSimPlayer allocates the smallest free id and creates a synthetic
// player for it, returning ok == false when the id space is exhausted.
func (r *Registry) AddSimPlayer() (id uint8, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok = r.nextAvailableLocked()
	if !ok {
		return 0, false
	}
	r.ensureLocked(id)
	return id, true
}

// RemoveSimPlayer removes the highest id among players with no known UDP
// peer address, never evicting a real one. Returns ok == false when no
// removable player exists.
func (r *Registry) RemoveSimPlayer() (id uint8, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	best := -1
	for pid, p := range r.players {
		if p.Addr == "" && int(pid) > best {
			best = int(pid)
		}
	}
	if best < 0 {
		return 0, false
	}
	id = uint8(best)
	delete(r.players, id)
	r.world.RemovePlayer(id)
	return id, true
}

// IngestTelemetry folds a decoded telemetry packet into the addressed
// player's state: EMA packet rate, sequence-loss accounting, pose/quality
// overwrite, liveness transition, and (when pos_quality > 0) the real
// position fields.
func (r *Registry) IngestTelemetry(pkt *codec.TelemetryPacket, addr string, nowMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.ensureLocked(pkt.PlayerID)
	prevSeq := p.Seq
	prevSeenMs := p.LastSeenMs
	wasOnline := p.Online

	if prevSeenMs != nil {
		dtMs := nowMs - *prevSeenMs
		if dtMs < 0 {
			dtMs = 0
		}
		if dtMs > 0 {
			instantRateHz := 1000.0 / float64(dtMs)
			if p.PacketRateHz <= 0 {
				p.PacketRateHz = instantRateHz
			} else {
				p.PacketRateHz = p.PacketRateHz*0.8 + instantRateHz*0.2
			}
		}
	}

	if prevSeenMs != nil {
		seqDelta := uint16(pkt.Seq - prevSeq)
		if seqDelta > 1 && seqDelta < 0x8000 {
			p.SeqDropCount += uint64(seqDelta - 1)
		}
	}

	p.Seq = pkt.Seq
	p.TimestampMs = pkt.TimestampMs
	p.YawDeg = pkt.YawDeg
	p.PitchDeg = pkt.PitchDeg
	p.RollDeg = pkt.RollDeg
	p.Quality = pkt.Quality
	p.BatteryMv = pkt.BatteryMv
	p.Flags = pkt.Flags
	p.PosQuality = pkt.PosQuality
	if pkt.GPS != nil {
		p.GPSLatDeg = floatPtr(pkt.GPS.LatDeg)
		p.GPSLonDeg = floatPtr(pkt.GPS.LonDeg)
		p.GPSAltM = floatPtr(pkt.GPS.AltM)
		p.GPSQuality = pkt.GPS.Quality
	} else {
		p.GPSLatDeg, p.GPSLonDeg, p.GPSAltM, p.GPSQuality = nil, nil, nil, 0
	}

	now := nowMs
	p.LastSeenMs = &now
	p.Online = true
	if p.ConnectedSinceMs == nil || !wasOnline {
		p.ConnectedSinceMs = &now
	}
	p.Addr = addr

	if pkt.PosQuality > 0 {
		p.RealXM = floatPtr(float64(pkt.PosXCm) / 100)
		p.RealYM = floatPtr(float64(pkt.PosYCm) / 100)
	}
}

// UpdateOnlineFlags refreshes every player's online/connected-since state
// against the configured offline timeout. A purely synthetic player (no
// Addr) is kept perpetually online when sim_players_emulate_real is set.
func (r *Registry) UpdateOnlineFlags(nowMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := r.cfg.Snapshot()
	for _, p := range r.players {
		wasOnline := p.Online
		if cfg.SimPlayersEmulateReal && p.Addr == "" {
			now := nowMs
			p.LastSeenMs = &now
			p.Online = true
			if p.ConnectedSinceMs == nil || !wasOnline {
				p.ConnectedSinceMs = &now
			}
			if cfg.WorldUpdateHz > 0 {
				p.PacketRateHz = cfg.WorldUpdateHz
			}
			continue
		}
		if p.LastSeenMs == nil {
			p.Online = false
			p.ConnectedSinceMs = nil
			continue
		}
		p.Online = nowMs-*p.LastSeenMs <= cfg.OfflineTimeoutMs
		if wasOnline && !p.Online {
			p.ConnectedSinceMs = nil
		}
	}
}

func (r *Registry) hasValidRealPositionLocked(p *PlayerState) bool {
	if p.RealXM == nil || p.RealYM == nil {
		return false
	}
	return int(p.PosQuality) >= r.cfg.Snapshot().PosQualityThreshold
}

// DisplayPosition returns the position (and its source tag, "real" or
// "sim") that dashboards should render for p.
func (r *Registry) DisplayPosition(p *PlayerState) (pos geometry.Vec2, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.displayPositionLocked(p)
}

func (r *Registry) displayPositionLocked(p *PlayerState) (geometry.Vec2, string) {
	if r.hasValidRealPositionLocked(p) {
		return geometry.Vec2{X: *p.RealXM, Y: *p.RealYM}, "real"
	}
	sim := r.world.EnsurePlayer(p.PlayerID)
	return geometry.Vec2{X: sim.X, Y: sim.Y}, "sim"
}

// LogicPosition returns the position fed to the alert evaluator: trusted
// real position, else the simulator position if use_sim_positions is set,
// else nil (excluding the player from both source and target roles).
func (r *Registry) LogicPosition(p *PlayerState) *geometry.Vec2 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logicPositionLocked(p)
}

func (r *Registry) logicPositionLocked(p *PlayerState) *geometry.Vec2 {
	if r.hasValidRealPositionLocked(p) {
		return &geometry.Vec2{X: *p.RealXM, Y: *p.RealYM}
	}
	if r.cfg.Snapshot().UseSimPositions {
		sim := r.world.EnsurePlayer(p.PlayerID)
		return &geometry.Vec2{X: sim.X, Y: sim.Y}
	}
	return nil
}

// BuildLogicPlayers snapshots every player into the alert tick's working
// view, in no particular order.
func (r *Registry) BuildLogicPlayers() map[uint8]LogicPlayer {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[uint8]LogicPlayer, len(r.players))
	for id, p := range r.players {
		out[id] = LogicPlayer{
			PlayerID: id,
			YawDeg:   p.YawDeg,
			Quality:  p.Quality,
			Online:   p.Online,
			Position: r.logicPositionLocked(p),
			Addr:     p.Addr,
		}
	}
	return out
}

// UpdateAlertHysteresis applies one hysteresis transition for playerID and
// reports whether the player's alert state changed.
func (r *Registry) UpdateAlertHysteresis(playerID uint8, nowMs int64, insideOn, insideOff bool, intensity uint8) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[playerID]
	if !ok {
		return false
	}
	prevOn, prevIntensity := p.AlertOn, p.AlertIntensity

	holdMs := r.cfg.Snapshot().AlertHoldMs
	switch {
	case p.AlertOn && insideOn:
		p.AlertHoldUntilMs = nowMs + holdMs
		p.AlertIntensity = intensity
	case p.AlertOn && (!insideOff || nowMs >= p.AlertHoldUntilMs):
		p.AlertOn = false
		p.AlertIntensity = 0
	case p.AlertOn:
		if p.AlertIntensity < 64 {
			p.AlertIntensity = 64
		}
	case insideOn:
		p.AlertOn = true
		p.AlertIntensity = intensity
		p.AlertHoldUntilMs = nowMs + holdMs
	}

	return prevOn != p.AlertOn || prevIntensity != p.AlertIntensity
}

// Get returns a player's state, or ok == false if it isn't registered.
func (r *Registry) Get(id uint8) (*PlayerState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	return p, ok
}

// IDs returns every currently-registered player id, in ascending order.
func (r *Registry) IDs() []uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint8, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of registered players and how many are online.
func (r *Registry) Count() (total, online int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total = len(r.players)
	for _, p := range r.players {
		if p.Online {
			online++
		}
	}
	return total, online
}

func floatPtr(v float64) *float64 { return &v }
