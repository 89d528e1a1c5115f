// Package simulator implements the synthetic world model used to stand in
// for real position telemetry when it is absent or below quality threshold.
package simulator

import (
	"math"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// BoundaryBehavior selects what happens when a player's position would
// leave the arena.
type BoundaryBehavior int

const (
	// Bounce clamps the player to the edge and reflects its velocity inward.
	Bounce BoundaryBehavior = iota
	// Wrap carries the player through to the opposite edge.
	Wrap
)

// Point is a 2-D position in meters.
type Point struct {
	X float64
	Y float64
}

// Player is one simulator-owned slot: a 2-D random-walk position, heading,
// velocity, and a bounded trail of recent positions.
type Player struct {
	ID         uint8
	X, Y       float64
	HeadingRad float64
	VX, VY     float64
	trail      []Point
}

// Trail returns the player's recent positions, oldest first.
func (p *Player) Trail() []Point {
	out := make([]Point, len(p.trail))
	copy(out, p.trail)
	return out
}

// World owns every SimPlayer and the pseudo-random generator that drives
// their random walk. All methods are safe for concurrent use; the
// coordinator's simulation tick and the control-channel handlers for
// add/remove/randomize/reset all call into the same World.
type World struct {
	mu sync.Mutex

	arenaWidthM  float64
	arenaHeightM float64
	speedMps     float64
	updateHz     float64
	boundary     BoundaryBehavior
	steeringStd  float64
	trailSeconds float64
	paused       bool

	players map[uint8]*Player
	rng     *rand.Rand
}

// Config is the subset of World's tunables that Configure accepts, mirroring
// the coordinator's config snapshot fields relevant to the simulator.
type Config struct {
	ArenaWidthM  float64
	ArenaHeightM float64
	SpeedMps     float64
	UpdateHz     float64
	Boundary     BoundaryBehavior
	SteeringStd  float64
	TrailSeconds float64
}

// New creates a World seeded from seed (use a fixed seed for reproducible
// tests, or a time-derived seed in production).
func New(cfg Config, seed uint64) *World {
	w := &World{
		arenaWidthM:  cfg.ArenaWidthM,
		arenaHeightM: cfg.ArenaHeightM,
		speedMps:     cfg.SpeedMps,
		updateHz:     cfg.UpdateHz,
		boundary:     cfg.Boundary,
		steeringStd:  cfg.SteeringStd,
		trailSeconds: cfg.TrailSeconds,
		players:      make(map[uint8]*Player),
		rng:          rand.New(rand.NewSource(seed)),
	}
	return w
}

// Configure updates arena dimensions, speed, update rate, boundary behavior
// and steering noise in place. updateHz is only applied when > 0.1, per the
// coordinator's config validation.
func (w *World) Configure(cfg Config) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.arenaWidthM = cfg.ArenaWidthM
	w.arenaHeightM = cfg.ArenaHeightM
	w.speedMps = cfg.SpeedMps
	if cfg.UpdateHz > 0.1 {
		w.updateHz = cfg.UpdateHz
	}
	w.boundary = cfg.Boundary
	w.steeringStd = cfg.SteeringStd
	w.trailSeconds = cfg.TrailSeconds
}

// trailLen computes the bounded trail capacity from the current update
// rate and trail duration.
func (w *World) trailLen() int {
	n := int(math.Round(w.updateHz * w.trailSeconds))
	if n < 10 {
		n = 10
	}
	return n
}

// EnsurePlayer returns the existing player slot for id, or creates one at a
// uniformly random position and heading within the arena. Idempotent.
func (w *World) EnsurePlayer(id uint8) Player {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.players[id]; ok {
		return *p
	}
	p := w.spawnLocked(id)
	w.players[id] = p
	return *p
}

func (w *World) spawnLocked(id uint8) *Player {
	x := w.rng.Float64() * w.arenaWidthM
	y := w.rng.Float64() * w.arenaHeightM
	heading := w.rng.Float64()*2*math.Pi - math.Pi
	p := &Player{
		ID:         id,
		X:          x,
		Y:          y,
		HeadingRad: heading,
		VX:         math.Cos(heading) * w.speedMps,
		VY:         math.Sin(heading) * w.speedMps,
		trail:      make([]Point, 0, w.trailLen()),
	}
	p.trail = append(p.trail, Point{X: x, Y: y})
	return p
}

// RemovePlayer deletes id's slot, reporting whether it existed.
func (w *World) RemovePlayer(id uint8) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.players[id]; !ok {
		return false
	}
	delete(w.players, id)
	return true
}

// RandomizePositions re-samples every existing player's position and
// heading, clearing its trail.
func (w *World) RandomizePositions() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, p := range w.players {
		fresh := w.spawnLocked(id)
		*p = *fresh
	}
}

// Reset removes and recreates every currently-known player, producing fresh
// random positions while preserving the set of ids.
func (w *World) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]uint8, 0, len(w.players))
	for id := range w.players {
		ids = append(ids, id)
	}
	w.players = make(map[uint8]*Player, len(ids))
	for _, id := range ids {
		w.players[id] = w.spawnLocked(id)
	}
}

// SetPaused controls whether Step advances positions.
func (w *World) SetPaused(paused bool) {
	w.mu.Lock()
	w.paused = paused
	w.mu.Unlock()
}

// Paused reports the current pause state.
func (w *World) Paused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

// SetSpeed updates the cruising speed applied to every player's target
// velocity, clamped to be non-negative.
func (w *World) SetSpeed(speedMps float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if speedMps < 0 {
		speedMps = 0
	}
	w.speedMps = speedMps
}

// Step advances every player by dt seconds of simulated motion. A no-op
// while paused or when dt is not strictly positive.
func (w *World) Step(dt float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.paused || dt <= 0 {
		return
	}
	noise := distuv.Normal{Mu: 0, Sigma: w.steeringStd, Src: w.rng}
	for _, p := range w.players {
		w.stepPlayerLocked(p, dt, noise)
	}
}

func (w *World) stepPlayerLocked(p *Player, dt float64, noise distuv.Normal) {
	headingNoise := noise.Rand() * math.Sqrt(dt)
	p.HeadingRad = wrapPi(p.HeadingRad + headingNoise)

	targetVX := math.Cos(p.HeadingRad) * w.speedMps
	targetVY := math.Sin(p.HeadingRad) * w.speedMps

	alpha := math.Min(1, 2.5*dt)
	p.VX += (targetVX - p.VX) * alpha
	p.VY += (targetVY - p.VY) * alpha

	p.X += p.VX * dt
	p.Y += p.VY * dt

	switch w.boundary {
	case Wrap:
		p.X = wrapMod(p.X, w.arenaWidthM)
		p.Y = wrapMod(p.Y, w.arenaHeightM)
	default:
		w.bounceLocked(p)
	}

	p.trail = append(p.trail, Point{X: p.X, Y: p.Y})
	if max := w.trailLen(); len(p.trail) > max {
		p.trail = p.trail[len(p.trail)-max:]
	}
}

func (w *World) bounceLocked(p *Player) {
	switch {
	case p.X < 0:
		p.X = 0
		p.VX = math.Abs(p.VX)
	case p.X > w.arenaWidthM:
		p.X = w.arenaWidthM
		p.VX = -math.Abs(p.VX)
	}
	switch {
	case p.Y < 0:
		p.Y = 0
		p.VY = math.Abs(p.VY)
	case p.Y > w.arenaHeightM:
		p.Y = w.arenaHeightM
		p.VY = -math.Abs(p.VY)
	}
	p.HeadingRad = math.Atan2(p.VY, p.VX)
}

// Player returns a copy of id's current state and whether it exists.
func (w *World) Player(id uint8) (Player, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.players[id]
	if !ok {
		return Player{}, false
	}
	cp := *p
	cp.trail = p.Trail()
	return cp, true
}

// Snapshot returns a copy of every known player, unordered.
func (w *World) Snapshot() []Player {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Player, 0, len(w.players))
	for _, p := range w.players {
		cp := *p
		cp.trail = p.Trail()
		out = append(out, cp)
	}
	return out
}

func wrapPi(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func wrapMod(v, m float64) float64 {
	r := math.Mod(v, m)
	if r < 0 {
		r += m
	}
	return r
}
