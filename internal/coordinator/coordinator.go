// Package coordinator wires the registry, simulator and config together
// behind the three periodic tasks and the UDP/WebSocket surface described
// in the system's external interfaces.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/fdwnet/coordinator/internal/codec"
	"github.com/fdwnet/coordinator/internal/config"
	"github.com/fdwnet/coordinator/internal/geometry"
	"github.com/fdwnet/coordinator/internal/registry"
	"github.com/fdwnet/coordinator/internal/simulator"
	"github.com/fdwnet/coordinator/internal/timeutil"
)

// Options configures a Coordinator at construction time.
type Options struct {
	Host    string
	UDPPort int
	Config  config.Snapshot
	Seed    uint64
	Clock   timeutil.Clock
	Version string
}

// Coordinator owns the registry, simulator, config, the UDP transport, and
// the set of active dashboard sessions. It runs the three periodic tasks
// (simulation, alert, broadcast) plus the UDP receive path.
type Coordinator struct {
	cfg   *config.Config
	world *simulator.World
	reg   *registry.Registry
	udp   *udpListener
	clock timeutil.Clock

	sessions  *sessionSet
	recording *recordingState
	version   string
	startedAt time.Time

	simPrevTick time.Time
}

// New builds a Coordinator and binds its UDP socket. Callers then call Run
// to start the periodic tasks and receive loop, cancelling the passed
// context to shut everything down.
func New(opts Options) (*Coordinator, error) {
	clk := opts.Clock
	if clk == nil {
		clk = timeutil.RealClock{}
	}

	cfg := config.New(opts.Config)
	world := simulator.New(simulatorConfigFrom(opts.Config), opts.Seed)
	reg := registry.New(cfg, world)

	udp, err := newUDPListener(opts.Host, opts.UDPPort)
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		cfg:         cfg,
		world:       world,
		reg:         reg,
		udp:         udp,
		clock:       clk,
		sessions:    newSessionSet(),
		recording:   newRecordingState(),
		version:     opts.Version,
		startedAt:   clk.Now(),
		simPrevTick: clk.Now(),
	}, nil
}

func simulatorConfigFrom(s config.Snapshot) simulator.Config {
	boundary := simulator.Bounce
	if s.BoundaryBehavior == config.BoundaryWrap {
		boundary = simulator.Wrap
	}
	return simulator.Config{
		ArenaWidthM:  s.ArenaWidthM,
		ArenaHeightM: s.ArenaHeightM,
		SpeedMps:     s.SimSpeedMps,
		UpdateHz:     s.WorldUpdateHz,
		Boundary:     boundary,
		SteeringStd:  s.SimNoise,
		TrailSeconds: s.TrailSeconds,
	}
}

// Run starts the UDP receive loop and the three periodic tasks, and blocks
// until ctx is cancelled and every task has stopped.
func (c *Coordinator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	stop := ctx.Done()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.udp.receiveLoop(ctx, c.onTelemetry)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		timeutil.PaceLoop(c.clock, func() time.Duration { return hzPeriod(c.cfg.Snapshot().WorldUpdateHz) }, stop, c.simulationTick)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		timeutil.PaceLoop(c.clock, func() time.Duration { return hzPeriod(c.cfg.Snapshot().TickHz) }, stop, c.alertTick)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		timeutil.PaceLoop(c.clock, func() time.Duration { return hzPeriod(c.cfg.Snapshot().WsHz) }, stop, c.broadcastTick)
	}()

	wg.Wait()
	c.udp.Close()
}

func hzPeriod(hz float64) time.Duration {
	if hz <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / hz)
}

// onTelemetry is the UDP receive path's packet handler: decode already
// happened, so this just folds the packet into the registry and ensures a
// matching simulator slot exists.
func (c *Coordinator) onTelemetry(pkt *codec.TelemetryPacket, addr string) {
	now := c.clock.Now().UnixMilli()
	c.reg.IngestTelemetry(pkt, addr, now)
	c.world.EnsurePlayer(pkt.PlayerID)
	c.recording.recordTelemetry(now, pkt)
}

// simulationTick advances the simulator by the measured wall-clock delta
// since the previous tick and refreshes liveness flags.
func (c *Coordinator) simulationTick() {
	now := c.clock.Now()
	dt := now.Sub(c.simPrevTick).Seconds()
	c.simPrevTick = now

	snap := c.cfg.Snapshot()
	c.world.Configure(simulatorConfigFrom(snap))
	c.world.SetPaused(snap.SimPaused)
	c.world.Step(dt)
	c.reg.UpdateOnlineFlags(now.UnixMilli())
}

// alertTick builds the logic view and, for every eligible source, evaluates
// against all other players and applies hysteresis, transmitting an alert
// datagram to the source's last-known address either way.
func (c *Coordinator) alertTick() {
	now := c.clock.Now().UnixMilli()
	snap := c.cfg.Snapshot()
	logicPlayers := c.reg.BuildLogicPlayers()

	for id, src := range logicPlayers {
		eligible := src.Position != nil && src.Online && int(src.Quality) >= snap.QualityThreshold

		var insideOn, insideOff bool
		var intensity uint8
		if eligible {
			targets := make([]geometry.Vec2, 0, len(logicPlayers))
			for otherID, other := range logicPlayers {
				if otherID == id || other.Position == nil {
					continue
				}
				targets = append(targets, *other.Position)
			}
			_, best, anyOn, anyOff := geometry.EvaluateTargets(
				geometry.Source{Pos: *src.Position, YawDeg: src.YawDeg},
				targets, snap.MaxRangeM, snap.ConeHalfAngleDeg,
			)
			insideOn, insideOff, intensity = anyOn, anyOff, best
		}

		c.reg.UpdateAlertHysteresis(id, now, insideOn, insideOff, intensity)

		p, ok := c.reg.Get(id)
		if !ok {
			continue
		}
		c.udp.sendAlert(p.Addr, codec.AlertPacket{
			PlayerID:  id,
			AlertOn:   p.AlertOn,
			Intensity: p.AlertIntensity,
			HoldMs:    holdRemainingMs(p.AlertHoldUntilMs, now),
		})
	}
	c.recording.recordEvent(now, "alert_tick")
}

func holdRemainingMs(holdUntilMs, nowMs int64) uint16 {
	remaining := holdUntilMs - nowMs
	if remaining < 0 {
		return 0
	}
	if remaining > 65535 {
		return 65535
	}
	return uint16(remaining)
}

// broadcastTick serializes the world snapshot once and fans it out to every
// attached dashboard session, evicting any whose send fails.
func (c *Coordinator) broadcastTick() {
	if c.sessions.len() == 0 {
		return
	}
	now := c.clock.Now().UnixMilli()
	ws := c.reg.WorldStateMessage(now)
	c.sessions.broadcast(envelope{Type: "world_state", Payload: ws})
}

// Registry, World and Config expose the coordinator's owned components for
// the HTTP/WS handlers in this package.
func (c *Coordinator) Registry() *registry.Registry { return c.reg }
func (c *Coordinator) World() *simulator.World      { return c.world }
func (c *Coordinator) Config() *config.Config       { return c.cfg }
