package coordinator

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/fdwnet/coordinator/internal/codec"
	"github.com/fdwnet/coordinator/internal/monitoring"
)

// udpListener owns the inbound telemetry socket and the outbound alert
// path; both share the same *net.UDPConn, matching the one-socket,
// recv-and-send ownership the coordinator is specified to hold.
type udpListener struct {
	conn *net.UDPConn
}

func newUDPListener(host string, port int) (*udpListener, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &udpListener{conn: conn}, nil
}

func (l *udpListener) Close() error {
	return l.conn.Close()
}

// sendAlert transmits an alert frame back to the peer address last seen
// for the player, if any. Fire-and-forget: send errors are logged and
// dropped, never retried, per the no-retry backpressure policy.
func (l *udpListener) sendAlert(addr string, pkt codec.AlertPacket) {
	if addr == "" {
		return
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		monitoring.Logf("coordinator: bad peer addr %q: %v", addr, err)
		return
	}
	frame := codec.EncodeAlert(pkt)
	if _, err := l.conn.WriteToUDP(frame, udpAddr); err != nil {
		monitoring.Logf("coordinator: alert send to %s failed: %v", addr, err)
	}
}

// receiveLoop reads telemetry datagrams until ctx is cancelled, decoding
// and dispatching each to onPacket. Decode failures are logged and
// dropped; they never propagate.
func (l *udpListener) receiveLoop(ctx context.Context, onPacket func(pkt *codec.TelemetryPacket, addr string)) {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			monitoring.Logf("coordinator: udp read error: %v", err)
			continue
		}

		pkt, err := codec.DecodeTelemetry(buf[:n])
		if err != nil {
			monitoring.Logf("coordinator: dropping packet from %s: %v", addr, err)
			continue
		}
		onPacket(pkt, addr.String())
	}
}
