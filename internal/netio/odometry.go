// Package netio carries the localization daemon's UDP surfaces: the
// odometry listener feeding the filter and the pose forwarder pushing
// estimates to downstream consumers.
package netio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pose.report/internal/mcl"
	"github.com/banshee-data/pose.report/internal/monitoring"
)

// ControlSink accepts odometry deltas. Implemented by mcl.Controller.
type ControlSink interface {
	OfferControl(mcl.Control) error
}

// odometryPacket is the wire form of one odometry delta. Stamps are
// microseconds since the epoch so embedded senders avoid time
// formatting.
type odometryPacket struct {
	DX      float64 `json:"dx"`
	DY      float64 `json:"dy"`
	DTheta  float64 `json:"dtheta"`
	StampUS int64   `json:"stamp_us"`
}

// OdometryListenerConfig contains configuration options for the
// odometry listener.
type OdometryListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
}

// OdometryListener receives odometry packets over UDP and offers them
// to the filter controller.
type OdometryListener struct {
	cfg    OdometryListenerConfig
	sink   ControlSink
	buffer []byte

	received  atomic.Uint64
	malformed atomic.Uint64
	rejected  atomic.Uint64
	localAddr atomic.Value // net.Addr, set once listening
}

// OdometryStats is a point-in-time snapshot of listener counters.
type OdometryStats struct {
	PacketsReceived  uint64
	PacketsMalformed uint64
	PacketsRejected  uint64
}

// NewOdometryListener creates a listener delivering to sink.
func NewOdometryListener(cfg OdometryListenerConfig, sink ControlSink) (*OdometryListener, error) {
	if sink == nil {
		return nil, errors.New("netio: nil control sink")
	}
	if cfg.Address == "" {
		return nil, errors.New("netio: empty listen address")
	}
	return &OdometryListener{
		cfg:    cfg,
		sink:   sink,
		buffer: make([]byte, 512), // odometry packets are tens of bytes
	}, nil
}

// LocalAddr reports the bound address once Start is listening, or nil
// before that. Useful when listening on port 0.
func (l *OdometryListener) LocalAddr() net.Addr {
	addr, _ := l.localAddr.Load().(net.Addr)
	return addr
}

// Stats returns a snapshot of the listener counters.
func (l *OdometryListener) Stats() OdometryStats {
	return OdometryStats{
		PacketsReceived:  l.received.Load(),
		PacketsMalformed: l.malformed.Load(),
		PacketsRejected:  l.rejected.Load(),
	}
}

// Start listens for odometry packets until the context is cancelled.
func (l *OdometryListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve odometry address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for odometry: %w", err)
	}
	defer conn.Close()

	if l.cfg.RcvBuf > 0 {
		if err := conn.SetReadBuffer(l.cfg.RcvBuf); err != nil {
			monitoring.Logf("netio: failed to set odometry receive buffer to %d bytes: %v", l.cfg.RcvBuf, err)
		}
	}

	l.localAddr.Store(conn.LocalAddr())
	monitoring.Logf("netio: listening for odometry on %s", conn.LocalAddr())

	if l.cfg.LogInterval > 0 {
		go l.statsLoop(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("netio: odometry listener shutting down")
			return ctx.Err()
		default:
		}

		// Bounded read so context cancellation is observed promptly.
		if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			monitoring.Logf("netio: error setting odometry read deadline: %v", err)
			continue
		}
		n, _, err := conn.ReadFromUDP(l.buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			monitoring.Logf("netio: error reading odometry packet: %v", err)
			continue
		}

		l.received.Add(1)
		l.handlePacket(l.buffer[:n])
	}
}

func (l *OdometryListener) handlePacket(data []byte) {
	var pkt odometryPacket
	if err := json.Unmarshal(data, &pkt); err != nil {
		l.malformed.Add(1)
		monitoring.Debugf("netio: dropping malformed odometry packet: %v", err)
		return
	}
	ctrl := mcl.Control{
		DX:     pkt.DX,
		DY:     pkt.DY,
		DTheta: pkt.DTheta,
		Stamp:  time.UnixMicro(pkt.StampUS),
	}
	if err := l.sink.OfferControl(ctrl); err != nil {
		l.rejected.Add(1)
		monitoring.Debugf("netio: filter rejected odometry: %v", err)
	}
}

func (l *OdometryListener) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.LogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := l.Stats()
			monitoring.Logf("netio: odometry packets=%d malformed=%d rejected=%d",
				s.PacketsReceived, s.PacketsMalformed, s.PacketsRejected)
		}
	}
}
