package netio

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pose.report/internal/mcl"
	"github.com/banshee-data/pose.report/internal/monitoring"
)

// posePacket is the wire form of one published estimate.
type posePacket struct {
	X       float64    `json:"x"`
	Y       float64    `json:"y"`
	Heading float64    `json:"heading"`
	Cov     [3]float64 `json:"cov"`
	ESS     float64    `json:"ess"`
	StampUS int64      `json:"stamp_us"`
}

// PoseForwarder publishes filter estimates to a UDP address. It
// implements mcl.Publisher; Publish never blocks the filter cycle,
// estimates are dropped when the send queue is full.
type PoseForwarder struct {
	conn    *net.UDPConn
	channel chan mcl.Estimate
	address string
	dropped atomic.Uint64
}

// NewPoseForwarder dials the destination and returns an idle
// forwarder; call Start to begin sending.
func NewPoseForwarder(address string) (*PoseForwarder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve pose forward address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial pose forward address: %w", err)
	}
	return &PoseForwarder{
		conn:    conn,
		channel: make(chan mcl.Estimate, 64),
		address: address,
	}, nil
}

// Start begins the send goroutine. Send errors are counted and logged
// periodically rather than per packet.
func (f *PoseForwarder) Start(ctx context.Context) {
	go func() {
		failed := 0
		var lastErr error
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case est := <-f.channel:
				payload, err := json.Marshal(posePacket{
					X:       est.Pose.X,
					Y:       est.Pose.Y,
					Heading: est.Pose.Heading,
					Cov:     est.Cov,
					ESS:     est.ESS,
					StampUS: est.Stamp.UnixMicro(),
				})
				if err != nil {
					continue
				}
				if _, err := f.conn.Write(payload); err != nil {
					failed++
					lastErr = err
				}
			case <-ticker.C:
				if failed > 0 {
					monitoring.Logf("netio: failed to forward %d pose packets (latest: %v)", failed, lastErr)
					failed = 0
					lastErr = nil
				}
			}
		}
	}()

	monitoring.Logf("netio: forwarding pose estimates to %s", f.address)
}

// Publish queues an estimate for sending. Non-blocking.
func (f *PoseForwarder) Publish(est mcl.Estimate) {
	select {
	case f.channel <- est:
	default:
		f.dropped.Add(1)
	}
}

// Dropped reports estimates discarded because the send queue was full.
func (f *PoseForwarder) Dropped() uint64 { return f.dropped.Load() }

// Close closes the UDP connection.
func (f *PoseForwarder) Close() error {
	return f.conn.Close()
}
