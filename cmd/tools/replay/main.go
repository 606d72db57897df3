// Command replay resends UDP payloads from a pcap capture at their
// original timing. Use it to feed recorded odometry traffic back into
// a running localizer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var (
	pcapFile = flag.String("pcap", "", "Capture file to replay (required)")
	port     = flag.Int("port", 9001, "Only replay UDP packets with this destination port")
	target   = flag.String("target", "127.0.0.1:9001", "UDP address to replay packets to")
	speed    = flag.Float64("speed", 1.0, "Replay speed multiplier (2.0 = twice as fast)")
	loop     = flag.Bool("loop", false, "Restart from the beginning when the capture ends")
)

func main() {
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("-pcap is required")
	}
	if *speed <= 0 {
		log.Fatal("-speed must be positive")
	}

	addr, err := net.ResolveUDPAddr("udp", *target)
	if err != nil {
		log.Fatalf("failed to resolve target: %v", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		log.Fatalf("failed to dial target: %v", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		sent, err := replayOnce(ctx, conn)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Fatalf("replay failed: %v", err)
		}
		log.Printf("replayed %d packets to %s", sent, *target)
		if !*loop {
			return
		}
	}
}

// replayOnce streams the capture front to back, pacing packets by
// their recorded inter-arrival gaps.
func replayOnce(ctx context.Context, conn *net.UDPConn) (int, error) {
	f, err := os.Open(*pcapFile)
	if err != nil {
		return 0, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("failed to read capture header: %w", err)
	}

	sent := 0
	var lastStamp time.Time

	for {
		data, ci, err := reader.ReadPacketData()
		if err == io.EOF {
			return sent, nil
		}
		if err != nil {
			return sent, fmt.Errorf("failed to read packet: %w", err)
		}

		payload := udpPayload(data, reader.LinkType(), *port)
		if payload == nil {
			continue
		}

		// Pace by the capture's own gaps, scaled by the multiplier.
		if !lastStamp.IsZero() {
			gap := time.Duration(float64(ci.Timestamp.Sub(lastStamp)) / *speed)
			if gap > 0 {
				select {
				case <-ctx.Done():
					return sent, ctx.Err()
				case <-time.After(gap):
				}
			}
		}
		lastStamp = ci.Timestamp

		if _, err := conn.Write(payload); err != nil {
			return sent, fmt.Errorf("failed to send packet: %w", err)
		}
		sent++
	}
}

// udpPayload extracts the payload of a UDP packet addressed to
// dstPort. Returns nil for anything else: other protocols, other
// ports, empty datagrams.
func udpPayload(data []byte, linkType layers.LinkType, dstPort int) []byte {
	packet := gopacket.NewPacket(data, linkType, gopacket.Default)
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok || int(udp.DstPort) != dstPort || len(udp.Payload) == 0 {
		return nil
	}
	return udp.Payload
}
