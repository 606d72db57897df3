package serialmux

import "io"

// SerialPorter is the minimal surface the mux needs from a serial
// port. The abstraction exists so the LIDAR driver can be tested
// against an in-memory port instead of hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
