package serialmux

import (
	"bytes"
	"io"
	"sync"
)

// MockSerialPort is an in-memory SerialPorter for tests and dev mode.
// Reads come from an io.Pipe fed by PushLine; writes are captured for
// assertion.
type MockSerialPort struct {
	reader *io.PipeReader
	writer *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
}

// NewMockSerialPort creates an idle mock port.
func NewMockSerialPort() *MockSerialPort {
	r, w := io.Pipe()
	return &MockSerialPort{reader: r, writer: w}
}

// PushLine feeds one line (newline appended) into the port's read
// side. Blocks until the mux reader consumes it.
func (m *MockSerialPort) PushLine(line string) error {
	_, err := m.writer.Write([]byte(line + "\n"))
	return err
}

func (m *MockSerialPort) Read(p []byte) (int, error) {
	return m.reader.Read(p)
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.Write(p)
}

// Written returns everything the mux has sent to the device.
func (m *MockSerialPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.writer.Close()
	return m.reader.Close()
}

// NewMockSerialMux wraps a fresh mock port in a mux. The returned port
// is the test's handle for pushing lines.
func NewMockSerialMux() (*SerialMux[*MockSerialPort], *MockSerialPort) {
	port := NewMockSerialPort()
	return NewSerialMux(port), port
}
