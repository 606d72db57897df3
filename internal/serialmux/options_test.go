package serialmux

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptionsNormalizeDefaults(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("normalize empty options: %v", err)
	}
	if opts.BaudRate != 115200 || opts.DataBits != 8 || opts.StopBits != 1 || opts.Parity != "N" {
		t.Errorf("defaults = %+v, want 115200 8N1", opts)
	}
}

func TestPortOptionsNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{
			name: "explicit values pass through",
			in:   PortOptions{BaudRate: 230400, DataBits: 7, StopBits: 2, Parity: "E"},
			want: PortOptions{BaudRate: 230400, DataBits: 7, StopBits: 2, Parity: "E"},
		},
		{
			name: "parity words accepted",
			in:   PortOptions{Parity: "even"},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "E"},
		},
		{
			name: "odd parity",
			in:   PortOptions{Parity: "O"},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "O"},
		},
		{
			name:    "data bits out of range",
			in:      PortOptions{DataBits: 9},
			wantErr: true,
		},
		{
			name:    "bad stop bits",
			in:      PortOptions{StopBits: 3},
			wantErr: true,
		},
		{
			name:    "unknown parity",
			in:      PortOptions{Parity: "mark"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%+v) = %+v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%+v): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 230400, StopBits: 2, Parity: "E"}.SerialMode()
	if err != nil {
		t.Fatalf("serial mode: %v", err)
	}
	if mode.BaudRate != 230400 {
		t.Errorf("baud = %d, want 230400", mode.BaudRate)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("stop bits = %v, want two", mode.StopBits)
	}
	if mode.Parity != serial.EvenParity {
		t.Errorf("parity = %v, want even", mode.Parity)
	}

	if _, err := (PortOptions{Parity: "bad"}).SerialMode(); err == nil {
		t.Error("SerialMode accepted invalid parity")
	}
}
