// Package units holds the small unit conversions shared across the
// daemon and tools. Internally everything is SI: meters, radians,
// seconds. Conversions exist only at the edges (CLI flags, display).
package units

import (
	"fmt"
	"math"
	"time"
)

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// MicrosToTime converts a wire timestamp (microseconds since the
// epoch) to time.Time.
func MicrosToTime(us int64) time.Time {
	return time.UnixMicro(us)
}

// TimeToMicros converts a time.Time to a wire timestamp.
func TimeToMicros(t time.Time) int64 {
	return t.UnixMicro()
}

// FormatRange renders a range in meters for display, switching to
// centimeters below one meter.
func FormatRange(meters float64) string {
	if math.Abs(meters) < 1 {
		return fmt.Sprintf("%.0fcm", meters*100)
	}
	return fmt.Sprintf("%.2fm", meters)
}

// FormatHeading renders a heading in degrees for display.
func FormatHeading(rad float64) string {
	return fmt.Sprintf("%.1f°", RadToDeg(rad))
}
