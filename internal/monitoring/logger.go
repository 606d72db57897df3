// Package monitoring carries the process-wide diagnostic logging hooks.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf
// but may be replaced by SetLogger. Tests or library consumers can
// redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf logs verbose per-cycle diagnostics. It is a no-op unless
// EnableDebug is called; the filter loop calls it every cycle so the
// default must stay free.
var Debugf func(format string, v ...interface{}) = func(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// EnableDebug routes Debugf through the current Logf with a "debug:"
// prefix. It is a startup flag, not a runtime toggle.
func EnableDebug() {
	Debugf = func(format string, v ...interface{}) {
		Logf("debug: "+format, v...)
	}
}
