// Package assert checks internal contracts. A failed check is a programming
// error and panics; there is no recoverable path.
package assert

import "fmt"

// That panics with a formatted message when cond is false.
func That(cond bool, format string, args ...any) {
	if !cond {
		panic("strcore: " + fmt.Sprintf(format, args...))
	}
}

// Debugf runs That only in builds tagged strcoredebug. Use it for checks whose
// cost is proportional to the string length.
func Debugf(cond func() bool, format string, args ...any) {
	if Enabled {
		That(cond(), format, args...)
	}
}
