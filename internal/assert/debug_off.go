//go:build !strcoredebug

package assert

// Enabled reports whether expensive checks run.
const Enabled = false
