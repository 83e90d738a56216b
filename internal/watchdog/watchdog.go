// Package watchdog provides panic containment for the long-running
// goroutines of the controller, in the same spirit as the trace-agent's
// own watchdog: a goroutine that panics should be logged and let die,
// not take the whole process down with it.
package watchdog

import (
	"runtime/debug"

	log "github.com/cihub/seelog"
)

// LogOnPanic recovers a panic in the calling goroutine, logs it with a
// stack trace, and swallows it. Callers defer this at the top of any
// goroutine that must not crash the process.
func LogOnPanic() {
	if r := recover(); r != nil {
		log.Errorf("unrecovered panic: %v\n%s", r, debug.Stack())
	}
}
