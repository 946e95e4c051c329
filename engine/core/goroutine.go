package core

import "github.com/petermattis/goid"

// GoroutineID returns the id of the calling goroutine. It is only meant for
// affinity checks (an object that must be drained by the goroutine that built
// it), never for scheduling or storage keys.
func GoroutineID() uint64 {
	return uint64(goid.Get())
}
