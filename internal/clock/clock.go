// Package clock supplies the engine's time source, stubable in tests.
package clock

import "time"

// NowFunc is the active time source. Swap it in tests for determinism and
// restore it afterwards.
var NowFunc = time.Now

// Now returns the current time from the active source.
func Now() time.Time { return NowFunc() }
