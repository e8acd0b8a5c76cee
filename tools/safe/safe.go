package safe

import (
	"runtime/debug"

	"TalkWire/logger"
)

// Go starts a goroutine that recovers from panic, so a misbehaving
// connection handler cannot take the whole gateway down.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] panic recovered: %v\n%s", r, debug.Stack())
			}
		}()
		f()
	}()
}
