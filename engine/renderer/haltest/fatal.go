package haltest

import (
	"testing"

	"github.com/spaghettifunk/anima-gfx/engine/core"
)

// CatchFatal runs fn with the process-terminating fatal handler replaced and
// returns the error fn died with, or nil when fn completed normally.
func CatchFatal(t testing.TB, fn func()) (err error) {
	t.Helper()
	prev := core.SetFatalHandler(func(error) {})
	defer core.SetFatalHandler(prev)
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok {
				panic(r)
			}
			err = e
		}
	}()
	fn()
	return nil
}
