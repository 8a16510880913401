package core

import (
	"errors"
	"os"
	"sync"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrFenceTimeout     = errors.New("fence wait timed out")
	ErrDeviceLost       = errors.New("device lost")
	ErrUnknown          = errors.New("unknown")
)

// FatalHandler is invoked after a fatal condition has been logged. It must not
// return control to the failing call site.
type FatalHandler func(err error)

var (
	fatalMu      sync.Mutex
	fatalHandler FatalHandler = func(error) { os.Exit(1) }
)

// SetFatalHandler swaps the fatal handler and returns the previous one.
func SetFatalHandler(h FatalHandler) FatalHandler {
	fatalMu.Lock()
	defer fatalMu.Unlock()
	prev := fatalHandler
	fatalHandler = h
	return prev
}

// Fatal logs err with the debug label of the object that failed and aborts.
// GPU resources have no degraded mode, so there is no soft-fail path.
func Fatal(err error, label string) {
	if err == nil {
		err = ErrUnknown
	}
	getLogger().Error("fatal", "label", label, "err", err)
	fatal(err)
}

func fatal(err error) {
	fatalMu.Lock()
	h := fatalHandler
	fatalMu.Unlock()
	h(err)
	// a handler that returns would let the caller continue on a dead resource
	panic(err)
}
