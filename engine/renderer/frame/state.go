package frame

import (
	"errors"

	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

var (
	// ErrFrameState is returned when BeginFrame or EndFrame is called out of
	// order.
	ErrFrameState = errors.New("frame called in wrong state")

	// Swapchain results callers react to by resizing.
	ErrOutOfDate  = hal.ErrOutOfDate
	ErrSuboptimal = hal.ErrSuboptimal
)

// State is where the orchestrator is within the current frame.
type State uint8

const (
	Idle State = iota
	Acquired
	Recording
	Submitted
	Presented
)

func (s State) String() string {
	switch s {
	case Acquired:
		return "acquired"
	case Recording:
		return "recording"
	case Submitted:
		return "submitted"
	case Presented:
		return "presented"
	}
	return "idle"
}
