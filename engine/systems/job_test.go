package systems

import (
	"errors"
	"io"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gfx/engine/core"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func TestNewJobSystemValidates(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestCallbacksRunOnUpdate(t *testing.T) {
	js, err := NewJobSystem(4, 16)
	require.NoError(t, err)
	t.Cleanup(func() { js.Shutdown() })

	var sum, failures int
	boom := errors.New("boom")
	for i := 1; i <= 10; i++ {
		n := i
		require.NoError(t, js.Submit(JobTask{
			Name:       "square",
			Run:        func() (interface{}, error) { return n * n, nil },
			OnComplete: func(r interface{}) { sum += r.(int) },
		}))
	}
	require.NoError(t, js.Submit(JobTask{
		Name:      "fail",
		Run:       func() (interface{}, error) { return nil, boom },
		OnFailure: func(err error) { assert.ErrorIs(t, err, boom); failures++ },
	}))
	require.NoError(t, js.Submit(JobTask{
		Name:      "panic",
		Run:       func() (interface{}, error) { panic("oops") },
		OnFailure: func(error) { failures++ },
	}))

	delivered := 0
	require.Eventually(t, func() bool {
		delivered += js.Update()
		return delivered == 12
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 385, sum)
	assert.Equal(t, 2, failures)
}

func TestTrySubmitReportsFullQueue(t *testing.T) {
	js, err := NewJobSystem(1, 1)
	require.NoError(t, err)

	release := make(chan struct{})
	var started atomic.Bool
	block := JobTask{Name: "block", Run: func() (interface{}, error) {
		started.Store(true)
		<-release
		return nil, nil
	}}
	require.NoError(t, js.Submit(block))
	require.Eventually(t, started.Load, time.Second, time.Millisecond)

	require.NoError(t, js.TrySubmit(JobTask{Name: "queued", Run: func() (interface{}, error) { return nil, nil }}))
	assert.ErrorIs(t, js.TrySubmit(JobTask{Name: "extra"}), ErrJobQueueFull)

	close(release)
	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())
	assert.ErrorIs(t, js.Submit(block), ErrJobSystemClosed)
	assert.Zero(t, js.Update())
}
