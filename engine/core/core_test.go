package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func TestFatalRunsHandlerThenPanics(t *testing.T) {
	var got error
	prev := SetFatalHandler(func(err error) { got = err })
	defer SetFatalHandler(prev)

	boom := errors.New("boom")
	assert.PanicsWithError(t, "boom", func() { Fatal(boom, "buffer.vertex") })
	assert.Equal(t, boom, got)

	assert.Panics(t, func() { Fatal(nil, "nil error") })
	assert.ErrorIs(t, got, ErrUnknown)
}

func TestIdentifierPoolReusesReleasedIds(t *testing.T) {
	p := NewIdentifierPool(4)
	a := p.Acquire("a")
	b := p.Acquire("b")
	assert.Equal(t, uint32(1), a)
	assert.Equal(t, uint32(2), b)

	require.NoError(t, p.Release(a))
	assert.Nil(t, p.Owner(a))
	assert.Equal(t, a, p.Acquire("c"))
	assert.Equal(t, "c", p.Owner(a))

	assert.Error(t, p.Release(0))
	assert.Error(t, p.Release(9))

	var ids []uint32
	p.Each(func(id uint32, _ interface{}) { ids = append(ids, id) })
	assert.Equal(t, []uint32{1, 2}, ids)
}

func TestMetricsAverageAndFPS(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < AVG_COUNT; i++ {
		m.Update(0.020)
	}
	assert.InDelta(t, 20.0, m.FrameTime(), 1e-6)
	assert.Zero(t, m.FPS())

	// the average only covers the last AVG_COUNT frames
	for i := 0; i < 120; i++ {
		m.Update(0.010)
	}
	fps, ms := m.Frame()
	assert.InDelta(t, 10.0, ms, 1e-6)
	assert.Greater(t, fps, 0.0)
}

func TestEventsStopAtFirstHandler(t *testing.T) {
	require.True(t, EventSystemInitialize())
	t.Cleanup(func() { EventSystemShutdown() })
	assert.False(t, EventSystemInitialize())

	var calls []string
	first := EventRegister(EVENT_CODE_RESIZED, func(EventContext) bool {
		calls = append(calls, "first")
		return true
	})
	EventRegister(EVENT_CODE_RESIZED, func(EventContext) bool {
		calls = append(calls, "second")
		return false
	})

	assert.True(t, EventFire(EventContext{Type: EVENT_CODE_RESIZED}))
	assert.Equal(t, []string{"first"}, calls)

	require.True(t, EventUnregister(EVENT_CODE_RESIZED, first))
	assert.False(t, EventUnregister(EVENT_CODE_RESIZED, first))
	assert.False(t, EventFire(EventContext{Type: EVENT_CODE_RESIZED}))
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestPostedEventsWaitForDispatch(t *testing.T) {
	require.True(t, EventSystemInitialize())
	t.Cleanup(func() { EventSystemShutdown() })

	var widths []uint32
	EventRegister(EVENT_CODE_RESIZED, func(ctx EventContext) bool {
		widths = append(widths, ctx.Data.(*SystemEvent).WindowWidth)
		return true
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for w := uint32(1); w <= 3; w++ {
			assert.NoError(t, EventPost(EventContext{Type: EVENT_CODE_RESIZED, Data: &SystemEvent{WindowWidth: w}}))
		}
	}()
	<-done
	assert.Empty(t, widths)

	assert.Equal(t, 3, EventDispatchPending())
	assert.Equal(t, []uint32{1, 2, 3}, widths)
	assert.Zero(t, EventDispatchPending())
}

func TestInputFiresOnlyOnChange(t *testing.T) {
	require.True(t, EventSystemInitialize())
	require.NoError(t, InputInitialize())
	t.Cleanup(func() {
		InputShutdown()
		EventSystemShutdown()
	})

	var pressed []KeyCode
	EventRegister(EVENT_CODE_KEY_PRESSED, func(ctx EventContext) bool {
		pressed = append(pressed, ctx.Data.(*KeyEvent).KeyCode)
		return true
	})

	require.NoError(t, InputProcessKey(KEY_A, true))
	require.NoError(t, InputProcessKey(KEY_A, true))
	assert.Equal(t, []KeyCode{KEY_A}, pressed)
	assert.True(t, InputIsKeyDown(KEY_A))
	assert.False(t, InputWasKeyDown(KEY_A))

	require.NoError(t, InputUpdate(0.016))
	assert.True(t, InputWasKeyDown(KEY_A))

	require.NoError(t, InputProcessButton(BUTTON_LEFT, true))
	assert.True(t, InputIsButtonDown(BUTTON_LEFT))
	require.NoError(t, InputProcessMouseMove(10, 20))
	x, y := InputGetMousePosition()
	assert.Equal(t, int32(10), x)
	assert.Equal(t, int32(20), y)
}

func TestInputFrameDeltas(t *testing.T) {
	require.True(t, EventSystemInitialize())
	require.NoError(t, InputInitialize())
	t.Cleanup(func() {
		InputShutdown()
		EventSystemShutdown()
	})

	require.NoError(t, InputProcessKey(KEY_V, true))
	require.NoError(t, InputProcessMouseMove(100, 100))
	require.NoError(t, InputProcessMouseWheel(2))
	require.NoError(t, InputProcessMouseWheel(-1))
	assert.True(t, InputKeyPressed(KEY_V))
	assert.Equal(t, int32(1), InputScrollDelta())

	require.NoError(t, InputUpdate(0.016))
	// held, not pressed again
	assert.False(t, InputKeyPressed(KEY_V))
	assert.Zero(t, InputScrollDelta())

	require.NoError(t, InputProcessMouseMove(90, 130))
	dx, dy := InputMouseDelta()
	assert.Equal(t, int32(-10), dx)
	assert.Equal(t, int32(30), dy)
}

func TestInputIgnoredBeforeInitialize(t *testing.T) {
	assert.NoError(t, InputProcessKey(KEY_A, true))
	assert.NoError(t, InputProcessMouseWheel(1))
	assert.False(t, InputIsKeyDown(KEY_A))
	assert.False(t, InputIsKeyUp(KEY_A))
	assert.Zero(t, InputScrollDelta())
}

func TestClockMeasuresOnUpdate(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Zero(t, c.Elapsed())
	c.Start()
	c.Update()
	assert.GreaterOrEqual(t, c.Elapsed(), 0.0)
	c.Stop()
	before := c.Elapsed()
	c.Update()
	assert.Equal(t, before, c.Elapsed())
}

func TestClockTicksAddUpToElapsed(t *testing.T) {
	c := NewClock()
	c.Start()
	var sum float64
	for i := 0; i < 3; i++ {
		time.Sleep(2 * time.Millisecond)
		d := c.Tick()
		assert.Positive(t, d)
		sum += d
	}
	assert.InDelta(t, c.Elapsed(), sum, 1e-9)

	// frozen clock, nothing passes
	c.Stop()
	assert.Zero(t, c.Tick())
}

func TestLogFormatSwitchesToJSON(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetLogFormat("json")
	defer func() {
		SetLogFormat("text")
		SetLogOutput(io.Discard)
	}()

	LogInfo("swapchain rebuilt %dx%d", 640, 480)
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "swapchain rebuilt 640x480", line["msg"])

	// unknown names keep json
	buf.Reset()
	SetLogFormat("xml")
	buf.Reset()
	LogInfo("still json")
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "still json", line["msg"])
}
