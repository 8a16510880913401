package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/anima-gfx/engine/core"
)

func TestTranslateKey(t *testing.T) {
	cases := map[glfw.Key]core.KeyCode{
		glfw.KeyA:         core.KEY_A,
		glfw.KeyZ:         core.KEY_Z,
		glfw.KeyF1:        core.KEY_F1,
		glfw.KeyF12:       core.KEY_F12,
		glfw.KeyKP7:       core.KEY_NUMPAD7,
		glfw.KeyEscape:    core.KEY_ESCAPE,
		glfw.KeyLeftShift: core.KEY_LSHIFT,
		glfw.Key5:         core.KeyCode('5'),
	}
	for key, want := range cases {
		got, ok := translateKey(key)
		assert.True(t, ok, "key %d", key)
		assert.Equal(t, want, got, "key %d", key)
	}

	_, ok := translateKey(glfw.KeyWorld1)
	assert.False(t, ok)
}

func TestClampCoord(t *testing.T) {
	assert.Equal(t, uint16(0), clampCoord(-3))
	assert.Equal(t, uint16(120), clampCoord(120.7))
	assert.Equal(t, uint16(65535), clampCoord(1e6))
}
