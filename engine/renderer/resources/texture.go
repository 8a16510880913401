package resources

import (
	"sync/atomic"

	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

var textureIDs atomic.Uint32

// Texture is a sampled image plus the sampler it is read with. ID is the
// identity batches deduplicate on.
type Texture struct {
	ID      uint32
	Image   *Image
	Sampler *Sampler
}

// CreateTexture uploads RGBA-style pixels into a shader-readable image.
func (a *Allocator) CreateTexture(label string, pixels []byte, width, height uint32, format hal.Format, sampler *Sampler) *Texture {
	img := a.CreateImage(ImageConfig{
		Label:  label,
		Width:  width,
		Height: height,
		Format: format,
		Usage:  hal.ImageUsageSampled | hal.ImageUsageTransferDst,
		Pixels: pixels,
	})
	return NewTexture(img, sampler)
}

// NewTexture pairs an existing image with a sampler, e.g. a render target that
// is read by a later pass.
func NewTexture(img *Image, sampler *Sampler) *Texture {
	return &Texture{
		ID:      textureIDs.Add(1),
		Image:   img,
		Sampler: sampler,
	}
}

func (t *Texture) Size() (uint32, uint32) {
	return t.Image.Size()
}

// Destroy releases the image. The sampler is shared and stays alive.
func (t *Texture) Destroy() {
	t.Image.Destroy()
}
