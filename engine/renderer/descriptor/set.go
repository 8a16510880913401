package descriptor

import (
	"fmt"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

type slotState struct {
	binding Binding
	// one entry per array element; a zero handle means nothing was written yet
	elements []hal.DescriptorWrite
	added    uint32
}

// Set accumulates bindings on the CPU and writes them to the device in one
// batched update on Build.
type Set struct {
	dev    Device
	id     hal.SetID
	label  string
	layout *Layout
	slots  map[uint32]*slotState
	order  []uint32

	fallbackImage   hal.ImageID
	fallbackSampler hal.SamplerID
	dirty           bool
}

// NewSet allocates a set from pool and prepares an empty element for every
// array element the layout declares.
func NewSet(pool *Pool, layout *Layout, label string) *Set {
	s := &Set{
		dev:    pool.dev,
		label:  newLabel("set", label),
		layout: layout,
		slots:  make(map[uint32]*slotState, len(layout.bindings)),
	}
	s.id = pool.Allocate(layout)
	for _, b := range layout.bindings {
		st := &slotState{binding: b, elements: make([]hal.DescriptorWrite, b.Count)}
		for i := range st.elements {
			st.elements[i] = hal.DescriptorWrite{Set: s.id, Slot: b.Slot, ArrayElement: uint32(i), Kind: b.Kind}
		}
		s.slots[b.Slot] = st
		s.order = append(s.order, b.Slot)
	}
	return s
}

func (s *Set) ID() hal.SetID {
	return s.id
}

func (s *Set) Label() string {
	return s.label
}

func (s *Set) Layout() *Layout {
	return s.layout
}

// Dirty reports whether bindings changed since the last Build.
func (s *Set) Dirty() bool {
	return s.dirty
}

// SetFallback names the texture written into image elements that were never
// filled, so partially used sampler arrays stay valid.
func (s *Set) SetFallback(tex *resources.Texture) *Set {
	s.fallbackImage = tex.Image.ID()
	s.fallbackSampler = tex.Sampler.ID()
	return s
}

func (s *Set) slot(slot uint32, image bool, index uint32) *slotState {
	st, ok := s.slots[slot]
	if !validateWrites {
		return st
	}
	if !ok {
		core.Fatal(fmt.Errorf("slot %d is not declared by layout %s", slot, s.layout.label), s.label)
	}
	if st.binding.Kind.IsImage() != image {
		core.Fatal(fmt.Errorf("slot %d holds %s descriptors", slot, st.binding.Kind), s.label)
	}
	if index >= st.binding.Count {
		core.Fatal(fmt.Errorf("slot %d holds %d descriptors, element %d requested", slot, st.binding.Count, index), s.label)
	}
	return st
}

// AddBuffer appends a buffer range to the next free element of slot.
func (s *Set) AddBuffer(slot uint32, buf *resources.Buffer, offset, size uint64) *Set {
	var index uint32
	if st, ok := s.slots[slot]; ok {
		index = st.added
	}
	st := s.slot(slot, false, index)
	s.writeBuffer(st, index, buf, offset, size)
	st.added++
	return s
}

// AddImage appends an image and sampler to the next free element of slot.
func (s *Set) AddImage(slot uint32, img *resources.Image, sampler *resources.Sampler, layout hal.ImageLayout) *Set {
	var index uint32
	if st, ok := s.slots[slot]; ok {
		index = st.added
	}
	st := s.slot(slot, true, index)
	s.writeImage(st, index, img, sampler, layout)
	st.added++
	return s
}

// AddTexture is AddImage for a shader-readable texture.
func (s *Set) AddTexture(slot uint32, tex *resources.Texture) *Set {
	return s.AddImage(slot, tex.Image, tex.Sampler, hal.LayoutShaderReadOnly)
}

// UpdateBuffer replaces element index of slot.
func (s *Set) UpdateBuffer(slot, index uint32, buf *resources.Buffer, offset, size uint64) *Set {
	s.writeBuffer(s.slot(slot, false, index), index, buf, offset, size)
	return s
}

// UpdateImage replaces element index of slot.
func (s *Set) UpdateImage(slot, index uint32, img *resources.Image, sampler *resources.Sampler, layout hal.ImageLayout) *Set {
	s.writeImage(s.slot(slot, true, index), index, img, sampler, layout)
	return s
}

func (s *Set) UpdateTexture(slot, index uint32, tex *resources.Texture) *Set {
	return s.UpdateImage(slot, index, tex.Image, tex.Sampler, hal.LayoutShaderReadOnly)
}

// Reset empties every element of slot.
func (s *Set) Reset(slot uint32) *Set {
	st, ok := s.slots[slot]
	if !ok {
		return s
	}
	for i := range st.elements {
		st.elements[i] = hal.DescriptorWrite{Set: s.id, Slot: slot, ArrayElement: uint32(i), Kind: st.binding.Kind}
	}
	st.added = 0
	s.dirty = true
	return s
}

func (s *Set) writeBuffer(st *slotState, index uint32, buf *resources.Buffer, offset, size uint64) {
	if size == 0 {
		size = buf.Size() - offset
	}
	w := &st.elements[index]
	w.Buffer = buf.ID()
	w.Offset = offset
	w.Range = size
	s.dirty = true
}

func (s *Set) writeImage(st *slotState, index uint32, img *resources.Image, sampler *resources.Sampler, layout hal.ImageLayout) {
	w := &st.elements[index]
	w.Image = img.ID()
	w.Layout = layout
	if sampler != nil {
		w.Sampler = sampler.ID()
	}
	s.dirty = true
}

// Build writes every accumulated binding to the device in a single update.
// Empty image elements get the fallback texture; empty elements without a
// fallback are left untouched.
func (s *Set) Build() {
	writes := make([]hal.DescriptorWrite, 0, len(s.order))
	for _, slot := range s.order {
		for _, w := range s.slots[slot].elements {
			switch {
			case w.Kind.IsImage() && w.Image == 0:
				if s.fallbackImage == 0 {
					continue
				}
				w.Image = s.fallbackImage
				w.Sampler = s.fallbackSampler
				w.Layout = hal.LayoutShaderReadOnly
			case !w.Kind.IsImage() && w.Buffer == 0:
				continue
			}
			writes = append(writes, w)
		}
	}
	if len(writes) > 0 {
		s.dev.UpdateDescriptorSets(writes)
	}
	s.dirty = false
}
