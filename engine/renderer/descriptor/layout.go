package descriptor

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

// Device is the slice of hal.Device the descriptor layer talks to.
type Device interface {
	hal.DescriptorDevice
	Limits() hal.Limits
}

/**
 * @brief One binding slot of a descriptor set layout.
 */
type Binding struct {
	/** @brief The binding index used by the shader. */
	Slot uint32
	/** @brief The shader stages that read this binding. */
	Stages hal.ShaderStage
	/** @brief The kind of resource bound here. */
	Kind hal.DescriptorKind
	/** @brief The array length of the binding. Zero means 1. */
	Count uint32
}

type Layout struct {
	dev      Device
	id       hal.LayoutID
	label    string
	bindings []Binding
	bySlot   map[uint32]int
}

func newLabel(kind, l string) string {
	if l != "" {
		return l
	}
	return fmt.Sprintf("%s-%s", kind, uuid.NewString()[:8])
}

// NewLayout declares a set layout. Unknown kinds, duplicate slots and
// acceleration structures on devices without ray tracing are fatal.
func NewLayout(dev Device, label string, bindings []Binding) *Layout {
	l := &Layout{
		dev:    dev,
		label:  newLabel("layout", label),
		bySlot: make(map[uint32]int, len(bindings)),
	}
	limits := dev.Limits()

	halBindings := make([]hal.LayoutBinding, 0, len(bindings))
	for i, b := range bindings {
		if b.Count == 0 {
			b.Count = 1
		}
		switch b.Kind {
		case hal.DescriptorCombinedImageSampler, hal.DescriptorStorageImage,
			hal.DescriptorUniformBuffer, hal.DescriptorStorageBuffer:
		case hal.DescriptorAccelerationStructure:
			if !limits.AccelerationStructures {
				core.Fatal(fmt.Errorf("binding %d: %w: %s", b.Slot, hal.ErrUnsupported, b.Kind), l.label)
			}
		default:
			core.Fatal(fmt.Errorf("binding %d: unsupported descriptor kind %d", b.Slot, b.Kind), l.label)
		}
		if _, dup := l.bySlot[b.Slot]; dup {
			core.Fatal(fmt.Errorf("binding %d declared twice", b.Slot), l.label)
		}
		l.bySlot[b.Slot] = i
		l.bindings = append(l.bindings, b)
		halBindings = append(halBindings, hal.LayoutBinding{
			Slot:   b.Slot,
			Stages: b.Stages,
			Kind:   b.Kind,
			Count:  b.Count,
		})
	}

	id, err := dev.CreateDescriptorSetLayout(l.label, halBindings)
	if err != nil {
		core.Fatal(fmt.Errorf("create descriptor set layout: %w", err), l.label)
	}
	l.id = id
	return l
}

func (l *Layout) ID() hal.LayoutID {
	return l.id
}

func (l *Layout) Label() string {
	return l.label
}

func (l *Layout) Bindings() []Binding {
	return l.bindings
}

// Binding returns the declaration of slot.
func (l *Layout) Binding(slot uint32) (Binding, bool) {
	i, ok := l.bySlot[slot]
	if !ok {
		return Binding{}, false
	}
	return l.bindings[i], true
}

// PoolSizes returns how many descriptors of each kind sets sets of this
// layout need.
func (l *Layout) PoolSizes(sets uint32) []hal.PoolSize {
	var sizes []hal.PoolSize
	for _, b := range l.bindings {
		found := false
		for i := range sizes {
			if sizes[i].Kind == b.Kind {
				sizes[i].Count += b.Count * sets
				found = true
				break
			}
		}
		if !found {
			sizes = append(sizes, hal.PoolSize{Kind: b.Kind, Count: b.Count * sets})
		}
	}
	return sizes
}

func (l *Layout) Destroy() {
	if l.id == 0 {
		return
	}
	l.dev.DestroyDescriptorSetLayout(l.id)
	l.id = 0
}
