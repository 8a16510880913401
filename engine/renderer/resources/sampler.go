package resources

import (
	"fmt"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

type SamplerConfig struct {
	Label       string
	MagFilter   hal.Filter
	MinFilter   hal.Filter
	AddressMode hal.AddressMode
	Anisotropy  bool
}

type Sampler struct {
	alloc *Allocator
	id    hal.SamplerID
	label string
}

func (a *Allocator) CreateSampler(cfg SamplerConfig) *Sampler {
	s := &Sampler{alloc: a, label: label("sampler", cfg.Label)}
	// anisotropy is only requested when the device reports any
	anisotropy := cfg.Anisotropy && a.limits.MaxSamplerAnisotropy > 1
	id, err := a.dev.CreateSampler(hal.SamplerDesc{
		Label:       s.label,
		MagFilter:   cfg.MagFilter,
		MinFilter:   cfg.MinFilter,
		AddressMode: cfg.AddressMode,
		Anisotropy:  anisotropy,
	})
	if err != nil {
		core.Fatal(fmt.Errorf("create sampler: %w", err), s.label)
	}
	s.id = id
	return s
}

func (s *Sampler) ID() hal.SamplerID {
	return s.id
}

func (s *Sampler) Label() string {
	return s.label
}

func (s *Sampler) Destroy() {
	if s.id == 0 {
		return
	}
	s.alloc.dev.DestroySampler(s.id)
	s.id = 0
}
