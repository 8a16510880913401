package descriptor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

type PoolConfig struct {
	Label   string
	MaxSets uint32
	Sizes   []hal.PoolSize
}

// Pool is a growable set of backing descriptor pools that all share one
// configuration. Allocation always targets the newest backing pool.
type Pool struct {
	dev Device
	cfg PoolConfig

	mu    sync.Mutex
	pools []hal.PoolID
}

func NewPool(dev Device, cfg PoolConfig) *Pool {
	cfg.Label = newLabel("pool", cfg.Label)
	if cfg.MaxSets == 0 {
		core.Fatal(fmt.Errorf("descriptor pool with zero max sets"), cfg.Label)
	}
	p := &Pool{dev: dev, cfg: cfg}
	p.grow()
	return p
}

func (p *Pool) grow() hal.PoolID {
	id, err := p.dev.CreateDescriptorPool(hal.PoolDesc{
		Label:   fmt.Sprintf("%s#%d", p.cfg.Label, len(p.pools)),
		MaxSets: p.cfg.MaxSets,
		Sizes:   p.cfg.Sizes,
	})
	if err != nil {
		core.Fatal(fmt.Errorf("create descriptor pool: %w", err), p.cfg.Label)
	}
	p.pools = append(p.pools, id)
	return id
}

// Allocate allocates a set from the current backing pool. When that pool is
// exhausted exactly one more pool is created and the allocation retried once;
// failing again is fatal.
func (p *Pool) Allocate(layout *Layout) hal.SetID {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.pools[len(p.pools)-1]
	set, err := p.dev.AllocateDescriptorSet(current, layout.ID())
	if err == nil {
		return set
	}
	if !errors.Is(err, hal.ErrOutOfPoolMemory) {
		core.Fatal(fmt.Errorf("allocate descriptor set for %s: %w", layout.Label(), err), p.cfg.Label)
	}

	core.LogDebug("descriptor pool %s exhausted, growing to %d pools", p.cfg.Label, len(p.pools)+1)
	set, err = p.dev.AllocateDescriptorSet(p.grow(), layout.ID())
	if err != nil {
		core.Fatal(fmt.Errorf("allocate descriptor set for %s after growing: %w", layout.Label(), err), p.cfg.Label)
	}
	return set
}

// Pools reports how many backing pools exist.
func (p *Pool) Pools() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pools)
}

func (p *Pool) Label() string {
	return p.cfg.Label
}

func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.pools {
		p.dev.DestroyDescriptorPool(id)
	}
	p.pools = nil
}
