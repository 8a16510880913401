package core

import (
	"fmt"
	"sync"
)

// IdentifierPool hands out small integer ids, reusing released ones first.
// Ids start at 1 so the zero value can mean "none".
type IdentifierPool struct {
	mu     sync.Mutex
	owners []interface{}
}

func NewIdentifierPool(capacity int) *IdentifierPool {
	return &IdentifierPool{owners: make([]interface{}, 0, capacity)}
}

func (p *IdentifierPool) Acquire(owner interface{}) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.owners {
		// Existing free spot. Take it.
		if p.owners[i] == nil {
			p.owners[i] = owner
			return uint32(i) + 1
		}
	}
	p.owners = append(p.owners, owner)
	return uint32(len(p.owners))
}

func (p *IdentifierPool) Release(id uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id == 0 || int(id) > len(p.owners) {
		return fmt.Errorf("identifier release: id '%d' out of range (max=%d)", id, len(p.owners))
	}
	p.owners[id-1] = nil
	return nil
}

func (p *IdentifierPool) Owner(id uint32) interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id == 0 || int(id) > len(p.owners) {
		return nil
	}
	return p.owners[id-1]
}

// Each calls fn for every id in use, in id order.
func (p *IdentifierPool) Each(fn func(id uint32, owner interface{})) {
	p.mu.Lock()
	owners := append([]interface{}(nil), p.owners...)
	p.mu.Unlock()

	for i, owner := range owners {
		if owner != nil {
			fn(uint32(i)+1, owner)
		}
	}
}
