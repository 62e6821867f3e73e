package margin

import (
	"MarginFlow/pkg/logger"
)

// pool tracks one domain's margin counters. Mutated only by the owning
// Manager while holding its lock.
type pool struct {
	capacity  float64
	allocated float64
	deployed  float64
}

// available is capacity minus allocated, floored at zero. Surge domains can
// push allocated past capacity under emergency signals, so the floor matters.
func (p *pool) available() float64 {
	if p.allocated >= p.capacity {
		return 0
	}
	return p.capacity - p.allocated
}

// utilization is deployed/allocated clamped to [0,1].
func (p *pool) utilization() float64 {
	if p.allocated <= 0 {
		return 0
	}
	u := p.deployed / p.allocated
	if u < 0 {
		return 0
	}
	if u > 1 {
		return 1
	}
	return u
}

// clampNegatives restores the non-negativity invariant. A negative counter is
// a programming defect; production behavior is clamp and log, never crash.
func (p *pool) clampNegatives(domain string, l *logger.Logger) {
	if p.allocated < 0 {
		l.Error("pool invariant violation: negative allocated",
			logger.String("domain", domain), logger.Any("allocated", p.allocated))
		p.allocated = 0
	}
	if p.deployed < 0 {
		l.Error("pool invariant violation: negative deployed",
			logger.String("domain", domain), logger.Any("deployed", p.deployed))
		p.deployed = 0
	}
	if p.capacity < 0 {
		l.Error("pool invariant violation: negative capacity",
			logger.String("domain", domain), logger.Any("capacity", p.capacity))
		p.capacity = 0
	}
}
