package disk

import "fmt"

// Relocation describes the block moves performed by a compaction
type Relocation struct {
	moves map[Locator]Locator
	moved int
}

// Lookup returns the locator a block will occupy after compaction.
// The second result is false when from was not occupied.
func (r Relocation) Lookup(from Locator) (Locator, bool) {
	to, ok := r.moves[from]
	return to, ok
}

// Moved returns the number of blocks whose locator changes
func (r Relocation) Moved() int {
	return r.moved
}

// Len returns the number of occupied blocks covered by the relocation
func (r Relocation) Len() int {
	return len(r.moves)
}

// Relocator is implemented by anything holding locators into the pool.
// PrepareRelocation must reject a plan it cannot apply without mutating
// anything; CommitRelocation must not fail.
type Relocator interface {
	PrepareRelocation(r Relocation) error
	CommitRelocation(r Relocation)
}

// Compact moves all occupied blocks to the lowest locators, keeping their
// relative order, and rewrites the locators held by relocators. Either every
// relocator accepts the plan and everything moves, or nothing changes.
func (p *Pool) Compact(relocators ...Relocator) (Relocation, error) {
	plan := p.plan()

	for _, r := range relocators {
		if err := r.PrepareRelocation(plan); err != nil {
			return Relocation{}, fmt.Errorf("compaction rejected: %w", err)
		}
	}

	if plan.moved > 0 {
		next := 0
		for i := range p.slots {
			if !p.slots[i].occupied {
				continue
			}
			if next != i {
				p.slots[next] = p.slots[i]
				p.slots[i] = slot{}
			}
			next++
		}
	}

	for _, r := range relocators {
		r.CommitRelocation(plan)
	}

	return plan, nil
}

func (p *Pool) plan() Relocation {
	r := Relocation{moves: make(map[Locator]Locator, p.used)}
	next := 0
	for i := range p.slots {
		if !p.slots[i].occupied {
			continue
		}
		r.moves[Locator(i)] = Locator(next)
		if next != i {
			r.moved++
		}
		next++
	}
	return r
}
