// Package disk simulates a fixed pool of equally sized disk blocks.
//
// Each block is either empty or holds exactly one record together with the
// name of the file that owns it. Blocks are handed out lowest index first and
// are never grown or shrunk after the pool is built.
package disk

import "fmt"

// Pool is a fixed-capacity array of blocks.
// A Pool is not safe for concurrent use; callers serialize access.
type Pool struct {
	slots []slot
	used  int
}

// NewPool creates a pool of capacity empty blocks
func NewPool(capacity int) (*Pool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: pool capacity must be positive, got %d",
			ErrInvalidArgument, capacity)
	}
	return &Pool{slots: make([]slot, capacity)}, nil
}

// Initialize marks every block empty, discarding all stored records
func (p *Pool) Initialize() {
	for i := range p.slots {
		p.slots[i] = slot{}
	}
	p.used = 0
}

// Capacity returns the number of blocks in the pool
func (p *Pool) Capacity() int {
	return len(p.slots)
}

// Used returns the number of occupied blocks
func (p *Pool) Used() int {
	return p.used
}

// Available returns the number of empty blocks
func (p *Pool) Available() int {
	return len(p.slots) - p.used
}

// Allocate stores record in the lowest empty block and returns its locator
func (p *Pool) Allocate(owner string, record Record) (Locator, error) {
	if err := ValidateName(owner); err != nil {
		return NoLocator, err
	}
	if err := record.Validate(); err != nil {
		return NoLocator, err
	}
	if p.used == len(p.slots) {
		return NoLocator, ErrOutOfSpace
	}

	for i := range p.slots {
		if !p.slots[i].occupied {
			p.slots[i] = slot{occupied: true, owner: owner, record: record}
			p.used++
			return Locator(i), nil
		}
	}

	// used disagrees with the slots; treat as full rather than corrupting state
	return NoLocator, ErrOutOfSpace
}

// Free marks the block at loc empty
func (p *Pool) Free(loc Locator) error {
	s, err := p.occupied(loc)
	if err != nil {
		return err
	}
	*s = slot{}
	p.used--
	return nil
}

// Get returns the record stored at loc
func (p *Pool) Get(loc Locator) (Record, error) {
	s, err := p.occupied(loc)
	if err != nil {
		return Record{}, err
	}
	return s.record, nil
}

// Owner returns the name of the file owning the block at loc
func (p *Pool) Owner(loc Locator) (string, error) {
	s, err := p.occupied(loc)
	if err != nil {
		return "", err
	}
	return s.owner, nil
}

// SetContent replaces the content of the record at loc in place
func (p *Pool) SetContent(loc Locator, content string) error {
	s, err := p.occupied(loc)
	if err != nil {
		return err
	}
	updated := Record{ID: s.record.ID, Content: content}
	if err := updated.Validate(); err != nil {
		return err
	}
	s.record = updated
	return nil
}

// Check verifies that loc is occupied and owned by owner
func (p *Pool) Check(owner string, loc Locator) error {
	s, err := p.occupied(loc)
	if err != nil {
		return err
	}
	if s.owner != owner {
		return fmt.Errorf("%w: block %d belongs to %q, not %q",
			ErrInvalidLocator, loc, s.owner, owner)
	}
	return nil
}

// Status reports every block in locator order
func (p *Pool) Status() []SlotStatus {
	status := make([]SlotStatus, len(p.slots))
	for i, s := range p.slots {
		status[i] = SlotStatus{Locator: Locator(i), Occupied: s.occupied}
		if s.occupied {
			status[i].Owner = s.owner
			status[i].Record = s.record
			status[i].Digest = s.record.Digest()
		}
	}
	return status
}

func (p *Pool) occupied(loc Locator) (*slot, error) {
	if loc < 0 || int(loc) >= len(p.slots) {
		return nil, fmt.Errorf("%w: block %d outside pool of %d",
			ErrInvalidLocator, loc, len(p.slots))
	}
	s := &p.slots[loc]
	if !s.occupied {
		return nil, fmt.Errorf("%w: block %d is empty", ErrInvalidLocator, loc)
	}
	return s, nil
}
