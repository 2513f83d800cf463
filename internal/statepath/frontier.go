package statepath

// Item is one unexplored state awaiting traversal.
type Item struct {
	Path  Path
	Depth int
}

// Frontier is a FIFO queue of items. Breadth-first order is fixed: states
// closer to the root are always explored before deeper ones.
type Frontier struct {
	items []Item
	head  int
}

// NewFrontier returns a frontier seeded with the given items.
func NewFrontier(seed ...Item) *Frontier {
	f := &Frontier{}
	for _, it := range seed {
		f.Push(it)
	}
	return f
}

// Push enqueues an item at the tail.
func (f *Frontier) Push(it Item) {
	f.items = append(f.items, it)
}

// Pop dequeues the oldest item.
func (f *Frontier) Pop() (Item, bool) {
	if f.head >= len(f.items) {
		return Item{}, false
	}
	it := f.items[f.head]
	f.items[f.head] = Item{}
	f.head++
	if f.head == len(f.items) {
		f.items = f.items[:0]
		f.head = 0
	}
	return it, true
}

// Len returns the number of queued items.
func (f *Frontier) Len() int { return len(f.items) - f.head }

// Pending returns a snapshot of queued items in dequeue order.
func (f *Frontier) Pending() []Item {
	out := make([]Item, f.Len())
	copy(out, f.items[f.head:])
	return out
}

// VisitedSet is a grow-only set of path hashes.
type VisitedSet struct {
	seen map[string]struct{}
}

// NewVisitedSet returns a set seeded with the given paths.
func NewVisitedSet(seed ...Path) *VisitedSet {
	v := &VisitedSet{seen: make(map[string]struct{})}
	for _, p := range seed {
		v.Add(p)
	}
	return v
}

// Add records p and reports whether it was new.
func (v *VisitedSet) Add(p Path) bool {
	h := p.Hash()
	if _, ok := v.seen[h]; ok {
		return false
	}
	v.seen[h] = struct{}{}
	return true
}

// Contains reports whether p was recorded.
func (v *VisitedSet) Contains(p Path) bool {
	_, ok := v.seen[p.Hash()]
	return ok
}

// Len returns the number of recorded paths.
func (v *VisitedSet) Len() int { return len(v.seen) }
