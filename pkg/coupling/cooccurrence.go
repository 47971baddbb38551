package coupling

// Pair is a coupled path and the number of commits it shared with a
// changed path.
type Pair struct {
	Path  string
	Count int
}

// row keeps counts for one changed path in first-seen order.
type row struct {
	counts map[string]int
	order  []string
}

// CoOccurrence is a two-level ordered map: changed path -> coupled path ->
// shared commit count. Both levels iterate in first-seen order, which
// makes ties deterministic for a given commit sequence.
type CoOccurrence struct {
	rows  map[string]*row
	order []string
}

// NewCoOccurrence returns an empty CoOccurrence.
func NewCoOccurrence() *CoOccurrence {
	return &CoOccurrence{rows: make(map[string]*row)}
}

// Add records one more commit shared by changed and other.
func (c *CoOccurrence) Add(changed, other string) {
	r, ok := c.rows[changed]
	if !ok {
		r = &row{counts: make(map[string]int)}
		c.rows[changed] = r
		c.order = append(c.order, changed)
	}

	if _, seen := r.counts[other]; !seen {
		r.order = append(r.order, other)
	}

	r.counts[other]++
}

// Count returns the shared commit count of a pair.
func (c *CoOccurrence) Count(changed, other string) int {
	r, ok := c.rows[changed]
	if !ok {
		return 0
	}

	return r.counts[other]
}

// Changed returns the changed paths that have at least one coupled path.
func (c *CoOccurrence) Changed() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)

	return out
}

// Row returns the coupled paths of changed in first-seen order.
func (c *CoOccurrence) Row(changed string) []Pair {
	r, ok := c.rows[changed]
	if !ok {
		return nil
	}

	pairs := make([]Pair, 0, len(r.order))
	for _, p := range r.order {
		pairs = append(pairs, Pair{Path: p, Count: r.counts[p]})
	}

	return pairs
}

// Len returns the number of distinct pairs.
func (c *CoOccurrence) Len() int {
	n := 0
	for _, r := range c.rows {
		n += len(r.order)
	}

	return n
}
