// Package multiset provides a counted multiset used for in-flight accounting.
package multiset

// Counted tracks a non-negative count per key and the sum of all counts.
// Keys whose count drops to zero are removed.
//
// The zero value is ready to use. Counted is not safe for concurrent use.
type Counted[K comparable] struct {
	counts map[K]int
	total  int
}

// New creates an empty Counted.
func New[K comparable]() *Counted[K] {
	return &Counted[K]{}
}

// Insert adds n to the count of k. Inserting zero is a no-op.
func (c *Counted[K]) Insert(k K, n int) {
	if n == 0 {
		return
	}
	if n < 0 {
		panic("multiset: negative insert")
	}
	if c.counts == nil {
		c.counts = make(map[K]int)
	}
	c.counts[k] += n
	c.total += n
}

// Erase subtracts n from the count of k. Erasing zero is a no-op.
//
// Erase panics if k is absent or n exceeds its count; either means the
// caller's accounting is broken.
func (c *Counted[K]) Erase(k K, n int) {
	if n == 0 {
		return
	}
	cur, ok := c.counts[k]
	if !ok {
		panic("multiset: erase of an absent key")
	}
	if n > cur || n < 0 {
		panic("multiset: erase exceeds current count")
	}
	c.total -= n
	if cur == n {
		delete(c.counts, k)
		return
	}
	c.counts[k] = cur - n
}

// Count returns the count of k.
func (c *Counted[K]) Count(k K) int {
	return c.counts[k]
}

// Total returns the sum of all counts.
func (c *Counted[K]) Total() int {
	return c.total
}

// IsEmpty reports whether the total is zero.
func (c *Counted[K]) IsEmpty() bool {
	return c.total == 0
}

// Len returns the number of distinct keys.
func (c *Counted[K]) Len() int {
	return len(c.counts)
}

// Clear removes k and returns the count it had.
func (c *Counted[K]) Clear(k K) int {
	n := c.counts[k]
	if n == 0 {
		return 0
	}
	delete(c.counts, k)
	c.total -= n
	return n
}

// Move transfers the whole count of k into other.
func (c *Counted[K]) Move(other *Counted[K], k K) {
	other.Insert(k, c.Clear(k))
}

// Copy adds the count of k to other without removing it here.
func (c *Counted[K]) Copy(other *Counted[K], k K) {
	other.Insert(k, c.Count(k))
}

// Range calls fn for every key with a positive count.
func (c *Counted[K]) Range(fn func(k K, n int)) {
	for k, n := range c.counts {
		fn(k, n)
	}
}
