package hyperlapse

// Sequence is an owned, growable list. Raw points and the Reel each own one,
// so truncating one never aliases the other.
type Sequence[T any] struct {
	items []T
}

// NewSequence returns an empty Sequence with room for capacity items.
func NewSequence[T any](capacity int) *Sequence[T] {
	return &Sequence[T]{items: make([]T, 0, capacity)}
}

func (s *Sequence[T]) Len() int { return len(s.items) }

// At returns the i-th item. It panics when i is out of range, like a slice.
func (s *Sequence[T]) At(i int) T { return s.items[i] }

// Last returns the final item, or false when the sequence is empty.
func (s *Sequence[T]) Last() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

func (s *Sequence[T]) Append(v ...T) {
	s.items = append(s.items, v...)
}

// RemoveAt deletes the i-th item, shifting the tail down by one.
func (s *Sequence[T]) RemoveAt(i int) {
	var zero T
	copy(s.items[i:], s.items[i+1:])
	s.items[len(s.items)-1] = zero
	s.items = s.items[:len(s.items)-1]
}

// Clear empties the sequence and drops references to the old items.
func (s *Sequence[T]) Clear() {
	clear(s.items)
	s.items = s.items[:0]
}

// Items returns a copy of the current contents.
func (s *Sequence[T]) Items() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}
