package chatsync

// Keyed is implemented by records that are deduplicated by identifier.
type Keyed interface {
	Key() string
}

// Store is an ordered collection deduplicated by Key. The first occurrence of
// a key keeps its position. Store holds no lock; its owner serializes access.
type Store[T Keyed] struct {
	items []T
	index map[string]int
}

func NewStore[T Keyed]() *Store[T] {
	return &Store[T]{index: make(map[string]int)}
}

func (s *Store[T]) Len() int { return len(s.items) }

// Items returns a copy of the collection in order.
func (s *Store[T]) Items() []T {
	return append([]T(nil), s.items...)
}

func (s *Store[T]) Get(key string) (T, bool) {
	if i, ok := s.index[key]; ok {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

func (s *Store[T]) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Reset replaces the whole collection, dropping duplicate keys in items.
func (s *Store[T]) Reset(items []T) {
	s.items = make([]T, 0, len(items))
	s.index = make(map[string]int, len(items))
	s.Append(items...)
}

// Clear empties the collection.
func (s *Store[T]) Clear() {
	s.items = nil
	s.index = make(map[string]int)
}

// Append adds items at the tail, skipping keys already present. It returns
// the number of items added.
func (s *Store[T]) Append(items ...T) int {
	added := 0
	for _, it := range items {
		k := it.Key()
		if _, ok := s.index[k]; ok {
			continue
		}
		s.index[k] = len(s.items)
		s.items = append(s.items, it)
		added++
	}
	return added
}

// Prepend adds items at the head in their given order, skipping keys already
// present. It returns the number of items added.
func (s *Store[T]) Prepend(items ...T) int {
	fresh := make([]T, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		k := it.Key()
		if _, ok := s.index[k]; ok {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, it)
	}
	if len(fresh) == 0 {
		return 0
	}
	s.items = append(fresh, s.items...)
	s.reindex()
	return len(fresh)
}

// Upsert replaces the item with the same key in place, or appends it. It
// reports whether the item was inserted.
func (s *Store[T]) Upsert(it T) bool {
	if i, ok := s.index[it.Key()]; ok {
		s.items[i] = it
		return false
	}
	s.Append(it)
	return true
}

// Replace swaps the item stored under key for it, keeping its position. The
// replacement may carry a different key; if that key is already held by
// another item, the entry under key is removed and the other item is
// overwritten instead. Replace reports whether key was present.
func (s *Store[T]) Replace(key string, it T) bool {
	i, ok := s.index[key]
	if !ok {
		return false
	}
	newKey := it.Key()
	if newKey != key {
		if j, dup := s.index[newKey]; dup {
			s.items[j] = it
			s.Remove(key)
			return true
		}
		delete(s.index, key)
		s.index[newKey] = i
	}
	s.items[i] = it
	return true
}

// Update applies fn to the item stored under key. It reports whether key was
// present.
func (s *Store[T]) Update(key string, fn func(T) T) bool {
	i, ok := s.index[key]
	if !ok {
		return false
	}
	return s.Replace(key, fn(s.items[i]))
}

// Remove deletes the item stored under key. It reports whether key was
// present.
func (s *Store[T]) Remove(key string) bool {
	i, ok := s.index[key]
	if !ok {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.reindex()
	return true
}

func (s *Store[T]) reindex() {
	s.index = make(map[string]int, len(s.items))
	for i, it := range s.items {
		s.index[it.Key()] = i
	}
}
