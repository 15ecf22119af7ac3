package projection

import "sync"

// View is an observable snapshot of one collection. Subscribers only ever
// see the latest snapshot: a value they have not read yet is replaced.
type View[T any] struct {
	mu    sync.Mutex
	items []T
	subs  map[int]chan []T
	next  int
}

func NewView[T any]() *View[T] {
	return &View[T]{
		items: []T{},
		subs:  make(map[int]chan []T),
	}
}

// Set replaces the snapshot and notifies subscribers.
func (v *View[T]) Set(items []T) {
	snapshot := make([]T, len(items))
	copy(snapshot, items)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.items = snapshot
	for _, ch := range v.subs {
		deliver(ch, snapshot)
	}
}

// Items returns a copy of the current snapshot.
func (v *View[T]) Items() []T {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]T, len(v.items))
	copy(out, v.items)
	return out
}

// Subscribe returns a channel primed with the current snapshot. Received
// slices are shared between subscribers and must not be modified. cancel
// closes the channel and is safe to call more than once.
func (v *View[T]) Subscribe() (<-chan []T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.next
	v.next++

	ch := make(chan []T, 1)
	ch <- v.items
	v.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()

			delete(v.subs, id)
			close(ch)
		})
	}

	return ch, cancel
}

func deliver[T any](ch chan []T, snapshot []T) {
	select {
	case <-ch:
	default:
	}

	ch <- snapshot
}
