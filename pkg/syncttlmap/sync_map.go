package syncttlmap

import (
	"sync"
	"time"
)

// Map is a concurrent map whose entries expire after TTL. Updates of a single key are serialised,
// so a read-modify-write done through Update is atomic with respect to every other operation on
// that key. Operations on different keys never block each other.
type Map[V any] struct {
	TTL  time.Duration
	now  func() time.Time
	data sync.Map
}

type entry[V any] struct {
	mu        sync.Mutex
	value     V
	expiresAt time.Time
	present   bool
	deleted   bool
}

// New returns a new Map. A ttl of zero keeps entries until they are deleted.
func New[V any](ttl time.Duration) *Map[V] {
	return &Map[V]{TTL: ttl, now: time.Now}
}

// WithClock replaces the time source used for entry expiry
func (t *Map[V]) WithClock(now func() time.Time) *Map[V] {
	t.now = now
	return t
}

// Store saves a key/value pair into the map
func (t *Map[V]) Store(key string, val V) {
	_ = t.Update(key, func(V, bool) (V, bool, error) {
		return val, true, nil
	})
}

// Load retrieves the value of the given key. ok is false when the key is missing or expired.
func (t *Map[V]) Load(key string) (val V, ok bool) {
	v, found := t.data.Load(key)
	if !found {
		return val, false
	}
	e := v.(*entry[V])
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.live(t.now()) {
		return val, false
	}
	return e.value, true
}

// Update runs fn with the current value of key while holding the key lock. fn returns the new
// value and whether it must be kept; returning keep=false removes the key. When fn fails the
// entry is left untouched and the error is returned.
func (t *Map[V]) Update(key string, fn func(old V, ok bool) (V, bool, error)) error {
	for {
		v, _ := t.data.LoadOrStore(key, &entry[V]{})
		e := v.(*entry[V])
		e.mu.Lock()
		if e.deleted {
			// lost a race with Delete, the entry is no longer in the map
			e.mu.Unlock()
			continue
		}
		err := t.apply(key, e, fn)
		e.mu.Unlock()
		return err
	}
}

func (t *Map[V]) apply(key string, e *entry[V], fn func(old V, ok bool) (V, bool, error)) error {
	now := t.now()
	var old V
	live := e.live(now)
	if live {
		old = e.value
	}
	next, keep, err := fn(old, live)
	if err != nil {
		if !e.present {
			t.remove(key, e)
		}
		return err
	}
	if !keep {
		t.remove(key, e)
		return nil
	}
	e.value = next
	e.present = true
	if t.TTL > 0 {
		e.expiresAt = now.Add(t.TTL)
	}
	return nil
}

// Delete deletes the given key from the map
func (t *Map[V]) Delete(key string) {
	v, found := t.data.Load(key)
	if !found {
		return
	}
	e := v.(*entry[V])
	e.mu.Lock()
	t.remove(key, e)
	e.mu.Unlock()
}

// Range calls f for every live entry. Values are read under the key lock but f runs without it.
func (t *Map[V]) Range(f func(key string, val V) bool) {
	now := t.now()
	t.data.Range(func(k, v any) bool {
		e := v.(*entry[V])
		e.mu.Lock()
		live := e.live(now)
		val := e.value
		e.mu.Unlock()
		if !live {
			return true
		}
		return f(k.(string), val)
	})
}

// Purge removes the entries whose ttl elapsed and returns how many were removed
func (t *Map[V]) Purge() int {
	now := t.now()
	n := 0
	t.data.Range(func(k, v any) bool {
		e := v.(*entry[V])
		e.mu.Lock()
		if e.present && !e.deleted && !e.live(now) {
			t.remove(k.(string), e)
			n++
		}
		e.mu.Unlock()
		return true
	})
	return n
}

// Len returns the number of live entries
func (t *Map[V]) Len() int {
	n := 0
	t.Range(func(string, V) bool {
		n++
		return true
	})
	return n
}

// remove must be called holding e.mu
func (t *Map[V]) remove(key string, e *entry[V]) {
	var zero V
	e.deleted = true
	e.present = false
	e.value = zero
	t.data.CompareAndDelete(key, e)
}

func (e *entry[V]) live(now time.Time) bool {
	if !e.present || e.deleted {
		return false
	}
	return e.expiresAt.IsZero() || now.Before(e.expiresAt)
}
