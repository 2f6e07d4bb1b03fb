// Package status publishes the current step of a long-running flow (a crawl,
// an answer) to any number of observers.
package status

import (
	"context"
	"sync"
)

// Value holds a status string and notifies subscribers when it changes.
// It is safe for concurrent use.
type Value struct {
	mu        sync.Mutex
	current   string
	nextID    int
	callbacks map[int]func(old, new string)
}

func NewValue(initial string) *Value {
	return &Value{current: initial, callbacks: make(map[int]func(old, new string))}
}

func (v *Value) Get() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set stores s and calls every subscriber with the previous and new value.
// Setting the current value again notifies nobody.
func (v *Value) Set(s string) {
	v.mu.Lock()
	old := v.current
	if old == s {
		v.mu.Unlock()
		return
	}
	v.current = s
	callbacks := make([]func(old, new string), 0, len(v.callbacks))
	for _, cb := range v.callbacks {
		callbacks = append(callbacks, cb)
	}
	v.mu.Unlock()

	for _, cb := range callbacks {
		cb(old, s)
	}
}

// Subscribe registers fn and returns a function that removes it.
func (v *Value) Subscribe(fn func(old, new string)) (unsubscribe func()) {
	v.mu.Lock()
	if v.callbacks == nil {
		v.callbacks = make(map[int]func(old, new string))
	}
	id := v.nextID
	v.nextID++
	v.callbacks[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.callbacks, id)
		v.mu.Unlock()
	}
}

// Watch streams new values until ctx is done. Updates are dropped when the
// reader falls behind by more than the buffer.
func (v *Value) Watch(ctx context.Context) <-chan string {
	ch := make(chan string, 16)
	var once sync.Once
	var mu sync.Mutex
	closed := false

	unsubscribe := v.Subscribe(func(_, s string) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- s:
		default:
		}
	})

	go func() {
		<-ctx.Done()
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}()
	return ch
}
