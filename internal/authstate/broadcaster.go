package authstate

import (
	"sync"

	"github.com/MrEthical07/docportal"
)

// Broadcaster fans auth events out to subscribers. Emit calls subscribers
// synchronously with no lock held, so a subscriber may call back into the
// emitting backend.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[uint64]func(docportal.AuthEvent)
	seq  uint64
}

func (b *Broadcaster) Subscribe(fn func(docportal.AuthEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[uint64]func(docportal.AuthEvent))
	}
	b.seq++
	id := b.seq
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
		})
	}
}

func (b *Broadcaster) Emit(ev docportal.AuthEvent) {
	b.mu.Lock()
	fns := make([]func(docportal.AuthEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
