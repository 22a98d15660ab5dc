package events

import "sync"

// Buffer holds events emitted inside a scope until the scope commits.
// Scopes nest; only the outermost commit forwards events downstream.
type Buffer struct {
	mu      sync.Mutex
	next    Emitter
	marks   []int
	pending []Event
}

func NewBuffer(next Emitter) *Buffer {
	if next == nil {
		next = NoopEmitter{}
	}
	return &Buffer{next: next}
}

func (b *Buffer) Emit(evt Event) {
	b.mu.Lock()
	if len(b.marks) == 0 {
		b.mu.Unlock()
		b.next.Emit(evt)
		return
	}
	b.pending = append(b.pending, evt)
	b.mu.Unlock()
}

// Begin opens a scope.
func (b *Buffer) Begin() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marks = append(b.marks, len(b.pending))
}

// Commit closes the innermost scope, keeping its events.
func (b *Buffer) Commit() error {
	b.mu.Lock()
	if len(b.marks) == 0 {
		b.mu.Unlock()
		return nil
	}
	b.marks = b.marks[:len(b.marks)-1]
	if len(b.marks) > 0 {
		b.mu.Unlock()
		return nil
	}
	flush := b.pending
	b.pending = nil
	b.mu.Unlock()
	for _, evt := range flush {
		b.next.Emit(evt)
	}
	return nil
}

// Rollback closes the innermost scope and drops its events.
func (b *Buffer) Rollback() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.marks) == 0 {
		return
	}
	mark := b.marks[len(b.marks)-1]
	b.marks = b.marks[:len(b.marks)-1]
	b.pending = b.pending[:mark]
}
