package services

import "sync"

// Bindings is the live identity <-> connection table. It is never persisted.
type Bindings struct {
	mu       sync.RWMutex
	byID     map[string]string
	byHandle map[string]string
}

// BindResult describes what a Bind displaced.
type BindResult struct {
	// SupersededHandle is the connection previously bound to the identity.
	SupersededHandle string
	// DetachedIdentity is the identity previously bound to the connection.
	DetachedIdentity string
}

func NewBindings() *Bindings {
	return &Bindings{
		byID:     make(map[string]string),
		byHandle: make(map[string]string),
	}
}

// Bind attaches handle to id. Both sides stay one-to-one.
func (b *Bindings) Bind(id, handle string) BindResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	var res BindResult
	if prev, ok := b.byID[id]; ok && prev != handle {
		res.SupersededHandle = prev
		delete(b.byHandle, prev)
	}
	if prevID, ok := b.byHandle[handle]; ok && prevID != id {
		res.DetachedIdentity = prevID
		delete(b.byID, prevID)
	}
	b.byID[id] = handle
	b.byHandle[handle] = id
	return res
}

// UnbindHandle removes whatever identity handle is bound to.
func (b *Bindings) UnbindHandle(handle string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.byHandle[handle]
	if !ok {
		return "", false
	}
	delete(b.byHandle, handle)
	delete(b.byID, id)
	return id, true
}

// UnbindIdentity removes the binding only if id is currently bound to handle.
func (b *Bindings) UnbindIdentity(id, handle string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.byID[id] != handle || handle == "" {
		return false
	}
	delete(b.byID, id)
	delete(b.byHandle, handle)
	return true
}

func (b *Bindings) Handle(id string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.byID[id]
	return h, ok
}

func (b *Bindings) Identity(handle string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.byHandle[handle]
	return id, ok
}

// Handles returns a snapshot of every bound connection.
func (b *Bindings) Handles() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.byHandle))
	for h := range b.byHandle {
		out = append(out, h)
	}
	return out
}

func (b *Bindings) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}
