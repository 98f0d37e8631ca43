package embedder

import (
	"context"
	"sync"
)

// Registry is the handle table for engines opened on behalf of wire callers
// (daemon, MCP). Callers hold opaque handle IDs instead of engine references;
// every operation on an unknown or released handle fails with InvalidHandle.
//
// Each handle tracks the message of its most recent failure. The message is
// cleared by the next successful call on the same handle, so retrieving it
// after a success yields nothing.
type Registry struct {
	mu      sync.Mutex
	next    uint64
	handles map[uint64]*handleState
}

type handleState struct {
	engine    Embedder
	lastError string
}

// NewRegistry creates an empty handle table.
func NewRegistry() *Registry {
	return &Registry{
		next:    1,
		handles: make(map[uint64]*handleState),
	}
}

// Register adds an initialized engine and returns its handle ID.
func (r *Registry) Register(engine Embedder) (uint64, error) {
	if engine == nil {
		return 0, newError(CodeNullPointer, "nil engine")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.next
	r.next++
	r.handles[id] = &handleState{engine: engine}
	return id, nil
}

// get looks up a handle. Caller must hold the lock.
func (r *Registry) get(id uint64) (*handleState, error) {
	h, ok := r.handles[id]
	if !ok {
		return nil, newError(CodeInvalidHandle, "unknown handle %d", id)
	}
	return h, nil
}

// Embed generates an embedding through the handle's engine, recording the
// outcome as the handle's last error state.
func (r *Registry) Embed(ctx context.Context, id uint64, text string) ([]float32, error) {
	r.mu.Lock()
	h, err := r.get(id)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	vec, err := h.engine.Embed(ctx, text)
	r.record(id, err)
	return vec, err
}

// EmbedBatch generates embeddings through the handle's engine, recording the
// outcome as the handle's last error state.
func (r *Registry) EmbedBatch(ctx context.Context, id uint64, texts []string) ([][]float32, error) {
	r.mu.Lock()
	h, err := r.get(id)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	vecs, err := h.engine.EmbedBatch(ctx, texts)
	r.record(id, err)
	return vecs, err
}

// Engine returns the engine behind a handle for read-only queries
// (dimensions, model version).
func (r *Registry) Engine(id uint64) (Embedder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return h.engine, nil
}

// LastError returns the handle's last failure message. ok is false when the
// handle's most recent call succeeded or no call has been made yet.
func (r *Registry) LastError(id uint64) (msg string, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := r.get(id)
	if err != nil {
		return "", false, err
	}
	if h.lastError == "" {
		return "", false, nil
	}
	return h.lastError, true, nil
}

// record updates a handle's last error state after a call. The handle may
// have been released concurrently; that is not an error.
func (r *Registry) record(id uint64, callErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[id]
	if !ok {
		return
	}
	if callErr != nil {
		h.lastError = callErr.Error()
	} else {
		h.lastError = ""
	}
}

// Release closes the handle's engine and removes it from the table.
// Releasing an already-released handle fails with InvalidHandle.
func (r *Registry) Release(id uint64) error {
	r.mu.Lock()
	h, ok := r.handles[id]
	if ok {
		delete(r.handles, id)
	}
	r.mu.Unlock()

	if !ok {
		return newError(CodeInvalidHandle, "unknown handle %d", id)
	}
	return h.engine.Close()
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Close releases every live handle. The first close error is returned.
func (r *Registry) Close() error {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[uint64]*handleState)
	r.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		if err := h.engine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
