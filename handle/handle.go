package handle

import (
	"sync"

	"github.com/emberai/search-bridge/errors"
)

// Handle is an opaque reference to a native object in a registry.
// The zero handle is reserved and always invalid.
//
// A handle packs a slot index in its low 32 bits and a slot generation in
// its high 32 bits. Slots are recycled through a free list, and every
// recycle bumps the generation, so a released handle keeps failing with
// invalid_handle even after its slot has been reused.
type Handle uint64

func makeHandle(slot uint32, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(slot+1))
}

func (h Handle) slot() (uint32, bool) {
	low := uint32(h)
	if low == 0 {
		return 0, false
	}
	return low - 1, true
}

func (h Handle) gen() uint32 { return uint32(h >> 32) }

// Kind identifies which native object a handle wraps.
type Kind uint8

const (
	KindIndex Kind = iota + 1
	KindWriter
	KindReader
	KindSearcher
	KindDocument
	KindQuery
)

var kindNames = map[Kind]string{
	KindIndex:    "index",
	KindWriter:   "writer",
	KindReader:   "reader",
	KindSearcher: "searcher",
	KindDocument: "document",
	KindQuery:    "query",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event types for handle lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
)

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// Dropper is optionally implemented by native objects that need teardown
// when their handle is released.
type Dropper interface {
	Drop()
}

type slot struct {
	value any
	kind  Kind
	gen   uint32
	live  bool
}

// Registry maps handles to native objects. It is the sole path between the
// host's opaque references and the engine's objects, and the only place
// that understands both sides' lifetimes.
//
// A single mutex guards all mutation: handle creation and release can race
// across goroutines when the engine's background threads hold references.
type Registry struct {
	mu        sync.Mutex
	slots     []slot
	free      []uint32
	observers []Observer
	closed    bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		slots: make([]slot, 0, 64),
		free:  make([]uint32, 0, 16),
	}
}

// Insert registers a native object and returns its handle. Returns the zero
// handle if the registry is closed.
func (r *Registry) Insert(kind Kind, value any) Handle {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0
	}

	var idx uint32
	var gen uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
		gen = r.slots[idx].gen
		r.slots[idx] = slot{value: value, kind: kind, gen: gen, live: true}
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{value: value, kind: kind, live: true})
	}
	h := makeHandle(idx, gen)
	obs := r.observersLocked()
	r.mu.Unlock()

	notify(obs, Event{Type: EventCreated, Handle: h, Kind: kind, Value: value})
	return h
}

// Get resolves a handle to its native object. A released or unknown handle
// fails with invalid_handle, never with stale data.
func (r *Registry) Get(h Handle) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookupLocked(h)
	if err != nil {
		return nil, err
	}
	return s.value, nil
}

// GetKinded resolves a handle, additionally rejecting handles of the wrong
// kind with type_mismatch.
func (r *Registry) GetKinded(h Handle, kind Kind) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookupLocked(h)
	if err != nil {
		return nil, err
	}
	if s.kind != kind {
		return nil, errors.HandleKindMismatch(uint64(h), kind.String(), s.kind.String())
	}
	return s.value, nil
}

// KindOf reports the kind of a live handle.
func (r *Registry) KindOf(h Handle) (Kind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookupLocked(h)
	if err != nil {
		return 0, false
	}
	return s.kind, true
}

// Release frees a handle and tears down its native object if it implements
// Dropper. Releasing an already-released or unknown handle is a no-op.
func (r *Registry) Release(h Handle) {
	r.mu.Lock()
	s, err := r.lookupLocked(h)
	if err != nil {
		r.mu.Unlock()
		return
	}

	idx, _ := h.slot()
	value, kind := s.value, s.kind
	r.slots[idx] = slot{gen: s.gen + 1}
	r.free = append(r.free, idx)
	obs := r.observersLocked()
	r.mu.Unlock()

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	notify(obs, Event{Type: EventReleased, Handle: h, Kind: kind, Value: value})
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for i := range r.slots {
		if r.slots[i].live {
			n++
		}
	}
	return n
}

// Each calls fn for every live handle until fn returns false.
func (r *Registry) Each(fn func(Handle, Kind, any) bool) {
	r.mu.Lock()
	type live struct {
		h Handle
		k Kind
		v any
	}
	snapshot := make([]live, 0, len(r.slots))
	for i := range r.slots {
		if r.slots[i].live {
			snapshot = append(snapshot, live{makeHandle(uint32(i), r.slots[i].gen), r.slots[i].kind, r.slots[i].value})
		}
	}
	r.mu.Unlock()

	for _, s := range snapshot {
		if !fn(s.h, s.k, s.v) {
			return
		}
	}
}

// Clear releases every live handle.
func (r *Registry) Clear() {
	var handles []Handle
	r.Each(func(h Handle, _ Kind, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		r.Release(h)
	}
}

// Subscribe adds an observer for lifecycle events.
func (r *Registry) Subscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Unsubscribe removes an observer.
func (r *Registry) Unsubscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, obs := range r.observers {
		if obs == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

// Close releases all handles and stops accepting operations. Close is
// idempotent.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	values := make([]any, 0, len(r.slots))
	for i := range r.slots {
		if r.slots[i].live {
			values = append(values, r.slots[i].value)
			r.slots[i] = slot{}
		}
	}
	r.slots = nil
	r.free = nil
	r.mu.Unlock()

	for _, v := range values {
		if d, ok := v.(Dropper); ok {
			d.Drop()
		}
	}
	return nil
}

func (r *Registry) lookupLocked(h Handle) (slot, error) {
	if r.closed {
		return slot{}, errors.Closed("handle registry")
	}
	idx, ok := h.slot()
	if !ok || int(idx) >= len(r.slots) {
		return slot{}, errors.InvalidHandle(uint64(h))
	}
	s := r.slots[idx]
	if !s.live || s.gen != h.gen() {
		return slot{}, errors.InvalidHandle(uint64(h))
	}
	return s, nil
}

func (r *Registry) observersLocked() []Observer {
	if len(r.observers) == 0 {
		return nil
	}
	obs := make([]Observer, len(r.observers))
	copy(obs, r.observers)
	return obs
}

func notify(obs []Observer, e Event) {
	for _, o := range obs {
		o.OnHandleEvent(e)
	}
}
