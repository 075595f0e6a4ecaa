package server

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/scorchedearth/scorched/serp"
)

var (
	// ErrRoomExists is returned when a live room already uses the id
	ErrRoomExists = errors.New("server: room already exists")
	// ErrRoomNotFound is returned when no live room uses the id
	ErrRoomNotFound = errors.New("server: room not found")
)

// room is a host waiting for a partner.
type room struct {
	id     string
	stream *serp.Stream
	// closed once the host has been told "ok", so "connected" can't overtake it
	ready     chan struct{}
	readyOnce sync.Once

	// serializes probes and the hand-off to a joiner
	mu    sync.Mutex
	taken bool
}

func newRoom(id string, stream *serp.Stream) *room {
	return &room{
		id:     id,
		stream: stream,
		ready:  make(chan struct{}),
	}
}

func (r *room) markReady() {
	r.readyOnce.Do(func() { close(r.ready) })
}

// stale reports whether the host has gone away while waiting. A room that was
// already handed to a joiner counts as stale too.
func (r *room) stale() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.staleLocked()
}

func (r *room) staleLocked() bool {
	if r.taken {
		return true
	}
	// anything the host sent is still ours to forward
	if r.stream.Buffered() > 0 {
		return false
	}
	return peerClosed(r.stream)
}

// Registry maps room ids to waiting hosts. Operations on different ids never
// contend with each other.
type Registry struct {
	rooms sync.Map // map[string]*room
	size  atomic.Int64
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Host registers stream as the host of id. A stale room under the same id is
// evicted first; a live one makes Host fail with ErrRoomExists.
func (reg *Registry) Host(id string, stream *serp.Stream) (*room, error) {
	r := newRoom(id, stream)
	for {
		v, loaded := reg.rooms.LoadOrStore(id, r)
		if !loaded {
			reg.size.Add(1)
			return r, nil
		}
		existing := v.(*room)
		if !existing.stale() {
			return nil, ErrRoomExists
		}
		reg.evict(existing)
	}
}

// Take removes the room id and hands it to the caller, who becomes the owner
// of the host's stream.
func (reg *Registry) Take(id string) (*room, error) {
	v, ok := reg.rooms.Load(id)
	if !ok {
		return nil, ErrRoomNotFound
	}
	r := v.(*room)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staleLocked() {
		reg.evict(r)
		return nil, ErrRoomNotFound
	}
	if !reg.Remove(r) {
		// somebody else joined or evicted it first
		return nil, ErrRoomNotFound
	}
	r.taken = true
	return r, nil
}

// Remove deletes r if it's still the room registered under its id. It's safe
// to call any number of times.
func (reg *Registry) Remove(r *room) bool {
	if reg.rooms.CompareAndDelete(r.id, r) {
		reg.size.Add(-1)
		return true
	}
	return false
}

// evict removes r and closes its stream, unless r was already removed by
// someone else who now owns the stream.
func (reg *Registry) evict(r *room) {
	if reg.Remove(r) {
		_ = r.stream.Close()
	}
}

// Sweep evicts every room whose host has gone away and returns how many it
// dropped. Without it a departed host keeps its connection until somebody asks
// for the same id.
func (reg *Registry) Sweep() int {
	n := 0
	reg.rooms.Range(func(_, v any) bool {
		r := v.(*room)
		if r.stale() && reg.Remove(r) {
			_ = r.stream.Close()
			n++
		}
		return true
	})
	return n
}

// Len returns the number of rooms waiting for a partner.
func (reg *Registry) Len() int {
	return int(reg.size.Load())
}

// Close evicts every waiting room.
func (reg *Registry) Close() {
	reg.rooms.Range(func(_, v any) bool {
		reg.evict(v.(*room))
		return true
	})
}
