// Package broadcast wakes blocked long-poll requests when a room receives a
// message.  A wake is only a signal: waiters re-read the message store to
// find out what changed.
package broadcast

import (
	"context"
	"sync"
	"time"
)

const shardCount = 64

type bucket struct {
	sync.Mutex
	rooms map[uint64]map[*Waiter]struct{}
}

// Broadcaster keeps the set of waiters per room.  Rooms are spread over
// shards so unrelated rooms do not contend on one lock.  The zero value is
// not usable; call New.
type Broadcaster struct {
	shards [shardCount]*bucket
	closed chan struct{}
	once   sync.Once
}

// New returns an empty Broadcaster.
func New() *Broadcaster {
	b := &Broadcaster{closed: make(chan struct{})}
	for i := range b.shards {
		b.shards[i] = &bucket{rooms: make(map[uint64]map[*Waiter]struct{})}
	}
	return b
}

func (b *Broadcaster) shard(roomID uint64) *bucket {
	return b.shards[roomID%shardCount]
}

// Waiter is one registered wait on a room.  Its channel is closed exactly
// once, by Notify or Close.
type Waiter struct {
	b    *Broadcaster
	room uint64
	ch   chan struct{}
}

// C is closed when the room is notified.
func (w *Waiter) C() <-chan struct{} { return w.ch }

// Cancel removes the waiter from its room.  It reports false when the waiter
// was already released by a notify, in which case C is (or is about to be)
// closed.  Calling Cancel more than once is safe.
func (w *Waiter) Cancel() bool {
	sh := w.b.shard(w.room)
	sh.Lock()
	defer sh.Unlock()
	set, ok := sh.rooms[w.room]
	if !ok {
		return false
	}
	if _, ok := set[w]; !ok {
		return false
	}
	delete(set, w)
	if len(set) == 0 {
		delete(sh.rooms, w.room)
	}
	return true
}

// Register adds a waiter for roomID.  Registering before checking storage
// closes the window in which a message could land between the check and the
// wait.  After Close the returned waiter is already released.
func (b *Broadcaster) Register(roomID uint64) *Waiter {
	w := &Waiter{b: b, room: roomID, ch: make(chan struct{})}
	sh := b.shard(roomID)
	sh.Lock()
	defer sh.Unlock()
	select {
	case <-b.closed:
		close(w.ch)
		return w
	default:
	}
	set, ok := sh.rooms[roomID]
	if !ok {
		set = make(map[*Waiter]struct{})
		sh.rooms[roomID] = set
	}
	set[w] = struct{}{}
	return w
}

// Wait blocks until roomID is notified, timeout elapses or ctx is done.  It
// reports whether a notify happened.  The waiter is gone from the registry
// when Wait returns, whatever the outcome.
func (b *Broadcaster) Wait(ctx context.Context, roomID uint64, timeout time.Duration) bool {
	w := b.Register(roomID)
	return w.Wait(ctx, timeout)
}

// Wait blocks on an already registered waiter; see Broadcaster.Wait.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.ch:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	// a notify may have taken the waiter out just before we gave up
	return !w.Cancel()
}

// Notify releases every current waiter of roomID and returns how many were
// released.  Waiters registered afterwards are not affected.
func (b *Broadcaster) Notify(roomID uint64) int {
	sh := b.shard(roomID)
	sh.Lock()
	set := sh.rooms[roomID]
	delete(sh.rooms, roomID)
	sh.Unlock()

	for w := range set {
		close(w.ch)
	}
	return len(set)
}

// Done is closed once Close has been called.
func (b *Broadcaster) Done() <-chan struct{} { return b.closed }

// Waiting returns the number of waiters currently registered on roomID.
func (b *Broadcaster) Waiting(roomID uint64) int {
	sh := b.shard(roomID)
	sh.Lock()
	defer sh.Unlock()
	return len(sh.rooms[roomID])
}

// Close releases every waiter in every room and makes later registrations
// return immediately.  Used on shutdown so long polls answer before the
// server stops.
func (b *Broadcaster) Close() {
	b.once.Do(func() {
		close(b.closed)
		for _, sh := range b.shards {
			sh.Lock()
			rooms := sh.rooms
			sh.rooms = make(map[uint64]map[*Waiter]struct{})
			sh.Unlock()
			for _, set := range rooms {
				for w := range set {
					close(w.ch)
				}
			}
		}
	})
}
