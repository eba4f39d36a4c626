// Package typing holds the ephemeral per-room typing sets for this process.
// Nothing here is persisted: state is lost on restart and self-heals through
// the expiry window.
package typing

import (
	"sync"
	"time"
)

// DefaultWindow is how long a typing entry lives without renewal.
const DefaultWindow = 3 * time.Second

// Typist is one entry of a room's typing set.
type Typist struct {
	IdentityID  string `json:"identity_id"`
	DisplayName string `json:"display_name"`
}

// Broadcaster receives the room's full current typing set after every state
// change. The full set, not a delta: the broadcast is the authoritative view.
type Broadcaster func(roomID string, typists []Typist)

type entry struct {
	displayName string
	timer       *time.Timer
}

// Coordinator owns every typing timer in the process. All mutation happens
// under one lock, so a renewal can never race its own expiry into leaving two
// live timers for the same (room, identity) pair.
type Coordinator struct {
	mu     sync.Mutex
	rooms  map[string]map[string]*entry
	window time.Duration
	notify Broadcaster
}

func NewCoordinator(window time.Duration, notify Broadcaster) *Coordinator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Coordinator{
		rooms:  make(map[string]map[string]*entry),
		window: window,
		notify: notify,
	}
}

// Start moves (roomID, identityID) to Typing, or renews the window if it
// already is. Either way the room's set is rebroadcast.
func (c *Coordinator) Start(roomID, identityID, displayName string) {
	c.mu.Lock()
	typists := c.rooms[roomID]
	if typists == nil {
		typists = make(map[string]*entry)
		c.rooms[roomID] = typists
	}

	if existing, ok := typists[identityID]; ok {
		existing.timer.Stop()
	}

	e := &entry{displayName: displayName}
	e.timer = time.AfterFunc(c.window, func() {
		c.expire(roomID, identityID, e)
	})
	typists[identityID] = e

	set := c.snapshotLocked(roomID)
	c.mu.Unlock()

	c.notify(roomID, set)
}

// Stop removes the entry immediately, cancelling its timer.
func (c *Coordinator) Stop(roomID, identityID string) {
	c.mu.Lock()
	removed := c.removeLocked(roomID, identityID, nil)
	var set []Typist
	if removed {
		set = c.snapshotLocked(roomID)
	}
	c.mu.Unlock()

	if removed {
		c.notify(roomID, set)
	}
}

// ClearIdentity drops the identity's entries in every room and rebroadcasts
// each affected room. This is the disconnect teardown path: a timer left
// behind for a vanished identity would fire against nobody.
func (c *Coordinator) ClearIdentity(identityID string) {
	c.mu.Lock()
	affected := make(map[string][]Typist)
	for roomID := range c.rooms {
		if c.removeLocked(roomID, identityID, nil) {
			affected[roomID] = c.snapshotLocked(roomID)
		}
	}
	c.mu.Unlock()

	for roomID, set := range affected {
		c.notify(roomID, set)
	}
}

// Typists returns the room's current typing set.
func (c *Coordinator) Typists(roomID string) []Typist {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(roomID)
}

// expire is the timer callback. The entry pointer guards against the race
// where a renewal replaced the entry between the timer firing and the lock
// being acquired: an outdated timer must not evict the renewed entry.
func (c *Coordinator) expire(roomID, identityID string, expired *entry) {
	c.mu.Lock()
	removed := c.removeLocked(roomID, identityID, expired)
	var set []Typist
	if removed {
		set = c.snapshotLocked(roomID)
	}
	c.mu.Unlock()

	if removed {
		c.notify(roomID, set)
	}
}

func (c *Coordinator) removeLocked(roomID, identityID string, onlyIf *entry) bool {
	typists, ok := c.rooms[roomID]
	if !ok {
		return false
	}
	current, ok := typists[identityID]
	if !ok {
		return false
	}
	if onlyIf != nil && current != onlyIf {
		return false
	}
	current.timer.Stop()
	delete(typists, identityID)
	if len(typists) == 0 {
		delete(c.rooms, roomID)
	}
	return true
}

func (c *Coordinator) snapshotLocked(roomID string) []Typist {
	typists := c.rooms[roomID]
	set := make([]Typist, 0, len(typists))
	for id, e := range typists {
		set = append(set, Typist{IdentityID: id, DisplayName: e.displayName})
	}
	return set
}
