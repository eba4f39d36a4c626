package registry

import "sync"

// Connection is one live, process-local channel tied to a single identity.
// The gateway owns the concrete implementation; everything above it only needs
// this surface.
type Connection interface {
	ID() string
	IdentityID() string
	Joined(roomID string) bool
	Join(roomID string)
	Leave(roomID string)
	JoinedRooms() []string
	ActiveRoom() string
	// Send enqueues a payload for delivery. Best-effort: a full or closed
	// connection drops the payload rather than blocking the caller.
	Send(v interface{}) error
}

// Registry maps identities to their live connections within this process.
// Register and Unregister mutate the map and compute the first/last flags
// under one lock, so concurrent connects and disconnects for the same
// identity can never observe a torn state.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]map[string]Connection
}

func New() *Registry {
	return &Registry{connections: make(map[string]map[string]Connection)}
}

// Register adds conn to the identity's set and reports whether it became the
// identity's first live connection in this process.
func (r *Registry) Register(identityID string, conn Connection) (wasFirst bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.connections[identityID]
	if !ok {
		set = make(map[string]Connection)
		r.connections[identityID] = set
	}
	wasFirst = len(set) == 0
	set[conn.ID()] = conn
	return wasFirst
}

// Unregister removes conn and reports whether the identity no longer has any
// live connection in this process.
func (r *Registry) Unregister(identityID string, conn Connection) (wasLast bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.connections[identityID]
	if !ok {
		return false
	}
	if _, present := set[conn.ID()]; !present {
		return false
	}
	delete(set, conn.ID())
	if len(set) == 0 {
		delete(r.connections, identityID)
		return true
	}
	return false
}

func (r *Registry) ConnectionsOf(identityID string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.connections[identityID]
	if len(set) == 0 {
		return nil
	}
	conns := make([]Connection, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	return conns
}

// InRoom returns the local connections currently joined to roomID.
func (r *Registry) InRoom(roomID string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []Connection
	for _, set := range r.connections {
		for _, c := range set {
			if c.Joined(roomID) {
				conns = append(conns, c)
			}
		}
	}
	return conns
}

// IsOnlineLocal reports whether the identity has at least one live connection
// in this process. Fleet-wide presence is the union of every process's local
// view; see the presence package.
func (r *Registry) IsOnlineLocal(identityID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections[identityID]) > 0
}
