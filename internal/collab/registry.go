package collab

import (
	"sync"
	"time"

	"github.com/oakline/atrium/internal/domain"
)

// Registry maps workspace ids to the set of live connections inside them. A
// connection belongs to at most one workspace at a time. Emptied workspaces
// linger for a grace period so a quick reconnect keeps the workspace's shared
// objects alive.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*roomEntry
	byConn map[string]string // connection id -> workspace id
	conns  map[string]Conn   // every live connection, for direct addressing
	grace  time.Duration
}

type roomEntry struct {
	id        string
	conns     map[string]Conn
	emptiedAt time.Time // zero while occupied
}

func NewRegistry(grace time.Duration) *Registry {
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &Registry{
		rooms:  make(map[string]*roomEntry),
		byConn: make(map[string]string),
		conns:  make(map[string]Conn),
		grace:  grace,
	}
}

// Join adds the connection to the workspace, leaving any previous workspace
// first. Calling it again for the same connection and workspace is a no-op.
// It reports the workspace the connection left, if any.
func (r *Registry) Join(workspaceID string, c Conn) (previous string, err error) {
	if workspaceID == "" {
		return "", domain.ErrValidation
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	connID := c.ID()
	if current, ok := r.byConn[connID]; ok {
		if current == workspaceID {
			return "", nil
		}
		r.removeLocked(connID)
		previous = current
	}

	room, ok := r.rooms[workspaceID]
	if !ok {
		room = &roomEntry{id: workspaceID, conns: make(map[string]Conn)}
		r.rooms[workspaceID] = room
	}
	room.emptiedAt = time.Time{}
	room.conns[connID] = c
	r.byConn[connID] = workspaceID
	r.conns[connID] = c

	return previous, nil
}

// Leave removes the connection from its workspace. It reports the workspace
// it belonged to and whether the workspace is now empty.
func (r *Registry) Leave(connID string) (workspaceID string, emptied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	workspaceID, ok := r.byConn[connID]
	if !ok {
		delete(r.conns, connID)
		return "", false
	}
	r.removeLocked(connID)
	delete(r.conns, connID)

	if room, ok := r.rooms[workspaceID]; ok && len(room.conns) == 0 {
		room.emptiedAt = time.Now()
		emptied = true
	}
	return workspaceID, emptied
}

func (r *Registry) removeLocked(connID string) {
	workspaceID, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	if room, ok := r.rooms[workspaceID]; ok {
		delete(room.conns, connID)
		if len(room.conns) == 0 {
			room.emptiedAt = time.Now()
		}
	}
}

// WorkspaceOf returns the workspace the connection is currently in.
func (r *Registry) WorkspaceOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byConn[connID]
	return id, ok
}

// Lookup addresses any live connection by id, in or out of a workspace.
func (r *Registry) Lookup(connID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// Peers snapshots the workspace's connections, excluding exceptID when
// non-empty, so callers never send while a registry lock is held.
func (r *Registry) Peers(workspaceID, exceptID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[workspaceID]
	if !ok {
		return nil
	}
	peers := make([]Conn, 0, len(room.conns))
	for id, c := range room.conns {
		if id == exceptID {
			continue
		}
		peers = append(peers, c)
	}
	return peers
}

// ConnectionIDs lists the members of a workspace.
func (r *Registry) ConnectionIDs(workspaceID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[workspaceID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(room.conns))
	for id := range room.conns {
		ids = append(ids, id)
	}
	return ids
}

// RoomCount reports how many workspaces currently exist, including ones in
// their grace window.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Reap removes workspaces that have been empty longer than the grace period
// and returns their ids. drop, when non-nil, runs for each reclaimed
// workspace while the registry lock is still held, so a concurrent join
// cannot land between the removal and the drop of dependent state. drop must
// not call back into the registry.
func (r *Registry) Reap(now time.Time, drop func(workspaceID string)) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.grace)
	var reclaimed []string
	for id, room := range r.rooms {
		if len(room.conns) == 0 && !room.emptiedAt.IsZero() && room.emptiedAt.Before(cutoff) {
			delete(r.rooms, id)
			if drop != nil {
				drop(id)
			}
			reclaimed = append(reclaimed, id)
		}
	}
	return reclaimed
}
