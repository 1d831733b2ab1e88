package chat

import "sync"

// Registry is the process-local bookkeeping of live connections: the primary
// table plus the user and room secondary indices used for fan-out. All three
// maps are mutated only through Register/BindUser/JoinRoom/LeaveRoom/
// Unregister so index symmetry and empty-set pruning live in one place.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]*Connection
	userConns map[string]map[string]struct{} // userID -> set of connIDs
	roomConns map[string]map[string]struct{} // roomID -> set of connIDs
	connRooms map[string]map[string]struct{} // connID -> set of roomIDs
}

func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[string]*Connection),
		userConns: make(map[string]map[string]struct{}),
		roomConns: make(map[string]map[string]struct{}),
		connRooms: make(map[string]map[string]struct{}),
	}
}

// Register adds a connection to the primary table.
func (r *Registry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn.ID] = conn
	r.connRooms[conn.ID] = make(map[string]struct{})
}

// BindUser records the connection under its verified user id. A user may hold
// several simultaneous connections.
func (r *Registry) BindUser(connID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; !ok {
		return
	}
	set := r.userConns[userID]
	if set == nil {
		set = make(map[string]struct{})
		r.userConns[userID] = set
	}
	set[connID] = struct{}{}
}

// JoinRoom adds the connection to a room's fan-out set. Joining twice is a
// no-op, so a rejoin never yields duplicate delivery.
func (r *Registry) JoinRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; !ok {
		return
	}
	set := r.roomConns[roomID]
	if set == nil {
		set = make(map[string]struct{})
		r.roomConns[roomID] = set
	}
	set[connID] = struct{}{}
	r.connRooms[connID][roomID] = struct{}{}
}

// LeaveRoom removes the connection from a room's fan-out set, pruning the
// room entry when it empties.
func (r *Registry) LeaveRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveRoomLocked(connID, roomID)
}

func (r *Registry) leaveRoomLocked(connID, roomID string) {
	if set, ok := r.roomConns[roomID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.roomConns, roomID)
		}
	}
	if rooms, ok := r.connRooms[connID]; ok {
		delete(rooms, roomID)
	}
}

// Unregister removes a connection and prunes every index entry that refers to
// it. It is idempotent: duplicate close events from the transport layer are
// expected. It returns the connection's user id and how many of that user's
// connections remain.
func (r *Registry) Unregister(connID string) (userID string, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return "", 0
	}
	delete(r.conns, connID)

	for roomID := range r.connRooms[connID] {
		r.leaveRoomLocked(connID, roomID)
	}
	delete(r.connRooms, connID)

	userID = conn.UserID
	if set, ok := r.userConns[userID]; ok {
		delete(set, connID)
		remaining = len(set)
		if remaining == 0 {
			delete(r.userConns, userID)
		}
	}
	return userID, remaining
}

// RoomConnections returns the live connections currently joined to the room.
func (r *Registry) RoomConnections(roomID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.roomConns[roomID]
	if len(set) == 0 {
		return nil
	}
	conns := make([]*Connection, 0, len(set))
	for connID := range set {
		if conn, ok := r.conns[connID]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// UserConnections returns the live connections bound to the user.
func (r *Registry) UserConnections(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.userConns[userID]
	if len(set) == 0 {
		return nil
	}
	conns := make([]*Connection, 0, len(set))
	for connID := range set {
		if conn, ok := r.conns[connID]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// All returns a snapshot of every live connection, used by the liveness sweep.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// RoomCount returns the number of rooms with at least one live connection.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roomConns)
}
