package core

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Rooms tracks live connections and which rooms each one has joined.
// A connection's memberships disappear when it is removed.
type Rooms struct {
	mu          sync.RWMutex
	clients     map[string]*Client
	rooms       map[string]*Room
	memberships map[string]map[string]struct{}
	log         *zerolog.Logger
}

// NewRooms constructs an empty membership index.
func NewRooms(logger *zerolog.Logger) *Rooms {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Rooms{
		clients:     make(map[string]*Client),
		rooms:       make(map[string]*Room),
		memberships: make(map[string]map[string]struct{}),
		log:         logger,
	}
}

// Add starts tracking c as a live connection.
func (r *Rooms) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
}

// Remove drops c from every room it joined and stops tracking it.
// It returns the rooms c was a member of, and false if c was not tracked.
func (r *Rooms) Remove(c *Client) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c.ID]; !ok {
		return nil, false
	}
	left := make([]string, 0, len(r.memberships[c.ID]))
	for name := range r.memberships[c.ID] {
		r.leaveLocked(c, name)
		left = append(left, name)
	}
	delete(r.memberships, c.ID)
	delete(r.clients, c.ID)
	sort.Strings(left)
	return left, true
}

// JoinPersonalRoom subscribes c to its user's personal room.
func (r *Rooms) JoinPersonalRoom(c *Client) {
	r.Join(c, PersonalRoom(c.UserID()))
}

// JoinConversationRooms subscribes c to the rooms of the given conversations.
func (r *Rooms) JoinConversationRooms(c *Client, conversationIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range conversationIDs {
		r.joinLocked(c, ConversationRoom(id))
	}
}

// Join subscribes c to a room. Returns true if newly joined.
func (r *Rooms) Join(c *Client, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joinLocked(c, name)
}

// Leave unsubscribes c from a room. Returns true if c was a member.
func (r *Rooms) Leave(c *Client, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.memberships[c.ID][name]; !ok {
		return false
	}
	r.leaveLocked(c, name)
	delete(r.memberships[c.ID], name)
	return true
}

// IsMember reports whether the connection has joined the room.
func (r *Rooms) IsMember(connID, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.memberships[connID][name]
	return ok
}

// RoomsOf lists the rooms a connection has joined, sorted.
func (r *Rooms) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.memberships[connID]))
	for name := range r.memberships[connID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Size returns the number of connections in a room.
func (r *Rooms) Size(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if room, ok := r.rooms[name]; ok {
		return room.Len()
	}
	return 0
}

// Broadcast offers ev to every member of the room except exceptID.
// Slow consumers are skipped and logged.
func (r *Rooms) Broadcast(name string, ev *Event, exceptID string) {
	r.mu.RLock()
	room, ok := r.rooms[name]
	var dropped []string
	if ok {
		dropped = room.Broadcast(ev, exceptID)
	}
	r.mu.RUnlock()
	r.logDropped(name, ev, dropped)
}

// BroadcastAll offers ev to every live connection except exceptID.
func (r *Rooms) BroadcastAll(ev *Event, exceptID string) {
	var dropped []string
	r.mu.RLock()
	for id, c := range r.clients {
		if id == exceptID {
			continue
		}
		if !c.trySend(ev) {
			dropped = append(dropped, id)
		}
	}
	r.mu.RUnlock()
	r.logDropped("*", ev, dropped)
}

func (r *Rooms) joinLocked(c *Client, name string) bool {
	room, ok := r.rooms[name]
	if !ok {
		room = NewRoom(name)
		r.rooms[name] = room
	}
	if !room.AddClient(c) {
		return false
	}
	set, ok := r.memberships[c.ID]
	if !ok {
		set = make(map[string]struct{})
		r.memberships[c.ID] = set
	}
	set[name] = struct{}{}
	return true
}

func (r *Rooms) leaveLocked(c *Client, name string) {
	room, ok := r.rooms[name]
	if !ok {
		return
	}
	room.RemoveClient(c)
	if room.Empty() {
		delete(r.rooms, name)
	}
}

func (r *Rooms) logDropped(room string, ev *Event, dropped []string) {
	for _, id := range dropped {
		r.log.Warn().
			Str("room", room).
			Str("conn_id", id).
			Str("event", ev.Kind.String()).
			Msg("dropping event for slow consumer")
	}
}
