package core

import (
	"sort"
	"sync"
)

// PresenceChange is reported when a user comes online or goes offline.
type PresenceChange struct {
	User   Identity
	Online bool
}

// Presence maps users to their live connections. A user is online while at
// least one connection is registered.
type Presence struct {
	mu     sync.Mutex
	byUser map[string]map[string]struct{}
	byConn map[string]Identity
}

// NewPresence constructs an empty registry.
func NewPresence() *Presence {
	return &Presence{
		byUser: make(map[string]map[string]struct{}),
		byConn: make(map[string]Identity),
	}
}

// Register records a connection. The change is returned with ok=true only
// when this is the user's first live connection.
func (p *Presence) Register(connID string, id Identity) (PresenceChange, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byConn[connID]; exists {
		return PresenceChange{}, false
	}
	p.byConn[connID] = id

	conns, ok := p.byUser[id.UserID]
	if !ok {
		conns = make(map[string]struct{})
		p.byUser[id.UserID] = conns
	}
	conns[connID] = struct{}{}
	if len(conns) == 1 {
		return PresenceChange{User: id, Online: true}, true
	}
	return PresenceChange{}, false
}

// Unregister forgets a connection. The change is returned with ok=true only
// when it was the user's last live connection.
func (p *Presence) Unregister(connID string) (PresenceChange, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, exists := p.byConn[connID]
	if !exists {
		return PresenceChange{}, false
	}
	delete(p.byConn, connID)

	conns := p.byUser[id.UserID]
	delete(conns, connID)
	if len(conns) > 0 {
		return PresenceChange{}, false
	}
	delete(p.byUser, id.UserID)
	return PresenceChange{User: id, Online: false}, true
}

// IsOnline reports whether the user has at least one live connection.
func (p *Presence) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byUser[userID]) > 0
}

// Connections returns the number of live connections for a user.
func (p *Presence) Connections(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byUser[userID])
}

// OnlineUsers lists online user IDs, sorted.
func (p *Presence) OnlineUsers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.byUser))
	for id := range p.byUser {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
