// Package server implements the room-scoped routing core that turns inbound
// events into targeted deliveries.
package server

// ConnID is the opaque identifier assigned to a connection at upgrade time.
// It is stable for the lifetime of the connection and never reused.
type ConnID string

// Membership associates one connection with a username and a room. A
// connection has at most one membership at a time; a later join replaces it.
type Membership struct {
	Username string
	Room     string
}

// Delivery is a routing decision: one event destined for one connection.
// The hub is responsible for marshaling and actually sending it.
type Delivery struct {
	Target ConnID
	Event  string
	Data   any
}

// Relay holds the membership table and the room index. It performs no I/O and
// is not safe for concurrent use; the hub confines it to its event loop.
type Relay struct {
	memberships map[ConnID]Membership
	rooms       map[string]map[ConnID]struct{}
}

// NewRelay creates an empty relay with no memberships or rooms.
func NewRelay() *Relay {
	return &Relay{
		memberships: make(map[ConnID]Membership),
		rooms:       make(map[string]map[ConnID]struct{}),
	}
}

// Join records the connection as a member of the requested room and returns
// online presence deliveries for every other current member of that room.
// A connection that was already a member of another room is moved: the old
// membership is replaced and no offline event is emitted for the room left
// behind, matching the join/disconnect-only presence model.
func (r *Relay) Join(id ConnID, req JoinRequest) []Delivery {
	if prev, ok := r.memberships[id]; ok {
		r.removeFromRoom(prev.Room, id)
	}
	r.memberships[id] = Membership{Username: req.Username, Room: req.Room}

	members := r.rooms[req.Room]
	if members == nil {
		members = make(map[ConnID]struct{})
		r.rooms[req.Room] = members
	}

	deliveries := make([]Delivery, 0, len(members))
	for member := range members {
		deliveries = append(deliveries, Delivery{
			Target: member,
			Event:  EventUserStatus,
			Data:   PresenceUpdate{Username: req.Username, Status: StatusOnline},
		})
	}

	members[id] = struct{}{}
	return deliveries
}

// Forward routes a chat message to every member of the room named in the
// payload, excluding the sender. The room is taken from the payload rather
// than the sender's membership; the relay trusts what the client asserts.
// A room with no members produces no deliveries.
func (r *Relay) Forward(id ConnID, msg ChatMessage) []Delivery {
	members := r.rooms[msg.Room]
	if len(members) == 0 {
		return nil
	}

	deliveries := make([]Delivery, 0, len(members))
	for member := range members {
		if member == id {
			continue
		}
		deliveries = append(deliveries, Delivery{
			Target: member,
			Event:  EventReceiveMessage,
			Data:   msg,
		})
	}
	return deliveries
}

// Disconnect removes the connection's membership, if any, and returns offline
// presence deliveries for the remaining members of its room. A connection that
// never joined a room produces no deliveries.
func (r *Relay) Disconnect(id ConnID) []Delivery {
	membership, ok := r.memberships[id]
	if !ok {
		return nil
	}

	delete(r.memberships, id)
	r.removeFromRoom(membership.Room, id)

	remaining := r.rooms[membership.Room]
	deliveries := make([]Delivery, 0, len(remaining))
	for member := range remaining {
		deliveries = append(deliveries, Delivery{
			Target: member,
			Event:  EventUserStatus,
			Data:   PresenceUpdate{Username: membership.Username, Status: StatusOffline},
		})
	}
	return deliveries
}

// MembershipFor returns the current membership of a connection.
func (r *Relay) MembershipFor(id ConnID) (Membership, bool) {
	membership, ok := r.memberships[id]
	return membership, ok
}

// RoomMembers returns the connection identities currently in a room.
func (r *Relay) RoomMembers(room string) []ConnID {
	members := r.rooms[room]
	ids := make([]ConnID, 0, len(members))
	for member := range members {
		ids = append(ids, member)
	}
	return ids
}

// removeFromRoom drops a connection from a room's member set and prunes the
// set once empty; an empty room is not tracked.
func (r *Relay) removeFromRoom(room string, id ConnID) {
	members := r.rooms[room]
	if members == nil {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}
