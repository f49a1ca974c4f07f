package services

// Sender delivers one event to one connection. Delivery is assumed to be
// reliable and ordered per connection.
type Sender interface {
	Send(event string, payload any)
}

// Room is anything a User can be inside of.
type Room interface {
	ID() string
	Leave(user *User)
}

// User is one connected participant. A user is in at most one room; the
// back reference is only read and written on the Loop.
type User struct {
	ID       string
	Nickname string

	sender Sender
	room   Room
}

func NewUser(id, nickname string, sender Sender) *User {
	return &User{ID: id, Nickname: nickname, sender: sender}
}

func (u *User) Send(event string, payload any) {
	if u.sender != nil {
		u.sender.Send(event, payload)
	}
}

// Room returns the room the user is currently in, or nil.
func (u *User) Room() Room {
	return u.room
}

// Membership is a group of users with join/leave and multicast. Rooms with
// richer behaviour embed it and pass themselves as owner so that the back
// reference and cross-room moves dispatch to their own Leave.
type Membership struct {
	id      string
	owner   Room
	members []*User
}

// NewMembership creates an empty group. A nil owner makes the membership
// its own Room.
func NewMembership(id string, owner Room) *Membership {
	m := &Membership{id: id, owner: owner}
	if owner == nil {
		m.owner = m
	}
	return m
}

func (m *Membership) ID() string {
	return m.id
}

// Join adds user, first removing them from whatever room they were in.
// Joining a room the user is already in does nothing.
func (m *Membership) Join(user *User) {
	if m.IsMember(user) {
		return
	}
	if prior := user.room; prior != nil {
		prior.Leave(user)
	}

	m.members = append(m.members, user)
	user.room = m.owner

	m.Broadcast(EventUserJoined, nicknamePayload{Nickname: user.Nickname})
	user.Send(EventUserList, m.Nicknames())
}

// Leave removes user and tells the remaining members.
func (m *Membership) Leave(user *User) {
	if !m.remove(user) {
		return
	}
	if user.room == m.owner {
		user.room = nil
	}
	m.Broadcast(EventUserLeft, nicknamePayload{Nickname: user.Nickname})
}

func (m *Membership) remove(user *User) bool {
	for i, member := range m.members {
		if member == user {
			m.members = append(m.members[:i], m.members[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Membership) IsMember(user *User) bool {
	for _, member := range m.members {
		if member == user {
			return true
		}
	}
	return false
}

// Members returns the members in join order. The slice is a copy.
func (m *Membership) Members() []*User {
	members := make([]*User, len(m.members))
	copy(members, m.members)
	return members
}

func (m *Membership) Len() int {
	return len(m.members)
}

func (m *Membership) Nicknames() []string {
	names := make([]string, 0, len(m.members))
	for _, member := range m.members {
		names = append(names, member.Nickname)
	}
	return names
}

// Broadcast sends event to every member.
func (m *Membership) Broadcast(event string, payload any) {
	for _, member := range m.members {
		member.Send(event, payload)
	}
}

// BroadcastMessage relays a chat line from user to the whole room.
func (m *Membership) BroadcastMessage(user *User, text string) {
	if !m.IsMember(user) {
		return
	}
	m.Broadcast(EventMessage, chatMessage{Nickname: user.Nickname, Text: text})
}

// detachAll drops every member without notifying anyone.
func (m *Membership) detachAll() []*User {
	members := m.members
	m.members = nil
	for _, member := range members {
		if member.room == m.owner {
			member.room = nil
		}
	}
	return members
}
