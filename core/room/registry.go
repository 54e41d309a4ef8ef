package room

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"syncfm/logger"
	"syncfm/model"
)

const roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const roomIDLength = 6

// session binds a live connection to its room and member identity. A
// connection belongs to zero or one room.
type session struct {
	roomID string
	member model.Member
}

// Registry owns the set of rooms and the connection session table. It is
// constructed explicitly at startup (creating the permanent room) and closed
// at shutdown; nothing here is package-global.
//
// The registry lock only guards the maps. Room state is mutated under each
// room's own mutex, so commands against different rooms never contend.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	sessions map[string]session

	mainRoomID string
	capacity   int
	now        func() time.Time
	rnd        *rand.Rand
}

// NewRegistry builds a registry with the permanent room already present.
func NewRegistry(mainRoomID, mainRoomName string, capacity int) *Registry {
	r := &Registry{
		rooms:      make(map[string]*Room),
		sessions:   make(map[string]session),
		mainRoomID: mainRoomID,
		capacity:   capacity,
		now:        time.Now,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	r.rooms[mainRoomID] = newRoom(mainRoomID, mainRoomName, capacity, r.now)

	logger.Info("permanent room created", logger.String("roomId", mainRoomID))
	return r
}

// CreateRoom allocates a fresh empty room with a short shareable id.
func (r *Registry) CreateRoom(name string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.generateRoomIDLocked()
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "Room " + id
	}

	rm := newRoom(id, name, r.capacity, r.now)
	r.rooms[id] = rm

	logger.Info("room created", logger.String("roomId", id), logger.String("name", name))
	return rm, nil
}

func (r *Registry) generateRoomIDLocked() (string, error) {
	buf := make([]byte, roomIDLength)
	for attempt := 0; attempt < 100; attempt++ {
		for i := range buf {
			buf[i] = roomIDAlphabet[r.rnd.Intn(len(roomIDAlphabet))]
		}
		id := string(buf)
		if _, exists := r.rooms[id]; !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique room id")
}

// GetRoom looks up a room by id.
func (r *Registry) GetRoom(id string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return rm, nil
}

// Rooms returns all rooms, sorted by id for stable listings.
func (r *Registry) Rooms() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, rm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Join adds a connection to a room. A connection already in another room is
// moved: membership is exclusive.
func (r *Registry) Join(roomID, connID, displayName string) (*Room, model.Member, error) {
	// Implicit leave keeps membership exclusive without erroring.
	if _, _, _, ok := r.Leave(connID); ok {
		logger.Debug("connection switched rooms", logger.String("conn", connID))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, model.Member{}, ErrRoomNotFound
	}

	member := model.Member{
		ID:       connID,
		Name:     displayName,
		JoinedAt: r.now().UnixMilli(),
	}
	if err := rm.addMember(member); err != nil {
		return nil, model.Member{}, err
	}
	r.sessions[connID] = session{roomID: roomID, member: member}

	logger.Info("member joined",
		logger.String("roomId", roomID),
		logger.String("conn", connID),
		logger.String("name", displayName))
	return rm, member, nil
}

// Leave removes a connection from its room, destroying non-permanent rooms
// the instant they empty. Disconnects route through here as well. The bool
// reports whether the connection actually had a session.
func (r *Registry) Leave(connID string) (*Room, model.Member, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return nil, model.Member{}, 0, false
	}
	delete(r.sessions, connID)

	rm, ok := r.rooms[sess.roomID]
	if !ok {
		return nil, sess.member, 0, false
	}

	_, _, remaining := rm.removeMember(connID)
	if remaining == 0 && sess.roomID != r.mainRoomID {
		delete(r.rooms, sess.roomID)
		logger.Info("empty room destroyed", logger.String("roomId", sess.roomID))
	}

	logger.Info("member left",
		logger.String("roomId", sess.roomID),
		logger.String("conn", connID),
		logger.Int("remaining", remaining))
	return rm, sess.member, remaining, true
}

// Session resolves a connection to its room and member identity.
func (r *Registry) Session(connID string) (*Room, model.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return nil, model.Member{}, ErrNotAMember
	}
	rm, ok := r.rooms[sess.roomID]
	if !ok {
		return nil, model.Member{}, ErrRoomNotFound
	}
	return rm, sess.member, nil
}

// Close drains all rooms and sessions at shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rooms = make(map[string]*Room)
	r.sessions = make(map[string]session)
	logger.Info("registry drained")
}
