package models

import (
	"math/rand/v2"
	"sync"
)

// Room codes avoid visually confusable characters (no I, O, 0, 1).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// RoomManager is the process-wide room table. It is constructed once at
// startup and is the only owner of the code -> Room mapping.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRoomManager() *RoomManager {
	return &RoomManager{rooms: make(map[string]*Room)}
}

// CreateRoom generates a fresh code, retrying on collision, and registers a
// room hosted by hostID.
func (rm *RoomManager) CreateRoom(hostID string) *Room {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	code := generateCode()
	for _, taken := rm.rooms[code]; taken; _, taken = rm.rooms[code] {
		code = generateCode()
	}
	room := NewRoom(code, hostID)
	rm.rooms[code] = room
	return room
}

func (rm *RoomManager) GetRoom(code string) (*Room, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	room, ok := rm.rooms[code]
	return room, ok
}

// DeleteRoom drops the room and frees its code for reuse.
func (rm *RoomManager) DeleteRoom(code string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.rooms, code)
}

func (rm *RoomManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.rooms)
}

func generateCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}
