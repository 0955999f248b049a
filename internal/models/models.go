// Package models holds the in-memory state for auction rooms. All state is
// ephemeral: a room lives from create_room until its last participant leaves.
package models

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"
)

// StartingBudget is granted to every connection the first time it joins a room.
const StartingBudget = 1100

type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// TeamSlot is a won item in a participant's roster, keyed by position name.
type TeamSlot struct {
	Name  string `json:"name"`
	Price int    `json:"price"`
	Photo string `json:"photo,omitempty"`
}

// Room is the per-code auction state. Methods that read or mutate room state
// must be called with Mu held; timer callbacks re-acquire it themselves.
//
// Teams deliberately outlives disconnects: Leave prunes participants and
// budgets but never rosters, so a departed participant's roster stays visible
// and tradable for the life of the room.
type Room struct {
	Mu sync.Mutex

	Code       string
	HostID     string
	Budgets    map[string]int
	Teams      map[string]map[string]TeamSlot
	Winners    map[string]map[string]struct{}
	MarketOpen bool
	Current    *Round

	participants map[string]*Participant
	order        []string
}

func NewRoom(code, hostID string) *Room {
	return &Room{
		Code:         code,
		HostID:       hostID,
		Budgets:      make(map[string]int),
		Teams:        make(map[string]map[string]TeamSlot),
		Winners:      make(map[string]map[string]struct{}),
		Current:      NewRound(),
		participants: make(map[string]*Participant),
	}
}

// Join inserts or overwrites the participant entry. Budget and roster are only
// initialized when the connection has none, so a rejoin keeps both.
func (r *Room) Join(p *Participant) {
	if _, known := r.participants[p.ID]; !known {
		r.order = append(r.order, p.ID)
	}
	r.participants[p.ID] = p
	if _, ok := r.Budgets[p.ID]; !ok {
		r.Budgets[p.ID] = StartingBudget
	}
	if _, ok := r.Teams[p.ID]; !ok {
		r.Teams[p.ID] = make(map[string]TeamSlot)
	}
}

// Leave removes the connection from participants and budgets. It reports
// whether the room became empty and whether the host role moved; after a host
// departure the earliest remaining joiner becomes host.
func (r *Room) Leave(id string) (empty bool, hostChanged bool) {
	if _, known := r.participants[id]; !known {
		return len(r.participants) == 0, false
	}
	delete(r.participants, id)
	delete(r.Budgets, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if len(r.participants) == 0 {
		return true, false
	}
	if r.HostID == id {
		r.HostID = r.order[0]
		return false, true
	}
	return false, false
}

func (r *Room) HasParticipant(id string) bool {
	_, ok := r.participants[id]
	return ok
}

// AvatarInUse reports whether any current participant holds the avatar.
func (r *Room) AvatarInUse(avatar string) bool {
	if avatar == "" {
		return false
	}
	for _, p := range r.participants {
		if p.Avatar == avatar {
			return true
		}
	}
	return false
}

// ParticipantsArray returns participants in join order, the order clients
// render the lobby in and the order host failover walks.
func (r *Room) ParticipantsArray() []*Participant {
	out := make([]*Participant, 0, len(r.order))
	for _, id := range r.order {
		if p, ok := r.participants[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) ParticipantIDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// WinnersFor returns the winner set for a position, creating it if absent.
func (r *Room) WinnersFor(pos string) map[string]struct{} {
	set, ok := r.Winners[pos]
	if !ok {
		set = make(map[string]struct{})
		r.Winners[pos] = set
	}
	return set
}

func (r *Room) HasWon(pos, id string) bool {
	set, ok := r.Winners[pos]
	if !ok {
		return false
	}
	_, won := set[id]
	return won
}

// Eligibles lists, in join order, the participants who may still win at this
// position: not already a winner there and holding at least min budget.
func (r *Room) Eligibles(pos string, min int) []string {
	out := []string{}
	for _, id := range r.order {
		if r.HasWon(pos, id) {
			continue
		}
		if r.Budgets[id] >= min {
			out = append(out, id)
		}
	}
	return out
}

// BudgetsCopy returns a snapshot safe to hand to the emitter after the room
// lock is released.
func (r *Room) BudgetsCopy() map[string]int {
	out := make(map[string]int, len(r.Budgets))
	for id, b := range r.Budgets {
		out[id] = b
	}
	return out
}

func (r *Room) SetAllBudgets(v int) {
	if v < 0 {
		v = 0
	}
	for _, id := range r.order {
		r.Budgets[id] = v
	}
}

// TeamCopy returns a copy of a participant's roster (never nil).
func (r *Room) TeamCopy(id string) map[string]TeamSlot {
	out := make(map[string]TeamSlot, len(r.Teams[id]))
	for pos, slot := range r.Teams[id] {
		out[pos] = slot
	}
	return out
}

// Round is the active auction item state, replaced wholesale on start_game and
// reset field-by-field on set_player.
type Round struct {
	PositionName string
	Rounds       int
	Player       map[string]interface{}
	CurrentBid   int
	LastBidderID string
	Awarded      bool
	Revealed     bool

	// At most one countdown may be live per room. TimerSeq is bumped by every
	// arm and cancel; a fired callback that observes a stale sequence belongs
	// to a cancelled countdown and must not adjudicate.
	Timer      *time.Timer
	TimerEndAt int64
	TimerSeq   uint64
}

func NewRound() *Round {
	return &Round{}
}

// CancelTimer stops any pending countdown and invalidates in-flight callbacks.
// Caller must hold the room lock.
func (r *Round) CancelTimer() {
	r.TimerSeq++
	if r.Timer != nil {
		r.Timer.Stop()
		r.Timer = nil
	}
	r.TimerEndAt = 0
}

// ResetForPlayer installs a new item under auction and clears all bid state.
func (r *Round) ResetForPlayer(player map[string]interface{}) {
	r.CancelTimer()
	r.Player = player
	r.CurrentBid = 0
	r.LastBidderID = ""
	r.Awarded = false
	r.Revealed = false
}

// PlayerPrice is the reserve price of the active item, 0 when none is set.
func (r *Round) PlayerPrice() int {
	if r.Player == nil {
		return 0
	}
	if v, ok := NumField(r.Player, "price"); ok {
		return int(v)
	}
	return 0
}

// NumField extracts a numeric field from decoded JSON, tolerating the types
// the socket.io parser can deliver.
func NumField(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
