// Package auction implements the per-room bid/award state machine: bid
// validation, the award countdown, host confirmation and the roulette
// selector. Every mutation happens under the room lock and broadcasts the
// resulting events through an Emitter, so the whole engine is testable with a
// recording fake.
package auction

import (
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/elmynz/subasta-server/internal/models"
)

// Emitter broadcasts an event to every connection in a room.
type Emitter interface {
	ToRoom(code, event string, data interface{})
}

// Result tags whether an operation was applied. Authorization and validation
// failures are silently absorbed on the wire; the reason is kept here so
// tests can still observe why an operation was skipped.
type Result struct {
	Applied bool
	Reason  string
}

func applied() Result { return Result{Applied: true} }

func ignored(reason string) Result { return Result{Reason: reason} }

const (
	// DefaultBidWindow is the countdown armed after every accepted bid.
	DefaultBidWindow = 5 * time.Second
	// DefaultSettleDelay is how long the roulette waits for the client-side
	// animation before awarding.
	DefaultSettleDelay = 5200 * time.Millisecond

	// bidStep: bids move in 5s and raw values snap to the nearest multiple.
	bidStep = 5
)

type Engine struct {
	rooms *models.RoomManager
	emit  Emitter
	log   *zap.Logger

	bidWindow   time.Duration
	settleDelay time.Duration
	pick        func(n int) int
}

func NewEngine(rooms *models.RoomManager, emit Emitter, log *zap.Logger) *Engine {
	return &Engine{
		rooms:       rooms,
		emit:        emit,
		log:         log,
		bidWindow:   DefaultBidWindow,
		settleDelay: DefaultSettleDelay,
		pick:        rand.IntN,
	}
}

// StartGame resets the round shell and all per-position winner sets.
// Host only.
func (e *Engine) StartGame(code, caller string) Result {
	room, ok := e.rooms.GetRoom(code)
	if !ok {
		return ignored("room not found")
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()
	if room.HostID != caller {
		return ignored("unauthorized")
	}
	if room.Current != nil {
		room.Current.CancelTimer()
	}
	room.Current = models.NewRound()
	room.Winners = make(map[string]map[string]struct{})
	e.emit.ToRoom(code, "game_started", map[string]interface{}{"code": code})
	e.log.Info("game started", zap.String("room", code))
	return applied()
}

// SetRound sets the position under auction and how many items it holds.
// Host only.
func (e *Engine) SetRound(code, caller, positionName string, rounds int) Result {
	room, ok := e.rooms.GetRoom(code)
	if !ok {
		return ignored("room not found")
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()
	if room.HostID != caller {
		return ignored("unauthorized")
	}
	cur := room.Current
	cur.PositionName = positionName
	cur.Rounds = rounds
	room.WinnersFor(positionName)
	e.emit.ToRoom(code, "round_set", map[string]interface{}{
		"positionName": cur.PositionName,
		"rounds":       cur.Rounds,
	})
	return applied()
}

// SetPlayer puts a new item under auction, cancelling any pending countdown
// and clearing all bid state. Host only.
func (e *Engine) SetPlayer(code, caller string, player map[string]interface{}, index int) Result {
	room, ok := e.rooms.GetRoom(code)
	if !ok {
		return ignored("room not found")
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()
	if room.HostID != caller {
		return ignored("unauthorized")
	}
	cur := room.Current
	cur.ResetForPlayer(player)
	if index == 0 {
		index = 1
	}
	e.emit.ToRoom(code, "player_set", map[string]interface{}{
		"player":       player,
		"index":        index,
		"totalRounds":  cur.Rounds,
		"positionName": cur.PositionName,
	})
	e.emit.ToRoom(code, "bid_update", map[string]interface{}{"currentBid": 0, "bidderId": nil})
	e.emit.ToRoom(code, "timer_update", map[string]interface{}{"endAt": nil})
	e.broadcastEligibles(room, cur.PositionName, cur.PlayerPrice())
	return applied()
}

// PlaceBid validates and records a bid from any participant. Raw values are
// snapped to the nearest multiple of 5 before the minimum/budget checks. An
// accepted bid restarts the award countdown.
func (e *Engine) PlaceBid(code, bidder string, value float64) Result {
	room, ok := e.rooms.GetRoom(code)
	if !ok {
		return ignored("room not found")
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()
	cur := room.Current
	if cur == nil || cur.Player == nil {
		return ignored("no active player")
	}
	if cur.Revealed {
		return ignored("round revealed")
	}
	if room.HasWon(cur.PositionName, bidder) {
		return ignored("already won position")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return ignored("not a number")
	}
	minAllowed := cur.PlayerPrice()
	if cur.CurrentBid > 0 {
		minAllowed = cur.CurrentBid + bidStep
	}
	v := value
	if math.Mod(v, bidStep) != 0 {
		v = math.Round(v/bidStep) * bidStep
	}
	if v < float64(minAllowed) {
		return ignored("below minimum")
	}
	if v > float64(room.Budgets[bidder]) {
		return ignored("over budget")
	}
	cur.CurrentBid = int(v)
	cur.LastBidderID = bidder
	e.emit.ToRoom(code, "bid_update", map[string]interface{}{
		"currentBid": cur.CurrentBid,
		"bidderId":   bidder,
	})
	e.armTimer(room)
	return applied()
}

// RevealPlayer marks the round revealed, blocking any further bids. Host only.
func (e *Engine) RevealPlayer(code, caller string) Result {
	room, ok := e.rooms.GetRoom(code)
	if !ok {
		return ignored("room not found")
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()
	if room.HostID != caller {
		return ignored("unauthorized")
	}
	cur := room.Current
	if cur == nil {
		return ignored("no round")
	}
	cur.Revealed = true
	e.emit.ToRoom(code, "player_revealed", map[string]interface{}{
		"player":       cur.Player,
		"positionName": cur.PositionName,
	})
	return applied()
}

// ConfirmWinner cancels the countdown, forces the reveal and runs the same
// adjudication the timer path uses. Host only.
func (e *Engine) ConfirmWinner(code, caller string) Result {
	room, ok := e.rooms.GetRoom(code)
	if !ok {
		return ignored("room not found")
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()
	if room.HostID != caller {
		return ignored("unauthorized")
	}
	cur := room.Current
	if cur == nil {
		return ignored("no round")
	}
	cur.CancelTimer()
	cur.Revealed = true
	e.emit.ToRoom(code, "player_revealed", map[string]interface{}{
		"player":       cur.Player,
		"positionName": cur.PositionName,
	})
	e.adjudicate(room)
	// After a successful award Player is nil, so the budget filter here drops
	// to 0. Adjudication already broadcast its own count with the reserve;
	// clients take the latest one.
	e.broadcastEligibles(room, cur.PositionName, cur.PlayerPrice())
	return applied()
}

// armTimer restarts the award countdown. Caller must hold the room lock.
func (e *Engine) armTimer(room *models.Room) {
	cur := room.Current
	cur.CancelTimer()
	seq := cur.TimerSeq
	endAt := time.Now().Add(e.bidWindow).UnixMilli()
	cur.TimerEndAt = endAt
	code := room.Code
	cur.Timer = time.AfterFunc(e.bidWindow, func() { e.onTimerFired(code, seq) })
	e.emit.ToRoom(code, "timer_update", map[string]interface{}{"endAt": endAt})
}

// onTimerFired is the countdown expiry path into adjudication. The sequence
// check drops callbacks whose countdown was cancelled or re-armed after they
// were already in flight.
func (e *Engine) onTimerFired(code string, seq uint64) {
	room, ok := e.rooms.GetRoom(code)
	if !ok {
		return
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()
	cur := room.Current
	if cur == nil || cur.TimerSeq != seq {
		return
	}
	e.adjudicate(room)
}

// adjudicate awards the active item to the last bidder once every guard
// passes. The countdown expiry, confirm_winner and the roulette settle all
// funnel through here; the Awarded flag makes any second arrival a no-op.
// Caller must hold the room lock.
func (e *Engine) adjudicate(room *models.Room) bool {
	cur := room.Current
	if cur == nil || cur.Player == nil || cur.LastBidderID == "" || cur.Awarded {
		return false
	}
	bid := cur.CurrentBid
	winner := cur.LastBidderID
	player := cur.Player
	reserve := cur.PlayerPrice()
	if bid < reserve {
		return false
	}
	// Budget is re-checked now, not trusted from bid time: a trade may have
	// drained it while the countdown ran.
	if bid > room.Budgets[winner] {
		return false
	}
	pos := cur.PositionName
	winners := room.WinnersFor(pos)
	if _, won := winners[winner]; won {
		return false
	}

	code := room.Code
	room.Budgets[winner] -= bid
	e.emit.ToRoom(code, "budget_update", map[string]interface{}{"budgets": room.BudgetsCopy()})
	// Forced reveal so every client shows the item before the win banner.
	e.emit.ToRoom(code, "player_revealed", nil)
	e.emit.ToRoom(code, "winner_confirmed", map[string]interface{}{
		"winnerId":     winner,
		"price":        bid,
		"player":       player,
		"positionName": pos,
	})
	team := room.Teams[winner]
	if team == nil {
		team = make(map[string]models.TeamSlot)
		room.Teams[winner] = team
	}
	name, _ := player["name"].(string)
	photo, _ := player["photo"].(string)
	team[pos] = models.TeamSlot{Name: name, Price: bid, Photo: photo}
	e.emit.ToRoom(code, "teams_update", map[string]interface{}{
		"users": map[string]interface{}{winner: team},
	})
	winners[winner] = struct{}{}
	cur.CurrentBid = 0
	cur.LastBidderID = ""
	cur.Awarded = true
	cur.Player = nil
	cur.CancelTimer()
	e.broadcastEligibles(room, pos, reserve)
	e.log.Info("player awarded",
		zap.String("room", code),
		zap.String("winner", winner),
		zap.String("position", pos),
		zap.Int("price", bid))
	return true
}

func (e *Engine) broadcastEligibles(room *models.Room, pos string, min int) {
	count := len(room.Eligibles(pos, min))
	e.emit.ToRoom(room.Code, "roulette_update", map[string]interface{}{
		"count":        count,
		"positionName": pos,
	})
}
