// Package trade implements the post-auction transfer market: offers are
// relayed between participants while the market is open, and an accepted
// offer swaps roster slots and cash between the two counterparties as one
// all-or-nothing transaction.
package trade

import (
	"go.uber.org/zap"

	"github.com/elmynz/subasta-server/internal/models"
)

// Emitter broadcasts an event to every connection in a room.
type Emitter interface {
	ToRoom(code, event string, data interface{})
}

// Result mirrors auction.Result: silently-absorbed failures carry a reason
// for tests only.
type Result struct {
	Applied bool
	Reason  string
}

func applied() Result { return Result{Applied: true} }

func ignored(reason string) Result { return Result{Reason: reason} }

type Engine struct {
	rooms *models.RoomManager
	emit  Emitter
	log   *zap.Logger
}

func NewEngine(rooms *models.RoomManager, emit Emitter, log *zap.Logger) *Engine {
	return &Engine{rooms: rooms, emit: emit, log: log}
}

// RelayOffer forwards an offer to the whole room so everyone sees the detail;
// only the targeted counterparty responds. Offers are relayed verbatim, no
// validation beyond envelope well-formedness and the market gate.
func (e *Engine) RelayOffer(code, sender string, offer map[string]interface{}) Result {
	room, ok := e.rooms.GetRoom(code)
	if !ok {
		return ignored("room not found")
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()
	if !room.MarketOpen {
		return ignored("market closed")
	}
	from, _ := offer["from"].(string)
	to, _ := offer["to"].(string)
	if from == "" || to == "" {
		return ignored("malformed offer")
	}
	if from != sender {
		return ignored("sender mismatch")
	}
	e.emit.ToRoom(code, "transfer_offer", offer)
	return applied()
}

// HandleUpdate re-broadcasts the counterparty's response so the whole room
// sees the outcome, then applies the swap when the action is an accept.
func (e *Engine) HandleUpdate(code, action string, offer map[string]interface{}) Result {
	room, ok := e.rooms.GetRoom(code)
	if !ok {
		return ignored("room not found")
	}
	if offer == nil {
		return ignored("malformed offer")
	}
	from, _ := offer["from"].(string)
	to, _ := offer["to"].(string)
	if from == "" || to == "" {
		return ignored("malformed offer")
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()
	e.emit.ToRoom(code, "transfer_offer_update", map[string]interface{}{
		"action": action,
		"offer":  offer,
	})
	if action != "accept" {
		return applied()
	}
	if !room.MarketOpen {
		return ignored("market closed")
	}
	return e.accept(room, from, to, offer)
}

// accept performs the atomic swap. All validation happens against working
// copies; nothing is written back until every check has passed. Caller must
// hold the room lock.
func (e *Engine) accept(room *models.Room, from, to string, offer map[string]interface{}) Result {
	teamFrom := room.TeamCopy(from)
	teamTo := room.TeamCopy(to)
	budFrom := room.Budgets[from]
	budTo := room.Budgets[to]

	cashMine := cashField(offer, "cashMine")     // paid by from to to
	cashTheirs := cashField(offer, "cashTheirs") // paid by to to from
	if budFrom < cashMine || budTo < cashTheirs {
		return ignored("insufficient cash")
	}

	usedFrom := map[string]bool{}
	usedTo := map[string]bool{}
	appliedAny := false
	for _, p := range pairList(offer["pairs"]) {
		if p.mySlot == "" || p.opponentSlot == "" {
			continue
		}
		if usedFrom[p.mySlot] || usedTo[p.opponentSlot] {
			continue
		}
		if models.GroupForPosition(p.mySlot) != models.GroupForPosition(p.opponentSlot) {
			continue
		}
		theirs, okTheirs := teamTo[p.opponentSlot]
		mine, okMine := teamFrom[p.mySlot]
		if !okTheirs || !okMine {
			continue
		}
		teamTo[p.opponentSlot] = mine
		teamFrom[p.mySlot] = theirs
		usedFrom[p.mySlot] = true
		usedTo[p.opponentSlot] = true
		appliedAny = true
	}
	if !appliedAny && cashMine == 0 && cashTheirs == 0 {
		return ignored("nothing to apply")
	}

	newFrom := budFrom - cashMine + cashTheirs
	newTo := budTo - cashTheirs + cashMine
	// Unreachable given the cash check above; kept as a required safety net
	// so a partial write can never slip through.
	if newFrom < 0 || newTo < 0 {
		return ignored("negative budget")
	}

	room.Budgets[from] = newFrom
	room.Budgets[to] = newTo
	room.Teams[from] = teamFrom
	room.Teams[to] = teamTo
	e.emit.ToRoom(room.Code, "teams_update", map[string]interface{}{
		"users": map[string]interface{}{from: teamFrom, to: teamTo},
	})
	e.emit.ToRoom(room.Code, "budget_update", map[string]interface{}{"budgets": room.BudgetsCopy()})
	e.log.Info("transfer accepted",
		zap.String("room", room.Code),
		zap.String("from", from),
		zap.String("to", to),
		zap.Int("cashMine", cashMine),
		zap.Int("cashTheirs", cashTheirs))
	return applied()
}

type slotPair struct {
	mySlot       string
	opponentSlot string
}

func pairList(v interface{}) []slotPair {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]slotPair, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		my, _ := m["mySlot"].(string)
		opp, _ := m["opponentSlot"].(string)
		out = append(out, slotPair{mySlot: my, opponentSlot: opp})
	}
	return out
}

// cashField reads a non-negative cash amount; anything unparseable or
// negative counts as zero.
func cashField(m map[string]interface{}, key string) int {
	v, ok := models.NumField(m, key)
	if !ok || v < 0 {
		return 0
	}
	return int(v)
}
