package auction

import (
	"time"

	"go.uber.org/zap"
)

// SpinRoulette picks a uniformly random winner among the participants still
// eligible at this position and awards the item at its reserve price once the
// client animation has settled. Host only, requires an active item.
func (e *Engine) SpinRoulette(code, caller string) Result {
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
	if cur == nil || cur.Player == nil {
		return ignored("no active player")
	}
	pos := cur.PositionName
	reserve := cur.PlayerPrice()
	elig := room.Eligibles(pos, reserve)
	e.emit.ToRoom(code, "roulette_update", map[string]interface{}{
		"count":        len(elig),
		"positionName": pos,
	})
	if len(elig) == 0 {
		return ignored("no eligible participants")
	}
	winner := elig[e.pick(len(elig))]
	cur.CancelTimer()
	e.emit.ToRoom(code, "timer_update", map[string]interface{}{"endAt": nil})
	// Roulette always awards at the reserve price, never at a bid premium.
	e.emit.ToRoom(code, "roulette_spun", map[string]interface{}{
		"winnerId":     winner,
		"positionName": pos,
		"price":        reserve,
	})
	e.log.Info("roulette spun",
		zap.String("room", code),
		zap.String("winner", winner),
		zap.String("position", pos))
	time.AfterFunc(e.settleDelay, func() { e.settleRoulette(code, pos, reserve, winner) })
	return applied()
}

// settleRoulette runs after the animation delay. The host may have moved on
// mid-animation, so the position is re-validated before the award.
func (e *Engine) settleRoulette(code, pos string, reserve int, winner string) {
	room, ok := e.rooms.GetRoom(code)
	if !ok {
		return
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()
	cur := room.Current
	if cur == nil || cur.Player == nil {
		return
	}
	if cur.PositionName != pos {
		return
	}
	cur.CurrentBid = reserve
	cur.LastBidderID = winner
	e.emit.ToRoom(code, "bid_update", map[string]interface{}{
		"currentBid": reserve,
		"bidderId":   winner,
	})
	e.adjudicate(room)
	e.broadcastEligibles(room, pos, reserve)
}
