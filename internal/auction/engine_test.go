package auction

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elmynz/subasta-server/internal/models"
)

type emitted struct {
	code  string
	event string
	data  map[string]interface{}
}

// recorder implements Emitter and keeps every broadcast for assertions.
type recorder struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recorder) ToRoom(code, event string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, _ := data.(map[string]interface{})
	r.events = append(r.events, emitted{code: code, event: event, data: m})
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (r *recorder) last(event string) (emitted, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].event == event {
			return r.events[i], true
		}
	}
	return emitted{}, false
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.event
	}
	return out
}

// newTestEngine uses countdown windows long enough that nothing fires unless
// a test shortens them on purpose.
func newTestEngine(t *testing.T) (*Engine, *recorder, *models.RoomManager) {
	t.Helper()
	rec := &recorder{}
	rooms := models.NewRoomManager()
	e := NewEngine(rooms, rec, zap.NewNop())
	e.bidWindow = time.Hour
	e.settleDelay = time.Hour
	return e, rec, rooms
}

func setupRoom(t *testing.T, rooms *models.RoomManager, host string, others ...string) *models.Room {
	t.Helper()
	room := rooms.CreateRoom(host)
	room.Mu.Lock()
	room.Join(&models.Participant{ID: host, Name: "Host"})
	for _, id := range others {
		room.Join(&models.Participant{ID: id, Name: id})
	}
	room.Mu.Unlock()
	return room
}

func testPlayer(name string, price int) map[string]interface{} {
	return map[string]interface{}{
		"name":  name,
		"price": float64(price),
		"photo": "Fotos/" + name + ".png",
	}
}

func startRound(t *testing.T, e *Engine, code, host, pos string, player map[string]interface{}) {
	t.Helper()
	require.True(t, e.StartGame(code, host).Applied)
	require.True(t, e.SetRound(code, host, pos, 1).Applied)
	require.True(t, e.SetPlayer(code, host, player, 1).Applied)
}

func budgetOf(room *models.Room, id string) int {
	room.Mu.Lock()
	defer room.Mu.Unlock()
	return room.Budgets[id]
}

func TestPlaceBidSnapsToNearestStep(t *testing.T) {
	e, rec, rooms := newTestEngine(t)
	room := setupRoom(t, rooms, "host", "ana", "beto")
	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))

	res := e.PlaceBid(room.Code, "ana", 53)
	require.True(t, res.Applied)
	bid, ok := rec.last("bid_update")
	require.True(t, ok)
	assert.Equal(t, 55, bid.data["currentBid"])
	assert.Equal(t, "ana", bid.data["bidderId"])

	// 57 snaps down to 55, below the 55+5 minimum.
	res = e.PlaceBid(room.Code, "beto", 57)
	assert.False(t, res.Applied)
	assert.Equal(t, "below minimum", res.Reason)

	room.Mu.Lock()
	assert.Equal(t, 55, room.Current.CurrentBid)
	assert.Equal(t, "ana", room.Current.LastBidderID)
	room.Mu.Unlock()
}

func TestPlaceBidMinimumBoundaries(t *testing.T) {
	e, _, rooms := newTestEngine(t)
	room := setupRoom(t, rooms, "host", "ana", "beto")
	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))

	// Below reserve on an untouched round.
	assert.False(t, e.PlaceBid(room.Code, "ana", 45).Applied)
	// Exactly the reserve.
	require.True(t, e.PlaceBid(room.Code, "ana", 50).Applied)
	// Raising by less than the step.
	assert.False(t, e.PlaceBid(room.Code, "beto", 50).Applied)
	// Exactly currentBid+5 is accepted.
	assert.True(t, e.PlaceBid(room.Code, "beto", 55).Applied)
}

func TestPlaceBidRejections(t *testing.T) {
	e, _, rooms := newTestEngine(t)
	room := setupRoom(t, rooms, "host", "ana")

	// No active player yet.
	assert.Equal(t, "no active player", e.PlaceBid(room.Code, "ana", 50).Reason)

	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))

	assert.Equal(t, "not a number", e.PlaceBid(room.Code, "ana", math.NaN()).Reason)
	assert.Equal(t, "not a number", e.PlaceBid(room.Code, "ana", math.Inf(1)).Reason)
	// Over budget (budget 1100).
	assert.Equal(t, "over budget", e.PlaceBid(room.Code, "ana", 1200).Reason)
	// Unknown room.
	assert.Equal(t, "room not found", e.PlaceBid("ZZZZZZ", "ana", 50).Reason)
}

func TestPlaceBidAfterRevealRejected(t *testing.T) {
	e, _, rooms := newTestEngine(t)
	room := setupRoom(t, rooms, "host", "ana")
	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))

	require.True(t, e.RevealPlayer(room.Code, "host").Applied)
	res := e.PlaceBid(room.Code, "ana", 100)
	assert.False(t, res.Applied)
	assert.Equal(t, "round revealed", res.Reason)
}

func TestPlaceBidByPositionWinnerRejected(t *testing.T) {
	e, _, rooms := newTestEngine(t)
	room := setupRoom(t, rooms, "host", "ana", "beto")
	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))

	require.True(t, e.PlaceBid(room.Code, "ana", 50).Applied)
	require.True(t, e.ConfirmWinner(room.Code, "host").Applied)

	// Next item in the same position.
	require.True(t, e.SetPlayer(room.Code, "host", testPlayer("Buffon", 60), 2).Applied)
	res := e.PlaceBid(room.Code, "ana", 60)
	assert.Equal(t, "already won position", res.Reason)
	assert.True(t, e.PlaceBid(room.Code, "beto", 60).Applied)
}

func TestConfirmWinnerAwards(t *testing.T) {
	e, rec, rooms := newTestEngine(t)
	room := setupRoom(t, rooms, "host", "ana", "beto")
	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))

	require.True(t, e.PlaceBid(room.Code, "ana", 53).Applied)
	require.True(t, e.ConfirmWinner(room.Code, "host").Applied)

	assert.Equal(t, 1045, budgetOf(room, "ana"))

	win, ok := rec.last("winner_confirmed")
	require.True(t, ok)
	assert.Equal(t, "ana", win.data["winnerId"])
	assert.Equal(t, 55, win.data["price"])
	assert.Equal(t, "Portero", win.data["positionName"])

	room.Mu.Lock()
	assert.True(t, room.HasWon("Portero", "ana"))
	assert.Nil(t, room.Current.Player)
	assert.True(t, room.Current.Awarded)
	assert.Equal(t, 0, room.Current.CurrentBid)
	assert.Equal(t, "", room.Current.LastBidderID)
	assert.Equal(t, models.TeamSlot{Name: "Casillas", Price: 55, Photo: "Fotos/Casillas.png"}, room.Teams["ana"]["Portero"])
	room.Mu.Unlock()

	// Reveal must reach clients before the win banner.
	var revealIdx, winIdx int
	for i, name := range rec.names() {
		if name == "player_revealed" && revealIdx == 0 {
			revealIdx = i
		}
		if name == "winner_confirmed" {
			winIdx = i
		}
	}
	assert.Less(t, revealIdx, winIdx)
}

func TestConfirmWinnerTwiceAwardsOnce(t *testing.T) {
	e, rec, rooms := newTestEngine(t)
	room := setupRoom(t, rooms, "host", "ana")
	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))

	require.True(t, e.PlaceBid(room.Code, "ana", 100).Applied)
	e.ConfirmWinner(room.Code, "host")
	e.ConfirmWinner(room.Code, "host")

	assert.Equal(t, 1, rec.count("winner_confirmed"))
	assert.Equal(t, 1000, budgetOf(room, "ana"))
	room.Mu.Lock()
	assert.Len(t, room.Winners["Portero"], 1)
	room.Mu.Unlock()
}

func TestTimerThenConfirmRaceAwardsOnce(t *testing.T) {
	e, rec, rooms := newTestEngine(t)
	room := setupRoom(t, rooms, "host", "ana")
	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))

	require.True(t, e.PlaceBid(room.Code, "ana", 100).Applied)
	room.Mu.Lock()
	seq := room.Current.TimerSeq
	room.Mu.Unlock()

	// Simulate the countdown expiring and the host confirming right after.
	e.onTimerFired(room.Code, seq)
	e.ConfirmWinner(room.Code, "host")

	assert.Equal(t, 1, rec.count("winner_confirmed"))
	assert.Equal(t, 1000, budgetOf(room, "ana"))
}

func TestCountdownExpiryAwards(t *testing.T) {
	e, rec, rooms := newTestEngine(t)
	e.bidWindow = 20 * time.Millisecond
	room := setupRoom(t, rooms, "host", "ana")
	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))

	require.True(t, e.PlaceBid(room.Code, "ana", 75).Applied)
	tu, ok := rec.last("timer_update")
	require.True(t, ok)
	assert.NotNil(t, tu.data["endAt"])

	assert.Eventually(t, func() bool {
		return rec.count("winner_confirmed") == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1025, budgetOf(room, "ana"))
}

func TestStaleTimerCallbackIsIgnored(t *testing.T) {
	e, rec, rooms := newTestEngine(t)
	room := setupRoom(t, rooms, "host", "ana", "beto")
	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))

	require.True(t, e.PlaceBid(room.Code, "ana", 50).Applied)
	room.Mu.Lock()
	staleSeq := room.Current.TimerSeq
	room.Mu.Unlock()

	// A second bid re-arms the countdown; the first countdown's callback may
	// already be in flight and must not adjudicate early.
	require.True(t, e.PlaceBid(room.Code, "beto", 55).Applied)
	e.onTimerFired(room.Code, staleSeq)

	assert.Equal(t, 0, rec.count("winner_confirmed"))
	room.Mu.Lock()
	assert.False(t, room.Current.Awarded)
	assert.Equal(t, 55, room.Current.CurrentBid)
	room.Mu.Unlock()
}

func TestAdjudicationRevalidatesBudget(t *testing.T) {
	e, rec, rooms := newTestEngine(t)
	room := setupRoom(t, rooms, "host", "ana")
	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))

	require.True(t, e.PlaceBid(room.Code, "ana", 500).Applied)
	// A concurrent trade drains the bidder's budget before the award.
	room.Mu.Lock()
	room.Budgets["ana"] = 100
	seq := room.Current.TimerSeq
	room.Mu.Unlock()

	e.onTimerFired(room.Code, seq)

	assert.Equal(t, 0, rec.count("winner_confirmed"))
	assert.Equal(t, 100, budgetOf(room, "ana"))
}

func TestSetPlayerResetsRoundAndCancelsCountdown(t *testing.T) {
	e, rec, rooms := newTestEngine(t)
	e.bidWindow = 20 * time.Millisecond
	room := setupRoom(t, rooms, "host", "ana")
	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))

	require.True(t, e.PlaceBid(room.Code, "ana", 50).Applied)
	require.True(t, e.SetPlayer(room.Code, "host", testPlayer("Buffon", 60), 2).Applied)

	room.Mu.Lock()
	assert.Equal(t, 0, room.Current.CurrentBid)
	assert.Equal(t, "", room.Current.LastBidderID)
	assert.False(t, room.Current.Awarded)
	assert.False(t, room.Current.Revealed)
	assert.Zero(t, room.Current.TimerEndAt)
	room.Mu.Unlock()

	// The cancelled countdown must never award.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count("winner_confirmed"))
}

func TestHostOnlyOperationsIgnoreOthers(t *testing.T) {
	e, _, rooms := newTestEngine(t)
	room := setupRoom(t, rooms, "host", "ana")
	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))

	assert.Equal(t, "unauthorized", e.StartGame(room.Code, "ana").Reason)
	assert.Equal(t, "unauthorized", e.SetRound(room.Code, "ana", "Mediocentro", 2).Reason)
	assert.Equal(t, "unauthorized", e.SetPlayer(room.Code, "ana", testPlayer("X", 10), 1).Reason)
	assert.Equal(t, "unauthorized", e.RevealPlayer(room.Code, "ana").Reason)
	assert.Equal(t, "unauthorized", e.ConfirmWinner(room.Code, "ana").Reason)
	assert.Equal(t, "unauthorized", e.SpinRoulette(room.Code, "ana").Reason)
}

func TestStartGameResetsWinners(t *testing.T) {
	e, _, rooms := newTestEngine(t)
	room := setupRoom(t, rooms, "host", "ana")
	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))
	require.True(t, e.PlaceBid(room.Code, "ana", 50).Applied)
	require.True(t, e.ConfirmWinner(room.Code, "host").Applied)

	require.True(t, e.StartGame(room.Code, "host").Applied)
	room.Mu.Lock()
	assert.Empty(t, room.Winners)
	assert.Equal(t, 0, room.Current.CurrentBid)
	assert.Nil(t, room.Current.Player)
	room.Mu.Unlock()
}

func TestValueConservation(t *testing.T) {
	e, _, rooms := newTestEngine(t)
	room := setupRoom(t, rooms, "host", "ana", "beto")
	initial := 3 * models.StartingBudget

	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))
	require.True(t, e.PlaceBid(room.Code, "ana", 55).Applied)
	require.True(t, e.ConfirmWinner(room.Code, "host").Applied)

	require.True(t, e.SetRound(room.Code, "host", "Delantero Centro", 1).Applied)
	require.True(t, e.SetPlayer(room.Code, "host", testPlayer("Raul", 80), 1).Applied)
	require.True(t, e.PlaceBid(room.Code, "beto", 120).Applied)
	require.True(t, e.ConfirmWinner(room.Code, "host").Applied)

	room.Mu.Lock()
	total := 0
	for _, b := range room.Budgets {
		total += b
	}
	spent := 0
	for _, team := range room.Teams {
		for _, slot := range team {
			spent += slot.Price
		}
	}
	room.Mu.Unlock()
	assert.Equal(t, initial-total, spent)
	assert.Equal(t, 55+120, spent)
}

func TestSetPlayerBroadcastsEligibleCount(t *testing.T) {
	e, rec, rooms := newTestEngine(t)
	room := setupRoom(t, rooms, "host", "ana", "beto")
	// beto cannot afford the reserve.
	room.Mu.Lock()
	room.Budgets["beto"] = 40
	room.Mu.Unlock()

	startRound(t, e, room.Code, "host", "Portero", testPlayer("Casillas", 50))
	ru, ok := rec.last("roulette_update")
	require.True(t, ok)
	assert.Equal(t, 2, ru.data["count"]) // host and ana
	assert.Equal(t, "Portero", ru.data["positionName"])
}
