// Package handlers wires Socket.IO events into the room, auction and trade
// engines, and serves the small REST surface next to them.
package handlers

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/elmynz/subasta-server/internal/auction"
	"github.com/elmynz/subasta-server/internal/models"
	"github.com/elmynz/subasta-server/internal/trade"
)

// Emitter broadcasts an event to every connection in a room.
type Emitter interface {
	ToRoom(code, event string, data interface{})
}

// RoomEmitter adapts the socket.io server to the engines' Emitter interfaces.
type RoomEmitter struct {
	IO *socket.Server
}

func (e RoomEmitter) ToRoom(code, event string, data interface{}) {
	if data == nil {
		e.IO.To(socket.Room(code)).Emit(event)
		return
	}
	e.IO.To(socket.Room(code)).Emit(event, data)
}

type Handler struct {
	rooms     *models.RoomManager
	auction   *auction.Engine
	trades    *trade.Engine
	emit      Emitter
	photosDir string
	log       *zap.Logger
}

func New(rooms *models.RoomManager, auctionEng *auction.Engine, tradeEng *trade.Engine, emit Emitter, photosDir string, log *zap.Logger) *Handler {
	return &Handler{
		rooms:     rooms,
		auction:   auctionEng,
		trades:    tradeEng,
		emit:      emit,
		photosDir: photosDir,
		log:       log,
	}
}

// Register binds every client intent to its handler. joinedCode mirrors the
// per-connection room membership for disconnect cleanup.
func (h *Handler) Register(client *socket.Socket) {
	var joinedCode string
	id := string(client.Id())

	client.On("create_room", func(args ...any) {
		data := parseData(args)
		if code := h.handleCreateRoom(client, data); code != "" {
			joinedCode = code
		}
	})
	client.On("join_room", func(args ...any) {
		data := parseData(args)
		if code := h.handleJoinRoom(client, data); code != "" {
			joinedCode = code
		}
	})
	client.On("set_all_budgets", func(args ...any) {
		data := parseData(args)
		h.handleSetAllBudgets(id, data)
	})
	client.On("start_game", func(args ...any) {
		data := parseData(args)
		h.auction.StartGame(str(data, "code"), id)
	})
	client.On("set_round", func(args ...any) {
		data := parseData(args)
		h.auction.SetRound(str(data, "code"), id, str(data, "positionName"), intField(data, "rounds"))
	})
	client.On("set_player", func(args ...any) {
		data := parseData(args)
		player, _ := data["player"].(map[string]interface{})
		h.auction.SetPlayer(str(data, "code"), id, player, intField(data, "index"))
	})
	client.On("place_bid", func(args ...any) {
		data := parseData(args)
		value := math.NaN()
		if f, ok := models.NumField(data, "value"); ok {
			value = f
		}
		h.auction.PlaceBid(str(data, "code"), id, value)
	})
	client.On("player_revealed", func(args ...any) {
		data := parseData(args)
		h.auction.RevealPlayer(str(data, "code"), id)
	})
	client.On("confirm_winner", func(args ...any) {
		data := parseData(args)
		h.auction.ConfirmWinner(str(data, "code"), id)
	})
	client.On("spin_roulette", func(args ...any) {
		data := parseData(args)
		h.auction.SpinRoulette(str(data, "code"), id)
	})
	client.On("roulette_modal", func(args ...any) {
		data := parseData(args)
		h.handleRouletteModal(id, data)
	})
	client.On("roulette_close", func(args ...any) {
		data := parseData(args)
		h.handleRouletteClose(id, data)
	})
	client.On("market_state", func(args ...any) {
		data := parseData(args)
		h.handleMarketState(id, data)
	})
	client.On("transfer_offer", func(args ...any) {
		offer := parseData(args)
		h.handleTransferOffer(id, offer)
	})
	client.On("transfer_offer_update", func(args ...any) {
		data := parseData(args)
		offer, _ := data["offer"].(map[string]interface{})
		h.trades.HandleUpdate(str(data, "code"), str(data, "action"), offer)
	})
	client.On("disconnect", func(...any) {
		h.handleDisconnect(id, joinedCode)
	})
}

func (h *Handler) handleCreateRoom(client *socket.Socket, data map[string]interface{}) string {
	id := string(client.Id())
	name := strings.TrimSpace(str(data, "name"))
	if name == "" {
		name = "Anfitrión"
	}
	room := h.rooms.CreateRoom(id)

	room.Mu.Lock()
	room.Join(&models.Participant{ID: id, Name: name, Avatar: str(data, "avatar")})
	code := room.Code
	participants := room.ParticipantsArray()
	budgets := room.BudgetsCopy()
	open := room.MarketOpen
	room.Mu.Unlock()

	client.Join(socket.Room(code))
	client.Emit("room_created", map[string]interface{}{"code": code, "participants": participants})
	client.Emit("budget_update", map[string]interface{}{"budgets": budgets})
	client.Emit("market_state", map[string]interface{}{"open": open, "reason": "init"})
	h.emit.ToRoom(code, "participants_update", map[string]interface{}{"code": code, "participants": participants})
	h.log.Info("room created", zap.String("room", code), zap.String("host", id))
	return code
}

func (h *Handler) handleJoinRoom(client *socket.Socket, data map[string]interface{}) string {
	id := string(client.Id())
	code := strings.ToUpper(strings.TrimSpace(str(data, "code")))
	room, ok := h.rooms.GetRoom(code)
	if !ok {
		client.Emit("room_error", map[string]interface{}{"message": "La sala no existe."})
		return ""
	}
	name := str(data, "name")
	if name == "" {
		name = "Jugador"
	}
	avatar := str(data, "avatar")

	room.Mu.Lock()
	if room.AvatarInUse(avatar) {
		room.Mu.Unlock()
		client.Emit("room_error", map[string]interface{}{
			"message": "El avatar seleccionado ya está en uso en esta sala. Elige otro.",
		})
		return ""
	}
	room.Join(&models.Participant{ID: id, Name: name, Avatar: avatar})
	participants := room.ParticipantsArray()
	budgets := room.BudgetsCopy()
	open := room.MarketOpen
	cur := room.Current
	inProgress := cur != nil && cur.Player != nil
	var positionName string
	var rounds, currentBid int
	var bidderID string
	var player map[string]interface{}
	var timerEndAt int64
	if inProgress {
		positionName = cur.PositionName
		rounds = cur.Rounds
		player = cur.Player
		currentBid = cur.CurrentBid
		bidderID = cur.LastBidderID
		timerEndAt = cur.TimerEndAt
	}
	room.Mu.Unlock()

	client.Join(socket.Room(code))
	client.Emit("room_joined", map[string]interface{}{"code": code, "participants": participants})
	client.Emit("budget_update", map[string]interface{}{"budgets": budgets})
	client.Emit("market_state", map[string]interface{}{"open": open, "reason": "sync"})
	h.emit.ToRoom(code, "participants_update", map[string]interface{}{"code": code, "participants": participants})

	// Fast-forward a late joiner into the running round.
	if inProgress {
		client.Emit("game_started", map[string]interface{}{"code": code})
		client.Emit("round_set", map[string]interface{}{"positionName": positionName, "rounds": rounds})
		client.Emit("player_set", map[string]interface{}{"player": player})
		if currentBid > 0 {
			client.Emit("bid_update", map[string]interface{}{"currentBid": currentBid, "bidderId": bidderID})
		}
		if timerEndAt != 0 {
			client.Emit("timer_update", map[string]interface{}{"endAt": timerEndAt})
		}
	}
	h.log.Info("participant joined", zap.String("room", code), zap.String("id", id))
	return code
}

func (h *Handler) handleSetAllBudgets(callerID string, data map[string]interface{}) {
	room, ok := h.rooms.GetRoom(str(data, "code"))
	if !ok {
		return
	}
	room.Mu.Lock()
	if room.HostID != callerID {
		room.Mu.Unlock()
		return
	}
	amount := 0
	if f, ok := models.NumField(data, "amount"); ok && f > 0 {
		amount = int(f)
	}
	room.SetAllBudgets(amount)
	budgets := room.BudgetsCopy()
	code := room.Code
	room.Mu.Unlock()
	h.emit.ToRoom(code, "budget_update", map[string]interface{}{"budgets": budgets})
}

func (h *Handler) handleMarketState(callerID string, data map[string]interface{}) {
	room, ok := h.rooms.GetRoom(str(data, "code"))
	if !ok {
		return
	}
	open, _ := data["open"].(bool)
	reason := str(data, "reason")
	if reason == "" {
		reason = "broadcast"
	}
	room.Mu.Lock()
	if room.HostID != callerID {
		room.Mu.Unlock()
		return
	}
	room.MarketOpen = open
	code := room.Code
	room.Mu.Unlock()
	h.log.Info("market state",
		zap.String("room", code),
		zap.Bool("open", open),
		zap.String("reason", reason),
		zap.String("sender", callerID))
	h.emit.ToRoom(code, "market_state", map[string]interface{}{"open": open, "reason": reason})
}

func (h *Handler) handleRouletteModal(callerID string, data map[string]interface{}) {
	room, ok := h.rooms.GetRoom(str(data, "code"))
	if !ok {
		return
	}
	room.Mu.Lock()
	isHost := room.HostID == callerID
	code := room.Code
	room.Mu.Unlock()
	if !isHost {
		return
	}
	open, _ := data["open"].(bool)
	h.emit.ToRoom(code, "roulette_modal", map[string]interface{}{"open": open})
}

func (h *Handler) handleRouletteClose(callerID string, data map[string]interface{}) {
	room, ok := h.rooms.GetRoom(str(data, "code"))
	if !ok {
		return
	}
	room.Mu.Lock()
	isHost := room.HostID == callerID
	code := room.Code
	room.Mu.Unlock()
	if !isHost {
		return
	}
	h.emit.ToRoom(code, "roulette_close", nil)
}

func (h *Handler) handleTransferOffer(senderID string, offer map[string]interface{}) {
	code := str(offer, "code")
	if code == "" {
		return
	}
	// Give the offer an id when the client omitted one, so responses can be
	// correlated.
	if str(offer, "id") == "" {
		offer["id"] = uuid.Must(uuid.NewV4()).String()
	}
	h.trades.RelayOffer(code, senderID, offer)
}

func (h *Handler) handleDisconnect(id, joinedCode string) {
	if joinedCode == "" {
		return
	}
	room, ok := h.rooms.GetRoom(joinedCode)
	if !ok {
		return
	}
	room.Mu.Lock()
	empty, hostChanged := room.Leave(id)
	if empty {
		if room.Current != nil {
			room.Current.CancelTimer()
		}
		room.Mu.Unlock()
		h.rooms.DeleteRoom(joinedCode)
		h.log.Info("room deleted", zap.String("room", joinedCode))
		return
	}
	hostID := room.HostID
	participants := room.ParticipantsArray()
	budgets := room.BudgetsCopy()
	room.Mu.Unlock()

	if hostChanged {
		h.emit.ToRoom(joinedCode, "host_changed", map[string]interface{}{"code": joinedCode, "hostId": hostID})
		h.log.Info("host changed", zap.String("room", joinedCode), zap.String("host", hostID))
	}
	h.emit.ToRoom(joinedCode, "participants_update", map[string]interface{}{"code": joinedCode, "participants": participants})
	h.emit.ToRoom(joinedCode, "budget_update", map[string]interface{}{"budgets": budgets})
}

// parseData extracts the first event argument as a map. The socket.io library
// delivers JSON data as raw values; everything is normalised to map form.
func parseData(args []any) map[string]interface{} {
	if len(args) == 0 {
		return map[string]interface{}{}
	}
	switch v := args[0].(type) {
	case map[string]interface{}:
		return v
	case string:
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(v), &m); err == nil {
			return m
		}
		return map[string]interface{}{}
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return map[string]interface{}{}
		}
		var m map[string]interface{}
		if err := json.Unmarshal(b, &m); err != nil {
			return map[string]interface{}{}
		}
		return m
	}
}

func str(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]interface{}, key string) int {
	if f, ok := models.NumField(m, key); ok {
		return int(f)
	}
	return 0
}
