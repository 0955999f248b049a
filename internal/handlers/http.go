package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/gorilla/mux"
)

// PhotoManifest lists the photo assets so the frontend knows which player
// images exist. Paths are emitted relative to the static root, "Fotos/…".
func (h *Handler) PhotoManifest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	entries, err := os.ReadDir(h.photosDir)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"files": []string{},
			"error": err.Error(),
		})
		return
	}
	base := filepath.Base(h.photosDir)
	files := []string{}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, path.Join(base, entry.Name()))
		}
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"files": files})
}

// GetRoom reports a room's membership for debugging and join pages.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	w.Header().Set("Content-Type", "application/json")
	room, ok := h.rooms.GetRoom(code)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": "room not found"})
		return
	}
	room.Mu.Lock()
	resp := map[string]interface{}{
		"code":         room.Code,
		"hostId":       room.HostID,
		"participants": room.ParticipantsArray(),
	}
	room.Mu.Unlock()
	json.NewEncoder(w).Encode(resp)
}
