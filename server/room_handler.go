package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"syncfm/core/room"
	"syncfm/logger"
	"syncfm/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) registerRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/rooms", s.handleListRooms).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}", s.handleGetRoom).Methods(http.MethodGet)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/stream/{songId}", s.handleStreamURL).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebSocket upgrades the connection and runs its pumps. Each
// connection gets a fresh id; the room it belongs to is decided later by
// its join_room command.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := room.NewClient(uuid.NewString(), s.hub, conn)
	s.hub.Register(client)

	go client.WritePump()
	client.ReadPump(r.Context(), s.manager.HandleMessage)

	// The read pump has exited: the connection is gone either way.
	s.manager.HandleDisconnect(client)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.registry.Rooms()
	out := make([]model.RoomSummary, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, summarize(rm))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rm, err := s.registry.GetRoom(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	snap := rm.Snapshot()
	writeJSON(w, http.StatusOK, model.RoomDetail{
		RoomSummary: summarize(rm),
		Queue:       snap.Queue,
		Members:     rm.Members(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key parameter")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	songs, err := s.music.Search(r.Context(), key, limit)
	if err != nil {
		logger.Warn("search failed", logger.ErrorField(err), logger.String("key", key))
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

// handleStreamURL resolves a song to its playable URL, through the redis
// cache when one is connected.
func (s *Server) handleStreamURL(w http.ResponseWriter, r *http.Request) {
	songID := mux.Vars(r)["songId"]

	streamURL, err := s.resolver.Resolve(r.Context(), songID)
	if err != nil {
		logger.Warn("stream resolution failed", logger.ErrorField(err), logger.String("songId", songID))
		writeError(w, http.StatusBadGateway, "stream resolution failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"songId": songID, "url": streamURL})
}

func summarize(rm *room.Room) model.RoomSummary {
	snap := rm.Snapshot()
	return model.RoomSummary{
		ID:          snap.ID,
		Name:        snap.Name,
		MemberCount: snap.MemberCount,
		CurrentSong: snap.CurrentSong,
		IsPlaying:   snap.IsPlaying,
		CreatedAt:   snap.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
