package room

import (
	"encoding/json"
	"time"

	"syncfm/model"
)

// EventType tags a websocket message.
type EventType string

// Client -> server commands.
const (
	EvtCreateRoom         EventType = "create_room"
	EvtJoinRoom           EventType = "join_room"
	EvtLeaveRoom          EventType = "leave_room"
	EvtAddToPlaylist      EventType = "add_to_playlist"
	EvtRemoveFromPlaylist EventType = "remove_from_playlist"
	EvtClearPlaylist      EventType = "clear_playlist"
	EvtPlaySong           EventType = "play_song"
	EvtTogglePlayPause    EventType = "toggle_play_pause"
	EvtPlayNext           EventType = "play_next"
	EvtPlayPrevious       EventType = "play_previous"
	EvtSongFinished       EventType = "song_finished"
	EvtSendMessage        EventType = "send_message"
	EvtRequestSync        EventType = "request_sync"
	EvtPing               EventType = "ping"
)

// Server -> client events.
const (
	EvtRoomCreated     EventType = "room_created"
	EvtRoomJoined      EventType = "room_joined"
	EvtUserJoined      EventType = "user_joined"
	EvtUserLeft        EventType = "user_left"
	EvtPlaylistUpdated EventType = "playlist_updated"
	EvtPlaybackStarted EventType = "playback_started"
	EvtPlaybackToggled EventType = "playback_toggled"
	EvtSyncPlayback    EventType = "sync_playback"
	EvtMessageReceived EventType = "message_received"
	EvtError           EventType = "error"
	EvtPong            EventType = "pong"
)

// Event is the wire envelope for both directions.
type Event struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewEvent wraps a payload into an envelope.
func NewEvent(t EventType, payload interface{}) (*Event, error) {
	evt := &Event{Type: t, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		evt.Data = data
	}
	return evt, nil
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// ========== command payloads ==========

type CreateRoomData struct {
	RoomName string `json:"roomName"`
	UserName string `json:"userName"`
}

type JoinRoomData struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

type AddToPlaylistData struct {
	Track model.Track `json:"track"`
}

type RemoveFromPlaylistData struct {
	Position int `json:"position"`
}

type PlaySongData struct {
	Position int `json:"position"`
}

type SendMessageData struct {
	Content string `json:"content"`
}

// ========== event payloads ==========

type RoomWelcomeData struct {
	Room model.RoomState `json:"room"`
	User model.Member    `json:"user"`
}

type UserPresenceData struct {
	User      model.Member   `json:"user"`
	RoomUsers []model.Member `json:"roomUsers"`
}

type PlaylistUpdatedData struct {
	Playlist    []model.Track `json:"playlist"`
	CurrentSong *model.Track  `json:"currentSong,omitempty"`
	IsPlaying   bool          `json:"isPlaying"`
	AddedBy     string        `json:"addedBy,omitempty"`
	RemovedBy   string        `json:"removedBy,omitempty"`
	ClearedBy   string        `json:"clearedBy,omitempty"`
}

type PlaybackStartedData struct {
	CurrentSong *model.Track  `json:"currentSong,omitempty"`
	Playlist    []model.Track `json:"playlist"`
	IsPlaying   bool          `json:"isPlaying"`
	CurrentTime float64       `json:"currentTime"`
	PlayedBy    string        `json:"playedBy,omitempty"`
}

type PlaybackToggledData struct {
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime"`
	ToggledBy   string  `json:"toggledBy,omitempty"`
}

type SongFinishedData struct {
	CurrentSong *model.Track  `json:"currentSong,omitempty"`
	Playlist    []model.Track `json:"playlist"`
	IsPlaying   bool          `json:"isPlaying"`
	CurrentTime float64       `json:"currentTime"`
}

type SyncPlaybackData struct {
	CurrentSong *model.Track    `json:"currentSong,omitempty"`
	IsPlaying   bool            `json:"isPlaying"`
	Progress    *model.Progress `json:"progress,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
}
