package room

import (
	"context"
	"time"

	"syncfm/logger"
	"syncfm/model"
)

// Manager dispatches client commands against the registry and publishes the
// results through the hub. One instance serves every room.
//
// Broadcast scopes are fixed per event: command results go to all members of
// the room including the originator, presence changes go to everyone else,
// and errors go back to the originator alone.
type Manager struct {
	registry *Registry
	hub      *Hub
}

// NewManager wires a registry to a hub.
func NewManager(registry *Registry, hub *Hub) *Manager {
	return &Manager{registry: registry, hub: hub}
}

// HandleMessage routes one decoded command from a connection.
func (m *Manager) HandleMessage(ctx context.Context, client *Client, evt *Event) {
	switch evt.Type {
	case EvtCreateRoom:
		m.handleCreateRoom(client, evt)
	case EvtJoinRoom:
		m.handleJoinRoom(client, evt)
	case EvtLeaveRoom:
		m.handleLeave(client)
	case EvtAddToPlaylist:
		m.handleAddToPlaylist(client, evt)
	case EvtRemoveFromPlaylist:
		m.handleRemoveFromPlaylist(client, evt)
	case EvtClearPlaylist:
		m.handleClearPlaylist(client)
	case EvtPlaySong:
		m.handlePlaySong(client, evt)
	case EvtTogglePlayPause:
		m.handleTogglePlayPause(client)
	case EvtPlayNext:
		m.handlePlayNext(client)
	case EvtPlayPrevious:
		m.handlePlayPrevious(client)
	case EvtSongFinished:
		m.handleSongFinished(client)
	case EvtSendMessage:
		m.handleSendMessage(client, evt)
	case EvtRequestSync:
		m.handleRequestSync(client)
	default:
		logger.Warn("unknown message type",
			logger.String("type", string(evt.Type)),
			logger.String("conn", client.ID))
		m.sendError(client, "unknown message type: "+string(evt.Type))
	}
}

// HandleDisconnect runs after a connection's read pump exits. It is the
// implicit leave: same semantics as an explicit leave_room.
func (m *Manager) HandleDisconnect(client *Client) {
	m.handleLeave(client)
}

// ========== room lifecycle ==========

func (m *Manager) handleCreateRoom(client *Client, evt *Event) {
	var data CreateRoomData
	if err := evt.Decode(&data); err != nil {
		m.sendError(client, "invalid create_room payload")
		return
	}

	rm, err := m.registry.CreateRoom(data.RoomName)
	if err != nil {
		m.sendError(client, err.Error())
		return
	}

	// The creator joins the room they asked for.
	rm, member, err := m.registry.Join(rm.ID(), client.ID, data.UserName)
	if err != nil {
		m.sendError(client, err.Error())
		return
	}

	m.sendTo(client, EvtRoomCreated, RoomWelcomeData{Room: rm.Snapshot(), User: member})
}

func (m *Manager) handleJoinRoom(client *Client, evt *Event) {
	var data JoinRoomData
	if err := evt.Decode(&data); err != nil {
		m.sendError(client, "invalid join_room payload")
		return
	}

	rm, member, err := m.registry.Join(data.RoomID, client.ID, data.UserName)
	if err != nil {
		m.sendError(client, err.Error())
		return
	}

	m.sendTo(client, EvtRoomJoined, RoomWelcomeData{Room: rm.Snapshot(), User: member})

	m.broadcastExcept(rm, client.ID, EvtUserJoined, UserPresenceData{
		User:      member,
		RoomUsers: rm.Members(),
	})
	m.broadcastExcept(rm, client.ID, EvtMessageReceived, systemMessage(member.Name+" joined the room"))

	// A late joiner with a track already current gets an immediate sync so
	// its player converges without waiting for the sync ticker.
	if progress, err := rm.Progress(); err == nil {
		snap := rm.Snapshot()
		m.sendTo(client, EvtSyncPlayback, SyncPlaybackData{
			CurrentSong: snap.CurrentSong,
			IsPlaying:   snap.IsPlaying,
			Progress:    &progress,
		})
	}
}

func (m *Manager) handleLeave(client *Client) {
	rm, member, remaining, ok := m.registry.Leave(client.ID)
	if !ok {
		return
	}
	if rm == nil || remaining == 0 {
		return
	}

	m.broadcastExcept(rm, client.ID, EvtUserLeft, UserPresenceData{
		User:      member,
		RoomUsers: rm.Members(),
	})
	m.broadcastExcept(rm, client.ID, EvtMessageReceived, systemMessage(member.Name+" left the room"))
}

// ========== playlist ==========

func (m *Manager) handleAddToPlaylist(client *Client, evt *Event) {
	rm, member, err := m.session(client)
	if err != nil {
		return
	}

	var data AddToPlaylistData
	if err := evt.Decode(&data); err != nil || data.Track.SongID == "" {
		m.sendError(client, "invalid add_to_playlist payload")
		return
	}

	snap, started, err := rm.Enqueue(data.Track)
	if err != nil {
		m.sendError(client, err.Error())
		return
	}

	m.broadcastAll(rm, EvtPlaylistUpdated, PlaylistUpdatedData{
		Playlist:    snap.Queue,
		CurrentSong: snap.CurrentSong,
		IsPlaying:   snap.IsPlaying,
		AddedBy:     member.Name,
	})

	if started {
		logger.Info("playback auto-started on first enqueue",
			logger.String("roomId", rm.ID()),
			logger.String("songId", data.Track.SongID))
		m.broadcastAll(rm, EvtPlaybackStarted, PlaybackStartedData{
			CurrentSong: snap.CurrentSong,
			Playlist:    snap.Queue,
			IsPlaying:   true,
			CurrentTime: 0,
			PlayedBy:    member.Name,
		})
	}
}

func (m *Manager) handleRemoveFromPlaylist(client *Client, evt *Event) {
	rm, member, err := m.session(client)
	if err != nil {
		return
	}

	var data RemoveFromPlaylistData
	if err := evt.Decode(&data); err != nil {
		m.sendError(client, "invalid remove_from_playlist payload")
		return
	}

	snap, err := rm.RemoveAt(data.Position)
	if err != nil {
		m.sendError(client, err.Error())
		return
	}

	m.broadcastAll(rm, EvtPlaylistUpdated, PlaylistUpdatedData{
		Playlist:    snap.Queue,
		CurrentSong: snap.CurrentSong,
		IsPlaying:   snap.IsPlaying,
		RemovedBy:   member.Name,
	})
}

func (m *Manager) handleClearPlaylist(client *Client) {
	rm, member, err := m.session(client)
	if err != nil {
		return
	}

	snap, err := rm.Clear()
	if err != nil {
		m.sendError(client, err.Error())
		return
	}

	m.broadcastAll(rm, EvtPlaylistUpdated, PlaylistUpdatedData{
		Playlist:    snap.Queue,
		CurrentSong: snap.CurrentSong,
		IsPlaying:   snap.IsPlaying,
		ClearedBy:   member.Name,
	})
}

// ========== playback ==========

func (m *Manager) handlePlaySong(client *Client, evt *Event) {
	rm, member, err := m.session(client)
	if err != nil {
		return
	}

	var data PlaySongData
	if err := evt.Decode(&data); err != nil {
		m.sendError(client, "invalid play_song payload")
		return
	}

	snap, err := rm.PlayAt(data.Position)
	if err != nil {
		m.sendError(client, err.Error())
		return
	}

	m.broadcastAll(rm, EvtPlaybackStarted, PlaybackStartedData{
		CurrentSong: snap.CurrentSong,
		Playlist:    snap.Queue,
		IsPlaying:   snap.IsPlaying,
		CurrentTime: 0,
		PlayedBy:    member.Name,
	})
}

func (m *Manager) handleTogglePlayPause(client *Client) {
	rm, member, err := m.session(client)
	if err != nil {
		return
	}

	_, progress, err := rm.TogglePlayPause()
	if err != nil {
		m.sendError(client, err.Error())
		return
	}

	m.broadcastAll(rm, EvtPlaybackToggled, PlaybackToggledData{
		IsPlaying:   progress.IsPlaying,
		CurrentTime: progress.Elapsed,
		ToggledBy:   member.Name,
	})
}

func (m *Manager) handlePlayNext(client *Client) {
	rm, member, err := m.session(client)
	if err != nil {
		return
	}

	snap, err := rm.Advance()
	if err != nil {
		m.sendError(client, err.Error())
		return
	}

	m.broadcastAll(rm, EvtPlaybackStarted, PlaybackStartedData{
		CurrentSong: snap.CurrentSong,
		Playlist:    snap.Queue,
		IsPlaying:   snap.IsPlaying,
		CurrentTime: 0,
		PlayedBy:    member.Name,
	})
}

func (m *Manager) handlePlayPrevious(client *Client) {
	rm, _, err := m.session(client)
	if err != nil {
		return
	}

	m.sendError(client, rm.Previous().Error())
}

func (m *Manager) handleSongFinished(client *Client) {
	rm, _, err := m.session(client)
	if err != nil {
		return
	}

	snap, err := rm.Advance()
	if err != nil {
		m.sendError(client, err.Error())
		return
	}

	m.broadcastAll(rm, EvtSongFinished, SongFinishedData{
		CurrentSong: snap.CurrentSong,
		Playlist:    snap.Queue,
		IsPlaying:   snap.IsPlaying,
		CurrentTime: 0,
	})
}

func (m *Manager) handleRequestSync(client *Client) {
	rm, _, err := m.session(client)
	if err != nil {
		return
	}

	snap := rm.Snapshot()
	data := SyncPlaybackData{
		CurrentSong: snap.CurrentSong,
		IsPlaying:   snap.IsPlaying,
	}
	if progress, err := rm.Progress(); err == nil {
		data.Progress = &progress
	}

	m.sendTo(client, EvtSyncPlayback, data)
}

// ========== chat ==========

func (m *Manager) handleSendMessage(client *Client, evt *Event) {
	rm, member, err := m.session(client)
	if err != nil {
		return
	}

	var data SendMessageData
	if err := evt.Decode(&data); err != nil || data.Content == "" {
		m.sendError(client, "invalid send_message payload")
		return
	}

	m.broadcastAll(rm, EvtMessageReceived, model.ChatMessage{
		Sender:    member.Name,
		Content:   data.Content,
		Kind:      model.ChatKindText,
		Timestamp: time.Now().UnixMilli(),
	})
}

// ========== helpers ==========

// systemMessage builds a server-originated chat line for presence changes.
func systemMessage(content string) model.ChatMessage {
	return model.ChatMessage{
		Sender:    "system",
		Content:   content,
		Kind:      model.ChatKindSystem,
		Timestamp: time.Now().UnixMilli(),
	}
}

// session resolves the caller's room, reporting to the caller on failure.
func (m *Manager) session(client *Client) (*Room, model.Member, error) {
	rm, member, err := m.registry.Session(client.ID)
	if err != nil {
		m.sendError(client, err.Error())
		return nil, model.Member{}, err
	}
	return rm, member, nil
}

func (m *Manager) sendTo(client *Client, t EventType, payload interface{}) {
	evt, err := NewEvent(t, payload)
	if err != nil {
		logger.Error("marshal event", logger.ErrorField(err), logger.String("type", string(t)))
		return
	}
	client.SendEvent(evt)
}

func (m *Manager) sendError(client *Client, message string) {
	m.sendTo(client, EvtError, ErrorData{Message: message})
}

func (m *Manager) broadcastAll(rm *Room, t EventType, payload interface{}) {
	m.broadcastExcept(rm, "", t, payload)
}

func (m *Manager) broadcastExcept(rm *Room, excludeID string, t EventType, payload interface{}) {
	evt, err := NewEvent(t, payload)
	if err != nil {
		logger.Error("marshal event", logger.ErrorField(err), logger.String("type", string(t)))
		return
	}

	members := rm.Members()
	recipients := make([]string, 0, len(members))
	for _, mb := range members {
		recipients = append(recipients, mb.ID)
	}
	if err := m.hub.Broadcast(recipients, evt, excludeID); err != nil {
		logger.Error("broadcast failed", logger.ErrorField(err), logger.String("type", string(t)))
	}
}
