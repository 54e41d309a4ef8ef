package player

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"syncfm/core/room"
	"syncfm/logger"
	"syncfm/model"
)

// ListenerOptions configures a headless room listener.
type ListenerOptions struct {
	ServerURL string // ws(s)://host/ws
	RoomID    string
	UserName  string
}

// Listener joins a room over websocket and keeps a local engine in sync with
// the room clock. It never issues playback commands; it only follows.
type Listener struct {
	opts ListenerOptions
	rec  *Reconciler
}

// NewListener builds a listener around a reconciler.
func NewListener(opts ListenerOptions, rec *Reconciler) *Listener {
	return &Listener{opts: opts, rec: rec}
}

// Run dials the server, joins the room and follows it until the context is
// cancelled or the connection drops.
func (l *Listener) Run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.opts.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.opts.ServerURL, err)
	}
	defer conn.Close()

	if err := l.send(conn, room.EvtJoinRoom, room.JoinRoomData{
		RoomID:   l.opts.RoomID,
		UserName: l.opts.UserName,
	}); err != nil {
		return err
	}

	events := make(chan *room.Event, 16)
	readErr := make(chan error, 1)
	go l.readLoop(conn, events, readErr)

	ticker := time.NewTicker(SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()

		case err := <-readErr:
			return err

		case <-ticker.C:
			if err := l.rec.Tick(); err != nil {
				logger.Warn("reconciler tick", logger.ErrorField(err))
			}
			if err := l.send(conn, room.EvtRequestSync, nil); err != nil {
				return err
			}

		case evt := <-events:
			if err := l.handle(ctx, evt); err != nil {
				logger.Warn("event handling failed",
					logger.ErrorField(err),
					logger.String("type", string(evt.Type)))
			}
		}
	}
}

// readLoop splits coalesced frames into individual events. The server packs
// queued events into one text message separated by newlines.
func (l *Listener) readLoop(conn *websocket.Conn, events chan<- *room.Event, readErr chan<- error) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		for _, raw := range bytes.Split(payload, []byte{'\n'}) {
			if len(raw) == 0 {
				continue
			}
			var evt room.Event
			if err := json.Unmarshal(raw, &evt); err != nil {
				logger.Warn("bad event from server", logger.ErrorField(err))
				continue
			}
			events <- &evt
		}
	}
}

func (l *Listener) handle(ctx context.Context, evt *room.Event) error {
	switch evt.Type {
	case room.EvtRoomJoined:
		var data room.RoomWelcomeData
		if err := evt.Decode(&data); err != nil {
			return err
		}
		logger.Info("joined room",
			logger.String("roomId", data.Room.ID),
			logger.String("name", data.Room.Name),
			logger.Int("members", data.Room.MemberCount))
		return nil

	case room.EvtSyncPlayback:
		var data room.SyncPlaybackData
		if err := evt.Decode(&data); err != nil {
			return err
		}
		return l.rec.ApplySync(ctx, data)

	case room.EvtPlaybackStarted:
		var data room.PlaybackStartedData
		if err := evt.Decode(&data); err != nil {
			return err
		}
		return l.rec.ApplySync(ctx, room.SyncPlaybackData{
			CurrentSong: data.CurrentSong,
			IsPlaying:   data.IsPlaying,
			Progress: &model.Progress{
				Elapsed:    data.CurrentTime,
				Offset:     data.CurrentTime,
				IsPlaying:  data.IsPlaying,
				ReportedAt: evt.Timestamp,
			},
		})

	case room.EvtSongFinished:
		var data room.SongFinishedData
		if err := evt.Decode(&data); err != nil {
			return err
		}
		return l.rec.ApplySync(ctx, room.SyncPlaybackData{
			CurrentSong: data.CurrentSong,
			IsPlaying:   data.IsPlaying,
			Progress: &model.Progress{
				IsPlaying:  data.IsPlaying,
				ReportedAt: evt.Timestamp,
			},
		})

	case room.EvtPlaybackToggled:
		var data room.PlaybackToggledData
		if err := evt.Decode(&data); err != nil {
			return err
		}
		songID := l.rec.CurrentSongID()
		if songID == "" {
			return nil
		}
		return l.rec.ApplySync(ctx, room.SyncPlaybackData{
			CurrentSong: &model.Track{SongID: songID},
			IsPlaying:   data.IsPlaying,
			Progress: &model.Progress{
				Elapsed:    data.CurrentTime,
				Offset:     data.CurrentTime,
				IsPlaying:  data.IsPlaying,
				ReportedAt: evt.Timestamp,
			},
		})

	case room.EvtMessageReceived:
		var msg model.ChatMessage
		if err := evt.Decode(&msg); err != nil {
			return err
		}
		logger.Info("chat", logger.String("from", msg.Sender), logger.String("content", msg.Content))
		return nil

	case room.EvtError:
		var data room.ErrorData
		if err := evt.Decode(&data); err != nil {
			return err
		}
		logger.Warn("server error", logger.String("message", data.Message))
		return nil

	default:
		return nil
	}
}

func (l *Listener) send(conn *websocket.Conn, t room.EventType, payload interface{}) error {
	evt, err := room.NewEvent(t, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}
