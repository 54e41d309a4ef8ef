package room

import "errors"

// Command failures reported back to the originating connection as error
// events. None of them terminate the connection or the room.
var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomFull             = errors.New("room is full")
	ErrNotAMember           = errors.New("connection has not joined a room")
	ErrIndexOutOfRange      = errors.New("playlist index out of range")
	ErrDuplicateTrack       = errors.New("track already in playlist")
	ErrNoCurrentTrack       = errors.New("no current track")
	ErrQueueEmpty           = errors.New("playlist is empty")
	ErrOperationUnsupported = errors.New("operation unsupported")

	// ErrInvalidClockState means a room's clock was in neither mode. It
	// aborts the offending operation only; the room itself stays up.
	ErrInvalidClockState = errors.New("invalid clock state")
)
