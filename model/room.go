package model

// Member is a user inside a room, keyed by its connection.
type Member struct {
	ID       string `json:"id"` // connection identifier
	Name     string `json:"name"`
	JoinedAt int64  `json:"joinedAt"` // unix ms
}

// Progress is a point-in-time reading of a room's playback clock.
// ReportedAt lets a receiver with network delay extrapolate: while playing
// the true position is Elapsed + (now - ReportedAt); while paused it is
// Offset and does not move.
type Progress struct {
	Elapsed    float64 `json:"elapsed"` // seconds
	Offset     float64 `json:"offset"`  // seconds, meaningful while paused
	IsPlaying  bool    `json:"isPlaying"`
	ReportedAt int64   `json:"reportedAt"` // unix ms
}

// RoomState is an immutable snapshot of a room taken under its lock.
// Broadcasts are built from these, never from the live room.
type RoomState struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Queue       []Track `json:"playlist"`
	CurrentSong *Track  `json:"currentSong,omitempty"`
	IsPlaying   bool    `json:"isPlaying"`
	MemberCount int     `json:"memberCount"`
	CreatedAt   int64   `json:"createdAt"` // unix ms
}

// RoomSummary is the REST listing shape.
type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount"`
	CurrentSong *Track `json:"currentSong,omitempty"`
	IsPlaying   bool   `json:"isPlaying"`
	CreatedAt   int64  `json:"createdAt"`
}

// RoomDetail is the REST per-room shape, including the full queue.
type RoomDetail struct {
	RoomSummary
	Queue   []Track  `json:"playlist"`
	Members []Member `json:"members"`
}
