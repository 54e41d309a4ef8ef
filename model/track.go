package model

// Track is an immutable description of a playable song. It carries no
// lifecycle of its own; queue entries hold copies.
type Track struct {
	SongID   string `json:"songId"`   // external catalog identifier
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	CoverURL string `json:"coverUrl,omitempty"`
}
