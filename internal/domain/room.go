package domain

import "time"

// RoomStatus is the lifecycle state of a room
type RoomStatus string

const (
	RoomLobby  RoomStatus = "lobby"
	RoomInGame RoomStatus = "ingame"
	RoomClosed RoomStatus = "closed"
)

// Room holds the metadata of one game room
type Room struct {
	Code      string     `json:"code"`
	HostID    string     `json:"hostId"`
	Status    RoomStatus `json:"status"`
	Day       int        `json:"day"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewRoom creates a room in the lobby on day 1
func NewRoom(code, hostID string) *Room {
	return &Room{
		Code:      code,
		HostID:    hostID,
		Status:    RoomLobby,
		Day:       1,
		CreatedAt: time.Now().UTC(),
	}
}

// IsHost checks if the given player is the host
func (r *Room) IsHost(playerID string) bool {
	return playerID != "" && r.HostID == playerID
}

// IsClosed reports whether the room reached its terminal status.
func (r *Room) IsClosed() bool {
	return r.Status == RoomClosed
}
