package model

// Room lifecycle states. RoomWaiting only appears when a start attempt finds
// the bound game delisted and the room is parked until recreated.
const (
	RoomIdle    = "idle"
	RoomPlaying = "playing"
	RoomWaiting = "waiting"
)

// Room visibility.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Room is a persisted grouping of players bound to one game.
// GameServerPort is non-nil exactly while Status is RoomPlaying.
type Room struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	HostUserID     int    `json:"host_user_id"`
	Visibility     string `json:"visibility"`
	InviteList     []int  `json:"invitelist"`
	GameName       string `json:"game_name"`
	GameID         int    `json:"game_id"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"`
	GameServerPort *int   `json:"gameServerPort"`
}

// Invited reports whether userID is on the room's invite list.
func (r *Room) Invited(userID int) bool {
	for _, id := range r.InviteList {
		if id == userID {
			return true
		}
	}
	return false
}
