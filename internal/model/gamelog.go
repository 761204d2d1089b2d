package model

// MatchResult is one player's outcome in a completed match.
// Winner is true, false, or the string "draw" on the wire.
type MatchResult struct {
	UserID int `json:"userId"`
	Winner any `json:"winner"`
}

// GameLog is the append-only record of one completed match.
type GameLog struct {
	ID          int           `json:"id"`
	MatchID     string        `json:"matchId"`
	RoomID      int           `json:"roomId"`
	GameID      int           `json:"game_id"`
	GameName    string        `json:"game_name"`
	GameVersion string        `json:"game_version"`
	Users       []string      `json:"users"`
	StartAt     string        `json:"startAt"`
	EndAt       string        `json:"endAt"`
	Results     []MatchResult `json:"results"`
}

// Played reports whether username appears among the match participants.
func (l *GameLog) Played(username string) bool {
	for _, u := range l.Users {
		if u == username {
			return true
		}
	}
	return false
}
