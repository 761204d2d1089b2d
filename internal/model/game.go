package model

import "regexp"

// Game lifecycle states.
const (
	GameActive   = "active"
	GameInactive = "inactive"
)

// Game client types.
const (
	GameTypeGUI = "GUI"
	GameTypeCLI = "CLI"
)

// Review is one text review attached to a game.
type Review struct {
	UserID    int    `json:"userId"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Game is one catalog entry. Only the latest version is retained on disk;
// CurrentVersion names it.
type Game struct {
	ID             int      `json:"id"`
	Name           string   `json:"name"`
	DeveloperID    int      `json:"developerId"`
	Description    string   `json:"description"`
	GameType       string   `json:"gameType"`
	MaxPlayers     int      `json:"maxPlayers"`
	CurrentVersion string   `json:"currentVersion"`
	MainFile       string   `json:"mainFile"`
	ServerFile     string   `json:"serverFile"`
	UploadedAt     string   `json:"uploadedAt"`
	UpdatedAt      string   `json:"updatedAt"`
	Status         string   `json:"status"`
	Ratings        []int    `json:"ratings"`
	Reviews        []Review `json:"reviews"`
}

// AverageRating returns the mean of the game's ratings, or false when the
// game has none.
func (g *Game) AverageRating() (float64, bool) {
	if len(g.Ratings) == 0 {
		return 0, false
	}
	var sum int
	for _, r := range g.Ratings {
		sum += r
	}
	return float64(sum) / float64(len(g.Ratings)), true
}

var versionRE = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// ValidVersion reports whether v is a semantic x.y.z version string.
func ValidVersion(v string) bool {
	return versionRE.MatchString(v)
}
