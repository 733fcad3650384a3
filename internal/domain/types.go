package domain

import (
	"strings"
	"time"
)

// Game describes one playable catalog entry as served by the static data files.
type Game struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	Thumb        string `json:"thumb"`
	URL          string `json:"url"`
	Description  string `json:"description"`
	Instructions string `json:"instructions"`
	Tags         string `json:"tags"`
}

// TagList splits the comma separated tags, dropping blank entries.
func (g Game) TagList() []string {
	if strings.TrimSpace(g.Tags) == "" {
		return []string{}
	}
	parts := strings.Split(g.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Favorite is a game marked by the user. AddedAt is only populated for entries
// that were read back from the remote store.
type Favorite struct {
	Game
	AddedAt time.Time `json:"addedAt,omitzero"`
}

// User is the signed-in principal. The zero value is anonymous.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Anonymous reports whether no user is signed in.
func (u User) Anonymous() bool {
	return strings.TrimSpace(u.ID) == ""
}

// GameDetail bundles a game with other games from the same category.
type GameDetail struct {
	Game    Game
	Related []Game
}
