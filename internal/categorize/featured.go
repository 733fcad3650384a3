package categorize

import (
	"math/rand/v2"
	"slices"
	"strings"

	domain "finitefield.org/arcade/internal/domain"
)

// FeaturedCount is how many categories the home view features.
const FeaturedCount = 7

// Shuffler permutes n elements through swap, like rand.Shuffle.
type Shuffler func(n int, swap func(i, j int))

// Featured picks count distinct categories at random and one random game from
// each. It returns nothing when count is not positive or fewer than count
// categories hold a playable game. A nil shuffle uses math/rand/v2.
func Featured(groups Groups, count int, shuffle Shuffler) []domain.Game {
	if count <= 0 {
		return nil
	}
	if shuffle == nil {
		shuffle = rand.Shuffle
	}

	type candidate struct {
		category string
		games    []domain.Game
	}
	candidates := make([]candidate, 0, len(groups.order))
	for _, key := range groups.order {
		games := slices.DeleteFunc(groups.Games(key), func(g domain.Game) bool {
			return strings.TrimSpace(g.ID) == ""
		})
		if len(games) > 0 {
			candidates = append(candidates, candidate{category: key, games: games})
		}
	}
	if len(candidates) < count {
		return nil
	}

	shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	out := make([]domain.Game, 0, count)
	for _, c := range candidates[:count] {
		shuffle(len(c.games), func(i, j int) { c.games[i], c.games[j] = c.games[j], c.games[i] })
		out = append(out, c.games[0])
	}
	return out
}
