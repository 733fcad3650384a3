package categorize

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "finitefield.org/arcade/internal/domain"
)

func gamesAcross(categories, perCategory int) []domain.Game {
	var list []domain.Game
	for c := range categories {
		for g := range perCategory {
			list = append(list, domain.Game{
				ID:       fmt.Sprintf("c%d-g%d", c, g),
				Title:    fmt.Sprintf("Game %d-%d", c, g),
				Category: fmt.Sprintf("cat-%d", c),
			})
		}
	}
	return list
}

func TestFeaturedOnePerCategory(t *testing.T) {
	groups := Group(gamesAcross(10, 4))
	seeded := rand.New(rand.NewPCG(1, 2))

	for range 50 {
		picked := Featured(groups, FeaturedCount, seeded.Shuffle)
		require.Len(t, picked, FeaturedCount)

		seen := make(map[string]bool)
		for _, game := range picked {
			assert.False(t, seen[game.Category], "category %s picked twice", game.Category)
			seen[game.Category] = true
			assert.Contains(t, groups.Games(game.Category), game)
		}
	}
}

func TestFeaturedTooFewCategories(t *testing.T) {
	groups := Group(gamesAcross(6, 3))
	assert.Empty(t, Featured(groups, 7, nil))
	assert.Len(t, Featured(groups, 6, nil), 6)
}

func TestFeaturedNonPositiveCount(t *testing.T) {
	groups := Group(gamesAcross(3, 1))
	assert.Empty(t, Featured(groups, 0, nil))
	assert.Empty(t, Featured(groups, -1, nil))
}

func TestFeaturedSkipsUnplayableEntries(t *testing.T) {
	list := gamesAcross(2, 1)
	list = append(list, domain.Game{Title: "No id", Category: "broken"}, domain.Game{ID: "x", Category: ""})
	groups := Group(list)

	assert.Empty(t, Featured(groups, 3, nil), "a category with no playable game does not count")
	picked := Featured(groups, 2, nil)
	require.Len(t, picked, 2)
	for _, game := range picked {
		assert.NotEmpty(t, game.ID)
	}
}

func TestFeaturedIdentityShuffleKeepsFirstSeenOrder(t *testing.T) {
	groups := Group(gamesAcross(8, 2))
	identity := func(int, func(i, j int)) {}

	picked := Featured(groups, 3, identity)
	require.Len(t, picked, 3)
	assert.Equal(t, []string{"c0-g0", "c1-g0", "c2-g0"}, []string{picked[0].ID, picked[1].ID, picked[2].ID})
	// The source buckets are not reordered.
	assert.Equal(t, "c0-g0", groups.Games("cat-0")[0].ID)
}
