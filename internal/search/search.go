// Package search implements catalog search: a pure substring matcher and a
// debounced session that recomputes results once input settles.
package search

import (
	"strings"

	"golang.org/x/text/cases"

	domain "finitefield.org/arcade/internal/domain"
)

// MaxResults caps the number of matches returned by Search.
const MaxResults = 10

// Result is the outcome of a search. Searched is false when the query was
// blank, which callers render differently from "searched, found nothing".
type Result struct {
	Query    string        `json:"query"`
	Games    []domain.Game `json:"games"`
	Searched bool          `json:"searched"`
}

// HasResults reports whether any game matched.
func (r Result) HasResults() bool { return len(r.Games) > 0 }

// Total returns the number of matches.
func (r Result) Total() int { return len(r.Games) }

// Search matches query against title, category, tags and description.
func Search(query string, catalog []domain.Game) Result {
	return SearchN(query, catalog, MaxResults)
}

// SearchN is Search with an explicit result cap. A non-positive limit means MaxResults.
func SearchN(query string, catalog []domain.Game, limit int) Result {
	if limit <= 0 {
		limit = MaxResults
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Result{Query: query, Games: []domain.Game{}}
	}

	fold := cases.Fold()
	needle := fold.String(trimmed)
	contains := func(field string) bool {
		return field != "" && strings.Contains(fold.String(field), needle)
	}

	matches := make([]domain.Game, 0, limit)
	for _, game := range catalog {
		if contains(game.Title) || contains(game.Category) || contains(game.Tags) || contains(game.Description) {
			matches = append(matches, game)
			if len(matches) == limit {
				break
			}
		}
	}
	return Result{Query: query, Games: matches, Searched: true}
}

// FilterByTitle keeps games whose title contains query, ignoring case. A blank
// query returns the list unchanged.
func FilterByTitle(query string, list []domain.Game) []domain.Game {
	if query == "" {
		return list
	}
	fold := cases.Fold()
	needle := fold.String(query)
	out := make([]domain.Game, 0, len(list))
	for _, game := range list {
		if strings.Contains(fold.String(game.Title), needle) {
			out = append(out, game)
		}
	}
	return out
}
