// Package categorize groups catalog records into category buckets for the
// home view.
package categorize

import (
	"bytes"
	"encoding/json"
	"strings"

	domain "finitefield.org/arcade/internal/domain"
)

// Groups maps category keys to games while remembering the order in which
// each category was first seen.
type Groups struct {
	order   []string
	buckets map[string][]domain.Game
}

// Group buckets list by category. Records without a category are skipped.
func Group(list []domain.Game) Groups {
	groups := Groups{buckets: make(map[string][]domain.Game)}
	for _, game := range list {
		groups.add(game)
	}
	return groups
}

// GroupJSON buckets a raw JSON payload. Anything other than an array yields an
// empty mapping, and elements that are not objects carrying a non-empty string
// category are dropped without error.
func GroupJSON(raw []byte) Groups {
	groups := Groups{buckets: make(map[string][]domain.Game)}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return groups
	}

	for _, element := range elements {
		trimmed := bytes.TrimSpace(element)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}
		var head struct {
			Category any `json:"category"`
		}
		if err := json.Unmarshal(trimmed, &head); err != nil {
			continue
		}
		if category, ok := head.Category.(string); !ok || strings.TrimSpace(category) == "" {
			continue
		}
		var game domain.Game
		if err := json.Unmarshal(trimmed, &game); err != nil {
			continue
		}
		groups.add(game)
	}
	return groups
}

func (g *Groups) add(game domain.Game) {
	key := game.Category
	if strings.TrimSpace(key) == "" {
		return
	}
	if _, ok := g.buckets[key]; !ok {
		g.order = append(g.order, key)
	}
	g.buckets[key] = append(g.buckets[key], game)
}

// Keys returns categories in first-occurrence order.
func (g Groups) Keys() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Games returns the bucket for key in input order.
func (g Groups) Games(key string) []domain.Game {
	bucket := g.buckets[key]
	out := make([]domain.Game, len(bucket))
	copy(out, bucket)
	return out
}

// Len reports the number of categories.
func (g Groups) Len() int {
	return len(g.order)
}

type categoryPayload struct {
	Category string        `json:"category"`
	Games    []domain.Game `json:"games"`
}

// MarshalJSON renders the groups as an ordered array of {category, games}.
func (g Groups) MarshalJSON() ([]byte, error) {
	payload := make([]categoryPayload, 0, len(g.order))
	for _, key := range g.order {
		payload = append(payload, categoryPayload{Category: key, Games: g.buckets[key]})
	}
	return json.Marshal(payload)
}
