package storage

import (
	"errors"
	"strings"
	"unicode"
)

// HomeDataPath is the data file behind the home view.
const HomeDataPath = "/data/home_data.json"

// ErrInvalidCategory reports a category that cannot name a data file.
var ErrInvalidCategory = errors.New("storage: invalid category name")

// CategoryDataPath maps "Puzzle Games" to /data/Categories/PuzzleGamesData.json.
// Every whitespace rune is dropped; names that would escape the Categories
// directory are refused.
func CategoryDataPath(category string) (string, error) {
	name := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, category)
	switch {
	case name == "":
		return "", errors.Join(ErrInvalidCategory, errors.New("category is required"))
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."):
		return "", errors.Join(ErrInvalidCategory, errors.New("category contains path characters"))
	}
	return "/data/Categories/" + name + "Data.json", nil
}
