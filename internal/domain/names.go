package domain

import "strings"

// Map is a canonical map display name.
type Map string

// Known maps, in leaderboard priority order.
const (
	MapAbyss               Map = "Abyss"
	MapAtlantis            Map = "Atlantis"
	MapCrag                Map = "Crag"
	MapForegoneDestruction Map = "Foregone_Destruction"
	MapHelix               Map = "Helix"
	MapHighwind            Map = "Highwind"
	MapImpact              Map = "Impact"
	MapKarmanStation       Map = "Karman_Station"
	MapLavawell            Map = "Lavawell"
	MapOasis               Map = "Oasis"
	MapOlympus             Map = "Olympus"
	MapPantheon            Map = "Pantheon"
	MapSilo                Map = "Silo"
	MapStadium             Map = "Stadium"
)

// KnownMaps lists every canonical map in priority order.
var KnownMaps = []Map{
	MapAbyss, MapAtlantis, MapCrag, MapForegoneDestruction, MapHelix,
	MapHighwind, MapImpact, MapKarmanStation, MapLavawell, MapOasis,
	MapOlympus, MapPantheon, MapSilo, MapStadium,
}

// Difficulty is a canonical difficulty display name.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// KnownDifficulties lists the standard difficulties in display order.
var KnownDifficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// mapAliases holds extra spellings beyond the separator variants of each
// canonical name. Keys are compacted (see compactName).
var mapAliases = map[string]Map{
	"clubsilo": MapSilo,
	"foregone": MapForegoneDestruction,
	"karman":   MapKarmanStation,
}

var mapIndex = buildMapIndex()

func buildMapIndex() map[string]Map {
	idx := make(map[string]Map, len(KnownMaps)+len(mapAliases))
	for _, m := range KnownMaps {
		idx[compactName(string(m))] = m
	}
	for alias, m := range mapAliases {
		idx[alias] = m
	}
	return idx
}

// compactName lowercases s and drops the separators players tend to vary:
// "Karman Station", "karman_station" and "KarmanStation" compact the same.
func compactName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

// NormalizeMap resolves free-form map input to its display name. Unknown maps
// are not rejected; they get their first letter upper-cased.
func NormalizeMap(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if m, ok := mapIndex[compactName(trimmed)]; ok {
		return string(m), true
	}
	return capitalizeFirst(strings.ToLower(trimmed)), true
}

// NormalizeDifficulty resolves free-form difficulty input the same way.
func NormalizeDifficulty(raw string) (string, bool) {
	d := strings.ToLower(strings.TrimSpace(raw))
	if d == "" {
		return "", false
	}
	for _, known := range KnownDifficulties {
		if d == strings.ToLower(string(known)) {
			return string(known), true
		}
	}
	return capitalizeFirst(d), true
}

// IsKnownMap reports whether name is one of the canonical maps.
func IsKnownMap(name string) bool {
	return mapPriority(name) >= 0
}

func mapPriority(name string) int {
	for i, m := range KnownMaps {
		if string(m) == name {
			return i
		}
	}
	return -1
}

func difficultyPriority(name string) int {
	for i, d := range KnownDifficulties {
		if string(d) == name {
			return i
		}
	}
	return -1
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
