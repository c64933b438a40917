package domain

import "strings"

// Platform names that need special handling.
const (
	PlatformSteam = "steam"
)

// PlayerRecord is a player's personal-best document.
type PlayerRecord struct {
	PlatformID  string    `json:"userId"`
	Platform    string    `json:"platform"`
	DisplayName string    `json:"displayName"`
	BestTimes   BestTimes `json:"bestTimes"`
}

// NewPlayerRecord returns the record written for a player's first submission.
// The display name starts out as the platform id.
func NewPlayerRecord(platformID, platform string) PlayerRecord {
	return PlayerRecord{
		PlatformID:  platformID,
		Platform:    platform,
		DisplayName: platformID,
	}
}

// IsSteam reports whether the record belongs to a Steam player.
func IsSteam(platform string) bool {
	return strings.EqualFold(strings.TrimSpace(platform), PlatformSteam)
}

// PlayerIdentity selects a player either by display name or platform id.
// DisplayName wins when both are set.
type PlayerIdentity struct {
	PlatformID  string `json:"platformId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Matches reports whether the entry belongs to the identity.
func (p PlayerIdentity) Matches(e LeaderboardEntry) bool {
	if p.DisplayName != "" {
		return strings.EqualFold(e.DisplayName, p.DisplayName)
	}
	return p.PlatformID != "" && e.CompositeUserID.PlatformID == p.PlatformID
}

// IsZero reports whether neither selector is set.
func (p PlayerIdentity) IsZero() bool {
	return p.PlatformID == "" && p.DisplayName == ""
}
