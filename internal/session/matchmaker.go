package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MatchmakerData holds the fields of the FlexMatch matchmaker document that the
// server cares about. Pointer fields are nil when the key is absent, which keeps
// "not sent" distinct from "sent as an empty string".
type MatchmakerData struct {
	MatchID                     *string `json:"matchId"`
	MatchmakingConfigurationArn *string `json:"matchmakingConfigurationArn"`
	AutoBackfillTicketID        *string `json:"autoBackfillTicketId"`
	AutoBackfillMode            *string `json:"autoBackfillMode"`
	Teams                       []Team  `json:"teams"`
}

type Team struct {
	Name    string   `json:"name"`
	Players []Player `json:"players"`
}

type Player struct {
	PlayerID string `json:"playerId"`
}

// ParseMatchmakerData decodes the matchmaker document attached to a game session.
// Sessions created without FlexMatch carry no document, which yields an empty
// result rather than an error.
func ParseMatchmakerData(raw string) (MatchmakerData, error) {
	var data MatchmakerData
	if strings.TrimSpace(raw) == "" {
		return data, nil
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return MatchmakerData{}, fmt.Errorf("decoding matchmaker data: %w", err)
	}
	return data, nil
}

// PlayerCount returns the number of players across all teams.
func (d MatchmakerData) PlayerCount() int {
	n := 0
	for _, t := range d.Teams {
		n += len(t.Players)
	}
	return n
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
