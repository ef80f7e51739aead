package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrInvalidRecord marks a battlelog entry that lacks a required field.
var ErrInvalidRecord = errors.New("invalid battle record")

// RawBattle is one battlelog entry as returned by the upstream API. Pointer
// fields distinguish an absent key from a zero value.
type RawBattle struct {
	BattleTime *string          `json:"battleTime"`
	GameMode   *rawGameMode     `json:"gameMode"`
	Team       []RawParticipant `json:"team"`
	Opponent   []RawParticipant `json:"opponent"`
}

type rawGameMode struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
}

// RawParticipant is one side of a RawBattle.
type RawParticipant struct {
	Tag              *string   `json:"tag"`
	StartingTrophies int       `json:"startingTrophies"`
	TrophyChange     int       `json:"trophyChange"`
	Crowns           *int      `json:"crowns"`
	Cards            []rawCard `json:"cards"`
}

type rawCard struct {
	ID *int64 `json:"id"`
}

// Mode returns the record's game mode, or false when the key is missing.
func (r RawBattle) Mode() (GameModeID, bool) {
	if r.GameMode == nil || r.GameMode.ID == nil {
		return 0, false
	}
	return GameModeID(*r.GameMode.ID), true
}

// DecodeBattlelog parses a battlelog response body.
func DecodeBattlelog(body []byte) ([]RawBattle, error) {
	var records []RawBattle
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode battlelog: %w", err)
	}
	return records, nil
}

// Normalize converts a raw record into a Battle. Mode filtering is the
// caller's job; Normalize only validates and canonicalizes.
func Normalize(raw RawBattle) (Battle, error) {
	if raw.BattleTime == nil {
		return Battle{}, fmt.Errorf("%w: missing battleTime", ErrInvalidRecord)
	}
	ts, err := time.Parse(BattleTimeLayout, *raw.BattleTime)
	if err != nil {
		return Battle{}, fmt.Errorf("%w: battleTime %q: %v", ErrInvalidRecord, *raw.BattleTime, err)
	}
	mode, ok := raw.Mode()
	if !ok {
		return Battle{}, fmt.Errorf("%w: missing gameMode.id", ErrInvalidRecord)
	}
	if len(raw.Team) == 0 || len(raw.Opponent) == 0 {
		return Battle{}, fmt.Errorf("%w: missing team or opponent", ErrInvalidRecord)
	}
	p1, err := normalizePlayer(raw.Team[0])
	if err != nil {
		return Battle{}, fmt.Errorf("team: %w", err)
	}
	p2, err := normalizePlayer(raw.Opponent[0])
	if err != nil {
		return Battle{}, fmt.Errorf("opponent: %w", err)
	}
	return Battle{Time: ts.UTC(), Mode: mode, Player1: p1, Player2: p2}, nil
}

func normalizePlayer(raw RawParticipant) (Player, error) {
	if raw.Tag == nil || NormalizeTag(*raw.Tag) == "" {
		return Player{}, fmt.Errorf("%w: missing tag", ErrInvalidRecord)
	}
	if raw.Crowns == nil {
		return Player{}, fmt.Errorf("%w: missing crowns", ErrInvalidRecord)
	}
	if raw.Cards == nil {
		return Player{}, fmt.Errorf("%w: missing cards", ErrInvalidRecord)
	}
	if len(raw.Cards) != DeckSize {
		return Player{}, fmt.Errorf("%w: %d cards, want %d", ErrInvalidRecord, len(raw.Cards), DeckSize)
	}
	ids := make([]int64, 0, DeckSize)
	for _, c := range raw.Cards {
		if c.ID == nil {
			return Player{}, fmt.Errorf("%w: card without id", ErrInvalidRecord)
		}
		ids = append(ids, *c.ID)
	}
	slices.Sort(ids)

	p := Player{
		Tag:    NormalizeTag(*raw.Tag),
		Rating: raw.StartingTrophies + raw.TrophyChange,
		Crowns: *raw.Crowns,
	}
	copy(p.Cards[:], ids)
	return p, nil
}
