package crawler

import (
	"strconv"
	"strings"
	"time"
)

// PlayerTag identifies a player. Tags are stored without the leading '#'.
type PlayerTag string

// NormalizeTag strips the '#' prefix and surrounding space and upper-cases the tag.
func NormalizeTag(raw string) PlayerTag {
	tag := strings.TrimSpace(raw)
	tag = strings.TrimPrefix(tag, "#")
	return PlayerTag(strings.ToUpper(tag))
}

// String returns the tag without the '#' prefix.
func (t PlayerTag) String() string {
	return string(t)
}

// GameModeID is the upstream game mode identifier.
type GameModeID int64

// Trophy road modes.
var ladderModes = map[GameModeID]string{
	72000006: "Ladder",
	72000044: "Ladder_GoldRush",
	72000201: "Ladder_CrownRush",
}

// Path of legends modes.
var rankedModes = map[GameModeID]string{
	72000323: "Ranked1v1",
	72000327: "Ranked1v1_GoldRush",
	72000328: "Ranked1v1_CrownRush",
}

var otherOneVOneModes = map[GameModeID]string{
	72000009: "Tournament",
	72000010: "Challenge",
	72000066: "Showdown_Ladder",
	72000007: "Friendly",
	72000291: "Challenge_AllCards_EventDeck",
}

// IsLadder reports whether the mode belongs to the trophy road track.
func (m GameModeID) IsLadder() bool {
	_, ok := ladderModes[m]
	return ok
}

// IsRanked reports whether the mode belongs to the ranked track.
func (m GameModeID) IsRanked() bool {
	_, ok := rankedModes[m]
	return ok
}

// IsOneVOne reports whether battles in this mode are crawled at all.
func (m GameModeID) IsOneVOne() bool {
	if m.IsLadder() || m.IsRanked() {
		return true
	}
	_, ok := otherOneVOneModes[m]
	return ok
}

// Name returns the mode's display name, or "" for unknown modes.
func (m GameModeID) Name() string {
	if n, ok := ladderModes[m]; ok {
		return n
	}
	if n, ok := rankedModes[m]; ok {
		return n
	}
	return otherOneVOneModes[m]
}

// DeckSize is the number of cards in a one-v-one deck.
const DeckSize = 8

// Deck holds card identifiers in ascending order.
type Deck [DeckSize]int64

// String joins the card identifiers with commas.
func (d Deck) String() string {
	var b strings.Builder
	for i, id := range d {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}

// Player is one participant's snapshot at the end of a battle.
type Player struct {
	Tag    PlayerTag
	Rating int
	Crowns int
	Cards  Deck
}

// Battle is a normalized one-v-one match. Player1 is the side whose
// battlelog reported the match.
type Battle struct {
	Time    time.Time
	Mode    GameModeID
	Player1 Player
	Player2 Player
}

// BattleTimeLayout is the upstream battleTime encoding.
const BattleTimeLayout = "20060102T150405.000Z"

// Canonical returns the battle with the greater tag in Player1, the form
// used when both participants report the same match.
func (b Battle) Canonical() Battle {
	if b.Player1.Tag < b.Player2.Tag {
		b.Player1, b.Player2 = b.Player2, b.Player1
	}
	return b
}

// Key identifies a physical match independent of which side reported it.
type Key struct {
	Time time.Time
	Mode GameModeID
	Tag1 PlayerTag
	Tag2 PlayerTag
}

// CanonicalKey returns the (time, mode, sorted tags) key for b.
func CanonicalKey(b Battle) Key {
	c := b.Canonical()
	return Key{Time: c.Time.UTC(), Mode: c.Mode, Tag1: c.Player1.Tag, Tag2: c.Player2.Tag}
}

// Priority orders frontier entries; the zero value sorts first. Distances are
// |rating - target| for the mode's most recent observed battle.
type Priority struct {
	RankedDistance int
	LadderDistance int
	LastRanked     time.Time
	LastLadder     time.Time
}

// Less compares priorities lexicographically.
func (p Priority) Less(o Priority) bool {
	if p.RankedDistance != o.RankedDistance {
		return p.RankedDistance < o.RankedDistance
	}
	if p.LadderDistance != o.LadderDistance {
		return p.LadderDistance < o.LadderDistance
	}
	if !p.LastRanked.Equal(o.LastRanked) {
		return p.LastRanked.Before(o.LastRanked)
	}
	return p.LastLadder.Before(o.LastLadder)
}

// Batch is the set of battles returned for one fetched player.
type Batch struct {
	Tag      PlayerTag
	Priority Priority
	Battles  []Battle
}
