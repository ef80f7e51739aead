// Package storage holds helpers shared by the battle store implementations.
// Concrete stores live in the subpackages.
package storage

import (
	"regexp"

	"github.com/JakeFAU/ladder-battle-crawler/internal/crawler"
)

// DefaultTable is the battle table used when none is configured.
const DefaultTable = "battles"

// Columns lists the battle table columns in insert order.
var Columns = []string{
	"battle_time",
	"game_mode",
	"p1_tag",
	"p1_rating",
	"p1_crowns",
	"p1_cards",
	"p2_tag",
	"p2_rating",
	"p2_crowns",
	"p2_cards",
}

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidTableName reports whether name is safe to interpolate into SQL.
func ValidTableName(name string) bool {
	return validTableName.MatchString(name)
}

// Values returns the column values for b in Columns order. b should already
// be canonical.
func Values(b crawler.Battle) []any {
	return []any{
		b.Time.UTC(),
		int64(b.Mode),
		b.Player1.Tag.String(),
		b.Player1.Rating,
		b.Player1.Crowns,
		b.Player1.Cards.String(),
		b.Player2.Tag.String(),
		b.Player2.Rating,
		b.Player2.Crowns,
		b.Player2.Cards.String(),
	}
}
