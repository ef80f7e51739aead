package crawler

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/ladder-battle-crawler/internal/frontier"
)

// graph holds the mutable crawl state. It is owned by a single goroutine.
type graph struct {
	frontier  *frontier.Queue[PlayerTag, Priority]
	requested map[PlayerTag]struct{}
	inflight  map[PlayerTag]struct{}

	rankedTarget    int
	ladderTarget    int
	lowRatingCutoff int

	logger *zap.Logger
}

func newGraph(cfg Config, logger *zap.Logger) *graph {
	return &graph{
		frontier:        frontier.New[PlayerTag](Priority.Less),
		requested:       make(map[PlayerTag]struct{}),
		inflight:        make(map[PlayerTag]struct{}),
		rankedTarget:    cfg.RankedTarget,
		ladderTarget:    cfg.LadderTarget,
		lowRatingCutoff: cfg.LowRatingCutoff,
		logger:          logger,
	}
}

// seed inserts tags with the default priority.
func (g *graph) seed(tags []PlayerTag) {
	for _, t := range tags {
		if g.known(t) || g.frontier.Contains(t) {
			continue
		}
		g.frontier.Upsert(t, Priority{})
	}
}

// known reports whether tag was fetched or is being fetched.
func (g *graph) known(tag PlayerTag) bool {
	if _, ok := g.requested[tag]; ok {
		return true
	}
	_, ok := g.inflight[tag]
	return ok
}

func (g *graph) isRequested(tag PlayerTag) bool {
	_, ok := g.requested[tag]
	return ok
}

func (g *graph) markRequested(tag PlayerTag) {
	g.requested[tag] = struct{}{}
	g.frontier.Remove(tag)
}

// apply runs the update rule for the battles returned for fetched. battles
// are in upstream order, most recent first.
func (g *graph) apply(fetched PlayerTag, battles []Battle) {
	g.markRequested(fetched)
	for i := len(battles) - 1; i >= 0; i-- {
		g.observe(battles[i], opponentOf(battles[i], fetched))
	}
}

func (g *graph) observe(b Battle, opp Player) {
	if g.known(opp.Tag) {
		return
	}
	ranked := b.Mode.IsRanked()
	if !ranked && !b.Mode.IsLadder() {
		return
	}
	if ranked && opp.Rating < g.lowRatingCutoff {
		g.logger.Debug("skipping low rated opponent",
			zap.Stringer("tag", opp.Tag),
			zap.Int("rating", opp.Rating),
		)
		return
	}

	p, exists := g.frontier.Get(opp.Tag)
	switch {
	case ranked && (!exists || b.Time.After(p.LastRanked)):
		p.RankedDistance = abs(opp.Rating - g.rankedTarget)
		p.LastRanked = b.Time
	case !ranked && (!exists || b.Time.After(p.LastLadder)):
		p.LadderDistance = abs(opp.Rating - g.ladderTarget)
		p.LastLadder = b.Time
	default:
		return
	}
	g.frontier.Upsert(opp.Tag, p)
	g.logger.Debug("frontier updated",
		zap.Stringer("tag", opp.Tag),
		zap.Bool("ranked", ranked),
		zap.Int("rating", opp.Rating),
		zap.Bool("new", !exists),
	)
}

// opponentOf returns the side of b that is not fetched.
func opponentOf(b Battle, fetched PlayerTag) Player {
	if b.Player1.Tag == fetched {
		return b.Player2
	}
	if b.Player2.Tag == fetched {
		return b.Player1
	}
	return b.Player2
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
