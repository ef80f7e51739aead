package app

import (
	"github.com/JakeFAU/ladder-battle-crawler/internal/api"
	memorypublisher "github.com/JakeFAU/ladder-battle-crawler/internal/publisher/memory"
	memorystorage "github.com/JakeFAU/ladder-battle-crawler/internal/storage/memory"
)

// recentNotifications caps how many notifications the sink report carries.
const recentNotifications = 20

// memorySinks holds whichever memory adapters stand in for unconfigured
// sinks. Nil fields are not in use.
type memorySinks struct {
	battles   *memorystorage.BattleStore
	blobs     *memorystorage.BlobStore
	publisher *memorypublisher.Publisher
}

// SinkReport implements api.SinkSource.
func (m *memorySinks) SinkReport() api.SinkReport {
	rep := api.SinkReport{Archives: []string{}}
	if m.battles != nil {
		rep.Battles = m.battles.Len()
	}
	if m.blobs != nil {
		rep.Archives = m.blobs.Paths()
	}
	if m.publisher != nil {
		rep.Notifications = m.publisher.Count()
		rep.ByTopic = m.publisher.CountByTopic()
		msgs := m.publisher.Messages()
		if len(msgs) > recentNotifications {
			msgs = msgs[len(msgs)-recentNotifications:]
		}
		for _, msg := range msgs {
			rep.Recent = append(rep.Recent, msg.Payload)
		}
	}
	return rep
}
