// Package memory keeps batch notifications in process when no Pub/Sub topic
// is configured. Only the most recent messages are retained; totals are kept
// per topic.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// DefaultRetain is how many recent messages a Publisher keeps.
const DefaultRetain = 256

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// Publisher records notifications for the status server and tests.
type Publisher struct {
	mu       sync.RWMutex
	retain   int
	recent   []PublishedMessage
	total    int
	perTopic map[string]int
	err      error
}

// New returns a Publisher retaining DefaultRetain messages.
func New() *Publisher {
	return NewWithRetention(DefaultRetain)
}

// NewWithRetention returns a Publisher keeping the last n messages. n <= 0
// selects DefaultRetain.
func NewWithRetention(n int) *Publisher {
	if n <= 0 {
		n = DefaultRetain
	}
	return &Publisher{retain: n, perTopic: make(map[string]int)}
}

// FailWith makes subsequent publishes return err. A nil err clears it.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records the message and returns a sequential ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.total++
	p.perTopic[topic]++
	p.recent = append(p.recent, PublishedMessage{Topic: topic, Payload: payload})
	if over := len(p.recent) - p.retain; over > 0 {
		p.recent = append(p.recent[:0:0], p.recent[over:]...)
	}
	return fmt.Sprintf("memory-%d", p.total), nil
}

// Messages returns the retained messages, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.recent))
	copy(out, p.recent)
	return out
}

// Count returns how many messages were published in total.
func (p *Publisher) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total
}

// CountByTopic returns publish totals keyed by topic.
func (p *Publisher) CountByTopic() map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]int, len(p.perTopic))
	for k, v := range p.perTopic {
		out[k] = v
	}
	return out
}
