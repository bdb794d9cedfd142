package broadcast

import (
	"fmt"
	"sync"
)

const (
	TopicJobs     = "jobs"
	TopicActivity = "activity"
	TopicFirehose = "firehose"
)

// ValidateTopic checks whether topic is one of the known topics.
func ValidateTopic(topic string) error {
	switch topic {
	case TopicJobs, TopicActivity, TopicFirehose:
		return nil
	default:
		return fmt.Errorf("broadcast: unknown topic %q", topic)
	}
}

// resolveTopics returns the topics an event is routed to: its own topic
// plus the firehose.
func resolveTopics(evt *Event) []string {
	if evt.Topic == "" || evt.Topic == TopicFirehose {
		return []string{TopicFirehose}
	}
	return []string{evt.Topic, TopicFirehose}
}

// topicRegistry manages subscriber sets per topic.
// It is safe for concurrent use.
type topicRegistry struct {
	mu     sync.RWMutex
	topics map[string]map[string]*subscriber // topic → subscriberID → subscriber
}

func newTopicRegistry() *topicRegistry {
	return &topicRegistry{topics: make(map[string]map[string]*subscriber)}
}

func (tr *topicRegistry) subscribe(topic string, sub *subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs, ok := tr.topics[topic]
	if !ok {
		subs = make(map[string]*subscriber)
		tr.topics[topic] = subs
	}
	subs[sub.id] = sub
}

func (tr *topicRegistry) unsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for topic, subs := range tr.topics {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(tr.topics, topic)
		}
	}
}

// targets returns the distinct subscribers bound to any of topics.
func (tr *topicRegistry) targets(topics []string) []*subscriber {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	seen := make(map[string]*subscriber)
	for _, topic := range topics {
		for sid, sub := range tr.topics[topic] {
			seen[sid] = sub
		}
	}
	out := make([]*subscriber, 0, len(seen))
	for _, sub := range seen {
		out = append(out, sub)
	}
	return out
}

func (tr *topicRegistry) topicCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics)
}

func (tr *topicRegistry) subscriberCount(topic string) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics[topic])
}
