// Package broker is a small in-process topic bus. The coordinator
// publishes run events to a topic named by the run ID and the stream hub
// subscribes one channel per websocket client. Every topic keeps a
// bounded backlog of published messages, so a subscriber that attaches
// after publishing started still receives the full history first.
package broker

import (
	"sync"
	"time"
)

// defaultRetention is how long a closed topic's backlog stays
// replayable for late subscribers before it is pruned.
const defaultRetention = 5 * time.Minute

type Broker[T any] struct {
	mu          sync.Mutex
	topics      map[string][]chan T
	backlog     map[string][]T
	closed      map[string]bool
	maxSizeChan uint
	retention   time.Duration
}

func New[T any](maxCountMsgInTopic uint) *Broker[T] {
	return &Broker[T]{
		topics:      make(map[string][]chan T),
		backlog:     make(map[string][]T),
		closed:      make(map[string]bool),
		maxSizeChan: maxCountMsgInTopic,
		retention:   defaultRetention,
	}
}

// Publish records msg in the topic backlog and delivers it to every
// subscriber. Delivery never blocks the publisher: a subscriber whose
// buffer is full misses the message. Publishing to a closed topic is a
// no-op.
func (b *Broker[T]) Publish(topic string, msg T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed[topic] {
		return
	}

	// When the backlog is full, drop the second-oldest entry: the first
	// message carries the run start and must survive replay.
	log := b.backlog[topic]
	if uint(len(log)) >= b.maxSizeChan && len(log) > 1 {
		log = append(log[:1], log[2:]...)
	}
	b.backlog[topic] = append(log, msg)

	for _, ch := range b.topics[topic] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribe returns a receive channel for the topic and a cancel func
// that detaches and closes it. The channel is pre-loaded with the
// topic's backlog, so late subscribers replay the history before live
// messages. Subscribing to a closed topic returns a channel holding the
// retained backlog, already closed.
func (b *Broker[T]) Subscribe(topic string) (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	log := b.backlog[topic]
	ch := make(chan T, uint(len(log))+b.maxSizeChan)
	for _, msg := range log {
		ch <- msg
	}

	if b.closed[topic] {
		close(ch)
		return ch, func() {}
	}

	b.topics[topic] = append(b.topics[topic], ch)

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.topics[topic]
		for i, sub := range subs {
			if sub == ch {
				b.topics[topic] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// CloseTopic closes every subscriber channel and marks the topic
// finished. The backlog stays replayable for the retention window, then
// the topic is forgotten entirely so finished runs do not accumulate.
func (b *Broker[T]) CloseTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed[topic] {
		return
	}
	for _, ch := range b.topics[topic] {
		close(ch)
	}
	delete(b.topics, topic)
	b.closed[topic] = true

	time.AfterFunc(b.retention, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.closed, topic)
		delete(b.backlog, topic)
	})
}
