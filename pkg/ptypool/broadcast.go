package ptypool

import "sync"

const broadcastRingSize = 1024

// outputMsg is one item delivered to a broadcast subscriber. Lagged is set
// instead of delivering Data when the subscriber's channel was full at
// publish time; the forwarder reading it is expected to skip it silently.
type outputMsg struct {
	Data   []byte
	Lagged bool
}

// broadcaster fans a single PTY's output out to every attached WebSocket.
// Each subscriber gets its own 1024-message ring; a subscriber that falls
// behind drops messages rather than back-pressuring the PTY reader.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan outputMsg
	nextID int
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan outputMsg)}
}

// Subscribe registers a new listener and returns its ID (for Unsubscribe)
// and its delivery channel.
func (b *broadcaster) Subscribe() (int, <-chan outputMsg) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan outputMsg, broadcastRingSize)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers data to every current subscriber, never blocking: a
// full subscriber channel has its oldest queued message dropped and a
// Lagged marker queued in its place, and misses this tick's data.
func (b *broadcaster) Publish(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- outputMsg{Data: data}:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- outputMsg{Lagged: true}:
			default:
			}
		}
	}
}

// closeAll closes every subscriber channel, used when the session itself
// is torn down.
func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
