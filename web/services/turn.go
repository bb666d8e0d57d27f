package services

import (
	"context"
	"strings"
	"sync"

	"askme/web/types"
)

// subscriberBuffer bounds how far a reader may lag before it stops receiving
// chunks. A dropped reader still gets the final entry from Wait.
const subscriberBuffer = 256

// turn is one answer being generated. Readers may join at any point: they
// get the text so far, then live chunks, then the stored entry.
type turn struct {
	entry types.HistoryEntry

	mu       sync.Mutex
	text     strings.Builder
	subs     map[chan string]struct{}
	finished bool
	final    types.HistoryEntry
	done     chan struct{}
}

func newTurn(entry types.HistoryEntry) *turn {
	return &turn{
		entry: entry,
		subs:  make(map[chan string]struct{}),
		done:  make(chan struct{}),
	}
}

// publish records a chunk and fans it out. It never blocks on readers.
func (t *turn) publish(chunk string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.text.WriteString(chunk)
	for ch := range t.subs {
		select {
		case ch <- chunk:
		default:
			delete(t.subs, ch)
			close(ch)
		}
	}
	return nil
}

func (t *turn) subscribe() (string, chan string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan string, subscriberBuffer)
	if t.finished {
		close(ch)
		return t.text.String(), ch
	}
	t.subs[ch] = struct{}{}
	return t.text.String(), ch
}

func (t *turn) unsubscribe(ch chan string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.subs[ch]; ok {
		delete(t.subs, ch)
		close(ch)
	}
}

func (t *turn) finish(final types.HistoryEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.final = final
	t.finished = true
	for ch := range t.subs {
		close(ch)
	}
	t.subs = nil
	close(t.done)
}

// Subscription follows one entry's answer.
type Subscription struct {
	// Replay is the answer text streamed before the subscription started.
	Replay string
	// Chunks delivers live answer text. It is closed when the answer is
	// complete or when the reader falls too far behind.
	Chunks <-chan string

	turn  *turn
	ch    chan string
	final types.HistoryEntry
}

func finishedSubscription(entry types.HistoryEntry) *Subscription {
	ch := make(chan string)
	close(ch)
	return &Subscription{Chunks: ch, final: entry}
}

// Wait blocks until the answer is stored and returns the final entry.
func (s *Subscription) Wait(ctx context.Context) (types.HistoryEntry, error) {
	if s.turn == nil {
		return s.final, nil
	}
	select {
	case <-s.turn.done:
		return s.turn.final, nil
	case <-ctx.Done():
		return types.HistoryEntry{}, ctx.Err()
	}
}

// Close stops chunk delivery. The answer keeps being generated.
func (s *Subscription) Close() {
	if s.turn != nil {
		s.turn.unsubscribe(s.ch)
	}
}
